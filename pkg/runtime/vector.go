package runtime

import (
	"scriptc/pkg/types"
)

// Vector types (vec2f..vec4d) are spec.md §4.6's fixed-name intrinsic
// Object types, parallel to String/Array<T>: registered on first use via
// the Type Registry under a fixed name, compiled exactly like any other
// Object (ordinary x/y/z/w properties at fixed offsets), but with the
// Semantic Compiler special-casing construction, arithmetic operators,
// and dot/cross/mag/normalize method calls to the IR's dedicated vector
// opcodes (pkg/ir's OpVAdd family) instead of ordinary field stores and
// method calls, matching how string/array literals get special-case
// recognition (spec.md §4.7) rather than going through general-purpose
// lowering.

// VectorLaneNames are the property names assigned to a vector's lanes in
// declaration order, "x","y","z","w" — the prefix used for however many
// lanes the vector type carries.
var VectorLaneNames = [4]string{"x", "y", "z", "w"}

// ParseVectorTypeName recognizes a vecNf/vecNd type name (N in 2..4),
// returning its lane count and whether its element type is f64 (false
// means f32). Unrecognized names report ok=false.
func ParseVectorTypeName(name string) (lanes int, f64 bool, ok bool) {
	if len(name) != 5 || name[:3] != "vec" {
		return 0, false, false
	}
	switch name[3] {
	case '2':
		lanes = 2
	case '3':
		lanes = 3
	case '4':
		lanes = 4
	default:
		return 0, false, false
	}
	switch name[4] {
	case 'f':
		return lanes, false, true
	case 'd':
		return lanes, true, true
	}
	return 0, false, false
}

func vectorTypeName(lanes int, f64 bool) string {
	elem := byte('f')
	if f64 {
		elem = 'd'
	}
	return "vec" + string(rune('0'+lanes)) + string(elem)
}

// RegisterVectorType interns vecNf/vecNd under its fixed name, idempotent
// across repeated calls (the Semantic Compiler calls this once per
// vector literal or type reference it encounters, same as
// RegisterStringType is called from every string literal). Its
// properties are trivially-constructible/copyable/destructible
// primitives, so it needs no generated default constructor or
// destructor the way a user Object with non-POD members would.
func RegisterVectorType(reg *types.Registry, lanes int, f64 bool) (types.TypeID, error) {
	name := vectorTypeName(lanes, f64)
	if id, ok := reg.ByQualifiedName(name); ok {
		return id, nil
	}
	elemName := "f32"
	elemSize := 4
	if f64 {
		elemName = "f64"
		elemSize = 8
	}
	elem := reg.Primitive(elemName)
	props := make([]types.Property, lanes)
	for i := 0; i < lanes; i++ {
		props[i] = types.Property{Name: VectorLaneNames[i], Type: elem, Offset: i * elemSize, Access: types.AccessPublic}
	}
	meta := types.Meta{
		Size:                     lanes * elemSize,
		Align:                    elemSize,
		IsPOD:                    true,
		IsTriviallyConstructible: true,
		IsTriviallyCopyable:      true,
		IsTriviallyDestructible:  true,
	}
	return reg.RegisterNamed(name, types.Object{Name: name, Properties: props}, meta)
}

// VectorInfo reports whether t is a registered vector type and, if so,
// its lane count and element width, by recognizing the fixed name it was
// interned under (RegisterVectorType never registers anything else under
// a "vecNf"/"vecNd"-shaped name).
func VectorInfo(reg *types.Registry, t types.TypeID) (lanes int, f64 bool, ok bool) {
	entry, found := reg.Lookup(t)
	if !found {
		return 0, false, false
	}
	obj, isObj := entry.Type.(types.Object)
	if !isObj {
		return 0, false, false
	}
	return ParseVectorTypeName(obj.Name)
}
