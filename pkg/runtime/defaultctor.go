package runtime

import (
	"scriptc/pkg/ir"
	"scriptc/pkg/types"
)

// DefaultCtorOf resolves the FunctionID of a type's default constructor,
// so GenerateDefaultConstructor can call into a member's own default
// ctor without needing the whole Semantic Compiler wired in. The
// Semantic Compiler supplies this (it owns the ctor-lookup/overload
// logic of spec.md §4.3.3); pkg/runtime stays ignorant of how ctors are
// found, only of how to emit a call to one once known.
type DefaultCtorOf func(t types.TypeID) (types.FunctionID, types.TypeID, bool)

// GenerateDefaultConstructor emits the body of a synthesized default
// constructor for obj (spec.md §4.7: "for every non-trivially-
// constructible user type without an explicit () constructor, emits one
// that recurses into member defaults: primitives zero-init, non-
// primitives call their default ctor"). The returned FunctionDef takes
// one implicit argument, `this` (a pointer to objType), and returns
// void.
func GenerateDefaultConstructor(reg *types.Registry, name string, objType types.TypeID, obj types.Object, ctorOf DefaultCtorOf) *ir.FunctionDef {
	f := ir.NewFunctionDef(name)
	f.ThisType = objType
	ptrType := reg.PointerTo(objType)
	this := ir.Value{Type: ptrType, Loc: ir.LocArgument, ArgIndex: 0, Flags: ir.FlagIsPointer | ir.FlagCanRead}
	f.ThisValue = this
	offsetType := reg.Primitive("i64")

	for _, prop := range obj.Properties {
		if prop.Flags&types.PropAccessor != 0 || prop.Flags&types.PropStatic != 0 {
			continue
		}
		fieldPtrType := reg.PointerTo(prop.Type)
		fieldPtr := f.Val(fieldPtrType)
		fieldPtr.Flags |= ir.FlagIsPointer
		f.Add(ir.OpAdd).Dest(fieldPtr).Op(this).Op(ir.ImmInt(offsetType, int64(prop.Offset))).NumKind(ir.KindSigned)

		entry, ok := reg.Lookup(prop.Type)
		if !ok {
			continue
		}
		if entry.Meta.IsPrimitive || entry.Meta.IsPOD {
			zero := ir.ImmInt(prop.Type, 0)
			if entry.Meta.IsFloatingPoint {
				zero = ir.ImmFloat(prop.Type, 0)
			}
			f.Add(ir.OpStore).Op(fieldPtr).Op(zero)
			continue
		}
		ctorID, sig, found := ctorOf(prop.Type)
		if !found {
			continue
		}
		f.Add(ir.OpParam).Op(fieldPtr)
		f.Add(ir.OpCall).Op(ir.ImmFunction(sig, ctorID)).Dest(ir.Null)
	}

	f.Add(ir.OpReturn)
	return f
}
