package types

import "fmt"

// Registry interns types, functions, and modules by fully-qualified name
// or id, and specializes templates. It is the single owner of every
// TypeID/FunctionID/ModuleID handed out to the rest of the compiler;
// spec.md §9 calls for arena-owned interning with stable integer ids so
// cross-references (a type referencing a function referencing a type)
// never need owning pointers — every reference is an id indirected
// through the Registry.
//
// A Registry is mutated only during compilation of a single module
// graph and is not safe for concurrent use (spec.md §5).
type Registry struct {
	entries []Entry // index 0 unused, ids are 1-based like the teacher's rtl.Reg convention
	byName  map[string]TypeID

	// funcSig interns Function types by structural equality so two
	// signatures with the same (this, return, args) share a TypeID
	// (spec.md §4.1 contract).
	funcSig []TypeID

	// anon interns Object types with empty Name by structural property
	// list equality.
	anon []TypeID

	specCache map[specKey]TypeID

	funcs      []FuncEntry
	funcByName map[string]FunctionID

	modules   []ModuleEntry
	moduleByName map[string]ModuleID
}

type specKey struct {
	template TypeID
	args     string // joined arg TypeIDs, stable key for the map
}

// FuncEntry is a registered Function symbol (spec.md §3 "Function").
type FuncEntry struct {
	ID          FunctionID
	Name        string
	Qualified   string
	Sig         TypeID // a Function type id
	Access      PropertyAccess
	Class       TypeID // 0 if free function
	Entry       int    // bytecode entry address, 0 until emitted
	Native      bool
	InlineEmit  func(args []int) // host-provided inline codegen hook, nil for ordinary functions
}

// DataSlot is one typed, named module-data slot.
type DataSlot struct {
	Name   string
	Type   TypeID
	Access PropertyAccess
	SlotID int
}

// ModuleEntry is a registered Module (spec.md §3 "Module").
type ModuleEntry struct {
	ID      ModuleID
	Name    string
	Path    string
	Trusted bool
	Data    []DataSlot
	Funcs   []FunctionID
	Imports []ModuleID
}

// New creates an empty Registry with the primitive types pre-interned,
// matching spec.md §4.1's "intern primitive types at init" contract.
func New() *Registry {
	r := &Registry{
		entries:      make([]Entry, 1, 64),
		byName:       make(map[string]TypeID),
		specCache:    make(map[specKey]TypeID),
		funcByName:   make(map[string]FunctionID),
		moduleByName: make(map[string]ModuleID),
	}
	r.internPrimitives()
	return r
}

var primitiveNames = map[string]Primitive{
	"void": {Kind: PrimVoid},
	"bool": {Kind: PrimBool},
	"i8":   {Width: 1, Sign: Signed},
	"u8":   {Width: 1, Sign: Unsigned},
	"i16":  {Width: 2, Sign: Signed},
	"u16":  {Width: 2, Sign: Unsigned},
	"i32":  {Width: 4, Sign: Signed},
	"u32":  {Width: 4, Sign: Unsigned},
	"i64":  {Width: 8, Sign: Signed},
	"u64":  {Width: 8, Sign: Unsigned},
	"f32":  {Kind: PrimFloat32},
	"f64":  {Kind: PrimFloat64},
}

// primitiveOrder fixes iteration order for deterministic ids across runs
// (map iteration order is not stable; tests rely on fixed ids).
var primitiveOrder = []string{"void", "bool", "i8", "u8", "i16", "u16", "i32", "u32", "i64", "u64", "f32", "f64"}

func (r *Registry) internPrimitives() {
	for _, name := range primitiveOrder {
		p := primitiveNames[name]
		meta := Meta{
			IsPOD:                    true,
			IsPrimitive:              true,
			IsTriviallyConstructible: true,
			IsTriviallyCopyable:      true,
			IsTriviallyDestructible:  true,
			IsIntegral:               p.IsInteger(),
			IsUnsigned:               p.Sign == Unsigned,
			IsFloatingPoint:          p.Kind == PrimFloat32 || p.Kind == PrimFloat64,
		}
		switch {
		case p.Width > 0:
			meta.Size, meta.Align = p.Width, p.Width
		case p.Kind == PrimFloat32:
			meta.Size, meta.Align = 4, 4
		case p.Kind == PrimFloat64:
			meta.Size, meta.Align = 8, 8
		case p.Kind == PrimBool:
			meta.Size, meta.Align = 1, 1
		case p.Kind == PrimVoid:
			meta.Size, meta.Align = 0, 1
		}
		id := r.add(p, meta)
		r.byName[name] = id
	}
}

func (r *Registry) add(t Type, m Meta) TypeID {
	id := TypeID(len(r.entries))
	r.entries = append(r.entries, Entry{ID: id, Type: t, Meta: m})
	return id
}

// Lookup returns the entry for id, or false if id is out of range.
func (r *Registry) Lookup(id TypeID) (Entry, bool) {
	if int(id) <= 0 || int(id) >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[id], true
}

// MustLookup panics on an invalid id; used internally once an id is
// known to have come from this Registry.
func (r *Registry) MustLookup(id TypeID) Entry {
	e, ok := r.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("types: invalid TypeID %d", id))
	}
	return e
}

// Primitive returns the id of the pre-interned primitive named name, or
// 0 if name is not a primitive.
func (r *Registry) Primitive(name string) TypeID {
	return r.byName[name]
}

// ByQualifiedName looks up a non-anonymous type previously registered
// under name (an Object, Alias, or Template).
func (r *Registry) ByQualifiedName(name string) (TypeID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// NameOf reverse-looks-up the name id was registered (or interned as a
// primitive) under, for callers serializing a type table that want a
// human-readable name rather than a bare id (pkg/module's FromRegistry).
func (r *Registry) NameOf(id TypeID) (string, bool) {
	for name, rid := range r.byName {
		if rid == id {
			return name, true
		}
	}
	return "", false
}

// RegisterNamed interns a non-anonymous type (Object, Alias, Template)
// under a fully-qualified name. Registering a duplicate name is a
// failure mode per spec.md §4.1.
func (r *Registry) RegisterNamed(name string, t Type, m Meta) (TypeID, error) {
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("types: duplicate type name %q", name)
	}
	id := r.add(t, m)
	r.byName[name] = id
	return id, nil
}

// SetObjectProperties replaces the property list of a previously
// registered Object type, used by pkg/semantic's class registration to
// append get/set accessor properties once their Getter/Setter
// FunctionIDs are known (those ids require the Object's own TypeID to
// exist first, as This in their signatures, so they can't be included
// in the original RegisterNamed call).
func (r *Registry) SetObjectProperties(id TypeID, props []Property) {
	obj, ok := r.entries[id].Type.(Object)
	if !ok {
		panic(fmt.Sprintf("types: SetObjectProperties on non-Object TypeID %d", id))
	}
	obj.Properties = props
	r.entries[id].Type = obj
}

// InternAnonymous structurally interns an Object type with no name:
// two anonymous object types with an identical ordered property list
// share one TypeID (spec.md §4.1).
func (r *Registry) InternAnonymous(props []Property, m Meta) TypeID {
	for _, id := range r.anon {
		if obj, ok := r.entries[id].Type.(Object); ok && propertiesEqual(obj.Properties, props) {
			return id
		}
	}
	m.IsAnonymous = true
	id := r.add(Object{Properties: props}, m)
	r.anon = append(r.anon, id)
	return id
}

// InternFunctionType creates-or-finds a Function type by
// (thisType, returnType, args-including-implicit). Deterministic on
// identical tuples (spec.md §4.1/§4.2 contract, tested in registry_test.go
// as "function signature interning").
func (r *Registry) InternFunctionType(sig Function) TypeID {
	for _, id := range r.funcSig {
		if existing, ok := r.entries[id].Type.(Function); ok && equalFunction(existing, sig) {
			return id
		}
	}
	m := Meta{IsFunction: true, IsPOD: true, Size: 8, Align: 8, IsTriviallyCopyable: true, IsTriviallyDestructible: true}
	id := r.add(sig, m)
	r.funcSig = append(r.funcSig, id)
	return id
}

// PointerTo creates-or-finds (by simple linear scan; pointer types are
// few relative to object types) a Pointer-to-elem type.
func (r *Registry) PointerTo(elem TypeID) TypeID {
	for i := 1; i < len(r.entries); i++ {
		if p, ok := r.entries[i].Type.(Pointer); ok && p.Elem == elem {
			return TypeID(i)
		}
	}
	return r.add(Pointer{Elem: elem}, Meta{Size: 8, Align: 8, IsPOD: true, IsTriviallyConstructible: true, IsTriviallyCopyable: true, IsTriviallyDestructible: true})
}

// --- Function registry ---

// RegisterFunction assigns a fresh FunctionID to fn and indexes it by
// fully-qualified name.
func (r *Registry) RegisterFunction(fn FuncEntry) (FunctionID, error) {
	if _, exists := r.funcByName[fn.Qualified]; exists {
		return 0, fmt.Errorf("types: duplicate function name %q", fn.Qualified)
	}
	fn.ID = FunctionID(len(r.funcs) + 1)
	r.funcs = append(r.funcs, fn)
	r.funcByName[fn.Qualified] = fn.ID
	return fn.ID, nil
}

// Function returns the registered function by id.
func (r *Registry) Function(id FunctionID) (FuncEntry, bool) {
	if int(id) <= 0 || int(id) > len(r.funcs) {
		return FuncEntry{}, false
	}
	return r.funcs[id-1], true
}

// FunctionByQualified looks up a function's FunctionID by the same
// fully-qualified name RegisterFunction indexed it under, for callers
// (pkg/hostapi's linker) that hold an ir.FunctionDef's Name and need to
// find the FuncEntry it was registered as.
func (r *Registry) FunctionByQualified(name string) (FunctionID, bool) {
	id, ok := r.funcByName[name]
	return id, ok
}

// SetEntryPoint records the bytecode entry address for a compiled
// function, called once the Bytecode Emitter has placed it.
func (r *Registry) SetEntryPoint(id FunctionID, addr int) {
	if int(id) > 0 && int(id) <= len(r.funcs) {
		r.funcs[id-1].Entry = addr
	}
}

// FindFilter narrows a function lookup by spec.md §4.1's filter set.
type FindFilter struct {
	Name             string
	ReturnType       TypeID // 0 means "don't care"
	ArgTypes         []TypeID
	Strict           bool // exact parameter-type equality only
	SkipImplicitArgs bool
	ExcludePrivate   bool
	ExcludeInherited bool
}

// Find returns every registered function matching filter. Non-strict
// matching is left to the caller (the Semantic Compiler's conversion
// ranking in §4.3.2 decides which convertible candidate wins); Find
// itself only filters by name/arity/access here and leaves type
// compatibility to the caller when !Strict, returning all same-named,
// same-arity candidates for the caller to rank.
func (r *Registry) Find(filter FindFilter) []FuncEntry {
	var out []FuncEntry
	for _, fn := range r.funcs {
		if fn.Name != filter.Name {
			continue
		}
		if filter.ExcludePrivate && fn.Access == AccessPrivate {
			continue
		}
		sig, ok := r.entries[fn.Sig].Type.(Function)
		if !ok {
			continue
		}
		args := sig.Args
		if filter.SkipImplicitArgs && len(args) > 0 {
			args = args[1:]
		}
		if len(args) != len(filter.ArgTypes) {
			continue
		}
		if filter.ReturnType != 0 && sig.Return != filter.ReturnType {
			continue
		}
		if filter.Strict {
			match := true
			for i := range args {
				if args[i] != filter.ArgTypes[i] {
					match = false
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, fn)
	}
	return out
}

// --- Module registry ---

// RegisterModule assigns a fresh ModuleID and indexes it by name.
func (r *Registry) RegisterModule(m ModuleEntry) (ModuleID, error) {
	if _, exists := r.moduleByName[m.Name]; exists {
		return 0, fmt.Errorf("types: duplicate module name %q", m.Name)
	}
	m.ID = ModuleID(len(r.modules) + 1)
	r.modules = append(r.modules, m)
	r.moduleByName[m.Name] = m.ID
	return m.ID, nil
}

// Module returns the registered module by id.
func (r *Registry) Module(id ModuleID) (ModuleEntry, bool) {
	if int(id) <= 0 || int(id) > len(r.modules) {
		return ModuleEntry{}, false
	}
	return r.modules[id-1], true
}

// --- Template specialization ---

// Specialize returns the interned TypeID for template instantiated with
// args, calling compile (the Semantic Compiler's re-entrant
// specialization hook) only the first time this exact (template, args)
// tuple is requested. This is the idempotence contract of spec.md §4.1
// and §8 ("specialize(template, args) is idempotent on identical
// args").
func (r *Registry) Specialize(template TypeID, args []TypeID, compile func() (Type, Meta, string, error)) (TypeID, error) {
	key := specKey{template: template, args: joinIDs(args)}
	if id, ok := r.specCache[key]; ok {
		return id, nil
	}
	t, m, name, err := compile()
	if err != nil {
		return 0, err
	}
	var id TypeID
	if name != "" {
		id, err = r.RegisterNamed(name, t, m)
		if err != nil {
			return 0, err
		}
	} else {
		id = r.add(t, m)
	}
	r.specCache[key] = id
	return id, nil
}

func joinIDs(ids []TypeID) string {
	b := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		b = append(b, byte(id>>24), byte(id>>16), byte(id>>8), byte(id))
	}
	return string(b)
}

// MangledName produces the canonical `Base<Arg1, Arg2, ...>` name spec.md
// §4.3.5 specifies for an interned template specialization.
func MangledName(base string, argNames []string) string {
	out := base + "<"
	for i, n := range argNames {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out + ">"
}
