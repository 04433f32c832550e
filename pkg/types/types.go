// Package types implements the Type & Symbol Registry: the interned
// universe of types, functions, and modules that the semantic compiler
// and bytecode emitter address by integer id.
//
// The Type sum type mirrors the teacher's pkg/ctypes design (an
// interface plus marker methods, one struct per case) generalized from
// a C type lattice to the scripting language's primitive / pointer /
// array / function / object / alias / anonymous / template lattice of
// spec.md §3.
package types

import "fmt"

// TypeID identifies an interned Type. Zero is never a valid id.
type TypeID int

// FunctionID identifies an interned Function. Zero is never valid.
type FunctionID int

// ModuleID identifies a registered Module. Zero is never valid.
type ModuleID int

// Type is the interface implemented by every case of the type lattice.
type Type interface {
	implType()
	String() string
}

// Signedness distinguishes signed and unsigned integer primitives.
type Signedness int

const (
	Signed Signedness = iota
	Unsigned
)

func (s Signedness) String() string {
	if s == Unsigned {
		return "u"
	}
	return ""
}

// PrimKind enumerates the non-integer primitive kinds.
type PrimKind int

const (
	PrimVoid PrimKind = iota
	PrimBool
	PrimFloat32
	PrimFloat64
)

// Primitive is an integer-of-width, float32/64, void, or bool primitive.
type Primitive struct {
	Kind    PrimKind // only meaningful when Width == 0
	Width   int      // 1, 2, 4, 8 for integers; 0 for non-integer kinds
	Sign    Signedness
}

func (Primitive) implType() {}

func (p Primitive) String() string {
	if p.Width > 0 {
		return fmt.Sprintf("%si%d", p.Sign, p.Width*8)
	}
	switch p.Kind {
	case PrimVoid:
		return "void"
	case PrimBool:
		return "bool"
	case PrimFloat32:
		return "f32"
	case PrimFloat64:
		return "f64"
	}
	return "?primitive"
}

// IsInteger reports whether p is an integer-of-width primitive.
func (p Primitive) IsInteger() bool { return p.Width > 0 }

// Pointer is a pointer-to-T type.
type Pointer struct {
	Elem TypeID
}

func (Pointer) implType()    {}
func (p Pointer) String() string { return fmt.Sprintf("*%d", p.Elem) }

// Array is a template specialization `Array<T>` with a fixed element type.
// The count, if any, is runtime state on the object, not part of the type.
type Array struct {
	Elem TypeID
}

func (Array) implType()    {}
func (a Array) String() string { return fmt.Sprintf("Array<%d>", a.Elem) }

// Function is a function *type*: signature only, no body. (The Function
// symbol with a name/body is registry.go's FuncEntry — a function type is the
// shape shared by every function with that signature.)
type Function struct {
	This       TypeID // 0 if free function
	Return     TypeID
	Args       []TypeID // includes implicit args (e.g. captured `this`)
	ReturnByPointer bool
}

func (Function) implType() {}
func (f Function) String() string {
	return fmt.Sprintf("fn(this=%d, args=%v) -> %d", f.This, f.Args, f.Return)
}

// equalFunction reports structural equality used for interning (spec.md
// §4.1: "two function types with equal (thisType, returnType,
// argument-list-with-implicit-args) share one type_id").
func equalFunction(a, b Function) bool {
	if a.This != b.This || a.Return != b.Return || a.ReturnByPointer != b.ReturnByPointer {
		return false
	}
	if len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	return true
}

// PropertyAccess is the access modifier on an Object property.
type PropertyAccess int

const (
	AccessPublic PropertyAccess = iota
	AccessPrivate
	AccessTrusted
)

// PropertyFlags describes extra bits on an object property.
type PropertyFlags int

const (
	PropNone PropertyFlags = 0
	// PropAccessor marks a property backed by get/set methods rather
	// than a storage offset.
	PropAccessor PropertyFlags = 1 << iota
	PropStatic
)

// Property is one ordered member of an Object type.
type Property struct {
	Name   string
	Type   TypeID
	Offset int // byte offset; meaningless when PropAccessor is set
	Access PropertyAccess
	Flags  PropertyFlags
	Getter FunctionID // 0 if none
	Setter FunctionID // 0 if none
}

// Object is a class/struct-shaped type: an ordered list of named
// properties plus the size/alignment that follow from them.
type Object struct {
	Name       string // "" for anonymous (structurally interned) objects
	Properties []Property
	Ctors      []FunctionID
	Dtor       FunctionID // 0 if trivially destructible
}

func (Object) implType() {}
func (o Object) String() string {
	if o.Name != "" {
		return o.Name
	}
	return fmt.Sprintf("anon{%d props}", len(o.Properties))
}

// propertiesEqual is used to structurally intern anonymous object types
// (spec.md §4.1: "two object types with identical property list (name,
// type, flags, order) share one type_id").
func propertiesEqual(a, b []Property) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Type != b[i].Type || a[i].Flags != b[i].Flags {
			return false
		}
	}
	return true
}

// Alias is a named wrapper around another type (e.g. `type ID = i32;`).
type Alias struct {
	Name string
	Of   TypeID
}

func (Alias) implType()       {}
func (a Alias) String() string { return a.Name }

// TemplateParam is one formal parameter of a template declaration.
type TemplateParam struct {
	Name string
}

// Template is an uninstantiated template: its AST plus the lexical
// capture context recorded at the declaration site (spec.md §4.3.5).
// The AST is kept as an opaque value (ast.Node) because pkg/types must
// not import pkg/ast (ast is a client of types, not a dependency).
type Template struct {
	Name    string
	Params  []TemplateParam
	Body    interface{}            // *ast.TypeDecl / *ast.ClassDecl / *ast.FuncDecl
	Context map[string]interface{} // template context: name -> descriptor, snapshot at declaration
}

func (Template) implType()       {}
func (t Template) String() string { return t.Name + "<...>" }

// Meta carries the size/alignment-relevant flags spec.md §3 requires on
// every type.
type Meta struct {
	Size                       int
	Align                      int
	IsPOD                      bool
	IsTriviallyConstructible   bool
	IsTriviallyCopyable        bool
	IsTriviallyDestructible    bool
	IsPrimitive                bool
	IsFloatingPoint            bool
	IsIntegral                 bool
	IsUnsigned                 bool
	IsFunction                 bool
	IsTemplate                 bool
	IsAlias                    bool
	IsHost                     bool
	IsAnonymous                bool
}

// Entry is a registry row: the type, its id, and its metadata.
type Entry struct {
	ID   TypeID
	Type Type
	Meta Meta
}
