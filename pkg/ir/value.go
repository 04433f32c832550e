// Package ir implements the in-function mutable IR: the instruction
// list, virtual-register/stack-slot/label allocators, and scope stack a
// FunctionDef owns while the Semantic Compiler lowers one function body
// (spec.md §4.2). The instruction and operand shapes are grounded on the
// teacher's pkg/rtl/ast.go: an Instruction sum type over Reg/Node
// integer newtypes, generalized here from RTL's fixed arithmetic-op
// operand shape to spec.md §3's Value location-tag sum type so one
// Instruction format covers loads, stores, calls, and SSA-phi joins.
package ir

import "scriptc/pkg/types"

// Reg is a virtual register id, monotonically allocated per function
// (spec.md §3: "virtual register id (integer ≥ 1)").
type Reg int

// AllocID identifies a stack slot allocated within a function.
type AllocID int

// Label identifies a backpatchable jump target within a CodeHolder.
type Label int

// LocationKind tags which of the six mutually-exclusive locations a
// Value lives in (spec.md §3).
type LocationKind int

const (
	LocNull LocationKind = iota
	LocImmediate
	LocRegister
	LocStack
	LocArgument
	LocModuleData
)

// ValueFlags are the boolean flags spec.md §3 attaches to every Value.
type ValueFlags int

const (
	FlagNone ValueFlags = 0
	FlagIsPointer ValueFlags = 1 << iota
	FlagIsFunction
	FlagIsType
	FlagIsModule
	FlagIsModuleData
	FlagCanRead
	FlagCanWrite
	FlagIsStatic
)

func (f ValueFlags) Has(bit ValueFlags) bool { return f&bit != 0 }

// Immediate holds the payload of an LocImmediate Value. Exactly one
// field is meaningful, selected by the owning Value's Type.
type Immediate struct {
	I64 int64
	F64 float64
	// Func/Type/Module hold a compile-only reference when the immediate
	// represents one of those rather than a numeric literal.
	Func   types.FunctionID
	TypeRef types.TypeID
	Module types.ModuleID
}

// Value is the compile-time descriptor of where a runtime value lives,
// per spec.md §3. Exactly one of the location fields is meaningful,
// selected by Loc.
type Value struct {
	Type  types.TypeID
	Flags ValueFlags
	Loc   LocationKind

	Imm      Immediate
	Reg      Reg
	Alloc    AllocID
	ArgIndex int
	Module   types.ModuleID
	Slot     int

	// SourcePtr: when set, this Value was loaded from memory and stores
	// through it write back to that memory (spec.md §3).
	SourcePtr *Value
	// StackRef ties this value's lifetime to a stack slot constructed
	// elsewhere (used when a constructor result is returned out of its
	// building scope).
	StackRef AllocID
}

// IsPointer reports whether v holds the address of a T (as opposed to
// being a T itself, for in-register primitives or on-stack aggregates).
func (v Value) IsPointer() bool { return v.Flags.Has(FlagIsPointer) }

// Null is the canonical invalid/absent Value.
var Null = Value{Loc: LocNull}

// ImmInt builds an immediate integer Value of the given type.
func ImmInt(t types.TypeID, v int64) Value {
	return Value{Type: t, Loc: LocImmediate, Imm: Immediate{I64: v}, Flags: FlagCanRead}
}

// ImmFloat builds an immediate float Value of the given type.
func ImmFloat(t types.TypeID, v float64) Value {
	return Value{Type: t, Loc: LocImmediate, Imm: Immediate{F64: v}, Flags: FlagCanRead}
}

// ImmFunction builds an immediate Value naming a function.
func ImmFunction(t types.TypeID, fn types.FunctionID) Value {
	return Value{Type: t, Loc: LocImmediate, Imm: Immediate{Func: fn}, Flags: FlagCanRead | FlagIsFunction}
}

// ImmType builds an immediate Value naming a type (for `typeinfo<T>`).
func ImmType(t types.TypeID, ref types.TypeID) Value {
	return Value{Type: t, Loc: LocImmediate, Imm: Immediate{TypeRef: ref}, Flags: FlagCanRead | FlagIsType}
}
