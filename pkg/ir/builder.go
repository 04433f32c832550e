package ir

import "scriptc/pkg/types"

// CodeHolder is the linear, backpatchable instruction list a
// FunctionDef accumulates (spec.md §4.2). It is owned by exactly one
// FunctionDef; the Register Allocator and Bytecode Emitter both consume
// it read-mostly (the allocator rewrites Value.Reg in place, the
// emitter never mutates it).
type CodeHolder struct {
	Instructions []Instruction
	// labelTarget maps a Label to its instruction index once known;
	// -1 means "referenced but not yet placed" (a forward reference).
	labelTarget []int
}

// PlaceLabel returns the instruction index a label currently resolves
// to, or -1 if the label has been referenced but not yet placed by
// FunctionDef.PlaceLabel.
func (c *CodeHolder) PlaceLabel(l Label) int {
	if int(l) <= 0 || int(l) > len(c.labelTarget) {
		return -1
	}
	return c.labelTarget[l-1]
}

// FunctionDef is the in-function mutable IR builder of spec.md §4.2:
// virtual-register/stack/label allocators, the scope stack, the
// capture-offset map, and the instruction list under construction.
//
// Grounded on the teacher's pkg/rtlgen/regs.go fresh-register allocator
// (nextReg counter, var-to-register map) generalized with a stack-slot
// allocator and label allocator alongside the register one, since
// spec.md's FunctionDef owns all three (§4.2).
type FunctionDef struct {
	Name string

	code CodeHolder

	nextReg   Reg
	nextAlloc AllocID
	nextLabel Label

	// ThisType/ThisValue bind `this` for methods; ThisType == 0 for free
	// functions.
	ThisType  types.TypeID
	ThisValue Value

	ReturnType    types.TypeID
	ReturnInferred bool

	scopes []*Scope

	// captureOffsets maps a captured outer Value's stable key (its
	// virtual register or stack slot encoded as a string) to the byte
	// offset reserved for it in this function's own capture block
	// (spec.md §4.2 "capture(value)" / §4.3.4).
	captureOffsets map[string]int
	nextCaptureOff int

	// allocSizes records the byte size requested for each stack slot, so
	// the Bytecode Emitter can lay out the local-variable area without
	// re-deriving sizeof(T) from the type registry.
	allocSizes map[AllocID]int
}

// NewFunctionDef creates a FunctionDef with an empty outermost scope
// already pushed (every function body is itself a scope, per spec.md
// §3 "Scope").
func NewFunctionDef(name string) *FunctionDef {
	f := &FunctionDef{
		Name:           name,
		nextReg:        1,
		nextAlloc:      1,
		nextLabel:      1,
		captureOffsets: make(map[string]int),
		allocSizes:     make(map[AllocID]int),
	}
	f.PushScope()
	return f
}

// Code returns the CodeHolder under construction.
func (f *FunctionDef) Code() *CodeHolder { return &f.code }

// Val allocates a fresh virtual-register Value of type tp (spec.md
// §4.2 "val(tp)").
func (f *FunctionDef) Val(tp types.TypeID) Value {
	r := f.nextReg
	f.nextReg++
	return Value{Type: tp, Loc: LocRegister, Reg: r, Flags: FlagCanRead | FlagCanWrite}
}

// Imm wraps a pre-built immediate Value's type check; callers typically
// use ir.ImmInt/ImmFloat/ImmFunction/ImmType directly. Kept for parity
// with spec.md §4.2's "imm<T>(v)" contract as a single entry point.
func (f *FunctionDef) Imm(v Value) Value { return v }

// Stack allocates a stack slot of sizeof(tp) bytes, emits
// stack_allocate, and returns a pointer-to-tp Value. If scoped, the
// current scope takes ownership: its destructor (if tp is
// non-trivially-destructible) and stack_free are emitted on scope exit
// (spec.md §4.2 "stack(tp, scoped=true)").
func (f *FunctionDef) Stack(tp types.TypeID, size int, scoped bool) Value {
	id := f.nextAlloc
	f.nextAlloc++
	f.allocSizes[id] = size
	v := Value{Type: tp, Loc: LocStack, Alloc: id, Flags: FlagIsPointer | FlagCanRead | FlagCanWrite}
	f.Add(OpStackAllocate).Dest(v)
	if scoped {
		f.CurrentScope().pushAlloc(id, size, tp)
	}
	return v
}

// Add appends a new instruction of the given opcode and returns a
// fluent InstructionRef for attaching operands/labels (spec.md §4.2
// "add(opcode)"). Arity is enforced lazily as operands are attached.
func (f *FunctionDef) Add(op Opcode) InstructionRef {
	f.code.Instructions = append(f.code.Instructions, Instruction{Op: op})
	idx := len(f.code.Instructions) - 1
	return InstructionRef{holder: &f.code, index: idx}
}

// NewLabel allocates a fresh, unplaced label (spec.md §4.2 "label()").
func (f *FunctionDef) NewLabel() Label {
	l := f.nextLabel
	f.nextLabel++
	f.code.labelTarget = append(f.code.labelTarget, -1)
	return l
}

// PlaceLabel binds l to the current end of the instruction stream and
// emits an OpLabel marker instruction there, so later passes can find
// label positions by scanning the instruction list alone.
func (f *FunctionDef) PlaceLabel(l Label) {
	idx := len(f.code.Instructions)
	f.code.labelTarget[l-1] = idx
	f.Add(OpLabel).Label(l)
}

// --- Scopes ---

// stackOwn records one stack slot a Scope must destroy/free on exit.
type stackOwn struct {
	id   AllocID
	size int
	typ  types.TypeID
}

// Scope is one entry of spec.md §3's scope stack: the stack slots it
// owns (destroyed/freed LIFO on exit) and its named locals.
type Scope struct {
	owned  []stackOwn
	locals map[string]Value
}

func newScope() *Scope {
	return &Scope{locals: make(map[string]Value)}
}

func (s *Scope) pushAlloc(id AllocID, size int, tp types.TypeID) {
	s.owned = append(s.owned, stackOwn{id: id, size: size, typ: tp})
}

// Declare binds name to v in this scope.
func (s *Scope) Declare(name string, v Value) { s.locals[name] = v }

// Lookup finds name in exactly this scope (not enclosing ones — callers
// walk FunctionDef.scopes outward themselves, mirroring the teacher's
// parse_context.find_variable innermost-to-outermost frame walk).
func (s *Scope) Lookup(name string) (Value, bool) {
	v, ok := s.locals[name]
	return v, ok
}

// PushScope opens a new nested scope.
func (f *FunctionDef) PushScope() *Scope {
	s := newScope()
	f.scopes = append(f.scopes, s)
	return s
}

// CurrentScope returns the innermost open scope.
func (f *FunctionDef) CurrentScope() *Scope {
	return f.scopes[len(f.scopes)-1]
}

// Resolve walks the scope stack innermost-to-outermost looking up name,
// grounded on the teacher's parse_context.find_variable frame walk.
func (f *FunctionDef) Resolve(name string) (Value, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if v, ok := f.scopes[i].Lookup(name); ok {
			return v, true
		}
	}
	return Value{}, false
}

// DestructorEmitter is called once per owned stack slot, innermost
// slot first (LIFO), when PopScope needs to emit a destructor call for
// a non-trivially-destructible type. The Semantic Compiler supplies
// this (it alone knows how to call a destructor function), so pkg/ir
// stays ignorant of call-lowering details.
type DestructorEmitter func(f *FunctionDef, v Value, tp types.TypeID)

// PopScope closes the innermost scope: for each stack slot it owns,
// innermost-allocated first, invoke destroy (if the slot's type is
// non-trivially-destructible — the caller decides, by only passing
// slots that need it through destroy, or by making destroy a no-op for
// trivial types) then emit stack_free (spec.md §4.3.3, §3 invariant
// "every stack_allocate is balanced by exactly one stack_free").
func (f *FunctionDef) PopScope(destroy DestructorEmitter) {
	s := f.scopes[len(f.scopes)-1]
	for i := len(s.owned) - 1; i >= 0; i-- {
		own := s.owned[i]
		ptr := Value{Type: own.typ, Loc: LocStack, Alloc: own.id, Flags: FlagIsPointer}
		if destroy != nil {
			destroy(f, ptr, own.typ)
		}
		f.Add(OpStackFree).Op(ptr)
	}
	f.scopes = f.scopes[:len(f.scopes)-1]
}

// PromoteAlloc transfers ownership of a stack slot from the current
// (inner) scope to its parent, removing it from the inner scope's
// destructor list, used when a constructed value is returned out of the
// scope that built it (spec.md §4.2 "promoted out of its scope").
func (f *FunctionDef) PromoteAlloc(id AllocID) {
	inner := f.scopes[len(f.scopes)-1]
	if len(f.scopes) < 2 {
		return
	}
	outer := f.scopes[len(f.scopes)-2]
	for i, own := range inner.owned {
		if own.id == id {
			inner.owned = append(inner.owned[:i], inner.owned[i+1:]...)
			outer.owned = append(outer.owned, own)
			return
		}
	}
}

// AllScopesDestructors runs destroy top-to-bottom across every
// currently open scope in this function without popping them, used by
// `return` (spec.md §4.3.6: "runs all enclosing scopes' destructors
// from innermost outward; then emits ret").
func (f *FunctionDef) AllScopesDestructors(destroy DestructorEmitter) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		s := f.scopes[i]
		for j := len(s.owned) - 1; j >= 0; j-- {
			own := s.owned[j]
			ptr := Value{Type: own.typ, Loc: LocStack, Alloc: own.id, Flags: FlagIsPointer}
			if destroy != nil {
				destroy(f, ptr, own.typ)
			}
		}
	}
}

// --- Capture offsets (spec.md §4.2 "capture(value)" / §4.3.4) ---

func valueKey(v Value) string {
	switch v.Loc {
	case LocRegister:
		return "r" + itoa(int(v.Reg))
	case LocStack:
		return "s" + itoa(int(v.Alloc))
	case LocArgument:
		return "a" + itoa(v.ArgIndex)
	default:
		return "?"
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Capture reserves (or returns the existing) offset in this function's
// capture block for a captured outer value, sized by elemSize bytes.
func (f *FunctionDef) Capture(v Value, elemSize int) int {
	key := valueKey(v)
	if off, ok := f.captureOffsets[key]; ok {
		return off
	}
	off := f.nextCaptureOff
	f.captureOffsets[key] = off
	f.nextCaptureOff += elemSize
	return off
}

// CaptureSize returns the total size of this function's capture block
// so far.
func (f *FunctionDef) CaptureSize() int { return f.nextCaptureOff }

// AllocSize returns the byte size requested for stack slot id.
func (f *FunctionDef) AllocSize(id AllocID) int { return f.allocSizes[id] }

// AllocCount returns how many stack slots this function has allocated,
// used by the Bytecode Emitter to size its local-variable area.
func (f *FunctionDef) AllocCount() int { return len(f.allocSizes) }

// AllocSizes returns every (AllocID, size) pair recorded for this
// function's stack slots.
func (f *FunctionDef) AllocSizes() map[AllocID]int { return f.allocSizes }

// AllocCounter exposes this function's stack-slot id allocator so the
// Register Allocator can hand out spill-slot ids from the same
// namespace, with no risk of colliding with a slot the Semantic
// Compiler already allocated via Stack.
func (f *FunctionDef) AllocCounter() *AllocID { return &f.nextAlloc }

// RecordAllocSize lets the Register Allocator register the size of a
// spill slot it allocated through AllocCounter.
func (f *FunctionDef) RecordAllocSize(id AllocID, size int) { f.allocSizes[id] = size }
