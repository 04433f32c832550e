package ir

import (
	"testing"

	"scriptc/pkg/types"
)

func TestValAllocatesMonotonicRegisters(t *testing.T) {
	f := NewFunctionDef("f")
	i32 := types.TypeID(1)
	a := f.Val(i32)
	b := f.Val(i32)
	if a.Reg == b.Reg {
		t.Fatalf("Val returned the same register twice: %d", a.Reg)
	}
	if a.Reg != 1 || b.Reg != 2 {
		t.Fatalf("got regs %d, %d; want 1, 2", a.Reg, b.Reg)
	}
}

func TestAddEnforcesArity(t *testing.T) {
	f := NewFunctionDef("f")
	i32 := types.TypeID(1)
	a, b := f.Val(i32), f.Val(i32)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic adding a third operand to a 2-ary opcode")
		}
	}()
	f.Add(OpAdd).Op(a).Op(b).Op(a)
}

func TestScopeStackIsLIFO(t *testing.T) {
	f := NewFunctionDef("f")
	i32 := types.TypeID(1)

	f.Stack(i32, 4, true)
	f.PushScope()
	inner := f.Stack(i32, 4, true)
	var destroyed []AllocID
	f.PopScope(func(fd *FunctionDef, v Value, tp types.TypeID) {
		destroyed = append(destroyed, v.Alloc)
	})
	if len(destroyed) != 1 || destroyed[0] != inner.Alloc {
		t.Fatalf("expected destroy callback for inner alloc %d only, got %v", inner.Alloc, destroyed)
	}
	// popping the inner scope frees only the inner allocation; the outer
	// one stays owned by the still-open outer scope.
	var freedOrder []AllocID
	for _, instr := range f.code.Instructions {
		if instr.Op == OpStackFree {
			freedOrder = append(freedOrder, instr.Operands[0].Alloc)
		}
	}
	if len(freedOrder) != 1 || freedOrder[0] != inner.Alloc {
		t.Fatalf("expected inner alloc %d freed first, got %v", inner.Alloc, freedOrder)
	}
}

func TestResolveWalksScopesInnerToOuter(t *testing.T) {
	f := NewFunctionDef("f")
	i32 := types.TypeID(1)
	outer := f.Val(i32)
	f.CurrentScope().Declare("x", outer)

	f.PushScope()
	inner := f.Val(i32)
	f.CurrentScope().Declare("x", inner)

	got, ok := f.Resolve("x")
	if !ok || got.Reg != inner.Reg {
		t.Fatalf("Resolve should find innermost x=%d, got %v (ok=%v)", inner.Reg, got, ok)
	}

	f.PopScope(nil)
	got, ok = f.Resolve("x")
	if !ok || got.Reg != outer.Reg {
		t.Fatalf("after popping inner scope, Resolve should find outer x=%d, got %v", outer.Reg, got)
	}
}

func TestCaptureIsIdempotentPerValue(t *testing.T) {
	f := NewFunctionDef("f")
	i32 := types.TypeID(1)
	v := f.Val(i32)

	off1 := f.Capture(v, 4)
	off2 := f.Capture(v, 4)
	if off1 != off2 {
		t.Fatalf("capturing the same value twice gave different offsets: %d vs %d", off1, off2)
	}

	other := f.Val(i32)
	off3 := f.Capture(other, 4)
	if off3 == off1 {
		t.Fatalf("distinct captured values got the same offset")
	}
}

func TestLabelPlacement(t *testing.T) {
	f := NewFunctionDef("f")
	l := f.NewLabel()
	if f.Code().PlaceLabel(l) != -1 {
		t.Fatal("unplaced label should resolve to -1")
	}
	f.Add(OpNop)
	f.PlaceLabel(l)
	if idx := f.Code().PlaceLabel(l); idx != 1 {
		t.Fatalf("label placed at wrong index: got %d, want 1", idx)
	}
}
