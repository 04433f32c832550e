package regalloc

import (
	"testing"

	"scriptc/pkg/bytecode"
	"scriptc/pkg/ir"
	"scriptc/pkg/types"
)

func buildLinear(intType types.TypeID) *ir.FunctionDef {
	f := ir.NewFunctionDef("f")
	a := f.Val(intType)
	b := f.Val(intType)
	f.Add(ir.OpAdd).Dest(a).Op(ir.ImmInt(intType, 1)).Op(ir.ImmInt(intType, 2))
	f.Add(ir.OpAdd).Dest(b).Op(a).Op(ir.ImmInt(intType, 3))
	f.Add(ir.OpReturn).Op(b)
	return f
}

func TestComputeLiveRangesSimple(t *testing.T) {
	f := buildLinear(1)
	ranges := computeLiveRanges(f.Code())
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	byReg := make(map[ir.Reg]Range)
	for _, r := range ranges {
		byReg[r.Reg] = r
	}
	a, ok := byReg[1]
	if !ok {
		t.Fatal("missing range for register 1")
	}
	if a.Start != 0 || a.End != 1 {
		t.Fatalf("a: got [%d,%d], want [0,1]", a.Start, a.End)
	}
	b, ok := byReg[2]
	if !ok {
		t.Fatal("missing range for register 2")
	}
	if b.Start != 1 || b.End != 2 {
		t.Fatalf("b: got [%d,%d], want [1,2]", b.Start, b.End)
	}
}

func TestComputeLiveRangesBackwardJumpExtends(t *testing.T) {
	f := ir.NewFunctionDef("loop")
	loopTop := f.NewLabel()
	counter := f.Val(1)
	f.Add(ir.OpAssign).Dest(counter).Op(ir.ImmInt(1, 0))
	f.PlaceLabel(loopTop)
	f.Add(ir.OpAdd).Dest(counter).Op(counter).Op(ir.ImmInt(1, 1))
	f.Add(ir.OpJump).Label(loopTop)

	ranges := computeLiveRanges(f.Code())
	var counterRange Range
	for _, r := range ranges {
		if r.Reg == counter.Reg {
			counterRange = r
		}
	}
	jumpIdx := len(f.Code().Instructions) - 1
	if counterRange.End != jumpIdx {
		t.Fatalf("counter range end = %d, want %d (extended across back-edge)", counterRange.End, jumpIdx)
	}
}

func TestAllocateFunctionAssignsDistinctRegisters(t *testing.T) {
	f := buildLinear(1)
	result := AllocateFunction(f)

	if len(result.Assignments) != 2 {
		t.Fatalf("got %d assignments, want 2", len(result.Assignments))
	}
	a := result.Assignments[1]
	b := result.Assignments[2]
	if a.Spilled || b.Spilled {
		t.Fatalf("expected no spills for 2 short-lived regs with 8 saved regs available, got a.Spilled=%v b.Spilled=%v", a.Spilled, b.Spilled)
	}
	if a.Reg == b.Reg {
		t.Fatalf("overlapping ranges assigned the same physical register %v", a.Reg)
	}
}

func TestAllocateFunctionSpillsWhenPoolExhausted(t *testing.T) {
	f := ir.NewFunctionDef("many")
	var intType types.TypeID = 1
	vals := make([]ir.Value, 0, 9)
	for i := 0; i < 9; i++ {
		v := f.Val(intType)
		f.Add(ir.OpAssign).Dest(v).Op(ir.ImmInt(intType, int64(i)))
		vals = append(vals, v)
	}
	sum := f.Val(intType)
	instr := f.Add(ir.OpAdd).Dest(sum)
	instr.Op(vals[0])
	instr.Op(vals[len(vals)-1])
	for _, v := range vals {
		f.Add(ir.OpReturn).Op(v)
	}

	result := AllocateFunction(f)

	spilled := 0
	for _, a := range result.Assignments {
		if a.Spilled {
			spilled++
		}
	}
	if spilled == 0 {
		t.Fatal("expected at least one spill with 9 simultaneously-live GP registers and only 8 saved slots")
	}
	if result.SpillBytes != spilled*8 {
		t.Fatalf("SpillBytes = %d, want %d", result.SpillBytes, spilled*8)
	}
}

func TestAllocateFunctionSkipsNonRegisterValues(t *testing.T) {
	f := ir.NewFunctionDef("imm_only")
	f.Add(ir.OpReturn).Op(ir.ImmInt(1, 42))
	result := AllocateFunction(f)
	if len(result.Assignments) != 0 {
		t.Fatalf("got %d assignments for a function with no virtual registers, want 0", len(result.Assignments))
	}
}

func TestFPValuesUseFPPool(t *testing.T) {
	f := ir.NewFunctionDef("fp")
	floatType := types.TypeID(1)
	v := f.Val(floatType)
	instr := f.Add(ir.OpAdd).Dest(v).NumKind(ir.KindFloat64)
	instr.Op(ir.ImmFloat(floatType, 1.5))
	instr.Op(ir.ImmFloat(floatType, 2.5))
	f.Add(ir.OpReturn).Op(v)

	result := AllocateFunction(f)
	a := result.Assignments[v.Reg]
	if a.Spilled {
		t.Fatal("expected no spill for a single FP value")
	}
	if !a.Reg.IsFP() {
		t.Fatalf("got register %v, want one from the FP bank", a.Reg)
	}
	_ = bytecode.RF0
}
