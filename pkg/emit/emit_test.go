package emit

import (
	"testing"

	"scriptc/pkg/bytecode"
	"scriptc/pkg/ir"
	"scriptc/pkg/regalloc"
	"scriptc/pkg/types"
)

func TestEmitFunctionSimpleAddReturn(t *testing.T) {
	reg := types.New()
	i32 := reg.Primitive("i32")

	f := ir.NewFunctionDef("add")
	a := f.Val(i32)
	b := f.Val(i32)
	f.Add(ir.OpAdd).Dest(a).Op(ir.ImmInt(i32, 1)).Op(ir.ImmInt(i32, 2))
	f.Add(ir.OpAdd).Dest(b).Op(a).Op(ir.ImmInt(i32, 3))
	f.Add(ir.OpReturn).Op(b)

	alloc := regalloc.AllocateFunction(f)
	out, err := EmitFunction(f, alloc, reg)
	if err != nil {
		t.Fatalf("EmitFunction: %v", err)
	}
	if len(out.Code) == 0 {
		t.Fatal("expected non-empty instruction stream")
	}
	if out.Code[len(out.Code)-1].Op != bytecode.OpJmpR {
		t.Fatalf("expected the stream to end in the shared epilogue's jmpr, got %v", out.Code[len(out.Code)-1].Op)
	}
	if out.FrameSize%16 != 0 {
		t.Fatalf("frame size %d is not 16-byte aligned", out.FrameSize)
	}
	if !out.SourceMap.Covers(len(out.Code)) {
		t.Fatal("source map does not cover every emitted instruction")
	}
}

func TestEmitFunctionBranchPatchesBothTargets(t *testing.T) {
	reg := types.New()
	i32 := reg.Primitive("i32")
	boolT := reg.Primitive("bool")

	f := ir.NewFunctionDef("choose")
	cond := f.Val(boolT)
	result := f.Val(i32)
	thenL := f.NewLabel()
	elseL := f.NewLabel()
	endL := f.NewLabel()

	f.Add(ir.OpAssign).Dest(cond).Op(ir.ImmInt(boolT, 1))
	f.Add(ir.OpBranch).Op(cond).Label(thenL).ElseLabel(elseL)

	f.PlaceLabel(thenL)
	f.Add(ir.OpAssign).Dest(result).Op(ir.ImmInt(i32, 1))
	f.Add(ir.OpJump).Label(endL)

	f.PlaceLabel(elseL)
	f.Add(ir.OpAssign).Dest(result).Op(ir.ImmInt(i32, 0))

	f.PlaceLabel(endL)
	f.Add(ir.OpReturn).Op(result)

	alloc := regalloc.AllocateFunction(f)
	out, err := EmitFunction(f, alloc, reg)
	if err != nil {
		t.Fatalf("EmitFunction: %v (a failure here typically means a jump target label was never resolved)", err)
	}
	if !out.SourceMap.Covers(len(out.Code)) {
		t.Fatal("source map does not cover every emitted instruction")
	}
}
