package emit

import (
	"fmt"
	"math"

	"scriptc/pkg/bytecode"
	"scriptc/pkg/ir"
)

func (c *context) isFP(v ir.Value) bool {
	e, ok := c.reg.Lookup(v.Type)
	return ok && e.Meta.IsFloatingPoint
}

func (c *context) isUnsigned(v ir.Value) bool {
	e, ok := c.reg.Lookup(v.Type)
	return ok && e.Meta.IsUnsigned
}

func (c *context) typeSize(v ir.Value) int {
	e, ok := c.reg.Lookup(v.Type)
	if !ok || e.Meta.Size == 0 {
		return 8
	}
	return e.Meta.Size
}

// loadOperand materializes v into a physical register, using scratch if
// v is an immediate, a spilled virtual register, or a stack-slot
// address, and returns the register actually holding the value.
func (c *context) loadOperand(v ir.Value, scratchIdx int) bytecode.Reg {
	switch v.Loc {
	case ir.LocImmediate:
		if v.Flags.Has(ir.FlagIsFunction) {
			scratch := c.gpScratch[scratchIdx]
			c.code = append(c.code, bytecode.Instr{Op: bytecode.OpLoadImm, Rd: scratch, Imm: int64(v.Imm.Func)})
			return scratch
		}
		if c.isFP(v) {
			scratch := c.gpScratch[scratchIdx]
			fscratch := c.fpScratch[scratchIdx]
			var bits int64
			if c.typeSize(v) == 4 {
				bits = int64(math.Float32bits(float32(v.Imm.F64)))
			} else {
				bits = int64(math.Float64bits(v.Imm.F64))
			}
			c.code = append(c.code, bytecode.Instr{Op: bytecode.OpLoadImm, Rd: scratch, Imm: bits})
			c.code = append(c.code, bytecode.Instr{Op: bytecode.OpMoveToFP, Rd: fscratch, Rs1: scratch})
			return fscratch
		}
		scratch := c.gpScratch[scratchIdx]
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpLoadImm, Rd: scratch, Imm: v.Imm.I64})
		return scratch

	case ir.LocRegister:
		a, ok := c.alloc.Assignments[v.Reg]
		if !ok {
			return c.gpScratch[scratchIdx]
		}
		if !a.Spilled {
			return a.Reg
		}
		off, _ := c.allocOffsets[a.Alloc]
		if c.isFP(v) {
			scratch := c.fpScratch[scratchIdx]
			c.code = append(c.code, bytecode.Instr{Op: bytecode.OpLoad64, Rd: scratch, Rs1: bytecode.RSP, Imm: int64(off), Width: 8})
			return scratch
		}
		scratch := c.gpScratch[scratchIdx]
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpLoad64, Rd: scratch, Rs1: bytecode.RSP, Imm: int64(off), Width: 8})
		return scratch

	case ir.LocStack:
		scratch := c.gpScratch[scratchIdx]
		off := c.allocOffsets[v.Alloc]
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpAddI, Rd: scratch, Rs1: bytecode.RSP, Imm: int64(off)})
		return scratch

	case ir.LocArgument:
		if c.isFP(v) && v.ArgIndex < len(bytecode.FPArgRegs) {
			return bytecode.FPArgRegs[v.ArgIndex]
		}
		if v.ArgIndex < len(bytecode.GPArgRegs) {
			return bytecode.GPArgRegs[v.ArgIndex]
		}
		return c.gpScratch[scratchIdx]

	default:
		return c.gpScratch[scratchIdx]
	}
}

// storeResult writes srcReg into dest's final location: its assigned
// physical register directly, or a spill slot / stack address for
// spilled or memory-resident destinations.
func (c *context) storeResult(dest ir.Value, srcReg bytecode.Reg) {
	switch dest.Loc {
	case ir.LocRegister:
		a, ok := c.alloc.Assignments[dest.Reg]
		if !ok {
			return
		}
		if a.Spilled {
			off := c.allocOffsets[a.Alloc]
			c.code = append(c.code, bytecode.Instr{Op: bytecode.OpStore64, Rs1: bytecode.RSP, Rs2: srcReg, Imm: int64(off), Width: 8})
			return
		}
		if a.Reg != srcReg {
			c.code = append(c.code, bytecode.Instr{Op: bytecode.OpMove, Rd: a.Reg, Rs1: srcReg})
		}
	case ir.LocStack:
		off := c.allocOffsets[dest.Alloc]
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpStore64, Rs1: bytecode.RSP, Rs2: srcReg, Imm: int64(off), Width: 8})
	}
}

var gpArith = map[ir.Opcode]bytecode.Op{
	ir.OpAdd: bytecode.OpAdd,
	ir.OpSub: bytecode.OpSub,
	ir.OpMul: bytecode.OpMul,
	ir.OpAnd: bytecode.OpAnd,
	ir.OpOr:  bytecode.OpOr,
	ir.OpXor: bytecode.OpXor,
	ir.OpShl: bytecode.OpShl,
}

var fpArith = map[ir.Opcode]bytecode.Op{
	ir.OpAdd: bytecode.OpFAdd,
	ir.OpSub: bytecode.OpFSub,
	ir.OpMul: bytecode.OpFMul,
	ir.OpDiv: bytecode.OpFDiv,
}

var vecArith = map[ir.Opcode]bytecode.Op{
	ir.OpVAdd:   bytecode.OpVAdd,
	ir.OpVSub:   bytecode.OpVSub,
	ir.OpVMul:   bytecode.OpVMul,
	ir.OpVDiv:   bytecode.OpVDiv,
	ir.OpVMod:   bytecode.OpVMod,
	ir.OpVNeg:   bytecode.OpVNeg,
	ir.OpVDot:   bytecode.OpVDot,
	ir.OpVCross: bytecode.OpVCross,
	ir.OpVMag:   bytecode.OpVMag,
	ir.OpVMagSq: bytecode.OpVMagSq,
	ir.OpVNorm:  bytecode.OpVNorm,
}

func widthFor(size int) int {
	switch {
	case size <= 1:
		return 1
	case size <= 2:
		return 2
	case size <= 4:
		return 4
	default:
		return 8
	}
}

func loadOpForWidth(w int) bytecode.Op {
	switch w {
	case 1:
		return bytecode.OpLoad8
	case 2:
		return bytecode.OpLoad16
	case 4:
		return bytecode.OpLoad32
	default:
		return bytecode.OpLoad64
	}
}

func storeOpForWidth(w int) bytecode.Op {
	switch w {
	case 1:
		return bytecode.OpStore8
	case 2:
		return bytecode.OpStore16
	case 4:
		return bytecode.OpStore32
	default:
		return bytecode.OpStore64
	}
}

// translate lowers one IR instruction, appending bytecode.Instr values
// to c.code. idx is the instruction's index in its function, used only
// for diagnostics.
func (c *context) translate(instr ir.Instruction, idx int) error {
	switch instr.Op {
	case ir.OpNop:
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpNop})

	case ir.OpStackAllocate, ir.OpStackFree:
		// No bytecode: the frame is a single fixed-size block computed
		// up front by computeLayout; stack_allocate/stack_free only
		// matter to the lifetime bookkeeping the Semantic Compiler and
		// Register Allocator already consumed.

	case ir.OpStackPtr:
		off := c.allocOffsets[instr.Dest.Alloc]
		dst := c.physDest(instr.Dest)
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpAddI, Rd: dst, Rs1: bytecode.RSP, Imm: int64(off)})
		c.storeResult(instr.Dest, dst)

	case ir.OpAssign:
		src := c.loadOperand(instr.Operands[0], 0)
		c.storeResult(instr.Dest, src)

	case ir.OpReserve:
		// Predeclares a join register; nothing to emit until a
		// predecessor's Resolve writes into it.

	case ir.OpResolve:
		src := c.loadOperand(instr.Operands[0], 0)
		c.storeResult(instr.Dest, src)

	case ir.OpLoad:
		ptr := c.loadOperand(instr.Operands[0], 0)
		w := widthFor(c.typeSize(instr.Dest))
		dst := c.physDest(instr.Dest)
		c.code = append(c.code, bytecode.Instr{Op: loadOpForWidth(w), Rd: dst, Rs1: ptr, Width: w})
		c.storeResult(instr.Dest, dst)

	case ir.OpStore:
		ptr := c.loadOperand(instr.Operands[0], 0)
		val := c.loadOperand(instr.Operands[1], 1)
		w := widthFor(c.typeSize(instr.Operands[1]))
		c.code = append(c.code, bytecode.Instr{Op: storeOpForWidth(w), Rs1: ptr, Rs2: val, Width: w})

	case ir.OpNeg, ir.OpNot:
		src := c.loadOperand(instr.Operands[0], 0)
		dst := c.physDest(instr.Dest)
		op := bytecode.OpNeg
		if instr.Op == ir.OpNot {
			op = bytecode.OpNot
		}
		if instr.Kind == ir.KindFloat32 || instr.Kind == ir.KindFloat64 {
			op = bytecode.OpFNeg
		}
		c.code = append(c.code, bytecode.Instr{Op: op, Rd: dst, Rs1: src})
		c.storeResult(instr.Dest, dst)

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl:
		return c.translateBinaryArith(instr)

	case ir.OpDiv:
		return c.translateDivMod(instr, true)
	case ir.OpMod:
		return c.translateDivMod(instr, false)
	case ir.OpShr:
		lhs := c.loadOperand(instr.Operands[0], 0)
		rhs := c.loadOperand(instr.Operands[1], 1)
		dst := c.physDest(instr.Dest)
		op := bytecode.OpShrS
		if instr.Kind == ir.KindUnsigned {
			op = bytecode.OpShrU
		}
		c.code = append(c.code, bytecode.Instr{Op: op, Rd: dst, Rs1: lhs, Rs2: rhs})
		c.storeResult(instr.Dest, dst)

	// OpVAdd/Sub/Mul/Div/Mod/Cross produce a vector-shaped result: Dest
	// is always a stack-allocated aggregate (the Semantic Compiler never
	// lets a vector result live in a virtual register, since the VM's
	// register file holds one scalar per slot), so Rd is the
	// destination's address, not a value register the VM writes a
	// scalar into. OpVDot returns a scalar and uses the ordinary
	// physDest/storeResult scalar path below.
	case ir.OpVAdd, ir.OpVSub, ir.OpVMul, ir.OpVDiv, ir.OpVMod, ir.OpVCross:
		lhs := c.loadOperand(instr.Operands[0], 0)
		rhs := c.loadOperand(instr.Operands[1], 1)
		dst := c.vecDestAddr(instr.Dest)
		c.code = append(c.code, bytecode.Instr{Op: vecArith[instr.Op], Rd: dst, Rs1: lhs, Rs2: rhs, VecLanes: instr.VecLanes, F64: instr.Kind == ir.KindFloat64})

	case ir.OpVDot:
		lhs := c.loadOperand(instr.Operands[0], 0)
		rhs := c.loadOperand(instr.Operands[1], 1)
		dst := c.physDest(instr.Dest)
		c.code = append(c.code, bytecode.Instr{Op: vecArith[instr.Op], Rd: dst, Rs1: lhs, Rs2: rhs, VecLanes: instr.VecLanes, F64: instr.Kind == ir.KindFloat64})
		c.storeResult(instr.Dest, dst)

	// OpVNeg/OpVNorm likewise produce a vector result (address Dest);
	// OpVMag/OpVMagSq produce a scalar (ordinary Dest).
	case ir.OpVNeg, ir.OpVNorm:
		src := c.loadOperand(instr.Operands[0], 0)
		dst := c.vecDestAddr(instr.Dest)
		c.code = append(c.code, bytecode.Instr{Op: vecArith[instr.Op], Rd: dst, Rs1: src, VecLanes: instr.VecLanes, F64: instr.Kind == ir.KindFloat64})

	case ir.OpVMag, ir.OpVMagSq:
		src := c.loadOperand(instr.Operands[0], 0)
		dst := c.physDest(instr.Dest)
		c.code = append(c.code, bytecode.Instr{Op: vecArith[instr.Op], Rd: dst, Rs1: src, VecLanes: instr.VecLanes, F64: instr.Kind == ir.KindFloat64})
		c.storeResult(instr.Dest, dst)

	case ir.OpCmp:
		return c.translateCmp(instr)

	case ir.OpConvert:
		return c.translateConvert(instr)

	case ir.OpJump:
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpJmp})
		c.resolveJumpTarget(len(c.code)-1, instr.Label)

	case ir.OpBranch:
		cond := c.loadOperand(instr.Operands[0], 0)
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpBneqz, Rs1: cond})
		c.resolveJumpTarget(len(c.code)-1, instr.Label)
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpJmp})
		c.resolveJumpTarget(len(c.code)-1, instr.ElseLabel)

	case ir.OpParam:
		return c.translateParam(instr)

	case ir.OpCall:
		return c.translateCall(instr)

	case ir.OpReturn:
		if instr.NumOps > 0 {
			v := instr.Operands[0]
			src := c.loadOperand(v, 0)
			ret := bytecode.RA0
			if c.isFP(v) {
				ret = bytecode.RFA0
			}
			if src != ret {
				c.code = append(c.code, bytecode.Instr{Op: bytecode.OpMove, Rd: ret, Rs1: src})
			}
		}
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpJmp})
		c.returnJumps = append(c.returnJumps, len(c.code)-1)

	default:
		return fmt.Errorf("emit: unsupported opcode %v at instruction %d", instr.Op, idx)
	}
	return nil
}

// physDest returns the physical register the emitter should compute
// instr.Dest's value into directly: the assigned non-spilled register,
// or a scratch register when Dest is spilled (storeResult then spills
// it to its slot).
func (c *context) physDest(dest ir.Value) bytecode.Reg {
	if dest.Loc == ir.LocRegister {
		if a, ok := c.alloc.Assignments[dest.Reg]; ok && !a.Spilled {
			return a.Reg
		}
	}
	if c.isFP(dest) {
		return c.fpScratch[0]
	}
	return c.gpScratch[0]
}

// vecDestAddr computes the destination address for a vector-aggregate-
// producing op (OpVAdd/Sub/Mul/Div/Mod/Cross/Neg/Norm). Dest must be a
// stack-allocated aggregate (Loc == LocStack, guaranteed by
// pkg/semantic's vector lowering); RV2 is used rather than the shared
// gpScratch pair since a vector op's own lhs/rhs operands may already
// occupy those (an in-place `v = v.add(v)` lowers both operands and the
// destination from the same stack slot family).
func (c *context) vecDestAddr(dest ir.Value) bytecode.Reg {
	if dest.Loc != ir.LocStack {
		return c.physDest(dest)
	}
	off := c.allocOffsets[dest.Alloc]
	c.code = append(c.code, bytecode.Instr{Op: bytecode.OpAddI, Rd: bytecode.RV2, Rs1: bytecode.RSP, Imm: int64(off)})
	return bytecode.RV2
}

func (c *context) translateBinaryArith(instr ir.Instruction) error {
	lhs := c.loadOperand(instr.Operands[0], 0)
	rhs := c.loadOperand(instr.Operands[1], 1)
	dst := c.physDest(instr.Dest)
	var op bytecode.Op
	if instr.Kind == ir.KindFloat32 || instr.Kind == ir.KindFloat64 {
		o, ok := fpArith[instr.Op]
		if !ok {
			return fmt.Errorf("emit: opcode %v has no floating-point form", instr.Op)
		}
		op = o
	} else {
		o, ok := gpArith[instr.Op]
		if !ok {
			return fmt.Errorf("emit: opcode %v has no integer form", instr.Op)
		}
		op = o
	}
	c.code = append(c.code, bytecode.Instr{Op: op, Rd: dst, Rs1: lhs, Rs2: rhs, F64: instr.Kind == ir.KindFloat64})
	c.storeResult(instr.Dest, dst)
	return nil
}

func (c *context) translateDivMod(instr ir.Instruction, isDiv bool) error {
	lhs := c.loadOperand(instr.Operands[0], 0)
	rhs := c.loadOperand(instr.Operands[1], 1)
	dst := c.physDest(instr.Dest)
	var op bytecode.Op
	switch {
	case instr.Kind == ir.KindFloat32 || instr.Kind == ir.KindFloat64:
		if !isDiv {
			return fmt.Errorf("emit: floating-point mod has no bytecode form")
		}
		op = bytecode.OpFDiv
	case isDiv && instr.Kind == ir.KindUnsigned:
		op = bytecode.OpDivU
	case isDiv:
		op = bytecode.OpDivS
	case instr.Kind == ir.KindUnsigned:
		op = bytecode.OpModU
	default:
		op = bytecode.OpModS
	}
	c.code = append(c.code, bytecode.Instr{Op: op, Rd: dst, Rs1: lhs, Rs2: rhs})
	c.storeResult(instr.Dest, dst)
	return nil
}

func (c *context) translateCmp(instr ir.Instruction) error {
	lhs := instr.Operands[0]
	rhs := instr.Operands[1]
	cond := instr.Cond
	// The ISA has no Gt/Ge comparator; Gt(a,b) is Lt(b,a) and
	// Ge(a,b) is Le(b,a).
	if cond == ir.CmpGt {
		lhs, rhs = rhs, lhs
		cond = ir.CmpLt
	} else if cond == ir.CmpGe {
		lhs, rhs = rhs, lhs
		cond = ir.CmpLe
	}
	a := c.loadOperand(lhs, 0)
	b := c.loadOperand(rhs, 1)
	dst := c.physDest(instr.Dest)

	fp := instr.Kind == ir.KindFloat32 || instr.Kind == ir.KindFloat64
	unsigned := instr.Kind == ir.KindUnsigned
	var op bytecode.Op
	switch {
	case fp && cond == ir.CmpEq:
		op = bytecode.OpFCmpEq
	case fp && cond == ir.CmpNe:
		op = bytecode.OpFCmpNe
	case fp && cond == ir.CmpLt:
		op = bytecode.OpFCmpLt
	case fp && cond == ir.CmpLe:
		op = bytecode.OpFCmpLe
	case cond == ir.CmpEq:
		op = bytecode.OpCmpEq
	case cond == ir.CmpNe:
		op = bytecode.OpCmpNe
	case cond == ir.CmpLt && unsigned:
		op = bytecode.OpCmpLtU
	case cond == ir.CmpLt:
		op = bytecode.OpCmpLtS
	case cond == ir.CmpLe && unsigned:
		op = bytecode.OpCmpLeU
	case cond == ir.CmpLe:
		op = bytecode.OpCmpLeS
	default:
		return fmt.Errorf("emit: unsupported comparison predicate %v", instr.Cond)
	}
	c.code = append(c.code, bytecode.Instr{Op: op, Rd: dst, Rs1: a, Rs2: b})
	c.storeResult(instr.Dest, dst)
	return nil
}

func numKind(fp, unsigned, is64 bool) bytecode.NumKind {
	switch {
	case fp && is64:
		return bytecode.KindD
	case fp:
		return bytecode.KindF
	case unsigned:
		return bytecode.KindU
	default:
		return bytecode.KindI
	}
}

func (c *context) translateConvert(instr ir.Instruction) error {
	src := instr.Operands[0]
	srcReg := c.loadOperand(src, 0)
	dst := c.physDest(instr.Dest)
	from := numKind(c.isFP(src), c.isUnsigned(src), c.typeSize(src) == 8)
	to := numKind(instr.Kind == ir.KindFloat32 || instr.Kind == ir.KindFloat64, instr.Kind == ir.KindUnsigned, instr.Kind == ir.KindFloat64 || c.typeSize(instr.Dest) == 8)
	c.code = append(c.code, bytecode.Instr{Op: bytecode.OpConvert, Rd: dst, Rs1: srcReg, CvtFrom: from, CvtTo: to})
	c.storeResult(instr.Dest, dst)
	return nil
}

func (c *context) translateParam(instr ir.Instruction) error {
	v := instr.Operands[0]
	src := c.loadOperand(v, 0)
	var dstReg bytecode.Reg
	if c.isFP(v) {
		if c.fpParamIdx >= len(bytecode.FPArgRegs) {
			return fmt.Errorf("emit: too many floating-point call arguments")
		}
		dstReg = bytecode.FPArgRegs[c.fpParamIdx]
		c.fpParamIdx++
	} else {
		if c.gpParamIdx >= len(bytecode.GPArgRegs) {
			return fmt.Errorf("emit: too many integer/pointer call arguments")
		}
		dstReg = bytecode.GPArgRegs[c.gpParamIdx]
		c.gpParamIdx++
	}
	if dstReg != src {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpMove, Rd: dstReg, Rs1: src})
	}
	return nil
}

func (c *context) translateCall(instr ir.Instruction) error {
	callee := instr.Operands[0]
	if callee.Loc == ir.LocImmediate && callee.Flags.Has(ir.FlagIsFunction) {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpJal, FuncID: int(callee.Imm.Func)})
	} else {
		target := c.loadOperand(callee, 1)
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpJalR, Rs1: target})
	}
	c.gpParamIdx = 0
	c.fpParamIdx = 0

	if dest, _, _ := ir.Meta(instr.Op); dest >= 0 && instr.Dest.Loc != ir.LocNull {
		ret := bytecode.RA0
		if c.isFP(instr.Dest) {
			ret = bytecode.RFA0
		}
		c.storeResult(instr.Dest, ret)
	}
	return nil
}

func (c *context) resolveJumpTarget(outIndex int, target ir.Label) {
	if pos, ok := c.labelOut[target]; ok {
		c.code[outIndex].Imm = int64(pos)
		return
	}
	c.pending = append(c.pending, pendingJump{outIndex: outIndex, target: target})
}
