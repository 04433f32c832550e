// Package bytecode defines the VM register model and instruction
// format of spec.md §4.5/§6.3: the target ISA the Bytecode Emitter
// lowers IR into and the VM fetches and executes.
//
// Grounded on the teacher's pkg/mach (near-assembly IR with concrete
// register names and a fixed instruction format) and pkg/asm/ast.go
// (the final emitted instruction shape): a small closed register-name
// enum plus a fixed-arity Instruction struct, generalized here from
// ARM64's GP/FP split to spec.md §4.5's zero/sp/ra/argument/saved/
// volatile-scratch register bank.
package bytecode

import "fmt"

// Reg names one physical register in the VM's fixed register bank
// (spec.md §4.5).
type Reg int

const (
	RZero Reg = iota // always reads as zero

	RSP // stack pointer
	RRA // return address

	// Argument registers, GP. Volatile.
	RA0
	RA1
	RA2
	RA3
	RA4
	RA5
	RA6
	RA7

	// Argument registers, FP. Volatile.
	RFA0
	RFA1
	RFA2
	RFA3
	RFA4
	RFA5
	RFA6
	RFA7

	// Saved (non-volatile, callee-preserved) GP registers.
	RS0
	RS1
	RS2
	RS3
	RS4
	RS5
	RS6
	RS7

	// Saved (non-volatile) FP registers.
	RF0
	RF1
	RF2
	RF3
	RF4
	RF5
	RF6
	RF7

	// Volatile scratch, used by the emitter for spill staging and
	// materializing immediates the ISA has no immediate form for.
	RV0
	RV1
	RV2
	RV3
	RVF0
	RVF1
	RVF2
	RVF3

	regCount
)

var regNames = [...]string{
	"zero", "sp", "ra",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"f0", "f1", "f2", "f3", "f4", "f5", "f6", "f7",
	"v0", "v1", "v2", "v3", "vf0", "vf1", "vf2", "vf3",
}

func (r Reg) String() string {
	if int(r) >= 0 && int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("r?%d", int(r))
}

// IsFP reports whether r belongs to the floating-point bank.
func (r Reg) IsFP() bool {
	switch {
	case r >= RFA0 && r <= RFA7:
		return true
	case r >= RF0 && r <= RF7:
		return true
	case r == RVF0 || r == RVF1 || r == RVF2 || r == RVF3:
		return true
	}
	return false
}

// IsNonVolatile reports whether r is callee-preserved (must be saved in
// the prologue if written, restored in the epilogue).
func (r Reg) IsNonVolatile() bool {
	return (r >= RS0 && r <= RS7) || (r >= RF0 && r <= RF7)
}

// GPArgRegs and FPArgRegs list the argument-passing registers in order
// (spec.md §4.5: "integers/pointers fill a0..a7 in order; floats fill
// fa0..fa7").
var GPArgRegs = []Reg{RA0, RA1, RA2, RA3, RA4, RA5, RA6, RA7}
var FPArgRegs = []Reg{RFA0, RFA1, RFA2, RFA3, RFA4, RFA5, RFA6, RFA7}

// GPSavedRegs and FPSavedRegs list the non-volatile pool the register
// allocator draws from; argument registers are not part of that pool.
var GPSavedRegs = []Reg{RS0, RS1, RS2, RS3, RS4, RS5, RS6, RS7}
var FPSavedRegs = []Reg{RF0, RF1, RF2, RF3, RF4, RF5, RF6, RF7}

// Op is a VM instruction opcode (spec.md §4.6).
type Op int

const (
	OpTerm Op = iota
	OpNop

	// GP arithmetic, signed and unsigned, register and immediate forms.
	OpAdd
	OpAddI
	OpSub
	OpSubI
	OpMul
	OpMulI
	OpDivS
	OpDivU
	OpModS
	OpModU
	OpAnd
	OpAndI
	OpOr
	OpOrI
	OpXor
	OpXorI
	OpShl
	OpShlI
	OpShrS
	OpShrU
	OpNeg
	OpNot

	// GP compares: dest = (a CMP b) ? 1 : 0.
	OpCmpEq
	OpCmpNe
	OpCmpLtS
	OpCmpLtU
	OpCmpLeS
	OpCmpLeU

	// FP arithmetic (f32/f64 selected by Instr.F64).
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFNeg
	OpFCmpEq
	OpFCmpNe
	OpFCmpLt
	OpFCmpLe
	OpMoveToFP  // mtfp: bit-preserving GP -> FP
	OpMoveFromFP // mffp: bit-preserving FP -> GP

	// Conversions: Cvt{Src}{Dst} selected by Instr.CvtFrom/CvtTo.
	OpConvert

	// Vector ops (2/3/4 lanes of f32/f64), lane count + width in Instr.VecLanes/F64.
	OpVSet
	OpVAdd
	OpVSub
	OpVMul
	OpVDiv
	OpVMod
	OpVNeg
	OpVDot
	OpVMag
	OpVMagSq
	OpVNorm
	OpVCross

	// Memory.
	OpLoad8
	OpLoad16
	OpLoad32
	OpLoad64
	OpStore8
	OpStore16
	OpStore32
	OpStore64

	// Control.
	OpJmp
	OpJmpR
	OpJal
	OpJalR
	OpBneqz
	OpMove
	OpLoadImm
)

// NumKind is the conversion source/destination representation, shared by
// the emitter and VM for OpConvert (spec.md §4.6 "cvt_{source}{dest}").
type NumKind int

const (
	KindI NumKind = iota // signed integer
	KindU                // unsigned integer
	KindF                // float32
	KindD                // float64
)

// Instr is one fixed-width VM instruction: an opcode plus up to three
// typed operand slots (spec.md §6.3). Operands are either a register id
// or a packed immediate, selected per-field by which of Rd/Rs1/Rs2/Imm
// the opcode's semantics use; unused fields are simply ignored by the
// VM's dispatch for that opcode.
type Instr struct {
	Op  Op
	Rd  Reg
	Rs1 Reg
	Rs2 Reg
	Imm int64

	Width    int // 1,2,4,8 for memory ops
	VecLanes int // 2,3,4 for vector ops, 0 for scalar
	F64      bool // float64 vs float32 for FP/vector ops
	CvtFrom  NumKind
	CvtTo    NumKind

	// FuncID is the call target for OpJal (a function_id looked up in
	// the function table; may resolve to a bytecode address or a host
	// native function per spec.md §4.6).
	FuncID int
}

func (i Instr) String() string {
	return fmt.Sprintf("%v rd=%v rs1=%v rs2=%v imm=%d", i.Op, i.Rd, i.Rs1, i.Rs2, i.Imm)
}
