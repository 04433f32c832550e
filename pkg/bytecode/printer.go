package bytecode

import (
	"fmt"
	"io"
)

var opNames = [...]string{
	OpTerm: "term", OpNop: "nop",
	OpAdd: "add", OpAddI: "addi", OpSub: "sub", OpSubI: "subi",
	OpMul: "mul", OpMulI: "muli", OpDivS: "divs", OpDivU: "divu",
	OpModS: "mods", OpModU: "modu",
	OpAnd: "and", OpAndI: "andi", OpOr: "or", OpOrI: "ori",
	OpXor: "xor", OpXorI: "xori", OpShl: "shl", OpShlI: "shli",
	OpShrS: "shrs", OpShrU: "shru", OpNeg: "neg", OpNot: "not",
	OpCmpEq: "cmpeq", OpCmpNe: "cmpne", OpCmpLtS: "cmplts", OpCmpLtU: "cmpltu",
	OpCmpLeS: "cmples", OpCmpLeU: "cmpleu",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv", OpFNeg: "fneg",
	OpFCmpEq: "fcmpeq", OpFCmpNe: "fcmpne", OpFCmpLt: "fcmplt", OpFCmpLe: "fcmple",
	OpMoveToFP: "mtfp", OpMoveFromFP: "mffp",
	OpConvert: "cvt",
	OpVSet: "vset", OpVAdd: "vadd", OpVSub: "vsub", OpVMul: "vmul", OpVDiv: "vdiv",
	OpVMod: "vmod", OpVNeg: "vneg", OpVDot: "vdot", OpVMag: "vmag", OpVMagSq: "vmagsq",
	OpVNorm: "vnorm", OpVCross: "vcross",
	OpLoad8: "lb", OpLoad16: "lh", OpLoad32: "lw", OpLoad64: "ld",
	OpStore8: "sb", OpStore16: "sh", OpStore32: "sw", OpStore64: "sd",
	OpJmp: "jmp", OpJmpR: "jmpr", OpJal: "jal", OpJalR: "jalr",
	OpBneqz: "bneqz", OpMove: "mov", OpLoadImm: "li",
}

func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("op?%d", int(o))
}

var kindNames = [...]string{KindI: "i", KindU: "u", KindF: "f", KindD: "d"}

func (k NumKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("k?%d", int(k))
}

// FuncEntry names one function's entry point for PrintProgram's label
// annotations; it mirrors the subset of vm.FuncDescriptor the
// disassembler needs without importing package vm.
type FuncEntry struct {
	Name  string
	Entry int
}

// Printer disassembles a flat instruction stream into one line per
// instruction, annotated with function-entry labels where given.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram disassembles code, emitting a "name:" label immediately
// before the instruction at each entry's offset.
func (p *Printer) PrintProgram(code []Instr, funcs []FuncEntry) {
	labels := make(map[int]string, len(funcs))
	for _, f := range funcs {
		labels[f.Entry] = f.Name
	}
	for idx, instr := range code {
		if name, ok := labels[idx]; ok {
			fmt.Fprintf(p.w, "%s:\n", name)
		}
		fmt.Fprintf(p.w, "%6d\t%s\n", idx, p.formatInstr(instr))
	}
}

// formatInstr renders one instruction in a RISC-V-flavored mnemonic
// syntax, showing only the operand fields that opcode actually uses.
func (p *Printer) formatInstr(i Instr) string {
	switch i.Op {
	case OpTerm, OpNop:
		return i.Op.String()
	case OpAddI, OpSubI, OpMulI, OpAndI, OpOrI, OpXorI, OpShlI:
		return fmt.Sprintf("%s\t%v, %v, %d", i.Op, i.Rd, i.Rs1, i.Imm)
	case OpLoadImm:
		return fmt.Sprintf("%s\t%v, %d", i.Op, i.Rd, i.Imm)
	case OpMove, OpNeg, OpNot, OpFNeg, OpMoveToFP, OpMoveFromFP:
		return fmt.Sprintf("%s\t%v, %v", i.Op, i.Rd, i.Rs1)
	case OpConvert:
		return fmt.Sprintf("cvt.%s%s\t%v, %v", i.CvtFrom, i.CvtTo, i.Rd, i.Rs1)
	case OpLoad8, OpLoad16, OpLoad32, OpLoad64:
		return fmt.Sprintf("%s\t%v, %d(%v)", i.Op, i.Rd, i.Imm, i.Rs1)
	case OpStore8, OpStore16, OpStore32, OpStore64:
		return fmt.Sprintf("%s\t%v, %d(%v)", i.Op, i.Rs2, i.Imm, i.Rs1)
	case OpJmp, OpBneqz:
		if i.Op == OpBneqz {
			return fmt.Sprintf("%s\t%v, %d", i.Op, i.Rs1, i.Imm)
		}
		return fmt.Sprintf("%s\t%d", i.Op, i.Imm)
	case OpJmpR:
		return fmt.Sprintf("%s\t%v", i.Op, i.Rs1)
	case OpJal:
		return fmt.Sprintf("%s\tfunc#%d", i.Op, i.FuncID)
	case OpJalR:
		return fmt.Sprintf("%s\t%v", i.Op, i.Rs1)
	case OpVSet, OpVAdd, OpVSub, OpVMul, OpVDiv, OpVMod, OpVNeg, OpVDot, OpVMag, OpVMagSq, OpVNorm, OpVCross:
		width := "f32"
		if i.F64 {
			width = "f64"
		}
		return fmt.Sprintf("%s.%dx%s\t%v, %v, %v", i.Op, i.VecLanes, width, i.Rd, i.Rs1, i.Rs2)
	default:
		return fmt.Sprintf("%s\t%v, %v, %v", i.Op, i.Rd, i.Rs1, i.Rs2)
	}
}
