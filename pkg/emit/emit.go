package emit

import (
	"fmt"

	"scriptc/pkg/bytecode"
	"scriptc/pkg/ir"
	"scriptc/pkg/regalloc"
	"scriptc/pkg/source"
	"scriptc/pkg/sourcemap"
	"scriptc/pkg/types"
)

// Function is the output of emitting one IR function: the instruction
// stream, its frame size, and the source map of spec.md §4.5. Jump and
// branch targets in the stream are indices relative to its first
// instruction, so placing it in a module's combined code section means
// adding its start offset to them; calls address functions by FuncID.
type Function struct {
	Code      []bytecode.Instr
	FrameSize int
	SourceMap *sourcemap.Map
}

// pendingJump is an emitted Jmp/Bneqz whose Imm target instruction
// index is not yet known because its ir.Label hadn't been placed when
// the jump was translated.
type pendingJump struct {
	outIndex int
	target   ir.Label
}

type context struct {
	reg   *types.Registry
	code  []bytecode.Instr
	smap  *sourcemap.Map
	alloc  regalloc.Result
	layout *FrameLayout

	// allocOffsets maps a stack-allocated ir.AllocID (ordinary local or
	// linear-scan spill slot) to its byte offset from RSP.
	allocOffsets map[ir.AllocID]int

	labelOut map[ir.Label]int // ir.Label -> absolute output instruction index
	pending  []pendingJump

	epilogueTarget int // absolute index returns jump to; patched once known
	returnJumps    []int

	// gpParamIdx/fpParamIdx track how many outgoing call arguments of
	// each bank have been staged since the last OpCall.
	gpParamIdx int
	fpParamIdx int

	// scratch registers the emitter uses to stage a spilled operand
	// around an instruction that needs it in a real register.
	gpScratch [2]bytecode.Reg
	fpScratch [2]bytecode.Reg
}

// EmitFunction lowers f using alloc's physical assignment, producing a
// self-contained instruction stream beginning with the prologue and
// ending with the single shared epilogue every `return` jumps to
// (spec.md §4.5/§6.4).
func EmitFunction(f *ir.FunctionDef, alloc regalloc.Result, reg *types.Registry) (*Function, error) {
	used := make(map[bytecode.Reg]bool)
	for _, a := range alloc.Assignments {
		if !a.Spilled {
			used[a.Reg] = true
		}
	}

	localBytes := 0
	for _, size := range f.AllocSizes() {
		localBytes += alignUp(size, 8)
	}
	nonLeaf := hasCall(f.Code())
	calleeSaveCount := len(usedCalleeSaves(used))
	if nonLeaf {
		// A function that itself calls out must preserve its own
		// return address across the call, since ra is clobbered by
		// every OpJal/OpJalR (spec.md §6.4's call_context boundary);
		// it is saved like any other callee-preserved register.
		calleeSaveCount++
	}
	layout := computeLayout(calleeSaveCount, localBytes)

	offsets := make(map[ir.AllocID]int)
	offset := 0
	for id := ir.AllocID(1); int(id) <= len(f.AllocSizes()); id++ {
		size, ok := f.AllocSizes()[id]
		if !ok {
			continue
		}
		offsets[id] = layout.LocalOffset + offset
		offset += alignUp(size, 8)
	}

	ctx := &context{
		reg:       reg,
		smap:      sourcemap.New(),
		alloc:     alloc,
		layout:    layout,
		labelOut:  make(map[ir.Label]int),
		gpScratch: [2]bytecode.Reg{bytecode.RV0, bytecode.RV1},
		fpScratch: [2]bytecode.Reg{bytecode.RVF0, bytecode.RVF1},
	}
	ctx.allocOffsets = offsets

	saved := usedCalleeSaves(used)
	ctx.emitPrologue(saved, nonLeaf)
	for i := 0; i < len(ctx.code); i++ {
		ctx.smap.Record(i, source.Location{})
	}

	body := f.Code()
	for idx, instr := range body.Instructions {
		if instr.Op == ir.OpLabel {
			ctx.labelOut[instr.Label] = len(ctx.code)
			continue
		}
		before := len(ctx.code)
		if err := ctx.translate(instr, idx); err != nil {
			return nil, fmt.Errorf("emit: function %s: instruction %d: %w", f.Name, idx, err)
		}
		for i := before; i < len(ctx.code); i++ {
			ctx.smap.Record(i, instr.Loc)
		}
	}

	ctx.epilogueTarget = len(ctx.code)
	for _, idx := range ctx.returnJumps {
		ctx.code[idx].Imm = int64(ctx.epilogueTarget)
	}
	beforeEpilogue := len(ctx.code)
	ctx.emitEpilogue(saved, nonLeaf)
	for i := beforeEpilogue; i < len(ctx.code); i++ {
		ctx.smap.Record(i, source.Location{})
	}

	for _, pj := range ctx.pending {
		target, ok := ctx.labelOut[pj.target]
		if !ok {
			return nil, fmt.Errorf("emit: function %s: unresolved label %d", f.Name, pj.target)
		}
		ctx.code[pj.outIndex].Imm = int64(target)
	}

	return &Function{Code: ctx.code, FrameSize: layout.TotalSize, SourceMap: ctx.smap}, nil
}

// raSaveOffset is where a non-leaf function stashes its own return
// address, past every ordinary callee-saved register's slot.
func (c *context) raSaveOffset(savedCount int) int {
	return c.layout.CalleeSaveOffset + savedCount*8
}

func (c *context) emitPrologue(saved []bytecode.Reg, nonLeaf bool) {
	if c.layout.TotalSize > 0 {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpSubI, Rd: bytecode.RSP, Rs1: bytecode.RSP, Imm: int64(c.layout.TotalSize)})
	}
	for i, r := range saved {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpStore64, Rs1: bytecode.RSP, Rs2: r, Imm: int64(c.layout.CalleeSaveOffset + i*8), Width: 8})
	}
	if nonLeaf {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpStore64, Rs1: bytecode.RSP, Rs2: bytecode.RRA, Imm: int64(c.raSaveOffset(len(saved))), Width: 8})
	}
}

func (c *context) emitEpilogue(saved []bytecode.Reg, nonLeaf bool) {
	if nonLeaf {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpLoad64, Rd: bytecode.RRA, Rs1: bytecode.RSP, Imm: int64(c.raSaveOffset(len(saved))), Width: 8})
	}
	for i, r := range saved {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpLoad64, Rd: r, Rs1: bytecode.RSP, Imm: int64(c.layout.CalleeSaveOffset + i*8), Width: 8})
	}
	if c.layout.TotalSize > 0 {
		c.code = append(c.code, bytecode.Instr{Op: bytecode.OpAddI, Rd: bytecode.RSP, Rs1: bytecode.RSP, Imm: int64(c.layout.TotalSize)})
	}
	c.code = append(c.code, bytecode.Instr{Op: bytecode.OpJmpR, Rs1: bytecode.RRA})
}

func hasCall(code *ir.CodeHolder) bool {
	for _, instr := range code.Instructions {
		if instr.Op == ir.OpCall {
			return true
		}
	}
	return false
}
