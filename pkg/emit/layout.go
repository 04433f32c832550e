// Package emit is the Bytecode Emitter: it lowers one function's IR,
// plus the Register Allocator's physical assignment, into the VM's
// register-based instruction format (spec.md §4.5/§4.6), laying out the
// stack frame, threading the calling convention through call sites, and
// recording a Source Map entry per emitted instruction.
//
// Grounded on the teacher's pkg/stacking (frame layout, callee-save
// bookkeeping, prologue/epilogue shape) and pkg/asmgen/transform.go
// (one genContext per function, one translate* method per opcode
// family), adapted from ARM64's STP/LDP-paired native frame to the
// bytecode.Instr target and from a graph-colored physical register set
// to this module's linear-scan regalloc.Result.
package emit

import "scriptc/pkg/bytecode"

const stackAlignment = 16

// FrameLayout is the concrete stack frame for one compiled function:
// sizes and offsets of the callee-save area and the local/spill area,
// mirroring the teacher's stacking.FrameLayout with the outgoing-
// argument area dropped (this ISA passes all arguments in registers,
// spec.md §4.5: "integers/pointers fill a0..a7, floats fill fa0..fa7";
// there is no stack-passed argument case to size for).
type FrameLayout struct {
	CalleeSaveSize int
	LocalSize      int
	TotalSize      int

	CalleeSaveOffset int
	LocalOffset      int
}

func alignUp(n, align int) int {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// computeLayout sizes the frame from the callee-save registers the
// allocator actually put values into and the function's accumulated
// stack-slot sizes (ordinary locals plus linear-scan spill slots, both
// recorded in the same ir.FunctionDef.allocSizes map).
func computeLayout(calleeSaveCount int, localBytes int) *FrameLayout {
	l := &FrameLayout{}
	l.CalleeSaveSize = calleeSaveCount * 8
	l.LocalSize = alignUp(localBytes, 8)
	l.CalleeSaveOffset = 0
	l.LocalOffset = l.CalleeSaveSize
	l.TotalSize = alignUp(l.CalleeSaveSize+l.LocalSize, stackAlignment)
	return l
}

// usedCalleeSaves returns, in a stable order, every non-volatile
// physical register the allocator assigned to at least one live range.
func usedCalleeSaves(assignments map[bytecode.Reg]bool) []bytecode.Reg {
	var out []bytecode.Reg
	for _, r := range bytecode.GPSavedRegs {
		if assignments[r] {
			out = append(out, r)
		}
	}
	for _, r := range bytecode.FPSavedRegs {
		if assignments[r] {
			out = append(out, r)
		}
	}
	return out
}
