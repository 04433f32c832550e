package regalloc

import (
	"sort"

	"scriptc/pkg/bytecode"
	"scriptc/pkg/ir"
)

// Assignment is the outcome for one virtual register: either a physical
// register or a spilled stack slot (spec.md §4.4 "physical assignment
// record {kind: reg | spilled, index | stack_alloc_id}").
type Assignment struct {
	Reg     bytecode.Reg
	Spilled bool
	Alloc   ir.AllocID // meaningful iff Spilled
}

// Result is the output of allocating one function: the per-register
// assignment table and the total stack bytes consumed by spills.
type Result struct {
	Assignments map[ir.Reg]Assignment
	SpillBytes  int
}

// active is one live range currently holding a physical register during
// the scan.
type active struct {
	Range
	reg bytecode.Reg
}

// AllocateFunction runs linear-scan register allocation over f's code,
// per spec.md §4.4: live ranges sorted by start point, a pool of
// physical registers per bank (GP/FP), and spill-to-stack when a pool
// is exhausted for the range with the furthest-out end point (the
// classic Poletto & Sarkar heuristic, which is what "linear-scan"
// names). Spill slots are allocated through f's own stack-slot id
// namespace, so the Bytecode Emitter lays them out alongside every
// other stack_allocate the Semantic Compiler emitted.
func AllocateFunction(f *ir.FunctionDef) Result {
	nextAlloc := f.AllocCounter()
	ranges := computeLiveRanges(f.Code())
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	gpPool := append([]bytecode.Reg{}, bytecode.GPSavedRegs...)
	fpPool := append([]bytecode.Reg{}, bytecode.FPSavedRegs...)

	result := Result{Assignments: make(map[ir.Reg]Assignment)}

	var gpActive, fpActive []active

	expireOld := func(activeList *[]active, pool *[]bytecode.Reg, start int) {
		kept := (*activeList)[:0]
		for _, a := range *activeList {
			if a.End < start {
				*pool = append(*pool, a.reg)
			} else {
				kept = append(kept, a)
			}
		}
		*activeList = kept
	}

	spillAt := func(activeList *[]active, r Range) {
		// Spill either r itself or the active range that ends furthest
		// in the future, per linear-scan's standard heuristic: whichever
		// choice frees the register for the longer remaining span.
		if len(*activeList) == 0 {
			result.Assignments[r.Reg] = Assignment{Spilled: true, Alloc: freshAlloc(f, nextAlloc)}
			return
		}
		sort.Slice(*activeList, func(i, j int) bool { return (*activeList)[i].End < (*activeList)[j].End })
		last := (*activeList)[len(*activeList)-1]
		if last.End > r.End {
			// Evict `last`, give its register to r.
			result.Assignments[last.Reg] = Assignment{Spilled: true, Alloc: freshAlloc(f, nextAlloc)}
			result.Assignments[r.Reg] = Assignment{Reg: last.reg}
			(*activeList)[len(*activeList)-1] = active{Range: r, reg: last.reg}
		} else {
			result.Assignments[r.Reg] = Assignment{Spilled: true, Alloc: freshAlloc(f, nextAlloc)}
		}
	}

	for _, r := range ranges {
		if r.IsFP {
			expireOld(&fpActive, &fpPool, r.Start)
			if len(fpPool) > 0 {
				reg := fpPool[len(fpPool)-1]
				fpPool = fpPool[:len(fpPool)-1]
				fpActive = append(fpActive, active{Range: r, reg: reg})
				result.Assignments[r.Reg] = Assignment{Reg: reg}
			} else {
				spillAt(&fpActive, r)
			}
		} else {
			expireOld(&gpActive, &gpPool, r.Start)
			if len(gpPool) > 0 {
				reg := gpPool[len(gpPool)-1]
				gpPool = gpPool[:len(gpPool)-1]
				gpActive = append(gpActive, active{Range: r, reg: reg})
				result.Assignments[r.Reg] = Assignment{Reg: reg}
			} else {
				spillAt(&gpActive, r)
			}
		}
	}

	for _, a := range result.Assignments {
		if a.Spilled {
			result.SpillBytes += 8
		}
	}
	return result
}

func freshAlloc(f *ir.FunctionDef, next *ir.AllocID) ir.AllocID {
	id := *next
	*next++
	f.RecordAllocSize(id, 8)
	return id
}
