// Package vm implements the fetch-decode-execute loop over the
// register-based bytecode the Bytecode Emitter produces (spec.md
// §4.6/§6.4): a flat register file, a byte-addressable stack for
// spilled values and stack-allocated locals, and a host-call
// trampoline for native functions registered through the Host
// Embedding API.
//
// Grounded on the teacher pack's register-machine VM shape (a frame-
// stack interpreter with a fetch/dispatch loop, one dispatch method per
// opcode family) generalized from a stack machine with per-frame local
// slots to a register machine with ONE shared physical register file:
// the Bytecode Emitter's prologue/epilogue already save and restore
// non-volatile registers on the VM's own memory stack, so the VM itself
// needs no separate per-call register snapshot — it is, in effect, a
// single always-current CPU state plus a stack.
package vm

import (
	"fmt"
	"math"

	"scriptc/pkg/bytecode"
)

// NativeFunc is a host function reachable from bytecode through OpJal/
// OpJalR against a FuncDescriptor with Native set. It reads its
// arguments from the VM's argument registers and writes its result
// into the return-value registers (spec.md §6.1 "call(name, args...)").
type NativeFunc func(vm *VM) error

// FuncDescriptor is one entry of the VM's function table, indexed by
// the FuncID a compiled OpJal/OpStore's Sig addresses.
type FuncDescriptor struct {
	Name   string
	Entry  int // instruction index in Program.Code; unused if Native != nil
	Native NativeFunc
}

// Program is a fully linked, ready-to-run module: one flat instruction
// stream (every function's emitted code concatenated) and the function
// table OpJal/OpJalR resolve against.
type Program struct {
	Code      []bytecode.Instr
	Functions []FuncDescriptor
	// ModuleData holds `module_data` byte slots materialized from a
	// Module's static initializers (spec.md §4.3.4, §6.5).
	ModuleData [][]byte
}

const stackSize = 1 << 20 // 1 MiB VM stack

// VM is one execution context: the register file, the stack, and the
// program counter. A VM executes exactly one Program at a time; reset
// it (or create a new one) to run another.
type VM struct {
	prog *Program

	gp [bytecodeRegCount]int64
	fp [bytecodeRegCount]float64

	stack []byte
	pc    int

	// halted is set by a host function requesting early termination
	// (e.g. an uncaught runtime error) rather than running off the end
	// of the instruction stream.
	halted bool
	err    error

	steps     int64
	maxSteps  int64 // 0 means unbounded
}

const bytecodeRegCount = 48 // matches bytecode.regCount's span; see isa.go

// New creates a VM ready to run prog, with RSP initialized to the top
// of its stack (the stack grows downward, as the Bytecode Emitter's
// frame layout assumes).
func New(prog *Program) *VM {
	v := &VM{prog: prog, stack: make([]byte, stackSize)}
	v.gp[bytecode.RSP] = int64(len(v.stack))
	return v
}

// SetMaxSteps bounds execution for host embedders that need to cap
// runaway scripts; 0 (the default) runs to completion.
func (v *VM) SetMaxSteps(n int64) { v.maxSteps = n }

// GP reads a general-purpose register's current value.
func (v *VM) GP(r bytecode.Reg) int64 { return v.gp[r] }

// SetGP writes a general-purpose register, used by native functions
// returning a value and by the host embedding API staging call
// arguments before a `call()`.
func (v *VM) SetGP(r bytecode.Reg, val int64) { v.gp[r] = val }

// FP reads a floating-point register's current value.
func (v *VM) FP(r bytecode.Reg) float64 { return v.fp[r] }

// SetFP writes a floating-point register.
func (v *VM) SetFP(r bytecode.Reg, val float64) { v.fp[r] = val }

// ReadMemory copies size bytes from the VM's stack starting at addr
// (an absolute stack-byte index, as produced by OpAddI against RSP).
func (v *VM) ReadMemory(addr int64, size int) []byte {
	if addr < 0 || int(addr)+size > len(v.stack) {
		return nil
	}
	return v.stack[addr : int(addr)+size]
}

// WriteMemory copies data into the VM's stack at addr.
func (v *VM) WriteMemory(addr int64, data []byte) {
	if addr < 0 || int(addr)+len(data) > len(v.stack) {
		v.fail(fmt.Errorf("vm: out-of-bounds memory write at %d", addr))
		return
	}
	copy(v.stack[addr:], data)
}

func (v *VM) fail(err error) {
	v.halted = true
	v.err = err
}

// CallByName runs the named function to completion with argv staged in
// GP argument registers 0..len(argv)-1, returning RA0 as the result
// (spec.md §6.1's `call(name, args...)` contract for the Host Embedding
// API). It drives its own fetch-execute loop using a synthetic return
// address so the function's own `ret` (jmpr ra) stops execution instead
// of jumping into caller code that doesn't exist at this call depth.
func (v *VM) CallByName(name string, argv []int64) (int64, error) {
	fn, ok := v.lookupByName(name)
	if !ok {
		return 0, fmt.Errorf("vm: no function named %q", name)
	}
	for i, a := range argv {
		if i >= len(bytecode.GPArgRegs) {
			return 0, fmt.Errorf("vm: too many arguments to %q", name)
		}
		v.gp[bytecode.GPArgRegs[i]] = a
	}
	if fn.Native != nil {
		if err := fn.Native(v); err != nil {
			return 0, err
		}
		return v.gp[bytecode.RA0], nil
	}

	// sentinel is an out-of-range PC the call's implicit return jumps
	// to; the run loop below stops exactly when execution reaches it.
	sentinel := len(v.prog.Code)
	savedRA := v.gp[bytecode.RRA]
	v.gp[bytecode.RRA] = int64(sentinel)
	savedPC := v.pc
	v.pc = fn.Entry

	for v.pc != sentinel {
		if !v.step() {
			break
		}
	}
	v.gp[bytecode.RRA] = savedRA
	v.pc = savedPC
	if v.err != nil {
		err := v.err
		v.err = nil
		v.halted = false
		return 0, err
	}
	return v.gp[bytecode.RA0], nil
}

func (v *VM) lookupByName(name string) (FuncDescriptor, bool) {
	for _, fn := range v.prog.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FuncDescriptor{}, false
}

// step fetches, decodes, and executes one instruction, returning false
// when the VM should stop (halted, step budget exhausted, or run off
// the end of the program).
func (v *VM) step() bool {
	if v.halted {
		return false
	}
	if v.maxSteps > 0 && v.steps >= v.maxSteps {
		v.fail(fmt.Errorf("vm: exceeded step budget of %d", v.maxSteps))
		return false
	}
	if v.pc < 0 || v.pc >= len(v.prog.Code) {
		return false
	}
	instr := v.prog.Code[v.pc]
	v.steps++
	v.execute(instr)
	return !v.halted
}

func f64bits(f float64) int64  { return int64(math.Float64bits(f)) }
func bitsf64(b int64) float64  { return math.Float64frombits(uint64(b)) }
