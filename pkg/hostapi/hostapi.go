// Package hostapi implements the Host Embedding API of spec.md §6.1: a
// thin façade a host program uses to register native types/functions,
// compile or load script modules, and invoke script functions. It owns
// nothing the other packages don't already implement — it wires
// pkg/types, pkg/semantic, pkg/regalloc, pkg/emit, pkg/module, and
// pkg/vm together behind the handful of calls a host actually needs.
//
// Grounded on the teacher's cmd/ralph-cc/main.go, the one place the
// teacher's own pipeline stages (parse -> translate -> allocate -> emit)
// are driven end to end outside of tests; Context.Compile repeats that
// shape over the new pipeline (ast -> semantic -> regalloc -> emit ->
// vm.Program).
package hostapi

import (
	"fmt"

	"scriptc/pkg/ast"
	"scriptc/pkg/bytecode"
	"scriptc/pkg/diag"
	"scriptc/pkg/emit"
	"scriptc/pkg/module"
	"scriptc/pkg/regalloc"
	"scriptc/pkg/runtime"
	"scriptc/pkg/semantic"
	"scriptc/pkg/types"
	"scriptc/pkg/vm"
)

// Context owns the Type & Symbol Registry a host builds up by
// registering native types/functions before compiling or loading any
// script module (spec.md §6.1 "create context; register host types;
// register host functions").
type Context struct {
	Reg     *types.Registry
	natives map[types.FunctionID]vm.NativeFunc
}

// New creates a Context with String already registered under the fixed
// name the Semantic Compiler's literal lowering expects (spec.md §4.7).
// Array<T> specializations are registered on demand during compilation.
func New() (*Context, error) {
	reg := types.New()
	if _, err := runtime.RegisterStringType(reg); err != nil {
		return nil, fmt.Errorf("hostapi: registering string type: %w", err)
	}
	return &Context{Reg: reg, natives: make(map[types.FunctionID]vm.NativeFunc)}, nil
}

// RegisterHostType registers a native type the host exposes to script
// code: a name, its byte layout, and whatever trivial-ness flags the
// host can guarantee (spec.md §6.1 "register host types (name, size,
// trivial-flags, method/property list, optional destructor)").
func (c *Context) RegisterHostType(name string, props []types.Property, meta types.Meta) (types.TypeID, error) {
	meta.IsHost = true
	return c.Reg.RegisterNamed(name, types.Object{Name: name, Properties: props}, meta)
}

// RegisterHostFunction registers a native callable under name with
// signature sig, backed by fn (spec.md §6.1 "register host functions
// (name, signature, native callable)").
func (c *Context) RegisterHostFunction(name, qualified string, sig types.Function, fn vm.NativeFunc) (types.FunctionID, error) {
	sigID := c.Reg.InternFunctionType(sig)
	id, err := c.Reg.RegisterFunction(types.FuncEntry{Name: name, Qualified: qualified, Sig: sigID, Native: true})
	if err != nil {
		return 0, err
	}
	c.natives[id] = fn
	return id, nil
}

// CompiledModule is a fully linked, runnable unit: the source module's
// registry snapshot plus a vm.Program ready for vm.New.
type CompiledModule struct {
	Name    string
	Program *vm.Program
	Diag    *diag.Logger
}

// Compile lowers prog (already parsed — parsing is out of scope per
// spec.md §1) through the Semantic Compiler, Register Allocator, and
// Bytecode Emitter, then links the result into a vm.Program alongside
// every native function registered so far.
func (c *Context) Compile(prog *ast.Program, moduleName string) (*CompiledModule, error) {
	logger := diag.NewLogger()
	compiler := semantic.NewCompiler(c.Reg, logger)
	fns, err := compiler.CompileProgram(prog, moduleName)
	if err != nil {
		return &CompiledModule{Name: moduleName, Diag: logger}, err
	}

	functions := make([]vm.FuncDescriptor, c.funcTableSize())
	var code []bytecode.Instr
	for _, f := range fns {
		alloc := regalloc.AllocateFunction(f)
		emitted, err := emit.EmitFunction(f, alloc, c.Reg)
		if err != nil {
			return nil, fmt.Errorf("hostapi: %w", err)
		}
		entry := len(code)
		for _, in := range emitted.Code {
			if in.Op == bytecode.OpJmp || in.Op == bytecode.OpBneqz {
				in.Imm += int64(entry)
			}
			code = append(code, in)
		}
		fnID, ok := c.Reg.FunctionByQualified(f.Name)
		if !ok {
			continue
		}
		c.Reg.SetEntryPoint(fnID, entry)
		functions[fnID] = vm.FuncDescriptor{Name: f.Name, Entry: entry}
	}
	c.installNatives(functions)

	return &CompiledModule{
		Name:    moduleName,
		Program: &vm.Program{Code: code, Functions: functions},
		Diag:    logger,
	}, nil
}

// funcTableSize sizes the FuncID-indexed function table to fit every
// FunctionID the Registry has handed out so far, plus the unused id-0
// slot (FunctionID is 1-based; see types/registry.go).
func (c *Context) funcTableSize() int {
	n := 1
	for id := types.FunctionID(1); ; id++ {
		if _, ok := c.Reg.Function(id); !ok {
			break
		}
		n = int(id) + 1
	}
	return n
}

func (c *Context) installNatives(functions []vm.FuncDescriptor) {
	for id, fn := range c.natives {
		if int(id) < len(functions) {
			functions[id].Native = fn
			entry, _ := c.Reg.Function(id)
			functions[id].Name = entry.Name
		}
	}
}

// Call invokes a compiled function by its qualified name (spec.md §6.1
// "call(function_id, call_context*, ret_ptr, args[])", specialized here
// to the integer/pointer argument shape vm.VM.CallByName already
// supports — aggregate by-value arguments are out of scope until the
// VM grows a richer call_context).
func (c *CompiledModule) Call(qualifiedName string, args ...int64) (int64, error) {
	v := vm.New(c.Program)
	return v.CallByName(qualifiedName, args)
}

// Persist snapshots cm's registry and linked bytecode into a
// module.Module ready for module.Encode, for hosts that want to cache a
// compiled module rather than recompile from source every run (spec.md
// §6.5).
func (c *Context) Persist(cm *CompiledModule, path string, trusted bool, imports []string) *module.Module {
	m := module.FromRegistry(c.Reg, cm.Name, path, trusted, imports)
	m.AttachCode(cm.Program.Code)
	return m
}

// Load reconstitutes a previously persisted module's type/function
// tables into c's registry (spec.md §6.1 "load script modules").
func (c *Context) Load(m *module.Module) error {
	return module.LoadInto(c.Reg, m)
}

// LoadProgram reconstitutes a runnable vm.Program from a persisted
// module: Load must be called first so c.Reg's FunctionIDs line up with
// m.Funcs's ids. Native function slots are filled from whatever the
// host already registered through RegisterHostFunction under the same
// qualified name; a function with neither a native implementation nor
// persisted code is left as a zero FuncDescriptor, which fails loudly
// on call rather than silently jumping to address 0.
func (c *Context) LoadProgram(m *module.Module) (*vm.Program, error) {
	functions := make([]vm.FuncDescriptor, c.funcTableSize())
	for _, fn := range m.Funcs {
		id, ok := c.Reg.FunctionByQualified(fn.Qualified)
		if !ok {
			return nil, fmt.Errorf("hostapi: function %q not found after Load", fn.Qualified)
		}
		if int(id) >= len(functions) {
			grown := make([]vm.FuncDescriptor, int(id)+1)
			copy(grown, functions)
			functions = grown
		}
		functions[id] = vm.FuncDescriptor{Name: fn.Qualified, Entry: fn.Entry}
	}
	c.installNatives(functions)
	return &vm.Program{Code: m.Code, Functions: functions}, nil
}
