// Package semantic implements the Semantic Compiler of spec.md §4.3: the
// pass that walks the syntax tree pkg/ast defines and lowers it to the
// FunctionDef/Instruction IR pkg/ir defines, resolving every name,
// conversion, and overload against the Type & Symbol Registry
// (pkg/types) along the way.
//
// Grounded on the teacher's pkg/cshmgen (a Clight-to-Csharpminor
// translator split across program.go/stmt.go/expr.go/operators.go, one
// switch-dispatch-to-small-methods translator per syntactic category).
// This package follows the same split, generalized from C's fixed
// expression/statement grammar to the scripting language's classes,
// closures, templates, and operator overloads.
package semantic

import (
	"fmt"

	"scriptc/pkg/ast"
	"scriptc/pkg/diag"
	"scriptc/pkg/ir"
	"scriptc/pkg/runtime"
	"scriptc/pkg/types"
)

// Compiler holds the state shared across an entire module's compilation:
// the Type & Symbol Registry being populated and the diagnostics log
// findings accumulate into, plus the per-compilation lookup tables below.
type Compiler struct {
	Reg  *types.Registry
	Diag *diag.Logger

	// classes maps a ClassDecl's interned TypeID back to its AST so a
	// later pass (member body compilation) can revisit it after every
	// class in the program has been registered — so a method body can
	// reference a class declared later in the same file.
	classes map[types.TypeID]*ast.ClassDecl

	// funcsByDecl remembers which FunctionID a given FuncDecl/method
	// lowered to, so call sites and default-ctor wiring can find it.
	funcsByDecl map[*ast.FuncDecl]types.FunctionID

	// pendingClosures collects the synthesized FunctionDef for every
	// arrow function lowered so far, flushed into CompileProgram's
	// result alongside ordinary functions (spec.md §4.3.4: a closure
	// compiles to an ordinary function taking the capture block as its
	// hidden first argument).
	pendingClosures []*ir.FunctionDef
	closureCounter  int

	// classCtors/classDtors remember each class's constructor/destructor
	// FunctionID (whether user-declared or synthesized by
	// compileClassBodies), so ctorOf/emitDestructor can find them without
	// re-deriving them from the Object type's property list.
	classCtors map[types.TypeID]types.FunctionID
	classDtors map[types.TypeID]types.FunctionID

	// opsByDecl remembers which FunctionID a given OperatorDecl lowered
	// to, mirroring funcsByDecl for the one AST node kind that isn't a
	// *ast.FuncDecl.
	opsByDecl map[*ast.OperatorDecl]types.FunctionID

	// templateScopes is the template-context stack of spec.md §4.3.5:
	// one entry per active re-entrant specialization, mapping a
	// template's parameter names to the concrete TypeIDs it was
	// specialized with. resolveTypeRef consults it (innermost first)
	// before falling back to the ordinary Registry lookup, so a
	// template's own body can reference its parameters as if they were
	// ordinary type names.
	templateScopes []map[string]types.TypeID

	// funcTemplates holds every top-level function template declaration
	// by name, recorded by CompileProgram and specialized on demand by
	// lowerTemplateCall the first time a call site's argument types
	// determine its template arguments.
	funcTemplates map[string]*ast.FuncDecl

	// funcSpecCache remembers the FunctionID already specialized for a
	// given mangled `name<Arg1, Arg2>`, so a second call with the same
	// inferred argument types reuses the first specialization's compiled
	// body instead of recompiling it (spec.md §4.3.5/§8 scenario 5's
	// "idempotent on identical args", applied to function templates the
	// same way Registry.Specialize applies it to type templates).
	funcSpecCache map[string]types.FunctionID

	// extraFuncDefs collects the FunctionDefs compiled outside
	// CompileProgram's two ordinary passes: template specializations,
	// compiled immediately at their first use site rather than in the
	// deferred c.classes/funcDecls passes, since their template-
	// parameter bindings only exist for the duration of that one
	// specialization call.
	extraFuncDefs []*ir.FunctionDef
}

// nextClosureName hands out a fresh, stable name for a synthesized
// closure function body, namespaced so it can never collide with a
// user-declared name (spec.md §6.2 names are bare identifiers, never
// containing '<').
func (c *Compiler) nextClosureName() string {
	c.closureCounter++
	return fmt.Sprintf("<closure#%d>", c.closureCounter)
}

// NewCompiler creates a Compiler over reg, logging into logger. reg
// should already have RegisterStringType/RegisterArrayType available
// via pkg/runtime if the program uses string or array literals.
func NewCompiler(reg *types.Registry, logger *diag.Logger) *Compiler {
	return &Compiler{
		Reg:           reg,
		Diag:          logger,
		classes:       make(map[types.TypeID]*ast.ClassDecl),
		funcsByDecl:   make(map[*ast.FuncDecl]types.FunctionID),
		classCtors:    make(map[types.TypeID]types.FunctionID),
		classDtors:    make(map[types.TypeID]types.FunctionID),
		opsByDecl:     make(map[*ast.OperatorDecl]types.FunctionID),
		funcTemplates: make(map[string]*ast.FuncDecl),
		funcSpecCache: make(map[string]types.FunctionID),
	}
}

// poisonKey builds a stable per-node dedup key for the Logger's poison
// set (spec.md §4.3.7), distinct from any other kind of key by an
// ASCII-art-free prefix since nodes don't carry a stable numeric id
// until the register allocator runs.
func poisonKey(n ast.Node) string {
	loc := n.Loc()
	return fmt.Sprintf("n@%s:%d:%d", loc.File, loc.Line, loc.Col)
}

// CompileProgram lowers an entire parsed module to a set of FunctionDefs
// plus the Registry entries spec.md §4 requires, in two passes: first
// every type-level declaration (classes, type aliases, function
// signatures) is registered so forward references resolve regardless of
// declaration order (spec.md §4.1 "types and functions are interned
// before any body is compiled"), then every function/method/operator
// body is lowered.
func (c *Compiler) CompileProgram(prog *ast.Program, moduleName string) ([]*ir.FunctionDef, error) {
	var funcDecls []*ast.FuncDecl

	for _, d := range prog.Decls {
		switch decl := d.(type) {
		case *ast.ClassDecl:
			if err := c.registerClass(decl); err != nil {
				return nil, err
			}
		case *ast.TypeDecl:
			if err := c.registerTypeAlias(decl); err != nil {
				return nil, err
			}
		case *ast.FuncDecl:
			if decl.TemplateParams != nil {
				// Template functions are specialized lazily at each call
				// site (spec.md §4.3.5): record the declaration now,
				// compiled on demand by lowerTemplateCall the first time a
				// call site's argument types pin down its parameters.
				c.funcTemplates[decl.Name] = decl
				continue
			}
			if err := c.registerFuncSignature(decl, 0, ""); err != nil {
				return nil, err
			}
			funcDecls = append(funcDecls, decl)
		case *ast.ImportDecl:
			// Module linking (spec.md §6.4) is the host embedding API's
			// concern, not the Semantic Compiler's; nothing to lower.
		}
	}

	var out []*ir.FunctionDef
	for _, fd := range funcDecls {
		f, err := c.compileFunctionBody(fd, 0)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, f)
		}
	}

	for classID, decl := range c.classes {
		fs, err := c.compileClassBodies(classID, decl, decl.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, fs...)
	}

	out = append(out, c.pendingClosures...)
	out = append(out, c.extraFuncDefs...)

	if c.Diag.HasErrors() {
		return nil, fmt.Errorf("semantic: compilation failed with %d diagnostic(s)", len(c.Diag.Entries()))
	}
	return out, nil
}

// thisParamType returns the implicit `this` argument type for a method
// of class (a pointer-to-class), or 0 for a free function.
func thisParamType(reg *types.Registry, class types.TypeID) types.TypeID {
	if class == 0 {
		return 0
	}
	return reg.PointerTo(class)
}

// capturePayloadOffset mirrors pkg/runtime's capture-data layout so
// closure lowering (closures.go) and the runtime package never disagree
// about where a captured variable's payload begins.
const capturePayloadOffset = runtime.CapturePayloadOffset
