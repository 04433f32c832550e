package hostapi

import (
	"testing"

	"scriptc/pkg/ast"
	"scriptc/pkg/bytecode"
	"scriptc/pkg/types"
	"scriptc/pkg/vm"
)

func i32Ref() *ast.TypeRef { return &ast.TypeRef{Name: "i32"} }

// addProgram builds the AST a parser would produce for:
//
//	func add(a: i32, b: i32): i32 { return a + b; }
func addProgram() *ast.Program {
	fn := &ast.FuncDecl{
		Name:       "add",
		Params:     []ast.Param{{Name: "a", Type: i32Ref()}, {Name: "b", Type: i32Ref()}},
		ReturnType: i32Ref(),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Expr: &ast.Binary{
				Op:    ast.OpAdd,
				Left:  &ast.Ident{Name: "a"},
				Right: &ast.Ident{Name: "b"},
			}},
		}},
	}
	return &ast.Program{Decls: []ast.Decl{fn}}
}

func TestCompileAndCallFreeFunction(t *testing.T) {
	ctx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cm, err := ctx.Compile(addProgram(), "arith")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cm.Diag.HasErrors() {
		t.Fatalf("unexpected diagnostics compiling add()")
	}

	got, err := cm.Call("add", 3, 4)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 7 {
		t.Fatalf("add(3, 4) = %d, want 7", got)
	}
}

func TestPersistAndReloadRuns(t *testing.T) {
	ctx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cm, err := ctx.Compile(addProgram(), "arith")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	m := ctx.Persist(cm, "arith.scm", false, nil)

	reloaded, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := reloaded.Load(m); err != nil {
		t.Fatalf("Load: %v", err)
	}
	prog, err := reloaded.LoadProgram(m)
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}

	v := vm.New(prog)
	got, err := v.CallByName("add", []int64{10, 32})
	if err != nil {
		t.Fatalf("CallByName: %v", err)
	}
	if got != 42 {
		t.Fatalf("add(10, 32) = %d, want 42", got)
	}
}

func TestRegisterHostFunctionIsCallable(t *testing.T) {
	ctx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	i32 := ctx.Reg.Primitive("i32")
	called := false
	_, err = ctx.RegisterHostFunction("triple", "triple", types.Function{
		Return: i32,
		Args:   []types.TypeID{i32},
	}, func(v *vm.VM) error {
		called = true
		v.SetGP(bytecode.RA0, v.GP(bytecode.RA0)*3)
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterHostFunction: %v", err)
	}

	cm, err := ctx.Compile(&ast.Program{}, "empty")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := cm.Call("triple", 5); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !called {
		t.Fatalf("native triple was never invoked")
	}
}
