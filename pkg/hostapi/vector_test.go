package hostapi

import (
	"testing"

	"scriptc/pkg/ast"
)

func intLit(v int64) *ast.IntLit { return &ast.IntLit{Value: v} }

func vecCall(ctor string, x, y, z int64) *ast.Call {
	return &ast.Call{
		Callee: &ast.Ident{Name: ctor},
		Args:   []ast.Expr{intLit(x), intLit(y), intLit(z)},
	}
}

// vecDotProgram builds the AST a parser would produce for:
//
//	func vecDot(): i32 { let a = vec3f(1, 2, 3); let b = vec3f(4, 5, 6); return (a.dot(b)) as i32; }
func vecDotProgram() *ast.Program {
	fn := &ast.FuncDecl{
		Name:       "vecDot",
		ReturnType: i32Ref(),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LetStmt{Name: "a", Init: vecCall("vec3f", 1, 2, 3)},
			&ast.LetStmt{Name: "b", Init: vecCall("vec3f", 4, 5, 6)},
			&ast.ReturnStmt{Expr: &ast.AsCast{
				Type: i32Ref(),
				Expr: &ast.Call{
					Callee: &ast.Member{Recv: &ast.Ident{Name: "a"}, Name: "dot"},
					Args:   []ast.Expr{&ast.Ident{Name: "b"}},
				},
			}},
		}},
	}
	return &ast.Program{Decls: []ast.Decl{fn}}
}

func TestVectorDotProduct(t *testing.T) {
	ctx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cm, err := ctx.Compile(vecDotProgram(), "vecarith")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cm.Diag.HasErrors() {
		t.Fatalf("unexpected diagnostics compiling vecDot()")
	}

	got, err := cm.Call("vecDot")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 32 {
		t.Fatalf("vecDot() = %d, want 32", got)
	}
}

// vecCrossProgram builds the AST a parser would produce for:
//
//	func vecCross(): i32 { let a = vec3f(1, 2, 3); let b = vec3f(4, 5, 6); return (a.cross(b).<lane>) as i32; }
func vecCrossProgram(lane string, negate bool) *ast.Program {
	var expr ast.Expr = &ast.Member{
		Recv: &ast.Call{
			Callee: &ast.Member{Recv: &ast.Ident{Name: "a"}, Name: "cross"},
			Args:   []ast.Expr{&ast.Ident{Name: "b"}},
		},
		Name: lane,
	}
	fn := &ast.FuncDecl{
		Name:       "vecCross",
		ReturnType: i32Ref(),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LetStmt{Name: "a", Init: vecCall("vec3f", 1, 2, 3)},
			&ast.LetStmt{Name: "b", Init: vecCall("vec3f", 4, 5, 6)},
			&ast.ReturnStmt{Expr: &ast.AsCast{Type: i32Ref(), Expr: expr}},
		}},
	}
	return &ast.Program{Decls: []ast.Decl{fn}}
}

func TestVectorCrossProduct(t *testing.T) {
	cases := []struct {
		lane string
		want int64
	}{
		{"x", -3},
		{"y", 6},
		{"z", -3},
	}
	for _, tc := range cases {
		ctx, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		cm, err := ctx.Compile(vecCrossProgram(tc.lane, false), "vecarith")
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if cm.Diag.HasErrors() {
			t.Fatalf("unexpected diagnostics compiling vecCross() lane %s", tc.lane)
		}
		got, err := cm.Call("vecCross")
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if got != tc.want {
			t.Fatalf("vecCross().%s = %d, want %d", tc.lane, got, tc.want)
		}
	}
}

// vecAddAssignProgram builds the AST a parser would produce for:
//
//	func vecAddAssign(): i32 {
//	  let a = vec3f(1, 2, 3);
//	  a += vec3f(1, 1, 1);
//	  return (a.x) as i32;
//	}
func vecAddAssignProgram() *ast.Program {
	fn := &ast.FuncDecl{
		Name:       "vecAddAssign",
		ReturnType: i32Ref(),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.LetStmt{Name: "a", Init: vecCall("vec3f", 1, 2, 3)},
			&ast.ExprStmt{Expr: &ast.Assignment{
				Op:     ast.AddAssign,
				Target: &ast.Ident{Name: "a"},
				Val:    vecCall("vec3f", 1, 1, 1),
			}},
			&ast.ReturnStmt{Expr: &ast.AsCast{
				Type: i32Ref(),
				Expr: &ast.Member{Recv: &ast.Ident{Name: "a"}, Name: "x"},
			}},
		}},
	}
	return &ast.Program{Decls: []ast.Decl{fn}}
}

func TestVectorCompoundAssign(t *testing.T) {
	ctx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cm, err := ctx.Compile(vecAddAssignProgram(), "vecarith")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cm.Diag.HasErrors() {
		t.Fatalf("unexpected diagnostics compiling vecAddAssign()")
	}

	got, err := cm.Call("vecAddAssign")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 2 {
		t.Fatalf("vecAddAssign() = %d, want 2", got)
	}
}
