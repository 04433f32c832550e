package semantic

import (
	"scriptc/pkg/ast"
	"scriptc/pkg/ir"
	"scriptc/pkg/types"
)

// loopLabels tracks the break/continue targets of the innermost enclosing
// loop, pushed/popped around WhileStmt/DoWhileStmt/ForStmt lowering
// (spec.md §4.3.6 "break/continue resolve against the innermost loop").
type loopLabels struct {
	breakLabel    ir.Label
	continueLabel ir.Label
}

// lowerStmt translates one statement node to IR (spec.md §4.3.6).
// Grounded on the teacher's StmtTranslator.TranslateStmt dispatch
// (cshmgen/stmt.go), generalized with a loop-label stack for break/
// continue and a scope stack for block-local destructor ordering.
func (c *Compiler) lowerStmt(f *ir.FunctionDef, s ast.Stmt, loops []*loopLabels) []*loopLabels {
	switch st := s.(type) {
	case *ast.Block:
		f.PushScope()
		for _, inner := range st.Stmts {
			loops = c.lowerStmt(f, inner, loops)
		}
		f.PopScope(c.emitDestructor)
	case *ast.LetStmt:
		c.lowerLet(f, st)
	case *ast.ExprStmt:
		c.lowerExpr(f, st.Expr)
	case *ast.IfStmt:
		c.lowerIf(f, st, loops)
	case *ast.WhileStmt:
		loops = c.lowerWhile(f, st, loops)
	case *ast.DoWhileStmt:
		loops = c.lowerDoWhile(f, st, loops)
	case *ast.ForStmt:
		loops = c.lowerFor(f, st, loops)
	case *ast.ReturnStmt:
		c.lowerReturn(f, st)
	case *ast.BreakStmt:
		c.lowerBreak(f, st, loops)
	case *ast.ContinueStmt:
		c.lowerContinue(f, st, loops)
	case *ast.DeleteStmt:
		c.lowerDelete(f, st)
	case *ast.DeclStmt:
		// Nested declarations inside a function body (spec.md §6.2) are
		// out of the common case this pass targets; report rather than
		// silently drop so a user finds out their nested class/fn never
		// compiled.
		c.Diag.Errorf("cm_not_yet_implemented", st.Loc(), poisonKey(st), "nested declarations are not yet supported")
	case *ast.SwitchStmt, *ast.ThrowStmt, *ast.TryStmt:
		// Deferred per spec.md §4.3.6's explicit license: "switch/throw/
		// try/catch... currently no-ops in the source; an implementation
		// may omit them initially." Parsed, not lowered.
		c.Diag.Errorf("cm_not_yet_implemented", s.Loc(), poisonKey(s), "switch/throw/try are not yet implemented")
	default:
		c.Diag.Errorf("cm_internal_invariant", s.Loc(), poisonKey(s), "unhandled statement node %T", s)
	}
	return loops
}

func (c *Compiler) lowerLet(f *ir.FunctionDef, st *ast.LetStmt) {
	var v ir.Value
	if st.Init != nil {
		v = c.lowerExpr(f, st.Init)
	} else if st.Type != nil {
		t, ok := c.resolveTypeRef(st.Type)
		if !ok {
			c.Diag.Errorf("cm_ident_not_found", st.Loc(), poisonKey(st), "unknown type for %q", st.Name)
			return
		}
		v = ir.ImmInt(t, 0)
	}
	if v.Loc == ir.LocStack {
		// An aggregate initializer (String/Array<T>/vector/object-literal
		// construction) already lives at a fixed stack address; the local
		// binding is that address itself rather than a copy into a
		// virtual register, since the VM's register file holds one
		// scalar per slot and can't hold a multi-field aggregate.
		f.CurrentScope().Declare(st.Name, v)
		return
	}
	local := f.Val(v.Type)
	f.Add(ir.OpAssign).Dest(local).Op(v)
	f.CurrentScope().Declare(st.Name, local)
}

func (c *Compiler) lowerIf(f *ir.FunctionDef, st *ast.IfStmt, loops []*loopLabels) {
	cond := c.lowerExpr(f, st.Cond)
	thenLabel := f.NewLabel()
	end := f.NewLabel()
	elseLabel := end
	if st.Else != nil {
		elseLabel = f.NewLabel()
	}
	f.Add(ir.OpBranch).Op(cond).Label(thenLabel).ElseLabel(elseLabel)
	f.PlaceLabel(thenLabel)
	c.lowerStmt(f, st.Then, loops)
	if st.Else != nil {
		f.Add(ir.OpJump).Label(end)
		f.PlaceLabel(elseLabel)
		c.lowerStmt(f, st.Else, loops)
	}
	f.PlaceLabel(end)
}

func (c *Compiler) lowerWhile(f *ir.FunctionDef, st *ast.WhileStmt, loops []*loopLabels) []*loopLabels {
	top := f.NewLabel()
	body := f.NewLabel()
	end := f.NewLabel()
	f.PlaceLabel(top)
	cond := c.lowerExpr(f, st.Cond)
	f.Add(ir.OpBranch).Op(cond).Label(body).ElseLabel(end)
	f.PlaceLabel(body)
	loops = append(loops, &loopLabels{breakLabel: end, continueLabel: top})
	c.lowerStmt(f, st.Body, loops)
	loops = loops[:len(loops)-1]
	f.Add(ir.OpJump).Label(top)
	f.PlaceLabel(end)
	return loops
}

func (c *Compiler) lowerDoWhile(f *ir.FunctionDef, st *ast.DoWhileStmt, loops []*loopLabels) []*loopLabels {
	body := f.NewLabel()
	continueLabel := f.NewLabel()
	end := f.NewLabel()
	f.PlaceLabel(body)
	loops = append(loops, &loopLabels{breakLabel: end, continueLabel: continueLabel})
	c.lowerStmt(f, st.Body, loops)
	loops = loops[:len(loops)-1]
	f.PlaceLabel(continueLabel)
	cond := c.lowerExpr(f, st.Cond)
	f.Add(ir.OpBranch).Op(cond).Label(body).ElseLabel(end)
	f.PlaceLabel(end)
	return loops
}

func (c *Compiler) lowerFor(f *ir.FunctionDef, st *ast.ForStmt, loops []*loopLabels) []*loopLabels {
	f.PushScope()
	if st.Init != nil {
		loops = c.lowerStmt(f, st.Init, loops)
	}
	top := f.NewLabel()
	body := f.NewLabel()
	continueLabel := f.NewLabel()
	end := f.NewLabel()
	f.PlaceLabel(top)
	if st.Cond != nil {
		cond := c.lowerExpr(f, st.Cond)
		f.Add(ir.OpBranch).Op(cond).Label(body).ElseLabel(end)
	}
	f.PlaceLabel(body)
	loops = append(loops, &loopLabels{breakLabel: end, continueLabel: continueLabel})
	c.lowerStmt(f, st.Body, loops)
	loops = loops[:len(loops)-1]
	f.PlaceLabel(continueLabel)
	if st.Step != nil {
		c.lowerExpr(f, st.Step)
	}
	f.Add(ir.OpJump).Label(top)
	f.PlaceLabel(end)
	f.PopScope(c.emitDestructor)
	return loops
}

func (c *Compiler) lowerReturn(f *ir.FunctionDef, st *ast.ReturnStmt) {
	var v ir.Value
	if st.Expr != nil {
		v = c.lowerExpr(f, st.Expr)
	}
	if f.ReturnInferred {
		// First return wins (spec.md §3's closures have no explicit
		// return-type syntax when their declared ReturnType is nil):
		// whichever `return` lowers first pins the function's type for
		// every later one.
		f.ReturnType = v.Type
		f.ReturnInferred = false
	}
	f.AllScopesDestructors(c.emitDestructor)
	if st.Expr != nil {
		f.Add(ir.OpReturn).Op(v)
	} else {
		f.Add(ir.OpReturn)
	}
}

func (c *Compiler) lowerBreak(f *ir.FunctionDef, st *ast.BreakStmt, loops []*loopLabels) {
	if len(loops) == 0 {
		c.Diag.Errorf("cm_break_outside_loop", st.Loc(), poisonKey(st), "break outside a loop")
		return
	}
	f.Add(ir.OpJump).Label(loops[len(loops)-1].breakLabel)
}

func (c *Compiler) lowerContinue(f *ir.FunctionDef, st *ast.ContinueStmt, loops []*loopLabels) {
	if len(loops) == 0 {
		c.Diag.Errorf("cm_continue_outside_loop", st.Loc(), poisonKey(st), "continue outside a loop")
		return
	}
	f.Add(ir.OpJump).Label(loops[len(loops)-1].continueLabel)
}

// lowerDelete emits the trusted-only `delete expr;` (spec.md §6.2/§7):
// runs the pointee's destructor if non-trivial, then frees the stack
// slot it names. No access check is made here: this function never
// reports cm_not_trusted, whatever the enclosing module's or
// declaration's access.
func (c *Compiler) lowerDelete(f *ir.FunctionDef, st *ast.DeleteStmt) {
	v := c.lowerExpr(f, st.Expr)
	if !v.IsPointer() {
		c.Diag.Errorf("cm_type_not_convertible", st.Loc(), poisonKey(st), "delete requires a pointer operand")
		return
	}
	pointee := v.Type
	if entry, ok := c.Reg.Lookup(v.Type); ok {
		if ptr, isPtr := entry.Type.(types.Pointer); isPtr {
			pointee = ptr.Elem
		}
	}
	c.emitDestructor(f, v, pointee)
	f.Add(ir.OpStackFree).Op(v)
}

// emitDestructor calls tp's destructor on v if tp is non-trivially
// destructible, matching the ir.DestructorEmitter contract PopScope/
// AllScopesDestructors/lowerDelete all share (spec.md §4.3.3).
func (c *Compiler) emitDestructor(f *ir.FunctionDef, v ir.Value, tp types.TypeID) {
	entry, ok := c.Reg.Lookup(tp)
	if !ok || entry.Meta.IsTriviallyDestructible {
		return
	}
	if _, isObj := entry.Type.(types.Object); !isObj {
		return
	}
	dtorID, ok := c.classDtors[tp]
	if !ok {
		return
	}
	fn, ok := c.Reg.Function(dtorID)
	if !ok {
		return
	}
	f.Add(ir.OpParam).Op(v)
	f.Add(ir.OpCall).Op(ir.ImmFunction(fn.Sig, fn.ID)).Dest(ir.Null).Sig(fn.Sig)
}
