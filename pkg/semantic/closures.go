package semantic

import (
	"scriptc/pkg/ast"
	"scriptc/pkg/ir"
	"scriptc/pkg/runtime"
	"scriptc/pkg/types"
)

// lowerArrowFunc lowers `(params) => body` (spec.md §3 "Closure", §4.3.4
// capture resolution). Free variables the closure body references from
// an enclosing scope are packed into a capture block laid out exactly
// like pkg/runtime's CaptureData (reference count, target function id, self, parent, then
// each capture's own compile-time-assigned offset) so the runtime
// package's Retain/Release/TargetFunction helpers can operate on it
// unmodified once the VM actually allocates and runs it.
//
// The enclosing function's FunctionDef.Capture records each free
// variable's payload offset (spec.md §4.2 "capture(value)"); this pass
// only has to walk the arrow body collecting which outer locals it
// references, stack-allocate a block sized to hold them, and emit the
// stores before returning a pointer to it as the closure value.
func (c *Compiler) lowerArrowFunc(f *ir.FunctionDef, ex *ast.ArrowFunc) ir.Value {
	freeVars := collectFreeVars(ex, f)

	closureFn := ir.NewFunctionDef("<closure>")
	for i, p := range ex.Params {
		pt := c.Reg.Primitive("i32")
		if p.Type != nil {
			if resolved, ok := c.resolveTypeRef(p.Type); ok {
				pt = resolved
			}
		}
		arg := ir.Value{Type: pt, Loc: ir.LocArgument, ArgIndex: i + 1, Flags: ir.FlagCanRead}
		closureFn.CurrentScope().Declare(p.Name, arg)
	}
	captureArg := ir.Value{Type: c.Reg.PointerTo(c.Reg.Primitive("u8")), Loc: ir.LocArgument, ArgIndex: 0, Flags: ir.FlagIsPointer | ir.FlagCanRead}
	closureFn.CurrentScope().Declare("<capture>", captureArg)
	offsets := make(map[string]int, len(freeVars))
	for name, v := range freeVars {
		off := f.Capture(v, elemSizeOf(c.Reg, v.Type))
		offsets[name] = off
		ptrType := c.Reg.PointerTo(v.Type)
		ptr := closureFn.Val(ptrType)
		ptr.Flags |= ir.FlagIsPointer
		i64 := c.Reg.Primitive("i64")
		closureFn.Add(ir.OpAdd).Dest(ptr).Op(captureArg).Op(ir.ImmInt(i64, int64(runtime.CapturePayloadOffset+off))).NumKind(ir.KindSigned)
		loaded := closureFn.Val(v.Type)
		closureFn.Add(ir.OpLoad).Dest(loaded).Op(ptr)
		closureFn.CurrentScope().Declare(name, loaded)
	}

	closureFn.ReturnType = c.Reg.Primitive("void")
	if ex.ReturnType == nil {
		// When the arrow function declares no return type,
		// ReturnInferred pins closureFn.ReturnType to whichever
		// `return` lowers first (spec.md §3 "Closure").
		closureFn.ReturnInferred = true
	}

	if ex.ExprBody != nil {
		result := c.lowerExpr(closureFn, ex.ExprBody)
		if closureFn.ReturnInferred {
			closureFn.ReturnType = result.Type
			closureFn.ReturnInferred = false
		}
		closureFn.Add(ir.OpReturn).Op(result)
	} else if ex.BlockBody != nil {
		var loops []*loopLabels
		for _, stmt := range ex.BlockBody.Stmts {
			loops = c.lowerStmt(closureFn, stmt, loops)
		}
		closureFn.Add(ir.OpReturn)
	}

	retType := closureFn.ReturnType
	if ex.ReturnType != nil {
		if resolved, ok := c.resolveTypeRef(ex.ReturnType); ok {
			retType = resolved
		}
	}
	argTypes := []types.TypeID{c.Reg.PointerTo(c.Reg.Primitive("u8"))}
	for range ex.Params {
		argTypes = append(argTypes, c.Reg.Primitive("i32"))
	}
	sig := c.Reg.InternFunctionType(types.Function{Return: retType, Args: argTypes})
	name := c.nextClosureName()
	fnID, err := c.Reg.RegisterFunction(types.FuncEntry{Name: name, Qualified: name, Sig: sig})
	if err != nil {
		c.Diag.Errorf("cm_internal_invariant", ex.Loc(), poisonKey(ex), "%v", err)
		return ir.Null
	}
	c.pendingClosures = append(c.pendingClosures, closureFn)

	captureSize := f.CaptureSize()
	block := f.Stack(0, runtime.CapturePayloadOffset+captureSize, true)
	block.Type = c.Reg.PointerTo(c.Reg.Primitive("u8"))
	i64 := c.Reg.Primitive("i64")

	targetField := f.Val(c.Reg.PointerTo(i64))
	targetField.Flags |= ir.FlagIsPointer
	f.Add(ir.OpAdd).Dest(targetField).Op(block).Op(ir.ImmInt(i64, 8)).NumKind(ir.KindSigned)
	f.Add(ir.OpStore).Op(targetField).Op(ir.ImmInt(i64, int64(fnID)))

	for name, v := range freeVars {
		off := offsets[name]
		ptrType := c.Reg.PointerTo(v.Type)
		ptr := f.Val(ptrType)
		ptr.Flags |= ir.FlagIsPointer
		f.Add(ir.OpAdd).Dest(ptr).Op(block).Op(ir.ImmInt(i64, int64(runtime.CapturePayloadOffset+off))).NumKind(ir.KindSigned)
		f.Add(ir.OpStore).Op(ptr).Op(v)
	}
	return block
}

// elemSizeOf returns the byte size a captured value of type t occupies
// in a capture block, defaulting to a register-sized 8 bytes for types
// the registry hasn't sized (e.g. not-yet-finalized forward references).
func elemSizeOf(reg *types.Registry, t types.TypeID) int {
	if entry, ok := reg.Lookup(t); ok && entry.Meta.Size > 0 {
		return entry.Meta.Size
	}
	return 8
}

// collectFreeVars walks ex's body gathering every Ident that resolves to
// an outer local in f (not one of ex's own parameters), per spec.md
// §4.3.4 "an arrow function captures by value every outer local its
// body references". Resolution reuses FunctionDef.Resolve against the
// enclosing function's live scope stack at the point the arrow function
// is lowered — exactly the set of names in scope there.
func collectFreeVars(ex *ast.ArrowFunc, f *ir.FunctionDef) map[string]ir.Value {
	bound := make(map[string]bool, len(ex.Params))
	for _, p := range ex.Params {
		bound[p.Name] = true
	}
	found := make(map[string]ir.Value)
	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)

	visitIdent := func(name string) {
		if bound[name] || name == "this" {
			return
		}
		if _, already := found[name]; already {
			return
		}
		if v, ok := f.Resolve(name); ok {
			found[name] = v
		}
	}

	walkExpr = func(e ast.Expr) {
		switch ex := e.(type) {
		case *ast.Ident:
			visitIdent(ex.Name)
		case *ast.Binary:
			walkExpr(ex.Left)
			walkExpr(ex.Right)
		case *ast.Unary:
			walkExpr(ex.Expr)
		case *ast.Assignment:
			walkExpr(ex.Target)
			walkExpr(ex.Val)
		case *ast.Ternary:
			walkExpr(ex.Cond)
			walkExpr(ex.Then)
			walkExpr(ex.Else)
		case *ast.Member:
			walkExpr(ex.Recv)
		case *ast.Index:
			walkExpr(ex.Recv)
			walkExpr(ex.Idx)
		case *ast.Call:
			walkExpr(ex.Callee)
			for _, a := range ex.Args {
				walkExpr(a)
			}
		case *ast.ArrayLit:
			for _, el := range ex.Elems {
				walkExpr(el)
			}
		case *ast.ObjectLit:
			for _, fld := range ex.Fields {
				walkExpr(fld.Value)
			}
		case *ast.New:
			for _, a := range ex.Args {
				walkExpr(a)
			}
		case *ast.AsCast:
			walkExpr(ex.Expr)
		case *ast.ArrowFunc:
			// Nested arrow functions resolve their own free variables
			// independently when they are themselves lowered; this pass
			// doesn't need to recurse into their bodies.
		}
	}

	walkStmt = func(s ast.Stmt) {
		switch st := s.(type) {
		case *ast.Block:
			for _, inner := range st.Stmts {
				walkStmt(inner)
			}
		case *ast.LetStmt:
			if st.Init != nil {
				walkExpr(st.Init)
			}
			bound[st.Name] = true
		case *ast.ExprStmt:
			walkExpr(st.Expr)
		case *ast.IfStmt:
			walkExpr(st.Cond)
			walkStmt(st.Then)
			if st.Else != nil {
				walkStmt(st.Else)
			}
		case *ast.WhileStmt:
			walkExpr(st.Cond)
			walkStmt(st.Body)
		case *ast.ReturnStmt:
			if st.Expr != nil {
				walkExpr(st.Expr)
			}
		}
	}

	if ex.ExprBody != nil {
		walkExpr(ex.ExprBody)
	}
	if ex.BlockBody != nil {
		walkStmt(ex.BlockBody)
	}
	return found
}
