package semantic

import (
	"fmt"

	"scriptc/pkg/ast"
	"scriptc/pkg/ir"
	"scriptc/pkg/runtime"
	"scriptc/pkg/types"
)

// registerClass interns decl's Object type plus the signatures of its
// constructor, destructor, methods, operators, and get/set accessors,
// storing decl in c.classes for a later body-compilation pass (spec.md
// §4.1 "types and functions are interned before any body is compiled",
// §4.3.3 "classes").
//
// Accessor (get/set) properties carry no storage offset: member access
// (pkg/semantic/expr.go's lowerMemberAddr/lowerAssignment) dispatches
// through Property.Getter/Setter as an ordinary method call instead of
// pointer arithmetic, matching how the teacher's translateExprFor
// special-cased its own handful of synthetic non-storage accessors
// (clightgen's bitfield read/write pair) as calls rather than loads.
func (c *Compiler) registerClass(decl *ast.ClassDecl) error {
	if decl.TemplateParams != nil {
		return c.registerTemplate(decl.Name, decl.TemplateParams, decl)
	}
	_, err := c.registerClassNamed(decl, decl.Name, true)
	return err
}

// registerTemplate interns name as an uninstantiated types.Template
// (spec.md §4.3.5: "a template declaration records its AST plus a
// template context"), deferring every property/signature resolution
// until a use site provides concrete type arguments. decl is the raw
// *ast.ClassDecl/*ast.TypeDecl/*ast.FuncDecl, kept opaque in
// types.Template.Body since pkg/types cannot import pkg/ast.
func (c *Compiler) registerTemplate(name string, paramNames []string, decl ast.Node) error {
	params := make([]types.TemplateParam, len(paramNames))
	for i, p := range paramNames {
		params[i] = types.TemplateParam{Name: p}
	}
	_, err := c.Reg.RegisterNamed(name, types.Template{Name: name, Params: params, Body: decl}, types.Meta{IsTemplate: true})
	if err != nil {
		c.Diag.Errorf("cm_duplicate_name", decl.Loc(), poisonKey(decl), "%v", err)
	}
	return nil
}

// registerClassNamed interns decl's Object type under name (decl.Name
// for an ordinary class, a mangled `Base<Arg1, Arg2>` name for one
// template specialization) plus the signatures of its constructor,
// destructor, methods, operators, and get/set accessors.
//
// deferBodies controls when method/ctor/dtor bodies are lowered: an
// ordinary class is recorded in c.classes for CompileProgram's later
// pass (so a method body can reference a class declared further down
// the same file); a template specialization instead compiles its
// bodies immediately, while the specialization's template-parameter
// bindings are still pushed on c.templateScopes, and stashes the result
// in c.extraFuncDefs — those bindings are gone again by the time
// CompileProgram's deferred pass would otherwise run.
//
// Accessor (get/set) properties carry no storage offset: member access
// (pkg/semantic/expr.go's lowerMemberAddr/lowerAssignment) dispatches
// through Property.Getter/Setter as an ordinary method call instead of
// pointer arithmetic, matching how the teacher's translateExprFor
// special-cased its own handful of synthetic non-storage accessors
// (clightgen's bitfield read/write pair) as calls rather than loads.
func (c *Compiler) registerClassNamed(decl *ast.ClassDecl, name string, deferBodies bool) (types.TypeID, error) {
	var props []types.Property
	offset := 0
	for _, p := range decl.Properties {
		if p.Getter != nil || p.Setter != nil {
			continue
		}
		t, ok := c.resolveTypeRef(p.Type)
		if !ok {
			c.Diag.Errorf("cm_ident_not_found", p.Loc(), poisonKey(p), "unknown type for property %q", p.Name)
			continue
		}
		size := elemSizeOf(c.Reg, t)
		props = append(props, types.Property{
			Name:   p.Name,
			Type:   t,
			Offset: offset,
			Access: convertAccess(p.Access),
		})
		offset += size
	}
	meta := types.Meta{Size: offset, Align: 8}
	objType, err := c.Reg.RegisterNamed(name, types.Object{Name: name, Properties: props}, meta)
	if err != nil {
		c.Diag.Errorf("cm_duplicate_name", decl.Loc(), poisonKey(decl), "%v", err)
		return 0, err
	}

	var accessorProps []types.Property
	for _, p := range decl.Properties {
		if p.Getter == nil && p.Setter == nil {
			continue
		}
		var propType types.TypeID
		if p.Getter != nil {
			if t, ok := c.resolveTypeRef(p.Getter.ReturnType); ok {
				propType = t
			}
		}
		if propType == 0 && p.Setter != nil && len(p.Setter.Params) > 0 {
			if t, ok := c.resolveTypeRef(p.Setter.Params[0].Type); ok {
				propType = t
			}
		}
		if propType == 0 {
			c.Diag.Errorf("cm_accessor_shape_mismatch", p.Loc(), poisonKey(p), "cannot determine type of accessor %q", p.Name)
			continue
		}
		accessor := types.Property{Name: p.Name, Type: propType, Offset: -1, Access: convertAccess(p.Access), Flags: types.PropAccessor}
		if p.Getter != nil {
			sig := c.Reg.InternFunctionType(types.Function{This: objType, Return: propType, Args: []types.TypeID{c.Reg.PointerTo(objType)}})
			id, err := c.Reg.RegisterFunction(types.FuncEntry{Name: "get " + p.Name, Qualified: name + "::get " + p.Name, Sig: sig, Access: convertAccess(p.Access), Class: objType})
			if err != nil {
				c.Diag.Errorf("cm_duplicate_name", p.Loc(), poisonKey(p), "%v", err)
			} else {
				c.funcsByDecl[p.Getter] = id
				accessor.Getter = id
			}
		}
		if p.Setter != nil {
			voidT := c.Reg.Primitive("void")
			sig := c.Reg.InternFunctionType(types.Function{This: objType, Return: voidT, Args: []types.TypeID{c.Reg.PointerTo(objType), propType}})
			id, err := c.Reg.RegisterFunction(types.FuncEntry{Name: "set " + p.Name, Qualified: name + "::set " + p.Name, Sig: sig, Access: convertAccess(p.Access), Class: objType})
			if err != nil {
				c.Diag.Errorf("cm_duplicate_name", p.Loc(), poisonKey(p), "%v", err)
			} else {
				c.funcsByDecl[p.Setter] = id
				accessor.Setter = id
			}
		}
		accessorProps = append(accessorProps, accessor)
	}
	if len(accessorProps) > 0 {
		allProps := append(append([]types.Property{}, props...), accessorProps...)
		c.Reg.SetObjectProperties(objType, allProps)
	}

	ctorParams := []*ast.Param(nil)
	if decl.Ctor != nil {
		for i := range decl.Ctor.Params {
			ctorParams = append(ctorParams, &decl.Ctor.Params[i])
		}
	}
	ctorArgs := []types.TypeID{c.Reg.PointerTo(objType)}
	for _, p := range ctorParams {
		t, ok := c.resolveTypeRef(p.Type)
		if !ok {
			t = c.Reg.Primitive("i32")
		}
		ctorArgs = append(ctorArgs, t)
	}
	ctorSig := c.Reg.InternFunctionType(types.Function{This: objType, Return: c.Reg.Primitive("void"), Args: ctorArgs})
	ctorID, err := c.Reg.RegisterFunction(types.FuncEntry{Name: decl.Name, Qualified: name + "::" + decl.Name, Sig: ctorSig, Class: objType})
	if err != nil {
		c.Diag.Errorf("cm_duplicate_name", decl.Loc(), poisonKey(decl), "%v", err)
		return 0, err
	}
	c.classCtors[objType] = ctorID
	if decl.Ctor != nil {
		c.funcsByDecl[decl.Ctor] = ctorID
	}

	if decl.Dtor != nil {
		dtorSig := c.Reg.InternFunctionType(types.Function{This: objType, Return: c.Reg.Primitive("void"), Args: []types.TypeID{c.Reg.PointerTo(objType)}})
		dtorID, err := c.Reg.RegisterFunction(types.FuncEntry{Name: "~" + decl.Name, Qualified: name + "::~" + decl.Name, Sig: dtorSig, Class: objType})
		if err != nil {
			c.Diag.Errorf("cm_duplicate_name", decl.Loc(), poisonKey(decl), "%v", err)
		} else {
			c.funcsByDecl[decl.Dtor] = dtorID
			c.classDtors[objType] = dtorID
		}
	}

	for _, m := range decl.Methods {
		if err := c.registerFuncSignature(m, objType, name); err != nil {
			c.Diag.Errorf("cm_duplicate_name", m.Loc(), poisonKey(m), "%v", err)
		}
	}

	for _, op := range decl.Operators {
		args := []types.TypeID{c.Reg.PointerTo(objType)}
		for _, p := range op.Params {
			t, ok := c.resolveTypeRef(p.Type)
			if !ok {
				t = c.Reg.Primitive("i32")
			}
			args = append(args, t)
		}
		ret, ok := c.resolveTypeRef(op.ReturnType)
		if !ok {
			ret = c.Reg.Primitive("i32")
		}
		sig := c.Reg.InternFunctionType(types.Function{This: objType, Return: ret, Args: args})
		opID, err := c.Reg.RegisterFunction(types.FuncEntry{Name: "operator" + op.Op, Qualified: name + "::operator" + op.Op, Sig: sig, Class: objType})
		if err != nil {
			c.Diag.Errorf("cm_duplicate_name", op.Loc(), poisonKey(op), "%v", err)
			continue
		}
		if c.opsByDecl == nil {
			c.opsByDecl = make(map[*ast.OperatorDecl]types.FunctionID)
		}
		c.opsByDecl[op] = opID
	}

	if deferBodies {
		c.classes[objType] = decl
		return objType, nil
	}
	fs, err := c.compileClassBodies(objType, decl, name)
	if err != nil {
		return 0, err
	}
	c.extraFuncDefs = append(c.extraFuncDefs, fs...)
	return objType, nil
}

// registerTypeAlias interns a `type Name = ...;` declaration, either as
// a named Alias wrapping another type or, for an inline object literal
// type (`type Pair<A,B> = {...}`), as a named Object. A templated
// declaration (TemplateParams != nil) is instead recorded as an
// uninstantiated template and only built out at each `Pair<i32, f32>`
// use site (spec.md §6.2 type declarations, §4.3.5 templates).
func (c *Compiler) registerTypeAlias(decl *ast.TypeDecl) error {
	if decl.TemplateParams != nil {
		return c.registerTemplate(decl.Name, decl.TemplateParams, decl)
	}
	t, m, err := c.buildTemplateTypeDeclType(decl, decl.Name)
	if err != nil {
		c.Diag.Errorf("cm_ident_not_found", decl.Loc(), poisonKey(decl), "%v", err)
		return nil
	}
	if _, err := c.Reg.RegisterNamed(decl.Name, t, m); err != nil {
		c.Diag.Errorf("cm_duplicate_name", decl.Loc(), poisonKey(decl), "%v", err)
	}
	return nil
}

// buildTemplateTypeDeclType resolves decl's right-hand side to a Type +
// Meta under the given name (decl.Name for an ordinary alias, a mangled
// `Base<Arg1, Arg2>` name for one template specialization), without
// registering it — the caller decides whether to hand the result to
// Registry.RegisterNamed directly or through Registry.Specialize's
// idempotent-on-identical-args cache.
func (c *Compiler) buildTemplateTypeDeclType(decl *ast.TypeDecl, name string) (types.Type, types.Meta, error) {
	if decl.AnonymousFields != nil {
		var props []types.Property
		offset := 0
		for _, p := range decl.AnonymousFields {
			t, ok := c.resolveTypeRef(p.Type)
			if !ok {
				return nil, types.Meta{}, fmt.Errorf("unknown type for field %q", p.Name)
			}
			size := elemSizeOf(c.Reg, t)
			props = append(props, types.Property{Name: p.Name, Type: t, Offset: offset})
			offset += size
		}
		return types.Object{Name: name, Properties: props}, types.Meta{Size: offset, Align: 8}, nil
	}
	underlying, ok := c.resolveTypeRef(decl.Underlying)
	if !ok {
		return nil, types.Meta{}, fmt.Errorf("unknown underlying type for %q", decl.Name)
	}
	entry, _ := c.Reg.Lookup(underlying)
	meta := entry.Meta
	meta.IsAlias = true
	return types.Alias{Name: name, Of: underlying}, meta, nil
}

// registerFuncSignature interns a free function's or method's signature
// and reserves its FunctionID, recording the decl->id mapping
// compileFunctionBody later needs to find the function it should lower
// decl's body into.
func (c *Compiler) registerFuncSignature(decl *ast.FuncDecl, class types.TypeID, classPrefix string) error {
	ret, ok := c.resolveTypeRef(decl.ReturnType)
	if !ok {
		ret = c.Reg.Primitive("void")
	}
	var args []types.TypeID
	if class != 0 {
		args = append(args, c.Reg.PointerTo(class))
	}
	for _, p := range decl.Params {
		t, ok := c.resolveTypeRef(p.Type)
		if !ok {
			t = c.Reg.Primitive("i32")
		}
		args = append(args, t)
	}
	sig := c.Reg.InternFunctionType(types.Function{This: class, Return: ret, Args: args})
	qualified := decl.Name
	if classPrefix != "" {
		qualified = classPrefix + "::" + decl.Name
	}
	fnID, err := c.Reg.RegisterFunction(types.FuncEntry{
		Name:      decl.Name,
		Qualified: qualified,
		Sig:       sig,
		Access:    convertAccess(decl.Access),
		Class:     class,
	})
	if err != nil {
		return err
	}
	c.funcsByDecl[decl] = fnID
	return nil
}

func convertAccess(a ast.Access) types.PropertyAccess {
	switch a {
	case ast.AccessPrivate:
		return types.AccessPrivate
	case ast.AccessTrusted:
		return types.AccessTrusted
	default:
		return types.AccessPublic
	}
}

// compileFunctionBody lowers fd's body (if any — native/abstract
// declarations have none) into a FunctionDef, binding the implicit
// `this` argument (if class != 0) and every parameter as a named local
// in the function's outermost scope before lowering its statements.
func (c *Compiler) compileFunctionBody(fd *ast.FuncDecl, class types.TypeID) (*ir.FunctionDef, error) {
	fnID, ok := c.funcsByDecl[fd]
	if !ok || fd.Body == nil {
		return nil, nil
	}
	fn, ok := c.Reg.Function(fnID)
	if !ok {
		return nil, nil
	}
	f := ir.NewFunctionDef(fn.Qualified)
	f.ThisType = class
	argIdx := 0
	if class != 0 {
		f.ThisValue = ir.Value{Type: c.Reg.PointerTo(class), Loc: ir.LocArgument, ArgIndex: 0, Flags: ir.FlagIsPointer | ir.FlagCanRead}
		argIdx = 1
	}
	for _, p := range fd.Params {
		t, ok := c.resolveTypeRef(p.Type)
		if !ok {
			t = c.Reg.Primitive("i32")
		}
		arg := ir.Value{Type: t, Loc: ir.LocArgument, ArgIndex: argIdx, Flags: ir.FlagCanRead}
		f.CurrentScope().Declare(p.Name, arg)
		argIdx++
	}
	sigEntry, _ := c.Reg.Lookup(fn.Sig)
	sig, _ := sigEntry.Type.(types.Function)
	f.ReturnType = sig.Return

	var loops []*loopLabels
	for _, stmt := range fd.Body.Stmts {
		loops = c.lowerStmt(f, stmt, loops)
	}
	f.Add(ir.OpReturn)
	return f, nil
}

// compileClassBodies lowers decl's constructor (synthesizing one via
// pkg/runtime if absent), destructor, methods, and operators. name is
// the qualified-name prefix registerClassNamed registered decl's
// members under (decl.Name for an ordinary class, a mangled name for a
// template specialization).
func (c *Compiler) compileClassBodies(classID types.TypeID, decl *ast.ClassDecl, name string) ([]*ir.FunctionDef, error) {
	var out []*ir.FunctionDef

	if decl.Ctor != nil {
		if f, err := c.compileFunctionBody(decl.Ctor, classID); err == nil && f != nil {
			out = append(out, f)
		}
	} else {
		entry, ok := c.Reg.Lookup(classID)
		if ok {
			obj := entry.Type.(types.Object)
			ctorID := c.classCtors[classID]
			fn, _ := c.Reg.Function(ctorID)
			f := runtime.GenerateDefaultConstructor(c.Reg, fn.Qualified, classID, obj, c.ctorOf)
			out = append(out, f)
		}
	}

	if decl.Dtor != nil {
		if f, err := c.compileFunctionBody(decl.Dtor, classID); err == nil && f != nil {
			out = append(out, f)
		}
	}

	for _, m := range decl.Methods {
		if err := c.registerFuncSignature(m, classID, name); err != nil {
			// Already registered during registerClass; ignore the
			// duplicate-name error from re-registering here — this
			// branch only runs if registerClass's earlier registration
			// for this exact *FuncDecl somehow didn't happen.
		}
		if f, err := c.compileFunctionBody(m, classID); err == nil && f != nil {
			out = append(out, f)
		}
	}

	for _, op := range decl.Operators {
		if f, err := c.compileOperatorBody(op, classID); err == nil && f != nil {
			out = append(out, f)
		}
	}

	for _, p := range decl.Properties {
		if p.Getter != nil {
			if f, err := c.compileFunctionBody(p.Getter, classID); err == nil && f != nil {
				out = append(out, f)
			}
		}
		if p.Setter != nil {
			if f, err := c.compileFunctionBody(p.Setter, classID); err == nil && f != nil {
				out = append(out, f)
			}
		}
	}

	return out, nil
}

func (c *Compiler) compileOperatorBody(decl *ast.OperatorDecl, class types.TypeID) (*ir.FunctionDef, error) {
	fnID, ok := c.opsByDecl[decl]
	if !ok || decl.Body == nil {
		return nil, nil
	}
	fn, ok := c.Reg.Function(fnID)
	if !ok {
		return nil, nil
	}
	f := ir.NewFunctionDef(fn.Qualified)
	f.ThisType = class
	f.ThisValue = ir.Value{Type: c.Reg.PointerTo(class), Loc: ir.LocArgument, ArgIndex: 0, Flags: ir.FlagIsPointer | ir.FlagCanRead}
	argIdx := 1
	for _, p := range decl.Params {
		t, ok := c.resolveTypeRef(p.Type)
		if !ok {
			t = c.Reg.Primitive("i32")
		}
		arg := ir.Value{Type: t, Loc: ir.LocArgument, ArgIndex: argIdx, Flags: ir.FlagCanRead}
		f.CurrentScope().Declare(p.Name, arg)
		argIdx++
	}
	sigEntry, _ := c.Reg.Lookup(fn.Sig)
	sig, _ := sigEntry.Type.(types.Function)
	f.ReturnType = sig.Return

	var loops []*loopLabels
	for _, stmt := range decl.Body.Stmts {
		loops = c.lowerStmt(f, stmt, loops)
	}
	f.Add(ir.OpReturn)
	return f, nil
}

// ctorOf implements runtime.DefaultCtorOf by looking up a type's
// registered constructor FunctionID, whether it was user-declared or
// itself synthesized by GenerateDefaultConstructor for a previously
// processed class.
func (c *Compiler) ctorOf(t types.TypeID) (types.FunctionID, types.TypeID, bool) {
	id, ok := c.classCtors[t]
	if !ok {
		return 0, 0, false
	}
	fn, ok := c.Reg.Function(id)
	if !ok {
		return 0, 0, false
	}
	return id, fn.Sig, true
}
