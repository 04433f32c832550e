// Package ast defines the syntax tree produced by the lexer/parser that
// spec.md §1 places out of scope: "the lexer and parser (produce a
// syntax tree per the grammar sketched in §6)". pkg/ast is that
// boundary — the Semantic Compiler (pkg/semantic) consumes it and never
// reaches back into a lexer or parser.
//
// Grounded on the teacher's pkg/cabs/ast.go: a sum type per syntactic
// category (Node/Expr/Stmt/Definition) expressed as an interface plus
// one marker method per case, generalized from C's grammar to the
// class/template/closure/operator-overload/import grammar spec.md §6.2
// sketches.
package ast

import "scriptc/pkg/source"

// Node is the root of every syntax-tree type.
type Node interface {
	implNode()
	Loc() source.Location
}

// Expr is any expression node.
type Expr interface {
	Node
	implExpr()
}

// Stmt is any statement node.
type Stmt interface {
	Node
	implStmt()
}

// Decl is any top-level or class-member declaration.
type Decl interface {
	Node
	implDecl()
}

// base embeds the common location field; every concrete node embeds it.
type base struct{ L source.Location }

func (b base) Loc() source.Location { return b.L }
func (base) implNode()              {}

// --- Type references (unresolved; the Semantic Compiler resolves these
// against the Type Registry) ---

// TypeRef names a type as written in source: a bare name, optionally
// with template arguments (`Pair<i32, f32>`), or a pointer/array form.
type TypeRef struct {
	base
	Name     string
	Args     []*TypeRef // template arguments, nil if not a template reference
	PointerTo *TypeRef  // non-nil if this is `T*`
}

// --- Expressions ---

type IntLit struct {
	base
	Value  int64
	Suffix string // "", "b", "s", "l", "ll", "ub", "us", "ul", "ull"
}

func (*IntLit) implExpr() {}

type FloatLit struct {
	base
	Value  float64
	Double bool // true for default float literal width (f64), false for "f" suffix (f32)
}

func (*FloatLit) implExpr() {}

type StringLit struct {
	base
	Value string
}

func (*StringLit) implExpr() {}

// TemplateStringLit is a `${...}`-interpolated string literal; Parts
// alternates literal text and embedded expressions, Exprs holds the
// embedded expressions in order.
type TemplateStringLit struct {
	base
	Parts []string
	Exprs []Expr
}

func (*TemplateStringLit) implExpr() {}

type BoolLit struct {
	base
	Value bool
}

func (*BoolLit) implExpr() {}

type NullLit struct{ base }

func (*NullLit) implExpr() {}

type Ident struct {
	base
	Name string
}

func (*Ident) implExpr() {}

type ObjectLit struct {
	base
	Fields []ObjectField
}
type ObjectField struct {
	Name  string
	Value Expr
}

func (*ObjectLit) implExpr() {}

type ArrayLit struct {
	base
	Elems []Expr
}

func (*ArrayLit) implExpr() {}

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpLAnd
	OpLOr
	OpNullish // ??
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
)

type Binary struct {
	base
	Op          BinaryOp
	Left, Right Expr
}

func (*Binary) implExpr() {}

type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
	OpBitNot
	OpPreInc
	OpPreDec
	OpPostInc
	OpPostDec
)

type Unary struct {
	base
	Op   UnaryOp
	Expr Expr
}

func (*Unary) implExpr() {}

type AssignOp int

const (
	Assign AssignOp = iota
	AddAssign
	SubAssign
	MulAssign
	DivAssign
	ModAssign
	AndAssign
	OrAssign
	XorAssign
	ShlAssign
	ShrAssign
)

type Assignment struct {
	base
	Op          AssignOp
	Target, Val Expr
}

func (*Assignment) implExpr() {}

type Ternary struct {
	base
	Cond, Then, Else Expr
}

func (*Ternary) implExpr() {}

type Member struct {
	base
	Recv Expr
	Name string
}

func (*Member) implExpr() {}

type Index struct {
	base
	Recv, Idx Expr
}

func (*Index) implExpr() {}

type Call struct {
	base
	Callee Expr
	Args   []Expr
}

func (*Call) implExpr() {}

type New struct {
	base
	Type *TypeRef
	Args []Expr
}

func (*New) implExpr() {}

// PlacementNew is `new (args) expr` — construct in-place at an
// already-allocated address.
type PlacementNew struct {
	base
	Args []Expr
	Target Expr
}

func (*PlacementNew) implExpr() {}

type AsCast struct {
	base
	Type *TypeRef
	Expr Expr
}

func (*AsCast) implExpr() {}

type SizeofExpr struct {
	base
	Type *TypeRef
}

func (*SizeofExpr) implExpr() {}

type TypeinfoExpr struct {
	base
	Type *TypeRef
}

func (*TypeinfoExpr) implExpr() {}

// Param is one formal parameter, used by both FuncDecl and ArrowFunc.
type Param struct {
	Name string
	Type *TypeRef // nil if untyped/inferred (arrow function params may omit it)
}

// ArrowFunc is `(params) => expr` or `(params) => { block }`.
type ArrowFunc struct {
	base
	Params     []Param
	ReturnType *TypeRef // nil if inferred
	ExprBody   Expr     // non-nil when the body is a bare expression
	BlockBody  *Block   // non-nil when the body is a block
}

func (*ArrowFunc) implExpr() {}

// --- Statements ---

type Block struct {
	base
	Stmts []Stmt
}

func (*Block) implStmt() {}

type LetStmt struct {
	base
	Const bool
	Name  string
	Type  *TypeRef // nil if inferred from Init
	Init  Expr     // may be nil only when Type is non-nil
}

func (*LetStmt) implStmt() {}

type ExprStmt struct {
	base
	Expr Expr
}

func (*ExprStmt) implStmt() {}

type IfStmt struct {
	base
	Cond       Expr
	Then, Else Stmt // Else nil if absent
}

func (*IfStmt) implStmt() {}

type WhileStmt struct {
	base
	Cond Expr
	Body Stmt
}

func (*WhileStmt) implStmt() {}

type DoWhileStmt struct {
	base
	Body Stmt
	Cond Expr
}

func (*DoWhileStmt) implStmt() {}

type ForStmt struct {
	base
	Init Stmt // LetStmt or ExprStmt, nil if absent
	Cond Expr // nil if absent
	Step Expr // nil if absent
	Body Stmt
}

func (*ForStmt) implStmt() {}

type ReturnStmt struct {
	base
	Expr Expr // nil for bare return
}

func (*ReturnStmt) implStmt() {}

type BreakStmt struct{ base }

func (*BreakStmt) implStmt() {}

type ContinueStmt struct{ base }

func (*ContinueStmt) implStmt() {}

// DeleteStmt is `delete expr;`, a trusted-only operation (spec.md §6.2,
// §7 "not_trusted").
type DeleteStmt struct {
	base
	Expr Expr
}

func (*DeleteStmt) implStmt() {}

// SwitchStmt, ThrowStmt, TryStmt are structurally parsed but compile to
// a "not yet implemented" diagnostic (spec.md §4.3.6, an explicit open
// question: keep reserved and rejected, not silently ignored).
type SwitchCase struct {
	Value Expr // nil for `default`
	Body  []Stmt
}

type SwitchStmt struct {
	base
	Subject Expr
	Cases   []SwitchCase
}

func (*SwitchStmt) implStmt() {}

type ThrowStmt struct {
	base
	Expr Expr
}

func (*ThrowStmt) implStmt() {}

type TryStmt struct {
	base
	Try     *Block
	CatchID string
	Catch   *Block // nil if no catch
	Finally *Block // nil if no finally
}

func (*TryStmt) implStmt() {}

// DeclStmt lets a class/function/type declaration appear as a
// statement inside a block (nested declarations).
type DeclStmt struct {
	base
	Decl Decl
}

func (*DeclStmt) implStmt() {}

// --- Declarations ---

type Access int

const (
	AccessDefault Access = iota // public at module scope, private inside a class unless stated
	AccessPublic
	AccessPrivate
	AccessTrusted
)

type FuncDecl struct {
	base
	Export     bool
	Access     Access
	Name       string
	TemplateParams []string // non-nil marks this a template
	Params     []Param
	ReturnType *TypeRef // nil if inferred
	Body       *Block   // nil for native/abstract declarations
}

func (*FuncDecl) implDecl() {}

// PropertyDecl is a class field or get/set accessor pair.
type PropertyDecl struct {
	base
	Access   Access
	Name     string
	Type     *TypeRef
	Getter   *FuncDecl // non-nil if declared via `get`
	Setter   *FuncDecl // non-nil if declared via `set`
}

func (*PropertyDecl) implDecl() {}

// OperatorDecl is `operator <op>(...)`.
type OperatorDecl struct {
	base
	Access Access
	Op     string // "+", "-", "==", "[]", "()" etc.
	Params []Param
	ReturnType *TypeRef
	Body   *Block
}

func (*OperatorDecl) implDecl() {}

type ClassDecl struct {
	base
	Export         bool
	Name           string
	TemplateParams []string
	Properties     []*PropertyDecl
	Methods        []*FuncDecl
	Operators      []*OperatorDecl
	Ctor           *FuncDecl // nil if implicit default
	Dtor           *FuncDecl // nil if trivial
}

func (*ClassDecl) implDecl() {}

// TypeDecl is `type Name = ...;`, possibly templated (`type Pair<A,B> = {...}`).
type TypeDecl struct {
	base
	Export         bool
	Name           string
	TemplateParams []string
	Underlying     *TypeRef
	// AnonymousFields is set instead of Underlying when the RHS is an
	// inline object type literal (`{ a: A; b: B; }`).
	AnonymousFields []Param
}

func (*TypeDecl) implDecl() {}

// ImportDecl is `import { names } from "path";`.
type ImportDecl struct {
	base
	Names []string
	Path  string
}

func (*ImportDecl) implDecl() {}

func (*ImportDecl) implStmt() {} // imports may only appear at top level in practice, but satisfying Stmt keeps Program uniform.

// Program is the root of a parsed module.
type Program struct {
	base
	Decls []Decl
}
