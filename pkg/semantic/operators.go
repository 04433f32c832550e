package semantic

import (
	"scriptc/pkg/ast"
	"scriptc/pkg/ir"
	"scriptc/pkg/types"
)

// numKindOf maps a primitive TypeID to the ir.NumKind an arithmetic,
// compare, or convert instruction operating on it should carry.
// Grounded on the teacher's TranslateBinaryOp/TranslateUnaryOp dispatch
// (operators.go): pick the typed operator variant from the operand's
// type rather than leaving it to the VM to infer at run time.
func (c *Compiler) numKindOf(t types.TypeID) ir.NumKind {
	entry, ok := c.Reg.Lookup(t)
	if !ok {
		return ir.KindSigned
	}
	prim, ok := entry.Type.(types.Primitive)
	if !ok {
		return ir.KindSigned
	}
	switch {
	case prim.Kind == types.PrimFloat32:
		return ir.KindFloat32
	case prim.Kind == types.PrimFloat64:
		return ir.KindFloat64
	case prim.Sign == types.Unsigned:
		return ir.KindUnsigned
	default:
		return ir.KindSigned
	}
}

// conversionRank scores how good a conversion from `from` to `to` is for
// overload resolution (spec.md §4.3.2): 0 for an identical type (best),
// small positive ranks for widening/promoting conversions, and a
// sentinel negative value when no conversion exists. Lower non-negative
// rank wins; a call ambiguous between two equal lowest ranks is the
// Semantic Compiler's cue to report cm_ambiguous_function.
const noConversion = -1

func (c *Compiler) conversionRank(from, to types.TypeID) int {
	if from == to {
		return 0
	}
	fromEntry, ok1 := c.Reg.Lookup(from)
	toEntry, ok2 := c.Reg.Lookup(to)
	if !ok1 || !ok2 {
		return noConversion
	}
	fromPrim, fromIsPrim := fromEntry.Type.(types.Primitive)
	toPrim, toIsPrim := toEntry.Type.(types.Primitive)
	if fromIsPrim && toIsPrim {
		return primitiveConversionRank(fromPrim, toPrim)
	}
	// Pointer-to-derived implicitly converts to pointer-to-base is out
	// of scope (no inheritance in spec.md's type lattice); a bare
	// pointer only converts to itself, already handled above.
	return noConversion
}

func primitiveConversionRank(from, to types.Primitive) int {
	switch {
	case from.IsInteger() && to.IsInteger():
		if to.Width >= from.Width {
			return 1 + (to.Width - from.Width)
		}
		return noConversion // narrowing requires an explicit `as` cast
	case from.IsInteger() && (to.Kind == types.PrimFloat32 || to.Kind == types.PrimFloat64):
		return 4
	case (from.Kind == types.PrimFloat32) && to.Kind == types.PrimFloat64:
		return 1
	case from.Kind == types.PrimBool && to.IsInteger():
		return 3
	default:
		return noConversion
	}
}

// binaryResultType resolves the arithmetic result type of a built-in
// binary operator over primitive operands: the wider of the two
// (spec.md §4.3.2 "usual arithmetic conversions"), or (0, false) if
// either operand is not a primitive (lowerBinary tries operator-overload
// candidates before calling this).
func (c *Compiler) binaryResultType(op ast.BinaryOp, left, right types.TypeID) (types.TypeID, bool) {
	le, lok := c.Reg.Lookup(left)
	re, rok := c.Reg.Lookup(right)
	if !lok || !rok {
		return 0, false
	}
	lp, lIsPrim := le.Type.(types.Primitive)
	rp, rIsPrim := re.Type.(types.Primitive)
	if !lIsPrim || !rIsPrim {
		return 0, false
	}
	switch op {
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe, ast.OpEq, ast.OpNe, ast.OpLAnd, ast.OpLOr:
		return c.Reg.Primitive("bool"), true
	}
	if lp.Kind == types.PrimFloat64 || rp.Kind == types.PrimFloat64 {
		return c.Reg.Primitive("f64"), true
	}
	if lp.Kind == types.PrimFloat32 || rp.Kind == types.PrimFloat32 {
		return c.Reg.Primitive("f32"), true
	}
	if lp.Width >= rp.Width {
		return left, true
	}
	return right, true
}

// irBinaryOp maps a source-level binary operator to the ir.Opcode that
// implements it; comparisons share ir.OpCmp and are distinguished by
// Condition instead.
func irBinaryOp(op ast.BinaryOp) (ir.Opcode, ir.Condition, bool) {
	switch op {
	case ast.OpAdd:
		return ir.OpAdd, 0, true
	case ast.OpSub:
		return ir.OpSub, 0, true
	case ast.OpMul:
		return ir.OpMul, 0, true
	case ast.OpDiv:
		return ir.OpDiv, 0, true
	case ast.OpMod:
		return ir.OpMod, 0, true
	case ast.OpBitAnd:
		return ir.OpAnd, 0, true
	case ast.OpBitOr:
		return ir.OpOr, 0, true
	case ast.OpBitXor:
		return ir.OpXor, 0, true
	case ast.OpShl:
		return ir.OpShl, 0, true
	case ast.OpShr:
		return ir.OpShr, 0, true
	case ast.OpLt:
		return ir.OpCmp, ir.CmpLt, true
	case ast.OpLe:
		return ir.OpCmp, ir.CmpLe, true
	case ast.OpGt:
		return ir.OpCmp, ir.CmpGt, true
	case ast.OpGe:
		return ir.OpCmp, ir.CmpGe, true
	case ast.OpEq:
		return ir.OpCmp, ir.CmpEq, true
	case ast.OpNe:
		return ir.OpCmp, ir.CmpNe, true
	}
	return ir.OpNop, 0, false
}

// irVectorBinaryOp maps a source-level binary operator to the vector
// opcode that implements it componentwise over two same-shape vector
// operands (spec.md §4.6's v{2,3,4}{f,d} add/sub/mul/div/mod forms).
// Comparison and bitwise operators have no vector form.
func irVectorBinaryOp(op ast.BinaryOp) (ir.Opcode, bool) {
	switch op {
	case ast.OpAdd:
		return ir.OpVAdd, true
	case ast.OpSub:
		return ir.OpVSub, true
	case ast.OpMul:
		return ir.OpVMul, true
	case ast.OpDiv:
		return ir.OpVDiv, true
	case ast.OpMod:
		return ir.OpVMod, true
	}
	return ir.OpNop, false
}

// operatorMethodName maps a binary/unary AST operator to the name an
// `operator` declaration would register it under (spec.md §6.2
// "operator <op>(...)"), used when the left operand is a user object
// type and no built-in lowering applies.
func operatorMethodName(op ast.BinaryOp) string {
	names := map[ast.BinaryOp]string{
		ast.OpAdd: "+", ast.OpSub: "-", ast.OpMul: "*", ast.OpDiv: "/", ast.OpMod: "%",
		ast.OpLt: "<", ast.OpLe: "<=", ast.OpGt: ">", ast.OpGe: ">=",
		ast.OpEq: "==", ast.OpNe: "!=",
		ast.OpBitAnd: "&", ast.OpBitOr: "|", ast.OpBitXor: "^", ast.OpShl: "<<", ast.OpShr: ">>",
	}
	return names[op]
}
