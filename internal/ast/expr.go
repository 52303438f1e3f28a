package ast

import (
	"github.com/brane-run/brane/internal/diag"
	"github.com/brane-run/brane/internal/types"
)

type Expr interface {
	Node
	exprNode()
	// Type returns the DataType assigned by the type-check pass; it is
	// the zero DataType (Any) before type-check runs.
	Type() types.DataType
	SetType(types.DataType)
}

type exprBase struct {
	Rng diag.Range
	Typ types.DataType
}

func (e exprBase) Range() diag.Range     { return e.Rng }
func (e exprBase) Type() types.DataType  { return e.Typ }
func (e *exprBase) SetType(t types.DataType) { e.Typ = t }

// Identifier is a bare name reference — a variable, or (only as the
// callee of a Call) a function/task name.
type Identifier struct {
	exprBase
	Name string

	// Resolved by the resolve pass, one of:
	ResolvedVar   *int // index into the symtab variable TableList
	ResolvedFunc  *int // index into the symtab function TableList
}

// VarRef is an Identifier already known (by context) to name a
// variable; kept as a distinct alias so resolve's error messages can
// distinguish "undefined variable" from "undefined function".
type VarRef = Identifier

type Literal struct {
	exprBase
	// exactly one of these is meaningful, selected by Typ.Kind once
	// type-check runs; before that, Kind below disambiguates.
	Kind    types.Kind
	Bool    bool
	Int     int64
	Real    float64
	Str     string
}

type BinOp struct {
	exprBase
	Op    string // "+","-","*","/","%","<","<=",">",">=","==","!=","&&","||"
	Left  Expr
	Right Expr
}

type UnOp struct {
	exprBase
	Op      string // "-", "!"
	Operand Expr
}

type Call struct {
	exprBase
	Callee Expr // Identifier for a direct call; Proj for a method call
	Args   []Expr

	ResolvedFunc *int
}

// Proj is a field/method projection `a.b`.
type Proj struct {
	exprBase
	Left  Expr
	Field string

	// ResolvedClass is the class index the field was found on.
	ResolvedClass *int
}

type Index struct {
	exprBase
	Array Expr
	Idx   Expr
}

type ArrayLit struct {
	exprBase
	Elems []Expr
}

// NewInstance is `new ClassName{field: value, ...}`.
type NewInstance struct {
	exprBase
	ClassName string
	Fields    map[string]Expr

	ResolvedClass *int
}

// DataLit is `new Data{name: "..."}` sugar recognized structurally by
// the resolver (ClassName == "Data"): it must carry a string literal
// "name" field present in the DataIndex.
type DataLit struct {
	exprBase
	Name string
}

// Cast is inserted by the type-check pass wherever an implicit coercion
// applies; it never appears in the input AST.
type Cast struct {
	exprBase
	Value Expr
	To    types.DataType
}

func (*Identifier) exprNode()  {}
func (*Literal) exprNode()     {}
func (*BinOp) exprNode()       {}
func (*UnOp) exprNode()        {}
func (*Call) exprNode()        {}
func (*Proj) exprNode()        {}
func (*Index) exprNode()       {}
func (*ArrayLit) exprNode()    {}
func (*NewInstance) exprNode() {}
func (*DataLit) exprNode()     {}
func (*Cast) exprNode()        {}
