package ir

import "github.com/brane-run/brane/internal/types"

// EdgeIdx indexes into a Workflow's Graph or a function's edge list.
type EdgeIdx int

// NoEdge marks an absent optional edge reference.
const NoEdge EdgeIdx = -1

type EdgeKind int

const (
	EdgeLinear EdgeKind = iota
	EdgeNode
	EdgeBranch
	EdgeParallel
	EdgeJoin
	EdgeLoop
	EdgeCall
	EdgeReturn
	EdgeStop
	EdgeBuiltin
)

// MergeStrategy mirrors ast.MergeStrategy without importing the ast
// package (ir must stay importable by the VM/worker without pulling in
// the compiler front-end).
type MergeStrategy int

const (
	MergeFirst MergeStrategy = iota
	MergeFirstBlocking
	MergeLast
	MergeSum
	MergeProduct
	MergeMax
	MergeMin
	MergeAll
	MergeNone
)

// AccessKind is how a worker may reach a dataset. File is the only
// variant currently defined.
type AccessKind struct {
	Path string
}

// Availability is the planner's per-dataset decision for a Node edge's
// input set.
type Availability struct {
	Available bool
	How       AccessKind    // meaningful when Available
	Transfer  TransferSpec  // meaningful when !Available
}

// TransferSpec describes how to fetch an unavailable dataset from its
// owning node; populated by the planner, consumed by Worker.Preprocess.
type TransferSpec struct {
	SourceNode string
	DataName   string
}

// Edge is one workflow-IR graph node. Exactly one of the typed payload
// fields is meaningful, selected by Kind.
type Edge struct {
	Kind EdgeKind

	// Linear
	Instrs []Instr
	Next   EdgeIdx

	// Node
	Task     string
	At       *string // nil if unconstrained location
	Input    map[string]*Availability
	Result   string   // "" if no result bound
	ArgNames []string // names the popped argument values bind to, in pop order

	// Branch
	TrueNext  EdgeIdx
	FalseNext EdgeIdx
	Merge     EdgeIdx // join target; NoEdge if both arms fully return

	// Parallel
	Branches []EdgeIdx
	// Parallel.Merge reuses the Merge field above as the join edge index.

	// Join
	JoinStrategy MergeStrategy

	// Loop
	Cond EdgeIdx
	Body EdgeIdx
	// Loop.Next reuses Next above.

	// Builtin: print/println/commit_result, dispatched at the Call site
	// instead of routed through Workflow.Funcs. NumArgs values are
	// popped off the stack, in push order, before the builtin runs;
	// Builtin.Next reuses Next above.
	Builtin string
	NumArgs int
}

// Instr is one Linear micro-instruction. Op selects which field(s) are
// meaningful, mirroring the Edge discriminated-union convention above.
type InstrOp int

const (
	OpCast InstrOp = iota
	OpPop
	OpPopMarker
	OpDynamicPop
	OpBranch
	OpBranchNot
	OpNot
	OpNeg
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpArray
	OpArrayIndex
	OpInstance
	OpProj
	OpVarGet
	OpVarSet
	OpPushNull
	OpPushBoolean
	OpPushInteger
	OpPushReal
	OpPushString
	OpPushFunction
	OpLen
)

type Instr struct {
	Op InstrOp

	// OpCast, OpArray (elem type), OpArrayIndex
	CastType types.DataType

	// OpBranch, OpBranchNot: offset within the Linear's own instruction
	// list (not a graph-wide EdgeIdx).
	LocalNext int

	// OpArray
	ArrayLen int

	// OpInstance: Def is the class index; FieldNames gives the name
	// each popped value binds to, in the same order the values were
	// pushed (so the instruction can rebuild the field map without
	// relying on map iteration order at compile time).
	Def        int
	ClassName  string
	FieldNames []string

	// OpProj
	Field string

	// OpVarGet, OpVarSet
	VarDef int

	// constant pushes; OpPushFunction uses Str for the function name
	Bool bool
	Int  int64
	Real float64
	Str  string
}

// Workflow is the compiled, flat program: a top-level Graph plus one
// edge list per user-defined function, addressed by name.
type Workflow struct {
	Graph   []Edge
	Funcs   map[string][]Edge
	Results map[string]EdgeIdx // name -> the Node edge producing it, for the planner

	// FuncNames records every user function/method name this Workflow
	// defines, in definition order; used when enumerating callable
	// symbols (e.g. for diagnostics) rather than for addressing.
	FuncNames []string
}

// FuncDefOf records name (if not already present) and returns it
// unchanged; kept so edge-build call sites read symmetrically with the
// rest of the definition-collection pass.
func (wf *Workflow) FuncDefOf(name string) string {
	for _, n := range wf.FuncNames {
		if n == name {
			return name
		}
	}
	wf.FuncNames = append(wf.FuncNames, name)
	return name
}

// TopLevel is the sentinel "body" identifying Workflow.Graph in a
// thread program counter, as opposed to one of Workflow.Funcs.
const TopLevel = ""
