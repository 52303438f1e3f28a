package ir

import (
	"encoding/json"
	"fmt"

	"github.com/brane-run/brane/internal/types"
)

// wireEdge is the tag-per-variant JSON shape for Edge, matching the
// "Workflow IR (serialized form)" wire contract used between the
// planner and the worker.
type wireEdge struct {
	Type string `json:"type"`

	Instrs []wireInstr `json:"instrs,omitempty"`
	Next   *int        `json:"next,omitempty"`

	Task     string                `json:"task,omitempty"`
	At       *string               `json:"at,omitempty"`
	Input    map[string]*wireAvail `json:"input,omitempty"`
	Result   string                `json:"result,omitempty"`
	ArgNames []string              `json:"arg_names,omitempty"`

	TrueNext  *int `json:"true_next,omitempty"`
	FalseNext *int `json:"false_next,omitempty"`
	Merge     *int `json:"merge,omitempty"`

	Branches []int `json:"branches,omitempty"`

	JoinStrategy string `json:"strategy,omitempty"`

	Cond *int `json:"cond,omitempty"`
	Body *int `json:"body,omitempty"`

	Builtin string `json:"builtin,omitempty"`
	NumArgs int    `json:"num_args,omitempty"`
}

type wireAvail struct {
	Available bool    `json:"available"`
	Path      string  `json:"path,omitempty"`
	FromNode  string  `json:"from_node,omitempty"`
	DataName  string  `json:"data_name,omitempty"`
}

type wireInstr struct {
	Op         string   `json:"op"`
	Type       string   `json:"cast_type,omitempty"`
	Next       int      `json:"next,omitempty"`
	Len        int      `json:"len,omitempty"`
	Def        int      `json:"def,omitempty"`
	ClassName  string   `json:"class_name,omitempty"`
	FieldNames []string `json:"field_names,omitempty"`
	Field      string   `json:"field,omitempty"`
	VarDef     int      `json:"var_def,omitempty"`
	Bool     bool   `json:"bool,omitempty"`
	Int      int64  `json:"int,omitempty"`
	Real     float64 `json:"real,omitempty"`
	Str      string `json:"str,omitempty"`
}

var edgeKindNames = map[EdgeKind]string{
	EdgeLinear:   "linear",
	EdgeNode:     "node",
	EdgeBranch:   "branch",
	EdgeParallel: "parallel",
	EdgeJoin:     "join",
	EdgeLoop:     "loop",
	EdgeCall:     "call",
	EdgeReturn:   "return",
	EdgeStop:     "stop",
	EdgeBuiltin:  "builtin",
}

var edgeKindByName = func() map[string]EdgeKind {
	m := map[string]EdgeKind{}
	for k, v := range edgeKindNames {
		m[v] = k
	}
	return m
}()

var mergeStrategyNames = map[MergeStrategy]string{
	MergeFirst:         "first",
	MergeFirstBlocking: "first_blocking",
	MergeLast:          "last",
	MergeSum:           "sum",
	MergeProduct:       "product",
	MergeMax:           "max",
	MergeMin:           "min",
	MergeAll:           "all",
	MergeNone:          "none",
}

var mergeStrategyByName = func() map[string]MergeStrategy {
	m := map[string]MergeStrategy{}
	for k, v := range mergeStrategyNames {
		m[v] = k
	}
	return m
}()

var instrOpNames = map[InstrOp]string{
	OpCast: "cast", OpPop: "pop", OpPopMarker: "pop_marker", OpDynamicPop: "dynamic_pop",
	OpBranch: "branch", OpBranchNot: "branch_not", OpNot: "not", OpNeg: "neg",
	OpAnd: "and", OpOr: "or", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge",
	OpArray: "array", OpArrayIndex: "array_index", OpInstance: "instance", OpProj: "proj",
	OpVarGet: "var_get", OpVarSet: "var_set",
	OpPushNull: "push_null", OpPushBoolean: "push_boolean", OpPushInteger: "push_integer",
	OpPushReal: "push_real", OpPushString: "push_string", OpPushFunction: "push_function",
	OpLen: "len",
}

var instrOpByName = func() map[string]InstrOp {
	m := map[string]InstrOp{}
	for k, v := range instrOpNames {
		m[v] = k
	}
	return m
}()

func idxPtr(e EdgeIdx) *int {
	if e == NoEdge {
		return nil
	}
	v := int(e)
	return &v
}

func idxVal(p *int) EdgeIdx {
	if p == nil {
		return NoEdge
	}
	return EdgeIdx(*p)
}

func toWireEdge(e Edge) (wireEdge, error) {
	name, ok := edgeKindNames[e.Kind]
	if !ok {
		return wireEdge{}, fmt.Errorf("unknown edge kind %d", e.Kind)
	}
	w := wireEdge{Type: name}
	switch e.Kind {
	case EdgeLinear:
		w.Next = idxPtr(e.Next)
		for _, in := range e.Instrs {
			wi, err := toWireInstr(in)
			if err != nil {
				return wireEdge{}, err
			}
			w.Instrs = append(w.Instrs, wi)
		}
	case EdgeNode:
		w.Task, w.At, w.Result, w.Next, w.ArgNames = e.Task, e.At, e.Result, idxPtr(e.Next), e.ArgNames
		if e.Input != nil {
			w.Input = map[string]*wireAvail{}
			for k, v := range e.Input {
				w.Input[k] = toWireAvail(v)
			}
		}
	case EdgeBranch:
		w.TrueNext, w.FalseNext, w.Merge = idxPtr(e.TrueNext), idxPtr(e.FalseNext), idxPtr(e.Merge)
	case EdgeParallel:
		w.Merge = idxPtr(e.Merge)
		for _, b := range e.Branches {
			w.Branches = append(w.Branches, int(b))
		}
	case EdgeJoin:
		w.JoinStrategy = mergeStrategyNames[e.JoinStrategy]
		w.Next = idxPtr(e.Next)
	case EdgeLoop:
		w.Cond, w.Body, w.Next = idxPtr(e.Cond), idxPtr(e.Body), idxPtr(e.Next)
	case EdgeCall:
		w.Next = idxPtr(e.Next)
	case EdgeBuiltin:
		w.Builtin, w.NumArgs, w.Next = e.Builtin, e.NumArgs, idxPtr(e.Next)
	case EdgeReturn, EdgeStop:
		// no payload
	}
	return w, nil
}

func toWireAvail(a *Availability) *wireAvail {
	if a == nil {
		return nil
	}
	if a.Available {
		return &wireAvail{Available: true, Path: a.How.Path}
	}
	return &wireAvail{Available: false, FromNode: a.Transfer.SourceNode, DataName: a.Transfer.DataName}
}

func fromWireAvail(w *wireAvail) *Availability {
	if w == nil {
		return nil
	}
	if w.Available {
		return &Availability{Available: true, How: AccessKind{Path: w.Path}}
	}
	return &Availability{Available: false, Transfer: TransferSpec{SourceNode: w.FromNode, DataName: w.DataName}}
}

func fromWireEdge(w wireEdge) (Edge, error) {
	kind, ok := edgeKindByName[w.Type]
	if !ok {
		return Edge{}, fmt.Errorf("unknown edge type %q", w.Type)
	}
	e := Edge{Kind: kind}
	switch kind {
	case EdgeLinear:
		e.Next = idxVal(w.Next)
		for _, wi := range w.Instrs {
			in, err := fromWireInstr(wi)
			if err != nil {
				return Edge{}, err
			}
			e.Instrs = append(e.Instrs, in)
		}
	case EdgeNode:
		e.Task, e.At, e.Result, e.Next, e.ArgNames = w.Task, w.At, w.Result, idxVal(w.Next), w.ArgNames
		if w.Input != nil {
			e.Input = map[string]*Availability{}
			for k, v := range w.Input {
				e.Input[k] = fromWireAvail(v)
			}
		}
	case EdgeBranch:
		e.TrueNext, e.FalseNext, e.Merge = idxVal(w.TrueNext), idxVal(w.FalseNext), idxVal(w.Merge)
	case EdgeParallel:
		e.Merge = idxVal(w.Merge)
		for _, b := range w.Branches {
			e.Branches = append(e.Branches, EdgeIdx(b))
		}
	case EdgeJoin:
		strat, ok := mergeStrategyByName[w.JoinStrategy]
		if !ok {
			return Edge{}, fmt.Errorf("unknown merge strategy %q", w.JoinStrategy)
		}
		e.JoinStrategy = strat
		e.Next = idxVal(w.Next)
	case EdgeLoop:
		e.Cond, e.Body, e.Next = idxVal(w.Cond), idxVal(w.Body), idxVal(w.Next)
	case EdgeCall:
		e.Next = idxVal(w.Next)
	case EdgeBuiltin:
		e.Builtin, e.NumArgs, e.Next = w.Builtin, w.NumArgs, idxVal(w.Next)
	}
	return e, nil
}

func toWireInstr(in Instr) (wireInstr, error) {
	name, ok := instrOpNames[in.Op]
	if !ok {
		return wireInstr{}, fmt.Errorf("unknown instruction op %d", in.Op)
	}
	return wireInstr{
		Op: name, Type: in.CastType.String(), Next: in.LocalNext, Len: in.ArrayLen,
		Def: in.Def, ClassName: in.ClassName, FieldNames: in.FieldNames, Field: in.Field, VarDef: in.VarDef,
		Bool: in.Bool, Int: in.Int, Real: in.Real, Str: in.Str,
	}, nil
}

func fromWireInstr(w wireInstr) (Instr, error) {
	op, ok := instrOpByName[w.Op]
	if !ok {
		return Instr{}, fmt.Errorf("unknown instruction op %q", w.Op)
	}
	instr := Instr{
		Op: op, LocalNext: w.Next, ArrayLen: w.Len, Def: w.Def, ClassName: w.ClassName, FieldNames: w.FieldNames, Field: w.Field,
		VarDef: w.VarDef, Bool: w.Bool, Int: w.Int, Real: w.Real, Str: w.Str,
	}
	if w.Type != "" {
		instr.CastType = types.ParseDataType(w.Type)
	}
	return instr, nil
}

// wireWorkflow is the {graph, funcs, table, results} JSON shape a
// Workflow serializes to. table (the symbol table) is opaque here —
// the compiler and VM share it in-process; across the wire it travels
// as whatever the planner's symtab.Table marshals to, so it is carried
// as raw JSON.
type wireWorkflow struct {
	Graph   []wireEdge            `json:"graph"`
	Funcs   map[string][]wireEdge `json:"funcs"`
	Table   json.RawMessage       `json:"table,omitempty"`
	Results map[string]int        `json:"results,omitempty"`
}

func (wf Workflow) MarshalJSON() ([]byte, error) {
	w := wireWorkflow{Funcs: map[string][]wireEdge{}, Results: map[string]int{}}
	for _, e := range wf.Graph {
		we, err := toWireEdge(e)
		if err != nil {
			return nil, err
		}
		w.Graph = append(w.Graph, we)
	}
	for name, edges := range wf.Funcs {
		var wes []wireEdge
		for _, e := range edges {
			we, err := toWireEdge(e)
			if err != nil {
				return nil, err
			}
			wes = append(wes, we)
		}
		w.Funcs[name] = wes
	}
	for name, idx := range wf.Results {
		w.Results[name] = int(idx)
	}
	return json.Marshal(w)
}

func (wf *Workflow) UnmarshalJSON(b []byte) error {
	var w wireWorkflow
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	wf.Funcs = map[string][]Edge{}
	wf.Results = map[string]EdgeIdx{}
	for _, we := range w.Graph {
		e, err := fromWireEdge(we)
		if err != nil {
			return err
		}
		wf.Graph = append(wf.Graph, e)
	}
	for name, wes := range w.Funcs {
		var edges []Edge
		for _, we := range wes {
			e, err := fromWireEdge(we)
			if err != nil {
				return err
			}
			edges = append(edges, e)
		}
		wf.Funcs[name] = edges
	}
	for name, idx := range w.Results {
		wf.Results[name] = EdgeIdx(idx)
	}
	return nil
}
