package vm

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/vm/plugin"
)

// pc is a thread's program counter: Body == ir.TopLevel ("") addresses
// Workflow.Graph, any other value indexes Workflow.Funcs.
type pc struct {
	Body   string
	Offset ir.EdgeIdx
}

// Thread executes one sequential path through a Workflow. A Parallel
// edge spawns one child Thread per branch, each with a forked
// FrameStack; they share the parent's Workflow, Backend, and Global
// state.
type Thread struct {
	Workflow *ir.Workflow
	Backend  plugin.Backend
	Global   any
	Local    any

	Stack  *Stack
	Frames *FrameStack

	pc pc
}

// NewThread starts a thread at the top level of wf.
func NewThread(wf *ir.Workflow, backend plugin.Backend, global any) *Thread {
	return &Thread{
		Workflow: wf,
		Backend:  backend,
		Global:   global,
		Stack:    NewStack(),
		Frames:   NewFrameStack(),
		pc:       pc{Body: ir.TopLevel, Offset: 0},
	}
}

func (t *Thread) body() []ir.Edge {
	if t.pc.Body == ir.TopLevel {
		return t.Workflow.Graph
	}
	return t.Workflow.Funcs[t.pc.Body]
}

// Run drives the fetch-decode-execute loop to completion, returning the
// thread's final value (Void if it falls off the end of the top level)
// or the first fatal VM error encountered.
func (t *Thread) Run(ctx context.Context) (ir.Value, *Error) {
	for {
		body := t.body()
		if int(t.pc.Offset) >= len(body) {
			if t.pc.Body == ir.TopLevel {
				return ir.Void(), nil
			}
			return ir.Value{}, newErr(ReturnTypeError, int(t.pc.Offset), -1, "function body %q overran without a Return", t.pc.Body)
		}
		edge := body[t.pc.Offset]
		edgeIdx := int(t.pc.Offset)

		switch edge.Kind {
		case ir.EdgeLinear:
			if err := t.execLinear(edge, edgeIdx); err != nil {
				return ir.Value{}, err
			}
			t.pc.Offset = edge.Next

		case ir.EdgeNode:
			if err := t.execNode(ctx, edge, edgeIdx); err != nil {
				return ir.Value{}, err
			}
			t.pc.Offset = edge.Next

		case ir.EdgeBranch:
			cond, err := t.Stack.Pop(edgeIdx)
			if err != nil {
				return ir.Value{}, err
			}
			if cond.Kind != ir.VBoolean {
				return ir.Value{}, newErr(IllegalBranchType, edgeIdx, -1, "branch condition is not Boolean")
			}
			if cond.Bool {
				t.pc.Offset = edge.TrueNext
			} else {
				if edge.FalseNext == ir.NoEdge {
					t.pc.Offset = edge.Merge
				} else {
					t.pc.Offset = edge.FalseNext
				}
			}

		case ir.EdgeParallel:
			result, err := t.execParallel(ctx, edge, edgeIdx)
			if err != nil {
				return ir.Value{}, err
			}
			if !result.IsVoid() {
				t.Stack.Push(result)
			}
			// The Join edge's own strategy was already applied above;
			// skip straight to its continuation.
			t.pc.Offset = body[edge.Merge].Next

		case ir.EdgeJoin:
			// Reached directly only when a Join is entered by something
			// other than the Parallel edge above (defensive fallback);
			// the common path already advanced past it in EdgeParallel.
			t.pc.Offset = edge.Next

		case ir.EdgeLoop:
			condVal, err := t.evalLoopCond(edge, edgeIdx)
			if err != nil {
				return ir.Value{}, err
			}
			if condVal {
				t.pc.Offset = edge.Body
				continue
			}
			t.pc.Offset = edge.Next

		case ir.EdgeCall:
			callee, err := t.Stack.Pop(edgeIdx)
			if err != nil {
				return ir.Value{}, err
			}
			if callee.Kind != ir.VFunction {
				return ir.Value{}, newErr(FunctionTypeError, edgeIdx, -1, "call target is not a Function")
			}
			funcName := callee.FuncName
			perr := t.Frames.Push(Frame{ReturnBody: t.pc.Body, ReturnOffset: edge.Next}, edgeIdx)
			if perr != nil {
				return ir.Value{}, perr
			}
			t.pc = pc{Body: funcName, Offset: 0}

		case ir.EdgeBuiltin:
			if err := t.execBuiltin(ctx, edge, edgeIdx); err != nil {
				return ir.Value{}, err
			}
			t.pc.Offset = edge.Next

		case ir.EdgeReturn:
			var retVal ir.Value
			if t.Stack.Len() > 0 {
				v, _ := t.Stack.Peek(edgeIdx)
				retVal = v
				_, _ = t.Stack.Pop(edgeIdx)
			} else {
				retVal = ir.Void()
			}
			if t.Frames.Depth() <= 1 {
				return retVal, nil
			}
			frame, ferr := t.Frames.Pop(edgeIdx)
			if ferr != nil {
				return ir.Value{}, ferr
			}
			if !retVal.IsVoid() {
				t.Stack.Push(retVal)
			}
			t.pc = pc{Body: frame.ReturnBody, Offset: frame.ReturnOffset}

		case ir.EdgeStop:
			if t.Stack.Len() > 0 {
				v, _ := t.Stack.Peek(edgeIdx)
				return v, nil
			}
			return ir.Void(), nil

		default:
			return ir.Value{}, newErr(StackTypeError, edgeIdx, -1, "unknown edge kind %d", edge.Kind)
		}
	}
}

// evalLoopCond executes the loop's condition sub-path (a Linear edge
// ending in a dangling continuation) and pops the resulting Boolean.
func (t *Thread) evalLoopCond(loopEdge ir.Edge, edgeIdx int) (bool, *Error) {
	body := t.body()
	condEdge := body[loopEdge.Cond]
	if condEdge.Kind != ir.EdgeLinear {
		return false, newErr(IllegalBranchType, int(loopEdge.Cond), -1, "loop condition is not a Linear edge")
	}
	if err := t.execLinear(condEdge, int(loopEdge.Cond)); err != nil {
		return false, err
	}
	v, err := t.Stack.Pop(int(loopEdge.Cond))
	if err != nil {
		return false, err
	}
	if v.Kind != ir.VBoolean {
		return false, newErr(IllegalBranchType, int(loopEdge.Cond), -1, "loop condition is not Boolean")
	}
	return v.Bool, nil
}

// execParallel spawns one child Thread per branch (each with a forked
// FrameStack), waits for all to finish, and applies the join's merge
// strategy. Suspension for Join is cooperative: this call blocks the
// parent goroutine until every branch thread completes.
func (t *Thread) execParallel(ctx context.Context, edge ir.Edge, edgeIdx int) (ir.Value, *Error) {
	body := t.body()
	joinEdge := body[edge.Merge]

	results := make([]branchResult, len(edge.Branches))
	var wg sync.WaitGroup
	for i, branchStart := range edge.Branches {
		wg.Add(1)
		go func(i int, start ir.EdgeIdx) {
			defer wg.Done()
			forked, ferr := t.Frames.Fork()
			if ferr != nil {
				results[i] = branchResult{index: i, err: ferr}
				return
			}
			child := &Thread{
				Workflow: t.Workflow,
				Backend:  t.Backend,
				Global:   t.Global,
				Local:    t.Local,
				Stack:    NewStack(),
				Frames:   forked,
				pc:       pc{Body: t.pc.Body, Offset: start},
			}
			v, err := child.Run(ctx)
			results[i] = branchResult{index: i, value: v, err: err}
		}(i, branchStart)
	}
	wg.Wait()

	return applyMerge(joinEdge.JoinStrategy, results, edgeIdx)
}

// collectDataNames walks v for embedded Data/IntermediateResult names
// and returns them as a set. Nothing in this package calls it; execNode
// collects a Node edge's preprocess set on its own.
func collectDataNames(v ir.Value) mapset.Set[string] {
	names := mapset.NewSet[string]()
	ir.Walk(v, func(nested ir.Value) {
		if nested.Kind == ir.VData || nested.Kind == ir.VIntermediateResult {
			names.Add(nested.Str)
		}
	})
	return names
}
