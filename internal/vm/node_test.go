package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/vm/plugin"
)

func newNodeTestThread(backend plugin.Backend) *Thread {
	return &Thread{
		Workflow: &ir.Workflow{},
		Backend:  backend,
		Stack:    NewStack(),
		Frames:   NewFrameStack(),
	}
}

func TestExecNode_SimpleTaskPushesResult(t *testing.T) {
	backend := plugin.NewLocal()
	backend.Tasks["double"] = func(ctx context.Context, info plugin.TaskInfo) (*ir.FullValue, error) {
		in, _ := info.Args["n"].ToValue()
		fv, err := ir.ToFullValue(ir.Int(in.Int * 2))
		return &fv, err
	}

	th := newNodeTestThread(backend)
	th.Stack.Push(ir.Int(21))

	edge := ir.Edge{
		Kind:     ir.EdgeNode,
		Task:     "double",
		ArgNames: []string{"n"},
		Result:   "out",
		Input:    map[string]*ir.Availability{},
	}
	err := th.execNode(context.Background(), edge, 0)
	require.Nil(t, err)

	v, perr := th.Stack.Pop(0)
	require.Nil(t, perr)
	assert.Equal(t, ir.Int(42), v)
}

func TestExecNode_NoResultBoundLeavesStackEmpty(t *testing.T) {
	backend := plugin.NewLocal()
	backend.Tasks["sideeffect"] = func(ctx context.Context, info plugin.TaskInfo) (*ir.FullValue, error) {
		return nil, nil
	}
	th := newNodeTestThread(backend)
	edge := ir.Edge{Kind: ir.EdgeNode, Task: "sideeffect", Input: map[string]*ir.Availability{}}
	err := th.execNode(context.Background(), edge, 0)
	require.Nil(t, err)
	assert.Equal(t, 0, th.Stack.Len())
}

func TestExecNode_NilResultWithBoundNamePublicizesIntermediateResult(t *testing.T) {
	backend := plugin.NewLocal()
	backend.Tasks["produce"] = func(ctx context.Context, info plugin.TaskInfo) (*ir.FullValue, error) {
		return nil, nil
	}
	th := newNodeTestThread(backend)
	edge := ir.Edge{Kind: ir.EdgeNode, Task: "produce", Result: "step1", Input: map[string]*ir.Availability{}}
	err := th.execNode(context.Background(), edge, 0)
	require.Nil(t, err)

	v, perr := th.Stack.Pop(0)
	require.Nil(t, perr)
	assert.Equal(t, ir.VIntermediateResult, v.Kind)
	assert.Equal(t, "step1", v.Str)
}

func TestExecNode_UnknownTaskWrapsAsCustomError(t *testing.T) {
	backend := plugin.NewLocal()
	th := newNodeTestThread(backend)
	edge := ir.Edge{Kind: ir.EdgeNode, Task: "missing", Input: map[string]*ir.Availability{}}
	err := th.execNode(context.Background(), edge, 0)
	require.NotNil(t, err)
	assert.Equal(t, Custom, err.Kind)
}

func TestExecNode_UnavailableDatasetIsPreprocessed(t *testing.T) {
	backend := plugin.NewLocal()
	backend.Tasks["consume"] = func(ctx context.Context, info plugin.TaskInfo) (*ir.FullValue, error) {
		access, ok := info.Input["weather"]
		if !ok {
			t.Fatal("expected weather input to be preprocessed")
		}
		fv, err := ir.ToFullValue(ir.Str(access.Path))
		return &fv, err
	}
	th := newNodeTestThread(backend)
	th.Stack.Push(ir.Data("weather"))

	edge := ir.Edge{
		Kind:     ir.EdgeNode,
		Task:     "consume",
		ArgNames: []string{"d"},
		Result:   "out",
		Input: map[string]*ir.Availability{
			"weather": {Available: false, Transfer: ir.TransferSpec{SourceNode: "node1", DataName: "weather"}},
		},
	}
	err := th.execNode(context.Background(), edge, 0)
	require.Nil(t, err)

	v, _ := th.Stack.Pop(0)
	assert.Equal(t, ir.Str("/data/weather"), v)
}

func TestExecNode_UnknownInputErrors(t *testing.T) {
	backend := plugin.NewLocal()
	backend.Tasks["consume"] = func(ctx context.Context, info plugin.TaskInfo) (*ir.FullValue, error) {
		return nil, nil
	}
	th := newNodeTestThread(backend)
	th.Stack.Push(ir.Data("weather"))

	edge := ir.Edge{
		Kind:     ir.EdgeNode,
		Task:     "consume",
		ArgNames: []string{"d"},
		Input:    map[string]*ir.Availability{},
	}
	err := th.execNode(context.Background(), edge, 0)
	require.NotNil(t, err)
	assert.Equal(t, UnknownInput, err.Kind)
}
