package edgebuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-run/brane/internal/ast"
	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/types"
	"github.com/brane-run/brane/internal/vm"
	"github.com/brane-run/brane/internal/vm/plugin"
)

func typedIntLit(v int64) *ast.Literal {
	l := &ast.Literal{Kind: types.KindInteger, Int: v}
	l.SetType(types.Integer)
	return l
}

func typedBoolLit(v bool) *ast.Literal {
	l := &ast.Literal{Kind: types.KindBoolean, Bool: v}
	l.SetType(types.Boolean)
	return l
}

func typedStringLit(v string) *ast.Literal {
	l := &ast.Literal{Kind: types.KindString, Str: v}
	l.SetType(types.String)
	return l
}

func runWorkflow(t *testing.T, wf ir.Workflow) (ir.Value, *vm.Error) {
	t.Helper()
	th := vm.NewThread(&wf, plugin.NewLocal(), nil)
	return th.Run(context.Background())
}

func TestBuild_SimpleReturn(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Value: typedIntLit(42)},
	}}
	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	v, err := runWorkflow(t, wf)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(42), v)
}

func TestBuild_IfBothArmsReturn_NoJoinEdge(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.If{
			Cond: typedBoolLit(true),
			Then: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Value: typedIntLit(1)}}},
			Else: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Value: typedIntLit(2)}}},
		},
	}}
	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	v, err := runWorkflow(t, wf)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(1), v)

	// both arms return: no join (Merge) edge is emitted for the branch.
	found := false
	for _, e := range wf.Graph {
		if e.Kind == ir.EdgeBranch {
			found = true
			assert.Equal(t, ir.NoEdge, e.Merge)
		}
	}
	assert.True(t, found, "expected a Branch edge in the graph")
}

func TestBuild_IfFalseArmFallsThrough(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.If{
			Cond: typedBoolLit(false),
			Then: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Value: typedIntLit(1)}}},
		},
		&ast.Return{Value: typedIntLit(99)},
	}}
	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	v, err := runWorkflow(t, wf)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(99), v)
}

func TestBuild_ParallelWithSumMerge(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.Parallel{
			Branches: []*ast.Block{
				{Stmts: []ast.Stmt{&ast.Return{Value: typedIntLit(3)}}},
				{Stmts: []ast.Stmt{&ast.Return{Value: typedIntLit(4)}}},
			},
			Merge: ast.MergeSum,
			Result: "total",
		},
		&ast.Return{Value: &ast.Identifier{Name: "total", ResolvedVar: intPtr(0)}},
	}}
	// set the Parallel's result variable slot, matching what resolve would do.
	block.Stmts[0].(*ast.Parallel).ResultVarIdx = 0

	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	v, err := runWorkflow(t, wf)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(7), v)
}

func TestBuild_WhileLoop(t *testing.T) {
	const counterVar = 0
	cond := &ast.BinOp{Op: "<", Left: &ast.Identifier{Name: "i", ResolvedVar: intPtr(counterVar)}, Right: typedIntLit(3)}
	cond.SetType(types.Boolean)

	incr := &ast.Assign{
		Target: &ast.Identifier{Name: "i", ResolvedVar: intPtr(counterVar)},
		Value: func() ast.Expr {
			bo := &ast.BinOp{Op: "+", Left: &ast.Identifier{Name: "i", ResolvedVar: intPtr(counterVar)}, Right: typedIntLit(1)}
			bo.SetType(types.Integer)
			return bo
		}(),
	}

	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.LetAssign{Name: "i", Value: typedIntLit(0), VarIdx: counterVar},
		&ast.While{Cond: cond, Body: &ast.Block{Stmts: []ast.Stmt{incr}}},
		&ast.Return{Value: &ast.Identifier{Name: "i", ResolvedVar: intPtr(counterVar)}},
	}}

	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	v, err := runWorkflow(t, wf)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(3), v)
}

func TestBuild_PrintlnBuiltinEmitsBuiltinEdge(t *testing.T) {
	arg := &ast.BinOp{Op: "+", Left: typedIntLit(1), Right: typedIntLit(2)}
	arg.SetType(types.Integer)

	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{Value: &ast.Call{Callee: &ast.Identifier{Name: "println"}, Args: []ast.Expr{arg}}},
		&ast.Return{Value: typedIntLit(0)},
	}}
	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	found := false
	for _, e := range wf.Graph {
		if e.Kind == ir.EdgeBuiltin {
			found = true
			assert.Equal(t, "println", e.Builtin)
			assert.Equal(t, 1, e.NumArgs)
		}
	}
	assert.True(t, found, "expected a Builtin edge for println")

	backend := plugin.NewLocal()
	th := vm.NewThread(&wf, backend, nil)
	_, err := th.Run(context.Background())
	require.Nil(t, err)
	assert.Equal(t, []string{"3\n"}, backend.StdoutLines)
}

func TestBuild_CommitResultBuiltinEmitsBuiltinEdge(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{Value: &ast.Call{
			Callee: &ast.Identifier{Name: "commit_result"},
			Args:   []ast.Expr{typedIntLit(7), typedStringLit("out")},
		}},
		&ast.Return{Value: typedIntLit(0)},
	}}
	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	backend := plugin.NewLocal()
	th := vm.NewThread(&wf, backend, nil)
	_, err := th.Run(context.Background())
	require.Nil(t, err)
	require.Len(t, backend.Committed, 1)
	assert.Equal(t, "out", backend.Committed[0].Name)
}

func TestBuild_LenBuiltinLowersToOpLen(t *testing.T) {
	arrLit := &ast.ArrayLit{Elems: []ast.Expr{typedIntLit(1), typedIntLit(2), typedIntLit(3)}}
	block := &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Value: &ast.Call{Callee: &ast.Identifier{Name: "len"}, Args: []ast.Expr{arrLit}}},
	}}
	b := New()
	wf := b.Build(block)
	require.Empty(t, b.Errors())

	for _, e := range wf.Graph {
		assert.NotEqual(t, ir.EdgeBuiltin, e.Kind, "len must not lower to a Builtin edge")
	}

	v, err := runWorkflow(t, wf)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(3), v)
}

func intPtr(i int) *int { return &i }
