package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-run/brane/internal/ir"
)

func results(vs ...ir.Value) []branchResult {
	out := make([]branchResult, len(vs))
	for i, v := range vs {
		out[i] = branchResult{index: i, value: v}
	}
	return out
}

func TestApplyMerge_FirstPicksListOrder(t *testing.T) {
	v, err := applyMerge(ir.MergeFirst, results(ir.Int(10), ir.Int(20), ir.Int(30)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(10), v)
}

func TestApplyMerge_FirstBlockingSameAsFirst(t *testing.T) {
	v, err := applyMerge(ir.MergeFirstBlocking, results(ir.Int(10), ir.Int(20)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(10), v)
}

func TestApplyMerge_Last(t *testing.T) {
	v, err := applyMerge(ir.MergeLast, results(ir.Int(10), ir.Int(20), ir.Int(30)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(30), v)
}

func TestApplyMerge_Sum_Integer(t *testing.T) {
	v, err := applyMerge(ir.MergeSum, results(ir.Int(1), ir.Int(2), ir.Int(3)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(6), v)
}

func TestApplyMerge_Sum_PromotesToReal(t *testing.T) {
	v, err := applyMerge(ir.MergeSum, results(ir.Int(1), ir.Real(2.5)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Real(3.5), v)
}

func TestApplyMerge_Product(t *testing.T) {
	v, err := applyMerge(ir.MergeProduct, results(ir.Int(2), ir.Int(3), ir.Int(4)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(24), v)
}

func TestApplyMerge_MaxMin(t *testing.T) {
	maxV, err := applyMerge(ir.MergeMax, results(ir.Int(3), ir.Int(9), ir.Int(1)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(9), maxV)

	minV, err := applyMerge(ir.MergeMin, results(ir.Int(3), ir.Int(9), ir.Int(1)), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(1), minV)
}

func TestApplyMerge_NumericRejectsNonNumeric(t *testing.T) {
	_, err := applyMerge(ir.MergeSum, results(ir.Str("x")), 0)
	require.NotNil(t, err)
	assert.Equal(t, StackTypeError, err.Kind)
}

func TestApplyMerge_All(t *testing.T) {
	v, err := applyMerge(ir.MergeAll, results(ir.Int(1), ir.Str("a")), 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Arr([]ir.Value{ir.Int(1), ir.Str("a")}), v)
}

func TestApplyMerge_None(t *testing.T) {
	v, err := applyMerge(ir.MergeNone, results(ir.Void(), ir.Void()), 0)
	require.Nil(t, err)
	assert.True(t, v.IsVoid())
}

func TestApplyMerge_PropagatesBranchError(t *testing.T) {
	branchErr := newErr(Custom, 0, 0, "branch failed")
	rs := []branchResult{{index: 0, err: branchErr}, {index: 1, value: ir.Int(1)}}
	_, err := applyMerge(ir.MergeFirst, rs, 0)
	require.NotNil(t, err)
	assert.Equal(t, Custom, err.Kind)
}
