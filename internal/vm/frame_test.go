package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-run/brane/internal/ir"
)

func TestFrameStack_VarGetSet(t *testing.T) {
	fs := NewFrameStack()
	require.Nil(t, fs.VarSet(1, ir.Int(7), 0))

	v, err := fs.VarGet(1, 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(7), v)
}

func TestFrameStack_VarGetUnbound(t *testing.T) {
	fs := NewFrameStack()
	_, err := fs.VarGet(99, 0)
	require.NotNil(t, err)
	assert.Equal(t, VarGetError, err.Kind)
}

func TestFrameStack_PushPop(t *testing.T) {
	fs := NewFrameStack()
	require.Nil(t, fs.VarSet(1, ir.Int(1), 0))

	require.Nil(t, fs.Push(Frame{ReturnBody: "outer", ReturnOffset: 5}, 0))
	assert.Equal(t, 2, fs.Depth())

	// the new frame has its own variable register
	_, err := fs.VarGet(1, 0)
	require.NotNil(t, err)

	f, err := fs.Pop(0)
	require.Nil(t, err)
	assert.Equal(t, "outer", f.ReturnBody)
	assert.Equal(t, ir.EdgeIdx(5), f.ReturnOffset)
	assert.Equal(t, 1, fs.Depth())

	v, err := fs.VarGet(1, 0)
	require.Nil(t, err)
	assert.Equal(t, ir.Int(1), v)
}

func TestFrameStack_PopOutermostFails(t *testing.T) {
	fs := NewFrameStack()
	_, err := fs.Pop(0)
	require.NotNil(t, err)
	assert.Equal(t, FrameStackPopError, err.Kind)
}

func TestFrameStack_Fork_IsIndependent(t *testing.T) {
	fs := NewFrameStack()
	require.Nil(t, fs.VarSet(1, ir.Int(1), 0))

	forked, err := fs.Fork()
	require.Nil(t, err)

	require.Nil(t, forked.VarSet(1, ir.Int(2), 0))

	original, getErr := fs.VarGet(1, 0)
	require.Nil(t, getErr)
	assert.Equal(t, ir.Int(1), original)

	copy, getErr := forked.VarGet(1, 0)
	require.Nil(t, getErr)
	assert.Equal(t, ir.Int(2), copy)
}
