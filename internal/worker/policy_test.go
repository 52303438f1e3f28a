package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAllowList_AuthorizesKnownHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.yml")
	require.NoError(t, os.WriteFile(path, []byte("hashes:\n  - abc123\n  - def456\n"), 0o644))

	allow, err := LoadHashAllowList(path)
	require.NoError(t, err)

	ok, err := allow.Authorize("abc123", PolicyContext{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = allow.Authorize("unknown", PolicyContext{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadHashAllowList_MissingFile(t *testing.T) {
	_, err := LoadHashAllowList(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestExprReasoner_AuthorizesByExpression(t *testing.T) {
	r, err := NewExprReasoner(`image_hash == "abc123" && package == "acme/etl"`)
	require.NoError(t, err)

	ok, err := r.Authorize("abc123", PolicyContext{Package: "acme/etl"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Authorize("abc123", PolicyContext{Package: "other/pkg"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprReasoner_CompileError(t *testing.T) {
	_, err := NewExprReasoner("this is not valid expr syntax {{{")
	assert.Error(t, err)
}
