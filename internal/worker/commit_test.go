package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	base := t.TempDir()
	cfg := &NodeConfig{}
	cfg.Paths.Data = filepath.Join(base, "data")
	cfg.Paths.TempResults = filepath.Join(base, "temp_results")
	require.NoError(t, os.MkdirAll(cfg.Paths.Data, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Paths.TempResults, 0o755))
	return &Worker{Config: cfg}
}

// regression test for a copy bug where committed data files were
// silently truncated to empty.
func TestCommit_CopiesFileContentsIntact(t *testing.T) {
	w := newTestWorker(t)

	resultDir := filepath.Join(w.Config.Paths.TempResults, "res1")
	require.NoError(t, os.MkdirAll(resultDir, 0o755))
	want := []byte("some real result bytes, not empty")
	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "out.bin"), want, 0o644))

	require.NoError(t, w.Commit(CommitRequest{ResultName: "res1", DatasetName: "ds1"}))

	got, err := os.ReadFile(filepath.Join(w.Config.Paths.Data, "ds1", "data", "out.bin"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// temp result directory is consumed.
	_, err = os.Stat(resultDir)
	assert.True(t, os.IsNotExist(err))
}

func TestCommit_WritesDataYAML(t *testing.T) {
	w := newTestWorker(t)
	resultDir := filepath.Join(w.Config.Paths.TempResults, "res1")
	require.NoError(t, os.MkdirAll(resultDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "f.txt"), []byte("x"), 0o644))

	require.NoError(t, w.Commit(CommitRequest{ResultName: "res1", DatasetName: "ds1"}))

	b, err := os.ReadFile(filepath.Join(w.Config.Paths.Data, "ds1", "data.yml"))
	require.NoError(t, err)

	var doc datasetYAML
	require.NoError(t, yaml.Unmarshal(b, &doc))
	assert.Equal(t, "ds1", doc.Name)
	require.NotNil(t, doc.Access.File)
}

func TestCommit_ReplacesExistingDatasetDataDir(t *testing.T) {
	w := newTestWorker(t)

	datasetDir := filepath.Join(w.Config.Paths.Data, "ds1")
	oldDataDir := filepath.Join(datasetDir, "data")
	require.NoError(t, os.MkdirAll(oldDataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDataDir, "stale.txt"), []byte("old"), 0o644))

	resultDir := filepath.Join(w.Config.Paths.TempResults, "res2")
	require.NoError(t, os.MkdirAll(resultDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "fresh.txt"), []byte("new"), 0o644))

	require.NoError(t, w.Commit(CommitRequest{ResultName: "res2", DatasetName: "ds1"}))

	_, err := os.Stat(filepath.Join(oldDataDir, "stale.txt"))
	assert.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(filepath.Join(oldDataDir, "fresh.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestCommit_PreservesExistingDataYAMLOnRecommit(t *testing.T) {
	w := newTestWorker(t)

	resultDir := filepath.Join(w.Config.Paths.TempResults, "res1")
	require.NoError(t, os.MkdirAll(resultDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "f.txt"), []byte("x"), 0o644))
	require.NoError(t, w.Commit(CommitRequest{ResultName: "res1", DatasetName: "ds1"}))

	dataYAMLPath := filepath.Join(w.Config.Paths.Data, "ds1", "data.yml")
	original, err := os.ReadFile(dataYAMLPath)
	require.NoError(t, err)

	// hand-edit data.yml the way an operator's owners/description
	// fields would persist across a recommit.
	edited := append(append([]byte{}, original...), []byte("\nowners:\n  - alice\n")...)
	require.NoError(t, os.WriteFile(dataYAMLPath, edited, 0o644))

	resultDir2 := filepath.Join(w.Config.Paths.TempResults, "res2")
	require.NoError(t, os.MkdirAll(resultDir2, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultDir2, "g.txt"), []byte("y"), 0o644))
	require.NoError(t, w.Commit(CommitRequest{ResultName: "res2", DatasetName: "ds1"}))

	got, err := os.ReadFile(dataYAMLPath)
	require.NoError(t, err)
	assert.Equal(t, edited, got)

	_, err = os.ReadFile(filepath.Join(w.Config.Paths.Data, "ds1", "data", "g.txt"))
	require.NoError(t, err)
}

func TestCommit_MissingResultDir(t *testing.T) {
	w := newTestWorker(t)
	err := w.Commit(CommitRequest{ResultName: "nope", DatasetName: "ds1"})
	assert.Error(t, err)
}

func TestFindDataset(t *testing.T) {
	w := newTestWorker(t)

	found, err := w.FindDataset("ds1")
	require.NoError(t, err)
	assert.False(t, found)

	resultDir := filepath.Join(w.Config.Paths.TempResults, "res1")
	require.NoError(t, os.MkdirAll(resultDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "f.txt"), []byte("x"), 0o644))
	require.NoError(t, w.Commit(CommitRequest{ResultName: "res1", DatasetName: "ds1"}))

	found, err = w.FindDataset("ds1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCopyDir_NestedSubdirectories(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "deep.txt"), []byte("deep"), 0o644))

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, copyDir(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "nested", "deep.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), got)
}
