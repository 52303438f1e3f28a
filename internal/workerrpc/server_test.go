package workerrpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-run/brane/internal/worker"
)

func newTestWorker(t *testing.T) *worker.Worker {
	t.Helper()
	base := t.TempDir()
	cfg := &worker.NodeConfig{}
	cfg.Paths.Data = filepath.Join(base, "data")
	cfg.Paths.TempResults = filepath.Join(base, "temp_results")
	cfg.Paths.TempData = filepath.Join(base, "temp_data")
	cfg.Paths.Certs = filepath.Join(base, "certs")
	require.NoError(t, os.MkdirAll(cfg.Paths.Data, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Paths.TempResults, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Paths.TempData, 0o755))
	return worker.New(cfg, nil, nil, nil)
}

func TestServer_Commit_DelegatesToWorker(t *testing.T) {
	w := newTestWorker(t)
	resultDir := filepath.Join(w.Config.Paths.TempResults, "res1")
	require.NoError(t, os.MkdirAll(resultDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultDir, "f.txt"), []byte("x"), 0o644))

	s := NewServer(w)
	reply, err := s.Commit(context.Background(), &CommitRequest{ResultName: "res1", DatasetName: "ds1"})
	require.NoError(t, err)
	assert.NotNil(t, reply)

	got, err := os.ReadFile(filepath.Join(w.Config.Paths.Data, "ds1", "data", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestServer_Commit_PropagatesMissingResultError(t *testing.T) {
	w := newTestWorker(t)
	s := NewServer(w)
	_, err := s.Commit(context.Background(), &CommitRequest{ResultName: "nope", DatasetName: "ds1"})
	assert.Error(t, err)
}

func TestServer_Preprocess_PropagatesMissingCertError(t *testing.T) {
	w := newTestWorker(t)
	s := NewServer(w)
	_, err := s.Preprocess(context.Background(), &PreprocessRequest{
		DataName: "data1", Kind: 0, Location: "peer1", Address: "https://example.com/data1",
	})
	assert.Error(t, err)
}
