package worker

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brane-run/brane/internal/infra/logger"
)

// CleanupSweeper periodically removes orphaned entries under
// temp_data/temp_results: directories a crashed or aborted preprocess
// never finished consuming, left behind older than MaxAge.
type CleanupSweeper struct {
	Worker *Worker
	MaxAge time.Duration
	cron   *cron.Cron
}

// NewCleanupSweeper wires a cron schedule (e.g. "@every 1h") to a sweep
// of the worker's temp directories.
func NewCleanupSweeper(w *Worker, schedule string, maxAge time.Duration) (*CleanupSweeper, error) {
	s := &CleanupSweeper{Worker: w, MaxAge: maxAge, cron: cron.New()}
	if _, err := s.cron.AddFunc(schedule, s.sweepOnce); err != nil {
		return nil, ioErr("cleanup", "parsing cleanup schedule %q: %v", schedule, err)
	}
	return s, nil
}

func (s *CleanupSweeper) Start() { s.cron.Start() }
func (s *CleanupSweeper) Stop()  { s.cron.Stop() }

func (s *CleanupSweeper) sweepOnce() {
	cutoff := time.Now().Add(-s.MaxAge)
	sweepDir(s.Worker.Config.Paths.TempData, cutoff)
	sweepDir(s.Worker.Config.Paths.TempResults, cutoff)
}

func sweepDir(root string, cutoff time.Time) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Default().Warn("cleanup: failed to remove stale directory", "path", path, "error", err)
			continue
		}
		logger.Default().Debug("cleanup: removed stale directory", "path", path, "age", cutoff)
	}
}
