package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/workdir"
)

// Store persists the single global work queue and its accumulated results
// under the batch folder of a working context. Presence of the pending file
// is the only signal of an in-progress batch.
type Store[R any] struct {
	wc workdir.Context
}

func NewStore[R any](wc workdir.Context) *Store[R] {
	return &Store[R]{wc: wc}
}

// Exists reports whether a pending queue is persisted.
func (s *Store[R]) Exists() bool {
	return common.Exists(s.wc.PendingPath())
}

// HasResults reports whether a results artifact is persisted.
func (s *Store[R]) HasResults() bool {
	return common.Exists(s.wc.ResultsPath())
}

// Set creates a new batch with items pending and no results.
func (s *Store[R]) Set(items []string) error {
	dir := s.wc.BatchDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("failed to create batch folder: %w", common.ErrPermissionDenied)
		}
		return fmt.Errorf("failed to create batch folder: %w", err)
	}
	if err := common.CheckWritable(dir); err != nil {
		return err
	}
	if s.Exists() {
		return fmt.Errorf("batch file: %w", common.ErrAlreadyExists)
	}
	if s.HasResults() {
		return fmt.Errorf("output file: %w", common.ErrAlreadyExists)
	}

	if items == nil {
		items = []string{}
	}
	if err := common.WriteJSONFile(s.wc.PendingPath(), items); err != nil {
		return err
	}
	return common.WriteJSONFile(s.wc.ResultsPath(), []R{})
}

// Pending returns the persisted queue, or ErrNoActiveBatch if there is none.
func (s *Store[R]) Pending() ([]string, error) {
	if !s.Exists() {
		return nil, common.ErrNoActiveBatch
	}
	items, err := common.ReadJSONFile[[]string](s.wc.PendingPath())
	if err != nil {
		return nil, fmt.Errorf("batch file does not read as list: %w", err)
	}
	return items, nil
}

// Results returns the records accumulated so far. A missing results file
// reads as empty.
func (s *Store[R]) Results() ([]R, error) {
	if !s.HasResults() {
		return []R{}, nil
	}
	return common.ReadJSONFile[[]R](s.wc.ResultsPath())
}

// Retrieve returns the accumulated results of a finished batch.
func (s *Store[R]) Retrieve() ([]R, error) {
	if s.Exists() {
		return nil, common.ErrBatchNotFinished
	}
	if !s.HasResults() {
		return nil, fmt.Errorf("no results file: %w", common.ErrNoActiveBatch)
	}
	return common.ReadJSONFile[[]R](s.wc.ResultsPath())
}

// Clean removes the results artifact and its backup once consumed.
func (s *Store[R]) Clean() error {
	if s.Exists() {
		return common.ErrBatchNotFinished
	}
	for _, path := range []string{s.wc.ResultsPath(), s.wc.BackupPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove '%s': %w", path, err)
		}
	}
	return nil
}

func (s *Store[R]) backup(results []R) error {
	return common.WriteJSONFile(s.wc.BackupPath(), results)
}

func (s *Store[R]) saveResults(results []R) error {
	return common.WriteJSONFile(s.wc.ResultsPath(), results)
}

// savePending persists the queue, deleting the batch when nothing remains.
func (s *Store[R]) savePending(items []string) error {
	if len(items) == 0 {
		if err := os.Remove(s.wc.PendingPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove batch file: %w", err)
		}
		return nil
	}
	return common.WriteJSONFile(s.wc.PendingPath(), items)
}
