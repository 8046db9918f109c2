package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/workdir"
)

type MockRetriever struct {
	Calls  []string
	FailOn string
	Err    error
	Empty  map[string]bool
}

func (m *MockRetriever) Fetch(ctx context.Context, id string) ([]string, error) {
	m.Calls = append(m.Calls, id)
	if id == m.FailOn {
		return nil, m.Err
	}
	if m.Empty[id] {
		return nil, nil
	}
	return []string{"rec-" + id}, nil
}

func newTestStore(t *testing.T) *Store[string] {
	t.Helper()
	wc, err := workdir.New(t.TempDir())
	require.NoError(t, err)
	return NewStore[string](wc.WithStage("test"))
}

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%03d", i)
	}
	return out
}

func TestSetBatch(t *testing.T) {
	store := newTestStore(t)
	assert.False(t, store.Exists())

	require.NoError(t, store.Set([]string{"a", "b"}))
	assert.True(t, store.Exists())

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pending)

	results, err := store.Results()
	require.NoError(t, err)
	assert.Empty(t, results)

	err = store.Set([]string{"c"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestSetBatch_LeftoverResults(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(store.wc.BatchDir(), 0o755))
	require.NoError(t, os.WriteFile(store.wc.ResultsPath(), []byte(`["old"]`), 0o644))

	err := store.Set([]string{"a"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.False(t, store.Exists())
}

func TestRun_NoActiveBatch(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store, Options{})

	_, err := engine.Run(context.Background(), &MockRetriever{})
	assert.ErrorIs(t, err, common.ErrNoActiveBatch)
}

func TestRun_CompletesAndDeletesBatch(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set([]string{"a", "b", "c"}))

	retriever := &MockRetriever{}
	report, err := NewEngine(store, Options{}).Run(context.Background(), retriever)
	require.NoError(t, err)

	assert.True(t, report.Done)
	assert.Equal(t, 3, report.Retrieved)
	assert.False(t, store.Exists())
	assert.True(t, common.Exists(store.wc.BackupPath()))

	results, err := store.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-a", "rec-b", "rec-c"}, results)

	require.NoError(t, store.Clean())
	assert.False(t, store.HasResults())
	assert.False(t, common.Exists(store.wc.BackupPath()))
}

func TestRun_ResumesAfterFailure(t *testing.T) {
	store := newTestStore(t)
	all := items(10)
	require.NoError(t, store.Set(all))

	boom := errors.New("rate limited")
	retriever := &MockRetriever{FailOn: all[4], Err: boom}
	engine := NewEngine(store, Options{})

	_, err := engine.Run(context.Background(), retriever)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var rerr *RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, all[4], rerr.Item)

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Equal(t, all[4:], pending)

	results, err := store.Results()
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-item-000", "rec-item-001", "rec-item-002", "rec-item-003"}, results)

	_, err = store.Retrieve()
	assert.ErrorIs(t, err, common.ErrBatchNotFinished)
	assert.ErrorIs(t, store.Clean(), common.ErrBatchNotFinished)

	retriever.FailOn = ""
	retriever.Calls = nil
	report, err := engine.Run(context.Background(), retriever)
	require.NoError(t, err)
	assert.True(t, report.Done)
	assert.Equal(t, all[4:], retriever.Calls)

	results, err = store.Retrieve()
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.Equal(t, "rec-item-009", results[9])
}

func TestCheckpoint_PendingWriteFailsAfterResults(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set([]string{"a", "b", "c"}))

	tx := &checkpoint[string]{store: store, pending: []string{"a", "b", "c"}, results: []string{}}
	tx.record([]string{"rec-a"})

	// A non-empty directory in place of the pending file makes the rename fail.
	require.NoError(t, os.Remove(store.wc.PendingPath()))
	require.NoError(t, os.MkdirAll(filepath.Join(store.wc.PendingPath(), "blocker"), 0o755))

	require.Error(t, tx.commit())
	results, err := store.Results()
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-a"}, results)

	require.NoError(t, os.RemoveAll(store.wc.PendingPath()))
	require.NoError(t, tx.commit())

	results, err = store.Results()
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-a"}, results)
	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, pending)
}

func TestRun_ResumeAfterPartialCommitRefetches(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set([]string{"a", "b"}))
	// Results recorded for a, pending not yet advanced past it.
	require.NoError(t, store.saveResults([]string{"rec-a"}))

	retriever := &MockRetriever{}
	report, err := NewEngine(store, Options{}).Run(context.Background(), retriever)
	require.NoError(t, err)
	assert.True(t, report.Done)
	assert.Equal(t, []string{"a", "b"}, retriever.Calls)

	results, err := store.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-a", "rec-a", "rec-b"}, results)
}

func skipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
}

func TestSetBatch_PermissionDenied(t *testing.T) {
	skipIfRoot(t)
	store := newTestStore(t)
	require.NoError(t, os.Mkdir(store.wc.BatchDir(), 0o500))
	t.Cleanup(func() { _ = os.Chmod(store.wc.BatchDir(), 0o755) })

	err := store.Set([]string{"a"})
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	assert.False(t, store.Exists())
}

func TestSetBatch_PermissionDeniedCreatingFolder(t *testing.T) {
	skipIfRoot(t)
	store := newTestStore(t)
	require.NoError(t, os.Chmod(store.wc.Root, 0o500))
	t.Cleanup(func() { _ = os.Chmod(store.wc.Root, 0o755) })

	err := store.Set([]string{"a"})
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
}

func TestRun_PermissionDenied(t *testing.T) {
	skipIfRoot(t)
	store := newTestStore(t)
	require.NoError(t, store.Set([]string{"a", "b"}))
	require.NoError(t, os.Chmod(store.wc.BatchDir(), 0o500))
	t.Cleanup(func() { _ = os.Chmod(store.wc.BatchDir(), 0o755) })

	retriever := &MockRetriever{}
	_, err := NewEngine(store, Options{}).Run(context.Background(), retriever)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	assert.Empty(t, retriever.Calls)

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pending)
}

func TestRun_ChunkBound(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set(items(25)))

	retriever := &MockRetriever{}
	report, err := NewEngine(store, Options{RunLimit: 10}).Run(context.Background(), retriever)
	require.NoError(t, err)

	assert.Len(t, retriever.Calls, 10)
	assert.Equal(t, 15, report.Remaining)
	assert.False(t, report.Done)

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Equal(t, items(25)[10:], pending)
}

func TestRun_PeriodicFlush(t *testing.T) {
	store := newTestStore(t)
	all := items(7)
	require.NoError(t, store.Set(all))

	// Fail after two full flush intervals have been committed.
	retriever := &MockRetriever{FailOn: all[6], Err: errors.New("down")}
	_, err := NewEngine(store, Options{FlushEvery: 3}).Run(context.Background(), retriever)
	require.Error(t, err)

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Equal(t, all[6:], pending)

	results, err := store.Results()
	require.NoError(t, err)
	assert.Len(t, results, 6)
}

func TestRun_EmptyItemAndEmptyResult(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set([]string{"a", "", "missing"}))

	retriever := &MockRetriever{Empty: map[string]bool{"missing": true}}
	report, err := NewEngine(store, Options{}).Run(context.Background(), retriever)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "missing"}, retriever.Calls)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Retrieved)
	assert.True(t, report.Done)

	results, err := store.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-a"}, results)
}

func TestRun_ContextCanceled(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set(items(5)))

	ctx, cancel := context.WithCancel(context.Background())
	retriever := RetrieverFunc[string](func(_ context.Context, id string) ([]string, error) {
		if id == "item-001" {
			cancel()
		}
		return []string{id}, nil
	})

	_, err := NewEngine(store, Options{}).Run(ctx, retriever)
	assert.ErrorIs(t, err, context.Canceled)

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.Equal(t, items(5)[2:], pending)

	results, err := store.Results()
	require.NoError(t, err)
	assert.Equal(t, []string{"item-000", "item-001"}, results)
}

func TestRun_EmptyBatch(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set(nil))

	report, err := NewEngine(store, Options{}).Run(context.Background(), &MockRetriever{})
	require.NoError(t, err)
	assert.True(t, report.Done)
	assert.False(t, store.Exists())

	results, err := store.Retrieve()
	require.NoError(t, err)
	assert.Empty(t, results)
}
