package writer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kbsync/internal/audit"
	"github.com/roach88/kbsync/internal/content"
	"github.com/roach88/kbsync/internal/index"
	"github.com/roach88/kbsync/internal/lockd"
	"github.com/roach88/kbsync/internal/record"
	"github.com/roach88/kbsync/internal/testutil"
)

var testNow = time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)

func newTestWriter(t *testing.T) (*Writer, *index.Store, *content.Store) {
	t.Helper()
	dir := t.TempDir()

	idx, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	cs, err := content.NewStore(filepath.Join(dir, "records"))
	require.NoError(t, err)

	w := New(idx, cs, nil, nil, testutil.NewFixedClock(testNow))
	return w, idx, cs
}

func failureInput() Input {
	return Input{
		Type:     "failure",
		Title:    "DB timeout",
		Domain:   "storage",
		Severity: 4,
		Tags:     []string{"io", "timeout"},
		Summary:  "Connection pool exhausted under load.",
	}
}

func TestCreate_WritesBothStores(t *testing.T) {
	w, idx, cs := newTestWriter(t)
	ctx := context.Background()

	result, err := w.Create(ctx, failureInput())
	require.NoError(t, err)

	assert.Equal(t, "20250101_db-timeout", result.Key)
	assert.NotZero(t, result.IndexID)

	onDisk, err := cs.Exists(result.Key)
	require.NoError(t, err)
	assert.True(t, onDisk, "content file missing")

	row, err := idx.Get(ctx, result.Key)
	require.NoError(t, err)
	assert.Equal(t, record.TypeFailure, row.Type)
	assert.Equal(t, "storage", row.Domain)
	assert.Equal(t, record.Severity(4), row.Severity)
	assert.True(t, row.CreatedAt.Equal(testNow))
}

func TestCreate_ValidationErrorWritesNothing(t *testing.T) {
	w, idx, cs := newTestWriter(t)
	ctx := context.Background()

	_, err := w.Create(ctx, Input{Type: "rumor", Title: "x"})
	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)

	keys, err := idx.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	files, err := cs.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCreate_SeverityOutOfRangeRejected(t *testing.T) {
	w, _, _ := newTestWriter(t)

	in := failureInput()
	in.Severity = 9
	_, err := w.Create(context.Background(), in)

	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreate_CollisionAppendsSuffix(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ctx := context.Background()

	first, err := w.Create(ctx, failureInput())
	require.NoError(t, err)
	assert.Equal(t, "20250101_db-timeout", first.Key)

	second, err := w.Create(ctx, failureInput())
	require.NoError(t, err)
	assert.Equal(t, "20250101_db-timeout-2", second.Key)

	third, err := w.Create(ctx, failureInput())
	require.NoError(t, err)
	assert.Equal(t, "20250101_db-timeout-3", third.Key)
}

// fakeIndex lets tests force insert failures.
type fakeIndex struct {
	mu        sync.Mutex
	rows      map[string]record.Record
	nextID    int64
	insertErr []error // consumed one per Insert call
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{rows: map[string]record.Record{}}
}

func (f *fakeIndex) Insert(ctx context.Context, rec record.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.insertErr) > 0 {
		err := f.insertErr[0]
		f.insertErr = f.insertErr[1:]
		if err != nil {
			return 0, err
		}
	}
	if _, ok := f.rows[rec.Key]; ok {
		return 0, fmt.Errorf("insert record: %w", index.ErrDuplicateKey)
	}
	f.nextID++
	f.rows[rec.Key] = rec
	return f.nextID, nil
}

func (f *fakeIndex) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[key]
	return ok, nil
}

func newFakeWriter(t *testing.T, idx IndexStore) (*Writer, *content.Store) {
	t.Helper()
	cs, err := content.NewStore(filepath.Join(t.TempDir(), "records"))
	require.NoError(t, err)

	w := New(idx, cs, nil, nil, testutil.NewFixedClock(testNow))
	w.Retry = lockd.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return w, cs
}

// A permanent index failure after the file write must roll the file
// back and leave no observable row.
func TestCreate_IndexFailureRollsBackFile(t *testing.T) {
	idx := newFakeIndex()
	idx.insertErr = []error{&index.FailureError{Op: "insert record", Err: fmt.Errorf("disk image malformed")}}
	w, cs := newFakeWriter(t, idx)
	ctx := context.Background()

	_, err := w.Create(ctx, failureInput())
	require.Error(t, err)
	assert.True(t, index.IsFailure(err), "want store failure, got %v", err)

	onDisk, err := cs.Exists("20250101_db-timeout")
	require.NoError(t, err)
	assert.False(t, onDisk, "content file survived a failed insert")

	exists, err := idx.Exists(ctx, "20250101_db-timeout")
	require.NoError(t, err)
	assert.False(t, exists, "partial row observable after failed insert")
}

func TestCreate_TransientFailureRetriedThenSucceeds(t *testing.T) {
	idx := newFakeIndex()
	idx.insertErr = []error{
		&index.TransientError{Op: "insert record", Err: fmt.Errorf("database is locked")},
		&index.TransientError{Op: "insert record", Err: fmt.Errorf("database is locked")},
	}
	w, cs := newFakeWriter(t, idx)

	result, err := w.Create(context.Background(), failureInput())
	require.NoError(t, err)

	onDisk, err := cs.Exists(result.Key)
	require.NoError(t, err)
	assert.True(t, onDisk)
}

func TestCreate_RetryExhaustionIsHardError(t *testing.T) {
	idx := newFakeIndex()
	busy := &index.TransientError{Op: "insert record", Err: fmt.Errorf("database is locked")}
	idx.insertErr = []error{busy, busy, busy}
	w, cs := newFakeWriter(t, idx)

	_, err := w.Create(context.Background(), failureInput())
	var re *lockd.RetriesExhaustedError
	require.ErrorAs(t, err, &re)

	// Rollback applies to exhausted retries too
	onDisk, err := cs.Exists("20250101_db-timeout")
	require.NoError(t, err)
	assert.False(t, onDisk)
}

// Losing a duplicate-key race must NOT delete the file: it now backs
// the winner's row.
func TestCreate_DuplicateKeyLeavesFile(t *testing.T) {
	idx := newFakeIndex()
	idx.insertErr = []error{fmt.Errorf("insert record: %w", index.ErrDuplicateKey)}
	w, cs := newFakeWriter(t, idx)

	_, err := w.Create(context.Background(), failureInput())
	require.Error(t, err)

	onDisk, err := cs.Exists("20250101_db-timeout")
	require.NoError(t, err)
	assert.True(t, onDisk, "file backing the winner's row was deleted")
}

// A writer stuck behind a held audit lock must fail with a timeout,
// never hang. The record itself stays consistent in both stores.
func TestCreate_AuditLockTimeout(t *testing.T) {
	dir := t.TempDir()

	idx, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer idx.Close()
	cs, err := content.NewStore(filepath.Join(dir, "records"))
	require.NoError(t, err)

	lockPath := filepath.Join(dir, ".audit.lock")
	trail := audit.NewTrail(filepath.Join(dir, "audit.jsonl"), lockPath, 50*time.Millisecond)

	held, err := lockd.Acquire(lockPath, time.Second)
	require.NoError(t, err)
	defer held.Release()

	w := New(idx, cs, trail, nil, testutil.NewFixedClock(testNow))
	_, err = w.Create(context.Background(), failureInput())
	require.Error(t, err)
	assert.True(t, lockd.IsLockTimeout(err), "want lock timeout, got %v", err)

	// Both stores committed; only the audit entry is missing
	onDisk, err := cs.Exists("20250101_db-timeout")
	require.NoError(t, err)
	assert.True(t, onDisk)
	inIndex, err := idx.Exists(context.Background(), "20250101_db-timeout")
	require.NoError(t, err)
	assert.True(t, inIndex)
}

// 50 concurrent creates with distinct titles: all succeed, keys are
// disjoint, and the two stores end up with identical key sets.
func TestCreate_ConcurrentDistinctTitles(t *testing.T) {
	dir := t.TempDir()

	idx, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer idx.Close()
	cs, err := content.NewStore(filepath.Join(dir, "records"))
	require.NoError(t, err)

	trail := audit.NewTrail(
		filepath.Join(dir, "audit.jsonl"),
		filepath.Join(dir, ".audit.lock"),
		5*time.Second,
	)

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		keys = map[string]bool{}
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := New(idx, cs, trail, nil, testutil.NewFixedClock(testNow))

			in := failureInput()
			in.Title = fmt.Sprintf("DB timeout variant %d", i)
			result, err := w.Create(context.Background(), in)
			if err != nil {
				t.Errorf("create %d failed: %v", i, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if keys[result.Key] {
				t.Errorf("duplicate key %s", result.Key)
			}
			keys[result.Key] = true
		}(i)
	}
	wg.Wait()

	indexKeys, err := idx.Keys(context.Background())
	require.NoError(t, err)
	contentKeys, err := cs.List()
	require.NoError(t, err)

	assert.Len(t, indexKeys, n)
	assert.ElementsMatch(t, indexKeys, contentKeys, "stores diverged after concurrent creates")
}
