// Package writer implements the only record-creation path: derive the
// canonical key, write the content file, insert the index row, then
// commit the audit-trail entry under the advisory lock.
//
// The ordering is deliberate: a process killed between the two store
// writes leaves an orphaned content file, which the reconciler heals
// later. The reverse - an index row with no backing file - is never
// left behind; any index failure after the file write triggers a
// compensating delete.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/kbsync/internal/audit"
	"github.com/roach88/kbsync/internal/content"
	"github.com/roach88/kbsync/internal/events"
	"github.com/roach88/kbsync/internal/index"
	"github.com/roach88/kbsync/internal/lockd"
	"github.com/roach88/kbsync/internal/record"
)

// maxKeyCandidates bounds the collision-suffix search. Hitting it
// means something is generating records far faster than titles vary.
const maxKeyCandidates = 100

// IndexStore is the slice of the index the writer needs. Narrowed to
// an interface so tests can force insert failures.
type IndexStore interface {
	Insert(ctx context.Context, rec record.Record) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// AuditTrail is the append-only history collaborator.
type AuditTrail interface {
	Append(e audit.Entry) error
}

// Input is a creation request. Severity zero means unset.
type Input struct {
	Type     string
	Title    string
	Domain   string
	Severity record.Severity
	Tags     []string
	Summary  string
	Body     string
}

// Result identifies the created record in both stores.
type Result struct {
	Key     string `json:"canonical_key"`
	IndexID int64  `json:"index_id"`
}

// Writer orchestrates record creation.
type Writer struct {
	Index   IndexStore
	Content *content.Store
	Audit   AuditTrail
	Events  events.Sink
	Clock   record.Clock
	Retry   lockd.RetryPolicy
	Log     *slog.Logger
}

// New wires a writer with the default retry policy. Audit and Events
// may be nil to disable those collaborators (tests).
func New(idx IndexStore, cs *content.Store, trail AuditTrail, sink events.Sink, clock record.Clock) *Writer {
	if sink == nil {
		sink = events.Discard{}
	}
	if clock == nil {
		clock = record.SystemClock()
	}
	return &Writer{
		Index:   idx,
		Content: cs,
		Audit:   trail,
		Events:  sink,
		Clock:   clock,
		Retry:   lockd.DefaultRetryPolicy(),
		Log:     slog.Default(),
	}
}

// Create persists a new record in both stores and appends the audit
// entry. On success both stores hold the record under the returned
// key. Failure modes:
//
//   - *record.ValidationError: bad input, nothing written
//   - *lockd.LockTimeoutError: both stores committed, audit entry
//     missing (logged); the record itself is consistent
//   - *lockd.RetriesExhaustedError / *index.FailureError: index insert
//     failed; the just-written content file has been removed (or, if
//     removal also failed, logged as a healable orphan)
func (w *Writer) Create(ctx context.Context, in Input) (Result, error) {
	rec, err := w.buildRecord(in)
	if err != nil {
		return Result{}, err
	}

	key, err := w.deriveKey(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	rec.Key = key

	if err := w.Content.Write(key, content.Render(rec)); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", key, err)
	}

	id, err := w.insert(ctx, rec)
	if err != nil {
		w.compensate(key, err)
		return Result{}, fmt.Errorf("create %s: %w", key, err)
	}

	if err := w.commitAudit(rec, id); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", key, err)
	}

	w.Events.Emit(events.New(events.RecordCreated, map[string]any{
		"key":      key,
		"type":     string(rec.Type),
		"index_id": id,
	}))
	w.Log.Info("record created", "key", key, "index_id", id)

	return Result{Key: key, IndexID: id}, nil
}

// buildRecord validates input and stamps the record with the single
// clock reading used for the key, the stored timestamp, and the audit
// entry.
func (w *Writer) buildRecord(in Input) (record.Record, error) {
	typ, ok := record.ParseType(in.Type)
	if !ok {
		return record.Record{}, &record.ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("unknown type %q", in.Type),
		}
	}

	rec := record.Record{
		Type:      typ,
		Title:     in.Title,
		Domain:    in.Domain,
		Severity:  in.Severity,
		Tags:      in.Tags,
		Summary:   in.Summary,
		Body:      in.Body,
		CreatedAt: w.Clock.Now(),
	}
	if rec.Domain == "" {
		rec.Domain = "unknown"
	}
	if err := rec.Validate(); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

// deriveKey finds the first free candidate key: the slugged base, then
// bounded -2, -3, ... suffixes. Both stores are consulted, the index
// through the retry wrapper so contention is not misread as free.
func (w *Writer) deriveKey(ctx context.Context, rec record.Record) (string, error) {
	base := record.Key(rec.CreatedAt, rec.Title)

	for n := 1; n <= maxKeyCandidates; n++ {
		candidate := base
		if n > 1 {
			candidate = record.DisambiguateKey(base, n)
		}

		taken, err := w.keyTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("derive key: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("derive key: no free key after %d candidates of %s", maxKeyCandidates, base)
}

func (w *Writer) keyTaken(ctx context.Context, key string) (bool, error) {
	onDisk, err := w.Content.Exists(key)
	if err != nil {
		return false, err
	}
	if onDisk {
		return true, nil
	}

	var inIndex bool
	err = w.Retry.Do(ctx, "check key", func() error {
		var err error
		inIndex, err = w.Index.Exists(ctx, key)
		return err
	})
	if err != nil {
		return false, err
	}
	return inIndex, nil
}

// insert runs the index insert under the retry policy. A duplicate key
// here means another writer claimed the key between our existence
// check and the insert; that surfaces as a hard error rather than a
// clobbering retry.
func (w *Writer) insert(ctx context.Context, rec record.Record) (int64, error) {
	var id int64
	err := w.Retry.Do(ctx, "insert record", func() error {
		var err error
		id, err = w.Index.Insert(ctx, rec)
		return err
	})
	return id, err
}

// compensate removes the content file after a failed index insert. A
// failed removal is logged and left for the reconciler - an orphaned
// file is a tolerated, healable state, an index row with no file is
// not.
func (w *Writer) compensate(key string, cause error) {
	if errors.Is(cause, index.ErrDuplicateKey) {
		// The file now backs the concurrent winner's row; deleting it
		// would orphan that row.
		w.Log.Warn("key claimed concurrently, leaving content file in place", "key", key)
		return
	}
	if err := w.Content.Remove(key); err != nil {
		w.Log.Warn("compensating delete failed, leaving orphan for reconcile",
			"key", key, "error", err, "cause", cause)
		return
	}
	w.Log.Info("rolled back content file after index failure", "key", key)
}

// commitAudit appends the trail entry under the advisory lock. By this
// point both stores hold the record; an audit failure (including a
// lock timeout) is surfaced to the caller but the record stands - the
// trail is history, not a consistency input.
func (w *Writer) commitAudit(rec record.Record, id int64) error {
	if w.Audit == nil {
		return nil
	}

	err := w.Audit.Append(audit.Entry{
		Key:       rec.Key,
		Type:      rec.Type,
		Title:     rec.Title,
		IndexID:   id,
		CreatedAt: rec.CreatedAt,
		PID:       os.Getpid(),
	})
	if err != nil {
		w.Log.Warn("record persisted but audit append failed", "key", rec.Key, "error", err)
		return err
	}
	return nil
}
