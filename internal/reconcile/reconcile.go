// Package reconcile implements the batch scan-and-repair pass that
// restores the bijection between content files and index rows.
//
// The two enumeration scans are not locked against concurrent writers;
// the report is advisory. Fix-mode mutations re-check existence
// immediately before writing so a record created between the scan and
// the repair is never clobbered. Re-running fix mode with no
// intervening writes produces zero additional changes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/kbsync/internal/content"
	"github.com/roach88/kbsync/internal/events"
	"github.com/roach88/kbsync/internal/index"
	"github.com/roach88/kbsync/internal/lockd"
	"github.com/roach88/kbsync/internal/parse"
	"github.com/roach88/kbsync/internal/record"
)

// Mode selects between reporting drift and healing it.
type Mode int

const (
	Report Mode = iota
	Fix
)

func (m Mode) String() string {
	if m == Fix {
		return "fix"
	}
	return "report"
}

// DriftKind labels which side of the bijection is missing.
type DriftKind string

const (
	// OrphanContent: file exists, row missing. Typical after a process
	// kill between the two store writes.
	OrphanContent DriftKind = "orphan_content"

	// OrphanIndex: row exists, file missing. Only reachable through
	// out-of-band file deletion; the writer never leaves this state.
	OrphanIndex DriftKind = "orphan_index"
)

// Drift is one detected divergence between the stores.
type Drift struct {
	Kind DriftKind `json:"kind"`
	Key  string    `json:"key"`
}

// Stats are the cumulative counters for one pass.
type Stats struct {
	OrphanContent int `json:"orphan_content"`
	OrphanIndex   int `json:"orphan_index"`
	FixedContent  int `json:"fixed_content"`
	FixedIndex    int `json:"fixed_index"`
	Errors        int `json:"errors"`
}

// DriftFound reports whether the pass detected any divergence.
func (s Stats) DriftFound() bool {
	return s.OrphanContent > 0 || s.OrphanIndex > 0
}

// Reconciler diffs the two stores and optionally heals drift.
type Reconciler struct {
	Index   *index.Store
	Content *content.Store
	Events  events.Sink
	Clock   record.Clock
	Retry   lockd.RetryPolicy
	Log     *slog.Logger
}

// New wires a reconciler with the default retry policy.
func New(idx *index.Store, cs *content.Store, sink events.Sink, clock record.Clock) *Reconciler {
	if sink == nil {
		sink = events.Discard{}
	}
	if clock == nil {
		clock = record.SystemClock()
	}
	return &Reconciler{
		Index:   idx,
		Content: cs,
		Events:  sink,
		Clock:   clock,
		Retry:   lockd.DefaultRetryPolicy(),
		Log:     slog.Default(),
	}
}

// Run executes one pass: enumerate both key sets, diff, and in fix
// mode repair each orphan. The returned error covers only pass-level
// failures (a store scan failing outright); per-key repair failures
// are counted in Stats.Errors and logged, never aborting the pass.
func (r *Reconciler) Run(ctx context.Context, mode Mode) (Stats, []Drift, error) {
	var stats Stats

	contentKeys, err := r.Content.List()
	if err != nil {
		return stats, nil, fmt.Errorf("reconcile: %w", err)
	}

	var indexKeys []string
	err = r.Retry.Do(ctx, "scan index keys", func() error {
		var err error
		indexKeys, err = r.Index.Keys(ctx)
		return err
	})
	if err != nil {
		return stats, nil, fmt.Errorf("reconcile: %w", err)
	}

	drifts := diff(contentKeys, indexKeys)

	for _, d := range drifts {
		switch d.Kind {
		case OrphanContent:
			stats.OrphanContent++
		case OrphanIndex:
			stats.OrphanIndex++
		}

		r.Log.Warn("drift detected", "kind", string(d.Kind), "key", d.Key)
		r.Events.Emit(events.New(events.DriftDetected, map[string]any{
			"kind": string(d.Kind),
			"key":  d.Key,
		}))

		if mode != Fix {
			continue
		}

		var fixErr error
		switch d.Kind {
		case OrphanContent:
			fixErr = r.fixOrphanContent(ctx, d.Key, &stats)
		case OrphanIndex:
			fixErr = r.fixOrphanIndex(ctx, d.Key, &stats)
		}
		if fixErr != nil {
			stats.Errors++
			r.Log.Error("repair failed", "kind", string(d.Kind), "key", d.Key, "error", fixErr)
		}
	}

	r.Events.Emit(events.New(events.ReconcileRun, map[string]any{
		"mode":           mode.String(),
		"orphan_content": stats.OrphanContent,
		"orphan_index":   stats.OrphanIndex,
		"fixed_content":  stats.FixedContent,
		"fixed_index":    stats.FixedIndex,
		"errors":         stats.Errors,
	}))

	return stats, drifts, nil
}

// fixOrphanContent parses the orphaned file and inserts the matching
// index row. An unparseable file is skipped with a warning - one bad
// file must not abort the pass.
func (r *Reconciler) fixOrphanContent(ctx context.Context, key string, stats *Stats) error {
	data, err := r.Content.Read(key)
	if err != nil {
		return err
	}

	rec, err := parse.Parse(data)
	var perr *parse.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("skipping %s: %w", key, perr)
	}
	if err != nil {
		return err
	}

	rec.Key = key
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = createdAtFallback(key, r.Clock)
	}

	// Re-check right before mutating: a writer may have inserted the
	// row between our scan and now.
	var exists bool
	err = r.Retry.Do(ctx, "recheck index", func() error {
		var err error
		exists, err = r.Index.Exists(ctx, key)
		return err
	})
	if err != nil {
		return err
	}
	if exists {
		r.Log.Info("row appeared since scan, skipping repair", "key", key)
		return nil
	}

	err = r.Retry.Do(ctx, "insert recovered row", func() error {
		_, err := r.Index.Insert(ctx, rec)
		return err
	})
	if err != nil {
		return err
	}

	stats.FixedContent++
	r.Log.Info("inserted index row from orphaned file", "key", key)
	return nil
}

// fixOrphanIndex serializes the surviving row into a replacement
// content file, explicitly marked machine-recovered.
func (r *Reconciler) fixOrphanIndex(ctx context.Context, key string, stats *Stats) error {
	var row index.Row
	err := r.Retry.Do(ctx, "read orphaned row", func() error {
		var err error
		row, err = r.Index.Get(ctx, key)
		return err
	})
	if err != nil {
		return err
	}

	// Re-check right before mutating: a file may have appeared since
	// the scan, and overwriting it would destroy a real record.
	onDisk, err := r.Content.Exists(key)
	if err != nil {
		return err
	}
	if onDisk {
		r.Log.Info("file appeared since scan, skipping repair", "key", key)
		return nil
	}

	rec := row.Record
	rec.Key = key
	if err := r.Content.Write(key, content.RenderRecovered(rec)); err != nil {
		return err
	}

	stats.FixedIndex++
	r.Log.Info("recovered content file from index row", "key", key)
	return nil
}

// createdAtFallback derives a timestamp for a row recovered from a
// file with no parseable Created line: the key's own date stamp at
// midnight UTC, else the pass clock.
func createdAtFallback(key string, clock record.Clock) time.Time {
	if d, ok := record.KeyDate(key); ok {
		return d
	}
	return clock.Now()
}

// diff computes the symmetric difference of the two key sets, sorted
// by key for deterministic output.
func diff(contentKeys, indexKeys []string) []Drift {
	inIndex := make(map[string]bool, len(indexKeys))
	for _, k := range indexKeys {
		inIndex[k] = true
	}
	onDisk := make(map[string]bool, len(contentKeys))
	for _, k := range contentKeys {
		onDisk[k] = true
	}

	var drifts []Drift
	for _, k := range contentKeys {
		if !inIndex[k] {
			drifts = append(drifts, Drift{Kind: OrphanContent, Key: k})
		}
	}
	for _, k := range indexKeys {
		if !onDisk[k] {
			drifts = append(drifts, Drift{Kind: OrphanIndex, Key: k})
		}
	}

	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].Key != drifts[j].Key {
			return drifts[i].Key < drifts[j].Key
		}
		return drifts[i].Kind < drifts[j].Kind
	})
	return drifts
}
