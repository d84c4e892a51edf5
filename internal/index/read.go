package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/roach88/kbsync/internal/record"
)

// Row is a stored record plus its autoincrement id.
type Row struct {
	ID int64
	record.Record
}

// Filter narrows a Scan. Zero-value fields match everything.
type Filter struct {
	Type        record.Type
	Domain      string
	MinSeverity record.Severity
}

// Exists reports whether a row exists for the canonical key.
//
// Contention surfaces as *TransientError, exactly like Insert, so
// callers must run Exists through the same retry wrapper - a busy
// database must not be misread as "missing".
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE key = ?", key,
	).Scan(&n)
	if err != nil {
		return false, classify("check key", err)
	}
	return n > 0, nil
}

// Get retrieves the row for a canonical key. Returns ErrNotFound
// (wrapped) when absent.
func (s *Store) Get(ctx context.Context, key string) (Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, key, title, summary, tags, domain, severity, created_at
		FROM records
		WHERE key = ?
	`, key)

	r, err := scanRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Row{}, classify("get record", err)
	}
	return r, nil
}

// Keys returns every canonical key in the index. Ordered by key so the
// reconciler's diff is deterministic.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM records ORDER BY key ASC")
	if err != nil {
		return nil, classify("scan keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, classify("scan keys", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("scan keys", err)
	}

	// Return empty slice instead of nil
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Scan returns a lazy sequence over rows matching the filter, ordered
// by key. Iteration stops early when the caller breaks; the underlying
// cursor is closed either way.
func (s *Store) Scan(ctx context.Context, f Filter) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		query, args := buildScanQuery(f)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Row{}, classify("scan records", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRow(rows.Scan)
			if err != nil {
				yield(Row{}, classify("scan records", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Row{}, classify("scan records", err))
		}
	}
}

func buildScanQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, f.Domain)
	}
	if f.MinSeverity != record.SeverityUnset {
		where = append(where, "severity >= ?")
		args = append(args, int64(f.MinSeverity))
	}

	query := "SELECT id, type, key, title, summary, tags, domain, severity, created_at FROM records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY key ASC"
	return query, args
}

// scanRow decodes one row from either *sql.Row or *sql.Rows.
func scanRow(scan func(dest ...any) error) (Row, error) {
	var (
		r         Row
		typ       string
		tags      string
		severity  sql.NullInt64
		createdAt string
	)
	err := scan(&r.ID, &typ, &r.Key, &r.Title, &r.Summary, &tags, &r.Domain, &severity, &createdAt)
	if err != nil {
		return Row{}, err
	}

	r.Type = record.Type(typ)
	r.Tags = record.SplitTags(tags)
	r.Severity = severityFromSQL(severity)
	r.CreatedAt = parseStoredTime(createdAt)
	return r, nil
}

// parseStoredTime accepts both the RFC 3339 form this package writes
// and the "YYYY-MM-DD HH:MM:SS" form of the column's datetime('now')
// default. Unparseable values yield the zero time rather than an error;
// created_at is informational, never a consistency input.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
