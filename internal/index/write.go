package index

import (
	"context"
	"database/sql"
	"time"

	"github.com/roach88/kbsync/internal/record"
)

// timeLayout is the stored form of created_at. RFC 3339 in UTC sorts
// lexicographically and round-trips without locale surprises.
const timeLayout = time.RFC3339

// Insert writes a record row inside a single transaction and returns
// the autoincrement id. A concurrent reader never observes a partial
// row.
//
// Returns ErrDuplicateKey (wrapped) if a row with the same canonical
// key exists, *TransientError on lock contention, *FailureError on
// corruption.
func (s *Store) Insert(ctx context.Context, rec record.Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("insert record: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO records
		(type, key, title, summary, tags, domain, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(rec.Type),
		rec.Key,
		rec.Title,
		rec.Summary,
		record.JoinTags(rec.Tags),
		rec.Domain,
		severityArg(rec.Severity),
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, classify("insert record", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, classify("insert record: last insert id", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("insert record: commit", err)
	}

	return id, nil
}

// severityArg maps SeverityUnset to SQL NULL so non-failure records
// carry no severity in the row.
func severityArg(s record.Severity) any {
	if s == record.SeverityUnset {
		return nil
	}
	return int64(s)
}

func severityFromSQL(v sql.NullInt64) record.Severity {
	if !v.Valid {
		return record.SeverityUnset
	}
	return record.Severity(v.Int64)
}
