// Package audit maintains the append-only audit trail: one JSON line
// per created record. The trail is durability and history only - it is
// never consulted for consistency decisions, so a missing entry is a
// gap in history, not drift.
//
// Appends are serialized across all concurrent writer processes by the
// lockd advisory lock; interleaved partial lines from two processes
// would corrupt the JSONL stream.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/roach88/kbsync/internal/lockd"
	"github.com/roach88/kbsync/internal/record"
)

const filePerm = 0o644

// Entry is one audit-trail line.
type Entry struct {
	Key       string      `json:"key"`
	Type      record.Type `json:"type"`
	Title     string      `json:"title"`
	IndexID   int64       `json:"index_id"`
	CreatedAt time.Time   `json:"created_at"`
	PID       int         `json:"pid"`
}

// Trail appends entries to a single shared JSONL file.
type Trail struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
}

// NewTrail configures a trail at path, guarded by the lock file at
// lockPath with the given bounded wait.
func NewTrail(path, lockPath string, lockTimeout time.Duration) *Trail {
	return &Trail{path: path, lockPath: lockPath, lockTimeout: lockTimeout}
}

// Append commits one entry under the advisory lock. Returns
// *lockd.LockTimeoutError (wrapped) if the lock cannot be acquired
// within the bounded wait.
func (t *Trail) Append(e Entry) error {
	lock, err := lockd.Acquire(t.lockPath, t.lockTimeout)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	defer lock.Release()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit append: marshal entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, filePerm)
	if err != nil {
		return fmt.Errorf("audit append: open trail: %w", err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("audit append: write entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("audit append: sync trail: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audit append: close trail: %w", err)
	}
	return nil
}
