// Package lockd provides the two coordination primitives shared by
// concurrent writer processes: a bounded flock(2)-based advisory lock
// for the audit-trail append, and a jittered-backoff retry wrapper for
// transient index-store contention.
//
// flock is advisory and applies to an inode, not a pathname; all
// cooperating processes must take the lock for it to have effect. The
// kernel releases it when the holding process dies, so a crashed
// holder never wedges waiters - they time out against a live holder,
// not a stale file.
package lockd

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	lockFilePerm = 0o600

	backoffStart = time.Millisecond
	backoffCap   = 25 * time.Millisecond
)

// LockTimeoutError reports that the advisory lock could not be
// acquired within the bounded wait. Transient: the caller may retry
// the whole operation.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock %s: timed out after %s", e.Path, e.Timeout)
}

// IsLockTimeout reports whether err (possibly wrapped) is a lock
// timeout.
func IsLockTimeout(err error) bool {
	var lte *LockTimeoutError
	return errors.As(err, &lte)
}

// Lock is a held advisory lock. Call Release when done.
type Lock struct {
	mu   sync.Mutex
	file *os.File
}

// Release drops the lock and closes the underlying descriptor.
// Idempotent - subsequent calls return nil.
//
// Closing the descriptor releases the flock even if the explicit
// unlock fails, so an error here is cleanup noise, not a held lock.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlock: %w", unlockErr)
	}
	if closeErr != nil {
		closeErr = fmt.Errorf("close lock fd: %w", closeErr)
	}
	return errors.Join(unlockErr, closeErr)
}

// Acquire takes an exclusive advisory lock on the file at path,
// creating it if needed. Non-blocking flock attempts are polled with
// exponential backoff (1ms to 25ms) until the timeout expires; the
// wait is bounded by construction - this never hangs on a dead or
// stuck holder.
//
// Returns *LockTimeoutError when the deadline passes without the lock.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("lock %s: timeout must be > 0", path)
	}

	deadline := time.Now().Add(timeout)
	backoff := backoffStart

	for {
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}

		err = flockRetryEINTR(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: file}, nil
		}
		_ = file.Close()

		if !isWouldBlock(err) {
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &LockTimeoutError{Path: path, Timeout: timeout}
		}

		time.Sleep(min(backoff, remaining))
		if backoff < backoffCap {
			backoff = min(backoff*2, backoffCap)
		}
	}
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// flockRetryEINTR wraps flock, retrying when a signal interrupts the
// syscall. Capped so a pathological signal storm cannot spin forever.
func flockRetryEINTR(fd int, how int) error {
	const maxRetries = 10000

	var err error
	for range maxRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}
	return err
}
