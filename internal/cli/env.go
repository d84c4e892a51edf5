package cli

import (
	"errors"
	"path/filepath"

	"github.com/roach88/kbsync/internal/config"
	"github.com/roach88/kbsync/internal/content"
	"github.com/roach88/kbsync/internal/index"
	"github.com/roach88/kbsync/internal/lockd"
	"github.com/roach88/kbsync/internal/record"
)

// Error codes reported in CLI output, mirroring the error taxonomy.
const (
	ErrCodeValidation     = "validation"
	ErrCodeLockTimeout    = "lock_timeout"
	ErrCodeStoreTransient = "store_transient"
	ErrCodeStoreFailure   = "store_failure"
	ErrCodeGeneric        = "internal"
)

// Env bundles the opened stores and the configuration behind them.
type Env struct {
	Cfg     config.Config
	Index   *index.Store
	Content *content.Store
}

// openEnv loads config and opens both stores.
func openEnv(opts *RootOptions) (*Env, error) {
	cfgPath := opts.Config
	if cfgPath == "" {
		cfgPath = filepath.Join(opts.Dir, "kbsync.yaml")
	}

	cfg, err := config.Load(cfgPath, opts.Dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	idx, err := index.Open(cfg.IndexPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening index store", err)
	}

	cs, err := content.NewStore(cfg.RecordsDir)
	if err != nil {
		idx.Close()
		return nil, WrapExitError(ExitCommandError, "opening content store", err)
	}

	return &Env{Cfg: cfg, Index: idx, Content: cs}, nil
}

// Close releases the store handles.
func (e *Env) Close() {
	if e.Index != nil {
		_ = e.Index.Close()
	}
}

// errorCode maps an error from the core packages to its CLI code.
func errorCode(err error) string {
	var verr *record.ValidationError
	switch {
	case errors.As(err, &verr):
		return ErrCodeValidation
	case lockd.IsLockTimeout(err):
		return ErrCodeLockTimeout
	case index.IsFailure(err):
		return ErrCodeStoreFailure
	case lockd.IsTransient(err):
		return ErrCodeStoreTransient
	default:
		var re *lockd.RetriesExhaustedError
		if errors.As(err, &re) {
			return ErrCodeStoreTransient
		}
		return ErrCodeGeneric
	}
}
