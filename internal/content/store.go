package content

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	fileExt  = ".md"
	filePerm = 0o644
	dirPerm  = 0o755

	// maxFileSize caps what Read will load. Content files are prose;
	// anything above this is either corrupt or not ours.
	maxFileSize = 1 << 20
)

// ErrBadKey is returned for keys that are empty or would escape the
// store root.
var ErrBadKey = errors.New("invalid canonical key")

// placeholderNames are directory entries that are never records and
// must not be reported as orphans.
var placeholderNames = map[string]bool{
	"TEMPLATE.md": true,
	"README.md":   true,
}

// Store is the file tree holding one content file per canonical key.
type Store struct {
	root string
}

// NewStore opens (creating if needed) the content root directory.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create content root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Path returns the file path for a canonical key. The key is validated
// first; an error here means the key would land outside the root.
func (s *Store) Path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key+fileExt), nil
}

// Write atomically creates or replaces the content file for key.
func (s *Store) Write(key string, data []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write content %s: %w", key, err)
	}
	// atomic.WriteFile doesn't set permissions for new files
	if err := os.Chmod(path, filePerm); err != nil {
		return fmt.Errorf("chmod content %s: %w", key, err)
	}
	return nil
}

// Read loads the content file for key. Symlinks are refused - a
// content file is always a regular file we wrote - and files above
// maxFileSize are rejected rather than loaded.
func (s *Store) Read(key string) ([]byte, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", key, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("read content %s: refusing symlink", key)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("read content %s: not a regular file", key)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("read content %s: file too large (%d bytes)", key, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a content file is present for key.
func (s *Store) Exists(key string) (bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat content %s: %w", key, err)
}

// Remove deletes the content file for key. Removing an absent file is
// not an error.
func (s *Store) Remove(key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove content %s: %w", key, err)
	}
	return nil
}

// List returns every canonical key with a content file, sorted.
// Placeholder names, dotfiles, directories, and non-markdown entries
// are excluded.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || placeholderNames[name] {
			continue
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	return keys, nil
}

// validateKey rejects keys that would resolve outside the store root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrBadKey)
	}
	if strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrBadKey, key)
	}
	if key == "." || key == ".." || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q contains a traversal sequence", ErrBadKey, key)
	}
	if strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q starts with a dot", ErrBadKey, key)
	}
	return nil
}
