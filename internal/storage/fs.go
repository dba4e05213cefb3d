package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
)

const (
	// LockFileName is created inside the record directory to serialise writers.
	LockFileName = ".decisionrecords.lock"

	tmpPattern        = ".decisionrecords-tmp-*"
	lockRetryInterval = 50 * time.Millisecond
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the record directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute record directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the record directory and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("storage: empty path")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes record directory: %s", rel)
	}
	return abs, nil
}

// Entries returns the names of the immediate non-directory entries.
func (f *FS) Entries() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: read dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// List returns metadata for every record-format file in the record directory.
func (f *FS) List() ([]models.RecordMetadata, error) {
	names, err := f.Entries()
	if err != nil {
		return nil, err
	}
	var out []models.RecordMetadata
	for _, name := range names {
		if _, ok := models.FormatOf(name); !ok {
			continue
		}
		p := filepath.Join(f.root, name)
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		out = append(out, models.RecordMetadata{
			Name:      name,
			Checksum:  Checksum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes of a record file.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	tmpName, err := f.writeTemp(filepath.Dir(abs), content)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Create writes content to a temp file and hard-links it into place, so the
// new record appears complete or not at all and never replaces an existing one.
func (f *FS) Create(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	tmpName, err := f.writeTemp(filepath.Dir(abs), content)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)

	if err := os.Link(tmpName, abs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("storage: create %s: %w", name, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: create %s: %w", name, err)
	}
	return nil
}

func (f *FS) writeTemp(dir string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return "", fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	success = true
	return tmpName, nil
}

// Lock takes an exclusive advisory lock on the record directory.
func (f *FS) Lock(ctx context.Context) (func() error, error) {
	fl := flock.New(filepath.Join(f.root, LockFileName))
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("storage: lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("storage: lock: %s is held by another process", fl.Path())
	}
	return fl.Unlock, nil
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
