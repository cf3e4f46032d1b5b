// Package publish uploads raw and processed corpus files to an object store.
package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PutOptions carries object metadata.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store is a destination for published files. Keys use forward slashes.
type Store interface {
	// Put writes data under key and returns a reference to the stored object.
	Put(ctx context.Context, key string, data io.ReadSeeker, opts PutOptions) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Name() string
	Close() error
}

// LocalStore mirrors published files into a directory.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the mirror directory.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("local store directory is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create publish directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Name implements Store.
func (s *LocalStore) Name() string { return "local" }

// Put writes to a temp file and renames it into place.
func (s *LocalStore) Put(ctx context.Context, key string, data io.ReadSeeker, _ PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create publish dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".publish-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename %s: %w", key, err)
	}
	return "file://" + dest, nil
}

// Exists reports whether key has been published.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	dest, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(dest)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Close implements Store.
func (s *LocalStore) Close() error { return nil }

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.basePath, clean), nil
}
