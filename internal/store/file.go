package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore is the local Store variant: one JSON document per key under a
// directory. It fails only on real I/O errors; it never reports
// ErrUnavailable, so the retry path in callers stays idle for it.
type FileStore struct {
	dir string
}

// fileEnvelope is the on-disk document. Value is base64 under encoding/json.
type fileEnvelope struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Get returns the value stored at key, honoring expiry.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %q: %w", key, err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope for %q: %w", key, err)
	}

	if env.ExpiresAt != nil && time.Now().After(*env.ExpiresAt) {
		// Lazy expiry: drop the stale file and report absence.
		_ = os.Remove(s.path(key))
		return nil, ErrNotFound
	}
	return env.Value, nil
}

// Set writes the value atomically (temp file + rename).
func (s *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	env := fileEnvelope{Value: value}
	if ttl > 0 {
		expires := time.Now().Add(ttl).UTC()
		env.ExpiresAt = &expires
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope for %q: %w", key, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file for %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for %q: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file for %q: %w", key, err)
	}
	return nil
}

// Delete removes the key's file. Absent files delete cleanly.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Ping verifies the directory is still reachable.
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat store directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store path %q is not a directory", s.dir)
	}
	return nil
}

// path maps a key to a unique filesystem-safe filename.
func (s *FileStore) path(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(s.dir, name+".json")
}
