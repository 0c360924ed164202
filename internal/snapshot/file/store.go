package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"autodrop/internal/snapshot"
)

// Store keeps the snapshot in a single JSON file. Writes go to a temporary
// file in the same directory which is synced and renamed over the target,
// so a crash leaves either the old or the new snapshot on disk.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: write: %v", snapshot.ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: sync: %v", snapshot.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close: %v", snapshot.ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", snapshot.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (snapshot.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return snapshot.Snapshot{}, snapshot.ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	return snapshot.Decode(data)
}
