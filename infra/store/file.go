// Package store persists ledger day records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilianp07/sunledger/core/ledger"
)

// FileStore keeps each record in its own JSON file named <kind>_<key>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(kind, key string) (string, error) {
	for _, part := range []string{kind, key} {
		if part == "" || strings.ContainsAny(part, `/\`) || strings.Contains(part, "..") {
			return "", fmt.Errorf("invalid store key %q", part)
		}
	}
	return filepath.Join(s.dir, kind+"_"+key+".json"), nil
}

// Exists reports whether a record file is present.
func (s *FileStore) Exists(_ context.Context, kind, key string) (bool, error) {
	p, err := s.path(kind, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Read decodes the record file.
func (s *FileStore) Read(_ context.Context, kind, key string) (ledger.DayRecord, error) {
	var rec ledger.DayRecord
	p, err := s.path(kind, key)
	if err != nil {
		return rec, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return rec, fmt.Errorf("%s/%s: %w", kind, key, ledger.ErrNotFound)
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", p, err)
	}
	return rec, nil
}

// Write replaces the record file atomically.
func (s *FileStore) Write(_ context.Context, kind, key string, rec ledger.DayRecord) error {
	p, err := s.path(kind, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+kind+"_*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
