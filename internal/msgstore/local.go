package msgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tmpPrefix = ".tmp-"

// LocalFileStore stores one record per file on the local filesystem.
// Several processes may share the directory: creation goes through a hard
// link, which fails if the name is taken, and only one os.Remove of a name
// can succeed.
type LocalFileStore struct {
	basePath string
}

// NewLocalFileStore creates a new LocalFileStore at the given base path.
// It creates the directory if it does not exist.
func NewLocalFileStore(basePath string) (*LocalFileStore, error) {
	if basePath == "" {
		basePath = "./data/queue"
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("msgstore: create base directory: %w", err)
	}
	return &LocalFileStore{basePath: basePath}, nil
}

// Put writes data to a temp file and links it into place. The link fails
// with ErrExists when the key is already present, so nothing is overwritten.
func (s *LocalFileStore) Put(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	finalPath := filepath.Join(s.basePath, key)

	tmp, err := os.CreateTemp(s.basePath, tmpPrefix+key+"-*")
	if err != nil {
		return fmt.Errorf("msgstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("msgstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("msgstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("msgstore: close temp file: %w", err)
	}
	if err := os.Link(tmpName, finalPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("msgstore: link temp file: %w", err)
	}
	return nil
}

// Keys lists the record files in the base directory, skipping temp files.
func (s *LocalFileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("msgstore: read dir: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}

// Get reads record data from a file.
// Returns ErrNotFound if the record does not exist.
func (s *LocalFileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgstore: read file: %w", err)
	}
	return data, nil
}

// Delete removes a record file. A missing file returns (false, nil).
func (s *LocalFileStore) Delete(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	err := os.Remove(filepath.Join(s.basePath, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("msgstore: remove file: %w", err)
	}
	return true, nil
}

// HealthCheck verifies the base directory is still accessible.
func (s *LocalFileStore) HealthCheck(_ context.Context) error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("msgstore: stat base directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("msgstore: %s is not a directory", s.basePath)
	}
	return nil
}
