package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

// FileStateRepository persists state records as JSON files under a
// base directory, one file per key.
type FileStateRepository struct {
	baseDir string
}

// NewFileStateRepository ensures the base directory exists and returns
// a handle.
func NewFileStateRepository(baseDir string) (*FileStateRepository, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStateRepository{baseDir: baseDir}, nil
}

// Load reads the value stored under key.
func (r *FileStateRepository) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(r.resolve(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("key %s not found", key))
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return data, nil
}

// Save writes the value under key.
func (r *FileStateRepository) Save(_ context.Context, key string, value []byte) error {
	if err := os.WriteFile(r.resolve(key), value, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Clear removes every stored key.
func (r *FileStateRepository) Clear(_ context.Context) error {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return fmt.Errorf("list state directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(r.baseDir, entry.Name())); err != nil {
			return fmt.Errorf("remove state file: %w", err)
		}
	}
	return nil
}

// resolve keeps keys inside the base directory.
func (r *FileStateRepository) resolve(key string) string {
	safe := strings.ReplaceAll(filepath.Clean(key), string(filepath.Separator), "_")
	return filepath.Join(r.baseDir, safe+".json")
}
