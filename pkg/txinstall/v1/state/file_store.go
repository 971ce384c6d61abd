package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore implements Store on the local filesystem. Paths are used as given.
type FileStore struct {
	// FileMode is applied to newly written state files. Defaults to 0644.
	FileMode os.FileMode
}

// NewFileStore creates a FileStore with default permissions.
func NewFileStore() *FileStore {
	return &FileStore{FileMode: 0o644}
}

// Exists reports whether a regular file exists at path.
func (f *FileStore) Exists(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat state file: %w", err)
	}
	return !info.IsDir(), nil
}

// Read returns the content of the file at path.
func (f *FileStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return data, nil
}

// Write replaces the file at path, creating its directory when needed.
func (f *FileStore) Write(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("state file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to ensure state directory: %w", err)
	}
	mode := f.FileMode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Remove deletes the file at path. A missing file is not an error.
func (f *FileStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
