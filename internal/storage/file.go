package storage

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

type FileStorage struct {
	config FileConfig
}

type FileConfig struct {
	Directory string
}

func NewFileStorage(f FileConfig) *FileStorage {
	if f.Directory == "" {
		f.Directory = "."
	}

	return &FileStorage{
		config: f,
	}
}

// NewTempStorage creates a fresh private directory. Remove deletes it with
// everything stored in it.
func NewTempStorage(pattern string) (*FileStorage, error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, xerrors.Errorf("failed to create temporary directory: %w", err)
	}
	return NewFileStorage(FileConfig{Directory: dir}), nil
}

func (a *FileStorage) Directory() string {
	return a.config.Directory
}

// Path returns where key is stored. Keys may not leave the directory.
func (a *FileStorage) Path(key string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", xerrors.Errorf("invalid key: %q", key)
	}
	return filepath.Join(a.config.Directory, key), nil
}

func (a *FileStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	filePath, err := a.Path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", xerrors.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", xerrors.Errorf("failed to write file: %w", err)
	}

	return filePath, nil
}

func (a *FileStorage) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(url)
	if err != nil {
		return nil, xerrors.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

func (a *FileStorage) Remove() error {
	if err := os.RemoveAll(a.config.Directory); err != nil {
		return xerrors.Errorf("failed to remove %s: %w", a.config.Directory, err)
	}
	return nil
}

var _ Storage = (*FileStorage)(nil)
