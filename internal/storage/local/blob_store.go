// Package local implements a local filesystem blob store used to archive
// finished tables.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where archived tables are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Overwrite allows replacing an existing file.
	Overwrite bool `mapstructure:"overwrite" yaml:"overwrite"`
}

// ErrExists is returned by PutObject when the target exists and overwrites
// are disabled.
var ErrExists = errors.New("object already exists")

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir   string
	overwrite bool
}

// New creates a new local filesystem-backed blob store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable_*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &BlobStore{baseDir: cfg.BaseDir, overwrite: cfg.Overwrite}, nil
}

// PutObject streams data into a file under the base directory and returns
// a file:// URI. The file appears atomically; without Overwrite an existing
// file is left untouched and ErrExists is returned.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	cleanBaseDir := filepath.Clean(s.baseDir)
	fullPath := filepath.Clean(filepath.Join(s.baseDir, path))
	if !strings.HasPrefix(fullPath, cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if s.overwrite {
		if err := os.Rename(tmp.Name(), fullPath); err != nil {
			return "", fmt.Errorf("failed to move file into place: %w", err)
		}
	} else if err := os.Link(tmp.Name(), fullPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%s: %w", fullPath, ErrExists)
		}
		return "", fmt.Errorf("failed to link file into place: %w", err)
	}

	return fmt.Sprintf("file://%s", fullPath), nil
}
