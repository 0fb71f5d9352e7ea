package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yourusername/unifi-ops/internal/logging"
)

// LocalDestination stores artifacts on the local filesystem.
type LocalDestination struct {
	basePath string
}

// NewLocalDestination creates a new local destination
func NewLocalDestination(basePath string) *LocalDestination {
	return &LocalDestination{
		basePath: basePath,
	}
}

// Store writes the artifact to a temp file first and renames it into
// place, so a partial download is never visible under the final name.
func (ld *LocalDestination) Store(filename string, reader io.Reader) (int64, error) {
	if err := os.MkdirAll(ld.basePath, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	destPath := filepath.Join(ld.basePath, filename)
	tmp, err := os.CreateTemp(ld.basePath, filename+".partial-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), destPath); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to finalize artifact: %w", err)
	}

	logging.L().Debug("stored artifact", "destination", "local", "path", destPath, "bytes", written)
	return written, nil
}

// Open reads a stored artifact.
func (ld *LocalDestination) Open(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(ld.basePath, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return file, nil
}

// Delete removes a stored artifact.
func (ld *LocalDestination) Delete(filename string) error {
	if err := os.Remove(filepath.Join(ld.basePath, filename)); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// List returns all artifacts in the local destination.
func (ld *LocalDestination) List() ([]StoredFile, error) {
	if err := os.MkdirAll(ld.basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to access destination directory: %w", err)
	}

	entries, err := os.ReadDir(ld.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination directory: %w", err)
	}

	var files []StoredFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logging.L().Warn("skipping unreadable entry", "name", entry.Name(), "error", err)
			continue
		}

		files = append(files, StoredFile{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().Unix(),
		})
	}

	return files, nil
}

// Type returns the destination type
func (ld *LocalDestination) Type() string {
	return "local"
}

// Path returns the base path
func (ld *LocalDestination) Path() string {
	return ld.basePath
}
