package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter stores archive artifacts as JSON documents in a directory.
type FileWriter struct {
	dir string
}

// NewFileWriter creates a FileWriter rooted at dir, creating it if needed.
func NewFileWriter(dir string) (*FileWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir %q: %w", dir, err)
	}
	return &FileWriter{dir: dir}, nil
}

// Write marshals the batch and lands it atomically: the document is written
// and synced to a temp file first, then renamed into place. A crash mid-write
// leaves no partial artifact under the final name.
func (w *FileWriter) Write(ctx context.Context, name string, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive batch: %w", err)
	}

	finalPath := filepath.Join(w.dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize archive file: %w", err)
	}
	return nil
}
