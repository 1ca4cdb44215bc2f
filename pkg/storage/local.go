package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Local stores media on disk under Root; /uploads/... maps to Root/uploads/...
type Local struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

var _ BlobStore = (*Local)(nil)

// NewLocal creates a disk-backed store. baseURL may be empty to persist bare paths.
func NewLocal(root, baseURL string, logger *zap.Logger) (*Local, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(root, FolderUploads), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{root: root, baseURL: baseURL, logger: logger}, nil
}

// Dir returns the directory served under /uploads.
func (l *Local) Dir() string {
	return filepath.Join(l.root, FolderUploads)
}

// Write stores body at blobPath.
func (l *Local) Write(_ context.Context, blobPath, _ string, body []byte) (Blob, error) {
	full := filepath.Join(l.root, filepath.FromSlash(blobPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Blob{}, fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(full, body, 0o644); err != nil {
		return Blob{}, fmt.Errorf("write file: %w", err)
	}
	return Blob{Path: blobPath, URL: publicURL(l.baseURL, blobPath), Size: int64(len(body))}, nil
}

// Delete removes the file behind url.
func (l *Local) Delete(_ context.Context, url string) (bool, error) {
	blobPath, err := pathFromURL(l.baseURL, url)
	if err != nil {
		return false, err
	}
	err = os.Remove(filepath.Join(l.root, filepath.FromSlash(blobPath)))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove file: %w", err)
	}
	l.logger.Debug("local blob deleted", zap.String("path", blobPath))
	return true, nil
}
