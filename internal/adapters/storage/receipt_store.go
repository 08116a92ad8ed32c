// Package storage holds the receipt attachment store. Receipts are opaque
// blobs addressed by a fresh uuid handle; the handle is never derived from
// the original filename, and resolving a handle back to bytes always goes
// through the owning expense row first (see the expense service).
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"servio-crm/internal/core/domain"

	"github.com/google/uuid"
)

// ReceiptStore stores and retrieves receipt blobs by opaque handle
type ReceiptStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, handle string) error
	Sweep(ctx context.Context, referenced map[string]bool, minAge time.Duration) (int, error)
}

// FileStore keeps receipts as flat files under a root directory
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

// Save writes the blob under a fresh handle. The file is synced and
// renamed into place before the handle is returned, so the blob is durable
// before the owning expense row commits.
func (s *FileStore) Save(_ context.Context, r io.Reader) (string, error) {
	handle := uuid.NewString()
	tmp := filepath.Join(s.root, handle+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, filepath.Join(s.root, handle)); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return handle, nil
}

// Open returns the blob and its size
func (s *FileStore) Open(_ context.Context, handle string) (io.ReadCloser, int64, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, domain.ErrReceiptNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Delete removes the blob; a missing file is not an error
func (s *FileStore) Delete(_ context.Context, handle string) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep removes blobs that no expense row references anymore, plus stale
// temp files from interrupted uploads. minAge protects uploads whose
// expense row has not committed yet.
func (s *FileStore) Sweep(_ context.Context, referenced map[string]bool, minAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-minAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		handle := strings.TrimSuffix(name, ".tmp")
		if referenced[handle] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// path validates the handle shape before touching the filesystem, so a
// leaked or crafted handle cannot traverse outside the root
func (s *FileStore) path(handle string) (string, error) {
	if _, err := uuid.Parse(handle); err != nil {
		return "", domain.ErrReceiptNotFound
	}
	return filepath.Join(s.root, handle), nil
}

// contentTypes whitelists known receipt extensions; anything else is
// served as an opaque binary
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".heic": "image/heic",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ContentTypeFor maps the original filename's extension to a content type
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
