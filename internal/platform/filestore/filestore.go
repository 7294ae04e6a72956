// Package filestore stores uploaded dataset source files. It defines the
// Store interface, a disk-backed implementation used by the server, and an
// in-memory implementation suitable for testing.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrFileNotFound    = errors.New("stored file not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed upload size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// Store is the contract for dataset source file storage. Save returns an
// opaque id used for later reads; the original filename survives only as a
// suffix of the id so operators can recognize files on disk.
type Store interface {
	Save(ctx context.Context, fileName string, content io.Reader) (string, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Remove(ctx context.Context, id string) error
}

// ---------------------------------------------------------------------------
// Disk implementation
// ---------------------------------------------------------------------------

// DiskStore stores files under a base directory, one file per upload.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the base directory if needed and returns a DiskStore.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Save(_ context.Context, fileName string, content io.Reader) (string, error) {
	if fileName == "" {
		return "", ErrMissingFileName
	}

	id := uuid.New().String() + "_" + sanitizeFileName(fileName)
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create stored file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write stored file: %w", err)
	}
	if n > MaxFileSize {
		os.Remove(path)
		return "", ErrFileTooLarge
	}

	return id, nil
}

func (s *DiskStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Remove(_ context.Context, id string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(id)))
	if os.IsNotExist(err) {
		return ErrFileNotFound
	}
	return err
}

// sanitizeFileName strips path separators and whitespace so the stored name
// is safe to join under the base directory.
func sanitizeFileName(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		return r
	}, name)
	return name
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemStore is a thread-safe, in-memory Store for testing.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemStore returns a ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

func (s *MemStore) Save(_ context.Context, fileName string, content io.Reader) (string, error) {
	if fileName == "" {
		return "", ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return "", ErrFileTooLarge
	}

	id := uuid.New().String() + "_" + sanitizeFileName(fileName)

	s.mu.Lock()
	s.files[id] = data
	s.mu.Unlock()

	return id, nil
}

func (s *MemStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, id)
	return nil
}

// Put stores content under a caller-chosen id. Test helper.
func (s *MemStore) Put(id string, data []byte) {
	s.mu.Lock()
	s.files[id] = data
	s.mu.Unlock()
}
