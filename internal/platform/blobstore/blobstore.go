// Package blobstore keeps canonical workbooks. Keys are flat file names such as
// "{patientId}.xlsx"; a Put replaces the previous content as a whole.
package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid blob key")
	ErrEmptyContent = errors.New("refusing to store empty content")
)

// MaxFileSize caps a single stored workbook (100 MB).
const MaxFileSize = 100 * 1024 * 1024

type BlobMetadata struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BlobStore interface {
	Put(ctx context.Context, key string, content []byte) (*BlobMetadata, error)
	Get(ctx context.Context, key string) ([]byte, *BlobMetadata, error)
	Stat(ctx context.Context, key string) (*BlobMetadata, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*BlobMetadata, error)
}

// ValidateKey rejects keys that could escape the store root.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func checkContent(content []byte) error {
	if len(content) == 0 {
		return ErrEmptyContent
	}
	if len(content) > MaxFileSize {
		return fmt.Errorf("content of %d bytes exceeds maximum of %d", len(content), MaxFileSize)
	}
	return nil
}

func newMetadata(key string, content []byte) BlobMetadata {
	return BlobMetadata{
		Key:       key,
		Size:      int64(len(content)),
		Hash:      fmt.Sprintf("%x", sha256.Sum256(content)),
		UpdatedAt: time.Now().UTC(),
	}
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe BlobStore for tests and development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key string, content []byte) (*BlobMetadata, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := checkContent(content); err != nil {
		return nil, err
	}

	data := append([]byte(nil), content...)
	meta := newMetadata(key, data)

	s.mu.Lock()
	s.blobs[key] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) ([]byte, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return append([]byte(nil), blob.content...), &meta, nil
}

func (s *InMemoryBlobStore) Stat(_ context.Context, key string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *InMemoryBlobStore) List(_ context.Context) ([]*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*BlobMetadata, 0, len(s.blobs))
	for _, b := range s.blobs {
		m := b.metadata
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
