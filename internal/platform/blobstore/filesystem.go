package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystemBlobStore stores each blob as a file directly under root.
// Writes go to a temp file that is renamed into place, so a reader never sees
// a partially written workbook.
type FileSystemBlobStore struct {
	root string
}

func NewFileSystemBlobStore(root string) (*FileSystemBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &FileSystemBlobStore{root: root}, nil
}

func (s *FileSystemBlobStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key), nil
}

func (s *FileSystemBlobStore) Put(ctx context.Context, key string, content []byte) (*BlobMetadata, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := checkContent(content); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-"+key+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, fmt.Errorf("rename into %s: %w", key, err)
	}

	meta := newMetadata(key, content)
	return &meta, nil
}

func (s *FileSystemBlobStore) Get(_ context.Context, key string) ([]byte, *BlobMetadata, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("read %s: %w", key, err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", key, err)
	}
	meta := newMetadata(key, data)
	meta.UpdatedAt = info.ModTime().UTC()
	return data, &meta, nil
}

func (s *FileSystemBlobStore) Stat(ctx context.Context, key string) (*BlobMetadata, error) {
	_, meta, err := s.Get(ctx, key)
	return meta, err
}

func (s *FileSystemBlobStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FileSystemBlobStore) List(ctx context.Context) ([]*BlobMetadata, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	var out []*BlobMetadata
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		meta, err := s.Stat(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
