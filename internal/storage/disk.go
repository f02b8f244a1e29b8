package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DiskStore keeps encrypted chunks under a local directory, one file per
// object key. Object keys map to relative paths inside the root.
type DiskStore struct {
	root string
}

// NewDiskStore creates the storage directory if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (ds *DiskStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(ds.root, clean), nil
}

// Put writes one chunk file. Writes go through a temp file and rename so
// a crashed upload never leaves a half-written chunk behind.
func (ds *DiskStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, span := tracer.Start(ctx, "disk.put_chunk",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("size_bytes", size),
		),
	)
	defer span.End()

	path, err := ds.path(key)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chunk dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chunk-*")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create temp chunk: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		span.RecordError(err)
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to close chunk: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to finalize chunk: %w", err)
	}
	return nil
}

// Get opens one chunk file for reading.
func (ds *DiskStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "disk.get_chunk",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	path, err := ds.path(key)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open chunk: %w", err)
	}
	return f, nil
}
