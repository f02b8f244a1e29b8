package storage

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("secdrop-storage")

// BlobStore is durable write-once read-many storage for opaque encrypted
// chunks, addressed by object key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ChunkKey builds the object key for one chunk of a transfer.
func ChunkKey(transferID string, index int) string {
	return fmt.Sprintf("chunks/%s/%d", transferID, index)
}
