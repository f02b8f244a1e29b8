package chunker

import (
	"fmt"
	"io"
)

// Chunker splits an incoming byte stream into fixed-size chunks for the
// single-shot upload path. Integrity of stored chunks is covered by the
// cipher's authentication tag, so no separate content hash is kept.
type Chunker struct {
	chunkSize int64
}

// NewChunker creates a new chunker with the specified chunk size.
func NewChunker(chunkSize int64) *Chunker {
	return &Chunker{
		chunkSize: chunkSize,
	}
}

// ReadChunk reads the next chunk of up to the configured size from the
// reader. It returns io.EOF once the stream is exhausted; a short final
// chunk is returned with a nil error. Callers process one chunk at a
// time, so memory use is independent of stream length.
func (c *Chunker) ReadChunk(reader io.Reader) ([]byte, error) {
	buffer := make([]byte, c.chunkSize)
	n, err := io.ReadFull(reader, buffer)
	if n > 0 {
		return buffer[:n], nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("error reading chunk: %w", err)
	}
	return nil, io.EOF
}
