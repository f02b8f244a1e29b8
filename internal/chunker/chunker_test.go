package chunker

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, c *Chunker, r io.Reader) [][]byte {
	t.Helper()
	var chunks [][]byte
	for {
		data, err := c.ReadChunk(r)
		if err == io.EOF {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, data)
	}
}

func TestReadChunk_SplitsStream(t *testing.T) {
	input := bytes.Repeat([]byte("x"), 1000)
	c := NewChunker(256)

	chunks := drain(t, c, bytes.NewReader(input))
	require.Len(t, chunks, 4)
	assert.Len(t, chunks[0], 256)
	assert.Len(t, chunks[3], 232)

	var rebuilt []byte
	for _, ch := range chunks {
		rebuilt = append(rebuilt, ch...)
	}
	assert.Equal(t, input, rebuilt)
}

func TestReadChunk_ExactMultiple(t *testing.T) {
	input := bytes.Repeat([]byte("y"), 512)
	c := NewChunker(256)

	chunks := drain(t, c, bytes.NewReader(input))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 256)
	assert.Len(t, chunks[1], 256)
}

func TestReadChunk_EmptyInput(t *testing.T) {
	c := NewChunker(256)

	_, err := c.ReadChunk(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}
