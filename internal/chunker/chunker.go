package chunker

import (
	"fmt"
	"io"
)

// ChunkReader slices a byte stream into chunks of at most chunkSize bytes.
// It holds one chunk's worth of data at a time, never the whole stream.
type ChunkReader struct {
	reader    io.Reader
	chunkSize int64
	sequence  int
	done      bool
}

// NewChunkReader creates a reader that yields chunks of at most chunkSize bytes
func NewChunkReader(reader io.Reader, chunkSize int64) *ChunkReader {
	return &ChunkReader{
		reader:    reader,
		chunkSize: chunkSize,
	}
}

// Next returns the next chunk payload and its zero-based sequence number.
// Every chunk except the last is exactly chunkSize bytes. Next returns
// io.EOF once the stream is exhausted.
func (cr *ChunkReader) Next() ([]byte, int, error) {
	if cr.done {
		return nil, 0, io.EOF
	}

	buffer := make([]byte, cr.chunkSize)
	n, err := io.ReadFull(cr.reader, buffer)

	switch {
	case err == io.EOF:
		cr.done = true
		return nil, 0, io.EOF
	case err == io.ErrUnexpectedEOF:
		// short final chunk
		cr.done = true
	case err != nil:
		return nil, 0, fmt.Errorf("error reading chunk: %w", err)
	}

	sequence := cr.sequence
	cr.sequence++
	return buffer[:n], sequence, nil
}
