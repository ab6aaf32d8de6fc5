package storage

import (
	"context"

	"github.com/gridpix/gridpix/internal/models"
)

// ChunkIterator yields chunk payloads for one file in sequence order.
// Next blocks until the consumer asks for the next chunk, so a slow
// consumer paces reads instead of forcing the producer to buffer ahead.
// Next returns io.EOF after the last chunk.
type ChunkIterator interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// ChunkStore persists raw byte ranges keyed by (file ID, sequence number).
type ChunkStore interface {
	// PutChunk writes one chunk payload. Returns a *WriteError when the
	// medium rejects the write.
	PutChunk(ctx context.Context, fileID string, sequence int, payload []byte) error

	// GetChunk reads one chunk payload. Returns ErrNotFound if no such
	// chunk exists.
	GetChunk(ctx context.Context, fileID string, sequence int) ([]byte, error)

	// DeleteFile removes all chunks for fileID. Idempotent: deleting a
	// file with no chunks is not an error.
	DeleteFile(ctx context.Context, fileID string) error

	// IterateChunks returns a fresh iterator over the file's chunks,
	// ordered by sequence ascending. Returns ErrNotFound if the store
	// holds no chunks for fileID.
	IterateChunks(ctx context.Context, fileID string) (ChunkIterator, error)
}

// MetadataRegistry tracks one record per logical file.
type MetadataRegistry interface {
	// Create persists a new record. Assigns file.ID if empty. Returns
	// ErrDuplicateFilename when the filename is already taken.
	Create(ctx context.Context, file *models.File) error

	// GetByID returns the record for id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.File, error)

	// GetByFilename returns the record for filename, or ErrNotFound.
	GetByFilename(ctx context.Context, filename string) (*models.File, error)

	// ListAll returns all records ordered by upload time descending.
	ListAll(ctx context.Context) ([]*models.File, error)

	// FindByTag returns records whose stored tag string contains tag as
	// a substring. Tags is one free-text string, so a record tagged
	// "sunset, beach" matches the query "sunset".
	FindByTag(ctx context.Context, tag string) ([]*models.File, error)

	// Delete removes the record for id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}
