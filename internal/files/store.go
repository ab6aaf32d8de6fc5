// Package files implements the upload pipeline, retrieval/streaming
// service, and tag search over a chunk store and metadata registry.
package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridpix/gridpix/internal/storage"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gridpix-files")

// ErrUnsupportedMedia is returned when a non-image file is requested for
// inline streaming.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// PartialFailureError reports a delete that removed the file's chunks but
// failed to remove its registry record, leaving the two stores
// inconsistent. It is surfaced distinctly from a clean delete so a
// reconciliation pass can be scheduled.
type PartialFailureError struct {
	FileID string
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial delete of file %s: %v", e.FileID, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Scheduler queues a file for a later delete retry after a partial failure.
type Scheduler interface {
	ScheduleDelete(ctx context.Context, fileID string) error
}

// Store coordinates the chunk store and metadata registry. Operations on
// unrelated file IDs run fully concurrently; same-file delete and read are
// not serialized, so a reader racing a delete may observe ErrNotFound.
type Store struct {
	chunks    storage.ChunkStore
	registry  storage.MetadataRegistry
	cache     *storage.RecordCache // optional
	scheduler Scheduler            // optional
	chunkSize int64
}

// NewStore creates a store. cache and scheduler may be nil.
func NewStore(chunks storage.ChunkStore, registry storage.MetadataRegistry, cache *storage.RecordCache, scheduler Scheduler, chunkSize int64) *Store {
	return &Store{
		chunks:    chunks,
		registry:  registry,
		cache:     cache,
		scheduler: scheduler,
		chunkSize: chunkSize,
	}
}
