package files

import (
	"context"
	"errors"
	"log"

	"github.com/gridpix/gridpix/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Delete removes a file's chunks, then its registry record. A failure
// before any chunk is removed leaves the file intact and retryable. A
// registry failure after chunk removal is a partial failure: the error is
// surfaced as *PartialFailureError and, when a scheduler is configured, a
// reconciliation retry is queued.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	ctx, span := tracer.Start(ctx, "delete_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	// Look the record up first so a repeated delete reports ErrNotFound.
	file, err := s.registry.GetByID(ctx, fileID)
	if err != nil {
		return err
	}

	if err := s.chunks.DeleteFile(ctx, fileID); err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.registry.Delete(ctx, fileID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// a concurrent delete removed the record; state is consistent
			return nil
		}
		span.RecordError(err)
		pf := &PartialFailureError{FileID: fileID, Err: err}
		if s.scheduler != nil {
			if serr := s.scheduler.ScheduleDelete(ctx, fileID); serr != nil {
				log.Printf("Warning: failed to schedule delete reconciliation for %s: %v", fileID, serr)
			} else {
				span.SetAttributes(attribute.Bool("reconciliation_scheduled", true))
			}
		}
		return pf
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, file); err != nil {
			log.Printf("Warning: failed to invalidate cache for %s: %v", fileID, err)
		}
	}

	span.SetAttributes(attribute.Bool("delete_success", true))
	return nil
}
