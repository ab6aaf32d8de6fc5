package files

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gridpix/gridpix/internal/chunker"
	"github.com/gridpix/gridpix/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Upload reads the stream one chunk at a time, writes each chunk, then
// writes the file record. The record is written only after the last chunk
// is acknowledged, so the file becomes visible to readers all at once.
// On any failure — including the client disconnecting mid-stream — chunks
// already written for this upload are removed before the error surfaces.
func (s *Store) Upload(ctx context.Context, reader io.Reader, originalName, contentType string, meta models.Metadata) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "upload_file",
		trace.WithAttributes(
			attribute.String("content_type", contentType),
		),
	)
	defer span.End()

	fileID := uuid.New().String()
	span.SetAttributes(attribute.String("file_id", fileID))

	cr := chunker.NewChunkReader(reader, s.chunkSize)
	var totalSize int64
	chunkCount := 0

	for {
		payload, sequence, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			span.RecordError(err)
			s.abortUpload(fileID)
			return nil, err
		}

		if err := s.chunks.PutChunk(ctx, fileID, sequence, payload); err != nil {
			span.RecordError(err)
			s.abortUpload(fileID)
			return nil, err
		}

		totalSize += int64(len(payload))
		chunkCount++
	}

	filename, err := randomFilename(originalName)
	if err != nil {
		span.RecordError(err)
		s.abortUpload(fileID)
		return nil, err
	}

	file := &models.File{
		ID:          fileID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   totalSize,
		ChunkCount:  chunkCount,
		UploadedAt:  time.Now().UTC(),
		Metadata:    meta,
	}

	if err := s.registry.Create(ctx, file); err != nil {
		span.RecordError(err)
		s.abortUpload(fileID)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("file_size", totalSize),
		attribute.Int("chunk_count", chunkCount),
	)
	return file, nil
}

// abortUpload removes partially written chunks. It runs on a fresh context
// because the request context may already be canceled.
func (s *Store) abortUpload(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.chunks.DeleteFile(ctx, fileID); err != nil {
		log.Printf("Warning: failed to clean up chunks for aborted upload %s: %v", fileID, err)
	}
}
