package files

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/gridpix/gridpix/internal/models"
	"github.com/gridpix/gridpix/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Resolve looks up a file record by id or filename, consulting the cache
// first when one is configured.
func (s *Store) Resolve(ctx context.Context, identifier string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "resolve_file",
		trace.WithAttributes(
			attribute.String("identifier", identifier),
		),
	)
	defer span.End()

	if s.cache != nil {
		file, err := s.cache.Get(ctx, identifier)
		if err != nil {
			log.Printf("Warning: cache lookup failed for %s: %v", identifier, err)
		} else if file != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return file, nil
		}
	}

	file, err := s.registry.GetByID(ctx, identifier)
	if errors.Is(err, storage.ErrNotFound) {
		file, err = s.registry.GetByFilename(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, file); err != nil {
			log.Printf("Warning: failed to cache record %s: %v", file.ID, err)
		}
	}
	return file, nil
}

// Stream returns an ordered, consumer-paced iterator over the file's chunk
// payloads. Only image records are eligible for inline streaming; anything
// else gets ErrUnsupportedMedia.
func (s *Store) Stream(ctx context.Context, file *models.File) (storage.ChunkIterator, error) {
	ctx, span := tracer.Start(ctx, "stream_file",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.Int("chunk_count", file.ChunkCount),
		),
	)
	defer span.End()

	if !file.IsImage() {
		span.SetAttributes(attribute.String("content_type", file.ContentType))
		return nil, ErrUnsupportedMedia
	}

	if file.ChunkCount == 0 {
		return emptyIterator{}, nil
	}
	return s.chunks.IterateChunks(ctx, file.ID)
}

// List returns every file record, newest first.
func (s *Store) List(ctx context.Context) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "list_files")
	defer span.End()

	return s.registry.ListAll(ctx)
}

// Search returns the records whose stored tag string contains tag.
// Two searches with no intervening writes return identical results.
func (s *Store) Search(ctx context.Context, tag string) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "search_by_tag",
		trace.WithAttributes(
			attribute.String("tag", tag),
		),
	)
	defer span.End()

	return s.registry.FindByTag(ctx, tag)
}

// emptyIterator serves zero-chunk files, which are legitimate records the
// chunk store has never heard of.
type emptyIterator struct{}

func (emptyIterator) Next(ctx context.Context) ([]byte, error) { return nil, io.EOF }
func (emptyIterator) Close() error                             { return nil }
