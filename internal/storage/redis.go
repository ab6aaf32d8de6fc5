package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gridpix/gridpix/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CacheTTL is the time-to-live for cached file records (5 minutes)
	CacheTTL = 5 * time.Minute
)

// RecordCache caches file records in Redis under both their id and their
// filename, since callers resolve by either.
type RecordCache struct {
	client *redis.Client
}

// NewRecordCache initializes a new Redis-backed cache
func NewRecordCache(addr, password string, db int) (*RecordCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RecordCache{client: client}, nil
}

// Close closes the Redis connection
func (rc *RecordCache) Close() error {
	return rc.client.Close()
}

func cacheKey(identifier string) string {
	return fmt.Sprintf("file:%s", identifier)
}

// Get retrieves a cached record by id or filename with tracing.
// A miss returns (nil, nil), not an error.
func (rc *RecordCache) Get(ctx context.Context, identifier string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "redis.get_record",
		trace.WithAttributes(
			attribute.String("identifier", identifier),
		),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, cacheKey(identifier)).Result()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var file models.File
	if err := json.Unmarshal([]byte(data), &file); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &file, nil
}

// Set caches a record under its id and filename with tracing
func (rc *RecordCache) Set(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "redis.set_record",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.String("filename", file.Filename),
		),
	)
	defer span.End()

	data, err := json.Marshal(file)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal file: %w", err)
	}

	for _, key := range []string{cacheKey(file.ID), cacheKey(file.Filename)} {
		if err := rc.client.Set(ctx, key, data, CacheTTL).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to set cache: %w", err)
		}
	}

	span.SetAttributes(attribute.Int64("ttl_seconds", int64(CacheTTL.Seconds())))
	return nil
}

// Invalidate removes a record's cache entries with tracing
func (rc *RecordCache) Invalidate(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_record",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
		),
	)
	defer span.End()

	err := rc.client.Del(ctx, cacheKey(file.ID), cacheKey(file.Filename)).Err()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}
