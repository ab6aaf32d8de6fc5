package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("gridpix-storage")

// MinioChunkStore persists chunks as MinIO objects keyed chunks/<fileID>/<sequence>.
type MinioChunkStore struct {
	client     *minio.Client
	bucketName string
}

// NewMinioChunkStore initializes a MinIO-backed chunk store
func NewMinioChunkStore(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioChunkStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	mc := &MinioChunkStore{
		client:     client,
		bucketName: bucketName,
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.Printf("Creating bucket: %s", bucketName)
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("Bucket %s created successfully", bucketName)
	}

	return mc, nil
}

func chunkObjectKey(fileID string, sequence int) string {
	return fmt.Sprintf("chunks/%s/%d", fileID, sequence)
}

// PutChunk uploads a chunk payload with tracing
func (mc *MinioChunkStore) PutChunk(ctx context.Context, fileID string, sequence int, payload []byte) error {
	objectKey := chunkObjectKey(fileID, sequence)
	ctx, span := tracer.Start(ctx, "minio.put_chunk",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
			attribute.Int("size_bytes", len(payload)),
		),
	)
	defer span.End()

	reader := bytes.NewReader(payload)
	_, err := mc.client.PutObject(ctx, mc.bucketName, objectKey, reader, int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})

	if err != nil {
		span.RecordError(err)
		return &WriteError{Op: "minio.put_chunk", Err: err}
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return nil
}

// GetChunk downloads a chunk payload with tracing
func (mc *MinioChunkStore) GetChunk(ctx context.Context, fileID string, sequence int) ([]byte, error) {
	objectKey := chunkObjectKey(fileID, sequence)
	ctx, span := tracer.Start(ctx, "minio.get_chunk",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
		),
	)
	defer span.End()

	object, err := mc.client.GetObject(ctx, mc.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		// GetObject is lazy; a missing key surfaces on first read
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			span.SetAttributes(attribute.Bool("found", false))
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}

	span.SetAttributes(
		attribute.Int("size_bytes", len(data)),
		attribute.Bool("download_success", true),
	)
	return data, nil
}

// DeleteFile removes every chunk object under the file's prefix.
func (mc *MinioChunkStore) DeleteFile(ctx context.Context, fileID string) error {
	ctx, span := tracer.Start(ctx, "minio.delete_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	prefix := fmt.Sprintf("chunks/%s/", fileID)
	removed := 0
	for object := range mc.client.ListObjects(ctx, mc.bucketName, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			span.RecordError(object.Err)
			return fmt.Errorf("failed to list chunks: %w", object.Err)
		}
		if err := mc.client.RemoveObject(ctx, mc.bucketName, object.Key, minio.RemoveObjectOptions{}); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to delete chunk %s: %w", object.Key, err)
		}
		removed++
	}

	span.SetAttributes(attribute.Int("chunks_removed", removed))
	return nil
}

// IterateChunks counts the file's chunk objects up front, then serves one
// GetChunk per Next call so reads stay consumer-paced.
func (mc *MinioChunkStore) IterateChunks(ctx context.Context, fileID string) (ChunkIterator, error) {
	ctx, span := tracer.Start(ctx, "minio.iterate_chunks",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	prefix := fmt.Sprintf("chunks/%s/", fileID)
	count := 0
	for object := range mc.client.ListObjects(ctx, mc.bucketName, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			span.RecordError(object.Err)
			return nil, fmt.Errorf("failed to list chunks: %w", object.Err)
		}
		count++
	}

	if count == 0 {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	}

	span.SetAttributes(attribute.Int("chunk_count", count))
	return &minioChunkIterator{store: mc, fileID: fileID, count: count}, nil
}

type minioChunkIterator struct {
	store  *MinioChunkStore
	fileID string
	next   int
	count  int
}

func (it *minioChunkIterator) Next(ctx context.Context) ([]byte, error) {
	if it.next >= it.count {
		return nil, io.EOF
	}
	payload, err := it.store.GetChunk(ctx, it.fileID, it.next)
	if err != nil {
		return nil, err
	}
	it.next++
	return payload, nil
}

func (it *minioChunkIterator) Close() error {
	return nil
}
