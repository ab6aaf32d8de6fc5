package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridpix/gridpix/internal/models"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testFile(filename, tags string) *models.File {
	return &models.File{
		Filename:    filename,
		ContentType: "image/png",
		SizeBytes:   42,
		ChunkCount:  1,
		UploadedAt:  time.Now().UTC(),
		Metadata: models.Metadata{
			Tags:        tags,
			Author:      "alice",
			Description: "a test file",
		},
	}
}

func TestChunkRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payloads := [][]byte{
		bytes.Repeat([]byte{1}, 100),
		bytes.Repeat([]byte{2}, 100),
		bytes.Repeat([]byte{3}, 40),
	}
	for i, p := range payloads {
		if err := store.PutChunk(ctx, "f1", i, p); err != nil {
			t.Fatalf("PutChunk %d failed: %v", i, err)
		}
	}

	for i, want := range payloads {
		got, err := store.GetChunk(ctx, "f1", i)
		if err != nil {
			t.Fatalf("GetChunk %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("chunk %d payload mismatch", i)
		}
	}
}

func TestGetChunkNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetChunk(context.Background(), "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}
}

func TestIterateChunksOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// write out of order to prove the iterator sorts by sequence
	for _, seq := range []int{2, 0, 1} {
		if err := store.PutChunk(ctx, "f1", seq, []byte{byte(seq)}); err != nil {
			t.Fatalf("PutChunk %d failed: %v", seq, err)
		}
	}

	iter, err := store.IterateChunks(ctx, "f1")
	if err != nil {
		t.Fatalf("IterateChunks failed: %v", err)
	}
	defer iter.Close()

	for want := 0; want < 3; want++ {
		payload, err := iter.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", want, err)
		}
		if len(payload) != 1 || payload[0] != byte(want) {
			t.Fatalf("expect chunk %d, got %v", want, payload)
		}
	}
	if _, err := iter.Next(ctx); err != io.EOF {
		t.Fatalf("expect io.EOF, got %v", err)
	}

	// a second iteration starts fresh from sequence 0
	iter2, err := store.IterateChunks(ctx, "f1")
	if err != nil {
		t.Fatalf("restarted IterateChunks failed: %v", err)
	}
	defer iter2.Close()
	payload, err := iter2.Next(ctx)
	if err != nil || payload[0] != 0 {
		t.Fatalf("restarted iterator: expect chunk 0, got %v (%v)", payload, err)
	}
}

func TestIterateChunksUnknownFile(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.IterateChunks(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}
}

func TestDeleteFileIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutChunk(ctx, "f1", 0, []byte("data")); err != nil {
		t.Fatalf("PutChunk failed: %v", err)
	}
	if err := store.DeleteFile(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if _, err := store.GetChunk(ctx, "f1", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound after delete, got %v", err)
	}
	// deleting again is not an error
	if err := store.DeleteFile(ctx, "f1"); err != nil {
		t.Fatalf("second DeleteFile failed: %v", err)
	}
}

func TestDeleteFileDoesNotTouchOthers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutChunk(ctx, "f1", 0, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := store.PutChunk(ctx, "f2", 0, []byte("two")); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteFile(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetChunk(ctx, "f2", 0); err != nil {
		t.Fatalf("f2 chunk should survive f1 delete: %v", err)
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := testFile("abc123.png", "sunset")
	if err := store.Create(ctx, file); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if file.ID == "" {
		t.Fatal("Create should assign an ID")
	}

	byID, err := store.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Filename != "abc123.png" || byID.Metadata.Author != "alice" {
		t.Fatalf("unexpected record: %+v", byID)
	}

	byName, err := store.GetByFilename(ctx, "abc123.png")
	if err != nil {
		t.Fatalf("GetByFilename failed: %v", err)
	}
	if byName.ID != file.ID {
		t.Fatalf("expect ID %s, got %s", file.ID, byName.ID)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}
}

func TestRegistryDuplicateFilename(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testFile("dup.png", "")); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	err := store.Create(ctx, testFile("dup.png", ""))
	if !errors.Is(err, ErrDuplicateFilename) {
		t.Fatalf("expect ErrDuplicateFilename, got %v", err)
	}
}

func TestRegistryFindByTag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	beach := testFile("beach.png", "sunset, beach")
	night := testFile("night.png", "night")
	for _, f := range []*models.File{beach, night} {
		if err := store.Create(ctx, f); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	results, err := store.FindByTag(ctx, "sunset")
	if err != nil {
		t.Fatalf("FindByTag failed: %v", err)
	}
	if len(results) != 1 || results[0].Filename != "beach.png" {
		t.Fatalf("expect only beach.png, got %d results", len(results))
	}

	// repeated search with no writes in between returns identical results
	again, err := store.FindByTag(ctx, "sunset")
	if err != nil {
		t.Fatalf("repeated FindByTag failed: %v", err)
	}
	if len(again) != 1 || again[0].ID != results[0].ID {
		t.Fatal("repeated search returned different results")
	}

	none, err := store.FindByTag(ctx, "winter")
	if err != nil {
		t.Fatalf("FindByTag failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expect no results, got %d", len(none))
	}
}

func TestRegistryListAllOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := testFile("older.png", "")
	older.UploadedAt = time.Now().UTC().Add(-time.Hour)
	newer := testFile("newer.png", "")
	for _, f := range []*models.File{older, newer} {
		if err := store.Create(ctx, f); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expect 2 records, got %d", len(all))
	}
	if all[0].Filename != "newer.png" {
		t.Fatalf("expect newest first, got %s", all[0].Filename)
	}
}

func TestRegistryDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := testFile("gone.png", "")
	if err := store.Create(ctx, file); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(ctx, file.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetByID(ctx, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound after delete, got %v", err)
	}
	if _, err := store.GetByFilename(ctx, "gone.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect filename index cleared, got %v", err)
	}
	if err := store.Delete(ctx, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound on second delete, got %v", err)
	}
}
