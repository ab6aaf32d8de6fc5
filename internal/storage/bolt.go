package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gridpix/gridpix/internal/models"
	bolt "go.etcd.io/bbolt"
)

var (
	chunksBucket    = []byte("chunks")
	filesBucket     = []byte("files")
	filenamesBucket = []byte("filenames")
)

// BoltStore is an embedded chunk store and metadata registry backed by a
// single bbolt file. It serves both interfaces so the service can run with
// no external storage, and gives tests an isolated store per run.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the store at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{chunksBucket, filesBucket, filenamesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

// Chunk keys sort lexically in sequence order under the file's prefix.
func boltChunkKey(fileID string, sequence int) []byte {
	return []byte(fmt.Sprintf("%s/%08d", fileID, sequence))
}

func boltChunkPrefix(fileID string) []byte {
	return []byte(fileID + "/")
}

// PutChunk writes one chunk payload
func (bs *BoltStore) PutChunk(ctx context.Context, fileID string, sequence int, payload []byte) error {
	err := bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).Put(boltChunkKey(fileID, sequence), payload)
	})
	if err != nil {
		return &WriteError{Op: "bolt.put_chunk", Err: err}
	}
	return nil
}

// GetChunk reads one chunk payload
func (bs *BoltStore) GetChunk(ctx context.Context, fileID string, sequence int) ([]byte, error) {
	var payload []byte
	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(chunksBucket).Get(boltChunkKey(fileID, sequence))
		if data == nil {
			return ErrNotFound
		}
		payload = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// DeleteFile removes all chunks for fileID; no error when none exist
func (bs *BoltStore) DeleteFile(ctx context.Context, fileID string) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		c := b.Cursor()
		prefix := boltChunkPrefix(fileID)

		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// IterateChunks returns a fresh ordered iterator over the file's chunks
func (bs *BoltStore) IterateChunks(ctx context.Context, fileID string) (ChunkIterator, error) {
	count := 0
	err := bs.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(chunksBucket).Cursor()
		prefix := boltChunkPrefix(fileID)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return &boltChunkIterator{store: bs, fileID: fileID, count: count}, nil
}

// boltChunkIterator reads one chunk per Next call in its own view
// transaction, so the consumer paces reads and long streams never pin a
// read transaction open.
type boltChunkIterator struct {
	store  *BoltStore
	fileID string
	next   int
	count  int
}

func (it *boltChunkIterator) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
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

func (it *boltChunkIterator) Close() error {
	return nil
}

// Create persists a new file record
func (bs *BoltStore) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}

	return bs.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(filenamesBucket)
		if names.Get([]byte(file.Filename)) != nil {
			return ErrDuplicateFilename
		}

		encoded, err := json.Marshal(file)
		if err != nil {
			return err
		}
		if err := tx.Bucket(filesBucket).Put([]byte(file.ID), encoded); err != nil {
			return &WriteError{Op: "bolt.create_file", Err: err}
		}
		return names.Put([]byte(file.Filename), []byte(file.ID))
	})
}

// GetByID returns the record for id
func (bs *BoltStore) GetByID(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(filesBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &file)
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// GetByFilename returns the record for filename
func (bs *BoltStore) GetByFilename(ctx context.Context, filename string) (*models.File, error) {
	var file models.File
	err := bs.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(filenamesBucket).Get([]byte(filename))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(filesBucket).Get(id)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &file)
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// ListAll returns all records, newest first
func (bs *BoltStore) ListAll(ctx context.Context) ([]*models.File, error) {
	return bs.scanFiles(func(*models.File) bool { return true })
}

// FindByTag returns records whose tag string contains tag
func (bs *BoltStore) FindByTag(ctx context.Context, tag string) ([]*models.File, error) {
	return bs.scanFiles(func(f *models.File) bool { return strings.Contains(f.Metadata.Tags, tag) })
}

func (bs *BoltStore) scanFiles(match func(*models.File) bool) ([]*models.File, error) {
	var files []*models.File
	err := bs.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(_, data []byte) error {
			var file models.File
			if err := json.Unmarshal(data, &file); err != nil {
				return err
			}
			if match(&file) {
				files = append(files, &file)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].UploadedAt.After(files[j].UploadedAt)
		}
		return files[i].ID < files[j].ID
	})
	return files, nil
}

// Delete removes the record for id
func (bs *BoltStore) Delete(ctx context.Context, id string) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var file models.File
		if err := json.Unmarshal(data, &file); err != nil {
			return err
		}
		if err := tx.Bucket(filenamesBucket).Delete([]byte(file.Filename)); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}
