package chunker

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

func TestChunkBoundaries(t *testing.T) {
	const chunkSize = 256 * 1024
	data := make([]byte, 600*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}

	cr := NewChunkReader(bytes.NewReader(data), chunkSize)

	wantSizes := []int{256 * 1024, 256 * 1024, 88 * 1024}
	var reassembled []byte
	for i, want := range wantSizes {
		payload, sequence, err := cr.Next()
		if err != nil {
			t.Fatalf("Next() chunk %d failed: %v", i, err)
		}
		if sequence != i {
			t.Fatalf("chunk %d: expect sequence %d, got %d", i, i, sequence)
		}
		if len(payload) != want {
			t.Fatalf("chunk %d: expect %d bytes, got %d", i, want, len(payload))
		}
		reassembled = append(reassembled, payload...)
	}

	if _, _, err := cr.Next(); err != io.EOF {
		t.Fatalf("expect io.EOF after last chunk, got %v", err)
	}
	if !bytes.Equal(reassembled, data) {
		t.Fatal("reassembled chunks do not match original data")
	}
}

func TestEmptyStream(t *testing.T) {
	cr := NewChunkReader(bytes.NewReader(nil), 1024)
	if _, _, err := cr.Next(); err != io.EOF {
		t.Fatalf("expect io.EOF for empty stream, got %v", err)
	}
	// EOF must be sticky
	if _, _, err := cr.Next(); err != io.EOF {
		t.Fatalf("expect io.EOF on repeated Next, got %v", err)
	}
}

func TestExactMultipleOfChunkSize(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 2048)
	cr := NewChunkReader(bytes.NewReader(data), 1024)

	for i := 0; i < 2; i++ {
		payload, _, err := cr.Next()
		if err != nil {
			t.Fatalf("Next() chunk %d failed: %v", i, err)
		}
		if len(payload) != 1024 {
			t.Fatalf("chunk %d: expect 1024 bytes, got %d", i, len(payload))
		}
	}
	if _, _, err := cr.Next(); err != io.EOF {
		t.Fatalf("expect io.EOF, got %v", err)
	}
}

func TestShortReads(t *testing.T) {
	data := bytes.Repeat([]byte{3}, 3000)
	cr := NewChunkReader(iotest.OneByteReader(bytes.NewReader(data)), 1024)

	var total int
	for {
		payload, _, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		total += len(payload)
	}
	if total != 3000 {
		t.Fatalf("expect 3000 bytes total, got %d", total)
	}
}
