package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gridpix/gridpix/internal/files"
	"github.com/gridpix/gridpix/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("gridpix-handlers")

// maxFieldBytes bounds metadata form fields; file content is unbounded and
// streamed.
const maxFieldBytes = 8 << 10

// UploadHandler handles file upload requests
type UploadHandler struct {
	store *files.Store
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(store *files.Store) *UploadHandler {
	return &UploadHandler{store: store}
}

// UploadResponse represents the response for an upload
type UploadResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	ChunkCount  int    `json:"chunk_count"`
	Message     string `json:"message"`
}

// ServeHTTP handles POST /upload. The multipart form carries tag and
// description fields followed by the file part; the authenticated username
// arrives in the X-Username header from the auth layer in front of us.
// Metadata fields must precede the file part, since the file is streamed
// to storage as it is read.
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	author := r.Header.Get("X-Username")
	if author == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	span.SetAttributes(attribute.String("author", author))

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}

	meta := models.Metadata{Author: author}
	var file *models.File

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			span.RecordError(err)
			writeError(w, http.StatusBadRequest, "malformed multipart form")
			return
		}

		switch part.FormName() {
		case "tag":
			meta.Tags, err = readField(part)
		case "description":
			meta.Description, err = readField(part)
		case "file":
			if file != nil {
				err = fmt.Errorf("duplicate file part")
				break
			}
			contentType := part.Header.Get("Content-Type")
			log.Printf("Uploading file %q (%s) for %s", part.FileName(), contentType, author)
			file, err = uh.store.Upload(ctx, part, part.FileName(), contentType, meta)
		}
		part.Close()

		if err != nil {
			span.RecordError(err)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("upload failed: %v", err))
			return
		}
	}

	if file == nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}

	span.SetAttributes(
		attribute.String("file_id", file.ID),
		attribute.Int64("file_size", file.SizeBytes),
		attribute.Int("chunk_count", file.ChunkCount),
	)
	log.Printf("File upload completed: %s (ID: %s, %d chunks)", file.Filename, file.ID, file.ChunkCount)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(UploadResponse{
		ID:          file.ID,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		SizeBytes:   file.SizeBytes,
		ChunkCount:  file.ChunkCount,
		Message:     "File uploaded successfully",
	})
}

func readField(part io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
