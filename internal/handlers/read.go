package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gridpix/gridpix/internal/files"
	"github.com/gridpix/gridpix/internal/models"
	"github.com/gridpix/gridpix/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// fileView is a record plus the derived is_image flag the listing API
// exposes.
type fileView struct {
	*models.File
	IsImage bool `json:"is_image"`
}

func newListing(records []*models.File) []fileView {
	views := make([]fileView, 0, len(records))
	for _, f := range records {
		views = append(views, fileView{File: f, IsImage: f.IsImage()})
	}
	return views
}

// ListHandler serves the full file listing
type ListHandler struct {
	store *files.Store
}

// NewListHandler creates a new list handler
func NewListHandler(store *files.Store) *ListHandler {
	return &ListHandler{store: store}
}

// ServeHTTP handles GET /api/files
func (lh *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_files",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	records, err := lh.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	span.SetAttributes(attribute.Int("file_count", len(records)))

	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "No files exist")
		return
	}
	writeJSON(w, http.StatusOK, newListing(records))
}

// SearchHandler serves the tag-filtered listing
type SearchHandler struct {
	store *files.Store
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(store *files.Store) *SearchHandler {
	return &SearchHandler{store: store}
}

// ServeHTTP handles GET /api/search?tag=X
func (sh *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "search_files",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "missing 'tag' query parameter")
		return
	}
	span.SetAttributes(attribute.String("tag", tag))

	records, err := sh.store.Search(ctx, tag)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "No files exist")
		return
	}
	writeJSON(w, http.StatusOK, newListing(records))
}

// InfoHandler serves a single file record
type InfoHandler struct {
	store *files.Store
}

// NewInfoHandler creates a new info handler
func NewInfoHandler(store *files.Store) *InfoHandler {
	return &InfoHandler{store: store}
}

// ServeHTTP handles GET /api/files/{filename}
func (ih *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "file_info",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	filename := mux.Vars(r)["filename"]
	span.SetAttributes(attribute.String("filename", filename))

	file, err := ih.store.Resolve(ctx, filename)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No file exists")
		return
	}
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve file")
		return
	}

	writeJSON(w, http.StatusOK, fileView{File: file, IsImage: file.IsImage()})
}

// ImageHandler streams image content chunk by chunk
type ImageHandler struct {
	store *files.Store
}

// NewImageHandler creates a new image handler
func NewImageHandler(store *files.Store) *ImageHandler {
	return &ImageHandler{store: store}
}

// ServeHTTP handles GET /image/{filename}. Chunks are written to the
// response as they are pulled from the store; the whole file is never held
// in memory, and a disconnected client stops the iteration.
func (ih *ImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "stream_image",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	filename := mux.Vars(r)["filename"]
	span.SetAttributes(attribute.String("filename", filename))

	file, err := ih.store.Resolve(ctx, filename)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No file exists")
		return
	}
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve file")
		return
	}

	iter, err := ih.store.Stream(ctx, file)
	if errors.Is(err, files.ErrUnsupportedMedia) {
		writeError(w, http.StatusNotFound, "Not an image")
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		// record without chunks, e.g. a delete racing this read
		writeError(w, http.StatusNotFound, "No file exists")
		return
	}
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to open stream")
		return
	}
	defer iter.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for {
		payload, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			// headers are gone; all we can do is stop
			span.RecordError(err)
			log.Printf("Stream of %s aborted: %v", file.Filename, err)
			return
		}
		if _, err := w.Write(payload); err != nil {
			log.Printf("Client disconnected while streaming %s: %v", file.Filename, err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"err": msg})
}
