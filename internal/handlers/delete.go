package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gridpix/gridpix/internal/files"
	"github.com/gridpix/gridpix/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DeleteHandler handles file delete requests
type DeleteHandler struct {
	store *files.Store
}

// NewDeleteHandler creates a new delete handler
func NewDeleteHandler(store *files.Store) *DeleteHandler {
	return &DeleteHandler{store: store}
}

// ServeHTTP handles DELETE /files/{file_id}. The caller is already
// authenticated by the layer in front of us.
func (dh *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "delete_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	span.SetAttributes(attribute.String("file_id", fileID))

	err := dh.store.Delete(ctx, fileID)

	var pf *files.PartialFailureError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "No file exists")
	case errors.As(err, &pf):
		span.RecordError(err)
		log.Printf("Partial delete of %s: %v", fileID, pf.Err)
		writeError(w, http.StatusInternalServerError, "delete incomplete, retry scheduled")
	case err != nil:
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "delete failed")
	default:
		log.Printf("File deleted: %s", fileID)
		w.WriteHeader(http.StatusNoContent)
	}
}
