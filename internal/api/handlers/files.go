package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quietwire/quietwire/pkg/blob"
)

// maxBlobBytes caps one uploaded attachment.
const maxBlobBytes = 10 << 20

// FileHandler is the thin edge over the blob-store collaborator. Uploaded
// bytes are client-side encrypted; the server only moves them.
type FileHandler struct {
	blobs blob.Store
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(blobs blob.Store) *FileHandler {
	return &FileHandler{blobs: blobs}
}

// UploadResponse is the response body for POST /api/files.
type UploadResponse struct {
	FileReference string `json:"file_reference"`
}

// Upload handles POST /api/files. The body is stored verbatim under a
// fresh reference the client can embed in a message.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ref := uuid.New().String()

	body := http.MaxBytesReader(w, r.Body, maxBlobBytes)
	defer body.Close()

	contentType := r.Header.Get("Content-Type")
	if err := h.blobs.Put(r.Context(), ref, body, r.ContentLength, contentType); err != nil {
		InternalError(w, "Failed to store file")
		return
	}

	WriteCreated(w, UploadResponse{FileReference: ref})
}

// Download handles GET /api/files/{ref}.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if _, err := uuid.Parse(ref); err != nil {
		BadRequest(w, "Invalid file reference")
		return
	}

	reader, contentType, err := h.blobs.Get(r.Context(), ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			NotFound(w, "File not found")
			return
		}
		InternalError(w, "Failed to fetch file")
		return
	}
	defer reader.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// Delete handles DELETE /api/files/{ref}.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if _, err := uuid.Parse(ref); err != nil {
		BadRequest(w, "Invalid file reference")
		return
	}

	if err := h.blobs.Delete(r.Context(), ref); err != nil {
		InternalError(w, "Failed to delete file")
		return
	}

	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "File deleted"})
}
