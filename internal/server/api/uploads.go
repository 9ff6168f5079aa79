package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/chat"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

// maxUploadBody bounds a multipart request: the largest file plus form
// overhead.
const maxUploadBody = chat.MaxFileSize + 1<<20

type uploadResponse struct {
	ID            string           `json:"id"`
	MediaType     string           `json:"media_type"`
	OriginalName  string           `json:"original_filename"`
	SizeBytes     int64            `json:"size_bytes"`
	ClaudeSupport chat.FileSupport `json:"claude_support,omitempty"`
}

// readUpload returns the "file" form field.
func readUpload(w http.ResponseWriter, r *http.Request) (name, mediaType string, body []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return "", "", nil, common.NewValidationError("file", "Invalid multipart upload")
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, common.NewValidationError("file", "No file provided")
	}
	defer f.Close()
	body, err = io.ReadAll(f)
	if err != nil {
		return "", "", nil, fmt.Errorf("read upload: %w", err)
	}
	mediaType = hdr.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = http.DetectContentType(body)
	}
	return hdr.Filename, mediaType, body, nil
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	name, mediaType, body, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.deps.Conversations.UploadImage(r.Context(), r.PathValue("id"), name, mediaType, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID: a.ID, MediaType: a.MediaType, OriginalName: a.OriginalName, SizeBytes: a.SizeBytes,
	})
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	name, mediaType, body, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, support, err := s.deps.Conversations.UploadFile(r.Context(), r.PathValue("id"), name, mediaType, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID: a.ID, MediaType: a.MediaType, OriginalName: a.OriginalName, SizeBytes: a.SizeBytes,
		ClaudeSupport: support,
	})
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	s.serveAttachment(w, r, models.AttachmentImage)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	s.serveAttachment(w, r, models.AttachmentFile)
}

func (s *Server) serveAttachment(w http.ResponseWriter, r *http.Request, kind string) {
	a, body, err := s.deps.Conversations.Attachment(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", a.MediaType)
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	if kind == models.AttachmentFile && a.OriginalName != "" {
		h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.OriginalName))
	}
	_, _ = w.Write(body)
}
