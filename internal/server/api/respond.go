package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorString(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type okResponse struct {
	OK bool `json:"ok"`
}

// decodeJSON reads an optional JSON body into dest. An empty body leaves
// dest untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return common.NewValidationError("", "Invalid request body")
	}
	return nil
}

// errorResponse maps a service error to a status and a client-safe message.
func errorResponse(err error) (int, string) {
	var ve *common.ValidationError
	var ue *common.UpstreamError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Msg
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, common.ErrAlreadyArchived),
		errors.Is(err, common.ErrNotArchived),
		errors.Is(err, common.ErrArchiveInProgress):
		return http.StatusConflict, err.Error()
	case errors.As(err, &ue):
		return ue.Status, fmt.Sprintf("Upstream error %d: %s", ue.Status, ue.Body)
	case errors.Is(err, services.ErrSpeechDisabled):
		return http.StatusServiceUnavailable, "Text to speech is not configured"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes err as a JSON error. Unexpected errors are logged with their
// detail and reported as a bare internal error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeErrorString(w, status, msg)
}
