package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/vdavid/cqmail/internal/auth"
	"github.com/vdavid/cqmail/internal/mailbox"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/threading"
)

// maxBodyBytes bounds request bodies; attachments arrive base64-encoded inline.
const maxBodyBytes = 25 << 20

// identityFromRequest returns the authenticated caller, writing 401 when the
// request did not pass through RequireAuth.
func identityFromRequest(w http.ResponseWriter, r *http.Request, component string) (models.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		log.Printf("%s: No identity in context", component)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return models.Identity{}, false
	}
	return identity, true
}

// messageIDFromPath returns the {messageId} path value. The mux matches on the
// escaped path and unescapes wildcards, so ids containing "/" arrive intact when
// the client escapes them.
func messageIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	messageID := strings.TrimSpace(r.PathValue("messageId"))
	if messageID == "" {
		http.Error(w, "message id is required", http.StatusBadRequest)
		return "", false
	}
	return messageID, true
}

// decodeJSONBody decodes the request body into v, writing 400 on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// WriteJSONResponse encodes v into a buffer first so an encoding failure never
// leaves a partial body. Returns false if the response could not be written.
// Angle brackets in message IDs and addresses are written as-is.
func WriteJSONResponse(w http.ResponseWriter, v any) bool {
	return writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) bool {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
		return false
	}
	return true
}

// writeServiceError maps service and threading sentinels to HTTP statuses.
// Anything unrecognized becomes a generic 500; details stay in the log.
func writeServiceError(w http.ResponseWriter, component string, err error) {
	switch {
	case errors.Is(err, mailbox.ErrMessageNotFound), errors.Is(err, threading.ErrNotFoundOrDenied):
		http.Error(w, "Message not found", http.StatusNotFound)
	case errors.Is(err, mailbox.ErrInvalidRequest):
		http.Error(w, "Invalid request", http.StatusBadRequest)
	default:
		log.Printf("%s: %v", component, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
