package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/corkcrm/michael-mail-2/internal/auth"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	"github.com/corkcrm/michael-mail-2/internal/token"
)

// Messages shown to the user for auth failures.
const (
	msgSignIn       = "Please sign in"
	msgGmailExpired = "Gmail access expired. Please sign in again."
)

// GetUserIDFromContext extracts the user's email from context, resolves/creates the DB user,
// and writes appropriate HTTP errors when it fails. Returns (userID, true) on success.
func GetUserIDFromContext(ctx context.Context, w http.ResponseWriter, store db.Store, logger *slog.Logger) (string, bool) {
	email, ok := auth.GetUserEmailFromContext(ctx)
	if !ok {
		logger.Debug("No user email in context")
		http.Error(w, msgSignIn, http.StatusUnauthorized)
		return "", false
	}

	userID, err := store.GetOrCreateUser(ctx, email)
	if err != nil {
		logger.Error("Failed to get/create user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return "", false
	}

	return userID, true
}

// ParsePaginationParams parses page and limit from query parameters.
// Returns default values (page=1, limit=defaultLimit) if parameters are missing or invalid.
// Limits above maxLimit are clamped.
func ParsePaginationParams(r *http.Request, defaultLimit, maxLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}

	return page, limit
}

// WriteJSONResponse encodes v into a buffer first so a failed encode never
// leaves a partial body. Returns false if the response could not be written.
func WriteJSONResponse(w http.ResponseWriter, v any, logger *slog.Logger) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("Failed to write response", "error", err)
		return false
	}
	return true
}

// decodeJSONBody decodes an optional JSON body into dst. An empty body
// leaves dst untouched.
func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// WriteServiceError maps service errors to HTTP responses.
func WriteServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var syncErr *mailsync.SyncFailedError

	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		http.Error(w, msgSignIn, http.StatusUnauthorized)
	case errors.Is(err, token.ErrAuthExpired):
		http.Error(w, msgGmailExpired, http.StatusUnauthorized)
	case errors.As(err, &syncErr):
		http.Error(w, syncErr.Status, http.StatusBadGateway)
	case errors.Is(err, db.ErrEmailNotFound):
		http.Error(w, "Email not found", http.StatusNotFound)
	case errors.Is(err, db.ErrThreadNotFound):
		http.Error(w, "Thread not found", http.StatusNotFound)
	case errors.Is(err, mailsync.ErrAttachmentNotFound):
		http.Error(w, "Attachment not found", http.StatusNotFound)
	case errors.Is(err, mailsync.ErrAttachmentDownloadUnsupported):
		http.Error(w, "Attachment download is not supported", http.StatusNotImplemented)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Request timed out", http.StatusGatewayTimeout)
	default:
		logger.Error("Request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
