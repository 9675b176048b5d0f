package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	"github.com/corkcrm/michael-mail-2/internal/models"
)

// SyncHandler triggers Gmail syncs and reports the sync cursor.
type SyncHandler struct {
	store   db.Store
	service mailsync.MailService
	logger  *slog.Logger
}

// NewSyncHandler creates a new SyncHandler instance.
func NewSyncHandler(store db.Store, service mailsync.MailService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		store:   store,
		service: service,
		logger:  logger.With("handler", "sync"),
	}
}

// Sync runs one sync. {"full_sync": true} continues from the stored page
// token, otherwise the newest page is fetched.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	var req models.SyncRequest
	if err := decodeJSONBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.SyncEmails(ctx, userID, req.FullSync)
	if err != nil {
		h.logger.Warn("Sync failed", "user_id", userID, "error", err)
		WriteServiceError(w, err, h.logger)
		return
	}

	WriteJSONResponse(w, result, h.logger)
}

// GetSyncState returns the user's sync cursor, or null before the first sync.
func (h *SyncHandler) GetSyncState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	state, err := h.store.GetSyncState(ctx, userID)
	if errors.Is(err, db.ErrSyncStateNotFound) {
		WriteJSONResponse(w, nil, h.logger)
		return
	}
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	WriteJSONResponse(w, state, h.logger)
}
