package api

import (
	"log/slog"
	"net/http"

	"github.com/corkcrm/michael-mail-2/internal/db"
)

// ThreadHandler serves one conversation with its messages.
type ThreadHandler struct {
	store  db.Store
	logger *slog.Logger
}

// NewThreadHandler creates a new ThreadHandler instance.
func NewThreadHandler(store db.Store, logger *slog.Logger) *ThreadHandler {
	return &ThreadHandler{store: store, logger: logger.With("handler", "thread")}
}

// GetThread returns the thread aggregate and its emails, oldest first.
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	gmailThreadID := r.PathValue("threadID")
	if gmailThreadID == "" {
		http.Error(w, "thread_id is required", http.StatusBadRequest)
		return
	}

	thread, err := h.store.GetThread(ctx, userID, gmailThreadID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	emails, err := h.store.GetEmailsByThread(ctx, userID, gmailThreadID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	for _, email := range emails {
		if !email.HasAttachments {
			continue
		}
		attachments, err := h.store.GetAttachmentsForEmail(ctx, email.ID)
		if err != nil {
			h.logger.Warn("Failed to load attachments", "email_id", email.ID, "error", err)
			continue
		}
		email.Attachments = attachments
	}
	thread.Emails = emails

	WriteJSONResponse(w, thread, h.logger)
}
