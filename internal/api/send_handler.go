package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	"github.com/corkcrm/michael-mail-2/internal/models"
)

// SendHandler sends new messages.
type SendHandler struct {
	store   db.Store
	service mailsync.MailService
	logger  *slog.Logger
}

// NewSendHandler creates a new SendHandler instance.
func NewSendHandler(store db.Store, service mailsync.MailService, logger *slog.Logger) *SendHandler {
	return &SendHandler{store: store, service: service, logger: logger.With("handler", "send")}
}

// Send always answers 200 with {success, message_id, error}.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	WriteJSONResponse(w, h.service.SendEmail(ctx, userID, req), h.logger)
}
