package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/corkcrm/michael-mail-2/internal/transform"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// EmailsHandler serves email listings, single emails and flag changes.
type EmailsHandler struct {
	store   db.Store
	service mailsync.MailService
	logger  *slog.Logger
	now     func() time.Time
}

// NewEmailsHandler creates a new EmailsHandler instance.
func NewEmailsHandler(store db.Store, service mailsync.MailService, logger *slog.Logger) *EmailsHandler {
	return &EmailsHandler{
		store:   store,
		service: service,
		logger:  logger.With("handler", "emails"),
		now:     time.Now,
	}
}

// ListEmails returns one page of a view, newest first.
func (h *EmailsHandler) ListEmails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	view, ok := models.ParseView(r.URL.Query().Get("view"))
	if !ok {
		http.Error(w, "unknown view", http.StatusBadRequest)
		return
	}

	page, limit := ParsePaginationParams(r, defaultPageSize, maxPageSize)
	offset := (page - 1) * limit

	emails, total, err := h.store.ListEmails(ctx, userID, view, limit, offset)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	h.stampTimes(emails)
	WriteJSONResponse(w, models.NewEmailPage(emails, total, page, limit), h.logger)
}

// GetEmail returns one email with its attachment metadata.
func (h *EmailsHandler) GetEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	email, err := h.store.GetEmailByID(ctx, userID, r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	attachments, err := h.store.GetAttachmentsForEmail(ctx, email.ID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	email.Attachments = attachments

	h.stampTimes([]*models.Email{email})
	WriteJSONResponse(w, email, h.logger)
}

// MarkRead sets the read flag. Gmail is updated in the background.
func (h *EmailsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	var req models.ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	email, err := h.service.MarkAsRead(ctx, userID, r.PathValue("id"), req.IsRead)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	WriteJSONResponse(w, email, h.logger)
}

// Star sets the starred flag. Gmail is updated in the background.
func (h *EmailsHandler) Star(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	var req models.StarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	email, err := h.service.ToggleStar(ctx, userID, r.PathValue("id"), req.IsStarred)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	WriteJSONResponse(w, email, h.logger)
}

// DownloadAttachment serves the bytes of one attachment.
func (h *EmailsHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	data, err := h.service.DownloadAttachment(ctx, userID, r.PathValue("id"), r.PathValue("attachmentID"))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write attachment", "error", err)
	}
}

func (h *EmailsHandler) stampTimes(emails []*models.Email) {
	now := h.now()
	for _, e := range emails {
		e.Time = transform.FormatRelativeTime(time.UnixMilli(e.InternalDate), now)
	}
}
