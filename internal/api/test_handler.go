package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/gmail/gmailfake"
	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	gmailapi "google.golang.org/api/gmail/v1"
)

// MessageSeeder accepts messages into a fake Gmail mailbox.
type MessageSeeder interface {
	AddMessage(msg *gmailapi.Message)
}

// TestHandler provides test-only endpoints used by E2E tests.
// These endpoints are only registered in test environments.
type TestHandler struct {
	store   db.Store
	service mailsync.MailService
	seeder  MessageSeeder
	logger  *slog.Logger
	now     func() time.Time
}

// NewTestHandler creates a new TestHandler instance.
func NewTestHandler(store db.Store, service mailsync.MailService, seeder MessageSeeder, logger *slog.Logger) *TestHandler {
	return &TestHandler{
		store:   store,
		service: service,
		seeder:  seeder,
		logger:  logger.With("handler", "test"),
		now:     time.Now,
	}
}

type addMessageRequest struct {
	ThreadID string `json:"thread_id"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	To       string `json:"to"`
	Body     string `json:"body"`
	Unread   bool   `json:"unread"`
}

// AddMessage puts a new message into the fake mailbox and syncs, which
// simulates new incoming mail.
func (h *TestHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Subject) == "" || req.From == "" || req.To == "" {
		http.Error(w, "subject, from, and to are required", http.StatusBadRequest)
		return
	}

	now := h.now()
	labels := []string{"INBOX"}
	if req.Unread {
		labels = append(labels, "UNREAD")
	}
	body := req.Body
	if body == "" {
		body = "E2E test message."
	}

	seed := gmailfake.MessageSpec{
		ID:        fmt.Sprintf("e2e-%d", now.UnixNano()),
		ThreadID:  req.ThreadID,
		From:      req.From,
		To:        req.To,
		Subject:   req.Subject,
		Text:      body,
		Date:      now,
		Labels:    labels,
		HistoryID: uint64(now.UnixMilli()),
	}
	h.seeder.AddMessage(seed.Build())

	result, err := h.service.SyncEmails(ctx, userID, false)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	WriteJSONResponse(w, result, h.logger)
}
