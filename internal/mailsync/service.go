// Package mailsync synchronizes Gmail with the local store.
package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/auth"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/corkcrm/michael-mail-2/internal/outbound"
	"github.com/corkcrm/michael-mail-2/internal/thread"
	"github.com/corkcrm/michael-mail-2/internal/token"
	"github.com/corkcrm/michael-mail-2/internal/transform"
	"github.com/corkcrm/michael-mail-2/internal/websocket"
	"golang.org/x/sync/errgroup"
)

// SyncResult reports one sync run. Error carries soft failures that leave
// the local store untouched.
type SyncResult struct {
	Synced  int    `json:"synced"`
	HasMore bool   `json:"has_more"`
	Error   string `json:"error,omitempty"`
}

// SyncFailedError is a non-auth Gmail failure while listing messages.
type SyncFailedError struct {
	Code   int
	Status string
}

func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("gmail sync failed: %s", e.Status)
}

// Tokens provides Gmail access tokens for a user.
type Tokens interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
	Do(ctx context.Context, userID string, fn func(accessToken string) error) error
}

// Outbound queues label changes for Gmail.
type Outbound interface {
	Enqueue(job outbound.Job) bool
}

// Config tunes the sync engine.
type Config struct {
	PageSize         int64
	FetchConcurrency int
	PollInterval     time.Duration
}

// Service runs syncs, flag changes and sends for all users.
type Service struct {
	cfg      Config
	store    db.Store
	api      gmail.API
	tokens   Tokens
	outbound Outbound
	events   websocket.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new mail sync service.
func NewService(cfg Config, store db.Store, api gmail.API, tokens Tokens, out Outbound, events websocket.Publisher, logger *slog.Logger) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Minute
	}

	return &Service{
		cfg:      cfg,
		store:    store,
		api:      api,
		tokens:   tokens,
		outbound: out,
		events:   events,
		logger:   logger.With("component", "mailsync"),
		now:      time.Now,
	}
}

// SyncEmails lists one page of messages, fetches each in full and upserts
// emails, attachments, threads and the sync cursor. Re-running it is safe.
func (s *Service) SyncEmails(ctx context.Context, userID string, continuePaging bool) (*SyncResult, error) {
	if userID == "" {
		return nil, auth.ErrNotAuthenticated
	}

	if _, err := s.tokens.GetValidAccessToken(ctx, userID); err != nil {
		s.logger.Warn("No usable access token", "user_id", userID, "error", err)
		return &SyncResult{Error: err.Error()}, nil
	}

	state, err := s.store.GetSyncState(ctx, userID)
	if err != nil && !errors.Is(err, db.ErrSyncStateNotFound) {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	pageToken := ""
	if continuePaging && state != nil && state.NextPageToken != nil {
		pageToken = *state.NextPageToken
	}

	var list *gmail.ListResult
	err = s.tokens.Do(ctx, userID, func(accessToken string) error {
		var err error
		list, err = s.api.ListMessages(ctx, accessToken, s.cfg.PageSize, pageToken)
		return err
	})
	if err != nil {
		return s.listFailure(userID, err)
	}

	messages := s.fetchMessages(ctx, userID, list.Messages)

	now := s.now()
	agg := thread.NewAggregator(userID)
	var maxHistoryID uint64
	synced := 0

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		email, attachments := transform.NormalizeMessage(msg, userID, now)
		if err := s.store.UpsertEmail(ctx, email); err != nil {
			return nil, fmt.Errorf("failed to upsert email %s: %w", msg.ID, err)
		}
		s.saveAttachments(ctx, email, attachments)

		agg.Add(email)
		synced++
		if msg.HistoryID > maxHistoryID {
			maxHistoryID = msg.HistoryID
		}
	}

	for _, gmailThreadID := range agg.ThreadIDs() {
		stored, err := s.store.GetEmailsByThread(ctx, userID, gmailThreadID)
		if err != nil {
			s.logger.Warn("Failed to load thread members", "user_id", userID, "thread_id", gmailThreadID, "error", err)
			continue
		}
		if err := s.store.UpsertThread(ctx, agg.Build(gmailThreadID, stored)); err != nil {
			s.logger.Warn("Failed to upsert thread", "user_id", userID, "thread_id", gmailThreadID, "error", err)
		}
	}

	hasMore := list.NextPageToken != ""
	newState := &models.SyncState{
		UserID:       userID,
		LastSyncTime: now.UnixMilli(),
		SyncStatus:   models.SyncStatusComplete,
	}
	if state != nil {
		newState.LastHistoryID = state.LastHistoryID
	}
	if maxHistoryID > 0 {
		newState.LastHistoryID = strconv.FormatUint(maxHistoryID, 10)
	}
	if hasMore {
		next := list.NextPageToken
		newState.NextPageToken = &next
		newState.SyncStatus = models.SyncStatusPartial
	}
	if err := s.store.SaveSyncState(ctx, newState); err != nil {
		return nil, fmt.Errorf("failed to save sync state: %w", err)
	}

	s.logger.Info("Synced emails",
		"user_id", userID,
		"listed", len(list.Messages),
		"synced", synced,
		"has_more", hasMore,
		"continue_paging", continuePaging,
	)

	if s.events != nil {
		s.events.Publish(userID, websocket.Event{
			Type: websocket.EventSyncComplete,
			Data: websocket.SyncCompleteData{Synced: synced, HasMore: hasMore},
		})
	}

	return &SyncResult{Synced: synced, HasMore: hasMore}, nil
}

// listFailure maps a failed list call. Auth and provider errors are returned,
// transport failures and timeouts become a soft result.
func (s *Service) listFailure(userID string, err error) (*SyncResult, error) {
	if errors.Is(err, token.ErrAuthExpired) {
		return nil, err
	}

	var statusErr *gmail.StatusError
	if errors.As(err, &statusErr) {
		s.logger.Warn("Gmail rejected list request", "user_id", userID, "code", statusErr.Code, "error", err)
		return nil, &SyncFailedError{Code: statusErr.Code, Status: statusErr.Status}
	}

	s.logger.Warn("Failed to list messages", "user_id", userID, "error", err)
	return &SyncResult{Error: err.Error()}, nil
}

// fetchMessages gets every listed message in parallel. The result keeps the
// list order; failed fetches are logged and left nil.
func (s *Service) fetchMessages(ctx context.Context, userID string, refs []gmail.MessageRef) []*gmail.Message {
	messages := make([]*gmail.Message, len(refs))

	var g errgroup.Group
	g.SetLimit(s.cfg.FetchConcurrency)

	for i, ref := range refs {
		g.Go(func() error {
			err := s.tokens.Do(ctx, userID, func(accessToken string) error {
				msg, err := s.api.GetMessage(ctx, accessToken, ref.ID)
				if err != nil {
					return err
				}
				messages[i] = msg
				return nil
			})
			if err != nil {
				s.logger.Warn("Failed to fetch message, skipping", "user_id", userID, "gmail_id", ref.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return messages
}

func (s *Service) saveAttachments(ctx context.Context, email *models.Email, attachments []*models.Attachment) {
	for _, att := range attachments {
		att.EmailID = email.ID
		if err := s.store.UpsertAttachment(ctx, att); err != nil {
			s.logger.Warn("Failed to upsert attachment",
				"user_id", email.UserID,
				"gmail_id", email.GmailID,
				"part_id", att.PartID,
				"error", err,
			)
		}
	}
}

// refreshThread recomputes a thread from all of its stored members.
func (s *Service) refreshThread(ctx context.Context, userID, gmailThreadID string) {
	members, err := s.store.GetEmailsByThread(ctx, userID, gmailThreadID)
	if err != nil {
		s.logger.Warn("Failed to load thread members", "user_id", userID, "thread_id", gmailThreadID, "error", err)
		return
	}
	if len(members) == 0 {
		return
	}

	t := thread.Compute(members)
	t.UserID = userID
	t.GmailThreadID = gmailThreadID
	if err := s.store.UpsertThread(ctx, t); err != nil {
		s.logger.Warn("Failed to upsert thread", "user_id", userID, "thread_id", gmailThreadID, "error", err)
	}
}
