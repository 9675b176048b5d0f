package mailsync

import (
	"context"
	"fmt"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/corkcrm/michael-mail-2/internal/outbound"
	"github.com/corkcrm/michael-mail-2/internal/websocket"
)

// MarkAsRead writes the read flag locally, recomputes the thread read state
// and queues the UNREAD label change. The Gmail update is never awaited.
func (s *Service) MarkAsRead(ctx context.Context, userID, emailID string, isRead bool) (*models.Email, error) {
	email, err := s.store.SetEmailRead(ctx, userID, emailID, isRead)
	if err != nil {
		return nil, fmt.Errorf("failed to set read flag: %w", err)
	}

	s.refreshThread(ctx, userID, email.GmailThreadID)
	s.publishUpdate(email)
	s.enqueue(outbound.ReadJob(userID, email.GmailID, isRead))

	return email, nil
}

// ToggleStar writes the starred flag locally and queues the STARRED label
// change.
func (s *Service) ToggleStar(ctx context.Context, userID, emailID string, isStarred bool) (*models.Email, error) {
	email, err := s.store.SetEmailStarred(ctx, userID, emailID, isStarred)
	if err != nil {
		return nil, fmt.Errorf("failed to set starred flag: %w", err)
	}

	s.publishUpdate(email)
	s.enqueue(outbound.StarJob(userID, email.GmailID, isStarred))

	return email, nil
}

func (s *Service) enqueue(job outbound.Job) {
	if s.outbound == nil {
		return
	}
	if !s.outbound.Enqueue(job) {
		s.logger.Warn("Gmail label update not queued", "user_id", job.UserID, "gmail_id", job.GmailID)
	}
}

func (s *Service) publishUpdate(email *models.Email) {
	if s.events == nil {
		return
	}
	s.events.Publish(email.UserID, websocket.Event{
		Type: websocket.EventEmailUpdated,
		Data: websocket.EmailUpdatedData{
			EmailID:       email.ID,
			GmailThreadID: email.GmailThreadID,
			IsRead:        email.IsRead,
			IsStarred:     email.IsStarred,
		},
	})
}
