package mailsync

import (
	"context"
	"errors"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/token"
)

// ConnectionCounter reports how many live connections a user has.
type ConnectionCounter interface {
	ActiveConnections(userID string) int
}

// StartPoller syncs the user's newest page now and then every poll interval.
// It returns when ctx is cancelled, when the user has no connections left,
// or when Gmail access has expired.
func (s *Service) StartPoller(ctx context.Context, userID string, conns ConnectionCounter) {
	logger := s.logger.With("user_id", userID)
	logger.Debug("Poller started", "interval", s.cfg.PollInterval)
	defer logger.Debug("Poller stopped")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if conns.ActiveConnections(userID) == 0 {
			return
		}

		if _, err := s.SyncEmails(ctx, userID, false); err != nil {
			if errors.Is(err, token.ErrAuthExpired) {
				logger.Info("Stopping poller, Gmail access expired")
				return
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Background sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
