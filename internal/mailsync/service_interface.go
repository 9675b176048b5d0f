package mailsync

import (
	"context"

	"github.com/corkcrm/michael-mail-2/internal/models"
)

// MailService defines the sync, flag and send operations the API uses.
// This interface allows handlers to be tested with mock implementations.
type MailService interface {
	// SyncEmails fetches one page of messages from Gmail into the local store.
	// continuePaging resumes from the stored page token instead of the newest page.
	SyncEmails(ctx context.Context, userID string, continuePaging bool) (*SyncResult, error)

	// MarkAsRead sets the read flag locally and queues the Gmail update.
	MarkAsRead(ctx context.Context, userID, emailID string, isRead bool) (*models.Email, error)

	// ToggleStar sets the starred flag locally and queues the Gmail update.
	ToggleStar(ctx context.Context, userID, emailID string, isStarred bool) (*models.Email, error)

	// SendEmail sends a new message. Failures are reported in the result.
	SendEmail(ctx context.Context, userID string, req models.SendRequest) *SendResult

	// DownloadAttachment returns the bytes of one attachment of an email.
	DownloadAttachment(ctx context.Context, userID, emailID, attachmentID string) ([]byte, error)

	// StartPoller syncs immediately and then on every poll interval while the
	// user has open connections. It blocks until ctx is cancelled.
	StartPoller(ctx context.Context, userID string, conns ConnectionCounter)
}

// Ensure Service implements MailService interface
var _ MailService = (*Service)(nil)
