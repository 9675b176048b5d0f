package mailsync

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAttachmentDownloadUnsupported is returned for every attachment
	// download. Only attachment metadata is synced.
	ErrAttachmentDownloadUnsupported = errors.New("attachment download is not supported")
	// ErrAttachmentNotFound means the email has no attachment with that id.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// DownloadAttachment checks that the attachment belongs to one of the user's
// emails. Fetching the bytes from Gmail is not implemented.
func (s *Service) DownloadAttachment(ctx context.Context, userID, emailID, attachmentID string) ([]byte, error) {
	email, err := s.store.GetEmailByID(ctx, userID, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to load email: %w", err)
	}

	attachments, err := s.store.GetAttachmentsForEmail(ctx, email.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	for _, a := range attachments {
		if a.ID == attachmentID {
			return nil, ErrAttachmentDownloadUnsupported
		}
	}
	return nil, ErrAttachmentNotFound
}
