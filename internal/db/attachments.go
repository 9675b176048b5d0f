package db

import (
	"context"
	"fmt"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UpsertAttachment saves attachment metadata keyed by (email_id, part_id).
// Gmail hands out a new attachment id on every fetch, so the part id is the
// stable key.
func UpsertAttachment(ctx context.Context, pool *pgxpool.Pool, att *models.Attachment) error {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO attachments (email_id, part_id, gmail_attachment_id, filename, mime_type, size, content_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email_id, part_id) DO UPDATE SET
			gmail_attachment_id = EXCLUDED.gmail_attachment_id,
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size,
			content_id = EXCLUDED.content_id
		RETURNING id
	`, att.EmailID, att.PartID, att.GmailAttachmentID, att.Filename, att.MimeType, att.Size, att.ContentID).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to upsert attachment: %w", err)
	}

	att.ID = id
	return nil
}

// GetAttachmentsForEmail returns the attachments of an email in part order.
func GetAttachmentsForEmail(ctx context.Context, pool *pgxpool.Pool, emailID string) ([]*models.Attachment, error) {
	if !validID(emailID) {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT id, email_id, part_id, gmail_attachment_id, filename, mime_type, size, content_id
		FROM attachments
		WHERE email_id = $1
		ORDER BY part_id
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(
			&a.ID,
			&a.EmailID,
			&a.PartID,
			&a.GmailAttachmentID,
			&a.Filename,
			&a.MimeType,
			&a.Size,
			&a.ContentID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}
