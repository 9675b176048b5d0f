package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

// UpsertThread saves the aggregate of a thread, replacing every statistic.
func UpsertThread(ctx context.Context, pool *pgxpool.Pool, thread *models.Thread) error {
	participants := thread.ParticipantEmails
	if participants == nil {
		participants = []string{}
	}

	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO threads (
			user_id, gmail_thread_id, subject, snippet, last_message_date,
			message_count, participant_emails, is_read, has_attachments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, gmail_thread_id) DO UPDATE SET
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			last_message_date = EXCLUDED.last_message_date,
			message_count = EXCLUDED.message_count,
			participant_emails = EXCLUDED.participant_emails,
			is_read = EXCLUDED.is_read,
			has_attachments = EXCLUDED.has_attachments
		RETURNING id
	`,
		thread.UserID,
		thread.GmailThreadID,
		thread.Subject,
		thread.Snippet,
		thread.LastMessageDate,
		thread.MessageCount,
		participants,
		thread.IsRead,
		thread.HasAttachments,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}

	thread.ID = id
	return nil
}

// GetThread returns a thread by its provider thread id.
func GetThread(ctx context.Context, pool *pgxpool.Pool, userID, gmailThreadID string) (*models.Thread, error) {
	if !validID(userID) {
		return nil, ErrThreadNotFound
	}

	var thread models.Thread
	err := pool.QueryRow(ctx, `
		SELECT id, user_id, gmail_thread_id, subject, snippet, last_message_date,
			message_count, participant_emails, is_read, has_attachments
		FROM threads
		WHERE user_id = $1 AND gmail_thread_id = $2
	`, userID, gmailThreadID).Scan(
		&thread.ID,
		&thread.UserID,
		&thread.GmailThreadID,
		&thread.Subject,
		&thread.Snippet,
		&thread.LastMessageDate,
		&thread.MessageCount,
		&thread.ParticipantEmails,
		&thread.IsRead,
		&thread.HasAttachments,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return &thread, nil
}
