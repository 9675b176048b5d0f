package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEmailNotFound is returned when an email does not exist or belongs to
// another user.
var ErrEmailNotFound = errors.New("email not found")

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 50

const emailColumns = `
	id, user_id, gmail_id, gmail_thread_id, subject, snippet, internal_date,
	history_id, size_estimate, from_name, from_email, to_addresses,
	cc_addresses, bcc_addresses, reply_to, body_html, body_plain,
	is_read, is_starred, is_important, is_spam, is_trash, is_draft,
	is_inbox, is_sent, is_archived, has_attachments, last_synced_at,
	sync_status`

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanEmail(row pgx.Row) (*models.Email, error) {
	var e models.Email
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.GmailID,
		&e.GmailThreadID,
		&e.Subject,
		&e.Snippet,
		&e.InternalDate,
		&e.HistoryID,
		&e.SizeEstimate,
		&e.From,
		&e.FromEmail,
		&e.To,
		&e.Cc,
		&e.Bcc,
		&e.ReplyTo,
		&e.BodyHTML,
		&e.BodyPlain,
		&e.IsRead,
		&e.IsStarred,
		&e.IsImportant,
		&e.IsSpam,
		&e.IsTrash,
		&e.IsDraft,
		&e.IsInbox,
		&e.IsSent,
		&e.IsArchived,
		&e.HasAttachments,
		&e.LastSyncedAt,
		&e.SyncStatus,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEmails(rows pgx.Rows) ([]*models.Email, error) {
	defer rows.Close()

	var emails []*models.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// UpsertEmail inserts an email or, when (user_id, gmail_id) already exists,
// updates it in place. The row id is written back to email.ID.
func UpsertEmail(ctx context.Context, pool *pgxpool.Pool, email *models.Email) error {
	to := email.To
	if to == nil {
		to = []string{}
	}

	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO emails (
			user_id, gmail_id, gmail_thread_id, subject, snippet, internal_date,
			history_id, size_estimate, from_name, from_email, to_addresses,
			cc_addresses, bcc_addresses, reply_to, body_html, body_plain,
			is_read, is_starred, is_important, is_spam, is_trash, is_draft,
			is_inbox, is_sent, is_archived, has_attachments, last_synced_at,
			sync_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
		)
		ON CONFLICT (user_id, gmail_id) DO UPDATE SET
			gmail_thread_id = EXCLUDED.gmail_thread_id,
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			internal_date = EXCLUDED.internal_date,
			history_id = EXCLUDED.history_id,
			size_estimate = EXCLUDED.size_estimate,
			from_name = EXCLUDED.from_name,
			from_email = EXCLUDED.from_email,
			to_addresses = EXCLUDED.to_addresses,
			cc_addresses = EXCLUDED.cc_addresses,
			bcc_addresses = EXCLUDED.bcc_addresses,
			reply_to = EXCLUDED.reply_to,
			body_html = COALESCE(EXCLUDED.body_html, emails.body_html),
			body_plain = COALESCE(EXCLUDED.body_plain, emails.body_plain),
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			is_important = EXCLUDED.is_important,
			is_spam = EXCLUDED.is_spam,
			is_trash = EXCLUDED.is_trash,
			is_draft = EXCLUDED.is_draft,
			is_inbox = EXCLUDED.is_inbox,
			is_sent = EXCLUDED.is_sent,
			is_archived = EXCLUDED.is_archived,
			has_attachments = EXCLUDED.has_attachments,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_status = EXCLUDED.sync_status
		RETURNING id
	`,
		email.UserID,
		email.GmailID,
		email.GmailThreadID,
		email.Subject,
		email.Snippet,
		email.InternalDate,
		email.HistoryID,
		email.SizeEstimate,
		email.From,
		email.FromEmail,
		to,
		email.Cc,
		email.Bcc,
		email.ReplyTo,
		email.BodyHTML,
		email.BodyPlain,
		email.IsRead,
		email.IsStarred,
		email.IsImportant,
		email.IsSpam,
		email.IsTrash,
		email.IsDraft,
		email.IsInbox,
		email.IsSent,
		email.IsArchived,
		email.HasAttachments,
		email.LastSyncedAt,
		email.SyncStatus,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to upsert email: %w", err)
	}

	email.ID = id
	return nil
}

// GetEmailByID returns one of the user's emails by row id.
func GetEmailByID(ctx context.Context, pool *pgxpool.Pool, userID, emailID string) (*models.Email, error) {
	if !validID(emailID) || !validID(userID) {
		return nil, ErrEmailNotFound
	}

	e, err := scanEmail(pool.QueryRow(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE id = $1 AND user_id = $2
	`, emailID, userID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	return e, nil
}

// GetEmailByGmailID returns one of the user's emails by provider message id.
func GetEmailByGmailID(ctx context.Context, pool *pgxpool.Pool, userID, gmailID string) (*models.Email, error) {
	if !validID(userID) {
		return nil, ErrEmailNotFound
	}

	e, err := scanEmail(pool.QueryRow(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE user_id = $1 AND gmail_id = $2
	`, userID, gmailID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email by gmail id: %w", err)
	}

	return e, nil
}

// GetEmailsByThread returns every stored member of a thread, oldest first.
func GetEmailsByThread(ctx context.Context, pool *pgxpool.Pool, userID, gmailThreadID string) ([]*models.Email, error) {
	if !validID(userID) {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE user_id = $1 AND gmail_thread_id = $2
		ORDER BY internal_date ASC, gmail_id ASC
	`, userID, gmailThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread emails: %w", err)
	}

	return collectEmails(rows)
}

// viewFilter is the WHERE fragment selecting the emails of a view.
func viewFilter(view models.View) (string, error) {
	switch view {
	case models.ViewInbox:
		return "is_inbox AND NOT is_spam AND NOT is_trash", nil
	case models.ViewSent:
		return "is_sent AND NOT is_trash", nil
	case models.ViewDrafts:
		return "is_draft AND NOT is_trash", nil
	case models.ViewArchive:
		return "is_archived", nil
	case models.ViewTrash:
		return "is_trash", nil
	case models.ViewAll:
		return "NOT is_spam AND NOT is_trash", nil
	}
	return "", fmt.Errorf("unknown view %q", view)
}

// ListEmails returns one page of a view, newest first, plus the view's total
// size.
func ListEmails(ctx context.Context, pool *pgxpool.Pool, userID string, view models.View, limit, offset int) ([]*models.Email, int, error) {
	filter, err := viewFilter(view)
	if err != nil {
		return nil, 0, err
	}
	if !validID(userID) {
		return nil, 0, nil
	}

	var total int
	if err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM emails WHERE user_id = $1 AND `+filter,
		userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count emails: %w", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE user_id = $1 AND `+filter+`
		ORDER BY internal_date DESC, gmail_id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list emails: %w", err)
	}

	emails, err := collectEmails(rows)
	if err != nil {
		return nil, 0, err
	}
	return emails, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchEmails matches term case-insensitively against subject, snippet and
// sender. Spam and trash are excluded.
func SearchEmails(ctx context.Context, pool *pgxpool.Pool, userID, term string, limit int) ([]*models.Email, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if !validID(userID) {
		return nil, nil
	}

	pattern := "%" + likeEscaper.Replace(term) + "%"
	rows, err := pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE user_id = $1
			AND NOT is_spam AND NOT is_trash
			AND (subject ILIKE $2 OR snippet ILIKE $2 OR from_name ILIKE $2 OR from_email ILIKE $2)
		ORDER BY internal_date DESC
		LIMIT $3
	`, userID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}

	return collectEmails(rows)
}

// SetEmailRead sets the read flag of one of the user's emails and returns
// the updated row.
func SetEmailRead(ctx context.Context, pool *pgxpool.Pool, userID, emailID string, isRead bool) (*models.Email, error) {
	return setEmailFlag(ctx, pool, "is_read", userID, emailID, isRead)
}

// SetEmailStarred sets the starred flag of one of the user's emails and
// returns the updated row.
func SetEmailStarred(ctx context.Context, pool *pgxpool.Pool, userID, emailID string, isStarred bool) (*models.Email, error) {
	return setEmailFlag(ctx, pool, "is_starred", userID, emailID, isStarred)
}

// setEmailFlag only accepts the column names of its two callers.
func setEmailFlag(ctx context.Context, pool *pgxpool.Pool, column, userID, emailID string, value bool) (*models.Email, error) {
	if !validID(emailID) || !validID(userID) {
		return nil, ErrEmailNotFound
	}

	e, err := scanEmail(pool.QueryRow(ctx, `
		UPDATE emails SET `+column+` = $3
		WHERE id = $1 AND user_id = $2
		RETURNING `+emailColumns,
		emailID, userID, value))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", column, err)
	}

	return e, nil
}
