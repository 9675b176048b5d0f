package db

import (
	"context"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the local mail store. It lets services be tested against an
// in-memory implementation.
type Store interface {
	GetOrCreateUser(ctx context.Context, email string) (string, error)
	SaveCredentials(ctx context.Context, cred *models.OAuthCredential) error
	GetCredentials(ctx context.Context, userID string) (*models.OAuthCredential, error)
	UpdateAccessToken(ctx context.Context, userID string, encryptedAccessToken []byte, expiresAt int64, encryptedRefreshToken []byte) error

	UpsertEmail(ctx context.Context, email *models.Email) error
	GetEmailByID(ctx context.Context, userID, emailID string) (*models.Email, error)
	GetEmailByGmailID(ctx context.Context, userID, gmailID string) (*models.Email, error)
	GetEmailsByThread(ctx context.Context, userID, gmailThreadID string) ([]*models.Email, error)
	ListEmails(ctx context.Context, userID string, view models.View, limit, offset int) ([]*models.Email, int, error)
	SearchEmails(ctx context.Context, userID, term string, limit int) ([]*models.Email, error)
	SetEmailRead(ctx context.Context, userID, emailID string, isRead bool) (*models.Email, error)
	SetEmailStarred(ctx context.Context, userID, emailID string, isStarred bool) (*models.Email, error)

	UpsertAttachment(ctx context.Context, att *models.Attachment) error
	GetAttachmentsForEmail(ctx context.Context, emailID string) ([]*models.Attachment, error)

	UpsertThread(ctx context.Context, thread *models.Thread) error
	GetThread(ctx context.Context, userID, gmailThreadID string) (*models.Thread, error)

	GetSyncState(ctx context.Context, userID string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
}

// Ensure pgStore implements Store.
var _ Store = (*pgStore)(nil)

// pgStore implements Store using a database pool.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) GetOrCreateUser(ctx context.Context, email string) (string, error) {
	return GetOrCreateUser(ctx, s.pool, email)
}

func (s *pgStore) SaveCredentials(ctx context.Context, cred *models.OAuthCredential) error {
	return SaveCredentials(ctx, s.pool, cred)
}

func (s *pgStore) GetCredentials(ctx context.Context, userID string) (*models.OAuthCredential, error) {
	return GetCredentials(ctx, s.pool, userID)
}

func (s *pgStore) UpdateAccessToken(ctx context.Context, userID string, encryptedAccessToken []byte, expiresAt int64, encryptedRefreshToken []byte) error {
	return UpdateAccessToken(ctx, s.pool, userID, encryptedAccessToken, expiresAt, encryptedRefreshToken)
}

func (s *pgStore) UpsertEmail(ctx context.Context, email *models.Email) error {
	return UpsertEmail(ctx, s.pool, email)
}

func (s *pgStore) GetEmailByID(ctx context.Context, userID, emailID string) (*models.Email, error) {
	return GetEmailByID(ctx, s.pool, userID, emailID)
}

func (s *pgStore) GetEmailByGmailID(ctx context.Context, userID, gmailID string) (*models.Email, error) {
	return GetEmailByGmailID(ctx, s.pool, userID, gmailID)
}

func (s *pgStore) GetEmailsByThread(ctx context.Context, userID, gmailThreadID string) ([]*models.Email, error) {
	return GetEmailsByThread(ctx, s.pool, userID, gmailThreadID)
}

func (s *pgStore) ListEmails(ctx context.Context, userID string, view models.View, limit, offset int) ([]*models.Email, int, error) {
	return ListEmails(ctx, s.pool, userID, view, limit, offset)
}

func (s *pgStore) SearchEmails(ctx context.Context, userID, term string, limit int) ([]*models.Email, error) {
	return SearchEmails(ctx, s.pool, userID, term, limit)
}

func (s *pgStore) SetEmailRead(ctx context.Context, userID, emailID string, isRead bool) (*models.Email, error) {
	return SetEmailRead(ctx, s.pool, userID, emailID, isRead)
}

func (s *pgStore) SetEmailStarred(ctx context.Context, userID, emailID string, isStarred bool) (*models.Email, error) {
	return SetEmailStarred(ctx, s.pool, userID, emailID, isStarred)
}

func (s *pgStore) UpsertAttachment(ctx context.Context, att *models.Attachment) error {
	return UpsertAttachment(ctx, s.pool, att)
}

func (s *pgStore) GetAttachmentsForEmail(ctx context.Context, emailID string) ([]*models.Attachment, error) {
	return GetAttachmentsForEmail(ctx, s.pool, emailID)
}

func (s *pgStore) UpsertThread(ctx context.Context, thread *models.Thread) error {
	return UpsertThread(ctx, s.pool, thread)
}

func (s *pgStore) GetThread(ctx context.Context, userID, gmailThreadID string) (*models.Thread, error) {
	return GetThread(ctx, s.pool, userID, gmailThreadID)
}

func (s *pgStore) GetSyncState(ctx context.Context, userID string) (*models.SyncState, error) {
	return GetSyncState(ctx, s.pool, userID)
}

func (s *pgStore) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	return SaveSyncState(ctx, s.pool, state)
}
