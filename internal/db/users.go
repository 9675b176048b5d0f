package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCredentialsNotFound is returned when a user has no Google tokens stored.
var ErrCredentialsNotFound = errors.New("credentials not found")

// GetOrCreateUser returns the user's id for the given email.
// If no user exists with that email, it creates a new one.
func GetOrCreateUser(ctx context.Context, pool *pgxpool.Pool, email string) (string, error) {
	var userID string

	err := pool.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id
	`, email).Scan(&userID)

	if err != nil {
		return "", fmt.Errorf("failed to get or create user: %w", err)
	}

	return userID, nil
}

// SaveCredentials stores the encrypted tokens seeded by the auth provider.
func SaveCredentials(ctx context.Context, pool *pgxpool.Pool, cred *models.OAuthCredential) error {
	tag, err := pool.Exec(ctx, `
		UPDATE users SET
			encrypted_access_token = $2,
			encrypted_refresh_token = COALESCE($3, encrypted_refresh_token),
			token_expires_at = $4,
			updated_at = now()
		WHERE id = $1
	`, cred.UserID, cred.EncryptedAccessToken, cred.EncryptedRefreshToken, cred.TokenExpiresAt)

	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialsNotFound
	}

	return nil
}

// GetCredentials returns the stored tokens of a user.
func GetCredentials(ctx context.Context, pool *pgxpool.Pool, userID string) (*models.OAuthCredential, error) {
	if !validID(userID) {
		return nil, ErrCredentialsNotFound
	}

	var cred models.OAuthCredential
	err := pool.QueryRow(ctx, `
		SELECT id, email, encrypted_access_token, encrypted_refresh_token, token_expires_at
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&cred.UserID,
		&cred.Email,
		&cred.EncryptedAccessToken,
		&cred.EncryptedRefreshToken,
		&cred.TokenExpiresAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	if cred.EncryptedAccessToken == nil && cred.EncryptedRefreshToken == nil {
		return nil, ErrCredentialsNotFound
	}

	return &cred, nil
}

// UpdateAccessToken stores a refreshed access token. A nil refresh token
// keeps the current one.
func UpdateAccessToken(ctx context.Context, pool *pgxpool.Pool, userID string, encryptedAccessToken []byte, expiresAt int64, encryptedRefreshToken []byte) error {
	tag, err := pool.Exec(ctx, `
		UPDATE users SET
			encrypted_access_token = $2,
			token_expires_at = $3,
			encrypted_refresh_token = COALESCE($4, encrypted_refresh_token),
			updated_at = now()
		WHERE id = $1
	`, userID, encryptedAccessToken, expiresAt, encryptedRefreshToken)

	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialsNotFound
	}

	return nil
}
