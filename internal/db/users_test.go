package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/corkcrm/michael-mail-2/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateUser(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	t.Run("creates new user", func(t *testing.T) {
		userID, err := db.GetOrCreateUser(ctx, pool, "test@example.com")
		if err != nil {
			t.Fatalf("GetOrCreateUser failed: %v", err)
		}

		if userID == "" {
			t.Fatal("Expected non-empty user ID")
		}
	})

	t.Run("returns existing user", func(t *testing.T) {
		userID1, err := db.GetOrCreateUser(ctx, pool, "existing@example.com")
		require.NoError(t, err)

		userID2, err := db.GetOrCreateUser(ctx, pool, "existing@example.com")
		require.NoError(t, err)

		if userID1 != userID2 {
			t.Errorf("Expected same user ID, got %s and %s", userID1, userID2)
		}
	})
}

func TestCredentials(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	userID, err := db.GetOrCreateUser(ctx, pool, "creds@example.com")
	require.NoError(t, err)

	t.Run("new user has no credentials", func(t *testing.T) {
		_, err := db.GetCredentials(ctx, pool, userID)
		assert.True(t, errors.Is(err, db.ErrCredentialsNotFound))
	})

	t.Run("unknown or malformed user id", func(t *testing.T) {
		_, err := db.GetCredentials(ctx, pool, "00000000-0000-0000-0000-000000000000")
		assert.True(t, errors.Is(err, db.ErrCredentialsNotFound))

		_, err = db.GetCredentials(ctx, pool, "not-a-uuid")
		assert.True(t, errors.Is(err, db.ErrCredentialsNotFound))
	})

	t.Run("save and load", func(t *testing.T) {
		err := db.SaveCredentials(ctx, pool, &models.OAuthCredential{
			UserID:                userID,
			EncryptedAccessToken:  []byte("access-1"),
			EncryptedRefreshToken: []byte("refresh-1"),
			TokenExpiresAt:        1000,
		})
		require.NoError(t, err)

		cred, err := db.GetCredentials(ctx, pool, userID)
		require.NoError(t, err)
		assert.Equal(t, "creds@example.com", cred.Email)
		assert.Equal(t, []byte("access-1"), cred.EncryptedAccessToken)
		assert.Equal(t, []byte("refresh-1"), cred.EncryptedRefreshToken)
		assert.Equal(t, int64(1000), cred.TokenExpiresAt)
	})

	t.Run("update keeps refresh token when nil", func(t *testing.T) {
		require.NoError(t, db.UpdateAccessToken(ctx, pool, userID, []byte("access-2"), 2000, nil))

		cred, err := db.GetCredentials(ctx, pool, userID)
		require.NoError(t, err)
		assert.Equal(t, []byte("access-2"), cred.EncryptedAccessToken)
		assert.Equal(t, []byte("refresh-1"), cred.EncryptedRefreshToken)
		assert.Equal(t, int64(2000), cred.TokenExpiresAt)
	})

	t.Run("update rotates refresh token", func(t *testing.T) {
		require.NoError(t, db.UpdateAccessToken(ctx, pool, userID, []byte("access-3"), 3000, []byte("refresh-2")))

		cred, err := db.GetCredentials(ctx, pool, userID)
		require.NoError(t, err)
		assert.Equal(t, []byte("refresh-2"), cred.EncryptedRefreshToken)
	})

	t.Run("update unknown user", func(t *testing.T) {
		err := db.UpdateAccessToken(ctx, pool, "00000000-0000-0000-0000-000000000000", []byte("x"), 1, nil)
		assert.True(t, errors.Is(err, db.ErrCredentialsNotFound))
	})
}
