package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSyncStateNotFound is returned for users that have never synced.
var ErrSyncStateNotFound = errors.New("sync state not found")

// GetSyncState returns the sync cursor of a user.
func GetSyncState(ctx context.Context, pool *pgxpool.Pool, userID string) (*models.SyncState, error) {
	if !validID(userID) {
		return nil, ErrSyncStateNotFound
	}

	var state models.SyncState
	err := pool.QueryRow(ctx, `
		SELECT user_id, last_history_id, last_sync_time, next_page_token, sync_status
		FROM sync_state
		WHERE user_id = $1
	`, userID).Scan(
		&state.UserID,
		&state.LastHistoryID,
		&state.LastSyncTime,
		&state.NextPageToken,
		&state.SyncStatus,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSyncStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	return &state, nil
}

// SaveSyncState replaces the sync cursor of a user.
func SaveSyncState(ctx context.Context, pool *pgxpool.Pool, state *models.SyncState) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO sync_state (user_id, last_history_id, last_sync_time, next_page_token, sync_status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			last_history_id = EXCLUDED.last_history_id,
			last_sync_time = EXCLUDED.last_sync_time,
			next_page_token = EXCLUDED.next_page_token,
			sync_status = EXCLUDED.sync_status
	`, state.UserID, state.LastHistoryID, state.LastSyncTime, state.NextPageToken, state.SyncStatus)

	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}

	return nil
}
