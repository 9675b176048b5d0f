package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/config"
	"github.com/corkcrm/michael-mail-2/internal/logging"
	"github.com/corkcrm/michael-mail-2/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	cfg := &config.Config{
		Environment:         "test",
		EncryptionKeyBase64: testutil.TestEncryptionKey,
		GoogleTokenURL:      "http://127.0.0.1:1/token",
		RequestTimeout:      time.Second,
		SyncPageSize:        50,
		PollInterval:        time.Minute,
	}

	logger := logging.Discard()
	application, handler, err := NewServer(cfg, pool, logger)
	require.NoError(t, err)
	defer func() { _ = application.Shutdown(context.Background()) }()

	t.Run("root", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
		assert.Equal(t, rootMessage, rr.Body.String())
	})

	t.Run("auth status against postgres", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
		req.Header.Set("Authorization", "Bearer email:main@example.com")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"isAuthenticated":true,"hasGmailAccess":false}`, rr.Body.String())
	})
}

func TestNewServerRejectsBadKey(t *testing.T) {
	cfg := &config.Config{EncryptionKeyBase64: "not base64!"}
	logger := logging.Discard()

	_, _, err := NewServer(cfg, nil, logger)
	assert.Error(t, err)
}
