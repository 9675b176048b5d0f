package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corkcrm/michael-mail-2/internal/auth"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/logging"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return logging.Discard()
}

// createRequestWithUser creates an HTTP request with user email in context.
func createRequestWithUser(method, url, email string) *http.Request {
	return createRequestWithUserBody(method, url, email, "")
}

func createRequestWithUserBody(method, url, email, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, url, reader)
	return req.WithContext(auth.WithUserEmail(req.Context(), email))
}

// seedEmail stores an email for the user and returns it with its id set.
func seedEmail(t *testing.T, store db.Store, email *models.Email) *models.Email {
	t.Helper()
	require.NoError(t, store.UpsertEmail(context.Background(), email))
	return email
}

// userID resolves the user id the handlers will see for email.
func userID(t *testing.T, store db.Store, email string) string {
	t.Helper()
	id, err := store.GetOrCreateUser(context.Background(), email)
	require.NoError(t, err)
	return id
}

// VerifyAuthCheck verifies that the handler returns 401 Unauthorized when no user is in context.
func VerifyAuthCheck(t *testing.T, handlerFunc http.HandlerFunc, method, url string) {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	rr := httptest.NewRecorder()
	handlerFunc(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected status 401 when no user email in context")
}
