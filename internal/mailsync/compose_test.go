package mailsync

import (
	"context"
	"net/http"
	"testing"

	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendEmailValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     models.SendRequest
		wantErr string
	}{
		{
			name:    "missing recipient",
			req:     models.SendRequest{Subject: "Hi", Body: "Hello"},
			wantErr: errMissingRecipient,
		},
		{
			name:    "blank recipient",
			req:     models.SendRequest{To: "   ", Subject: "Hi"},
			wantErr: errMissingRecipient,
		},
		{
			name:    "missing subject and body",
			req:     models.SendRequest{To: "bob@example.com", Subject: " ", Body: "\n"},
			wantErr: errMissingContent,
		},
		{
			name:    "invalid recipient",
			req:     models.SendRequest{To: "not an address", Body: "Hello"},
			wantErr: "Invalid recipient",
		},
		{
			name:    "invalid cc",
			req:     models.SendRequest{To: "bob@example.com", Cc: "@@", Body: "Hello"},
			wantErr: "Invalid Cc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t, Config{})

			result := f.service.SendEmail(context.Background(), f.userID, tt.req)

			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tt.wantErr)
			assert.Empty(t, f.fake.Sent())
		})
	}
}

func TestSendEmail(t *testing.T) {
	f := newSyncFixture(t, Config{})
	ctx := context.Background()

	result := f.service.SendEmail(ctx, f.userID, models.SendRequest{
		To:      "Bob <bob@example.com>, carol@example.com",
		Cc:      "dave@example.com",
		Bcc:     "eve@example.com",
		Subject: "Plans",
		Body:    "Line one\nLine <two>",
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "sent-1", result.MessageID)

	sent := f.fake.Sent()
	require.Len(t, sent, 1)
	env := sent[0]
	assert.Equal(t, "Plans", env.GetHeader("Subject"))
	assert.Contains(t, env.GetHeader("From"), userEmail)
	assert.Contains(t, env.GetHeader("To"), "bob@example.com")
	assert.Contains(t, env.GetHeader("To"), "carol@example.com")
	assert.Contains(t, env.GetHeader("Cc"), "dave@example.com")
	assert.Contains(t, env.GetHeader("Bcc"), "eve@example.com")
	assert.Contains(t, env.Text, "Line one")
	assert.Contains(t, env.Text, "Line <two>")
	assert.Contains(t, env.HTML, "Line one<br>Line &lt;two&gt;")

	stored, err := f.store.GetEmailByGmailID(ctx, f.userID, "sent-1")
	require.NoError(t, err)
	assert.True(t, stored.IsSent)
	assert.Equal(t, "Plans", stored.Subject)

	th, err := f.store.GetThread(ctx, f.userID, "sent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, th.MessageCount)
}

func TestSendEmailDefaultsSubject(t *testing.T) {
	f := newSyncFixture(t, Config{})

	result := f.service.SendEmail(context.Background(), f.userID, models.SendRequest{
		To:   "bob@example.com",
		Body: "No subject here",
	})
	require.True(t, result.Success, result.Error)

	sent := f.fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "(no subject)", sent[0].GetHeader("Subject"))
}

func TestSendEmailRetriesOnceOnUnauthorized(t *testing.T) {
	f := newSyncFixture(t, Config{})
	f.fake.FailNext(http.StatusUnauthorized, 1)

	result := f.service.SendEmail(context.Background(), f.userID, models.SendRequest{To: "bob@example.com", Body: "Hi"})

	assert.True(t, result.Success, result.Error)
	assert.Len(t, f.fake.Sent(), 1)
	assert.Equal(t, 1, f.fake.RefreshCalls())
}

func TestSendEmailFailures(t *testing.T) {
	t.Run("auth expired", func(t *testing.T) {
		f := newSyncFixture(t, Config{})
		f.fake.FailNext(http.StatusUnauthorized, 2)

		result := f.service.SendEmail(context.Background(), f.userID, models.SendRequest{To: "bob@example.com", Body: "Hi"})

		assert.False(t, result.Success)
		assert.Equal(t, errAuthExpired, result.Error)
	})

	t.Run("provider error", func(t *testing.T) {
		f := newSyncFixture(t, Config{})
		f.fake.FailNext(http.StatusBadRequest, 1)

		result := f.service.SendEmail(context.Background(), f.userID, models.SendRequest{To: "bob@example.com", Body: "Hi"})

		assert.False(t, result.Success)
		assert.Equal(t, "Failed to send email: Bad Request", result.Error)
	})

	t.Run("no credentials", func(t *testing.T) {
		f := newSyncFixture(t, Config{})
		userID, err := f.store.GetOrCreateUser(context.Background(), "nobody@example.com")
		require.NoError(t, err)

		result := f.service.SendEmail(context.Background(), userID, models.SendRequest{To: "bob@example.com", Body: "Hi"})

		assert.False(t, result.Success)
		assert.Equal(t, errAuthExpired, result.Error)
	})
}

func TestSendEmailSucceedsWhenRefetchFails(t *testing.T) {
	f := newSyncFixture(t, Config{})
	f.fake.FailMessage("sent-1", http.StatusNotFound)

	result := f.service.SendEmail(context.Background(), f.userID, models.SendRequest{To: "bob@example.com", Body: "Hi"})

	assert.True(t, result.Success)
	assert.Equal(t, 0, f.store.EmailCount())
}
