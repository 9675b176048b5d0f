package gmail_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/gmail/gmailfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*gmail.Client, *gmailfake.Server) {
	t.Helper()
	fake := gmailfake.NewServer()
	t.Cleanup(fake.Close)
	fake.RequireToken("good-token")
	return gmail.NewClient(gmail.Options{Endpoint: fake.Endpoint(), Timeout: 5 * time.Second}), fake
}

func seed(fake *gmailfake.Server, n int) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fake.AddMessage(gmailfake.MessageSpec{
			ID:       "m" + string(rune('a'+i)),
			ThreadID: "t1",
			From:     "Alice <alice@example.com>",
			To:       "bob@example.com",
			Subject:  "Hello",
			Text:     "hi",
			Date:     base.Add(time.Duration(i) * time.Minute),
			Labels:   []string{"INBOX"},
		}.Build())
	}
}

func TestListMessages(t *testing.T) {
	client, fake := newClient(t)
	seed(fake, 3)
	ctx := context.Background()

	first, err := client.ListMessages(ctx, "good-token", 2, "")
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "mc", first.Messages[0].ID, "newest first")
	assert.Equal(t, "t1", first.Messages[0].ThreadID)
	assert.NotEmpty(t, first.NextPageToken)
	assert.Equal(t, int64(3), first.ResultSizeEstimate)

	second, err := client.ListMessages(ctx, "good-token", 2, first.NextPageToken)
	require.NoError(t, err)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "ma", second.Messages[0].ID)
	assert.Empty(t, second.NextPageToken)

	calls := fake.ListCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 2, calls[0].MaxResults)
	assert.Empty(t, calls[0].PageToken)
	assert.Equal(t, first.NextPageToken, calls[1].PageToken)
}

func TestGetMessage(t *testing.T) {
	client, fake := newClient(t)
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fake.AddMessage(gmailfake.MessageSpec{
		ID:        "m1",
		ThreadID:  "t1",
		From:      "Alice <alice@example.com>",
		To:        "bob@example.com",
		Subject:   "Report",
		Text:      "plain body",
		HTML:      "<p>html body</p>",
		Date:      date,
		Labels:    []string{"INBOX", "UNREAD"},
		HistoryID: 4242,
		Attachments: []gmailfake.AttachmentSpec{
			{Filename: "report.pdf", MimeType: "application/pdf", Size: 2048},
		},
	}.Build())

	msg, err := client.GetMessage(context.Background(), "good-token", "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.True(t, msg.HasLabels)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, msg.LabelIDs)
	assert.Equal(t, uint64(4242), msg.HistoryID)
	assert.Equal(t, date.UnixMilli(), msg.InternalDate)
	assert.Equal(t, "Report", msg.Payload.Header("subject"))

	require.Len(t, msg.Payload.Parts, 2)
	alt := msg.Payload.Parts[0]
	assert.Equal(t, "multipart/alternative", alt.MimeType)
	require.Len(t, alt.Parts, 2)
	assert.Equal(t, "0.1", alt.Parts[1].PartID)

	decoded, err := base64.URLEncoding.DecodeString(alt.Parts[0].Body.Data)
	require.NoError(t, err)
	assert.Equal(t, "plain body", string(decoded))

	att := msg.Payload.Parts[1]
	assert.Equal(t, "report.pdf", att.Filename)
	assert.Equal(t, "att-m1-1", att.Body.AttachmentID)
	assert.Equal(t, int64(2048), att.Body.Size)
}

func TestGetMessageWithoutLabels(t *testing.T) {
	client, fake := newClient(t)
	fake.AddMessage(gmailfake.MessageSpec{ID: "m1", Subject: "x", Text: "y", NoLabels: true}.Build())

	msg, err := client.GetMessage(context.Background(), "good-token", "m1")
	require.NoError(t, err)
	assert.False(t, msg.HasLabels)
}

func TestErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("bad token is ErrUnauthorized", func(t *testing.T) {
		client, _ := newClient(t)
		_, err := client.ListMessages(ctx, "stale-token", 10, "")
		assert.True(t, errors.Is(err, gmail.ErrUnauthorized))
	})

	t.Run("not found is StatusError", func(t *testing.T) {
		client, _ := newClient(t)
		_, err := client.GetMessage(ctx, "good-token", "missing")

		var statusErr *gmail.StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.Code)
		assert.Equal(t, "Not Found", statusErr.Status)
		assert.False(t, statusErr.Temporary())
	})

	t.Run("forbidden is StatusError", func(t *testing.T) {
		client, fake := newClient(t)
		fake.FailNext(http.StatusForbidden, 1)
		_, err := client.ListMessages(ctx, "good-token", 10, "")

		var statusErr *gmail.StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusForbidden, statusErr.Code)
		assert.False(t, errors.Is(err, gmail.ErrUnauthorized))
	})
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&gmail.StatusError{Code: 429}).Temporary())
	assert.True(t, (&gmail.StatusError{Code: 503}).Temporary())
	assert.False(t, (&gmail.StatusError{Code: 400}).Temporary())
}

func TestSendRaw(t *testing.T) {
	client, fake := newClient(t)
	raw := "From: me@example.com\r\nTo: you@example.com\r\nSubject: Hi\r\n\r\nHello there\r\n"

	ref, err := client.SendRaw(context.Background(), "good-token", base64.URLEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, "sent-1", ref.ID)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi", sent[0].GetHeader("Subject"))
	assert.Contains(t, sent[0].Text, "Hello there")
	assert.NotNil(t, fake.Message("sent-1"))
}

func TestModifyLabels(t *testing.T) {
	client, fake := newClient(t)
	fake.AddMessage(gmailfake.MessageSpec{ID: "m1", Labels: []string{"INBOX", "UNREAD"}}.Build())

	err := client.ModifyLabels(context.Background(), "good-token", "m1", []string{"STARRED"}, []string{"UNREAD"})
	require.NoError(t, err)

	mods := fake.Modifications()
	require.Len(t, mods, 1)
	assert.Equal(t, "m1", mods[0].MessageID)
	assert.Equal(t, []string{"STARRED"}, mods[0].Add)
	assert.Equal(t, []string{"UNREAD"}, mods[0].Remove)
	assert.ElementsMatch(t, []string{"INBOX", "STARRED"}, fake.Message("m1").LabelIds)
}
