package transform

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func leaf(mimeType, content string) *gmail.MimePart {
	return &gmail.MimePart{MimeType: mimeType, Body: gmail.PartBody{Data: enc(content), Size: int64(len(content))}}
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		name      string
		from      string
		wantName  string
		wantEmail string
	}{
		{"quoted name", `"Alice Smith" <alice@example.com>`, "Alice Smith", "alice@example.com"},
		{"bare name", `Bob <bob@example.com>`, "Bob", "bob@example.com"},
		{"comma in quoted name", `"Doe, Jane" <jane@example.com>`, "Doe, Jane", "jane@example.com"},
		{"bare address", `carol@example.com`, "carol@example.com", "carol@example.com"},
		{"only angle address", `<dave@example.com>`, "dave@example.com", "dave@example.com"},
		{"empty", ``, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, email := ParseSender(tt.from)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantEmail, email)
		})
	}
}

func TestParseAddressList(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "B <b@example.com>"}, ParseAddressList(" a@example.com , B <b@example.com>,, "))
	assert.Nil(t, ParseAddressList(""))
	assert.Nil(t, ParseAddressList(" , "))
}

func TestDecodeBase64URL(t *testing.T) {
	t.Run("url alphabet without padding", func(t *testing.T) {
		raw := base64.RawURLEncoding.EncodeToString([]byte("ok?>>"))
		got, err := DecodeBase64URL(raw)
		require.NoError(t, err)
		assert.Equal(t, "ok?>>", got)
	})

	t.Run("standard alphabet with padding", func(t *testing.T) {
		got, err := DecodeBase64URL(base64.StdEncoding.EncodeToString([]byte("ok?>>")))
		require.NoError(t, err)
		assert.Equal(t, "ok?>>", got)
	})

	t.Run("utf-8", func(t *testing.T) {
		got, err := DecodeBase64URL(enc("héllo 👋"))
		require.NoError(t, err)
		assert.Equal(t, "héllo 👋", got)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := DecodeBase64URL("!!!not base64!!!")
		assert.Error(t, err)
	})
}

func TestExtractBody(t *testing.T) {
	t.Run("single plain part", func(t *testing.T) {
		body := ExtractBody(leaf("text/plain", "hello"))
		assert.Equal(t, "hello", body.PlainText)
		assert.Empty(t, body.HTML)
	})

	t.Run("nested alternative inside mixed", func(t *testing.T) {
		root := &gmail.MimePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MimePart{
				{
					MimeType: "multipart/related",
					Parts: []*gmail.MimePart{
						{
							MimeType: "multipart/alternative",
							Parts: []*gmail.MimePart{
								leaf("text/plain", "deep plain"),
								leaf("text/html; charset=UTF-8", "<b>deep html</b>"),
							},
						},
					},
				},
				leaf("text/plain", "later plain"),
			},
		}

		body := ExtractBody(root)
		assert.Equal(t, "deep plain", body.PlainText)
		assert.Equal(t, "<b>deep html</b>", body.HTML)
	})

	t.Run("first match wins", func(t *testing.T) {
		root := &gmail.MimePart{
			MimeType: "multipart/mixed",
			Parts:    []*gmail.MimePart{leaf("text/html", "one"), leaf("text/html", "two")},
		}
		assert.Equal(t, "one", ExtractBody(root).HTML)
	})

	t.Run("html part without data is skipped", func(t *testing.T) {
		root := &gmail.MimePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MimePart{
				{MimeType: "text/html", Body: gmail.PartBody{AttachmentID: "big"}},
				leaf("text/html", "inline"),
			},
		}
		assert.Equal(t, "inline", ExtractBody(root).HTML)
	})

	t.Run("bad data yields empty field", func(t *testing.T) {
		root := &gmail.MimePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MimePart{
				{MimeType: "text/plain", Body: gmail.PartBody{Data: "%%%"}},
				leaf("text/html", "fine"),
			},
		}
		body := ExtractBody(root)
		assert.Empty(t, body.PlainText)
		assert.Equal(t, "fine", body.HTML)
	})

	t.Run("nil part", func(t *testing.T) {
		assert.Equal(t, Body{}, ExtractBody(nil))
	})
}

// fromEnvelope converts a parsed MIME tree into the provider representation,
// so bodies built by a real MIME writer can be fed back through ExtractBody.
func fromEnvelope(p *enmime.Part) *gmail.MimePart {
	if p == nil {
		return nil
	}
	part := &gmail.MimePart{MimeType: p.ContentType, Filename: p.FileName}
	if p.FirstChild == nil && len(p.Content) > 0 {
		part.Body.Data = base64.URLEncoding.EncodeToString(p.Content)
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		part.Parts = append(part.Parts, fromEnvelope(c))
	}
	return part
}

func TestExtractBodyRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		html        string
		attachments int
	}{
		{"plain only", "just text", "", 0},
		{"alternative", "plain ✓", "<p>html ✓</p>", 0},
		{"alternative with attachments", "plain", "<p>html</p>", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := enmime.Builder().
				From("Alice", "alice@example.com").
				To("Bob", "bob@example.com").
				Subject("round trip").
				Text([]byte(tt.text))
			if tt.html != "" {
				b = b.HTML([]byte(tt.html))
			}
			for i := 0; i < tt.attachments; i++ {
				b = b.AddAttachment([]byte("data"), "application/octet-stream", "file.bin")
			}

			root, err := b.Build()
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, root.Encode(&buf))

			env, err := enmime.ReadEnvelope(&buf)
			require.NoError(t, err)

			body := ExtractBody(fromEnvelope(env.Root))
			assert.Equal(t, tt.text, strings.TrimRight(body.PlainText, "\r\n"))
			assert.Equal(t, tt.html, strings.TrimRight(body.HTML, "\r\n"))
		})
	}
}

func TestExtractAttachments(t *testing.T) {
	root := &gmail.MimePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MimePart{
			leaf("text/plain", "body"),
			{
				PartID:   "1",
				MimeType: "multipart/related",
				Parts: []*gmail.MimePart{
					{
						PartID:   "1.0",
						MimeType: "image/png",
						Filename: "logo.png",
						Headers:  []gmail.Header{{Name: "Content-ID", Value: "<logo123>"}},
						Body:     gmail.PartBody{AttachmentID: "att-logo", Size: 300},
					},
				},
			},
			{PartID: "2", MimeType: "application/pdf", Filename: "a.pdf", Body: gmail.PartBody{AttachmentID: "att-a", Size: 10}},
			{PartID: "3", MimeType: "application/pdf", Filename: "a.pdf", Body: gmail.PartBody{AttachmentID: "att-a2", Size: 10}},
			{PartID: "4", MimeType: "application/pdf", Body: gmail.PartBody{AttachmentID: "no-name"}},
			{PartID: "5", MimeType: "application/pdf", Filename: "inline.pdf", Body: gmail.PartBody{Data: enc("x")}},
		},
	}

	atts := ExtractAttachments(root)
	require.Len(t, atts, 3)

	assert.Equal(t, "logo.png", atts[0].Filename)
	assert.Equal(t, "1.0", atts[0].PartID)
	require.NotNil(t, atts[0].ContentID)
	assert.Equal(t, "logo123", *atts[0].ContentID)
	assert.Equal(t, int64(300), atts[0].Size)

	assert.Equal(t, "att-a", atts[1].GmailAttachmentID)
	assert.Nil(t, atts[1].ContentID)
	assert.Equal(t, "att-a2", atts[2].GmailAttachmentID, "duplicates are kept")
}

func TestMapLabelsToFlags(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		present bool
		want    Flags
	}{
		{
			name:    "absent labels array",
			present: false,
			want:    Flags{IsRead: true},
		},
		{
			name:    "unread inbox",
			labels:  []string{"INBOX", "UNREAD", "CATEGORY_PERSONAL"},
			present: true,
			want:    Flags{IsInbox: true},
		},
		{
			name:    "every flag label",
			labels:  []string{"STARRED", "IMPORTANT", "SPAM", "TRASH", "DRAFT", "SENT"},
			present: true,
			want:    Flags{IsRead: true, IsStarred: true, IsImportant: true, IsSpam: true, IsTrash: true, IsDraft: true, IsSent: true},
		},
		{
			name:    "archived has labels but no location",
			labels:  []string{"IMPORTANT"},
			present: true,
			want:    Flags{IsRead: true, IsImportant: true, IsArchived: true},
		},
		{
			name:    "empty labels array is archived",
			labels:  []string{},
			present: true,
			want:    Flags{IsRead: true, IsArchived: true},
		},
		{
			name:    "sent is not archived",
			labels:  []string{"SENT"},
			present: true,
			want:    Flags{IsRead: true, IsSent: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapLabelsToFlags(tt.labels, tt.present))
		})
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "Just now"},
		{90 * time.Second, "1 min ago"},
		{45 * time.Minute, "45 mins ago"},
		{2*time.Hour + 30*time.Minute, "3:30 PM"},
		{23 * time.Hour, "7:00 PM"},
		{30 * time.Hour, "Yesterday"},
		{3*24*time.Hour + time.Hour, "3 days ago"},
		{8 * 24 * time.Hour, "Mar 7"},
		{400 * 24 * time.Hour, "Feb 9"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRelativeTime(now.Add(-tt.ago), now))
		})
	}
}

func TestNormalizeMessage(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

	msg := &gmail.Message{
		ID:           "m1",
		ThreadID:     "t1",
		LabelIDs:     []string{"INBOX", "UNREAD", "STARRED"},
		HasLabels:    true,
		Snippet:      "Quarterly numbers",
		HistoryID:    98765,
		InternalDate: 1710500000000,
		SizeEstimate: 4096,
		Payload: &gmail.MimePart{
			MimeType: "multipart/mixed",
			Headers: []gmail.Header{
				{Name: "From", Value: `"Alice" <alice@example.com>`},
				{Name: "To", Value: "bob@example.com, carol@example.com"},
				{Name: "CC", Value: "dave@example.com"},
				{Name: "Reply-To", Value: "noreply@example.com"},
				{Name: "Subject", Value: "Q1 report"},
			},
			Parts: []*gmail.MimePart{
				leaf("text/plain", "see attached"),
				{PartID: "1", MimeType: "application/pdf", Filename: "q1.pdf", Body: gmail.PartBody{AttachmentID: "att-1", Size: 2048}},
			},
		},
	}

	email, atts := NormalizeMessage(msg, "user-1", now)

	assert.Equal(t, "user-1", email.UserID)
	assert.Equal(t, "m1", email.GmailID)
	assert.Equal(t, "t1", email.GmailThreadID)
	assert.Equal(t, "Q1 report", email.Subject)
	assert.Equal(t, "Quarterly numbers", email.Snippet)
	assert.Equal(t, "98765", email.HistoryID)
	assert.Equal(t, int64(1710500000000), email.InternalDate)
	assert.Equal(t, int64(4096), email.SizeEstimate)
	assert.Equal(t, "Alice", email.From)
	assert.Equal(t, "alice@example.com", email.FromEmail)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, email.To)
	assert.Equal(t, []string{"dave@example.com"}, email.Cc)
	assert.Nil(t, email.Bcc)
	require.NotNil(t, email.ReplyTo)
	assert.Equal(t, "noreply@example.com", *email.ReplyTo)
	require.NotNil(t, email.BodyPlain)
	assert.Equal(t, "see attached", *email.BodyPlain)
	assert.Nil(t, email.BodyHTML)
	assert.False(t, email.IsRead)
	assert.True(t, email.IsStarred)
	assert.True(t, email.IsInbox)
	assert.False(t, email.IsArchived)
	assert.True(t, email.HasAttachments)
	assert.Equal(t, now.UnixMilli(), email.LastSyncedAt)
	assert.Equal(t, models.SyncStatusSynced, email.SyncStatus)

	require.Len(t, atts, 1)
	assert.Equal(t, "q1.pdf", atts[0].Filename)
	assert.Empty(t, atts[0].EmailID)
}

func TestNormalizeMessageDefaults(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

	email, atts := NormalizeMessage(&gmail.Message{ID: "m2", ThreadID: "t2"}, "user-1", now)

	assert.Equal(t, NoSubject, email.Subject)
	assert.Equal(t, now.UnixMilli(), email.InternalDate)
	assert.Empty(t, email.HistoryID)
	assert.True(t, email.IsRead)
	assert.False(t, email.IsArchived)
	assert.NotNil(t, email.To)
	assert.Empty(t, email.To)
	assert.Empty(t, atts)
	assert.False(t, email.HasAttachments)
}
