// Package transform turns provider messages into normalized email records.
// Everything here is pure: no I/O, no clocks, no globals that change.
package transform

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/models"
)

// NoSubject replaces an empty Subject header.
const NoSubject = "(no subject)"

// senderPattern accepts `"Name" <addr>`, `Name <addr>`, `<addr>` and a bare
// value.
var senderPattern = regexp.MustCompile(`^"?([^"<]*)"?\s*<?([^>]*)>?$`)

// ParseSender splits a From header into display name and address. Without an
// angle-bracket address the whole value is used for both. An empty display
// name falls back to the address.
func ParseSender(from string) (name, address string) {
	from = strings.TrimSpace(from)
	m := senderPattern.FindStringSubmatch(from)
	if m == nil {
		return from, from
	}

	name = strings.TrimSpace(m[1])
	address = strings.TrimSpace(m[2])
	if address == "" {
		address = from
	}
	if name == "" {
		name = address
	}
	return name, address
}

// ParseAddressList splits a comma-separated header into trimmed, non-empty
// entries.
func ParseAddressList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// DecodeBase64URL decodes Gmail body data. Padding is optional and the
// standard alphabet is accepted too.
func DecodeBase64URL(data string) (string, error) {
	data = strings.TrimRight(data, "=")
	data = strings.NewReplacer("+", "-", "/", "_", "\r", "", "\n", "").Replace(data)

	raw, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("invalid base64url data: %w", err)
	}
	if !utf8.Valid(raw) {
		return strings.ToValidUTF8(string(raw), "�"), nil
	}
	return string(raw), nil
}

// Body is the renderable content of a message.
type Body struct {
	HTML      string
	PlainText string
}

// ExtractBody walks the MIME tree depth first. The first text/html part with
// inline data supplies HTML and the first text/plain part supplies PlainText.
// Undecodable data yields "" for that field.
func ExtractBody(part *gmail.MimePart) Body {
	var body Body
	var haveHTML, havePlain bool

	var walk func(p *gmail.MimePart)
	walk = func(p *gmail.MimePart) {
		if p == nil || (haveHTML && havePlain) {
			return
		}

		if p.Body.Data != "" {
			switch mimeType(p.MimeType) {
			case "text/html":
				if !haveHTML {
					haveHTML = true
					body.HTML, _ = DecodeBase64URL(p.Body.Data)
				}
			case "text/plain":
				if !havePlain {
					havePlain = true
					body.PlainText, _ = DecodeBase64URL(p.Body.Data)
				}
			}
		}

		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)

	return body
}

// ExtractAttachments returns every part that has both an attachment id and a
// filename, depth first and left to right. EmailID is left empty.
func ExtractAttachments(part *gmail.MimePart) []*models.Attachment {
	var out []*models.Attachment

	var walk func(p *gmail.MimePart)
	walk = func(p *gmail.MimePart) {
		if p == nil {
			return
		}

		if p.Body.AttachmentID != "" && p.Filename != "" {
			att := &models.Attachment{
				PartID:            p.PartID,
				GmailAttachmentID: p.Body.AttachmentID,
				Filename:          p.Filename,
				MimeType:          p.MimeType,
				Size:              p.Body.Size,
			}
			if cid := strings.Trim(p.Header("Content-ID"), "<> "); cid != "" {
				att.ContentID = &cid
			}
			out = append(out, att)
		}

		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)

	return out
}

// Flags are the booleans derived from Gmail label ids.
type Flags struct {
	IsRead      bool
	IsStarred   bool
	IsImportant bool
	IsSpam      bool
	IsTrash     bool
	IsDraft     bool
	IsInbox     bool
	IsSent      bool
	IsArchived  bool
}

// MapLabelsToFlags derives flags from label ids. When the provider sent no
// labels array at all the message counts as read and nothing else.
func MapLabelsToFlags(labelIDs []string, present bool) Flags {
	if !present {
		return Flags{IsRead: true}
	}

	has := make(map[string]bool, len(labelIDs))
	for _, l := range labelIDs {
		has[l] = true
	}

	f := Flags{
		IsRead:      !has["UNREAD"],
		IsStarred:   has["STARRED"],
		IsImportant: has["IMPORTANT"],
		IsSpam:      has["SPAM"],
		IsTrash:     has["TRASH"],
		IsDraft:     has["DRAFT"],
		IsInbox:     has["INBOX"],
		IsSent:      has["SENT"],
	}
	f.IsArchived = !f.IsInbox && !f.IsSent && !f.IsDraft && !f.IsSpam && !f.IsTrash
	return f
}

// FormatRelativeTime renders t relative to now the way the mail list shows
// it: "Just now", "5 mins ago", "3:04 PM", "Yesterday", "3 days ago", "Jan 2".
func FormatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	hours := int(diff / time.Hour)
	days := int(diff / (24 * time.Hour))

	switch {
	case hours < 1:
		minutes := int(diff / time.Minute)
		if minutes < 1 {
			return "Just now"
		}
		if minutes == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", minutes)
	case hours < 24:
		return t.In(now.Location()).Format("3:04 PM")
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.In(now.Location()).Format("Jan 2")
	}
}

// NormalizeMessage builds the email record and attachment metadata for a
// fetched message. now stamps LastSyncedAt and stands in for a missing
// internal date.
func NormalizeMessage(msg *gmail.Message, userID string, now time.Time) (*models.Email, []*models.Attachment) {
	payload := msg.Payload
	if payload == nil {
		payload = &gmail.MimePart{}
	}

	fromName, fromEmail := ParseSender(payload.Header("From"))
	body := ExtractBody(payload)
	attachments := ExtractAttachments(payload)
	flags := MapLabelsToFlags(msg.LabelIDs, msg.HasLabels)

	subject := strings.TrimSpace(payload.Header("Subject"))
	if subject == "" {
		subject = NoSubject
	}

	internalDate := msg.InternalDate
	if internalDate == 0 {
		internalDate = now.UnixMilli()
	}

	var historyID string
	if msg.HistoryID != 0 {
		historyID = strconv.FormatUint(msg.HistoryID, 10)
	}

	email := &models.Email{
		UserID:         userID,
		GmailID:        msg.ID,
		GmailThreadID:  msg.ThreadID,
		Subject:        subject,
		Snippet:        msg.Snippet,
		InternalDate:   internalDate,
		HistoryID:      historyID,
		SizeEstimate:   msg.SizeEstimate,
		From:           fromName,
		FromEmail:      fromEmail,
		To:             ParseAddressList(payload.Header("To")),
		Cc:             ParseAddressList(payload.Header("Cc")),
		Bcc:            ParseAddressList(payload.Header("Bcc")),
		ReplyTo:        optional(strings.TrimSpace(payload.Header("Reply-To"))),
		BodyHTML:       optional(body.HTML),
		BodyPlain:      optional(body.PlainText),
		IsRead:         flags.IsRead,
		IsStarred:      flags.IsStarred,
		IsImportant:    flags.IsImportant,
		IsSpam:         flags.IsSpam,
		IsTrash:        flags.IsTrash,
		IsDraft:        flags.IsDraft,
		IsInbox:        flags.IsInbox,
		IsSent:         flags.IsSent,
		IsArchived:     flags.IsArchived,
		HasAttachments: len(attachments) > 0,
		LastSyncedAt:   now.UnixMilli(),
		SyncStatus:     models.SyncStatusSynced,
	}
	if email.To == nil {
		email.To = []string{}
	}

	return email, attachments
}

func mimeType(value string) string {
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
