package gmailfake

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

// MessageSpec describes a message to seed into the fake. Build turns it into
// the shape users.messages.get returns with format=full.
type MessageSpec struct {
	ID        string
	ThreadID  string
	From      string
	To        string
	Cc        string
	ReplyTo   string
	Subject   string
	Text      string
	HTML      string
	Date      time.Time
	Labels    []string
	HistoryID uint64
	// NoLabels omits the labelIds array entirely.
	NoLabels    bool
	Attachments []AttachmentSpec
}

// AttachmentSpec describes one attachment part.
type AttachmentSpec struct {
	Filename  string
	MimeType  string
	Size      int64
	ContentID string
}

// Build returns the provider representation of the message.
func (m MessageSpec) Build() *gmailapi.Message {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	historyID := m.HistoryID
	if historyID == 0 {
		historyID = uint64(date.Unix())
	}
	threadID := m.ThreadID
	if threadID == "" {
		threadID = m.ID
	}

	headers := []*gmailapi.MessagePartHeader{
		{Name: "From", Value: m.From},
		{Name: "To", Value: m.To},
		{Name: "Subject", Value: m.Subject},
		{Name: "Date", Value: date.Format(time.RFC1123Z)},
	}
	if m.Cc != "" {
		headers = append(headers, &gmailapi.MessagePartHeader{Name: "Cc", Value: m.Cc})
	}
	if m.ReplyTo != "" {
		headers = append(headers, &gmailapi.MessagePartHeader{Name: "Reply-To", Value: m.ReplyTo})
	}

	var payload *gmailapi.MessagePart
	body := m.bodyPart()
	if len(m.Attachments) == 0 {
		payload = body
	} else {
		payload = &gmailapi.MessagePart{MimeType: "multipart/mixed", Body: &gmailapi.MessagePartBody{}}
		body = renumber(body, "0")
		payload.Parts = append(payload.Parts, body)
		for i, a := range m.Attachments {
			payload.Parts = append(payload.Parts, m.attachmentPart(a, strconv.Itoa(i+1)))
		}
	}
	payload.Headers = append(headers, payload.Headers...)

	msg := &gmailapi.Message{
		Id:           m.ID,
		ThreadId:     threadID,
		Snippet:      snippet(m.Text),
		HistoryId:    historyID,
		InternalDate: date.UnixMilli(),
		SizeEstimate: int64(len(m.Text) + len(m.HTML)),
		Payload:      payload,
	}
	if !m.NoLabels {
		msg.LabelIds = append([]string{}, m.Labels...)
	}
	return msg
}

func (m MessageSpec) bodyPart() *gmailapi.MessagePart {
	text := textPart("text/plain", m.Text)
	if m.HTML == "" {
		return text
	}
	html := textPart("text/html", m.HTML)
	text.PartId = "0"
	html.PartId = "1"
	return &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Body:     &gmailapi.MessagePartBody{},
		Parts:    []*gmailapi.MessagePart{text, html},
	}
}

func (m MessageSpec) attachmentPart(a AttachmentSpec, partID string) *gmailapi.MessagePart {
	mimeType := a.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	part := &gmailapi.MessagePart{
		PartId:   partID,
		MimeType: mimeType,
		Filename: a.Filename,
		Headers: []*gmailapi.MessagePartHeader{
			{Name: "Content-Disposition", Value: fmt.Sprintf("attachment; filename=%q", a.Filename)},
		},
		Body: &gmailapi.MessagePartBody{
			AttachmentId: fmt.Sprintf("att-%s-%s", m.ID, partID),
			Size:         a.Size,
		},
	}
	if a.ContentID != "" {
		part.Headers = append(part.Headers, &gmailapi.MessagePartHeader{Name: "Content-ID", Value: "<" + a.ContentID + ">"})
	}
	return part
}

func textPart(mimeType, content string) *gmailapi.MessagePart {
	return &gmailapi.MessagePart{
		MimeType: mimeType,
		Headers: []*gmailapi.MessagePartHeader{
			{Name: "Content-Type", Value: mimeType + "; charset=UTF-8"},
		},
		Body: &gmailapi.MessagePartBody{
			Data: base64.URLEncoding.EncodeToString([]byte(content)),
			Size: int64(len(content)),
		},
	}
}

// renumber prefixes the part ids of a subtree the way Gmail does for nested
// parts ("0", "0.0", "0.1").
func renumber(part *gmailapi.MessagePart, id string) *gmailapi.MessagePart {
	part.PartId = id
	for i, child := range part.Parts {
		renumber(child, id+"."+strconv.Itoa(i))
	}
	return part
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) > 100 {
		return string(runes[:100])
	}
	return string(runes)
}
