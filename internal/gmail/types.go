package gmail

import "strings"

// Message is a provider message as returned by users.messages.get with
// format=full.
type Message struct {
	ID       string
	ThreadID string
	// LabelIDs is only meaningful when HasLabels is true. Gmail omits the
	// labelIds array entirely for some messages.
	LabelIDs     []string
	HasLabels    bool
	Snippet      string
	HistoryID    uint64
	InternalDate int64
	SizeEstimate int64
	Payload      *MimePart
}

// MimePart is one node of a message's MIME tree.
type MimePart struct {
	PartID   string
	MimeType string
	Filename string
	Headers  []Header
	Body     PartBody
	Parts    []*MimePart
}

// Header returns the first header value with the given name, matched case
// insensitively, or "" if absent.
func (p *MimePart) Header(name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Header is a single MIME header.
type Header struct {
	Name  string
	Value string
}

// PartBody carries inline data or a reference to an attachment.
// Data is base64url encoded, exactly as sent by Gmail.
type PartBody struct {
	Data         string
	AttachmentID string
	Size         int64
}

// ListResult is one page of message ids.
type ListResult struct {
	Messages           []MessageRef
	NextPageToken      string
	ResultSizeEstimate int64
}

// MessageRef identifies a message in a listing.
type MessageRef struct {
	ID       string
	ThreadID string
}
