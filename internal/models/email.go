package models

// SyncStatus values stored on emails and the per-user sync state.
const (
	SyncStatusSynced   = "synced"
	SyncStatusPartial  = "partial"
	SyncStatusComplete = "complete"
)

// Email is one normalized Gmail message owned by a user.
type Email struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	GmailID       string   `json:"gmail_id"`
	GmailThreadID string   `json:"gmail_thread_id"`
	Subject       string   `json:"subject"`
	Snippet       string   `json:"snippet"`
	InternalDate  int64    `json:"internal_date"`
	HistoryID     string   `json:"history_id"`
	SizeEstimate  int64    `json:"size_estimate"`
	From          string   `json:"from"`
	FromEmail     string   `json:"from_email"`
	To            []string `json:"to"`
	Cc            []string `json:"cc,omitempty"`
	Bcc           []string `json:"bcc,omitempty"`
	ReplyTo       *string  `json:"reply_to,omitempty"`
	BodyHTML      *string  `json:"body_html,omitempty"`
	BodyPlain     *string  `json:"body_plain,omitempty"`

	IsRead         bool `json:"is_read"`
	IsStarred      bool `json:"is_starred"`
	IsImportant    bool `json:"is_important"`
	IsSpam         bool `json:"is_spam"`
	IsTrash        bool `json:"is_trash"`
	IsDraft        bool `json:"is_draft"`
	IsInbox        bool `json:"is_inbox"`
	IsSent         bool `json:"is_sent"`
	IsArchived     bool `json:"is_archived"`
	HasAttachments bool `json:"has_attachments"`

	LastSyncedAt int64  `json:"last_synced_at"`
	SyncStatus   string `json:"sync_status"`

	// Time is the relative display time, filled in by list endpoints.
	Time        string        `json:"time,omitempty"`
	Attachments []*Attachment `json:"attachments,omitempty"`
}

// Attachment is the metadata of one attachment part of an email.
type Attachment struct {
	ID                string  `json:"id"`
	EmailID           string  `json:"email_id"`
	PartID            string  `json:"part_id"`
	GmailAttachmentID string  `json:"gmail_attachment_id"`
	Filename          string  `json:"filename"`
	MimeType          string  `json:"mime_type"`
	Size              int64   `json:"size"`
	ContentID         *string `json:"content_id,omitempty"`
}

// Thread is the per-user aggregate of all emails sharing a Gmail thread id.
type Thread struct {
	ID                string   `json:"id"`
	UserID            string   `json:"user_id"`
	GmailThreadID     string   `json:"gmail_thread_id"`
	Subject           string   `json:"subject"`
	Snippet           string   `json:"snippet"`
	LastMessageDate   int64    `json:"last_message_date"`
	MessageCount      int      `json:"message_count"`
	ParticipantEmails []string `json:"participant_emails"`
	IsRead            bool     `json:"is_read"`
	HasAttachments    bool     `json:"has_attachments"`
	Emails            []*Email `json:"emails,omitempty"`
}

// SyncState is the single per-user sync cursor.
type SyncState struct {
	UserID        string  `json:"user_id"`
	LastHistoryID string  `json:"last_history_id"`
	LastSyncTime  int64   `json:"last_sync_time"`
	NextPageToken *string `json:"next_page_token,omitempty"`
	SyncStatus    string  `json:"sync_status"`
}

// View selects which emails a listing returns.
type View string

const (
	ViewInbox   View = "inbox"
	ViewSent    View = "sent"
	ViewDrafts  View = "drafts"
	ViewArchive View = "archive"
	ViewTrash   View = "trash"
	ViewAll     View = "all"
)

// ParseView validates a view name. An empty name means the inbox.
func ParseView(name string) (View, bool) {
	switch View(name) {
	case "":
		return ViewInbox, true
	case ViewInbox, ViewSent, ViewDrafts, ViewArchive, ViewTrash, ViewAll:
		return View(name), true
	}
	return "", false
}

// EmailPage is one page of an email listing.
type EmailPage struct {
	Emails     []*Email `json:"emails"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
	HasNext    bool     `json:"has_next"`
	HasPrev    bool     `json:"has_prev"`
}

// NewEmailPage computes the pagination fields for a page of results.
func NewEmailPage(emails []*Email, totalCount, page, pageSize int) *EmailPage {
	if emails == nil {
		emails = []*Email{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}
	return &EmailPage{
		Emails:     emails,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// SearchResponse is the result of a search request.
type SearchResponse struct {
	Query  string   `json:"query"`
	Emails []*Email `json:"emails"`
}
