// Package dbtest provides an in-memory db.Store for service tests.
package dbtest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/google/uuid"
)

// Ensure Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store keeps every table in maps guarded by one mutex. Rows are copied on
// the way in and out so callers never share memory with the store.
type Store struct {
	mu          sync.Mutex
	users       map[string]*models.OAuthCredential
	usersByMail map[string]string
	emails      map[string]*models.Email
	attachments map[string]*models.Attachment
	threads     map[string]*models.Thread
	syncStates  map[string]*models.SyncState

	// UpsertThreadErr, when set, fails every thread upsert.
	UpsertThreadErr error
	// UpsertAttachmentErr, when set, fails every attachment upsert.
	UpsertAttachmentErr error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]*models.OAuthCredential),
		usersByMail: make(map[string]string),
		emails:      make(map[string]*models.Email),
		attachments: make(map[string]*models.Attachment),
		threads:     make(map[string]*models.Thread),
		syncStates:  make(map[string]*models.SyncState),
	}
}

func (s *Store) GetOrCreateUser(_ context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usersByMail[email]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.usersByMail[email] = id
	s.users[id] = &models.OAuthCredential{UserID: id, Email: email}
	return id, nil
}

func (s *Store) SaveCredentials(_ context.Context, cred *models.OAuthCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[cred.UserID]
	if !ok {
		return db.ErrCredentialsNotFound
	}
	u.EncryptedAccessToken = cloneBytes(cred.EncryptedAccessToken)
	if cred.EncryptedRefreshToken != nil {
		u.EncryptedRefreshToken = cloneBytes(cred.EncryptedRefreshToken)
	}
	u.TokenExpiresAt = cred.TokenExpiresAt
	return nil
}

func (s *Store) GetCredentials(_ context.Context, userID string) (*models.OAuthCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || (u.EncryptedAccessToken == nil && u.EncryptedRefreshToken == nil) {
		return nil, db.ErrCredentialsNotFound
	}
	c := *u
	c.EncryptedAccessToken = cloneBytes(u.EncryptedAccessToken)
	c.EncryptedRefreshToken = cloneBytes(u.EncryptedRefreshToken)
	return &c, nil
}

func (s *Store) UpdateAccessToken(_ context.Context, userID string, encryptedAccessToken []byte, expiresAt int64, encryptedRefreshToken []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return db.ErrCredentialsNotFound
	}
	u.EncryptedAccessToken = cloneBytes(encryptedAccessToken)
	u.TokenExpiresAt = expiresAt
	if encryptedRefreshToken != nil {
		u.EncryptedRefreshToken = cloneBytes(encryptedRefreshToken)
	}
	return nil
}

func (s *Store) UpsertEmail(_ context.Context, email *models.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.emails {
		if existing.UserID == email.UserID && existing.GmailID == email.GmailID {
			email.ID = existing.ID
			stored := copyEmail(email)
			if stored.BodyHTML == nil {
				stored.BodyHTML = existing.BodyHTML
			}
			if stored.BodyPlain == nil {
				stored.BodyPlain = existing.BodyPlain
			}
			s.emails[existing.ID] = stored
			return nil
		}
	}

	email.ID = uuid.NewString()
	s.emails[email.ID] = copyEmail(email)
	return nil
}

func (s *Store) GetEmailByID(_ context.Context, userID, emailID string) (*models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.emails[emailID]
	if !ok || e.UserID != userID {
		return nil, db.ErrEmailNotFound
	}
	return copyEmail(e), nil
}

func (s *Store) GetEmailByGmailID(_ context.Context, userID, gmailID string) (*models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.emails {
		if e.UserID == userID && e.GmailID == gmailID {
			return copyEmail(e), nil
		}
	}
	return nil, db.ErrEmailNotFound
}

func (s *Store) GetEmailsByThread(_ context.Context, userID, gmailThreadID string) ([]*models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filterLocked(userID, func(e *models.Email) bool { return e.GmailThreadID == gmailThreadID })
	sort.Slice(out, func(i, j int) bool {
		if out[i].InternalDate != out[j].InternalDate {
			return out[i].InternalDate < out[j].InternalDate
		}
		return out[i].GmailID < out[j].GmailID
	})
	return out, nil
}

// InView mirrors the SQL view filters of package db.
func InView(e *models.Email, view models.View) bool {
	switch view {
	case models.ViewInbox:
		return e.IsInbox && !e.IsSpam && !e.IsTrash
	case models.ViewSent:
		return e.IsSent && !e.IsTrash
	case models.ViewDrafts:
		return e.IsDraft && !e.IsTrash
	case models.ViewArchive:
		return e.IsArchived
	case models.ViewTrash:
		return e.IsTrash
	case models.ViewAll:
		return !e.IsSpam && !e.IsTrash
	}
	return false
}

func (s *Store) ListEmails(_ context.Context, userID string, view models.View, limit, offset int) ([]*models.Email, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.filterLocked(userID, func(e *models.Email) bool { return InView(e, view) })
	sortNewestFirst(matched)

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) SearchEmails(_ context.Context, userID, term string, limit int) ([]*models.Email, error) {
	if limit <= 0 {
		limit = db.DefaultSearchLimit
	}
	needle := strings.ToLower(term)

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.filterLocked(userID, func(e *models.Email) bool {
		if e.IsSpam || e.IsTrash {
			return false
		}
		for _, field := range []string{e.Subject, e.Snippet, e.From, e.FromEmail} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	})
	sortNewestFirst(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) SetEmailRead(_ context.Context, userID, emailID string, isRead bool) (*models.Email, error) {
	return s.update(userID, emailID, func(e *models.Email) { e.IsRead = isRead })
}

func (s *Store) SetEmailStarred(_ context.Context, userID, emailID string, isStarred bool) (*models.Email, error) {
	return s.update(userID, emailID, func(e *models.Email) { e.IsStarred = isStarred })
}

func (s *Store) UpsertAttachment(_ context.Context, att *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpsertAttachmentErr != nil {
		return s.UpsertAttachmentErr
	}

	for _, existing := range s.attachments {
		if existing.EmailID == att.EmailID && existing.PartID == att.PartID {
			att.ID = existing.ID
			c := *att
			s.attachments[existing.ID] = &c
			return nil
		}
	}

	att.ID = uuid.NewString()
	c := *att
	s.attachments[att.ID] = &c
	return nil
}

func (s *Store) GetAttachmentsForEmail(_ context.Context, emailID string) ([]*models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Attachment
	for _, a := range s.attachments {
		if a.EmailID == emailID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	return out, nil
}

func (s *Store) UpsertThread(_ context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpsertThreadErr != nil {
		return s.UpsertThreadErr
	}

	key := thread.UserID + "/" + thread.GmailThreadID
	if existing, ok := s.threads[key]; ok {
		thread.ID = existing.ID
	} else {
		thread.ID = uuid.NewString()
	}
	c := *thread
	c.ParticipantEmails = append([]string(nil), thread.ParticipantEmails...)
	c.Emails = nil
	s.threads[key] = &c
	return nil
}

func (s *Store) GetThread(_ context.Context, userID, gmailThreadID string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[userID+"/"+gmailThreadID]
	if !ok {
		return nil, db.ErrThreadNotFound
	}
	c := *t
	c.ParticipantEmails = append([]string(nil), t.ParticipantEmails...)
	return &c, nil
}

func (s *Store) GetSyncState(_ context.Context, userID string) (*models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.syncStates[userID]
	if !ok {
		return nil, db.ErrSyncStateNotFound
	}
	c := *st
	return &c, nil
}

func (s *Store) SaveSyncState(_ context.Context, state *models.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *state
	s.syncStates[state.UserID] = &c
	return nil
}

// EmailCount is the number of stored emails across all users.
func (s *Store) EmailCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.emails)
}

// AttachmentCount is the number of stored attachments across all users.
func (s *Store) AttachmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attachments)
}

func (s *Store) update(userID, emailID string, mutate func(*models.Email)) (*models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.emails[emailID]
	if !ok || e.UserID != userID {
		return nil, db.ErrEmailNotFound
	}
	mutate(e)
	return copyEmail(e), nil
}

func (s *Store) filterLocked(userID string, keep func(*models.Email) bool) []*models.Email {
	var out []*models.Email
	for _, e := range s.emails {
		if e.UserID == userID && keep(e) {
			out = append(out, copyEmail(e))
		}
	}
	return out
}

func sortNewestFirst(emails []*models.Email) {
	sort.Slice(emails, func(i, j int) bool {
		if emails[i].InternalDate != emails[j].InternalDate {
			return emails[i].InternalDate > emails[j].InternalDate
		}
		return emails[i].GmailID > emails[j].GmailID
	})
}

func copyEmail(e *models.Email) *models.Email {
	c := *e
	c.To = append([]string(nil), e.To...)
	c.Cc = append([]string(nil), e.Cc...)
	c.Bcc = append([]string(nil), e.Bcc...)
	c.Attachments = nil
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
