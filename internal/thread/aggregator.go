// Package thread computes per-thread aggregates from member emails.
package thread

import (
	"sort"

	"github.com/corkcrm/michael-mail-2/internal/models"
)

// Aggregator groups emails by thread within one sync batch. It is not safe
// for concurrent use.
type Aggregator struct {
	userID  string
	order   []string
	batches map[string]map[string]*models.Email
}

// NewAggregator creates an empty aggregator for one user.
func NewAggregator(userID string) *Aggregator {
	return &Aggregator{
		userID:  userID,
		batches: make(map[string]map[string]*models.Email),
	}
}

// Add records an email of the batch. A later email with the same gmail id
// replaces an earlier one.
func (a *Aggregator) Add(email *models.Email) {
	members, ok := a.batches[email.GmailThreadID]
	if !ok {
		members = make(map[string]*models.Email)
		a.batches[email.GmailThreadID] = members
		a.order = append(a.order, email.GmailThreadID)
	}
	members[email.GmailID] = email
}

// ThreadIDs returns the touched thread ids in first-seen order.
func (a *Aggregator) ThreadIDs() []string {
	return append([]string(nil), a.order...)
}

// Build merges the batch view of a thread with the members already stored
// (batch wins on gmail id) and computes the aggregate over the union.
func (a *Aggregator) Build(gmailThreadID string, stored []*models.Email) *models.Thread {
	merged := make(map[string]*models.Email, len(stored))
	for _, e := range stored {
		merged[e.GmailID] = e
	}
	for id, e := range a.batches[gmailThreadID] {
		merged[id] = e
	}

	members := make([]*models.Email, 0, len(merged))
	for _, e := range merged {
		members = append(members, e)
	}

	t := Compute(members)
	t.UserID = a.userID
	t.GmailThreadID = gmailThreadID
	return t
}

// Compute derives the thread aggregate from its full member set: the newest
// member supplies subject and snippet, read is the AND of member flags and
// has-attachments the OR. Participants are the distinct sender and recipient
// addresses in first-seen order, oldest member first.
func Compute(members []*models.Email) *models.Thread {
	sorted := append([]*models.Email(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].InternalDate != sorted[j].InternalDate {
			return sorted[i].InternalDate < sorted[j].InternalDate
		}
		return sorted[i].GmailID < sorted[j].GmailID
	})

	t := &models.Thread{
		MessageCount:      len(sorted),
		IsRead:            true,
		ParticipantEmails: []string{},
	}

	seen := make(map[string]bool)
	addParticipant := func(addr string) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		t.ParticipantEmails = append(t.ParticipantEmails, addr)
	}

	for _, e := range sorted {
		if e.InternalDate >= t.LastMessageDate {
			t.LastMessageDate = e.InternalDate
			t.Subject = e.Subject
			t.Snippet = e.Snippet
		}
		t.IsRead = t.IsRead && e.IsRead
		t.HasAttachments = t.HasAttachments || e.HasAttachments

		addParticipant(e.FromEmail)
		for _, addr := range e.To {
			addParticipant(addr)
		}
		for _, addr := range e.Cc {
			addParticipant(addr)
		}
	}

	return t
}
