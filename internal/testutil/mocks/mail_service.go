// Package mocks holds testify mocks of service interfaces.
package mocks

import (
	"context"

	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/stretchr/testify/mock"
)

// MailService is a mock type for the mailsync.MailService type
type MailService struct {
	mock.Mock
}

// Ensure MailService implements mailsync.MailService.
var _ mailsync.MailService = (*MailService)(nil)

// SyncEmails provides a mock function with given fields: ctx, userID, continuePaging
func (m *MailService) SyncEmails(ctx context.Context, userID string, continuePaging bool) (*mailsync.SyncResult, error) {
	ret := m.Called(ctx, userID, continuePaging)

	var r0 *mailsync.SyncResult
	if rf, ok := ret.Get(0).(func(context.Context, string, bool) *mailsync.SyncResult); ok {
		r0 = rf(ctx, userID, continuePaging)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*mailsync.SyncResult)
	}

	return r0, ret.Error(1)
}

// MarkAsRead provides a mock function with given fields: ctx, userID, emailID, isRead
func (m *MailService) MarkAsRead(ctx context.Context, userID, emailID string, isRead bool) (*models.Email, error) {
	ret := m.Called(ctx, userID, emailID, isRead)

	var r0 *models.Email
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Email)
	}

	return r0, ret.Error(1)
}

// ToggleStar provides a mock function with given fields: ctx, userID, emailID, isStarred
func (m *MailService) ToggleStar(ctx context.Context, userID, emailID string, isStarred bool) (*models.Email, error) {
	ret := m.Called(ctx, userID, emailID, isStarred)

	var r0 *models.Email
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Email)
	}

	return r0, ret.Error(1)
}

// SendEmail provides a mock function with given fields: ctx, userID, req
func (m *MailService) SendEmail(ctx context.Context, userID string, req models.SendRequest) *mailsync.SendResult {
	ret := m.Called(ctx, userID, req)

	var r0 *mailsync.SendResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*mailsync.SendResult)
	}

	return r0
}

// DownloadAttachment provides a mock function with given fields: ctx, userID, emailID, attachmentID
func (m *MailService) DownloadAttachment(ctx context.Context, userID, emailID, attachmentID string) ([]byte, error) {
	ret := m.Called(ctx, userID, emailID, attachmentID)

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	return r0, ret.Error(1)
}

// StartPoller provides a mock function with given fields: ctx, userID, conns
func (m *MailService) StartPoller(ctx context.Context, userID string, conns mailsync.ConnectionCounter) {
	m.Called(ctx, userID, conns)
}

// NewMailService creates a new instance of MailService. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMailService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MailService {
	m := &MailService{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
