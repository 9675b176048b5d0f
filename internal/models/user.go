package models

import (
	"time"
)

// User represents a mail user.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OAuthCredential holds the user's Google tokens as stored (encrypted).
// TokenExpiresAt is in epoch seconds.
type OAuthCredential struct {
	UserID                string `json:"-"`
	Email                 string `json:"-"`
	EncryptedAccessToken  []byte `json:"-"`
	EncryptedRefreshToken []byte `json:"-"`
	TokenExpiresAt        int64  `json:"-"`
}

// CredentialsRequest is the payload the auth provider integration posts
// after a Google sign-in.
type CredentialsRequest struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	TokenExpiresAt int64  `json:"token_expires_at"`
}

// AuthStatusResponse reports whether the user is signed in and Gmail is linked.
type AuthStatusResponse struct {
	IsAuthenticated bool `json:"isAuthenticated"`
	HasGmailAccess  bool `json:"hasGmailAccess"`
}

// SyncRequest is the body of POST /api/v1/sync.
type SyncRequest struct {
	FullSync bool `json:"full_sync"`
}

// SendRequest is the body of POST /api/v1/send.
type SendRequest struct {
	To      string `json:"to"`
	Cc      string `json:"cc,omitempty"`
	Bcc     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ReadRequest is the body of POST /api/v1/emails/{id}/read.
type ReadRequest struct {
	IsRead bool `json:"is_read"`
}

// StarRequest is the body of POST /api/v1/emails/{id}/star.
type StarRequest struct {
	IsStarred bool `json:"is_starred"`
}
