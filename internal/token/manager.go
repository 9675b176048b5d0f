package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/crypto"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrAuthExpired means the user has to sign in with Google again.
var ErrAuthExpired = errors.New("gmail access expired, please sign in again")

// RefreshMargin is how long before expiry an access token is refreshed.
const RefreshMargin = 300 * time.Second

// CredentialStore loads and persists the user's OAuth tokens.
type CredentialStore interface {
	GetCredentials(ctx context.Context, userID string) (*models.OAuthCredential, error)
	UpdateAccessToken(ctx context.Context, userID string, encryptedAccessToken []byte, expiresAt int64, encryptedRefreshToken []byte) error
}

// Config holds the OAuth client used for refresh_token grants.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// Timeout bounds each refresh request. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Manager hands out valid Gmail access tokens.
type Manager struct {
	store      CredentialStore
	cipher     *crypto.TokenCipher
	oauth      *oauth2.Config
	httpClient *http.Client
	group      singleflight.Group
	logger     *slog.Logger
	now        func() time.Time
}

// NewManager creates a new token manager.
func NewManager(cfg Config, store CredentialStore, cipher *crypto.TokenCipher, logger *slog.Logger) *Manager {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Manager{
		store:  store,
		cipher: cipher,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		logger:     logger.With("component", "token"),
		now:        time.Now,
	}
}

// GetValidAccessToken returns the cached access token while it is valid for
// more than RefreshMargin, and refreshes it otherwise.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.loadCredentials(ctx, userID)
	if err != nil {
		return "", err
	}

	accessToken, err := m.cipher.OpenOptional(cred.EncryptedAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}

	if accessToken != "" && cred.TokenExpiresAt > m.now().Add(RefreshMargin).Unix() {
		return accessToken, nil
	}

	return m.ForceRefresh(ctx, userID)
}

// ForceRefresh exchanges the refresh token for a new access token regardless
// of the cached expiry. Concurrent refreshes for one user share a single
// request.
func (m *Manager) ForceRefresh(ctx context.Context, userID string) (string, error) {
	v, err, shared := m.group.Do(userID, func() (any, error) {
		return m.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("Shared in-flight token refresh", "user_id", userID)
	}
	return v.(string), nil
}

// Do runs fn with a valid access token. If Gmail rejects the token, Do forces
// one refresh and runs fn again. A second rejection is ErrAuthExpired.
func (m *Manager) Do(ctx context.Context, userID string, fn func(accessToken string) error) error {
	accessToken, err := m.GetValidAccessToken(ctx, userID)
	if err != nil {
		return err
	}

	err = fn(accessToken)
	if !errors.Is(err, gmail.ErrUnauthorized) {
		return err
	}

	m.logger.Info("Gmail rejected access token, refreshing", "user_id", userID)
	accessToken, err = m.ForceRefresh(ctx, userID)
	if err != nil {
		return err
	}

	err = fn(accessToken)
	if errors.Is(err, gmail.ErrUnauthorized) {
		return fmt.Errorf("%w: refreshed token rejected", ErrAuthExpired)
	}
	return err
}

func (m *Manager) loadCredentials(ctx context.Context, userID string) (*models.OAuthCredential, error) {
	cred, err := m.store.GetCredentials(ctx, userID)
	if errors.Is(err, db.ErrCredentialsNotFound) {
		return nil, fmt.Errorf("%w: no Google credentials stored", ErrAuthExpired)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return cred, nil
}

func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	cred, err := m.loadCredentials(ctx, userID)
	if err != nil {
		return "", err
	}

	refreshToken, err := m.cipher.OpenOptional(cred.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token", ErrAuthExpired)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		m.logger.Warn("Token refresh failed", "user_id", userID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	expiresAt := tok.Expiry.Unix()
	if tok.Expiry.IsZero() {
		expiresAt = m.now().Add(time.Hour).Unix()
	}

	encryptedAccess, err := m.cipher.Seal(tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var encryptedRefresh []byte
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		encryptedRefresh, err = m.cipher.Seal(tok.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	if err := m.store.UpdateAccessToken(ctx, userID, encryptedAccess, expiresAt, encryptedRefresh); err != nil {
		return "", fmt.Errorf("failed to save refreshed token: %w", err)
	}

	m.logger.Info("Refreshed access token", "user_id", userID, "expires_at", expiresAt)
	return tok.AccessToken, nil
}
