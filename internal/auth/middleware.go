package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
)

// ErrNotAuthenticated means the request carries no signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated, please sign in")

type contextKey string

// UserEmailKey is the context key used to store the authenticated user's email.
const UserEmailKey contextKey = "user_email"

// ProxyEmailHeader carries the address the upstream auth proxy verified.
const ProxyEmailHeader = "X-Auth-Request-Email"

// testTokenPrefix marks test-mode tokens of the form "email:user@example.com".
const testTokenPrefix = "email:"

// Authenticator resolves the user behind a request. Session issuance happens
// upstream: the proxy validates the session and forwards the user's address.
type Authenticator struct {
	testMode bool
	logger   *slog.Logger
}

// NewAuthenticator creates an authenticator. In test mode bearer tokens of
// the form "email:<address>" are accepted without a proxy header.
func NewAuthenticator(testMode bool, logger *slog.Logger) *Authenticator {
	return &Authenticator{testMode: testMode, logger: logger.With("component", "auth")}
}

// RequireAuth middleware checks for a valid bearer token in the Authorization header.
// It stores the user's email in the request context for downstream handlers.
// Returns 401 Unauthorized if authentication fails.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := ExtractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			a.logger.Debug("Missing or malformed Authorization header", "path", r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userEmail, err := a.Authenticate(r, token)
		if err != nil {
			a.logger.Info("Token validation failed", "path", r.URL.Path, "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserEmail(r.Context(), userEmail)))
	})
}

// Authenticate returns the email of the user the token belongs to.
func (a *Authenticator) Authenticate(r *http.Request, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: token is empty", ErrNotAuthenticated)
	}

	if a.testMode && strings.HasPrefix(token, testTokenPrefix) {
		return validAddress(strings.TrimPrefix(token, testTokenPrefix))
	}

	if proxied := r.Header.Get(ProxyEmailHeader); proxied != "" {
		return validAddress(proxied)
	}

	return "", fmt.Errorf("%w: no verified user for token", ErrNotAuthenticated)
}

func validAddress(value string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("%w: invalid email %q", ErrNotAuthenticated, value)
	}
	return strings.ToLower(addr.Address), nil
}

// ExtractBearerToken parses "Bearer <token>" (RFC 7235). The scheme is
// case-insensitive.
func ExtractBearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	return token, token != ""
}

// WithUserEmail returns a context carrying the authenticated email.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, UserEmailKey, email)
}

// GetUserEmailFromContext returns the user email from the context.
func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok && email != ""
}
