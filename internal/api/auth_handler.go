package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/corkcrm/michael-mail-2/internal/crypto"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/models"
)

// AuthHandler reports sign-in state and stores the Google tokens the
// upstream auth provider obtained.
type AuthHandler struct {
	store  db.Store
	cipher *crypto.TokenCipher
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(store db.Store, cipher *crypto.TokenCipher, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: store, cipher: cipher, logger: logger.With("handler", "auth")}
}

// GetAuthStatus reports whether Gmail tokens are stored for the user.
func (h *AuthHandler) GetAuthStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	hasGmailAccess := true
	if _, err := h.store.GetCredentials(ctx, userID); err != nil {
		if !errors.Is(err, db.ErrCredentialsNotFound) {
			h.logger.Error("Failed to check credentials", "user_id", userID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		hasGmailAccess = false
	}

	WriteJSONResponse(w, models.AuthStatusResponse{
		IsAuthenticated: true,
		HasGmailAccess:  hasGmailAccess,
	}, h.logger)
}

// PutCredentials encrypts and stores the user's Google tokens. An omitted
// refresh token keeps the stored one.
func (h *AuthHandler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	var req models.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.AccessToken == "" && req.RefreshToken == "" {
		http.Error(w, "access_token or refresh_token is required", http.StatusBadRequest)
		return
	}

	encAccess, err := h.cipher.SealOptional(req.AccessToken)
	if err != nil {
		h.logger.Error("Failed to encrypt access token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	encRefresh, err := h.cipher.SealOptional(req.RefreshToken)
	if err != nil {
		h.logger.Error("Failed to encrypt refresh token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	err = h.store.SaveCredentials(ctx, &models.OAuthCredential{
		UserID:                userID,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		TokenExpiresAt:        req.TokenExpiresAt,
	})
	if err != nil {
		h.logger.Error("Failed to save credentials", "user_id", userID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Stored Google credentials", "user_id", userID, "has_refresh_token", encRefresh != nil)
	w.WriteHeader(http.StatusNoContent)
}
