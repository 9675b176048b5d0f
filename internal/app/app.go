// Package app wires the services and HTTP routes of the mail server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/corkcrm/michael-mail-2/internal/api"
	"github.com/corkcrm/michael-mail-2/internal/auth"
	"github.com/corkcrm/michael-mail-2/internal/config"
	"github.com/corkcrm/michael-mail-2/internal/crypto"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	"github.com/corkcrm/michael-mail-2/internal/outbound"
	"github.com/corkcrm/michael-mail-2/internal/token"
	ws "github.com/corkcrm/michael-mail-2/internal/websocket"
)

// App holds the long-lived services behind the HTTP API.
type App struct {
	cfg     *config.Config
	store   db.Store
	cipher  *crypto.TokenCipher
	tokens  *token.Manager
	queue   *outbound.Queue
	hub     *ws.Hub
	service *mailsync.Service
	authn   *auth.Authenticator
	seeder  api.MessageSeeder
	logger  *slog.Logger
}

// Option customizes an App.
type Option func(*App)

// WithMessageSeeder enables the test endpoints, which add messages through seeder.
func WithMessageSeeder(seeder api.MessageSeeder) Option {
	return func(a *App) { a.seeder = seeder }
}

// New builds every service from the config.
func New(cfg *config.Config, store db.Store, logger *slog.Logger, opts ...Option) (*App, error) {
	cipher, err := crypto.NewTokenCipher(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cipher: %w", err)
	}

	tokens := token.NewManager(token.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		TokenURL:     cfg.GoogleTokenURL,
		Timeout:      cfg.RequestTimeout,
	}, store, cipher, logger)

	client := gmail.NewClient(gmail.Options{
		Endpoint: cfg.GmailAPIEndpoint,
		Timeout:  cfg.RequestTimeout,
	})

	queue := outbound.NewQueue(outbound.Config{
		Size:    cfg.OutboundQueueSize,
		Workers: cfg.OutboundWorkers,
		Timeout: cfg.RequestTimeout,
	}, client, tokens, logger)

	hub := ws.NewHub(cfg.WSMaxConnsPerUser, logger)

	service := mailsync.NewService(mailsync.Config{
		PageSize:         cfg.SyncPageSize,
		FetchConcurrency: cfg.FetchConcurrency,
		PollInterval:     cfg.PollInterval,
	}, store, client, tokens, queue, hub, logger)

	a := &App{
		cfg:     cfg,
		store:   store,
		cipher:  cipher,
		tokens:  tokens,
		queue:   queue,
		hub:     hub,
		service: service,
		authn:   auth.NewAuthenticator(cfg.Environment == "test", logger),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Service returns the mail service.
func (a *App) Service() *mailsync.Service {
	return a.service
}

// Handler returns the HTTP routes of the API.
func (a *App) Handler(rootMessage string) http.Handler {
	authHandler := api.NewAuthHandler(a.store, a.cipher, a.logger)
	syncHandler := api.NewSyncHandler(a.store, a.service, a.logger)
	emailsHandler := api.NewEmailsHandler(a.store, a.service, a.logger)
	threadHandler := api.NewThreadHandler(a.store, a.logger)
	searchHandler := api.NewSearchHandler(a.store, a.logger)
	sendHandler := api.NewSendHandler(a.store, a.service, a.logger)
	wsHandler := api.NewWebSocketHandler(a.store, a.service, a.hub, a.authn, a.logger)

	protected := func(h http.HandlerFunc) http.Handler {
		return a.authn.RequireAuth(h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, rootMessage)
	})

	mux.Handle("GET /api/v1/auth/status", protected(authHandler.GetAuthStatus))
	mux.Handle("PUT /api/v1/auth/credentials", protected(authHandler.PutCredentials))
	mux.Handle("POST /api/v1/sync", protected(syncHandler.Sync))
	mux.Handle("GET /api/v1/sync/state", protected(syncHandler.GetSyncState))
	mux.Handle("GET /api/v1/emails", protected(emailsHandler.ListEmails))
	mux.Handle("GET /api/v1/emails/{id}", protected(emailsHandler.GetEmail))
	mux.Handle("POST /api/v1/emails/{id}/read", protected(emailsHandler.MarkRead))
	mux.Handle("POST /api/v1/emails/{id}/star", protected(emailsHandler.Star))
	mux.Handle("GET /api/v1/emails/{id}/attachments/{attachmentID}", protected(emailsHandler.DownloadAttachment))
	mux.Handle("GET /api/v1/threads/{threadID}", protected(threadHandler.GetThread))
	mux.Handle("GET /api/v1/search", protected(searchHandler.Search))
	mux.Handle("POST /api/v1/send", protected(sendHandler.Send))
	// The WebSocket handler authenticates on its own, browsers can't set
	// headers on WebSocket connections.
	mux.HandleFunc("GET /api/v1/ws", wsHandler.Handle)

	if a.seeder != nil && a.cfg.Environment == "test" {
		testHandler := api.NewTestHandler(a.store, a.service, a.seeder, a.logger)
		mux.Handle("POST /test/add-message", protected(testHandler.AddMessage))
	}

	return mux
}

// Shutdown drains the outbound queue and closes every WebSocket.
func (a *App) Shutdown(ctx context.Context) error {
	a.hub.CloseAll()
	if err := a.queue.Close(ctx); err != nil && !errors.Is(err, outbound.ErrQueueClosed) {
		return err
	}
	stats := a.queue.Stats()
	a.logger.Info("Outbound queue drained",
		"succeeded", stats.Succeeded, "failed", stats.Failed, "dropped", stats.Dropped)
	return nil
}
