package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/app"
	"github.com/corkcrm/michael-mail-2/internal/config"
	"github.com/corkcrm/michael-mail-2/internal/crypto"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/gmail/gmailfake"
	"github.com/corkcrm/michael-mail-2/internal/logging"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/corkcrm/michael-mail-2/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testEmail         = "test@example.com"
	testEncryptionKey = "dGVzdC1rZXktMTIzNDU2Nzg5MDEyMzQ1Njc4OTAxMjM="
)

func main() {
	ctx := context.Background()

	fake := gmailfake.NewServer()
	defer fake.Close()

	if err := setupTestEnvironment(fake); err != nil {
		log.Fatalf("Failed to setup test environment: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	postgresContainer, connStr, err := startPostgres(ctx, logger)
	if err != nil {
		log.Fatalf("Failed to start Postgres: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			logger.Warn("Failed to terminate Postgres container", "error", err)
		}
	}()

	pool, err := setupDatabase(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to setup database: %v", err)
	}
	defer pool.Close()

	seedTestData(fake)

	store := db.NewStore(pool)
	application, err := app.New(cfg, store, logger, app.WithMessageSeeder(fake))
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	if err := setupTestUser(ctx, store, cfg, application); err != nil {
		log.Fatalf("Failed to setup test user: %v", err)
	}

	if err := startHTTPServer(cfg, application, fake, logger); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// setupTestEnvironment points the config at the fake Gmail server.
func setupTestEnvironment(fake *gmailfake.Server) error {
	vars := map[string]string{
		"MAIL_ENV":                   "test",
		"MAIL_ENCRYPTION_KEY_BASE64": testEncryptionKey,
		"MAIL_DB_PASSWORD":           "mail",
		"GOOGLE_TOKEN_URL":           fake.TokenURL(),
		"GMAIL_API_ENDPOINT":         fake.Endpoint(),
	}
	for key, value := range vars {
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// startPostgres starts a test Postgres database using testcontainers.
func startPostgres(ctx context.Context, logger *slog.Logger) (testcontainers.Container, string, error) {
	logger.Info("Starting test Postgres database")
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mail_test"),
		postgres.WithUsername("mail"),
		postgres.WithPassword("mail"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get connection string: %w", err)
	}

	return postgresContainer, connStr, nil
}

// setupDatabase creates a connection pool and runs migrations.
func setupDatabase(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pool, nil
}

// seedTestData fills the fake mailbox with the messages the E2E suite expects.
func seedTestData(fake *gmailfake.Server) {
	now := time.Now()
	messages := []gmailfake.MessageSpec{
		{
			ID:      "msg1",
			From:    "Sender <sender@example.com>",
			To:      testEmail,
			Subject: "Welcome to Mail",
			Text:    "This is a test message.",
			Date:    now.Add(-2 * time.Hour),
			Labels:  []string{"INBOX"},
		},
		{
			ID:      "msg2",
			From:    "Colleague <colleague@example.com>",
			To:      testEmail,
			Subject: "Meeting Tomorrow",
			Text:    "Don't forget about the meeting tomorrow at 2 PM.",
			Date:    now.Add(-time.Hour),
			Labels:  []string{"INBOX", "UNREAD", "IMPORTANT"},
		},
		{
			ID:      "msg3",
			From:    "Reports <reports@example.com>",
			To:      testEmail,
			Subject: "Special Report Q3",
			Text:    "Here is the Q3 report you requested.",
			Date:    now,
			Labels:  []string{"INBOX", "UNREAD"},
			Attachments: []gmailfake.AttachmentSpec{
				{Filename: "q3.pdf", MimeType: "application/pdf", Size: 2048},
			},
		},
	}
	for _, seed := range messages {
		fake.AddMessage(seed.Build())
	}
}

// setupTestUser links Gmail for the test user and runs the first sync.
func setupTestUser(ctx context.Context, store db.Store, cfg *config.Config, application *app.App) error {
	userID, err := store.GetOrCreateUser(ctx, testEmail)
	if err != nil {
		return fmt.Errorf("failed to get or create user: %w", err)
	}

	cipher, err := crypto.NewTokenCipher(cfg.EncryptionKeyBase64)
	if err != nil {
		return fmt.Errorf("failed to create token cipher: %w", err)
	}
	access, err := cipher.Seal("test-access-token")
	if err != nil {
		return err
	}
	refresh, err := cipher.Seal("test-refresh-token")
	if err != nil {
		return err
	}

	err = store.SaveCredentials(ctx, &models.OAuthCredential{
		UserID:                userID,
		EncryptedAccessToken:  access,
		EncryptedRefreshToken: refresh,
		TokenExpiresAt:        time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	result, err := application.Service().SyncEmails(ctx, userID, false)
	if err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("initial sync failed: %s", result.Error)
	}
	return nil
}

// startHTTPServer starts the HTTP server and waits for shutdown signals.
func startHTTPServer(cfg *config.Config, application *app.App, fake *gmailfake.Server, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Handler("Mail Test Server is running"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Mail test server starting", "address", server.Addr, "gmail_fake", fake.URL())
	logger.Info("Server ready for E2E tests, press Ctrl+C to stop", "token", "email:"+testEmail)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down", "signal", sig.String())
	case err := <-serverErr:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
	return application.Shutdown(ctx)
}
