package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/app"
	"github.com/corkcrm/michael-mail-2/internal/config"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/logging"
	"github.com/corkcrm/michael-mail-2/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rootMessage = "Mail API is running"

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Connected to database")

	application, handler, err := NewServer(cfg, pool, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := serve(cfg, handler, application, logger); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// NewServer builds the services and returns the HTTP handler of the mail API.
func NewServer(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*app.App, http.Handler, error) {
	application, err := app.New(cfg, db.NewStore(pool), logger)
	if err != nil {
		return nil, nil, err
	}
	return application, application.Handler(rootMessage), nil
}

// serve runs the HTTP server until SIGINT or SIGTERM, then drains.
func serve(cfg *config.Config, handler http.Handler, application *app.App, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Mail backend server starting", "address", server.Addr, "environment", cfg.Environment)
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

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	return application.Shutdown(ctx)
}
