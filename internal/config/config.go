package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string `env:"MAIL_ENV" envDefault:"development"`
	EncryptionKeyBase64 string `env:"MAIL_ENCRYPTION_KEY_BASE64"`

	DBHost     string `env:"MAIL_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"MAIL_DB_PORT" envDefault:"5432"`
	DBUsername string `env:"MAIL_DB_USER" envDefault:"mail"`
	DBPassword string `env:"MAIL_DB_PASSWORD"`
	DBName     string `env:"MAIL_DB_NAME" envDefault:"mail"`
	DBSSLMode  string `env:"MAIL_DB_SSLMODE" envDefault:"disable"`

	Port     string `env:"PORT" envDefault:"8080"`
	Timezone string `env:"TZ" envDefault:"UTC"`

	// Google OAuth client used to refresh access tokens.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleTokenURL     string `env:"GOOGLE_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	// GmailAPIEndpoint overrides the Gmail API base URL. Empty means Google.
	GmailAPIEndpoint string `env:"GMAIL_API_ENDPOINT"`

	RequestTimeout    time.Duration `env:"MAIL_REQUEST_TIMEOUT" envDefault:"30s"`
	SyncPageSize      int64         `env:"MAIL_SYNC_PAGE_SIZE" envDefault:"50"`
	FetchConcurrency  int           `env:"MAIL_FETCH_CONCURRENCY" envDefault:"10"`
	OutboundQueueSize int           `env:"MAIL_OUTBOUND_QUEUE_SIZE" envDefault:"256"`
	OutboundWorkers   int           `env:"MAIL_OUTBOUND_WORKERS" envDefault:"2"`
	PollInterval      time.Duration `env:"MAIL_POLL_INTERVAL" envDefault:"2m"`
	WSMaxConnsPerUser int           `env:"MAIL_WS_MAX_CONNECTIONS" envDefault:"10"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"text"`
}

func NewConfig() (*Config, error) {
	if environment := os.Getenv("MAIL_ENV"); environment == "" || environment == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("MAIL_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("MAIL_DB_PASSWORD is required")
	}

	if c.Environment != "test" {
		if c.GoogleClientID == "" {
			return fmt.Errorf("GOOGLE_CLIENT_ID is required")
		}
		if c.GoogleClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
		}
	}

	if c.SyncPageSize < 1 || c.SyncPageSize > 500 {
		return fmt.Errorf("MAIL_SYNC_PAGE_SIZE must be between 1 and 500, got %d", c.SyncPageSize)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("MAIL_REQUEST_TIMEOUT must be positive")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}
