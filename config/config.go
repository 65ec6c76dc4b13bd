package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// R2 holds Cloudflare R2 credentials for season archives.
type R2 struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled reports whether every R2 setting is present.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

type Config struct {
	DBDriver    string
	DatabaseURL string

	HTTPAddr       string
	GatewayToken   string
	AdminID        int64
	AllowedOrigins string

	CatalogFile     string
	NATSURL         string
	SeasonResetCron string
	ArchiveDir      string
	R2              R2

	ProfileSyncURL   string
	SyncServiceToken string

	LogLevel string
	LogDev   bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		DBDriver:        getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL:     getEnv("DATABASE_URL", "ledger.db"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":5200"),
		GatewayToken:    os.Getenv("GATEWAY_TOKEN"),
		AllowedOrigins:  os.Getenv("ALLOWED_ORIGINS"),
		CatalogFile:     os.Getenv("CATALOG_FILE"),
		NATSURL:         os.Getenv("NATS_URL"),
		SeasonResetCron: os.Getenv("SEASON_RESET_CRON"),
		ArchiveDir:      getEnv("ARCHIVE_DIR", "archives"),
		R2: R2{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
		},
		ProfileSyncURL:   os.Getenv("PROFILE_SYNC_URL"),
		SyncServiceToken: os.Getenv("SYNC_SERVICE_TOKEN"),
		LogLevel:         strings.ToLower(os.Getenv("LOG_LEVEL")),
		LogDev:           os.Getenv("LOG_DEV") == "1",
	}

	if raw := os.Getenv("ADMIN_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_ID must be a numeric user id: %w", err)
		}
		cfg.AdminID = id
	}

	switch cfg.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be postgres, sqlite or memory, got %q", cfg.DBDriver)
	}
	return cfg, nil
}

// ValidateServe checks the settings only the HTTP server needs.
func (c *Config) ValidateServe() error {
	if c.GatewayToken == "" {
		return fmt.Errorf("GATEWAY_TOKEN is not set, service cannot authenticate the gateway")
	}
	if c.ProfileSyncURL != "" && c.SyncServiceToken == "" {
		return fmt.Errorf("SYNC_SERVICE_TOKEN is required when PROFILE_SYNC_URL is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
