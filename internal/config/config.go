// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/insightpanel/internal/logging"
)

// minSecretLength mirrors the token store's minimum accepted secret length.
const minSecretLength = 16

// ErrSecretKeyMissing is returned by Load when INSIGHTPANEL_SECRET_KEY is unset.
// There is no built-in fallback secret.
var ErrSecretKeyMissing = errors.New("INSIGHTPANEL_SECRET_KEY is required to encrypt the token store")

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SecretKey              string
	DataDir                string
	DBPath                 string
	ListenAddr             string
	PollInterval           time.Duration
	AdminUser              string
	AdminPass              string
	MetaAppID              string
	MetaAppSecret          string
	GraphVersion           string
	GraphRequestsPerSecond float64
	LogLevel               slog.Level
}

// TokenFilePath returns the location of the encrypted token container.
func (c *Config) TokenFilePath() string {
	return filepath.Join(c.DataDir, "tokens.enc")
}

// BasicAuthEnabled returns true when both admin username and password are set.
func (c *Config) BasicAuthEnabled() bool {
	return c.AdminUser != "" && c.AdminPass != ""
}

// CanExchangeTokens returns true when the Meta app credentials needed for
// short-to-long-lived token exchange are configured.
func (c *Config) CanExchangeTokens() bool {
	return c.MetaAppID != "" && c.MetaAppSecret != ""
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory if one exists (existing variables win).
// INSIGHTPANEL_SECRET_KEY is required and must be at least 16 bytes.
// Optional variables with defaults: INSIGHTPANEL_DATA_DIR (data),
// INSIGHTPANEL_DB_PATH (<data dir>/insightpanel.db),
// INSIGHTPANEL_LISTEN_ADDR (127.0.0.1:3000), INSIGHTPANEL_POLL_INTERVAL (1h,
// 0 disables), INSIGHTPANEL_GRAPH_VERSION (v16.0),
// INSIGHTPANEL_GRAPH_RPS (5), INSIGHTPANEL_LOG_LEVEL (info).
func Load() (*Config, error) {
	_ = godotenv.Load()

	secret := os.Getenv("INSIGHTPANEL_SECRET_KEY")
	if secret == "" {
		return nil, ErrSecretKeyMissing
	}
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("INSIGHTPANEL_SECRET_KEY must be at least %d bytes, got %d", minSecretLength, len(secret))
	}

	dataDir := "data"
	if v, ok := os.LookupEnv("INSIGHTPANEL_DATA_DIR"); ok && v != "" {
		dataDir = v
	}

	dbPath := filepath.Join(dataDir, "insightpanel.db")
	if v, ok := os.LookupEnv("INSIGHTPANEL_DB_PATH"); ok && v != "" {
		dbPath = v
	}

	listenAddr := "127.0.0.1:3000"
	if v, ok := os.LookupEnv("INSIGHTPANEL_LISTEN_ADDR"); ok && v != "" {
		listenAddr = v
	}

	pollInterval := time.Hour
	if v, ok := os.LookupEnv("INSIGHTPANEL_POLL_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("INSIGHTPANEL_POLL_INTERVAL has invalid duration %q: %w", v, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("INSIGHTPANEL_POLL_INTERVAL must not be negative, got %s", parsed)
		}
		pollInterval = parsed
	}

	graphVersion := "v16.0"
	if v, ok := os.LookupEnv("INSIGHTPANEL_GRAPH_VERSION"); ok && v != "" {
		graphVersion = strings.Trim(v, "/")
	}

	rps := 5.0
	if v, ok := os.LookupEnv("INSIGHTPANEL_GRAPH_RPS"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("INSIGHTPANEL_GRAPH_RPS must be a positive number, got %q", v)
		}
		rps = parsed
	}

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("INSIGHTPANEL_LOG_LEVEL"); ok {
		parsed, err := logging.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("INSIGHTPANEL_LOG_LEVEL: %w", err)
		}
		logLevel = parsed
	}

	return &Config{
		SecretKey:              secret,
		DataDir:                dataDir,
		DBPath:                 dbPath,
		ListenAddr:             listenAddr,
		PollInterval:           pollInterval,
		AdminUser:              os.Getenv("INSIGHTPANEL_ADMIN_USER"),
		AdminPass:              os.Getenv("INSIGHTPANEL_ADMIN_PASS"),
		MetaAppID:              os.Getenv("INSIGHTPANEL_META_APP_ID"),
		MetaAppSecret:          os.Getenv("INSIGHTPANEL_META_APP_SECRET"),
		GraphVersion:           graphVersion,
		GraphRequestsPerSecond: rps,
		LogLevel:               logLevel,
	}, nil
}
