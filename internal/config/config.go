package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported persistence backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
)

// EnvProduction hides error internals from API responses.
const EnvProduction = "production"

// Config holds everything the binaries need to wire the ingestion service.
type Config struct {
	Port     string
	Env      string
	LogLevel string
	// LogFormat is "console" or "json".
	LogFormat string

	Store    StoreConfig
	Receipts ReceiptConfig
	BankLink BankLinkConfig
	Notion   NotionConfig

	// RulesPath overrides the embedded categorization rule table.
	RulesPath string
	// CategorizeUploads runs the categorization engine on CSV rows as well.
	CategorizeUploads bool
}

// StoreConfig selects and configures the transaction backend.
type StoreConfig struct {
	Backend         string
	DSN             string
	BigQueryProject string
	BigQueryDataset string
	Timeout         time.Duration
	// Cooldown is how long the store stays memory-only after the backend
	// times out or keeps failing.
	Cooldown        time.Duration
}

// ReceiptConfig configures image storage and OCR.
type ReceiptConfig struct {
	Bucket string
	Model  string
}

// BankLinkConfig configures the aggregator client and the sync worker.
type BankLinkConfig struct {
	BaseURL     string
	ClientID    string
	Secret      string
	AccessToken string
	Interval    time.Duration
}

// Enabled reports whether enough credentials are present to talk to the aggregator.
func (b BankLinkConfig) Enabled() bool {
	return b.BaseURL != "" && b.AccessToken != ""
}

// NotionConfig configures the Notion export.
type NotionConfig struct {
	Token      string
	DatabaseID string
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:      "8080",
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
		Store: StoreConfig{
			Backend:         BackendMemory,
			BigQueryDataset: "finance",
			Timeout:         5 * time.Second,
			Cooldown:        30 * time.Second,
		},
		Receipts: ReceiptConfig{
			Model: "gemini-2.5-flash",
		},
		BankLink: BankLinkConfig{
			BaseURL:  "https://sandbox.plaid.com",
			Interval: time.Hour,
		},
	}
}

// Load reads .env (when present) and the process environment on top of Default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Load: reading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function; Load passes os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()

	setString(&cfg.Port, getenv("PORT"))
	setString(&cfg.Env, getenv("APP_ENV"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.LogFormat, getenv("LOG_FORMAT"))

	setString(&cfg.Store.Backend, strings.ToLower(getenv("STORE_BACKEND")))
	setString(&cfg.Store.DSN, getenv("DATABASE_DSN"))
	setString(&cfg.Store.BigQueryProject, getenv("BQ_PROJECT"))
	setString(&cfg.Store.BigQueryDataset, getenv("BQ_DATASET"))

	setString(&cfg.Receipts.Bucket, getenv("GCS_BUCKET"))
	setString(&cfg.Receipts.Model, getenv("GEMINI_MODEL"))

	setString(&cfg.BankLink.BaseURL, getenv("BANKLINK_BASE_URL"))
	setString(&cfg.BankLink.ClientID, getenv("BANKLINK_CLIENT_ID"))
	setString(&cfg.BankLink.Secret, getenv("BANKLINK_SECRET"))
	setString(&cfg.BankLink.AccessToken, getenv("BANKLINK_ACCESS_TOKEN"))

	setString(&cfg.Notion.Token, getenv("NOTION_TOKEN"))
	setString(&cfg.Notion.DatabaseID, getenv("NOTION_DATABASE_ID"))

	setString(&cfg.RulesPath, getenv("RULES_PATH"))

	if v := getenv("STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("FromEnv: STORE_TIMEOUT: %w", err)
		}
		cfg.Store.Timeout = d
	}
	if v := getenv("STORE_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("FromEnv: STORE_COOLDOWN: %w", err)
		}
		cfg.Store.Cooldown = d
	}
	if v := getenv("BANKLINK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("FromEnv: BANKLINK_INTERVAL: %w", err)
		}
		cfg.BankLink.Interval = d
	}
	if v := getenv("CATEGORIZE_UPLOADS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("FromEnv: CATEGORIZE_UPLOADS: %w", err)
		}
		cfg.CategorizeUploads = b
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend-specific requirements.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite, BackendMySQL, BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("config: DATABASE_DSN is required for backend %q", c.Store.Backend)
		}
	case BackendBigQuery:
		if c.Store.BigQueryProject == "" {
			return fmt.Errorf("config: BQ_PROJECT is required for backend %q", c.Store.Backend)
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config: store timeout must be positive")
	}
	return nil
}

// IsProduction reports whether internal error details must be hidden.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
