// Package config handles loading and validation of service configuration.
// Supports both development (env vars, optional .env file) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"

	"storefront/internal/model"
	"storefront/internal/push"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string

	// Store connection and session secrets (loaded from secrets)
	Store StoreConfig

	Catalog CatalogConfig
	Push    PushConfig
	Redis   RedisConfig

	// MinClientVersion rejects older app builds with 426. Empty disables.
	MinClientVersion string
	// LoginURL is returned to signed-out wishlist and cart callers.
	LoginURL string
	// NoticeDuration is how long confirmations stay on a user's board.
	NoticeDuration time.Duration
	// SearchDebounce is the interactive search delay (CLI).
	SearchDebounce time.Duration
}

// StoreConfig contains the store's connection secrets.
// In production, this is loaded from Secret Manager as JSON.
type StoreConfig struct {
	StoreURL  string `json:"store_url"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	JWTSecret string `json:"jwt_secret,omitempty"`
	JWTIssuer string `json:"jwt_issuer,omitempty"`

	// Outbound request budget against the store. 0 disables limiting.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty"`
	// PlainTLS disables the browser TLS fingerprint.
	PlainTLS bool `json:"plain_tls,omitempty"`
}

// CatalogConfig controls card mapping and paging.
type CatalogConfig struct {
	PageSize         int      `json:"page_size,omitempty"`
	CurrencyMarkers  []string `json:"currency_markers,omitempty"`
	PlaceholderImage string   `json:"placeholder_image,omitempty"`
	// Concurrency bounds how many cards of a page are mapped at once.
	// Defaults to PageSize so a whole page resolves in parallel.
	Concurrency int `json:"concurrency,omitempty"`
}

// PushConfig controls device token registration.
type PushConfig struct {
	Endpoint  string `json:"endpoint,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// RedisConfig points at the shared push token store. Empty Addr keeps
// tokens in memory.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// Defaults applied when a setting is absent.
const (
	DefaultPageSize       = 12
	DefaultNoticeDuration = time.Second
	DefaultSearchDebounce = 300 * time.Millisecond
)

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Outside production a .env file (ENV_FILE, default ".env") is read first;
// variables already set in the environment win.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if os.Getenv("ENVIRONMENT") != "production" {
		if err := loadDotEnv(envOrDefault("ENV_FILE", ".env")); err != nil {
			return nil, err
		}
	}

	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", "8080"),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		StoreID:          os.Getenv("STORE_ID"),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
		LoginURL:         os.Getenv("LOGIN_URL"),
		Push: PushConfig{
			Endpoint:  os.Getenv("PUSH_ENDPOINT"),
			ProjectID: os.Getenv("EXPO_PROJECT_ID"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Catalog: CatalogConfig{
			PlaceholderImage: os.Getenv("PLACEHOLDER_IMAGE"),
			CurrencyMarkers:  splitList(os.Getenv("CURRENCY_MARKERS")),
		},
	}

	// StoreID required in all environments
	if cfg.StoreID == "" {
		return nil, fmt.Errorf("STORE_ID environment variable required")
	}

	if err := cfg.loadTuningFromEnv(); err != nil {
		return nil, err
	}

	// Load store secrets based on environment
	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv reads a .env file if one exists.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading %s: %w", path, err)
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port             string        `json:"port"`
		Environment      string        `json:"environment"`
		LogLevel         string        `json:"log_level"`
		StoreID          string        `json:"store_id"`
		Store            StoreConfig   `json:"store"`
		Catalog          CatalogConfig `json:"catalog"`
		Push             PushConfig    `json:"push"`
		Redis            RedisConfig   `json:"redis"`
		MinClientVersion string        `json:"min_client_version"`
		LoginURL         string        `json:"login_url"`
		NoticeDuration   string        `json:"notice_duration"`
		SearchDebounce   string        `json:"search_debounce"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fileConfig.Port, "8080"),
		Environment:      withDefault(fileConfig.Environment, "development"),
		LogLevel:         withDefault(fileConfig.LogLevel, "info"),
		StoreID:          fileConfig.StoreID,
		Store:            fileConfig.Store,
		Catalog:          fileConfig.Catalog,
		Push:             fileConfig.Push,
		Redis:            fileConfig.Redis,
		MinClientVersion: fileConfig.MinClientVersion,
		LoginURL:         fileConfig.LoginURL,
	}

	if cfg.StoreID == "" {
		return nil, fmt.Errorf("store_id is required")
	}
	if cfg.NoticeDuration, err = parseDuration("notice_duration", fileConfig.NoticeDuration); err != nil {
		return nil, err
	}
	if cfg.SearchDebounce, err = parseDuration("search_debounce", fileConfig.SearchDebounce); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSecretManager fetches store secrets from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadFromEnv reads store secrets from individual environment variables.
func (c *Config) loadFromEnv() error {
	c.Store.StoreURL = os.Getenv("MERCHANT_STORE_URL")
	c.Store.APIKey = os.Getenv("MERCHANT_API_KEY")
	c.Store.APISecret = os.Getenv("MERCHANT_API_SECRET")
	c.Store.JWTSecret = os.Getenv("MERCHANT_JWT_SECRET")
	c.Store.JWTIssuer = os.Getenv("MERCHANT_JWT_ISSUER")
	return nil
}

// loadTuningFromEnv parses the numeric and duration settings. These are
// never secret, so they come from the environment in every mode.
func (c *Config) loadTuningFromEnv() error {
	var err error
	if c.Catalog.PageSize, err = envInt("PAGE_SIZE"); err != nil {
		return err
	}
	if c.Catalog.Concurrency, err = envInt("MAP_CONCURRENCY"); err != nil {
		return err
	}
	if c.Redis.DB, err = envInt("REDIS_DB"); err != nil {
		return err
	}
	if c.Store.Burst, err = envInt("UPSTREAM_BURST"); err != nil {
		return err
	}
	if raw := os.Getenv("UPSTREAM_RPS"); raw != "" {
		if c.Store.RequestsPerSecond, err = strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("parsing UPSTREAM_RPS: %w", err)
		}
	}
	if raw := os.Getenv("UPSTREAM_PLAIN_TLS"); raw != "" {
		if c.Store.PlainTLS, err = strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("parsing UPSTREAM_PLAIN_TLS: %w", err)
		}
	}
	if c.NoticeDuration, err = parseDuration("NOTICE_DURATION", os.Getenv("NOTICE_DURATION")); err != nil {
		return err
	}
	if c.SearchDebounce, err = parseDuration("SEARCH_DEBOUNCE", os.Getenv("SEARCH_DEBOUNCE")); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills settings left at their zero value.
func (c *Config) applyDefaults() {
	if c.Catalog.PageSize <= 0 {
		c.Catalog.PageSize = DefaultPageSize
	}
	if c.Catalog.Concurrency <= 0 {
		c.Catalog.Concurrency = c.Catalog.PageSize
	}
	if len(c.Catalog.CurrencyMarkers) == 0 {
		c.Catalog.CurrencyMarkers = model.DefaultCurrencyMarkers
	}
	if c.Catalog.PlaceholderImage == "" {
		c.Catalog.PlaceholderImage = model.DefaultPlaceholderImage
	}
	if c.NoticeDuration <= 0 {
		c.NoticeDuration = DefaultNoticeDuration
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = DefaultSearchDebounce
	}
	if c.Push.Endpoint == "" && c.Store.StoreURL != "" {
		c.Push.Endpoint = strings.TrimSuffix(c.Store.StoreURL, "/") + push.DefaultEndpointPath
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.StoreURL == "" {
		return fmt.Errorf("store_url is required")
	}
	if c.Store.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.Store.APISecret == "" {
		return fmt.Errorf("api_secret is required")
	}

	u, err := url.Parse(c.Store.StoreURL)
	if err != nil {
		return fmt.Errorf("invalid store_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid store_url: scheme must be http or https")
	}
	// Credentials travel as query parameters; refuse to send them in clear.
	if u.Scheme == "http" && c.Environment == "production" {
		return fmt.Errorf("store_url must use https in production")
	}
	if c.Environment == "production" && c.Store.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required in production")
	}
	return nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envInt parses an optional integer variable. Unset is 0.
func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

// parseDuration parses an optional duration. Empty is 0.
func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
