// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/subosito/gotenv"
)

// Config holds all application configuration for comment moderation.
type Config struct {
	YouTube   YouTubeConfig   `json:"youtube"`
	OAuth     OAuthConfig     `json:"oauth"`
	AI        AIConfig        `json:"ai"`
	Policy    PolicyConfig    `json:"policy"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Retry     RetryConfig     `json:"retry"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Log       LogConfig       `json:"log"`
}

// YouTubeConfig configures the YouTube Data API client.
type YouTubeConfig struct {
	// APIKey is used for read-only calls (comment listing, video info).
	APIKey string `json:"api_key"`
	// Endpoint overrides the Data API base URL (empty uses the default).
	Endpoint string `json:"endpoint,omitempty"`
	// DailyQuota is the estimated daily quota in units.
	DailyQuota int `json:"daily_quota"`
}

// OAuthConfig configures the channel owner's OAuth client.
type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
	// CredentialsFile stores the credential records (mode 0600).
	CredentialsFile string `json:"credentials_file"`
	// RevokeURL is called on logout. Empty skips provider revocation.
	RevokeURL string `json:"revoke_url"`
}

// AIConfig configures the OpenAI compatible classification service.
type AIConfig struct {
	APIKey string `json:"api_key"`
	// BaseURL selects the provider; empty uses api.openai.com.
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
	// RequestTimeout bounds a single classification request.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// PolicyConfig holds the decision thresholds.
type PolicyConfig struct {
	DeleteThreshold     float64 `json:"delete_threshold"`
	MediumRiskThreshold float64 `json:"medium_risk_threshold"`
	HighRiskThreshold   float64 `json:"high_risk_threshold"`
}

// PipelineConfig controls a single moderation run.
type PipelineConfig struct {
	// Workers is the classification worker pool size.
	Workers int `json:"workers"`
	// Timeout is the overall deadline of one invocation.
	Timeout time.Duration `json:"timeout"`
	// DefaultMaxResults applies when a request does not set max results.
	DefaultMaxResults int `json:"default_max_results"`
	// DeleteInterval is the minimum spacing between moderation calls.
	DeleteInterval time.Duration `json:"delete_interval"`
	// ModerationMode is "delete" or "reject".
	ModerationMode string `json:"moderation_mode"`
	// BanAuthor bans the author when rejecting.
	BanAuthor bool `json:"ban_author"`
}

// RetryConfig controls backoff for upstream calls.
type RetryConfig struct {
	MaxRetries int `json:"max_retries"`
	// InitialBackoff is the initial backoff duration for retries
	InitialBackoff time.Duration `json:"initial_backoff"`
	// MaxBackoff is the maximum backoff duration for retries
	MaxBackoff time.Duration `json:"max_backoff"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1)
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// RateLimitConfig sets per-host request rates for the outbound transport.
type RateLimitConfig struct {
	DataAPIRPS float64 `json:"data_api_rps"`
	AIRPS      float64 `json:"ai_rps"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Moderation modes.
const (
	ModeDelete = "delete"
	ModeReject = "reject"
)

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		YouTube: YouTubeConfig{
			DailyQuota: 10000,
		},
		OAuth: OAuthConfig{
			RedirectURL:     "http://localhost:5000/auth/callback",
			CredentialsFile: filepath.Join(configDir(), "credentials.json"),
			RevokeURL:       "https://oauth2.googleapis.com/revoke",
		},
		AI: AIConfig{
			Model:          "gpt-4o-mini",
			RequestTimeout: 30 * time.Second,
		},
		Policy: PolicyConfig{
			DeleteThreshold:     0.5,
			MediumRiskThreshold: 0.5,
			HighRiskThreshold:   0.8,
		},
		Pipeline: PipelineConfig{
			Workers:           5,
			Timeout:           5 * time.Minute,
			DefaultMaxResults: 50,
			DeleteInterval:    1 * time.Second,
			ModerationMode:    ModeDelete,
		},
		Retry: RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		RateLimit: RateLimitConfig{
			DataAPIRPS: 5.0,
			AIRPS:      10.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a .env file, config file, and environment variables.
// Priority: env vars > .env > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// gotenv never overrides variables that are already set.
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configDir() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "commentguard")
}

// loadFromFile attempts to load commentguard.json from the current directory or the user config directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"commentguard.json",
		filepath.Join(configDir(), "commentguard.json"),
	}
	if p := os.Getenv("COMMENTGUARD_CONFIG"); p != "" {
		paths = []string{p}
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	setString(&c.YouTube.APIKey, "YOUTUBE_API_KEY", "COMMENTGUARD_YOUTUBE_API_KEY")
	setString(&c.YouTube.Endpoint, "COMMENTGUARD_YOUTUBE_ENDPOINT")
	setInt(&c.YouTube.DailyQuota, "COMMENTGUARD_YOUTUBE_DAILY_QUOTA")

	setString(&c.OAuth.ClientID, "GOOGLE_CLIENT_ID", "COMMENTGUARD_OAUTH_CLIENT_ID")
	setString(&c.OAuth.ClientSecret, "GOOGLE_CLIENT_SECRET", "COMMENTGUARD_OAUTH_CLIENT_SECRET")
	setString(&c.OAuth.RedirectURL, "COMMENTGUARD_OAUTH_REDIRECT_URL")
	setString(&c.OAuth.CredentialsFile, "COMMENTGUARD_CREDENTIALS_FILE")
	setString(&c.OAuth.RevokeURL, "COMMENTGUARD_OAUTH_REVOKE_URL")

	setString(&c.AI.APIKey, "OPENAI_API_KEY", "COMMENTGUARD_AI_API_KEY")
	setString(&c.AI.BaseURL, "COMMENTGUARD_AI_BASE_URL")
	setString(&c.AI.Model, "COMMENTGUARD_AI_MODEL")
	setDuration(&c.AI.RequestTimeout, "COMMENTGUARD_AI_TIMEOUT")

	setFloat(&c.Policy.DeleteThreshold, "COMMENTGUARD_DELETE_THRESHOLD")
	setFloat(&c.Policy.MediumRiskThreshold, "COMMENTGUARD_MEDIUM_RISK_THRESHOLD")
	setFloat(&c.Policy.HighRiskThreshold, "COMMENTGUARD_HIGH_RISK_THRESHOLD")

	setInt(&c.Pipeline.Workers, "COMMENTGUARD_WORKERS")
	setDuration(&c.Pipeline.Timeout, "COMMENTGUARD_TIMEOUT")
	setInt(&c.Pipeline.DefaultMaxResults, "COMMENTGUARD_MAX_RESULTS")
	setDuration(&c.Pipeline.DeleteInterval, "COMMENTGUARD_DELETE_INTERVAL")
	setString(&c.Pipeline.ModerationMode, "COMMENTGUARD_MODERATION_MODE")
	if v := os.Getenv("COMMENTGUARD_BAN_AUTHOR"); v != "" {
		c.Pipeline.BanAuthor = v == "true" || v == "1"
	}

	setInt(&c.Retry.MaxRetries, "COMMENTGUARD_MAX_RETRIES")
	setDuration(&c.Retry.InitialBackoff, "COMMENTGUARD_INITIAL_BACKOFF")
	setDuration(&c.Retry.MaxBackoff, "COMMENTGUARD_MAX_BACKOFF")
	setFloat(&c.Retry.BackoffMultiplier, "COMMENTGUARD_BACKOFF_MULTIPLIER")

	setFloat(&c.RateLimit.DataAPIRPS, "COMMENTGUARD_DATA_API_RPS")
	setFloat(&c.RateLimit.AIRPS, "COMMENTGUARD_AI_RPS")

	setString(&c.Log.Level, "COMMENTGUARD_LOG_LEVEL")
	setString(&c.Log.Format, "COMMENTGUARD_LOG_FORMAT")
}

// setString assigns the first non-empty variable among keys; later keys win.
func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"delete_threshold":      c.Policy.DeleteThreshold,
		"medium_risk_threshold": c.Policy.MediumRiskThreshold,
		"high_risk_threshold":   c.Policy.HighRiskThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1]", name)
		}
	}
	if c.Policy.MediumRiskThreshold > c.Policy.HighRiskThreshold {
		return fmt.Errorf("medium_risk_threshold must be <= high_risk_threshold")
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32")
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Pipeline.DefaultMaxResults < 1 || c.Pipeline.DefaultMaxResults > 200 {
		return fmt.Errorf("default_max_results must be between 1 and 200")
	}
	if c.Pipeline.DeleteInterval <= 0 {
		return fmt.Errorf("delete_interval must be positive")
	}
	if c.Pipeline.ModerationMode != ModeDelete && c.Pipeline.ModerationMode != ModeReject {
		return fmt.Errorf("moderation_mode must be %q or %q", ModeDelete, ModeReject)
	}
	if c.AI.RequestTimeout <= 0 {
		return fmt.Errorf("ai request_timeout must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.Retry.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.Retry.MaxBackoff <= 0 {
		return fmt.Errorf("max_backoff must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.Retry.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	if c.RateLimit.DataAPIRPS < 0 || c.RateLimit.AIRPS < 0 {
		return fmt.Errorf("rate limits must be non-negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be \"text\" or \"json\"")
	}
	return nil
}
