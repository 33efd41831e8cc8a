// Package config provides configuration management for Replica Builder.
// It loads configuration from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// GitHubConfig holds GitHub API and workflow dispatch configuration
type GitHubConfig struct {
	// Token is the GitHub access token used for all API calls
	Token string

	// Owner is the repository owner the provisioning workflow lives in
	Owner string

	// Repo is the repository name the provisioning workflow lives in
	Repo string

	// WorkflowID is the workflow file name dispatched for each build
	WorkflowID string

	// Ref is the git ref the workflow is dispatched on
	Ref string
}

// ResolverConfig holds run-resolution tuning. The window and retry budget
// have no derivation beyond observed GitHub listing lag, so they stay
// configurable rather than hard-coded.
type ResolverConfig struct {
	// Window is how far back a run's creation time may lie while still
	// being attributed to the current dispatch
	Window time.Duration

	// MaxAttempts bounds how many times resolution is retried
	MaxAttempts int

	// Interval is the delay between resolution attempts
	Interval time.Duration
}

// StreamConfig holds status streaming configuration
type StreamConfig struct {
	// PollInterval is the period between status fetches while a run is live
	PollInterval time.Duration
}

// CloudflareConfig holds DNS provider credentials for subdomain checks
type CloudflareConfig struct {
	APIKey string
	Email  string
	ZoneID string
}

// GeminiConfig holds content generation configuration
type GeminiConfig struct {
	// APIKey is the Gemini API key used by the generate pipeline
	APIKey string

	// Model is the Gemini model identifier
	Model string

	// MaxRetries bounds retries around a single generation call
	MaxRetries int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// Port is the HTTP server port
	Port int
}

// Config holds all configuration for Replica Builder
type Config struct {
	// BaseDomain is the apex domain deployed sites live under
	BaseDomain string

	// GitHub holds GitHub-related configuration
	GitHub GitHubConfig

	// Resolver holds run-resolution configuration
	Resolver ResolverConfig

	// Stream holds status streaming configuration
	Stream StreamConfig

	// Cloudflare holds DNS provider configuration
	Cloudflare CloudflareConfig

	// Gemini holds content generation configuration
	Gemini GeminiConfig

	// Server holds server-related configuration
	Server ServerConfig
}

// New creates a new Config instance from environment variables
func New() (*Config, error) {
	cfg := &Config{}

	// Base domain - defaults to xiyo.dev
	cfg.BaseDomain = envOrDefault("REPLICA_BASE_DOMAIN", "xiyo.dev")

	// GitHub configuration. REPLICA_GITHUB_TOKEN wins; GITHUB_TOKEN is
	// accepted so the server works unchanged inside Actions itself.
	cfg.GitHub.Token = os.Getenv("REPLICA_GITHUB_TOKEN")
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	cfg.GitHub.Owner = envOrDefault("REPLICA_REPO_OWNER", "xiyo")
	cfg.GitHub.Repo = envOrDefault("REPLICA_REPO_NAME", "replica-builder")
	cfg.GitHub.WorkflowID = envOrDefault("REPLICA_WORKFLOW_ID", "provision.yml")
	cfg.GitHub.Ref = envOrDefault("REPLICA_WORKFLOW_REF", "main")

	// Resolver configuration - defaults: 5 minute window, 30 attempts, 1s apart
	window, err := parseSecondsEnv("REPLICA_RESOLVE_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Resolver.Window = window

	attempts, err := parseIntEnv("REPLICA_RESOLVE_ATTEMPTS", 30)
	if err != nil {
		return nil, err
	}
	cfg.Resolver.MaxAttempts = attempts

	interval, err := parseSecondsEnv("REPLICA_RESOLVE_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Resolver.Interval = interval

	// Stream configuration - defaults to a 3 second poll period
	pollInterval, err := parseSecondsEnv("REPLICA_POLL_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Stream.PollInterval = pollInterval

	// Cloudflare configuration - no defaults, validated by the caller
	cfg.Cloudflare.APIKey = os.Getenv("CLOUDFLARE_API_KEY")
	cfg.Cloudflare.Email = os.Getenv("CLOUDFLARE_EMAIL")
	cfg.Cloudflare.ZoneID = os.Getenv("CLOUDFLARE_ZONE_ID")

	// Gemini configuration
	cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	cfg.Gemini.Model = envOrDefault("REPLICA_GEMINI_MODEL", "gemini-2.0-flash")
	retries, err := parseIntEnv("REPLICA_GEMINI_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	cfg.Gemini.MaxRetries = retries

	// Server configuration - defaults to port 3001
	portStr := os.Getenv("REPLICA_HTTP_PORT")
	if portStr == "" {
		cfg.Server.Port = 3001
	} else {
		port, err := parsePort(portStr)
		if err != nil {
			return nil, fmt.Errorf("REPLICA_HTTP_PORT %s", err)
		}
		cfg.Server.Port = port
	}

	return cfg, nil
}

// ValidateGitHub checks that the configuration is sufficient for dispatching
// and polling workflows. A missing credential is fatal before any remote call.
func (c *Config) ValidateGitHub() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is not set")
	}
	return nil
}

// ValidateCloudflare checks that the DNS provider credentials are present
func (c *Config) ValidateCloudflare() error {
	if c.Cloudflare.APIKey == "" || c.Cloudflare.Email == "" || c.Cloudflare.ZoneID == "" {
		return fmt.Errorf("CLOUDFLARE_API_KEY, CLOUDFLARE_EMAIL and CLOUDFLARE_ZONE_ID must be set")
	}
	return nil
}

// envOrDefault returns the environment variable value or a default when unset
func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// parseIntEnv parses a positive integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got: %d", key, n)
	}
	return n, nil
}

// parseSecondsEnv parses an environment variable expressed in whole seconds
func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	secs, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%s must be positive, got: %d", key, secs)
	}
	return time.Duration(secs) * time.Second, nil
}

// parsePort parses and validates a port number string
func parsePort(portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("must be between 1 and 65535, got: %d", port)
	}
	return port, nil
}
