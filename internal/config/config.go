package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"load-triage/internal/parser"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Bearer token required on /api routes other than health; empty disables auth
	WebhookAPIKey string

	// Reference extraction
	ReferencePolicy parser.InvalidMatchPolicy

	// Portal lookup through a headless browser
	PortalEnabled      bool
	PortalURL          string
	PortalTimeout      time.Duration
	PortalMinPageChars int
	PortalUsername     string
	PortalPassword     string
	ChromeUserDataDir  string
	ChromePath         string
	BrowserHeadless    bool
	BrowserPoolSize    int
	BrowserIdleTimeout time.Duration

	// Lookup cache and rate limiting
	CacheTTL         time.Duration
	DisableCache     bool
	RateLimitWindow  time.Duration
	DisableRateLimit bool

	// Reply formatting
	ReplySignature string

	// Gmail mailbox polling
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string
	GmailAccessToken  string
	GmailUserEmail    string
	GmailQuery        string
	GmailPollInterval time.Duration
	GmailMaxResults   int64
	GmailCreateDrafts bool
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port: %s", c.ServerPort)
	}

	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if !contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if !contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	if c.PortalEnabled && c.PortalURL == "" {
		return fmt.Errorf("portal URL cannot be empty when the portal lookup is enabled")
	}
	if c.PortalTimeout <= 0 {
		return fmt.Errorf("portal timeout must be positive")
	}
	if c.PortalMinPageChars <= 0 {
		return fmt.Errorf("portal min page chars must be positive")
	}
	if c.BrowserPoolSize < 1 {
		return fmt.Errorf("browser pool size must be at least 1")
	}
	if c.BrowserIdleTimeout <= 0 {
		return fmt.Errorf("browser idle timeout must be positive")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	if c.GmailPollInterval <= 0 {
		return fmt.Errorf("gmail poll interval must be positive")
	}
	if c.GmailMaxResults <= 0 {
		return fmt.Errorf("gmail max results must be positive")
	}

	return nil
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// HasPortalCredentials reports whether the lookup can log in when the browser profile has no session
func (c *Config) HasPortalCredentials() bool {
	return c.PortalUsername != "" && c.PortalPassword != ""
}

// HasGmailCredentials reports whether enough OAuth2 material is configured to reach Gmail
func (c *Config) HasGmailCredentials() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != "" &&
		(c.GmailRefreshToken != "" || c.GmailAccessToken != "")
}

// GetDisableRateLimit implements ratelimit.Config
func (c *Config) GetDisableRateLimit() bool {
	return c.DisableRateLimit
}

// GetRateLimitWindow implements ratelimit.Config
func (c *Config) GetRateLimitWindow() time.Duration {
	return c.RateLimitWindow
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
