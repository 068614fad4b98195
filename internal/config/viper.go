package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"load-triage/internal/parser"
)

// EnvPrefix is prepended to every configuration environment variable
const EnvPrefix = "LOAD_TRIAGE"

// LoadWithViper loads configuration using the given Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	setupEnvBinding(v)

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Load loads configuration from an optional config file and a .env file.
// Empty paths fall back to the default search paths and ./.env.
func Load(configFile, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return LoadWithViper(v)
}

// LoadEnvFile loads variables from a .env file without overriding the environment.
// A missing file is not an error.
func LoadEnvFile(filename string) error {
	if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(filename)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "localhost")

	v.SetDefault("database.path", "./load-triage.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("webhook.api_key", "")

	v.SetDefault("reference.invalid_match_policy", "fallthrough")

	v.SetDefault("portal.enabled", false)
	v.SetDefault("portal.url", "https://app.quotefactory.com")
	v.SetDefault("portal.timeout", "30s")
	v.SetDefault("portal.min_page_chars", 1000)
	v.SetDefault("portal.username", "")
	v.SetDefault("portal.password", "")

	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.pool_size", 2)
	v.SetDefault("browser.idle_timeout", "5m")

	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.disabled", false)

	v.SetDefault("rate_limit.window", "5m")
	v.SetDefault("rate_limit.disabled", false)

	v.SetDefault("reply.signature", "Balto Booking")

	v.SetDefault("gmail.query", "is:unread in:inbox newer_than:1d -from:me")
	v.SetDefault("gmail.poll_interval", "5m")
	v.SetDefault("gmail.max_results", 25)
	v.SetDefault("gmail.create_drafts", true)
}

func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	envBindings := map[string]string{
		"server.port":                    "SERVER_PORT",
		"server.host":                    "SERVER_HOST",
		"database.path":                  "DATABASE_PATH",
		"logging.level":                  "LOGGING_LEVEL",
		"logging.format":                 "LOGGING_FORMAT",
		"webhook.api_key":                "WEBHOOK_API_KEY",
		"reference.invalid_match_policy": "REFERENCE_INVALID_MATCH_POLICY",
		"portal.enabled":                 "PORTAL_ENABLED",
		"portal.url":                     "PORTAL_URL",
		"portal.timeout":                 "PORTAL_TIMEOUT",
		"portal.min_page_chars":          "PORTAL_MIN_PAGE_CHARS",
		"portal.username":                "PORTAL_USERNAME",
		"portal.password":                "PORTAL_PASSWORD",
		"browser.user_data_dir":          "BROWSER_USER_DATA_DIR",
		"browser.chrome_path":            "BROWSER_CHROME_PATH",
		"browser.headless":               "BROWSER_HEADLESS",
		"browser.pool_size":              "BROWSER_POOL_SIZE",
		"browser.idle_timeout":           "BROWSER_IDLE_TIMEOUT",
		"cache.ttl":                      "CACHE_TTL",
		"cache.disabled":                 "CACHE_DISABLED",
		"rate_limit.window":              "RATE_LIMIT_WINDOW",
		"rate_limit.disabled":            "RATE_LIMIT_DISABLED",
		"reply.signature":                "REPLY_SIGNATURE",
		"gmail.client_id":                "GMAIL_CLIENT_ID",
		"gmail.client_secret":            "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":            "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":             "GMAIL_ACCESS_TOKEN",
		"gmail.user_email":               "GMAIL_USER_EMAIL",
		"gmail.query":                    "GMAIL_QUERY",
		"gmail.poll_interval":            "GMAIL_POLL_INTERVAL",
		"gmail.max_results":              "GMAIL_MAX_RESULTS",
		"gmail.create_drafts":            "GMAIL_CREATE_DRAFTS",
	}

	// Unprefixed names used by earlier deployments; the prefixed name wins when both are set
	legacyEnvBindings := map[string]string{
		"server.port":           "PORT",
		"portal.username":       "QUOTEFACTORY_USERNAME",
		"portal.password":       "QUOTEFACTORY_PASSWORD",
		"database.path":         "DB_PATH",
		"logging.level":         "LOG_LEVEL",
		"webhook.api_key":       "WEBHOOK_API_KEY",
		"browser.user_data_dir": "CHROME_USER_DATA_DIR",
		"cache.disabled":        "DISABLE_CACHE",
		"rate_limit.disabled":   "DISABLE_RATE_LIMIT",
		"gmail.client_id":       "GMAIL_CLIENT_ID",
		"gmail.client_secret":   "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":   "GMAIL_REFRESH_TOKEN",
	}

	for configKey, envSuffix := range envBindings {
		names := []string{configKey, EnvPrefix + "_" + envSuffix}
		if legacy, ok := legacyEnvBindings[configKey]; ok {
			names = append(names, legacy)
		}
		v.BindEnv(names...)
	}
}

func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.load-triage")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return nil
}

func unmarshalConfig(v *viper.Viper, config *Config) error {
	config.ServerPort = v.GetString("server.port")
	config.ServerHost = v.GetString("server.host")
	config.DBPath = v.GetString("database.path")
	config.LogLevel = v.GetString("logging.level")
	config.LogFormat = v.GetString("logging.format")
	config.WebhookAPIKey = v.GetString("webhook.api_key")

	policy, err := parser.ParseInvalidMatchPolicy(v.GetString("reference.invalid_match_policy"))
	if err != nil {
		return err
	}
	config.ReferencePolicy = policy

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"portal.timeout", &config.PortalTimeout},
		{"browser.idle_timeout", &config.BrowserIdleTimeout},
		{"cache.ttl", &config.CacheTTL},
		{"rate_limit.window", &config.RateLimitWindow},
		{"gmail.poll_interval", &config.GmailPollInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	config.PortalEnabled = v.GetBool("portal.enabled")
	config.PortalURL = v.GetString("portal.url")
	config.PortalMinPageChars = v.GetInt("portal.min_page_chars")
	config.PortalUsername = v.GetString("portal.username")
	config.PortalPassword = v.GetString("portal.password")
	config.ChromeUserDataDir = v.GetString("browser.user_data_dir")
	config.ChromePath = v.GetString("browser.chrome_path")
	config.BrowserHeadless = v.GetBool("browser.headless")
	config.BrowserPoolSize = v.GetInt("browser.pool_size")

	config.DisableCache = v.GetBool("cache.disabled")
	config.DisableRateLimit = v.GetBool("rate_limit.disabled")

	config.ReplySignature = v.GetString("reply.signature")

	config.GmailClientID = v.GetString("gmail.client_id")
	config.GmailClientSecret = v.GetString("gmail.client_secret")
	config.GmailRefreshToken = v.GetString("gmail.refresh_token")
	config.GmailAccessToken = v.GetString("gmail.access_token")
	config.GmailUserEmail = v.GetString("gmail.user_email")
	config.GmailQuery = v.GetString("gmail.query")
	config.GmailMaxResults = v.GetInt64("gmail.max_results")
	config.GmailCreateDrafts = v.GetBool("gmail.create_drafts")

	return nil
}
