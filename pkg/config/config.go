package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	LLM             LLMConfig        `yaml:"llm"`
	Database        DatabaseConfig   `yaml:"database"`
	Server          ServerConfig     `yaml:"server"`
	Slack           SlackConfig      `yaml:"slack"`
	Auth            AuthConfig       `yaml:"auth"`
	Reports         ReportsConfig    `yaml:"reports"`
	Classifier      ClassifierConfig `yaml:"classifier"`
	Log             LogConfig        `yaml:"log"`
	DevelopmentMode bool             `yaml:"development_mode"`
	ConfigDir       string           `yaml:"-"`
}

// LLMConfig selects the completion backend. API keys are only read from the
// environment.
type LLMConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	OpenAIAPIKey    string        `yaml:"-"`
	AnthropicAPIKey string        `yaml:"-"`
	GoogleAPIKey    string        `yaml:"-"`
	DeepSeekAPIKey  string        `yaml:"-"`
}

// DatabaseConfig configures the query executor and the identity store.
type DatabaseConfig struct {
	URL          string        `yaml:"-"`
	Table        string        `yaml:"table"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxConns     int32         `yaml:"max_conns"`
}

// ServerConfig configures the HTTP microservice.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// SlackConfig holds Socket Mode credentials.
type SlackConfig struct {
	BotToken string `yaml:"-"`
	AppToken string `yaml:"-"`
	Debug    bool   `yaml:"debug"`
}

// AuthConfig configures the OAuth link flow with the auth provider.
type AuthConfig struct {
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
	RedirectURI  string `yaml:"redirect_uri"`
	CallbackAddr string `yaml:"callback_addr"`
}

// ReportsConfig configures shareable report link generation.
type ReportsConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Origin      string        `yaml:"origin"`
	Token       string        `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	Retry       RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry and backoff behavior.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// ClassifierConfig tunes intent classification.
type ClassifierConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and environment variables.
// Environment variables take precedence over file configuration. An empty
// path means ~/.slack-bot/config.yaml, which may be absent.
func Load(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	cfg := &Config{ConfigDir: configDir}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir, "config.yaml")
	}
	if err := loadFileConfig(path, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.LLM.AnthropicAPIKey != ""
	case "openai":
		return c.LLM.OpenAIAPIKey != ""
	case "google":
		return c.LLM.GoogleAPIKey != ""
	case "deepseek":
		return c.LLM.DeepSeekAPIKey != ""
	case "mock":
		return true
	default:
		return false
	}
}

// Validate checks settings the services cannot start without.
func (c *Config) Validate() error {
	if !c.HasAdapter(c.LLM.Provider) {
		return fmt.Errorf("no API key configured for llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}
	if c.DevelopmentMode {
		return nil
	}
	for name, u := range map[string]string{
		"auth.url":          c.Auth.URL,
		"auth.redirect_uri": c.Auth.RedirectURI,
		"reports.base_url":  c.Reports.BaseURL,
	} {
		if u == "" {
			continue
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("invalid URL format for %s: %s", name, u)
		}
	}
	return nil
}

func loadFileConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	cfg.LLM.Provider = getEnvOrDefault("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnvOrDefault("OPENAI_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = getDurationEnv("LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.LLM.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.LLM.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.QueryTimeout = getDurationEnv("QUERY_TIMEOUT", cfg.Database.QueryTimeout)

	cfg.Server.Addr = getEnvOrDefault("AI_SERVICE_ADDR", cfg.Server.Addr)

	cfg.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.Slack.AppToken = os.Getenv("SLACK_APP_TOKEN")

	cfg.Auth.URL = getEnvOrDefault("PROPELAUTH_URL", cfg.Auth.URL)
	cfg.Auth.ClientID = getEnvOrDefault("PROPELAUTH_CLIENT_ID", cfg.Auth.ClientID)
	cfg.Auth.ClientSecret = os.Getenv("PROPELAUTH_CLIENT_SECRET")
	cfg.Auth.RedirectURI = getEnvOrDefault("PROPELAUTH_REDIRECT_URI", cfg.Auth.RedirectURI)

	cfg.Reports.BaseURL = getEnvOrDefault("REPORT_BASE_URL", cfg.Reports.BaseURL)
	cfg.Reports.Origin = getEnvOrDefault("REPORT_ORIGIN", cfg.Reports.Origin)
	cfg.Reports.Token = os.Getenv("REPORT_API_TOKEN")

	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvOrDefault("LOG_FORMAT", cfg.Log.Format)

	if v, err := strconv.ParseBool(os.Getenv("DEVELOPMENT_MODE")); err == nil {
		cfg.DevelopmentMode = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = "test_history"
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = 15 * time.Second
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8001"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 10
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 20
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 90 * time.Second
	}
	if cfg.Auth.CallbackAddr == "" {
		cfg.Auth.CallbackAddr = ":8000"
	}
	if cfg.Reports.BaseURL == "" {
		cfg.Reports.BaseURL = "https://backend-staging.cognisim.io"
	}
	if cfg.Reports.Origin == "" {
		cfg.Reports.Origin = "https://app.example.com"
	}
	if cfg.Reports.Timeout == 0 {
		cfg.Reports.Timeout = 30 * time.Second
	}
	if cfg.Reports.Concurrency == 0 {
		cfg.Reports.Concurrency = 8
	}
	if cfg.Reports.Retry.MaxRetries == 0 {
		cfg.Reports.Retry.MaxRetries = 2
	}
	if cfg.Reports.Retry.BaseBackoffMs == 0 {
		cfg.Reports.Retry.BaseBackoffMs = 200
	}
	if cfg.Reports.Retry.MaxBackoffMs == 0 {
		cfg.Reports.Retry.MaxBackoffMs = 2000
	}
	if cfg.Reports.Retry.MaxBackoffMs < cfg.Reports.Retry.BaseBackoffMs {
		cfg.Reports.Retry.MaxBackoffMs = cfg.Reports.Retry.BaseBackoffMs
	}
	if cfg.Classifier.CacheSize == 0 {
		cfg.Classifier.CacheSize = 256
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(envVar); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".slack-bot"), nil
}
