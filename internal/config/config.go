package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Supported LLM providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Supported interpretation cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config application configuration structure
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Catalog CatalogConfig `yaml:"catalog"`
	Scraper ScraperConfig `yaml:"scraper"`
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// ModelConfig LLM model configuration
type ModelConfig struct {
	Provider       string  `yaml:"provider" env:"SHOPSEARCH_MODEL_PROVIDER"`
	APIKey         string  `yaml:"api_key" env:"API_KEY"`
	BaseURL        string  `yaml:"base_url" env:"SHOPSEARCH_MODEL_BASE_URL"`
	Model          string  `yaml:"model" env:"SHOPSEARCH_MODEL"`
	Temperature    float64 `yaml:"temperature" env:"SHOPSEARCH_MODEL_TEMPERATURE"`
	MaxTokens      int     `yaml:"max_tokens" env:"SHOPSEARCH_MODEL_MAX_TOKENS"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"SHOPSEARCH_MODEL_TIMEOUT_SECONDS"`
}

// CatalogConfig filter catalog source; a file path or an http(s) URL
type CatalogConfig struct {
	Source         string `yaml:"source" env:"SHOPSEARCH_CATALOG_SOURCE"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"SHOPSEARCH_CATALOG_TIMEOUT_SECONDS"`
}

// ScraperConfig scraping backend configuration
type ScraperConfig struct {
	BaseURL string `yaml:"base_url" env:"SHOPSEARCH_SCRAPER_URL"`
	// TimeoutSeconds of 0 leaves the transport default in place
	TimeoutSeconds int `yaml:"timeout_seconds" env:"SHOPSEARCH_SCRAPER_TIMEOUT_SECONDS"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Host                   string   `yaml:"host" env:"SHOPSEARCH_HOST"`
	Port                   int      `yaml:"port" env:"SHOPSEARCH_PORT"`
	CORSOrigins            []string `yaml:"cors_origins" env:"SHOPSEARCH_CORS_ORIGINS" envSeparator:","`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// CacheConfig interpretation cache configuration
type CacheConfig struct {
	Backend    string `yaml:"backend" env:"SHOPSEARCH_CACHE_BACKEND"`
	Size       int    `yaml:"size"`
	RedisURL   string `yaml:"redis_url" env:"SHOPSEARCH_REDIS_URL"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// HistoryConfig search history storage configuration
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"SHOPSEARCH_HISTORY_ENABLED"`
	DBPath  string `yaml:"db_path" env:"SHOPSEARCH_HISTORY_DB"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level   string `yaml:"level" env:"SHOPSEARCH_LOG_LEVEL"`
	MaxDays int    `yaml:"max_days"`
	Console bool   `yaml:"console"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Model: ModelConfig{
			Provider:       ProviderGemini,
			APIKey:         "",
			BaseURL:        "",
			Model:          "gemini-2.5-flash",
			Temperature:    0.2,
			MaxTokens:      1024,
			TimeoutSeconds: 60,
		},
		Catalog: CatalogConfig{
			Source:         filepath.Join("data", "available-filters.json"),
			TimeoutSeconds: 10,
		},
		Scraper: ScraperConfig{
			BaseURL:        "http://127.0.0.1:5000",
			TimeoutSeconds: 0,
		},
		Server: ServerConfig{
			Host:                   "127.0.0.1",
			Port:                   8080,
			CORSOrigins:            []string{"*"},
			ShutdownTimeoutSeconds: 10,
		},
		Cache: CacheConfig{
			Backend:    CacheMemory,
			Size:       256,
			RedisURL:   "redis://localhost:6379/0",
			TTLSeconds: 3600,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(homeDir, ".shopsearch", "history.db"),
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
			Console: false,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file, then merges secrets and environment overrides
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, write the defaults for the user to edit
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Secrets only fill an API key the config file left empty
	secrets, _ := LoadSecrets()
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = secrets.APIKeyFor(cfg.Model.Provider)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = apiKeyFromEnv(cfg.Model.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// apiKeyFromEnv falls back to the provider-specific variables
func apiKeyFromEnv(provider string) string {
	name := "GEMINI_API_KEY"
	if normalizeProvider(provider) == ProviderOpenAI {
		name = "OPENAI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(name))
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Never persist a key that came from secrets or the environment
	out := *cfg
	out.Model.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	content := "# shopsearch configuration file\n# API keys belong in .secrets (API_KEY=...) or the environment\n\n" + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func normalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ProviderGemini
	}
	return p
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch normalizeProvider(c.Model.Provider) {
	case ProviderGemini:
	case ProviderOpenAI:
		if strings.TrimSpace(c.Model.BaseURL) == "" {
			return fmt.Errorf("config error: model.base_url cannot be empty for openai provider")
		}
	default:
		return fmt.Errorf("config error: model.provider must be one of %q, %q", ProviderGemini, ProviderOpenAI)
	}
	if c.Model.Model == "" {
		return fmt.Errorf("config error: model.model cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("config error: model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("config error: model.max_tokens must be greater than 0")
	}
	if c.Model.TimeoutSeconds < 0 {
		return fmt.Errorf("config error: model.timeout_seconds cannot be negative")
	}

	if strings.TrimSpace(c.Catalog.Source) == "" {
		return fmt.Errorf("config error: catalog.source cannot be empty")
	}

	if strings.TrimSpace(c.Scraper.BaseURL) == "" {
		return fmt.Errorf("config error: scraper.base_url cannot be empty")
	}
	if c.Scraper.TimeoutSeconds < 0 {
		return fmt.Errorf("config error: scraper.timeout_seconds cannot be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: server.port must be between 1 and 65535")
	}

	switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
	case "", CacheNone:
	case CacheMemory:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("config error: cache.size must be greater than 0")
		}
	case CacheRedis:
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			return fmt.Errorf("config error: cache.redis_url cannot be empty for redis backend")
		}
	default:
		return fmt.Errorf("config error: cache.backend must be one of none, memory, redis")
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("config error: history.db_path cannot be empty")
	}

	return nil
}

// IsAPIKeyConfigured checks if API key is configured
func (c *Config) IsAPIKeyConfigured() bool {
	return c.Model.APIKey != ""
}

// Addr returns the server listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ShutdownTimeout returns the graceful shutdown budget
func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`shopsearch Configuration:
  Model:
    Provider: %s
    API Key: %s
    Base URL: %s
    Model: %s
    Temperature: %.1f
    Max Tokens: %d
  Catalog:
    Source: %s
  Scraper:
    Base URL: %s
    Timeout Seconds: %d
  Server:
    Address: %s
    CORS Origins: %s
  Cache:
    Backend: %s
    Redis URL: %s
  History:
    Enabled: %v
    DB Path: %s
  Log:
    Level: %s`,
		normalizeProvider(c.Model.Provider),
		redactAPIKey(c.Model.APIKey),
		displayOrDefault(c.Model.BaseURL),
		c.Model.Model,
		c.Model.Temperature,
		c.Model.MaxTokens,
		c.Catalog.Source,
		c.Scraper.BaseURL,
		c.Scraper.TimeoutSeconds,
		c.Addr(),
		strings.Join(c.Server.CORSOrigins, ", "),
		c.Cache.Backend,
		c.Cache.RedisURL,
		c.History.Enabled,
		c.History.DBPath,
		c.Log.Level,
	)
}

func displayOrDefault(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(provider default)"
	}
	return v
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}
