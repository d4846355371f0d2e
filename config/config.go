package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	LLM        LLMConfig        `yaml:"llm"`
	Gmail      GmailConfig      `yaml:"gmail"`
	Trello     TrelloConfig     `yaml:"trello"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Filters    FiltersConfig    `yaml:"filters"`
	API        APIConfig        `yaml:"api"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
	// LockTTLMin bounds how long a crashed run keeps the claim.
	LockTTLMin int `yaml:"lock_ttl_min"`
}

type LLMConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
}

type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	RefreshToken string `yaml:"refresh_token"`
}

type TrelloConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Token   string `yaml:"token"`
	ListID  string `yaml:"list_id"`
}

type ExtractionConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	RequireDueDate      bool    `yaml:"require_due_date"`
	LookbackDays        int     `yaml:"lookback_days"`
}

type FiltersConfig struct {
	// Recipients narrows the fetch to messages addressed to these
	// mailboxes. Empty fetches everything.
	Recipients []string `yaml:"recipients"`
}

type APIConfig struct {
	Port string `yaml:"port"`
	// Token is the static bearer key guarding /api/v1. Empty disables
	// the check.
	Token string `yaml:"token"`
}

type SchedulerConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalMin int  `yaml:"interval_min"`
}

// Load reads an optional YAML file, then applies environment
// overrides on top. Env always wins so deployments can patch a shared
// file without editing it.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Redis:       RedisConfig{LockTTLMin: 15},
		LLM: LLMConfig{
			Model:      "gpt-4o-mini",
			TimeoutSec: 60,
			MaxRetries: 3,
		},
		Extraction: ExtractionConfig{
			ConfidenceThreshold: 0.85,
			LookbackDays:        7,
		},
		API:       APIConfig{Port: "8080"},
		Scheduler: SchedulerConfig{IntervalMin: 15},
	}
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENV", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.LockTTLMin = getEnvInt("RUN_LOCK_TTL_MIN", c.Redis.LockTTLMin)

	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.TimeoutSec = getEnvInt("LLM_TIMEOUT_SEC", c.LLM.TimeoutSec)
	c.LLM.MaxRetries = getEnvInt("LLM_MAX_RETRIES", c.LLM.MaxRetries)

	c.Gmail.ClientID = getEnv("GOOGLE_CLIENT_ID", c.Gmail.ClientID)
	c.Gmail.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.Gmail.ClientSecret)
	c.Gmail.RedirectURL = getEnv("GOOGLE_REDIRECT_URL", c.Gmail.RedirectURL)
	c.Gmail.RefreshToken = getEnv("GOOGLE_REFRESH_TOKEN", c.Gmail.RefreshToken)

	c.Trello.Enabled = getEnvBool("TRELLO_ENABLED", c.Trello.Enabled)
	c.Trello.APIKey = getEnv("TRELLO_API_KEY", c.Trello.APIKey)
	c.Trello.Token = getEnv("TRELLO_TOKEN", c.Trello.Token)
	c.Trello.ListID = getEnv("TRELLO_LIST_ID", c.Trello.ListID)

	c.Extraction.ConfidenceThreshold = getEnvFloat("CONFIDENCE_THRESHOLD", c.Extraction.ConfidenceThreshold)
	c.Extraction.RequireDueDate = getEnvBool("REQUIRE_DUE_DATE", c.Extraction.RequireDueDate)
	c.Extraction.LookbackDays = getEnvInt("LOOKBACK_DAYS", c.Extraction.LookbackDays)

	c.Filters.Recipients = getEnvSlice("FILTER_RECIPIENTS", c.Filters.Recipients)

	c.API.Port = getEnv("PORT", c.API.Port)
	c.API.Token = getEnv("API_TOKEN", c.API.Token)

	c.Scheduler.Enabled = getEnvBool("SCHEDULER_ENABLED", c.Scheduler.Enabled)
	c.Scheduler.IntervalMin = getEnvInt("SCHEDULER_INTERVAL_MIN", c.Scheduler.IntervalMin)
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Extraction.ConfidenceThreshold < 0 || c.Extraction.ConfidenceThreshold > 1 {
		return fmt.Errorf("extraction.confidence_threshold must be in [0,1], got %v",
			c.Extraction.ConfidenceThreshold)
	}
	if c.Extraction.LookbackDays <= 0 {
		return fmt.Errorf("extraction.lookback_days must be positive")
	}
	if c.Trello.Enabled && (c.Trello.APIKey == "" || c.Trello.Token == "" || c.Trello.ListID == "") {
		return fmt.Errorf("trello requires api_key, token and list_id when enabled")
	}
	return nil
}

func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Extraction.LookbackDays) * 24 * time.Hour
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLMin) * time.Minute
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalMin) * time.Minute
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
