// Copyright (c) 2026 Sentinova Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// OAuth2Config holds client-credential settings for an OAuth2 mailbox.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// MailboxConfig holds connection settings for a single IMAP mailbox.
type MailboxConfig struct {
	Alias          string
	Server         string // host:port, implicit TLS
	Address        string
	Password       string
	Auth           string // "password" or "oauth2"
	OAuth2         OAuth2Config
	Folder         string
	PollInterval   time.Duration
	ExcludeSenders []string
}

// OpenAIConfig holds classifier API settings.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty = api.openai.com
}

// RateLimitConfig bounds outbound classifier calls. PerSecond <= 0 disables
// the local limiter.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// ProcessingConfig tunes the batch classification loop.
type ProcessingConfig struct {
	BatchSize         int
	Interval          time.Duration
	MaxRetries        int
	ProcessingTimeout time.Duration
	CallTimeout       time.Duration
	MaxBackoff        time.Duration
	RateLimit         RateLimitConfig
}

// Config holds all configuration for the sentiment pipeline services.
type Config struct {
	LogLevel    string
	DatabaseURL string
	RedisURL    string

	OpenAI     OpenAIConfig
	Processing ProcessingConfig

	// HTTP listeners
	ServerAddr string // webhook + dashboard API
	WorkerAddr string // worker health + metrics

	Mailboxes []MailboxConfig

	DedupTTL time.Duration

	// Classified-event publication
	EventsEnabled bool
	EventsList    string
}

// rawConfig mirrors the YAML structure for unmarshalling. Durations are
// strings parsed with time.ParseDuration.
type rawConfig struct {
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`
	Redis       struct {
		URL        string `yaml:"url"`
		EventsList string `yaml:"events_list"`
	} `yaml:"redis"`
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`
	Processing struct {
		BatchSize         int    `yaml:"batch_size"`
		Interval          string `yaml:"interval"`
		MaxRetries        int    `yaml:"max_retries"`
		ProcessingTimeout string `yaml:"processing_timeout"`
		CallTimeout       string `yaml:"call_timeout"`
		MaxBackoff        string `yaml:"max_backoff"`
		RateLimit         struct {
			PerSecond float64 `yaml:"per_second"`
			Burst     int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"processing"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Worker struct {
		Addr string `yaml:"addr"`
	} `yaml:"worker"`
	DedupTTL      string `yaml:"dedup_ttl"`
	EventsEnabled *bool  `yaml:"events_enabled"`
	Mailboxes     []struct {
		Alias    string `yaml:"alias"`
		Server   string `yaml:"server"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		Auth     string `yaml:"auth"`
		OAuth2   struct {
			TokenURL     string   `yaml:"token_url"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth2"`
		Folder         string   `yaml:"folder"`
		PollInterval   string   `yaml:"poll_interval"`
		ExcludeSenders []string `yaml:"exclude_senders"`
	} `yaml:"mailboxes"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A missing config file is not an error: every setting
// has an env fallback, so services can run env-only in containers.
func Load() (*Config, error) {
	// Local development convenience; no-op when no .env exists.
	_ = godotenv.Load()

	var raw rawConfig
	configPath := envOrDefault("SENTINOVA_CONFIG", "config.yaml")

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
		// Env-only mode
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		LogLevel:    firstNonEmpty(raw.LogLevel, envOrDefault("LOG_LEVEL", "info")),
		DatabaseURL: firstNonEmpty(raw.DatabaseURL, os.Getenv("DATABASE_URL")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		OpenAI: OpenAIConfig{
			APIKey:  firstNonEmpty(raw.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")),
			Model:   firstNonEmpty(raw.OpenAI.Model, envOrDefault("OPENAI_MODEL", "gpt-4o-mini")),
			BaseURL: firstNonEmpty(raw.OpenAI.BaseURL, os.Getenv("OPENAI_BASE_URL")),
		},
		Processing: ProcessingConfig{
			BatchSize:         intOr(raw.Processing.BatchSize, envOrDefaultInt("PROCESSING_BATCH_SIZE", 10)),
			Interval:          durationOr(raw.Processing.Interval, envOrDefaultDuration("PROCESSING_INTERVAL", 60*time.Second)),
			MaxRetries:        intOr(raw.Processing.MaxRetries, envOrDefaultInt("MAX_RETRIES", 3)),
			ProcessingTimeout: durationOr(raw.Processing.ProcessingTimeout, envOrDefaultDuration("PROCESSING_TIMEOUT", 5*time.Minute)),
			CallTimeout:       durationOr(raw.Processing.CallTimeout, envOrDefaultDuration("CLASSIFY_TIMEOUT", 30*time.Second)),
			MaxBackoff:        durationOr(raw.Processing.MaxBackoff, envOrDefaultDuration("MAX_BACKOFF", 15*time.Minute)),
			RateLimit: RateLimitConfig{
				PerSecond: raw.Processing.RateLimit.PerSecond,
				Burst:     intOr(raw.Processing.RateLimit.Burst, 5),
			},
		},
		ServerAddr: firstNonEmpty(raw.Server.Addr, envOrDefault("SERVER_ADDR", ":8080")),
		WorkerAddr: firstNonEmpty(raw.Worker.Addr, envOrDefault("WORKER_ADDR", ":9090")),
		DedupTTL:   durationOr(raw.DedupTTL, envOrDefaultDuration("DEDUP_TTL", 24*time.Hour)),
		EventsList: firstNonEmpty(raw.Redis.EventsList, envOrDefault("EVENTS_LIST", "sentinova:events:classified")),
	}

	cfg.EventsEnabled = true
	if raw.EventsEnabled != nil {
		cfg.EventsEnabled = *raw.EventsEnabled
	} else if v := os.Getenv("EVENTS_ENABLED"); v != "" {
		cfg.EventsEnabled = v == "true" || v == "1"
	}

	// Build mailbox configs
	for _, m := range raw.Mailboxes {
		mc := MailboxConfig{
			Alias:    m.Alias,
			Server:   m.Server,
			Address:  m.Address,
			Password: m.Password,
			Auth:     m.Auth,
			OAuth2: OAuth2Config{
				TokenURL:     m.OAuth2.TokenURL,
				ClientID:     m.OAuth2.ClientID,
				ClientSecret: m.OAuth2.ClientSecret,
				Scopes:       m.OAuth2.Scopes,
			},
			Folder:         m.Folder,
			PollInterval:   durationOr(m.PollInterval, 5*time.Minute),
			ExcludeSenders: m.ExcludeSenders,
		}

		// Skip mailboxes with empty credentials (commented out in YAML)
		if mc.Server == "" || mc.Address == "" {
			continue
		}

		applyMailboxDefaults(&mc)
		cfg.Mailboxes = append(cfg.Mailboxes, mc)
	}

	// Single-mailbox env fallback for deployments without a YAML file.
	if len(cfg.Mailboxes) == 0 {
		if server := os.Getenv("EMAIL_IMAP_SERVER"); server != "" {
			mc := MailboxConfig{
				Alias:        "default",
				Server:       server,
				Address:      os.Getenv("EMAIL_ADDRESS"),
				Password:     os.Getenv("EMAIL_PASSWORD"),
				Auth:         "password",
				PollInterval: envOrDefaultDuration("EMAIL_POLL_INTERVAL", 5*time.Minute),
			}
			applyMailboxDefaults(&mc)
			cfg.Mailboxes = append(cfg.Mailboxes, mc)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SlogLevel maps the configured log level name onto slog's scale. Unknown
// names fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyMailboxDefaults(mc *MailboxConfig) {
	if mc.Alias == "" {
		mc.Alias = mc.Address
	}
	if mc.Auth == "" {
		mc.Auth = "password"
	}
	if mc.Folder == "" {
		mc.Folder = "INBOX"
	}
	if !strings.Contains(mc.Server, ":") {
		mc.Server += ":993"
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required — set DATABASE_URL or config.yaml")
	}
	if c.Processing.BatchSize < 1 {
		return fmt.Errorf("processing.batch_size must be >= 1, got %d", c.Processing.BatchSize)
	}
	if c.Processing.MaxRetries < 1 {
		return fmt.Errorf("processing.max_retries must be >= 1, got %d", c.Processing.MaxRetries)
	}
	if c.Processing.Interval <= 0 || c.Processing.ProcessingTimeout <= 0 || c.Processing.CallTimeout <= 0 {
		return fmt.Errorf("processing intervals and timeouts must be positive")
	}
	if c.Processing.MaxBackoff < c.Processing.Interval {
		return fmt.Errorf("processing.max_backoff (%s) must not be below processing.interval (%s)",
			c.Processing.MaxBackoff, c.Processing.Interval)
	}
	for _, m := range c.Mailboxes {
		if m.Auth != "password" && m.Auth != "oauth2" {
			return fmt.Errorf("mailbox %s: auth must be \"password\" or \"oauth2\", got %q", m.Alias, m.Auth)
		}
		if m.Auth == "password" && m.Password == "" {
			return fmt.Errorf("mailbox %s: password is required for password auth", m.Alias)
		}
		if m.Auth == "oauth2" && (m.OAuth2.TokenURL == "" || m.OAuth2.ClientID == "" || m.OAuth2.ClientSecret == "") {
			return fmt.Errorf("mailbox %s: oauth2 requires token_url, client_id and client_secret", m.Alias)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}
