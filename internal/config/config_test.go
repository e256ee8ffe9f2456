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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig drops a YAML file into a temp dir and points Load at it.
func writeConfig(t *testing.T, yaml string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("SENTINOVA_CONFIG", path)
}

// pointAtMissingConfig makes Load run env-only.
func pointAtMissingConfig(t *testing.T) {
	t.Helper()
	t.Setenv("SENTINOVA_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	pointAtMissingConfig(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinova")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.Processing.BatchSize != 10 || cfg.Processing.MaxRetries != 3 {
		t.Errorf("processing defaults = %+v", cfg.Processing)
	}
	if cfg.Processing.Interval != 60*time.Second {
		t.Errorf("Interval = %v, want 60s", cfg.Processing.Interval)
	}
	if cfg.Processing.ProcessingTimeout != 5*time.Minute {
		t.Errorf("ProcessingTimeout = %v, want 5m", cfg.Processing.ProcessingTimeout)
	}
	if cfg.Processing.CallTimeout != 30*time.Second {
		t.Errorf("CallTimeout = %v, want 30s", cfg.Processing.CallTimeout)
	}
	if cfg.Processing.MaxBackoff != 15*time.Minute {
		t.Errorf("MaxBackoff = %v, want 15m", cfg.Processing.MaxBackoff)
	}
	if cfg.ServerAddr != ":8080" || cfg.WorkerAddr != ":9090" {
		t.Errorf("addrs = %q / %q", cfg.ServerAddr, cfg.WorkerAddr)
	}
	if cfg.DedupTTL != 24*time.Hour {
		t.Errorf("DedupTTL = %v, want 24h", cfg.DedupTTL)
	}
	if !cfg.EventsEnabled {
		t.Error("EventsEnabled = false, want true by default")
	}
	if len(cfg.Mailboxes) != 0 {
		t.Errorf("Mailboxes = %v, want none", cfg.Mailboxes)
	}
}

func TestLoad_YAMLOverrides(t *testing.T) {
	writeConfig(t, `
log_level: debug
database_url: postgres://db.internal/sentiment
redis:
  url: redis://cache.internal:6379/2
  events_list: "custom:events"
openai:
  api_key: sk-test
  model: gpt-4o
processing:
  batch_size: 25
  interval: 2m
  max_retries: 5
  processing_timeout: 10m
  call_timeout: 45s
  max_backoff: 30m
  rate_limit:
    per_second: 2.5
    burst: 8
server:
  addr: ":8081"
worker:
  addr: ":9091"
dedup_ttl: 48h
events_enabled: false
mailboxes:
  - alias: support
    server: imap.example.com
    address: support@example.com
    password: hunter2
    poll_interval: 90s
    exclude_senders:
      - noreply@
`)
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.DatabaseURL != "postgres://db.internal/sentiment" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://cache.internal:6379/2" || cfg.EventsList != "custom:events" {
		t.Errorf("redis = %q / %q", cfg.RedisURL, cfg.EventsList)
	}
	if cfg.OpenAI.APIKey != "sk-test" || cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("openai = %+v", cfg.OpenAI)
	}
	if cfg.Processing.BatchSize != 25 || cfg.Processing.Interval != 2*time.Minute || cfg.Processing.MaxRetries != 5 {
		t.Errorf("processing = %+v", cfg.Processing)
	}
	if cfg.Processing.RateLimit.PerSecond != 2.5 || cfg.Processing.RateLimit.Burst != 8 {
		t.Errorf("rate limit = %+v", cfg.Processing.RateLimit)
	}
	if cfg.DedupTTL != 48*time.Hour {
		t.Errorf("DedupTTL = %v", cfg.DedupTTL)
	}
	if cfg.EventsEnabled {
		t.Error("EventsEnabled = true, want explicit false honoured")
	}

	if len(cfg.Mailboxes) != 1 {
		t.Fatalf("Mailboxes = %d, want 1", len(cfg.Mailboxes))
	}
	mb := cfg.Mailboxes[0]
	if mb.Alias != "support" || mb.Address != "support@example.com" {
		t.Errorf("mailbox identity = %q / %q", mb.Alias, mb.Address)
	}
	if mb.Server != "imap.example.com:993" {
		t.Errorf("Server = %q, want port 993 appended", mb.Server)
	}
	if mb.Auth != "password" || mb.Folder != "INBOX" {
		t.Errorf("mailbox defaults = %q / %q", mb.Auth, mb.Folder)
	}
	if mb.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %v", mb.PollInterval)
	}
	if len(mb.ExcludeSenders) != 1 || mb.ExcludeSenders[0] != "noreply@" {
		t.Errorf("ExcludeSenders = %v", mb.ExcludeSenders)
	}
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	writeConfig(t, `
database_url: ${TEST_DATABASE_URL}
openai:
  api_key: ${TEST_OPENAI_KEY}
`)
	t.Setenv("TEST_DATABASE_URL", "postgres://expanded/db")
	t.Setenv("TEST_OPENAI_KEY", "sk-expanded")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://expanded/db" {
		t.Errorf("DatabaseURL = %q, want expanded value", cfg.DatabaseURL)
	}
	if cfg.OpenAI.APIKey != "sk-expanded" {
		t.Errorf("APIKey = %q, want expanded value", cfg.OpenAI.APIKey)
	}
}

func TestLoad_SingleMailboxEnvFallback(t *testing.T) {
	pointAtMissingConfig(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinova")
	t.Setenv("EMAIL_IMAP_SERVER", "imap.gmail.com")
	t.Setenv("EMAIL_ADDRESS", "inbox@example.com")
	t.Setenv("EMAIL_PASSWORD", "app-password")
	t.Setenv("EMAIL_POLL_INTERVAL", "3m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Mailboxes) != 1 {
		t.Fatalf("Mailboxes = %d, want 1", len(cfg.Mailboxes))
	}
	mb := cfg.Mailboxes[0]
	if mb.Alias != "default" || mb.Server != "imap.gmail.com:993" || mb.Folder != "INBOX" {
		t.Errorf("mailbox = %+v", mb)
	}
	if mb.PollInterval != 3*time.Minute {
		t.Errorf("PollInterval = %v", mb.PollInterval)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		pointAtMissingConfig(t)
		t.Setenv("DATABASE_URL", "")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "database_url") {
			t.Fatalf("Load err = %v, want database_url error", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		writeConfig(t, "processing: [not: a: map")
		t.Setenv("DATABASE_URL", "postgres://x")
		if _, err := Load(); err == nil {
			t.Fatal("Load accepted malformed YAML")
		}
	})

	t.Run("backoff below interval", func(t *testing.T) {
		writeConfig(t, `
database_url: postgres://x
processing:
  interval: 10m
  max_backoff: 1m
`)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "max_backoff") {
			t.Fatalf("Load err = %v, want max_backoff error", err)
		}
	})

	t.Run("unknown mailbox auth", func(t *testing.T) {
		writeConfig(t, `
database_url: postgres://x
mailboxes:
  - server: imap.example.com
    address: a@example.com
    auth: kerberos
`)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "auth") {
			t.Fatalf("Load err = %v, want auth error", err)
		}
	})

	t.Run("password auth without password", func(t *testing.T) {
		writeConfig(t, `
database_url: postgres://x
mailboxes:
  - server: imap.example.com
    address: a@example.com
`)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "password") {
			t.Fatalf("Load err = %v, want password error", err)
		}
	})

	t.Run("oauth2 without credentials", func(t *testing.T) {
		writeConfig(t, `
database_url: postgres://x
mailboxes:
  - server: imap.example.com
    address: a@example.com
    auth: oauth2
`)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "oauth2") {
			t.Fatalf("Load err = %v, want oauth2 error", err)
		}
	})
}

func TestLoad_SkipsIncompleteMailboxes(t *testing.T) {
	writeConfig(t, `
database_url: postgres://x
mailboxes:
  - alias: disabled
    server: ""
    address: ""
  - alias: active
    server: imap.example.com
    address: a@example.com
    password: pw
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Mailboxes) != 1 || cfg.Mailboxes[0].Alias != "active" {
		t.Errorf("Mailboxes = %+v, want only the active entry", cfg.Mailboxes)
	}
}
