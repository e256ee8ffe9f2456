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

// Sentinova — Historical Backfill Command
//
// Standalone CLI tool that ingests historical emails from configured IMAP
// mailboxes within a lookback window. Intended for seeding data on new
// deployments. Dedup makes reruns safe.
//
// Usage:
//
//	go run ./cmd/backfill/ [--mailbox <alias>] [--since 168h] [--folder INBOX]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/manisang89/sentinova/internal/backfill"
	"github.com/manisang89/sentinova/internal/config"
	"github.com/manisang89/sentinova/internal/dedup"
	"github.com/manisang89/sentinova/internal/mail"
	"github.com/manisang89/sentinova/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	mailboxFlag := flag.String("mailbox", "", "Mailbox alias to backfill (optional; empty = all configured mailboxes)")
	sinceFlag := flag.String("since", "168h", "Lookback duration (e.g. 168h for 1 week, 720h for 30 days)")
	folderFlag := flag.String("folder", "", "IMAP folder to search (optional; empty = each mailbox's configured folder)")
	flag.Parse()

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// --- Resolve Mailboxes ---
	boxes := cfg.Mailboxes
	if *mailboxFlag != "" {
		boxes = nil
		for _, mb := range cfg.Mailboxes {
			if mb.Alias == *mailboxFlag {
				boxes = append(boxes, mb)
			}
		}
		if len(boxes) == 0 {
			slog.Error("mailbox not found in configuration", "alias", *mailboxFlag)
			os.Exit(1)
		}
	}
	if len(boxes) == 0 {
		slog.Error("no mailboxes configured")
		os.Exit(1)
	}

	slog.Info("starting historical backfill",
		"mailboxes", len(boxes),
		"since", sinceDuration,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise message store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb, cfg.DedupTTL)

	// --- Run Backfill ---
	runner := backfill.NewRunner(backfill.RunnerConfig{
		Dialer:   mail.NewDialer(),
		Ingestor: mail.NewIngestor(st, filter, boxes),
	})

	result, err := runner.Run(ctx, backfill.Request{
		Mailboxes: boxes,
		Since:     sinceDuration,
		Folder:    *folderFlag,
	})
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("backfill complete",
		"total_new", result.TotalNew,
		"total_skipped", result.TotalSkipped,
		"elapsed", result.Elapsed,
	)

	for _, mr := range result.MailboxResults {
		slog.Info("mailbox result",
			"mailbox", mr.Alias,
			"fetched", mr.Fetched,
			"skipped", mr.Skipped,
			"errors", mr.Errors,
		)
	}
}
