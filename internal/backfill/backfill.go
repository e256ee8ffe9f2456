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

// Package backfill ingests historical email by searching mailboxes within a
// date range and feeding each message through the regular ingestion path.
// Dedup makes reruns safe.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/manisang89/sentinova/internal/config"
	"github.com/manisang89/sentinova/internal/mail"
)

// Request defines the scope of a historical ingestion run.
type Request struct {
	Mailboxes []config.MailboxConfig
	Since     time.Duration // lookback window (e.g. 168h = 1 week)
	Folder    string        // overrides each mailbox folder when set
}

// Result summarises a completed backfill run.
type Result struct {
	MailboxResults []MailboxResult
	TotalNew       int
	TotalSkipped   int
	Elapsed        time.Duration
}

// MailboxResult tracks per-mailbox backfill progress.
type MailboxResult struct {
	Alias   string
	Fetched int
	Skipped int
	Errors  int
}

// Runner performs historical email backfill.
type Runner struct {
	dialer    *mail.Dialer
	ingestor  *mail.Ingestor
	chunkSize int
	pageDelay time.Duration // delay between fetch chunks to avoid throttling
}

// RunnerConfig holds dependencies for the backfill runner.
type RunnerConfig struct {
	Dialer    *mail.Dialer
	Ingestor  *mail.Ingestor
	ChunkSize int
	PageDelay time.Duration
}

// NewRunner creates a backfill runner.
func NewRunner(cfg RunnerConfig) *Runner {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 50
	}
	delay := cfg.PageDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	return &Runner{
		dialer:    cfg.Dialer,
		ingestor:  cfg.Ingestor,
		chunkSize: chunk,
		pageDelay: delay,
	}
}

// Run performs the backfill for all specified mailboxes.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	since := time.Now().UTC().Add(-req.Since)

	slog.Info("starting historical backfill",
		"mailboxes", len(req.Mailboxes),
		"since", since.Format(time.RFC3339),
	)

	result := &Result{}
	for _, mb := range req.Mailboxes {
		if req.Folder != "" {
			mb.Folder = req.Folder
		}

		mr, err := r.backfillMailbox(ctx, mb, since)
		if err != nil {
			slog.Error("backfill failed for mailbox",
				"mailbox", mb.Alias,
				"error", err,
			)
			// Continue with other mailboxes
			mr.Errors++
		}

		result.MailboxResults = append(result.MailboxResults, mr)
		result.TotalNew += mr.Fetched
		result.TotalSkipped += mr.Skipped
	}

	result.Elapsed = time.Since(start)

	slog.Info("historical backfill complete",
		"total_new", result.TotalNew,
		"total_skipped", result.TotalSkipped,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// backfillMailbox searches and processes historical messages for a single
// mailbox.
func (r *Runner) backfillMailbox(ctx context.Context, mb config.MailboxConfig, since time.Time) (MailboxResult, error) {
	mr := MailboxResult{Alias: mb.Alias}

	slog.Info("backfilling mailbox",
		"mailbox", mb.Alias,
		"folder", mb.Folder,
		"since", since.Format(time.RFC3339),
	)

	c, err := r.dialer.Dial(ctx, mb)
	if err != nil {
		return mr, err
	}
	defer c.Close()

	if _, err := c.Select(mb.Folder, nil).Wait(); err != nil {
		return mr, fmt.Errorf("select %s: %w", mb.Folder, err)
	}

	data, err := c.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return mr, fmt.Errorf("search since %s: %w", since.Format(time.DateOnly), err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		slog.Info("no historical mail in range", "mailbox", mb.Alias)
		return mr, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	chunks := 0
	for start := 0; start < len(uids); start += r.chunkSize {
		// Rate limit between chunks
		if chunks > 0 {
			select {
			case <-ctx.Done():
				return mr, ctx.Err()
			case <-time.After(r.pageDelay):
			}
		}

		end := min(start+r.chunkSize, len(uids))
		msgs, err := c.Fetch(imap.UIDSetNum(uids[start:end]...), fetchOpts).Collect()
		if err != nil {
			return mr, fmt.Errorf("fetch chunk %d: %w", chunks, err)
		}
		chunks++

		slog.Debug("backfill chunk fetched",
			"mailbox", mb.Alias,
			"chunk", chunks,
			"messages", len(msgs),
		)

		for _, buf := range msgs {
			stored, err := r.ingestor.Ingest(ctx, mb, buf.FindBodySection(bodySection))
			if err != nil {
				slog.Warn("backfill: process message failed",
					"mailbox", mb.Alias,
					"uid", uint32(buf.UID),
					"error", err,
				)
				mr.Errors++
				continue
			}
			if stored {
				mr.Fetched++
			} else {
				mr.Skipped++
			}
		}
	}

	slog.Info("mailbox backfill complete",
		"mailbox", mb.Alias,
		"fetched", mr.Fetched,
		"skipped", mr.Skipped,
		"errors", mr.Errors,
		"chunks", chunks,
	)
	return mr, nil
}
