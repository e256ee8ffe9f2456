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

// Package store provides the Postgres-backed message store shared by the
// ingestion agents, the processing worker, and the dashboard API.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/manisang89/sentinova/internal/models"
)

// ErrStaleClaim is returned when a result write finds the record no longer in
// processing state — the claim was reconciled away while the classifier call
// was in flight. The attempt's result is discarded; the record will be picked
// up again by a later cycle.
var ErrStaleClaim = errors.New("message is no longer claimed")

// Store provides CRUD and lifecycle operations for messages in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a message store backed by the given Postgres pool.
// It ensures the schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure message schema: %w", err)
	}
	slog.Info("message store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id            TEXT PRIMARY KEY,
			source        TEXT NOT NULL,
			sender        TEXT NOT NULL DEFAULT 'Anonymous',
			subject       TEXT NOT NULL DEFAULT '',
			body          TEXT NOT NULL,
			received_at   TIMESTAMPTZ NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			attempt_count INT NOT NULL DEFAULT 0,
			sentiment     TEXT,
			confidence    DOUBLE PRECISION,
			summary       TEXT NOT NULL DEFAULT '',
			keywords      TEXT[],
			last_error    TEXT,
			claimed_at    TIMESTAMPTZ,
			processed_at  TIMESTAMPTZ,
			metadata      JSONB,
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_messages_claimable ON messages(status, attempt_count, received_at);
		CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_sentiment ON messages(sentiment) WHERE sentiment IS NOT NULL;

		CREATE TABLE IF NOT EXISTS mailbox_cursors (
			mailbox      TEXT NOT NULL,
			folder       TEXT NOT NULL,
			uid_validity BIGINT NOT NULL DEFAULT 0,
			last_uid     BIGINT NOT NULL DEFAULT 0,
			updated_at   TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (mailbox, folder)
		);
	`)
	return err
}

const messageColumns = `id, source, sender, subject, body, received_at, status,
	attempt_count, sentiment, confidence, summary, keywords, last_error,
	claimed_at, processed_at, metadata`

// Insert stores a newly ingested message. Missing lifecycle fields default to
// a fresh pending record received now.
func (s *Store) Insert(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		return fmt.Errorf("insert message: id is required")
	}
	if m.Status == "" {
		m.Status = models.StatusPending
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages
			(id, source, sender, subject, body, received_at, status, attempt_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.Source, m.Sender, m.Subject, m.Body, m.ReceivedAt, m.Status, m.AttemptCount, m.Metadata)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a single message, or nil if it does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, id)
	return scanMessage(row)
}

// SelectClaimable returns up to limit records eligible for classification:
// pending or failed, below the retry cap, oldest first.
func (s *Store) SelectClaimable(ctx context.Context, limit, maxRetries int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status IN ('pending', 'failed') AND attempt_count < $1
		ORDER BY received_at ASC
		LIMIT $2
	`, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// Claim transitions a record into processing and charges one attempt. The
// update is conditional on the record still holding the status the caller
// selected it with, so two workers racing on the same record get exactly one
// winner. Returns false when the condition did not hold.
func (s *Store) Claim(ctx context.Context, id string, expected models.Status) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status = 'processing', attempt_count = attempt_count + 1, claimed_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, expected)
	if err != nil {
		return false, fmt.Errorf("claim message %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete records a successful classification. Sentiment, confidence,
// summary and keywords are written together in one update, guarded by the
// processing status so a reclaimed record cannot be overwritten.
func (s *Store) Complete(ctx context.Context, id string, res models.Classification) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status = 'completed', sentiment = $2, confidence = $3, summary = $4,
		    keywords = $5, processed_at = NOW(), last_error = NULL
		WHERE id = $1 AND status = 'processing'
	`, id, res.Sentiment, res.Confidence, res.Summary, res.Keywords)
	if err != nil {
		return fmt.Errorf("complete message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete message %s: %w", id, ErrStaleClaim)
	}
	return nil
}

// Fail records a failed classification attempt. The record becomes eligible
// for the next cycle's selection while attempt_count stays below the cap.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status = 'failed', last_error = $2
		WHERE id = $1 AND status = 'processing'
	`, id, truncate(reason, 1000))
	if err != nil {
		return fmt.Errorf("fail message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail message %s: %w", id, ErrStaleClaim)
	}
	return nil
}

// ReconcileStale releases processing records whose claim is older than the
// timeout. Records below the retry cap go back to pending for reselection;
// records whose expired claim was their final allowed attempt go straight to
// failed, since nothing would ever select them as pending again. Run at the
// start of each cycle so a crash between claim and result write cannot
// strand records forever.
func (s *Store) ReconcileStale(ctx context.Context, olderThan time.Duration, maxRetries int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status     = CASE WHEN attempt_count >= $2 THEN 'failed' ELSE 'pending' END,
		    last_error = CASE WHEN attempt_count >= $2 THEN 'claim expired on final attempt' ELSE last_error END,
		    claimed_at = NULL
		WHERE status = 'processing'
		  AND (claimed_at IS NULL OR claimed_at < NOW() - $1::interval)
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())), maxRetries)
	if err != nil {
		return 0, fmt.Errorf("reconcile stale claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns the number of messages in each lifecycle state.
func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM messages GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status models.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SentimentDistribution returns per-sentiment counts of messages received
// within the window.
func (s *Store) SentimentDistribution(ctx context.Context, window time.Duration) (map[models.Sentiment]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sentiment, COUNT(*)
		FROM messages
		WHERE status = 'completed' AND received_at >= NOW() - $1::interval
		GROUP BY sentiment
	`, fmt.Sprintf("%d seconds", int(window.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dist := make(map[models.Sentiment]int64)
	for rows.Next() {
		var sentiment models.Sentiment
		var n int64
		if err := rows.Scan(&sentiment, &n); err != nil {
			return nil, err
		}
		dist[sentiment] = n
	}
	return dist, rows.Err()
}

// DailyTrend returns per-day sentiment counts over the last N days, oldest
// day first.
func (s *Store) DailyTrend(ctx context.Context, days int) ([]models.TrendPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(date_trunc('day', received_at), 'YYYY-MM-DD') AS day, sentiment, COUNT(*)
		FROM messages
		WHERE status = 'completed' AND received_at >= NOW() - $1::interval
		GROUP BY day, sentiment
		ORDER BY day ASC
	`, fmt.Sprintf("%d days", days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trend []models.TrendPoint
	byDay := make(map[string]int)
	for rows.Next() {
		var day string
		var sentiment models.Sentiment
		var n int64
		if err := rows.Scan(&day, &sentiment, &n); err != nil {
			return nil, err
		}
		idx, ok := byDay[day]
		if !ok {
			trend = append(trend, models.TrendPoint{
				Day:        day,
				Sentiments: make(map[models.Sentiment]int64),
			})
			idx = len(trend) - 1
			byDay[day] = idx
		}
		trend[idx].Sentiments[sentiment] = n
		trend[idx].Total += n
	}
	return trend, rows.Err()
}

// AngerStats returns the anger count and completed total for messages
// received within the window, for the dashboard's alert ratio.
func (s *Store) AngerStats(ctx context.Context, window time.Duration) (angry, total int64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE sentiment = 'anger'), COUNT(*)
		FROM messages
		WHERE status = 'completed' AND received_at >= NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(window.Seconds()))).Scan(&angry, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("anger stats: %w", err)
	}
	return angry, total, nil
}

// RecentFilter narrows a Recent query. Zero values mean no filter.
type RecentFilter struct {
	Limit     int
	Status    models.Status
	Sentiment models.Sentiment
	Source    models.Source
}

// Recent returns the newest messages matching the filter, newest first.
func (s *Store) Recent(ctx context.Context, f RecentFilter) ([]models.Message, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Sentiment != "" {
		args = append(args, f.Sentiment)
		conds = append(conds, fmt.Sprintf("sentiment = $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}

	q := `SELECT ` + messageColumns + ` FROM messages`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// scanMessage scans a single row into a Message.
func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var sentiment *string
	err := row.Scan(
		&m.ID, &m.Source, &m.Sender, &m.Subject, &m.Body, &m.ReceivedAt,
		&m.Status, &m.AttemptCount, &sentiment, &m.Confidence, &m.Summary,
		&m.Keywords, &m.LastError, &m.ClaimedAt, &m.ProcessedAt, &m.Metadata,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sentiment != nil {
		m.Sentiment = models.Sentiment(*sentiment)
	}
	return &m, nil
}

// collectMessages scans all rows into a slice of Messages.
func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// truncate caps s at max bytes without splitting a multibyte rune, so the
// result stays valid UTF-8 for the TEXT columns.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
