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

package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/manisang89/sentinova/internal/config"
	"github.com/manisang89/sentinova/internal/dedup"
	"github.com/manisang89/sentinova/internal/models"
	"github.com/manisang89/sentinova/internal/telemetry"
)

// Inserter persists ingested messages.
type Inserter interface {
	Insert(ctx context.Context, m *models.Message) error
}

// Deduper suppresses messages already seen. Nil disables deduplication.
type Deduper interface {
	IsNew(ctx context.Context, fingerprint string) (bool, error)
}

// Ingestor runs fetched mail through parse, sender exclusion, dedup, and
// storage. It is shared by the polling agent and the backfill runner.
type Ingestor struct {
	store   Inserter
	dedup   Deduper
	filters map[string]*SenderFilter
}

// NewIngestor creates an Ingestor for the configured mailboxes.
func NewIngestor(st Inserter, dd Deduper, boxes []config.MailboxConfig) *Ingestor {
	filters := make(map[string]*SenderFilter, len(boxes))
	for _, mb := range boxes {
		filters[mb.Alias] = NewSenderFilter(mb.ExcludeSenders)
	}
	return &Ingestor{store: st, dedup: dd, filters: filters}
}

// Ingest parses one raw message and stores it as a pending record. It
// returns false when the message was skipped: empty body, excluded sender,
// or already seen.
func (ing *Ingestor) Ingest(ctx context.Context, mb config.MailboxConfig, raw []byte) (bool, error) {
	if len(raw) == 0 {
		return false, errors.New("empty fetch response")
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		return false, err
	}

	if parsed.Body == "" {
		slog.Debug("skipping email with empty body", "mailbox", mb.Alias, "sender", parsed.Sender)
		return false, nil
	}
	if ing.filters[mb.Alias].Excluded(parsed.Sender) {
		slog.Debug("skipping excluded sender", "mailbox", mb.Alias, "sender", parsed.Sender)
		return false, nil
	}

	if ing.dedup != nil {
		fresh, err := ing.dedup.IsNew(ctx, fingerprint(mb.Address, parsed))
		if err != nil {
			// Dedup is advisory: never drop mail because Redis is down.
			slog.Warn("dedup check failed, ingesting anyway", "mailbox", mb.Alias, "error", err)
		} else if !fresh {
			slog.Debug("duplicate email suppressed", "mailbox", mb.Alias, "message_id", parsed.MessageID)
			return false, nil
		}
	}

	m := &models.Message{
		ID:         uuid.New().String(),
		Source:     models.SourceEmail,
		Sender:     parsed.Sender,
		Subject:    parsed.Subject,
		Body:       parsed.Body,
		ReceivedAt: time.Now().UTC(),
		Status:     models.StatusPending,
		Metadata:   emailMetadata(mb, parsed),
	}
	if err := ing.store.Insert(ctx, m); err != nil {
		return false, fmt.Errorf("store message: %w", err)
	}

	telemetry.MessagesIngested.WithLabelValues(string(models.SourceEmail)).Inc()
	slog.Info("email ingested",
		"id", m.ID,
		"mailbox", mb.Alias,
		"sender", parsed.Sender,
	)
	return true, nil
}

// fingerprint keys dedup on Message-ID when the sender supplied one, falling
// back to content identity for mail without.
func fingerprint(mailbox string, p *Parsed) string {
	if p.MessageID != "" {
		return dedup.Fingerprint(string(models.SourceEmail), mailbox, p.MessageID)
	}
	return dedup.Fingerprint(string(models.SourceEmail), p.Sender, p.Body)
}

func emailMetadata(mb config.MailboxConfig, p *Parsed) map[string]any {
	meta := map[string]any{
		"mailbox": mb.Alias,
		"folder":  mb.Folder,
	}
	if p.MessageID != "" {
		meta["message_id"] = p.MessageID
	}
	if !p.Date.IsZero() {
		meta["date"] = p.Date.UTC().Format(time.RFC3339)
	}
	return meta
}
