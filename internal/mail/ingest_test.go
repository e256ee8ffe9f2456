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
	"testing"

	"github.com/manisang89/sentinova/internal/config"
	"github.com/manisang89/sentinova/internal/models"
)

type memInserter struct {
	insertErr error
	messages  []*models.Message
}

func (s *memInserter) Insert(_ context.Context, m *models.Message) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.messages = append(s.messages, m)
	return nil
}

type stubDeduper struct {
	fresh bool
	err   error
}

func (d *stubDeduper) IsNew(context.Context, string) (bool, error) {
	return d.fresh, d.err
}

func testMailbox() config.MailboxConfig {
	return config.MailboxConfig{
		Alias:          "support",
		Address:        "support@sentinova.io",
		Folder:         "INBOX",
		ExcludeSenders: []string{"no-reply"},
	}
}

var sampleMail = []byte(crlf(`From: Alice Doe <alice@example.com>
Subject: Broken widget
Message-ID: <m1@example.com>
Content-Type: text/plain; charset=utf-8

The widget arrived broken and I want a refund.
`))

// TestIngest_Stores verifies a valid message becomes a pending record.
func TestIngest_Stores(t *testing.T) {
	st := &memInserter{}
	mb := testMailbox()
	ing := NewIngestor(st, nil, []config.MailboxConfig{mb})

	stored, err := ing.Ingest(context.Background(), mb, sampleMail)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !stored {
		t.Fatal("stored = false, want true")
	}
	if len(st.messages) != 1 {
		t.Fatalf("stored %d messages, want 1", len(st.messages))
	}

	m := st.messages[0]
	if m.Source != models.SourceEmail {
		t.Errorf("source = %q, want email", m.Source)
	}
	if m.Sender != "alice@example.com" {
		t.Errorf("sender = %q", m.Sender)
	}
	if m.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", m.Status)
	}
	if m.ID == "" {
		t.Error("id is empty")
	}
	if m.Metadata["message_id"] != "m1@example.com" {
		t.Errorf("metadata message_id = %v", m.Metadata["message_id"])
	}
	if m.Metadata["mailbox"] != "support" {
		t.Errorf("metadata mailbox = %v", m.Metadata["mailbox"])
	}
}

// TestIngest_SkipsEmptyBody verifies bodyless mail is dropped without error.
func TestIngest_SkipsEmptyBody(t *testing.T) {
	st := &memInserter{}
	mb := testMailbox()
	ing := NewIngestor(st, nil, []config.MailboxConfig{mb})

	raw := []byte(crlf(`From: alice@example.com
Subject: empty
Content-Type: text/plain

`))
	stored, err := ing.Ingest(context.Background(), mb, raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stored || len(st.messages) != 0 {
		t.Errorf("stored = %v with %d messages, want skip", stored, len(st.messages))
	}
}

// TestIngest_SkipsExcludedSender verifies the exclude list applies.
func TestIngest_SkipsExcludedSender(t *testing.T) {
	st := &memInserter{}
	mb := testMailbox()
	ing := NewIngestor(st, nil, []config.MailboxConfig{mb})

	raw := []byte(crlf(`From: no-reply@shop.example.com
Subject: your order shipped
Content-Type: text/plain

Order 42 is on the way.
`))
	stored, err := ing.Ingest(context.Background(), mb, raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stored || len(st.messages) != 0 {
		t.Errorf("stored = %v with %d messages, want skip", stored, len(st.messages))
	}
}

// TestIngest_SuppressesDuplicates verifies the dedup gate.
func TestIngest_SuppressesDuplicates(t *testing.T) {
	st := &memInserter{}
	mb := testMailbox()
	ing := NewIngestor(st, &stubDeduper{fresh: false}, []config.MailboxConfig{mb})

	stored, err := ing.Ingest(context.Background(), mb, sampleMail)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stored || len(st.messages) != 0 {
		t.Errorf("stored = %v with %d messages, want suppressed", stored, len(st.messages))
	}
}

// TestIngest_DedupFailureStoresAnyway verifies ingestion survives a dedup
// backend outage.
func TestIngest_DedupFailureStoresAnyway(t *testing.T) {
	st := &memInserter{}
	mb := testMailbox()
	ing := NewIngestor(st, &stubDeduper{err: errors.New("redis down")}, []config.MailboxConfig{mb})

	stored, err := ing.Ingest(context.Background(), mb, sampleMail)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !stored || len(st.messages) != 1 {
		t.Errorf("stored = %v with %d messages, want stored", stored, len(st.messages))
	}
}

// TestIngest_Errors covers the hard failure paths.
func TestIngest_Errors(t *testing.T) {
	mb := testMailbox()

	t.Run("empty fetch", func(t *testing.T) {
		ing := NewIngestor(&memInserter{}, nil, []config.MailboxConfig{mb})
		if _, err := ing.Ingest(context.Background(), mb, nil); err == nil {
			t.Error("expected error for empty fetch response")
		}
	})

	t.Run("insert failure", func(t *testing.T) {
		st := &memInserter{insertErr: errors.New("connection refused")}
		ing := NewIngestor(st, nil, []config.MailboxConfig{mb})
		if _, err := ing.Ingest(context.Background(), mb, sampleMail); err == nil {
			t.Error("expected error when insert fails")
		}
	})
}
