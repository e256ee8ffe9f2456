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

// Package mail ingests customer email over IMAP. One poller per configured
// mailbox tracks its position with a persisted UID cursor, stores new mail
// as pending messages, and marks fetched mail read on the server.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/manisang89/sentinova/internal/config"
	"github.com/manisang89/sentinova/internal/models"
	"github.com/manisang89/sentinova/internal/store"
)

// Store persists ingested messages and mailbox sync cursors.
type Store interface {
	Insert(ctx context.Context, m *models.Message) error
	LoadCursor(ctx context.Context, mailbox, folder string) (*store.Cursor, error)
	SaveCursor(ctx context.Context, c store.Cursor) error
}

// Agent polls the configured mailboxes for new customer email.
type Agent struct {
	store    Store
	dialer   *Dialer
	ingestor *Ingestor
	boxes    []config.MailboxConfig
}

// NewAgent creates an Agent for the configured mailboxes.
func NewAgent(st Store, dd Deduper, boxes []config.MailboxConfig) *Agent {
	return &Agent{
		store:    st,
		dialer:   NewDialer(),
		ingestor: NewIngestor(st, dd, boxes),
		boxes:    boxes,
	}
}

// Run starts one polling loop per mailbox and blocks until the context is
// cancelled and all loops have stopped.
func (a *Agent) Run(ctx context.Context) {
	slog.Info("mail agent starting", "mailboxes", len(a.boxes))

	var wg sync.WaitGroup
	for _, mb := range a.boxes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runMailbox(ctx, mb)
		}()
	}
	wg.Wait()

	slog.Info("mail agent stopped")
}

func (a *Agent) runMailbox(ctx context.Context, mb config.MailboxConfig) {
	slog.Info("mailbox poller starting",
		"mailbox", mb.Alias,
		"folder", mb.Folder,
		"interval", mb.PollInterval,
	)

	// Do an initial poll immediately
	a.poll(ctx, mb)

	ticker := time.NewTicker(mb.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("mailbox poller stopping", "mailbox", mb.Alias)
			return
		case <-ticker.C:
			a.poll(ctx, mb)
		}
	}
}

func (a *Agent) poll(ctx context.Context, mb config.MailboxConfig) {
	ingested, err := a.syncOnce(ctx, mb)
	if err != nil {
		slog.Error("mailbox poll failed", "mailbox", mb.Alias, "error", err)
		return
	}
	if ingested > 0 {
		slog.Info("mailbox poll complete", "mailbox", mb.Alias, "ingested", ingested)
	}
}

// syncOnce dials the mailbox, ingests everything past the cursor, and
// advances it. Each poll uses a fresh connection so a wedged session never
// outlives one cycle.
func (a *Agent) syncOnce(ctx context.Context, mb config.MailboxConfig) (int, error) {
	c, err := a.dialer.Dial(ctx, mb)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	sel, err := c.Select(mb.Folder, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", mb.Folder, err)
	}

	cur, err := a.store.LoadCursor(ctx, mb.Address, mb.Folder)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}

	lastUID := uint32(0)
	criteria := &imap.SearchCriteria{}
	if cur != nil && cur.UIDValidity == sel.UIDValidity && cur.LastUID > 0 {
		lastUID = cur.LastUID
		var set imap.UIDSet
		set.AddRange(imap.UID(lastUID+1), 0)
		criteria.UID = []imap.UIDSet{set}
	} else {
		// First sync, or the server reset UIDVALIDITY. Fall back to unseen
		// mail; everything we fetch gets marked read below.
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	data, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		if cur == nil || cur.UIDValidity != sel.UIDValidity {
			if err := a.saveCursor(ctx, mb, sel.UIDValidity, lastUID); err != nil {
				return 0, err
			}
		}
		logout(c, mb.Alias)
		return 0, nil
	}

	slog.Info("found new mail", "mailbox", mb.Alias, "count", len(uids))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}
	msgs, err := c.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return 0, fmt.Errorf("fetch %d messages: %w", len(uids), err)
	}

	ingested := 0
	maxUID := lastUID
	fetched := make([]imap.UID, 0, len(msgs))
	for _, buf := range msgs {
		if ctx.Err() != nil {
			return ingested, ctx.Err()
		}
		fetched = append(fetched, buf.UID)
		if uint32(buf.UID) > maxUID {
			maxUID = uint32(buf.UID)
		}

		stored, err := a.ingestor.Ingest(ctx, mb, buf.FindBodySection(bodySection))
		if err != nil {
			// Skip the broken message; the cursor still advances past it.
			slog.Error("failed to process message",
				"mailbox", mb.Alias,
				"uid", uint32(buf.UID),
				"error", err,
			)
			continue
		}
		if stored {
			ingested++
		}
	}

	// Mark everything we fetched as read so the unseen fallback stays quiet.
	if len(fetched) > 0 {
		flags := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagSeen}}
		if err := c.Store(imap.UIDSetNum(fetched...), flags, nil).Close(); err != nil {
			slog.Warn("failed to mark messages seen", "mailbox", mb.Alias, "error", err)
		}
	}

	if maxUID != lastUID || cur == nil || cur.UIDValidity != sel.UIDValidity {
		if err := a.saveCursor(ctx, mb, sel.UIDValidity, maxUID); err != nil {
			return ingested, err
		}
	}

	logout(c, mb.Alias)
	return ingested, nil
}

func (a *Agent) saveCursor(ctx context.Context, mb config.MailboxConfig, uidValidity, lastUID uint32) error {
	cur := store.Cursor{
		Mailbox:     mb.Address,
		Folder:      mb.Folder,
		UIDValidity: uidValidity,
		LastUID:     lastUID,
	}
	if err := a.store.SaveCursor(ctx, cur); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func logout(c *imapclient.Client, alias string) {
	if err := c.Logout().Wait(); err != nil {
		slog.Debug("imap logout failed", "mailbox", alias, "error", err)
	}
}
