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

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Cursor tracks the last ingested IMAP UID for one mailbox folder, so
// restarts resume where the previous poll left off instead of re-scanning.
type Cursor struct {
	Mailbox     string
	Folder      string
	UIDValidity uint32
	LastUID     uint32
	UpdatedAt   time.Time
}

// SaveCursor upserts the read position for a mailbox folder.
func (s *Store) SaveCursor(ctx context.Context, c Cursor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mailbox_cursors (mailbox, folder, uid_validity, last_uid, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (mailbox, folder) DO UPDATE SET
			uid_validity = EXCLUDED.uid_validity,
			last_uid     = EXCLUDED.last_uid,
			updated_at   = NOW()
	`, c.Mailbox, c.Folder, int64(c.UIDValidity), int64(c.LastUID))
	if err != nil {
		return fmt.Errorf("save cursor %s/%s: %w", c.Mailbox, c.Folder, err)
	}
	return nil
}

// LoadCursor retrieves the read position for a mailbox folder, or nil when
// the folder has never been polled.
func (s *Store) LoadCursor(ctx context.Context, mailbox, folder string) (*Cursor, error) {
	var c Cursor
	var uidValidity, lastUID int64
	err := s.pool.QueryRow(ctx, `
		SELECT mailbox, folder, uid_validity, last_uid, updated_at
		FROM mailbox_cursors
		WHERE mailbox = $1 AND folder = $2
	`, mailbox, folder).Scan(&c.Mailbox, &c.Folder, &uidValidity, &lastUID, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.UIDValidity = uint32(uidValidity)
	c.LastUID = uint32(lastUID)
	return &c, nil
}
