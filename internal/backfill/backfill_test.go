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

package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/manisang89/sentinova/internal/mail"
)

// TestNewRunner_Defaults verifies chunk size and page delay defaults.
func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(RunnerConfig{Dialer: mail.NewDialer()})

	if r.chunkSize != 50 {
		t.Errorf("chunkSize = %d, want 50", r.chunkSize)
	}
	if r.pageDelay != 500*time.Millisecond {
		t.Errorf("pageDelay = %v, want 500ms", r.pageDelay)
	}

	r = NewRunner(RunnerConfig{ChunkSize: 10, PageDelay: time.Second})
	if r.chunkSize != 10 {
		t.Errorf("chunkSize = %d, want 10", r.chunkSize)
	}
	if r.pageDelay != time.Second {
		t.Errorf("pageDelay = %v, want 1s", r.pageDelay)
	}
}

// TestRun_NoMailboxes verifies clean completion with nothing to do.
func TestRun_NoMailboxes(t *testing.T) {
	r := NewRunner(RunnerConfig{Dialer: mail.NewDialer()})

	res, err := r.Run(context.Background(), Request{Since: 24 * time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalNew != 0 || res.TotalSkipped != 0 {
		t.Errorf("totals = %d/%d, want 0/0", res.TotalNew, res.TotalSkipped)
	}
	if len(res.MailboxResults) != 0 {
		t.Errorf("mailbox results = %d, want 0", len(res.MailboxResults))
	}
}
