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

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/manisang89/sentinova/internal/models"
)

func newTestPublisher(t *testing.T) (*Publisher, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewPublisher(client, "sentinova:classified"), client
}

// TestPublishClassified verifies the event envelope and FIFO delivery for a
// BRPOP consumer.
func TestPublishClassified(t *testing.T) {
	ctx := context.Background()
	pub, client := newTestPublisher(t)

	conf := 0.95
	done := time.Now().UTC()
	first := &models.Message{
		ID:          "m1",
		Source:      models.SourceEmail,
		Sender:      "alice@example.com",
		Status:      models.StatusCompleted,
		Sentiment:   models.SentimentAnger,
		Confidence:  &conf,
		Summary:     "Customer furious about outage",
		Keywords:    []string{"outage", "furious"},
		ReceivedAt:  done.Add(-time.Hour),
		ProcessedAt: &done,
	}
	if err := pub.PublishClassified(ctx, first); err != nil {
		t.Fatalf("PublishClassified: %v", err)
	}
	second := &models.Message{ID: "m2", Source: models.SourceFormContact, Status: models.StatusCompleted, Sentiment: models.SentimentNeutral}
	if err := pub.PublishClassified(ctx, second); err != nil {
		t.Fatalf("PublishClassified second: %v", err)
	}

	payload, err := client.RPop(ctx, "sentinova:classified").Result()
	if err != nil {
		t.Fatalf("RPOP: %v", err)
	}

	var ev struct {
		EventID    string           `json:"event_id"`
		Type       string           `json:"type"`
		MessageID  string           `json:"message_id"`
		Source     models.Source    `json:"source"`
		Sentiment  models.Sentiment `json:"sentiment"`
		Confidence float64          `json:"confidence"`
		Keywords   []string         `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}

	if ev.MessageID != "m1" {
		t.Errorf("RPOP returned %q first, want m1 (FIFO)", ev.MessageID)
	}
	if ev.Type != "message.classified" {
		t.Errorf("type = %q", ev.Type)
	}
	if ev.Sentiment != models.SentimentAnger || ev.Confidence != 0.95 {
		t.Errorf("verdict = %q/%v, want anger/0.95", ev.Sentiment, ev.Confidence)
	}
	if len(ev.Keywords) != 2 {
		t.Errorf("keywords = %v", ev.Keywords)
	}
	if _, err := uuid.Parse(ev.EventID); err != nil {
		t.Errorf("event_id %q is not a UUID: %v", ev.EventID, err)
	}

	if n, _ := client.LLen(ctx, "sentinova:classified").Result(); n != 1 {
		t.Errorf("list length after one pop = %d, want 1", n)
	}
}

// TestPublisherPing verifies connectivity checks surface Redis outages.
func TestPublisherPing(t *testing.T) {
	pub, _ := newTestPublisher(t)
	if err := pub.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	down := NewPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "x")
	if err := down.Ping(context.Background()); err == nil {
		t.Error("Ping against closed port succeeded")
	}
}
