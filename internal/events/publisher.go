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

// Package events publishes classified-message events to a Redis list so
// downstream consumers (alerting bots, CRM sync jobs) can react without
// polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/manisang89/sentinova/internal/models"
)

// Publisher sends classified-message events to Redis.
type Publisher struct {
	rdb  *redis.Client
	list string
}

// NewPublisher creates a publisher targeting the specified list.
func NewPublisher(rdb *redis.Client, list string) *Publisher {
	return &Publisher{
		rdb:  rdb,
		list: list,
	}
}

// classifiedEvent is the JSON envelope consumers receive.
type classifiedEvent struct {
	EventID     string           `json:"event_id"`
	Type        string           `json:"type"`
	MessageID   string           `json:"message_id"`
	Source      models.Source    `json:"source"`
	Sender      string           `json:"sender"`
	Sentiment   models.Sentiment `json:"sentiment"`
	Confidence  float64          `json:"confidence"`
	Summary     string           `json:"summary,omitempty"`
	Keywords    []string         `json:"keywords,omitempty"`
	ReceivedAt  time.Time        `json:"received_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

// PublishClassified serialises a completed message and pushes it onto the
// events list. Consumers read with BRPOP, so LPUSH keeps FIFO order.
func (p *Publisher) PublishClassified(ctx context.Context, m *models.Message) error {
	event := classifiedEvent{
		EventID:     uuid.New().String(),
		Type:        "message.classified",
		MessageID:   m.ID,
		Source:      m.Source,
		Sender:      m.Sender,
		Sentiment:   m.Sentiment,
		Summary:     m.Summary,
		Keywords:    m.Keywords,
		ReceivedAt:  m.ReceivedAt,
		ProcessedAt: m.ProcessedAt,
	}
	if m.Confidence != nil {
		event.Confidence = *m.Confidence
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal classified event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.list, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published classified event",
		"event_id", event.EventID,
		"message_id", m.ID,
		"sentiment", m.Sentiment,
		"list", p.list,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
