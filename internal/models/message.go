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

// Package models defines the data structures shared across the sentiment pipeline.
package models

import "time"

// Status tracks a message through the classification lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Sentiment is a classification label produced by the classifier.
type Sentiment string

const (
	SentimentAnger     Sentiment = "anger"
	SentimentConfusion Sentiment = "confusion"
	SentimentDelight   Sentiment = "delight"
	SentimentNeutral   Sentiment = "neutral"
)

// Valid reports whether s is a known label.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentAnger, SentimentConfusion, SentimentDelight, SentimentNeutral:
		return true
	}
	return false
}

// Source identifies where a message entered the pipeline.
type Source string

const (
	SourceEmail        Source = "email"
	SourceFormContact  Source = "form_contact"
	SourceFormFeedback Source = "form_feedback"
	SourceFormSupport  Source = "form_support"
	SourceFormCustom   Source = "form_custom"
)

// Valid reports whether s is a known ingestion source.
func (s Source) Valid() bool {
	switch s {
	case SourceEmail, SourceFormContact, SourceFormFeedback, SourceFormSupport, SourceFormCustom:
		return true
	}
	return false
}

// MaxBodyLength bounds stored message bodies. Form submissions above it are
// rejected; mail bodies are truncated to fit.
const MaxBodyLength = 10000

// AnonymousSender is recorded when a submission carries no usable identity.
const AnonymousSender = "Anonymous"

// Message represents a single customer message and its processing state.
//
// sentiment, confidence, summary and keywords are written together in one
// update when classification succeeds, and are absent in every other state.
type Message struct {
	ID           string         `json:"id"`
	Source       Source         `json:"source"`
	Sender       string         `json:"sender"`
	Subject      string         `json:"subject,omitempty"`
	Body         string         `json:"message"`
	ReceivedAt   time.Time      `json:"received_at"`
	Status       Status         `json:"status"`
	AttemptCount int            `json:"attempt_count"`
	Sentiment    Sentiment      `json:"sentiment,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	Keywords     []string       `json:"keywords,omitempty"`
	LastError    *string        `json:"error,omitempty"`
	ClaimedAt    *time.Time     `json:"claimed_at,omitempty"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Classification is the classifier's verdict for one message. The store
// persists all four fields in a single update.
type Classification struct {
	Sentiment  Sentiment `json:"sentiment"`
	Confidence float64   `json:"confidence"`
	Summary    string    `json:"summary"`
	Keywords   []string  `json:"keywords"`
}

// TrendPoint is one calendar day of classification counts for the dashboard.
type TrendPoint struct {
	Day        string              `json:"day"`
	Total      int64               `json:"total"`
	Sentiments map[Sentiment]int64 `json:"sentiments"`
}

// AlertLevel grades the share of anger among recently classified messages.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertElevated AlertLevel = "elevated"
	AlertHigh     AlertLevel = "high"
)

// Anger-ratio thresholds for dashboard alerting.
const (
	AlertElevatedRatio = 0.20
	AlertHighRatio     = 0.30
)

// AlertFor returns the alert level for an anger ratio over completed messages.
func AlertFor(ratio float64) AlertLevel {
	switch {
	case ratio >= AlertHighRatio:
		return AlertHigh
	case ratio >= AlertElevatedRatio:
		return AlertElevated
	default:
		return AlertNone
	}
}
