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

// Package classifier adapts an OpenAI-compatible chat API into the sentiment
// classification capability used by the processing worker. The model is asked
// for a strict JSON object; the response is validated and clamped before it
// reaches the store.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/manisang89/sentinova/internal/models"
)

// Classifier produces a sentiment verdict for one message body. Implementations
// must treat the call as a slow, fallible remote operation; callers bound it
// with a per-call context timeout.
type Classifier interface {
	Classify(ctx context.Context, text string) (*models.Classification, error)
}

// ErrRateLimited marks classification attempts rejected by the provider's
// rate limiter. Callers treat it as retryable with backoff.
var ErrRateLimited = errors.New("classifier rate limited")

// Texts shorter than this after cleaning are not worth an API call.
const minAnalyzableLength = 10

// shortTextSummary is recorded for messages below the analyzable length.
const shortTextSummary = "Message too short for analysis"

// maxSummaryLength caps the model's summary, matching the prompt's limit.
const maxSummaryLength = 100

const systemPrompt = `Analyze the sentiment of customer support messages. Categorize the sentiment as one of: 'anger', 'confusion', 'delight', or 'neutral'.

Provide a confidence score (0.0 to 1.0), a brief summary of the core issue or feeling expressed, and extract key keywords that indicate the sentiment.

Respond in JSON format with these exact keys:
- "sentiment": one of "anger", "confusion", "delight", or "neutral"
- "summary": brief summary of the issue/feeling (max 100 characters)
- "confidence": confidence score between 0.0 and 1.0
- "keywords": array of relevant keywords (max 5 keywords)

Examples:
Input: "My internet has been down for 3 days! This is unacceptable, I need it fixed NOW!"
Output: {"sentiment": "anger", "summary": "Customer frustrated by 3-day internet outage", "confidence": 0.95, "keywords": ["frustrated", "outage", "unacceptable", "down", "fix"]}

Input: "Thank you so much for the quick resolution! The team was amazing and very helpful."
Output: {"sentiment": "delight", "summary": "Customer pleased with quick and helpful service", "confidence": 0.9, "keywords": ["thank you", "quick", "amazing", "helpful", "resolution"]}

Input: "I'm not sure how to set up my new router. Can someone help me understand the process?"
Output: {"sentiment": "confusion", "summary": "Customer needs help with router setup", "confidence": 0.8, "keywords": ["not sure", "help", "router", "setup", "understand"]}`

// rawResult is the wire format the model is constrained to.
type rawResult struct {
	Sentiment  string   `json:"sentiment" jsonschema:"enum=anger,enum=confusion,enum=delight,enum=neutral"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Keywords   []string `json:"keywords"`
}

// Config holds classifier API settings.
type Config struct {
	APIKey  string
	BaseURL string // empty = api.openai.com
	Model   string
}

// OpenAI is the production Classifier backed by an OpenAI-compatible API.
type OpenAI struct {
	client openai.Client
	model  string
	schema any
}

// NewOpenAI creates a classifier client.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("classifier API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		schema: generateSchema[rawResult](),
	}, nil
}

// Classify cleans the text and asks the model for a structured verdict.
// Texts below the analyzable length short-circuit to a neutral verdict
// without an API call.
func (c *OpenAI) Classify(ctx context.Context, text string) (*models.Classification, error) {
	text = truncate(text, models.MaxBodyLength)
	cleaned := CleanText(text)

	if len(cleaned) < minAnalyzableLength {
		return &models.Classification{
			Sentiment:  models.SentimentNeutral,
			Confidence: 0.5,
			Summary:    shortTextSummary,
		}, nil
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Message to analyze:\n" + cleaned),
		},
		MaxTokens:   openai.Int(500),
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "sentiment_classification",
					Description: openai.String("Sentiment verdict for a customer message"),
					Schema:      c.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("classifier chat: %w", err)
	}

	slog.Debug("classifier call completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	return parseResult(resp.Choices[0].Message.Content)
}

// parseResult decodes and validates the model's JSON verdict. Out-of-domain
// sentiment labels are an error; confidence is clamped to [0,1]; summary and
// keywords are truncated to their caps.
func parseResult(content string) (*models.Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw rawResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("malformed classifier response: %w", err)
	}

	sentiment := models.Sentiment(raw.Sentiment)
	if !sentiment.Valid() {
		return nil, fmt.Errorf("classifier returned unknown sentiment %q", raw.Sentiment)
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	summary := truncate(raw.Summary, maxSummaryLength)

	keywords := raw.Keywords
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}

	return &models.Classification{
		Sentiment:  sentiment,
		Confidence: confidence,
		Summary:    summary,
		Keywords:   keywords,
	}, nil
}

// IsRateLimit reports whether err represents provider rate limiting. The
// worker backs off its cycle schedule when it sees one.
func IsRateLimit(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// truncate caps s at max bytes without splitting a multibyte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
