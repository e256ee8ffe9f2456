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

// Package dashboard serves the read API consumed by the sentiment dashboard:
// status counts, sentiment distributions, daily trends, anger alerts, and
// recent message listings.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/manisang89/sentinova/internal/models"
	"github.com/manisang89/sentinova/internal/store"
)

const (
	defaultWindowHours = 24
	maxWindowHours     = 720
	defaultTrendDays   = 7
	maxTrendDays       = 90
	defaultListLimit   = 50
	maxListLimit       = 200
)

// Store provides the aggregate queries the dashboard needs.
type Store interface {
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
	SentimentDistribution(ctx context.Context, window time.Duration) (map[models.Sentiment]int64, error)
	DailyTrend(ctx context.Context, days int) ([]models.TrendPoint, error)
	AngerStats(ctx context.Context, window time.Duration) (angry, total int64, err error)
	Recent(ctx context.Context, f store.RecentFilter) ([]models.Message, error)
}

// Handler serves dashboard queries.
type Handler struct {
	store Store
}

// NewHandler creates a dashboard handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes returns the dashboard subrouter. Mount it under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/stats", h.handleStats)
	r.Get("/sentiments", h.handleSentiments)
	r.Get("/trend", h.handleTrend)
	r.Get("/alerts", h.handleAlerts)
	r.Get("/messages", h.handleMessages)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type statsResponse struct {
	Total       int64                   `json:"total"`
	ByStatus    map[models.Status]int64 `json:"by_status"`
	GeneratedAt time.Time               `json:"generated_at"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByStatus(r.Context())
	if err != nil {
		serverError(w, "count by status", err)
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Total:       total,
		ByStatus:    counts,
		GeneratedAt: time.Now().UTC(),
	})
}

type sentimentsResponse struct {
	WindowHours int                        `json:"window_hours"`
	Total       int64                      `json:"total"`
	Sentiments  map[models.Sentiment]int64 `json:"sentiments"`
}

func (h *Handler) handleSentiments(w http.ResponseWriter, r *http.Request) {
	hours, ok := intParam(w, r, "hours", defaultWindowHours, 1, maxWindowHours)
	if !ok {
		return
	}

	dist, err := h.store.SentimentDistribution(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		serverError(w, "sentiment distribution", err)
		return
	}

	var total int64
	for _, n := range dist {
		total += n
	}
	writeJSON(w, http.StatusOK, sentimentsResponse{
		WindowHours: hours,
		Total:       total,
		Sentiments:  dist,
	})
}

type trendResponse struct {
	Days  int                 `json:"days"`
	Trend []models.TrendPoint `json:"trend"`
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r, "days", defaultTrendDays, 1, maxTrendDays)
	if !ok {
		return
	}

	trend, err := h.store.DailyTrend(r.Context(), days)
	if err != nil {
		serverError(w, "daily trend", err)
		return
	}
	writeJSON(w, http.StatusOK, trendResponse{Days: days, Trend: trend})
}

type alertResponse struct {
	Level       models.AlertLevel `json:"level"`
	AngerRatio  float64           `json:"anger_ratio"`
	Angry       int64             `json:"angry"`
	Total       int64             `json:"total"`
	WindowHours int               `json:"window_hours"`
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	hours, ok := intParam(w, r, "hours", defaultWindowHours, 1, maxWindowHours)
	if !ok {
		return
	}

	angry, total, err := h.store.AngerStats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		serverError(w, "anger stats", err)
		return
	}

	var ratio float64
	if total > 0 {
		ratio = float64(angry) / float64(total)
	}
	writeJSON(w, http.StatusOK, alertResponse{
		Level:       models.AlertFor(ratio),
		AngerRatio:  ratio,
		Angry:       angry,
		Total:       total,
		WindowHours: hours,
	})
}

type messagesResponse struct {
	Count    int              `json:"count"`
	Messages []models.Message `json:"messages"`
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		return
	}

	f := store.RecentFilter{Limit: limit}
	if s := r.URL.Query().Get("status"); s != "" {
		status := models.Status(s)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid status " + strconv.Quote(s)})
			return
		}
		f.Status = status
	}
	if s := r.URL.Query().Get("sentiment"); s != "" {
		sentiment := models.Sentiment(s)
		if !sentiment.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid sentiment " + strconv.Quote(s)})
			return
		}
		f.Sentiment = sentiment
	}
	if s := r.URL.Query().Get("source"); s != "" {
		source := models.Source(s)
		if !source.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid source " + strconv.Quote(s)})
			return
		}
		f.Source = source
	}

	msgs, err := h.store.Recent(r.Context(), f)
	if err != nil {
		serverError(w, "recent messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Count: len(msgs), Messages: msgs})
}

// intParam parses a bounded integer query parameter. On a malformed value it
// writes a 400 and returns ok=false.
func intParam(w http.ResponseWriter, r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name + " " + strconv.Quote(raw)})
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func serverError(w http.ResponseWriter, op string, err error) {
	slog.Error("dashboard query failed", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
