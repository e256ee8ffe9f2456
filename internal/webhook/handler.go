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

// Package webhook handles inbound web-form submissions. Site forms POST
// JSON to per-form endpoints; valid submissions become pending messages in
// the store for the processing worker to classify.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/manisang89/sentinova/internal/dedup"
	"github.com/manisang89/sentinova/internal/models"
	"github.com/manisang89/sentinova/internal/telemetry"
)

// Store persists accepted submissions.
type Store interface {
	Insert(ctx context.Context, m *models.Message) error
}

// Deduper suppresses repeated submissions. Nil disables deduplication.
type Deduper interface {
	IsNew(ctx context.Context, fingerprint string) (bool, error)
}

// Handler processes form webhook requests.
type Handler struct {
	store  Store
	filter Deduper
}

// NewHandler creates a form webhook handler.
func NewHandler(store Store, filter Deduper) *Handler {
	return &Handler{
		store:  store,
		filter: filter,
	}
}

// Routes returns the webhook subrouter. Mount it under /webhook.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/contact-form", h.handleForm(models.SourceFormContact, "Contact"))
	r.Post("/feedback", h.handleForm(models.SourceFormFeedback, "Feedback"))
	r.Post("/support", h.handleForm(models.SourceFormSupport, "Support"))
	r.Post("/custom", h.handleForm(models.SourceFormCustom, "Custom"))
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type submissionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// handleForm builds the handler for one form endpoint. Forms differ only in
// their source tag and default subject.
func (h *Handler) handleForm(source models.Source, formName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || len(data) == 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no JSON data provided"})
			return
		}

		body, _ := data["message"].(string)
		if strings.TrimSpace(body) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required field: message"})
			return
		}
		if len(body) > models.MaxBodyLength {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message too long (max 10000 characters)"})
			return
		}

		sender := firstString(data, "email", "contact_email", "name")
		if sender == "" {
			sender = models.AnonymousSender
		}
		subject := stringField(data, "subject")
		if subject == "" {
			subject = formName + " Submission"
		}

		if h.filter != nil {
			fingerprint := dedup.Fingerprint(string(source), sender, body)
			fresh, err := h.filter.IsNew(r.Context(), fingerprint)
			if err != nil {
				// Dedup is advisory: never drop a submission because Redis is down.
				slog.Warn("dedup check failed, accepting submission", "source", source, "error", err)
			} else if !fresh {
				slog.Info("duplicate form submission suppressed", "source", source, "sender", sender)
				writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
				return
			}
		}

		m := &models.Message{
			ID:         uuid.New().String(),
			Source:     source,
			Sender:     sender,
			Subject:    subject,
			Body:       body,
			ReceivedAt: time.Now().UTC(),
			Status:     models.StatusPending,
			Metadata:   formMetadata(r, data),
		}

		if err := h.store.Insert(r.Context(), m); err != nil {
			slog.Error("failed to store form submission", "source", source, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}

		telemetry.MessagesIngested.WithLabelValues(string(source)).Inc()
		slog.Info("form submission accepted",
			"id", m.ID,
			"source", source,
			"sender", sender,
		)

		writeJSON(w, http.StatusAccepted, submissionResponse{ID: m.ID, Status: "accepted"})
	}
}

// formMetadata captures the request context and passthrough contact fields.
// Field names (not values) are recorded so malformed integrations can be
// debugged from stored records.
func formMetadata(r *http.Request, data map[string]any) map[string]any {
	meta := map[string]any{
		"user_agent": r.UserAgent(),
		"ip_address": clientIP(r),
	}
	if ref := r.Referer(); ref != "" {
		meta["referer"] = ref
	}
	for _, k := range []string{"name", "phone", "company"} {
		if v := stringField(data, k); v != "" {
			meta[k] = v
		}
	}

	fields := make([]string, 0, len(data))
	for k := range data {
		if k != "message" {
			fields = append(fields, k)
		}
	}
	if len(fields) > 0 {
		sort.Strings(fields)
		meta["form_fields"] = fields
	}
	return meta
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return strings.TrimSpace(v)
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringField(data, k); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
