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

// Package telemetry exposes Prometheus metrics for the sentiment pipeline.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	MessagesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinova_messages_ingested_total",
		Help: "Messages accepted into the store, by source",
	}, []string{"source"})
	Classifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinova_classifications_total",
		Help: "Classification attempts by outcome",
	}, []string{"outcome"})
	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinova_cycles_total",
		Help: "Processing cycles by result",
	}, []string{"result"})
	Backlog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentinova_backlog",
		Help: "Messages per lifecycle state, refreshed each cycle",
	}, []string{"status"})
	LastSuccessTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinova_last_success_timestamp_seconds",
		Help: "Unix time of the last cycle that completed without systemic error",
	})
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinova_cycle_duration_seconds",
		Help:    "Wall time of processing cycles",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	ClassifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinova_classify_duration_seconds",
		Help:    "Latency of individual classifier calls",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			MessagesIngested,
			Classifications,
			CyclesTotal,
			Backlog,
			LastSuccessTimestamp,
			CycleDuration,
			ClassifyDuration,
		)
	})
	return promhttp.Handler()
}
