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

// Sentinova — Classification Worker
//
// Entry point for the batch classification worker. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Runs the processing loop: reconcile, select, claim, classify, persist
//  4. Optionally paces classifier calls with a Redis token bucket and
//     publishes classified events to a Redis list
//  5. Exposes loop health on /healthz and Prometheus /metrics
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/manisang89/sentinova/internal/classifier"
	"github.com/manisang89/sentinova/internal/config"
	"github.com/manisang89/sentinova/internal/events"
	"github.com/manisang89/sentinova/internal/processor"
	"github.com/manisang89/sentinova/internal/ratelimit"
	"github.com/manisang89/sentinova/internal/store"
	"github.com/manisang89/sentinova/internal/telemetry"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting sentinova classification worker")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise message store", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Classifier ---
	cl, err := classifier.NewOpenAI(classifier.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		slog.Error("failed to initialise classifier", "error", err)
		os.Exit(1)
	}

	// --- Processor ---
	var opts []processor.Option
	if rl := cfg.Processing.RateLimit; rl.PerSecond > 0 {
		bucket := ratelimit.NewTokenBucket(rdb, rl.Burst, rl.PerSecond, time.Minute)
		opts = append(opts, processor.WithLimiter(bucket))
		slog.Info("classifier rate limiting enabled",
			"per_second", rl.PerSecond,
			"burst", rl.Burst,
		)
	}
	if cfg.EventsEnabled {
		pub := events.NewPublisher(rdb, cfg.EventsList)
		opts = append(opts, processor.WithPublisher(pub))
		slog.Info("classified-event publication enabled", "list", cfg.EventsList)
	}

	proc := processor.New(processor.Config{
		BatchSize:         cfg.Processing.BatchSize,
		Interval:          cfg.Processing.Interval,
		MaxRetries:        cfg.Processing.MaxRetries,
		ProcessingTimeout: cfg.Processing.ProcessingTimeout,
		CallTimeout:       cfg.Processing.CallTimeout,
		MaxBackoff:        cfg.Processing.MaxBackoff,
	}, st, cl, opts...)

	go func() {
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("processing loop exited", "error", err)
		}
	}()

	// --- Health and Metrics Server ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(proc.Health())
	})

	server := &http.Server{
		Addr:         cfg.WorkerAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("worker health endpoint listening", "addr", cfg.WorkerAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("classification worker stopped")
}
