// Copyright (c) 2026 John Earle
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

// Messaging Pipeline — Intake & Classification Service
//
// Entry point for the pipeline service. It:
//  1. Loads configuration (thresholds, keyword lists, model settings)
//  2. Connects to PostgreSQL and Redis
//  3. Assembles the pipeline: dedup → normalize → classify → decide → dispatch
//  4. Runs cron-driven drain cycles over the per-source intake queues
//  5. Serves the webhook intake endpoint for push-style sources
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/classify"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/config"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/dedup"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/dispatch"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/intake"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/pipeline"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/policy"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/schedule"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting messaging pipeline service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"schedule_threshold", cfg.ScheduleThreshold,
		"flag_threshold", cfg.FlagThreshold,
		"drain_interval", cfg.DrainInterval,
		"llm_enabled", cfg.LLM.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
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

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Record Store (Postgres) ---
	records, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise record store", "error", err)
		os.Exit(1)
	}

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Classifier ---
	var enhanced classify.EnhancedScorer
	if cfg.LLM.Enabled {
		enhanced = classify.NewLLMScorer(classify.LLMConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		slog.Info("enhanced scorer configured", "model", cfg.LLM.Model)
	}
	classifier := classify.New(classify.Config{
		Keywords:   cfg.Keywords,
		MinBodyLen: cfg.MinBodyLen,
		Timeout:    cfg.LLM.Timeout,
	}, enhanced)

	// --- Decision Policy ---
	pol, err := policy.New(policy.Thresholds{
		Schedule: cfg.ScheduleThreshold,
		Flag:     cfg.FlagThreshold,
	})
	if err != nil {
		slog.Error("invalid decision policy", "error", err)
		os.Exit(1)
	}

	// --- Scheduling Collaborator ---
	var proposer dispatch.Proposer
	if cfg.Scheduler.BaseURL != "" {
		proposer = schedule.NewClient(ctx, schedule.Config{
			BaseURL:      cfg.Scheduler.BaseURL,
			TokenURL:     cfg.Scheduler.TokenURL,
			ClientID:     cfg.Scheduler.ClientID,
			ClientSecret: cfg.Scheduler.ClientSecret,
			EventType:    cfg.Scheduler.EventType,
			DefaultLink:  cfg.Scheduler.DefaultLink,
			FallbackLink: cfg.Scheduler.FallbackLink,
		})
	} else {
		slog.Warn("no scheduling service configured — schedule actions will flag for review")
	}

	// --- Pipeline ---
	dispatcher := dispatch.New(records, proposer)
	pipe := pipeline.New(filter, classifier, pol, dispatcher)

	// --- Intake Consumer + Drain Cron ---
	consumer := intake.NewConsumer(rdb, cfg.Queues, pipe, cfg.BatchSize)

	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %s", cfg.DrainInterval), func() {
		runDrainCycle(ctx, consumer, records)
	})
	if err != nil {
		slog.Error("failed to schedule drain cycle", "error", err)
		os.Exit(1)
	}
	c.Start()
	slog.Info("drain cron started", "interval", cfg.DrainInterval)

	// Run one cycle immediately so queued messages don't wait for the
	// first tick.
	go runDrainCycle(ctx, consumer, records)

	// --- Intake Webhook Server ---
	handler := intake.NewHandler(pipe)
	ready, err := intake.Serve(ctx, cfg.IntakePort, handler)
	if err != nil {
		slog.Error("failed to start intake server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := consumer.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
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
		cancel() // Stop pulling new messages; in-flight ones run to completion

		cronCtx := c.Stop()
		<-cronCtx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("pipeline service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("pipeline service stopped")
}

// runDrainCycle drains each source queue once and logs a per-source summary.
func runDrainCycle(ctx context.Context, consumer *intake.Consumer, records *store.Store) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	summary := consumer.DrainOnce(ctx)

	total := 0
	for _, n := range summary.Processed {
		total += n
	}
	if total == 0 && summary.Malformed == 0 && len(summary.Failed) == 0 {
		return // quiet cycle, nothing to report
	}

	counts, err := records.CountBySource(ctx, start.Add(-24*time.Hour))
	if err != nil {
		slog.Warn("failed to load per-source counts", "error", err)
	}
	depths, err := consumer.QueueDepths(ctx)
	if err != nil {
		slog.Warn("failed to read queue depths", "error", err)
	}

	slog.Info("drain cycle complete",
		"processed", summary.Processed,
		"failed", summary.Failed,
		"malformed", summary.Malformed,
		"queue_depths", depths,
		"last_24h", counts,
		"elapsed", time.Since(start),
	)
}
