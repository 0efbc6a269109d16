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

// Messaging Pipeline — Replay Command
//
// Standalone CLI tool that runs a file of exported raw messages through
// the full pipeline. Intended for seeding data on new deployments and
// for re-processing after a classifier or threshold change. Input is
// JSON Lines: one raw message envelope per line.
//
// With --enqueue the messages are pushed onto the intake queues for the
// running service to drain, instead of being processed in-process.
//
// Usage:
//
//	go run ./cmd/replay/ --file export.jsonl [--no-dedup] [--enqueue]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/classify"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/config"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/dedup"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/dispatch"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/intake"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
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

	// --- CLI Flags ---
	fileFlag := flag.String("file", "", "Path to a JSON Lines file of raw messages (required)")
	noDedupFlag := flag.Bool("no-dedup", false, "Skip the Redis seen-filter (record-level idempotence still applies)")
	enqueueFlag := flag.Bool("enqueue", false, "Push onto the intake queues instead of processing in-process")
	flag.Parse()

	if *fileFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --file is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*fileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open %q: %v\n", *fileFlag, err)
		os.Exit(1)
	}
	defer f.Close()

	slog.Info("starting replay", "file", *fileFlag, "dedup", !*noDedupFlag, "enqueue", *enqueueFlag)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Read Input ---
	raws, malformed, lines, err := readRaws(f)
	if err != nil {
		slog.Error("failed to read input file", "error", err)
		os.Exit(1)
	}

	if *enqueueFlag {
		enqueue(ctx, cfg, raws)
		slog.Info("enqueue complete", "read", lines, "malformed", malformed, "enqueued", len(raws))
		return
	}

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

	records, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise record store", "error", err)
		os.Exit(1)
	}

	// --- Dedup Filter (optional) ---
	var filter *dedup.Filter
	if !*noDedupFlag {
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
		filter = dedup.NewFilter(rdb)
	}

	// --- Classifier ---
	var enhanced classify.EnhancedScorer
	if cfg.LLM.Enabled {
		enhanced = classify.NewLLMScorer(classify.LLMConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
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
	}

	dispatcher := dispatch.New(records, proposer)
	pipe := pipeline.New(filter, classifier, pol, dispatcher)

	result := pipe.ProcessBatch(ctx, raws)

	slog.Info("replay complete",
		"read", lines,
		"malformed", malformed,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)

	if result.Errors > 0 {
		os.Exit(1)
	}
}

// readRaws decodes one raw message envelope per line, skipping lines that
// do not decode.
func readRaws(f *os.File) ([]models.RawMessage, int, int, error) {
	var raws []models.RawMessage
	malformed := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var raw models.RawMessage
		if err := json.Unmarshal(text, &raw); err != nil {
			slog.Warn("skipping malformed line", "line", line, "error", err)
			malformed++
			continue
		}
		raws = append(raws, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, line, err
	}
	return raws, malformed, line, nil
}

// enqueue pushes the messages onto the intake queues for the running
// service to drain.
func enqueue(ctx context.Context, cfg *config.Config, raws []models.RawMessage) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	pub := intake.NewPublisher(rdb, cfg.Queues)
	if err := pub.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	for _, raw := range raws {
		if err := pub.Publish(ctx, raw); err != nil {
			slog.Error("enqueue failed",
				"source", raw.Source,
				"source_message_id", raw.SourceMessageID,
				"error", err,
			)
			os.Exit(1)
		}
	}
}
