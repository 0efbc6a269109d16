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

// Package store provides the Postgres-backed processing-record sink. It is
// the durable source of truth for "has this message already been handled":
// records are append-only, keyed on the canonical message ID, and the append
// is atomic per key so concurrent dispatch of the same message is safe.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// Record is the durable audit record of how a message was handled.
// Corrections append a new record under a new processing attempt; history is
// never edited.
type Record struct {
	ID              int64
	MessageID       string
	ActionTaken     models.ActionKind
	Label           models.Label
	Confidence      float64
	SecondaryIntent string
	Reason          string
	IdentityKey     string
	Source          models.Source
	ProcessedAt     time.Time
	CreatedAt       time.Time
}

// QueryFilter narrows Query results. Zero values mean "any". Used by
// external reporting, not by the pipeline's decision logic.
type QueryFilter struct {
	Action models.ActionKind
	Source models.Source
	Since  time.Time
	Limit  int
}

// Store provides append/exists/query over processing records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the record store backed by the given Postgres pool.
// It ensures the processing_records table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure record schema: %w", err)
	}
	slog.Info("processing record store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS processing_records (
			id               BIGSERIAL PRIMARY KEY,
			message_id       TEXT NOT NULL UNIQUE,
			action_taken     TEXT NOT NULL,
			label            TEXT NOT NULL,
			confidence       DOUBLE PRECISION NOT NULL,
			secondary_intent TEXT DEFAULT '',
			reason           TEXT DEFAULT '',
			identity_key     TEXT NOT NULL,
			source           TEXT NOT NULL,
			processed_at     TIMESTAMPTZ NOT NULL,
			created_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_records_action ON processing_records(action_taken);
		CREATE INDEX IF NOT EXISTS idx_records_source ON processing_records(source);
		CREATE INDEX IF NOT EXISTS idx_records_identity ON processing_records(identity_key);
	`)
	return err
}

// Exists reports whether a record for the message ID is already persisted.
func (s *Store) Exists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM processing_records WHERE message_id = $1)
	`, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("record exists check: %w", err)
	}
	return exists, nil
}

// Get retrieves the record for a message ID, or nil if none exists.
func (s *Store) Get(ctx context.Context, messageID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, message_id, action_taken, label, confidence,
		       secondary_intent, reason, identity_key, source,
		       processed_at, created_at
		FROM processing_records
		WHERE message_id = $1
	`, messageID)
	return scanRecord(row)
}

// Append persists a processing record. The insert is conditional on the
// message ID: when two workers race on the same message, at most one row
// lands and the other append is a no-op, which is safe because record
// content derived from the same inputs is deterministic.
func (s *Store) Append(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_records
			(message_id, action_taken, label, confidence, secondary_intent,
			 reason, identity_key, source, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING
	`, r.MessageID, r.ActionTaken, r.Label, r.Confidence, r.SecondaryIntent,
		r.Reason, r.IdentityKey, r.Source, r.ProcessedAt)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Query returns records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]Record, error) {
	q := `
		SELECT id, message_id, action_taken, label, confidence,
		       secondary_intent, reason, identity_key, source,
		       processed_at, created_at
		FROM processing_records
		WHERE ($1 = '' OR action_taken = $1)
		  AND ($2 = '' OR source = $2)
		  AND ($3::timestamptz IS NULL OR processed_at >= $3)
		ORDER BY processed_at DESC
	`
	var since *time.Time
	if !f.Since.IsZero() {
		since = &f.Since
	}
	args := []any{string(f.Action), string(f.Source), since}
	if f.Limit > 0 {
		q += ` LIMIT $4`
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CountBySource returns per-source record counts since the given time,
// for the drain-cycle summary log.
func (s *Store) CountBySource(ctx context.Context, since time.Time) (map[models.Source]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source, COUNT(*)
		FROM processing_records
		WHERE processed_at >= $1
		GROUP BY source
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Source]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		counts[models.Source(src)] = n
	}
	return counts, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.ID, &r.MessageID, &r.ActionTaken, &r.Label, &r.Confidence,
		&r.SecondaryIntent, &r.Reason, &r.IdentityKey, &r.Source,
		&r.ProcessedAt, &r.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.MessageID, &r.ActionTaken, &r.Label, &r.Confidence,
			&r.SecondaryIntent, &r.Reason, &r.IdentityKey, &r.Source,
			&r.ProcessedAt, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
