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

// Package dispatch routes a classified message to its downstream
// collaborators: the record sink always, the scheduling service for
// Schedule actions. The idempotence check against the sink is what makes
// re-processing the same raw message safe.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/schedule"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/store"
)

// RecordStore is the slice of the persistence sink the dispatcher needs.
type RecordStore interface {
	Get(ctx context.Context, messageID string) (*store.Record, error)
	Append(ctx context.Context, r store.Record) error
}

// Proposer is the scheduling collaborator contract.
type Proposer interface {
	ProposeSchedule(ctx context.Context, contact models.Contact, slots []models.Slot) (*schedule.Proposal, error)
}

// Dispatcher executes actions and persists processing records.
type Dispatcher struct {
	records   RecordStore
	scheduler Proposer
	now       func() time.Time
}

// New creates a dispatcher. scheduler may be nil when no scheduling service
// is configured; Schedule actions then downgrade to review.
func New(records RecordStore, scheduler Proposer) *Dispatcher {
	return &Dispatcher{
		records:   records,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Dispatch executes the action for a message and appends the processing
// record. Side effects in order, each independently retryable:
//
//  1. Idempotence check: an already-recorded message is returned unchanged,
//     with no duplicate side effects.
//  2. Schedule actions invoke the scheduling collaborator; on failure the
//     action downgrades to FlagForReview so the message surfaces for manual
//     handling instead of being lost.
//  3. The record is appended to the sink.
//
// Expected downstream failures never return an error. Only sink
// unavailability does: silently dropping a record would break the
// idempotence and audit guarantees, so that error propagates to the caller,
// who owns the retry policy.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.Message, result models.IntentResult, action models.Action) (*store.Record, error) {
	existing, err := d.records.Get(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("idempotence check for %s: %w", msg.ID, err)
	}
	if existing != nil {
		slog.Debug("message already processed, skipping", "message_id", msg.ID)
		return existing, nil
	}

	if action.Kind == models.ActionSchedule {
		action = d.trySchedule(ctx, msg, action)
	}

	rec := store.Record{
		MessageID:       msg.ID,
		ActionTaken:     action.Kind,
		Label:           result.Label,
		Confidence:      result.Confidence,
		SecondaryIntent: result.SecondaryIntent,
		Reason:          action.Reason,
		IdentityKey:     msg.Contact.IdentityKey,
		Source:          msg.Source,
		ProcessedAt:     d.now().UTC(),
	}

	if err := d.records.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist record for %s: %w", msg.ID, err)
	}

	slog.Info("message dispatched",
		"message_id", msg.ID,
		"source", msg.Source,
		"action", action.Kind,
		"confidence", result.Confidence,
	)
	return &rec, nil
}

// trySchedule invokes the scheduling collaborator and downgrades the action
// to FlagForReview when the call fails. The failure is a warning, not an
// error: the record still lands and the request is never silently dropped.
func (d *Dispatcher) trySchedule(ctx context.Context, msg models.Message, action models.Action) models.Action {
	if d.scheduler == nil {
		return models.Action{
			Kind:   models.ActionFlagForReview,
			Reason: "no scheduling service configured",
		}
	}

	proposal, err := d.scheduler.ProposeSchedule(ctx, msg.Contact, action.Slots)
	if err != nil {
		slog.Warn("scheduling call failed, downgrading to review",
			"message_id", msg.ID,
			"identity_key", msg.Contact.IdentityKey,
			"error", err,
		)
		return models.Action{
			Kind:   models.ActionFlagForReview,
			Reason: fmt.Sprintf("scheduling failed: %v", err),
		}
	}

	if !proposal.Accepted {
		return models.Action{
			Kind:   models.ActionFlagForReview,
			Reason: "scheduling service declined the proposal",
		}
	}

	return action
}
