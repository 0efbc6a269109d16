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

// Package pipeline wires the stages together: dedup → normalize → classify
// → decide → dispatch. Processing is message-at-a-time; all stages are pure
// or idempotent, so the pipeline can run sequentially or across a worker
// pool without coordination.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/classify"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/dedup"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/dispatch"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/normalize"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/policy"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/store"
)

// Pipeline processes raw messages end to end.
type Pipeline struct {
	filter     *dedup.Filter // nil disables the cheap pre-check
	classifier *classify.Classifier
	policy     *policy.Policy
	dispatcher *dispatch.Dispatcher
}

// New assembles a pipeline. filter may be nil; the store-level idempotence
// check in the dispatcher still holds without it.
func New(filter *dedup.Filter, classifier *classify.Classifier, pol *policy.Policy, dispatcher *dispatch.Dispatcher) *Pipeline {
	return &Pipeline{
		filter:     filter,
		classifier: classifier,
		policy:     pol,
		dispatcher: dispatcher,
	}
}

// Process runs one raw message through every stage and returns the
// persisted record. A duplicate skipped by the dedup pre-check returns
// (nil, nil). The only error surfaced is sink unavailability — everything
// else degrades inside its stage.
func (p *Pipeline) Process(ctx context.Context, raw models.RawMessage) (*store.Record, error) {
	if !raw.Source.Valid() {
		return nil, fmt.Errorf("unknown source tag %q", raw.Source)
	}

	if p.filter != nil {
		isNew, err := p.filter.IsNew(ctx, raw.Source, raw.SourceMessageID)
		if err != nil {
			// The filter only saves work; the store still dedups.
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Debug("skipping duplicate raw message",
				"source", raw.Source,
				"source_message_id", raw.SourceMessageID,
			)
			return nil, nil
		}
	}

	msg := normalize.Normalize(raw)
	result := p.classifier.Classify(ctx, msg)
	action := p.policy.Decide(result)

	return p.dispatcher.Dispatch(ctx, msg, result, action)
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Processed int
	Skipped   int
	Errors    int
}

// ProcessBatch fans a batch out across one worker per source: messages from
// the same source stay in delivery order, distinct sources run in parallel.
// No ordering is guaranteed or needed across sources.
func (p *Pipeline) ProcessBatch(ctx context.Context, raws []models.RawMessage) BatchResult {
	bySource := make(map[models.Source][]models.RawMessage)
	for _, raw := range raws {
		bySource[raw.Source] = append(bySource[raw.Source], raw)
	}

	var (
		mu     sync.Mutex
		result BatchResult
		wg     sync.WaitGroup
	)
	for _, batch := range bySource {
		wg.Add(1)
		go func(batch []models.RawMessage) {
			defer wg.Done()
			for _, raw := range batch {
				rec, err := p.Process(ctx, raw)
				mu.Lock()
				switch {
				case err != nil:
					result.Errors++
				case rec == nil:
					result.Skipped++
				default:
					result.Processed++
				}
				mu.Unlock()
			}
		}(batch)
	}
	wg.Wait()

	return result
}
