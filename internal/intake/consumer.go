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

// Package intake is the boundary between external source adapters and the
// pipeline. Pull-style adapters (mail poller, portal scraper) push raw
// messages onto per-source Redis lists that the consumer drains in batches;
// push-style adapters (chat platforms) POST to the webhook receiver.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/store"
)

// Processor handles one raw message end to end. Implemented by the pipeline.
type Processor interface {
	Process(ctx context.Context, raw models.RawMessage) (*store.Record, error)
}

// Consumer drains per-source Redis queues of RawMessage JSON payloads.
type Consumer struct {
	rdb       *redis.Client
	queues    map[models.Source]string
	processor Processor
	batchSize int
}

// NewConsumer creates a queue consumer. queues maps each source tag to its
// Redis list name.
func NewConsumer(rdb *redis.Client, queues map[models.Source]string, processor Processor, batchSize int) *Consumer {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Consumer{
		rdb:       rdb,
		queues:    queues,
		processor: processor,
		batchSize: batchSize,
	}
}

// DrainSummary reports one drain cycle, per source.
type DrainSummary struct {
	Processed map[models.Source]int
	Failed    map[models.Source]int
	Malformed int
}

// DrainOnce pops up to batchSize messages from every source queue and runs
// each through the processor. Per-source FIFO order is preserved (adapters
// LPUSH, we RPOP); no ordering holds across sources. A payload that does
// not decode is dropped with a log line — it can never become a Message, so
// there is nothing to flag.
func (c *Consumer) DrainOnce(ctx context.Context) DrainSummary {
	summary := DrainSummary{
		Processed: make(map[models.Source]int),
		Failed:    make(map[models.Source]int),
	}

	for source, queue := range c.queues {
		payloads, err := c.rdb.RPopCount(ctx, queue, c.batchSize).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			slog.Error("queue drain failed", "source", source, "queue", queue, "error", err)
			continue
		}

		for _, payload := range payloads {
			var raw models.RawMessage
			if err := json.Unmarshal([]byte(payload), &raw); err != nil {
				summary.Malformed++
				slog.Warn("malformed intake payload dropped",
					"source", source,
					"queue", queue,
					"error", err,
				)
				continue
			}

			if _, err := c.processor.Process(ctx, raw); err != nil {
				summary.Failed[source]++
				slog.Error("message processing failed",
					"source", source,
					"source_message_id", raw.SourceMessageID,
					"error", err,
				)
				// Requeue at the head so the next cycle retries it.
				if rerr := c.rdb.RPush(ctx, queue, payload).Err(); rerr != nil {
					slog.Error("requeue failed, message lost from queue",
						"source", source,
						"source_message_id", raw.SourceMessageID,
						"error", rerr,
					)
				}
				continue
			}
			summary.Processed[source]++
		}
	}

	return summary
}

// QueueDepths returns the current length of each source queue, for the
// drain-cycle summary log.
func (c *Consumer) QueueDepths(ctx context.Context) (map[models.Source]int64, error) {
	depths := make(map[models.Source]int64, len(c.queues))
	for source, queue := range c.queues {
		n, err := c.rdb.LLen(ctx, queue).Result()
		if err != nil {
			return nil, fmt.Errorf("queue depth %s: %w", queue, err)
		}
		depths[source] = n
	}
	return depths, nil
}

// Ping checks the Redis connection.
func (c *Consumer) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
