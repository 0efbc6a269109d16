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

package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// Publisher pushes raw messages onto the per-source intake queues. It is the
// producing side of the consumer's contract: LPUSH here, RPOP in the drain
// cycle, so each queue is FIFO.
type Publisher struct {
	rdb    *redis.Client
	queues map[models.Source]string
}

// NewPublisher creates a queue publisher. queues maps each source tag to its
// Redis list name, same map the consumer uses.
func NewPublisher(rdb *redis.Client, queues map[models.Source]string) *Publisher {
	return &Publisher{rdb: rdb, queues: queues}
}

// Publish enqueues one raw message on its source's queue.
func (p *Publisher) Publish(ctx context.Context, raw models.RawMessage) error {
	queue, ok := p.queues[raw.Source]
	if !ok {
		return fmt.Errorf("no queue configured for source %q", raw.Source)
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw message: %w", err)
	}

	if err := p.rdb.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH %s: %w", queue, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
