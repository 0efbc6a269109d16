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

// Package dedup provides event deduplication using a Redis SET with TTL.
// Source adapters deliver at-least-once, so the same raw message can arrive
// more than once; this filter is the cheap pre-check that skips duplicates
// before normalization. The processing-record store remains the durable
// idempotence guarantee — this only saves work.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

const (
	// DefaultTTL is how long we remember a seen message. Re-deliveries from
	// connector retries and overlapping poll windows arrive well within 24h.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "pipeline:seen:"
)

// Filter tracks which raw messages have already entered the pipeline.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the (source, source_message_id) pair has NOT been
// seen before. If true, the pair is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, source models.Source, sourceMessageID string) (bool, error) {
	key := fmt.Sprintf("%s%s:%s", keyPrefix, source, sourceMessageID)

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}
