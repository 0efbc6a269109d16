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

// Package classify detects actionable intent in normalized messages.
//
// Two-stage design: a cheap keyword prefilter short-circuits obvious
// non-requests, everything else goes through the local statistical scorer,
// optionally refined by a hosted LLM. Candidate interview time slots are
// extracted for messages labelled as interview requests.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/timeparse"
)

// Config holds the classifier's immutable runtime configuration, passed in
// at startup — never read from ambient state mid-pipeline.
type Config struct {
	// Keywords is the per-source prefilter phrase list. The empty-string key
	// is the default list used for sources without their own.
	Keywords map[models.Source][]string

	// MinBodyLen is the minimum-signal threshold: bodies shorter than this
	// with zero keyword hits skip the scoring stages entirely.
	MinBodyLen int

	// Timeout bounds each enhanced-scorer call.
	Timeout time.Duration
}

// DefaultKeywords is the prefilter phrase list used when configuration
// provides none.
var DefaultKeywords = []string{
	"interview", "schedule", "available", "meet", "call", "chat",
	"speak", "discuss", "talk", "free", "time to",
}

// Classifier produces an IntentResult for a Message.
type Classifier struct {
	cfg      Config
	enhanced EnhancedScorer // nil when no hosted model is configured
}

// New creates a classifier. enhanced may be nil; the local scorer then runs
// alone.
func New(cfg Config, enhanced EnhancedScorer) *Classifier {
	if cfg.MinBodyLen == 0 {
		cfg.MinBodyLen = 280
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Classifier{cfg: cfg, enhanced: enhanced}
}

// Classify runs the two-stage pipeline over a message. It never returns an
// error: enhanced-scorer failures degrade to the local result.
func (c *Classifier) Classify(ctx context.Context, msg models.Message) models.IntentResult {
	body := msg.Body

	// Stage (a): keyword prefilter. Zero keyword hits on a short body means
	// there is nothing worth scoring. The prefilter only ever decides to
	// skip — it never overrides a model result.
	if !c.anyKeyword(msg.Source, body) && len(body) < c.cfg.MinBodyLen {
		return models.IntentResult{Label: models.LabelOther, Confidence: 0}
	}

	// Stage (b): local statistical scorer, always.
	confidence, secondary := scoreLocal(body)
	label := localLabel(confidence)

	// Optional hosted-model refinement. The model's score is authoritative
	// when the call succeeds; failure or timeout falls back to the local
	// result with no hard error.
	if c.enhanced != nil {
		scoreCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		modelLabel, modelConf, err := c.enhanced.Score(scoreCtx, body)
		cancel()
		if err != nil {
			slog.Warn("enhanced scorer unavailable, using local result",
				"scorer", c.enhanced.Name(),
				"message_id", msg.ID,
				"error", err,
			)
		} else {
			label = modelLabel
			confidence = modelConf
		}
	}

	result := models.IntentResult{
		Label:           label,
		Confidence:      confidence,
		SecondaryIntent: secondary,
	}

	// Slots are only meaningful on a detected request; the reverse is not
	// required — "let's find a time" is a request with no parseable time.
	if label == models.LabelInterviewRequest {
		result.Slots = timeparse.Extract(body, msg.ReceivedAt)
	}

	return result
}

// anyKeyword reports whether the body contains any configured prefilter
// phrase for the message's source, case-insensitive.
func (c *Classifier) anyKeyword(source models.Source, body string) bool {
	phrases := c.cfg.Keywords[source]
	if len(phrases) == 0 {
		phrases = c.cfg.Keywords[""]
	}
	if len(phrases) == 0 {
		phrases = DefaultKeywords
	}

	lower := strings.ToLower(body)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
