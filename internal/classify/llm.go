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

package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// EnhancedScorer is an optional capability that refines the local scorer's
// result. Absence or failure of the capability is a normal branch, never a
// pipeline error: the classifier falls back to the local result.
type EnhancedScorer interface {
	Name() string
	Score(ctx context.Context, body string) (models.Label, float64, error)
}

const llmSystemPrompt = `You classify inbound recruiting messages. Decide whether the message is a request to schedule an interview or call with the recipient.

Respond with JSON only:
{"label": "interview_request" | "other", "confidence": <probability 0..1 that it is an interview request>}`

// LLMConfig configures the hosted-model scorer.
type LLMConfig struct {
	BaseURL string        // OpenAI-compatible API root
	APIKey  string
	Model   string
	Timeout time.Duration // bound on the network call; fallback triggers after
}

// LLMScorer calls a hosted chat-completions model to classify a message.
type LLMScorer struct {
	client *resty.Client
	model  string
}

// NewLLMScorer builds a scorer against an OpenAI-compatible endpoint.
// The timeout is mandatory: classification availability must not depend on
// network reachability, so a zero timeout gets a default.
func NewLLMScorer(cfg LLMConfig) *LLMScorer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)

	return &LLMScorer{client: client, model: cfg.Model}
}

// Name identifies the scorer in logs.
func (s *LLMScorer) Name() string { return "llm:" + s.model }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Score asks the hosted model for a label and calibrated confidence.
func (s *LLMScorer) Score(ctx context.Context, body string) (models.Label, float64, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: llmSystemPrompt},
			{Role: "user", Content: body},
		},
	}

	var out chatResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", 0, fmt.Errorf("llm request: %w", err)
	}
	if resp.IsError() {
		return "", 0, fmt.Errorf("llm API error %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Choices) == 0 {
		return "", 0, fmt.Errorf("llm response has no choices")
	}

	return parseScore(out.Choices[0].Message.Content)
}

// parseScore extracts the JSON object from the model output. Models wrap
// JSON in prose often enough that we scan for the braces instead of decoding
// the whole content.
func parseScore(content string) (models.Label, float64, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return "", 0, fmt.Errorf("no JSON object in llm output")
	}

	var parsed struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return "", 0, fmt.Errorf("parse llm output: %w", err)
	}

	label := models.Label(parsed.Label)
	if label != models.LabelInterviewRequest && label != models.LabelOther {
		return "", 0, fmt.Errorf("llm returned unknown label %q", parsed.Label)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return "", 0, fmt.Errorf("llm confidence %v out of range", parsed.Confidence)
	}

	return label, parsed.Confidence, nil
}
