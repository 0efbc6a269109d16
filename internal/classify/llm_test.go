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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

func llmTestServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model == "" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"choices": [{"message": {"role": "assistant", "content": %q}}]}`, content)
	}))
}

func TestLLMScorerScore(t *testing.T) {
	srv := llmTestServer(t, `{"label": "interview_request", "confidence": 0.91}`, http.StatusOK)
	defer srv.Close()

	s := NewLLMScorer(LLMConfig{BaseURL: srv.URL, APIKey: "k", Model: "scoring-v2"})

	label, conf, err := s.Score(context.Background(), "Can we schedule an interview?")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if label != models.LabelInterviewRequest || conf != 0.91 {
		t.Errorf("Score = (%q, %v)", label, conf)
	}
}

func TestLLMScorerScoreJSONWrappedInProse(t *testing.T) {
	srv := llmTestServer(t, `Sure! Here is the classification: {"label": "other", "confidence": 0.05} Hope that helps.`, http.StatusOK)
	defer srv.Close()

	s := NewLLMScorer(LLMConfig{BaseURL: srv.URL, Model: "scoring-v2"})

	label, conf, err := s.Score(context.Background(), "weekly digest")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if label != models.LabelOther || conf != 0.05 {
		t.Errorf("Score = (%q, %v)", label, conf)
	}
}

func TestLLMScorerAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewLLMScorer(LLMConfig{BaseURL: srv.URL, Model: "scoring-v2"})

	if _, _, err := s.Score(context.Background(), "body"); err == nil {
		t.Fatal("expected error on API failure")
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantLabel models.Label
		wantConf  float64
		wantErr   bool
	}{
		{
			name:      "clean json",
			content:   `{"label": "interview_request", "confidence": 0.8}`,
			wantLabel: models.LabelInterviewRequest,
			wantConf:  0.8,
		},
		{
			name:    "unknown label",
			content: `{"label": "spam", "confidence": 0.8}`,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			content: `{"label": "other", "confidence": 1.3}`,
			wantErr: true,
		},
		{
			name:    "no json at all",
			content: "I cannot classify this.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			content: `{"label": "other", "confidence":}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, conf, err := parseScore(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseScore(%q) succeeded, want error", tt.content)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseScore: %v", err)
			}
			if label != tt.wantLabel || conf != tt.wantConf {
				t.Errorf("parseScore = (%q, %v), want (%q, %v)", label, conf, tt.wantLabel, tt.wantConf)
			}
		})
	}
}
