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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/store"
)

// recordingProcessor captures every raw message it is handed.
type recordingProcessor struct {
	mu   sync.Mutex
	raws []models.RawMessage
}

func (p *recordingProcessor) Process(ctx context.Context, raw models.RawMessage) (*store.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raws = append(p.raws, raw)
	return &store.Record{MessageID: raw.SourceMessageID}, nil
}

func (p *recordingProcessor) seen() []models.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.RawMessage(nil), p.raws...)
}

const chatPayload = `{
	"source": "chat",
	"source_message_id": "ts-100",
	"raw_sender": "@sam",
	"raw_body": "interview tomorrow?",
	"received_at": "2026-03-02T09:00:00Z"
}`

func TestServeInboundStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"valid post", http.MethodPost, "/inbound/chat", chatPayload, http.StatusAccepted},
		{"get rejected", http.MethodGet, "/inbound/chat", "", http.StatusMethodNotAllowed},
		{"missing source segment", http.MethodPost, "/inbound/", chatPayload, http.StatusNotFound},
		{"wrong prefix", http.MethodPost, "/outbound/chat", chatPayload, http.StatusNotFound},
		{"garbage body still accepted", http.MethodPost, "/inbound/chat", "not json", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &recordingProcessor{}
			h := NewHandler(proc)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeInbound(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestProcessInbound(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewHandler(proc)

	payloads, err := splitPayload([]byte(chatPayload))
	if err != nil {
		t.Fatalf("splitPayload: %v", err)
	}
	h.processInbound(context.Background(), "chat", payloads)

	seen := proc.seen()
	if len(seen) != 1 {
		t.Fatalf("processed %d messages, want 1", len(seen))
	}
	if seen[0].SourceMessageID != "ts-100" || seen[0].Source != models.SourceChat {
		t.Errorf("raw = %+v", seen[0])
	}
}

func TestProcessInboundDropsSourceMismatch(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewHandler(proc)

	// A chat payload posted to the email endpoint is a misconfigured
	// adapter; the message is dropped, not relabelled.
	h.processInbound(context.Background(), "email", []json.RawMessage{json.RawMessage(chatPayload)})

	if n := len(proc.seen()); n != 0 {
		t.Errorf("processed %d messages, want 0", n)
	}
}

func TestSplitPayload(t *testing.T) {
	t.Run("batch envelope", func(t *testing.T) {
		body := `{"value": [` + chatPayload + `, ` + chatPayload + `]}`
		got, err := splitPayload([]byte(body))
		if err != nil {
			t.Fatalf("splitPayload: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d payloads, want 2", len(got))
		}
	})

	t.Run("bare object", func(t *testing.T) {
		got, err := splitPayload([]byte(chatPayload))
		if err != nil {
			t.Fatalf("splitPayload: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d payloads, want 1", len(got))
		}
	})

	t.Run("array without envelope rejected", func(t *testing.T) {
		if _, err := splitPayload([]byte(`[1, 2, 3]`)); err == nil {
			t.Error("expected error for bare array")
		}
	})

	t.Run("not json", func(t *testing.T) {
		if _, err := splitPayload([]byte("hello")); err == nil {
			t.Error("expected error for non-JSON body")
		}
	})
}

func TestSourceFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/inbound/email", "email"},
		{"/inbound/chat", "chat"},
		{"/inbound/", ""},
		{"/inbound", ""},
		{"/inbound/email/extra", ""},
		{"/other/email", ""},
	}
	for _, tt := range tests {
		if got := sourceFromPath(tt.path); got != tt.want {
			t.Errorf("sourceFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
