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
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// WebhookPayload is what push-style source adapters POST: one or more raw
// messages for a single source.
type WebhookPayload struct {
	Value []json.RawMessage `json:"value"`
}

// Handler accepts inbound message notifications over HTTP.
type Handler struct {
	processor Processor
}

// NewHandler creates a webhook intake handler.
func NewHandler(processor Processor) *Handler {
	return &Handler{processor: processor}
}

// ServeInbound handles POST /inbound/{source}.
//
// The body is either a single RawMessage object or a {"value": [...]}
// batch. We respond 202 immediately and process in the background —
// platform webhooks expect a fast response and retry on their own schedule;
// idempotence makes those retries safe.
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	source := sourceFromPath(r.URL.Path)
	if source == "" {
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read inbound body", "error", err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	payloads, err := splitPayload(body)
	if err != nil {
		slog.Warn("inbound body not valid JSON, ignoring",
			"source", source,
			"body_len", len(body),
		)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Respond immediately, process in background.
	w.WriteHeader(http.StatusAccepted)
	go h.processInbound(context.Background(), source, payloads)
}

// sourceFromPath extracts the source tag from "/inbound/{source}".
func sourceFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "inbound" {
		return ""
	}
	return parts[1]
}

// splitPayload accepts either the batch envelope or a bare object.
func splitPayload(body []byte) ([]json.RawMessage, error) {
	var batch WebhookPayload
	if err := json.Unmarshal(body, &batch); err == nil && len(batch.Value) > 0 {
		return batch.Value, nil
	}

	var single json.RawMessage
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	if !json.Valid(single) || len(single) == 0 || single[0] != '{' {
		return nil, fmt.Errorf("body is not a JSON object")
	}
	return []json.RawMessage{single}, nil
}

// processInbound decodes and processes each posted message.
func (h *Handler) processInbound(ctx context.Context, source string, payloads []json.RawMessage) {
	for _, p := range payloads {
		var raw models.RawMessage
		if err := json.Unmarshal(p, &raw); err != nil {
			slog.Warn("malformed inbound message dropped", "source", source, "error", err)
			continue
		}

		// The payload's own tag must match the endpoint it was posted to —
		// a mismatch means a misconfigured adapter, not a bad message.
		if string(raw.Source) != source {
			slog.Warn("inbound source mismatch, dropping",
				"path_source", source,
				"payload_source", raw.Source,
			)
			continue
		}

		if _, err := h.processor.Process(ctx, raw); err != nil {
			slog.Error("inbound message processing failed",
				"source", source,
				"source_message_id", raw.SourceMessageID,
				"error", err,
			)
		}
	}
}

// Serve starts the intake HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/inbound/", handler.ServeInbound)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind intake port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("intake server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("intake server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("intake server error", "error", err)
		}
	}()

	return ready, nil
}
