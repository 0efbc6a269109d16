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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadDefaults(t *testing.T) {
	writeConfig(t, `
postgres:
  url: postgres://localhost:5432/pipeline
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ScheduleThreshold != 0.75 || cfg.FlagThreshold != 0.35 {
		t.Errorf("thresholds = %v/%v, want 0.75/0.35", cfg.ScheduleThreshold, cfg.FlagThreshold)
	}
	if cfg.MinBodyLen != 280 {
		t.Errorf("MinBodyLen = %d, want 280", cfg.MinBodyLen)
	}
	if cfg.BatchSize != 50 || cfg.IntakePort != 8081 {
		t.Errorf("intake = %d/%d, want 50/8081", cfg.BatchSize, cfg.IntakePort)
	}
	if cfg.DrainInterval != 30*time.Second {
		t.Errorf("DrainInterval = %v, want 30s", cfg.DrainInterval)
	}
	if cfg.Queues[models.SourceEmail] != "intake:email" {
		t.Errorf("Queues = %v, missing default email queue", cfg.Queues)
	}
	if len(cfg.Queues) != 4 {
		t.Errorf("Queues = %v, want one per source", cfg.Queues)
	}
	if cfg.LLM.Enabled {
		t.Error("LLM enabled without configuration")
	}
}

func TestLoadFullConfig(t *testing.T) {
	t.Setenv("SCHEDULER_SECRET", "s3cret")
	writeConfig(t, `
thresholds:
  schedule: 0.8
  flag: 0.2
classifier:
  min_body_len: 100
  keywords:
    default: [interview, meet]
    portal: [assessment]
  llm:
    enabled: true
    base_url: https://api.example.com/v1
    api_key: test-key
    model: scoring-v2
    timeout: 5s
intake:
  batch_size: 10
  port: 9091
  queues:
    email: custom:email
    chat: custom:chat
scheduler:
  base_url: https://scheduler.example.com
  client_id: pipeline
  client_secret: ${SCHEDULER_SECRET}
redis:
  url: redis://redis:6379/1
postgres:
  url: postgres://db:5432/pipeline
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ScheduleThreshold != 0.8 || cfg.FlagThreshold != 0.2 {
		t.Errorf("thresholds = %v/%v", cfg.ScheduleThreshold, cfg.FlagThreshold)
	}
	if got := cfg.Keywords[models.SourcePortal]; len(got) != 1 || got[0] != "assessment" {
		t.Errorf("portal keywords = %v", got)
	}
	if got := cfg.Keywords[""]; len(got) != 2 {
		t.Errorf("default keywords = %v", got)
	}
	if !cfg.LLM.Enabled || cfg.LLM.Model != "scoring-v2" || cfg.LLM.Timeout != 5*time.Second {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Queues[models.SourceChat] != "custom:chat" {
		t.Errorf("Queues = %v", cfg.Queues)
	}
	if cfg.Scheduler.ClientSecret != "s3cret" {
		t.Errorf("env expansion failed: ClientSecret = %q", cfg.Scheduler.ClientSecret)
	}
	if cfg.RedisURL != "redis://redis:6379/1" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "inverted thresholds",
			yaml: `
thresholds:
  schedule: 0.3
  flag: 0.7
postgres:
  url: postgres://db:5432/pipeline
`,
			wantErr: "invalid thresholds",
		},
		{
			name: "missing database url",
			yaml: `
thresholds:
  schedule: 0.75
  flag: 0.35
`,
			wantErr: "DATABASE_URL",
		},
		{
			name: "unknown keyword source",
			yaml: `
classifier:
  keywords:
    sms: [text]
postgres:
  url: postgres://db:5432/pipeline
`,
			wantErr: "unknown source tag",
		},
		{
			name: "unknown queue source",
			yaml: `
intake:
  queues:
    fax: intake:fax
postgres:
  url: postgres://db:5432/pipeline
`,
			wantErr: "unknown source tag",
		},
		{
			name: "llm enabled without model",
			yaml: `
classifier:
  llm:
    enabled: true
    base_url: https://api.example.com/v1
postgres:
  url: postgres://db:5432/pipeline
`,
			wantErr: "classifier.llm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			writeConfig(t, tt.yaml)

			_, err := Load()
			if err == nil {
				t.Fatal("Load accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded with a missing config file")
	}
}
