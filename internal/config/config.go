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

// Package config loads configuration from config.yaml and environment
// variables. Validation is fail-fast: threshold ordering violations and
// unknown source tags abort startup before any message is processed.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// LLMConfig holds the optional hosted-model scorer settings.
type LLMConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// SchedulerConfig holds scheduling-service credentials.
type SchedulerConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	EventType    string
	DefaultLink  string
	FallbackLink string
}

// Config holds all configuration for the pipeline service.
type Config struct {
	// Decision thresholds
	ScheduleThreshold float64
	FlagThreshold     float64

	// Classifier
	Keywords   map[models.Source][]string // "" key is the default list
	MinBodyLen int
	LLM        LLMConfig

	// Intake
	Queues        map[models.Source]string
	BatchSize     int
	IntakePort    int
	DrainInterval time.Duration

	// Scheduler
	Scheduler SchedulerConfig

	// Storage
	RedisURL    string
	DatabaseURL string

	// Server (health check only)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Thresholds struct {
		Schedule float64 `yaml:"schedule"`
		Flag     float64 `yaml:"flag"`
	} `yaml:"thresholds"`
	Classifier struct {
		MinBodyLen int                 `yaml:"min_body_len"`
		Keywords   map[string][]string `yaml:"keywords"`
		LLM        struct {
			Enabled bool   `yaml:"enabled"`
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
			Model   string `yaml:"model"`
			Timeout string `yaml:"timeout"`
		} `yaml:"llm"`
	} `yaml:"classifier"`
	Intake struct {
		Queues    map[string]string `yaml:"queues"`
		BatchSize int               `yaml:"batch_size"`
		Port      int               `yaml:"port"`
	} `yaml:"intake"`
	Scheduler struct {
		BaseURL      string `yaml:"base_url"`
		TokenURL     string `yaml:"token_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		EventType    string `yaml:"event_type"`
		DefaultLink  string `yaml:"default_link"`
		FallbackLink string `yaml:"fallback_link"`
	} `yaml:"scheduler"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	return build(raw)
}

// build converts the raw YAML mirror into a validated Config.
func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		ScheduleThreshold: raw.Thresholds.Schedule,
		FlagThreshold:     raw.Thresholds.Flag,
		MinBodyLen:        raw.Classifier.MinBodyLen,
		BatchSize:         raw.Intake.BatchSize,
		IntakePort:        raw.Intake.Port,
		DrainInterval:     envOrDefaultDuration("DRAIN_INTERVAL", 30*time.Second),
		RedisURL:          firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		DatabaseURL:       firstNonEmpty(raw.Postgres.URL, os.Getenv("DATABASE_URL")),
		Port:              envOrDefaultInt("PORT", 8080),
		Scheduler: SchedulerConfig{
			BaseURL:      raw.Scheduler.BaseURL,
			TokenURL:     raw.Scheduler.TokenURL,
			ClientID:     raw.Scheduler.ClientID,
			ClientSecret: raw.Scheduler.ClientSecret,
			EventType:    raw.Scheduler.EventType,
			DefaultLink:  raw.Scheduler.DefaultLink,
			FallbackLink: raw.Scheduler.FallbackLink,
		},
	}

	if cfg.ScheduleThreshold == 0 {
		cfg.ScheduleThreshold = 0.75
	}
	if cfg.FlagThreshold == 0 {
		cfg.FlagThreshold = 0.35
	}
	if cfg.FlagThreshold < 0 || cfg.ScheduleThreshold > 1 || cfg.FlagThreshold >= cfg.ScheduleThreshold {
		return nil, fmt.Errorf("invalid thresholds: need 0 <= flag (%v) < schedule (%v) <= 1",
			cfg.FlagThreshold, cfg.ScheduleThreshold)
	}

	if cfg.MinBodyLen == 0 {
		cfg.MinBodyLen = 280
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.IntakePort == 0 {
		cfg.IntakePort = 8081
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	keywords, err := sourceKeyed(raw.Classifier.Keywords, "classifier.keywords")
	if err != nil {
		return nil, err
	}
	cfg.Keywords = keywords

	queues, err := sourceKeyedStr(raw.Intake.Queues, "intake.queues")
	if err != nil {
		return nil, err
	}
	if len(queues) == 0 {
		// One list per source by convention.
		queues = map[models.Source]string{
			models.SourceEmail:    "intake:email",
			models.SourceLinkedIn: "intake:linkedin",
			models.SourcePortal:   "intake:portal",
			models.SourceChat:     "intake:chat",
		}
	}
	cfg.Queues = queues

	if raw.Classifier.LLM.Enabled {
		timeout := 10 * time.Second
		if raw.Classifier.LLM.Timeout != "" {
			d, err := time.ParseDuration(raw.Classifier.LLM.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid classifier.llm.timeout %q: %w", raw.Classifier.LLM.Timeout, err)
			}
			timeout = d
		}
		if raw.Classifier.LLM.BaseURL == "" || raw.Classifier.LLM.Model == "" {
			return nil, fmt.Errorf("classifier.llm.base_url and classifier.llm.model are required when the LLM is enabled")
		}
		cfg.LLM = LLMConfig{
			Enabled: true,
			BaseURL: raw.Classifier.LLM.BaseURL,
			APIKey:  raw.Classifier.LLM.APIKey,
			Model:   raw.Classifier.LLM.Model,
			Timeout: timeout,
		}
	}

	return cfg, nil
}

// sourceKeyed validates map keys as source tags. "default" maps to the
// empty key, used as the fallback list.
func sourceKeyed(in map[string][]string, field string) (map[models.Source][]string, error) {
	out := make(map[models.Source][]string, len(in))
	for k, v := range in {
		src, err := sourceTag(k, field)
		if err != nil {
			return nil, err
		}
		out[src] = v
	}
	return out, nil
}

func sourceKeyedStr(in map[string]string, field string) (map[models.Source]string, error) {
	out := make(map[models.Source]string, len(in))
	for k, v := range in {
		src, err := sourceTag(k, field)
		if err != nil {
			return nil, err
		}
		if src == "" {
			return nil, fmt.Errorf("%s: \"default\" is not a valid queue key", field)
		}
		out[src] = v
	}
	return out, nil
}

func sourceTag(k, field string) (models.Source, error) {
	if k == "default" {
		return "", nil
	}
	src := models.Source(k)
	if !src.Valid() {
		return "", fmt.Errorf("%s: unknown source tag %q", field, k)
	}
	return src, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
