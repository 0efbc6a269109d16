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

// Package schedule is the client for the external scheduling collaborator.
// The pipeline only emits "schedule this" decisions with extracted time
// candidates; proposing a slot and creating the calendar event happen on the
// collaborator's side. The client retries transient failures internally and
// surfaces a single success/failure to the dispatcher.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// Config holds scheduling-service credentials and endpoints.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	EventType    string // named event type to book against, e.g. "interview-30min"

	// DefaultLink is the pre-configured self-serve scheduling link included
	// in proposals; FallbackLink is used when the API cannot provide one.
	DefaultLink  string
	FallbackLink string

	Timeout    time.Duration
	MaxRetries uint64
}

// Proposal is the collaborator's answer to a schedule request.
type Proposal struct {
	ProposalID    string     `json:"proposal_id"`
	Accepted      bool       `json:"accepted"`
	ConfirmedSlot *time.Time `json:"confirmed_slot,omitempty"`
	BookingLink   string     `json:"booking_link,omitempty"`
}

// Client talks to the scheduling service over OAuth2 client credentials.
type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient builds the scheduling client. The OAuth2 transport refreshes
// tokens transparently.
func NewClient(ctx context.Context, cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	http := resty.NewWithClient(creds.Client(ctx)).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{http: http, cfg: cfg}
}

type proposalRequest struct {
	ProposalID string       `json:"proposal_id"`
	EventType  string       `json:"event_type"`
	Invitee    invitee      `json:"invitee"`
	Slots      []models.Slot `json:"slots"`
	Link       string       `json:"scheduling_link,omitempty"`
}

type invitee struct {
	Name        string `json:"name,omitempty"`
	IdentityKey string `json:"identity_key"`
	Source      string `json:"source"`
}

// ProposeSchedule asks the collaborator to book one of the candidate slots
// for the contact. Transient failures are retried with exponential backoff;
// the caller only sees the final outcome.
func (c *Client) ProposeSchedule(ctx context.Context, contact models.Contact, slots []models.Slot) (*Proposal, error) {
	req := proposalRequest{
		ProposalID: uuid.New().String(),
		EventType:  c.cfg.EventType,
		Invitee: invitee{
			Name:        contact.DisplayName,
			IdentityKey: contact.IdentityKey,
			Source:      string(contact.Source),
		},
		Slots: slots,
		Link:  c.cfg.DefaultLink,
	}

	var proposal Proposal
	operation := func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&proposal).
			Post("/v1/proposals")
		if err != nil {
			return fmt.Errorf("propose schedule: %w", err)
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("scheduling service error %d: %s", resp.StatusCode(), resp.String())
		}
		if resp.IsError() {
			// 4xx is not retryable.
			return backoff.Permanent(fmt.Errorf("scheduling request rejected %d: %s", resp.StatusCode(), resp.String()))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	slog.Info("schedule proposed",
		"proposal_id", proposal.ProposalID,
		"identity_key", contact.IdentityKey,
		"accepted", proposal.Accepted,
		"slots", len(slots),
	)
	return &proposal, nil
}

// SchedulingLink returns the self-serve booking link for the configured
// event type, degrading to the configured default and fallback links when
// the API is unavailable. Never fails: a link of last resort is part of the
// configuration contract.
func (c *Client) SchedulingLink(ctx context.Context) string {
	if c.cfg.DefaultLink != "" {
		return c.cfg.DefaultLink
	}

	var out struct {
		Link string `json:"link"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("event_type", c.cfg.EventType).
		SetResult(&out).
		Get("/v1/scheduling_link")
	if err != nil || resp.IsError() || out.Link == "" {
		slog.Warn("scheduling link lookup failed, using fallback", "error", err)
		return c.cfg.FallbackLink
	}
	return out.Link
}
