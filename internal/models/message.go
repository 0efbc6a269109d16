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

// Package models defines the data structures shared across the pipeline.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source identifies the communication channel a message arrived on.
type Source string

const (
	SourceEmail    Source = "email"
	SourceLinkedIn Source = "linkedin"
	SourcePortal   Source = "portal"
	SourceChat     Source = "chat"
)

// Valid reports whether s is a known source tag.
func (s Source) Valid() bool {
	switch s {
	case SourceEmail, SourceLinkedIn, SourcePortal, SourceChat:
		return true
	}
	return false
}

// EmailMeta carries email-specific extras from the mail connector.
type EmailMeta struct {
	Subject  string `json:"subject,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// LinkedInMeta carries LinkedIn DM extras.
type LinkedInMeta struct {
	ProfileURL     string `json:"profile_url,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// PortalMeta carries campus-recruiting portal extras.
type PortalMeta struct {
	Portal         string `json:"portal,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatMeta carries chat-platform extras (Slack, Discord).
type ChatMeta struct {
	Platform  string `json:"platform,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	ThreadTS  string `json:"thread_ts,omitempty"`
}

// RawMessage is an unprocessed inbound message as produced by a source
// adapter. Exactly one of the metadata variants is set, selected by Source.
// Immutable once produced.
type RawMessage struct {
	Source          Source    `json:"source"`
	SourceMessageID string    `json:"source_message_id"`
	RawSender       string    `json:"raw_sender"`
	RawBody         string    `json:"raw_body"`
	ReceivedAt      time.Time `json:"received_at"`

	Email    *EmailMeta    `json:"-"`
	LinkedIn *LinkedInMeta `json:"-"`
	Portal   *PortalMeta   `json:"-"`
	Chat     *ChatMeta     `json:"-"`
}

// rawEnvelope mirrors the wire format: source-specific extras live under a
// single "metadata" key whose shape depends on the source tag.
type rawEnvelope struct {
	Source          Source          `json:"source"`
	SourceMessageID string          `json:"source_message_id"`
	RawSender       string          `json:"raw_sender"`
	RawBody         string          `json:"raw_body"`
	ReceivedAt      time.Time       `json:"received_at"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// UnmarshalJSON decodes the envelope and dispatches the metadata payload to
// the variant matching the source tag. Unknown source tags are an error;
// missing metadata is not.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if !env.Source.Valid() {
		return fmt.Errorf("unknown source tag %q", env.Source)
	}

	*m = RawMessage{
		Source:          env.Source,
		SourceMessageID: env.SourceMessageID,
		RawSender:       env.RawSender,
		RawBody:         env.RawBody,
		ReceivedAt:      env.ReceivedAt,
	}

	if len(env.Metadata) == 0 {
		return nil
	}

	switch env.Source {
	case SourceEmail:
		m.Email = &EmailMeta{}
		return json.Unmarshal(env.Metadata, m.Email)
	case SourceLinkedIn:
		m.LinkedIn = &LinkedInMeta{}
		return json.Unmarshal(env.Metadata, m.LinkedIn)
	case SourcePortal:
		m.Portal = &PortalMeta{}
		return json.Unmarshal(env.Metadata, m.Portal)
	case SourceChat:
		m.Chat = &ChatMeta{}
		return json.Unmarshal(env.Metadata, m.Chat)
	}
	return nil
}

// MarshalJSON re-wraps the active metadata variant under the "metadata" key.
func (m RawMessage) MarshalJSON() ([]byte, error) {
	env := rawEnvelope{
		Source:          m.Source,
		SourceMessageID: m.SourceMessageID,
		RawSender:       m.RawSender,
		RawBody:         m.RawBody,
		ReceivedAt:      m.ReceivedAt,
	}

	var meta any
	switch {
	case m.Email != nil:
		meta = m.Email
	case m.LinkedIn != nil:
		meta = m.LinkedIn
	case m.Portal != nil:
		meta = m.Portal
	case m.Chat != nil:
		meta = m.Chat
	}
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		env.Metadata = b
	}

	return json.Marshal(env)
}

// Contact is a resolved sender identity. Two Contacts with the same
// IdentityKey are the same real-world person.
type Contact struct {
	DisplayName string `json:"display_name,omitempty"`
	IdentityKey string `json:"identity_key"`
	Source      Source `json:"source"`
}

// Message is the canonical, source-agnostic record produced by the
// normalizer. ID is derived deterministically from (source,
// source_message_id) so re-normalizing the same RawMessage yields the same
// ID. Immutable once created.
type Message struct {
	ID         string    `json:"id"`
	Contact    Contact   `json:"contact"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
	Source     Source    `json:"source"`
}

// Label is the primary intent classification.
type Label string

const (
	LabelInterviewRequest Label = "interview_request"
	LabelOther            Label = "other"
)

// Secondary intents carried for audit only; the decision logic is binary.
const (
	IntentFollowUp   = "follow_up"
	IntentJobOffer   = "job_offer"
	IntentNetworking = "networking"
)

// Slot is a candidate interview time span extracted from a message body.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IntentResult is the classifier's output for a Message.
// Invariant: len(Slots) > 0 implies Label == LabelInterviewRequest.
type IntentResult struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Slots      []Slot  `json:"candidate_slots,omitempty"`

	// SecondaryIntent records the strongest non-interview intent signal
	// (follow_up, job_offer, networking) for human review. Informational.
	SecondaryIntent string `json:"secondary_intent,omitempty"`
}

// ActionKind enumerates the decision policy's outcomes.
type ActionKind string

const (
	ActionSchedule      ActionKind = "schedule"
	ActionIgnore        ActionKind = "ignore"
	ActionFlagForReview ActionKind = "flag_for_review"
)

// Action is the decision policy's output. Slots is set for Schedule,
// Reason for FlagForReview.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Slots  []Slot     `json:"slots,omitempty"`
	Reason string     `json:"reason,omitempty"`
}
