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

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/classify"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/dispatch"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/policy"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/schedule"
	"github.com/Unobtainiumrock/messaging-pipeline/internal/store"
)

// memStore is an in-memory record sink.
type memStore struct {
	mu      sync.Mutex
	records map[string]store.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]store.Record)}
}

func (m *memStore) Get(ctx context.Context, messageID string) (*store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[messageID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) Append(ctx context.Context, r store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.MessageID]; !ok {
		m.records[r.MessageID] = r
	}
	return nil
}

// acceptingProposer accepts every proposal and counts calls.
type acceptingProposer struct {
	mu    sync.Mutex
	calls int
}

func (p *acceptingProposer) ProposeSchedule(ctx context.Context, contact models.Contact, slots []models.Slot) (*schedule.Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return &schedule.Proposal{ProposalID: "prop-1", Accepted: true}, nil
}

func (p *acceptingProposer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestPipeline(t *testing.T, st *memStore, prop dispatch.Proposer) *Pipeline {
	t.Helper()
	classifier := classify.New(classify.Config{}, nil)
	pol, err := policy.New(policy.Thresholds{
		Schedule: policy.DefaultScheduleThreshold,
		Flag:     policy.DefaultFlagThreshold,
	})
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}
	return New(nil, classifier, pol, dispatch.New(st, prop))
}

func TestProcessInterviewRequestSchedules(t *testing.T) {
	st := newMemStore()
	prop := &acceptingProposer{}
	p := newTestPipeline(t, st, prop)

	raw := models.RawMessage{
		Source:          models.SourceEmail,
		SourceMessageID: "msg-interview",
		RawSender:       "recruiter@acme.com",
		RawBody:         "Hi, are you free for a quick interview call next Friday morning?",
		ReceivedAt:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), // a Monday
	}

	rec, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec == nil {
		t.Fatal("Process returned no record")
	}

	if rec.ActionTaken != models.ActionSchedule {
		t.Errorf("ActionTaken = %q, want %q (reason %q)", rec.ActionTaken, models.ActionSchedule, rec.Reason)
	}
	if rec.Label != models.LabelInterviewRequest {
		t.Errorf("Label = %q, want %q", rec.Label, models.LabelInterviewRequest)
	}
	if rec.Confidence < 0.8 {
		t.Errorf("Confidence = %v, want >= 0.8", rec.Confidence)
	}
	if rec.IdentityKey != "recruiter@acme.com" {
		t.Errorf("IdentityKey = %q", rec.IdentityKey)
	}
	if prop.count() != 1 {
		t.Errorf("scheduler called %d times, want 1", prop.count())
	}
	if len(st.records) != 1 {
		t.Errorf("store holds %d records, want 1", len(st.records))
	}
}

func TestProcessRejectionIgnored(t *testing.T) {
	st := newMemStore()
	prop := &acceptingProposer{}
	p := newTestPipeline(t, st, prop)

	raw := models.RawMessage{
		Source:          models.SourcePortal,
		SourceMessageID: "p-reject",
		RawSender:       "Acme Recruiting",
		RawBody:         "Thank you for your application. We have decided to move forward with other candidates.",
		ReceivedAt:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	rec, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if rec.ActionTaken != models.ActionIgnore {
		t.Errorf("ActionTaken = %q, want %q", rec.ActionTaken, models.ActionIgnore)
	}
	if prop.count() != 0 {
		t.Errorf("scheduler called %d times, want 0", prop.count())
	}
}

func TestProcessRejectsUnknownSource(t *testing.T) {
	p := newTestPipeline(t, newMemStore(), nil)

	_, err := p.Process(context.Background(), models.RawMessage{
		Source:          "pigeon",
		SourceMessageID: "x",
	})
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	st := newMemStore()
	prop := &acceptingProposer{}
	p := newTestPipeline(t, st, prop)

	raw := models.RawMessage{
		Source:          models.SourceLinkedIn,
		SourceMessageID: "dm-55",
		RawSender:       "Sam Recruiter",
		RawBody:         "Are you available to schedule an interview call tomorrow morning? Happy to discuss the role.",
		ReceivedAt:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	first, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}

	if second.MessageID != first.MessageID {
		t.Errorf("records differ: %q vs %q", second.MessageID, first.MessageID)
	}
	if prop.count() != 1 {
		t.Errorf("scheduler called %d times, want 1", prop.count())
	}
	if len(st.records) != 1 {
		t.Errorf("store holds %d records, want 1", len(st.records))
	}
}

func TestProcessBatch(t *testing.T) {
	st := newMemStore()
	prop := &acceptingProposer{}
	p := newTestPipeline(t, st, prop)

	ref := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	raws := []models.RawMessage{
		{
			Source:          models.SourceEmail,
			SourceMessageID: "e-1",
			RawSender:       "recruiter@acme.com",
			RawBody:         "Hi, are you free for a quick interview call next Friday morning?",
			ReceivedAt:      ref,
		},
		{
			Source:          models.SourceEmail,
			SourceMessageID: "e-2",
			RawSender:       "noreply@jobs.example",
			RawBody:         "Your weekly job digest.",
			ReceivedAt:      ref,
		},
		{
			Source:          models.SourceChat,
			SourceMessageID: "c-1",
			RawSender:       "@sam",
			RawBody:         "quick q about lunch",
			ReceivedAt:      ref,
		},
		{
			Source:          "pigeon",
			SourceMessageID: "bad-1",
		},
	}

	result := p.ProcessBatch(context.Background(), raws)

	if result.Processed != 3 {
		t.Errorf("Processed = %d, want 3", result.Processed)
	}
	if result.Errors != 1 {
		t.Errorf("Errors = %d, want 1", result.Errors)
	}
	if result.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", result.Skipped)
	}
	if len(st.records) != 3 {
		t.Errorf("store holds %d records, want 3", len(st.records))
	}
}
