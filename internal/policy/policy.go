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

// Package policy maps classification results to actions. The policy is a
// pure function of its inputs: thresholds are fixed at construction and
// validated up front, so deciding can never fail mid-pipeline.
package policy

import (
	"fmt"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// Default thresholds.
const (
	DefaultScheduleThreshold = 0.75
	DefaultFlagThreshold     = 0.35
)

// Thresholds carve the confidence range into three bands:
// below Flag → Ignore; [Flag, Schedule) → FlagForReview (the ambiguous
// band); at or above Schedule → Schedule, for interview requests with slots.
type Thresholds struct {
	Schedule float64
	Flag     float64
}

// Policy decides the downstream handling for an IntentResult.
type Policy struct {
	t Thresholds
}

// New validates the threshold ordering and returns a Policy.
// Required: 0 <= flag < schedule <= 1.
func New(t Thresholds) (*Policy, error) {
	if t.Flag < 0 || t.Schedule > 1 || t.Flag >= t.Schedule {
		return nil, fmt.Errorf("invalid thresholds: need 0 <= flag (%v) < schedule (%v) <= 1", t.Flag, t.Schedule)
	}
	return &Policy{t: t}, nil
}

// Decide maps a classification result to an action. Both band boundaries
// are inclusive lower bounds. A confident interview request without any
// parseable time slot is downgraded to review: we cannot schedule without a
// time, and a real request must never be silently dropped.
func (p *Policy) Decide(result models.IntentResult) models.Action {
	if result.Label == models.LabelInterviewRequest && result.Confidence >= p.t.Schedule {
		if len(result.Slots) == 0 {
			return models.Action{
				Kind:   models.ActionFlagForReview,
				Reason: "interview request detected but no candidate time found",
			}
		}
		return models.Action{Kind: models.ActionSchedule, Slots: result.Slots}
	}

	if result.Confidence < p.t.Flag {
		return models.Action{Kind: models.ActionIgnore}
	}

	return models.Action{
		Kind:   models.ActionFlagForReview,
		Reason: fmt.Sprintf("confidence %.2f below scheduling threshold", result.Confidence),
	}
}
