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
	"regexp"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// Intent signal patterns for the local statistical scorer. The interview set
// drives the confidence estimate; the secondary sets only identify the
// strongest non-interview signal for the audit record.
var interviewPatterns = compileAll(
	`interview`,
	`meet(ing)?(\s|to\s|for\s)`,
	`schedule(\sa)?(\s|call|chat|meeting)`,
	`available(\s|for|to)`,
	`free(\s(for|to))`,
	`speak(\s|with|to)`,
	`discuss(\s|your|the)`,
	`call(\s|with|to)`,
	`time(\s|for|to)`,
	`talk(\s|about|with)`,
)

var secondaryPatterns = map[string][]*regexp.Regexp{
	models.IntentFollowUp: compileAll(
		`follow(ing)?(\s|-)?up`,
		`checking(\s|in)`,
		`status`,
		`update`,
		`progress`,
		`hear(ing)?(\s|back|from)`,
	),
	models.IntentJobOffer: compileAll(
		`offer`,
		`position`,
		`salary`,
		`compensation`,
		`accept`,
		`join(\s|our|the)`,
		`welcome(\s|to|aboard)`,
	),
	models.IntentNetworking: compileAll(
		`connect`,
		`network`,
		`introduction`,
		`recommendation`,
		`refer`,
		`community`,
	),
}

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(`(?i)` + p)
	}
	return res
}

// Confidence calibration for the local scorer. The score is the estimated
// probability that the message is an interview request: a weak prior with no
// signals, rising by a fixed step per independent signal phrase.
const (
	localBase     = 0.30
	localStep     = 0.18
	localNoSignal = 0.15
	localCeiling  = 0.95
)

// scoreLocal runs the regex signal patterns over the body and returns the
// interview-request probability plus the strongest secondary intent.
func scoreLocal(body string) (confidence float64, secondary string) {
	signals := 0
	for _, re := range interviewPatterns {
		if re.MatchString(body) {
			signals++
		}
	}

	if signals == 0 {
		confidence = localNoSignal
	} else {
		confidence = localBase + localStep*float64(signals)
		if confidence > localCeiling {
			confidence = localCeiling
		}
	}

	best := 0
	for intent, patterns := range secondaryPatterns {
		n := 0
		for _, re := range patterns {
			if re.MatchString(body) {
				n++
			}
		}
		if n > best {
			best = n
			secondary = intent
		}
	}

	return confidence, secondary
}

// localLabel maps the interview-request probability to the binary label.
func localLabel(confidence float64) models.Label {
	if confidence >= 0.5 {
		return models.LabelInterviewRequest
	}
	return models.LabelOther
}
