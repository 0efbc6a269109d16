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

// Package timeparse extracts candidate interview time spans from free-form
// message text. It is a lexical pattern matcher over calendar-referring
// phrases ("next Tuesday at 3pm", "March 5th morning", "tomorrow"), resolved
// to absolute timestamps relative to a reference time — normally the
// message's received_at. Extraction is a single pass and always finite.
package timeparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

// timeWindow is how far past a date anchor we look for a clock time or a
// day-part word belonging to the same phrase.
const timeWindow = 40

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// Day parts resolve to time-of-day ranges rather than a single instant.
var dayParts = map[string][2]int{
	"morning":   {9, 12},
	"afternoon": {12, 17},
	"evening":   {17, 20},
}

var (
	relativeRe = regexp.MustCompile(`(?i)\b(today|tomorrow)\b`)
	weekdayRe  = regexp.MustCompile(`(?i)\b(?:next\s+|this\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	monthDayRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)\b`)

	clockRe   = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b|\b(?:at\s+)(\d{1,2})(?::(\d{2}))?\b|\b(\d{1,2}):(\d{2})\b`)
	dayPartRe = regexp.MustCompile(`(?i)\b(morning|afternoon|evening)\b`)
)

// dateAnchor is a resolved calendar date found in the text.
type dateAnchor struct {
	pos  int // end offset of the match, where the time window starts
	year int
	mon  time.Month
	day  int
}

// Extract finds calendar-referring phrases in body and resolves them to
// absolute time spans relative to ref. Phrases with an explicit clock time
// produce a one-hour slot; a day-part word produces its range; a bare date
// produces the business-hours window. Duplicate spans are collapsed,
// preserving order of first appearance.
func Extract(body string, ref time.Time) []models.Slot {
	anchors := findAnchors(body, ref)
	if len(anchors) == 0 {
		return nil
	}

	var slots []models.Slot
	seen := make(map[models.Slot]bool)
	for _, a := range anchors {
		slot := resolveSlot(body, a, ref.Location())
		if !seen[slot] {
			seen[slot] = true
			slots = append(slots, slot)
		}
	}
	return slots
}

// findAnchors locates every date reference in the text, in document order.
func findAnchors(body string, ref time.Time) []dateAnchor {
	var anchors []dateAnchor

	for _, m := range relativeRe.FindAllStringSubmatchIndex(body, -1) {
		word := strings.ToLower(body[m[2]:m[3]])
		d := ref
		if word == "tomorrow" {
			d = ref.AddDate(0, 0, 1)
		}
		anchors = append(anchors, dateAnchor{pos: m[1], year: d.Year(), mon: d.Month(), day: d.Day()})
	}

	for _, m := range weekdayRe.FindAllStringSubmatchIndex(body, -1) {
		target := weekdays[strings.ToLower(body[m[2]:m[3]])]
		days := (int(target) - int(ref.Weekday()) + 7) % 7
		if days == 0 {
			days = 7 // "Tuesday" on a Tuesday means next week's
		}
		d := ref.AddDate(0, 0, days)
		anchors = append(anchors, dateAnchor{pos: m[1], year: d.Year(), mon: d.Month(), day: d.Day()})
	}

	for _, m := range monthDayRe.FindAllStringSubmatchIndex(body, -1) {
		mon := months[strings.ToLower(body[m[2]:m[3]])]
		day, _ := strconv.Atoi(body[m[4]:m[5]])
		anchors = append(anchors, resolveMonthDay(m[1], mon, day, ref))
	}

	for _, m := range dayMonthRe.FindAllStringSubmatchIndex(body, -1) {
		day, _ := strconv.Atoi(body[m[2]:m[3]])
		mon := months[strings.ToLower(body[m[4]:m[5]])]
		anchors = append(anchors, resolveMonthDay(m[1], mon, day, ref))
	}

	sort.SliceStable(anchors, func(i, j int) bool { return anchors[i].pos < anchors[j].pos })
	return anchors
}

// resolveMonthDay picks the next occurrence of the named date: this year if
// it has not passed relative to ref, otherwise next year.
func resolveMonthDay(pos int, mon time.Month, day int, ref time.Time) dateAnchor {
	year := ref.Year()
	candidate := time.Date(year, mon, day, 0, 0, 0, 0, ref.Location())
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	if candidate.Before(refDay) {
		year++
	}
	return dateAnchor{pos: pos, year: year, mon: mon, day: day}
}

// resolveSlot attaches a clock time or day part found within the phrase
// window after the anchor, falling back to the business-hours window.
func resolveSlot(body string, a dateAnchor, loc *time.Location) models.Slot {
	end := a.pos + timeWindow
	if end > len(body) {
		end = len(body)
	}
	window := body[a.pos:end]

	if hour, minute, ok := findClock(window); ok {
		start := time.Date(a.year, a.mon, a.day, hour, minute, 0, 0, loc)
		return models.Slot{Start: start, End: start.Add(time.Hour)}
	}

	if m := dayPartRe.FindStringSubmatch(window); m != nil {
		r := dayParts[strings.ToLower(m[1])]
		return models.Slot{
			Start: time.Date(a.year, a.mon, a.day, r[0], 0, 0, 0, loc),
			End:   time.Date(a.year, a.mon, a.day, r[1], 0, 0, 0, loc),
		}
	}

	// Bare date: assume business hours.
	return models.Slot{
		Start: time.Date(a.year, a.mon, a.day, 9, 0, 0, 0, loc),
		End:   time.Date(a.year, a.mon, a.day, 17, 0, 0, 0, loc),
	}
}

// findClock parses the first clock-time expression in the window.
// Handles "3pm", "3:30 pm", "at 15:00", "at 3".
func findClock(window string) (hour, minute int, ok bool) {
	m := clockRe.FindStringSubmatch(window)
	if m == nil {
		return 0, 0, false
	}

	var hs, ms, ampm string
	switch {
	case m[1] != "": // "(at )3(:30)?(am|pm)"
		hs, ms, ampm = m[1], m[2], m[3]
	case m[4] != "": // "at 3(:30)?" without meridiem
		hs, ms = m[4], m[5]
	default: // bare "15:00"
		hs, ms = m[6], m[7]
	}

	hour, err := strconv.Atoi(hs)
	if err != nil || hour > 23 {
		return 0, 0, false
	}
	if ms != "" {
		minute, _ = strconv.Atoi(ms)
		if minute > 59 {
			return 0, 0, false
		}
	}

	switch strings.ToLower(ampm) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	default:
		// No meridiem: interpret small hours as afternoon, matching how
		// people write meeting times ("at 3" means 15:00, not 03:00).
		if hour >= 1 && hour <= 7 {
			hour += 12
		}
	}

	return hour, minute, true
}
