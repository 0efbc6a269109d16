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

// Package normalize maps raw source-specific messages into the canonical
// Message record. Normalization is total: malformed fields degrade to
// best-effort defaults rather than failing, because a dropped message is
// worse than a message with a placeholder identity. Filtering is the
// decision policy's job, never this package's.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/Unobtainiumrock/messaging-pipeline/internal/models"
)

var (
	htmlTagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Slack-style markup: <@U123>, <#C123|general>, <https://x.com|label>
	chatMentionRe = regexp.MustCompile(`<[@#!][^>]*>`)
	chatLinkRe    = regexp.MustCompile(`<(https?://[^|>]+)(\|[^>]*)?>`)

	// "Name <addr@host>" email sender format
	emailAngleRe = regexp.MustCompile(`^(.*?)<([^<>]+@[^<>]+)>$`)
	emailBareRe  = regexp.MustCompile(`[^\s<>]+@[^\s<>]+`)
)

// MessageID derives the stable canonical ID for a (source, source_message_id)
// pair. Re-normalizing the same RawMessage always yields the same ID, which
// is what makes at-least-once delivery from source adapters safe.
func MessageID(source models.Source, sourceMessageID string) string {
	sum := sha256.Sum256([]byte(string(source) + "\x00" + sourceMessageID))
	return hex.EncodeToString(sum[:16])
}

// Normalize converts a RawMessage into the canonical Message. It never fails.
func Normalize(raw models.RawMessage) models.Message {
	return models.Message{
		ID:         MessageID(raw.Source, raw.SourceMessageID),
		Contact:    resolveContact(raw),
		Body:       stripBody(raw),
		ReceivedAt: raw.ReceivedAt,
		Source:     raw.Source,
	}
}

// stripBody applies the per-source stripping rule and collapses whitespace.
func stripBody(raw models.RawMessage) string {
	body := raw.RawBody

	switch raw.Source {
	case models.SourceEmail:
		body = htmlTagRe.ReplaceAllString(body, " ")
		body = html.UnescapeString(body)
	case models.SourceChat:
		body = stripChatMarkup(body)
	case models.SourcePortal:
		// Portal messages arrive as scraped HTML fragments.
		body = htmlTagRe.ReplaceAllString(body, " ")
		body = html.UnescapeString(body)
	}

	body = whitespaceRe.ReplaceAllString(body, " ")
	return strings.TrimSpace(body)
}

// stripChatMarkup removes platform quoting markers and mention/link markup.
func stripChatMarkup(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		// Drop quoted history lines
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	out = chatLinkRe.ReplaceAllString(out, "$1")
	out = chatMentionRe.ReplaceAllString(out, " ")
	return out
}

// resolveContact builds the uniform Contact from the source-specific sender
// format. A missing or unparseable sender gets a placeholder identity keyed
// on the source message ID so the message is never dropped.
func resolveContact(raw models.RawMessage) models.Contact {
	sender := strings.TrimSpace(raw.RawSender)

	var display, key string
	switch raw.Source {
	case models.SourceEmail:
		display, key = parseEmailSender(sender)
	case models.SourceLinkedIn:
		display = sender
		key = linkedInKey(raw, sender)
	case models.SourceChat:
		display = strings.TrimPrefix(sender, "@")
		key = strings.ToLower(strings.TrimPrefix(sender, "@"))
	default:
		display = sender
		key = strings.ToLower(sender)
	}

	key = strings.TrimSpace(key)
	if key == "" {
		key = fmt.Sprintf("unknown:%s", raw.SourceMessageID)
	}

	return models.Contact{
		DisplayName: strings.TrimSpace(display),
		IdentityKey: key,
		Source:      raw.Source,
	}
}

// parseEmailSender handles both "Name <addr@host>" and bare address forms.
func parseEmailSender(sender string) (display, key string) {
	if m := emailAngleRe.FindStringSubmatch(sender); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"`), strings.ToLower(m[2])
	}
	if addr := emailBareRe.FindString(sender); addr != "" {
		return "", strings.ToLower(addr)
	}
	return sender, strings.ToLower(sender)
}

// linkedInKey prefers the profile URL slug over the display name, which is
// not unique on LinkedIn.
func linkedInKey(raw models.RawMessage, sender string) string {
	if raw.LinkedIn != nil && raw.LinkedIn.ProfileURL != "" {
		u := strings.TrimRight(raw.LinkedIn.ProfileURL, "/")
		if i := strings.LastIndex(u, "/"); i >= 0 && i < len(u)-1 {
			return strings.ToLower(u[i+1:])
		}
	}
	return strings.ToLower(sender)
}
