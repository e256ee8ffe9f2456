// Copyright (c) 2026 Sentinova Authors
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

package mail

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/manisang89/sentinova/internal/models"
)

// Parsed is a fetched email reduced to the fields we store.
type Parsed struct {
	Sender    string
	Subject   string
	Date      time.Time
	MessageID string
	Body      string
}

var (
	scriptRE = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRE    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// ParseMessage extracts sender, subject, and a plain-text body from a raw
// RFC 822 message. The first text/plain part wins; HTML-only messages fall
// back to a tag-stripped rendering. Attachments are ignored. The body is
// truncated to the storage limit and may be empty.
func ParseMessage(raw []byte) (*Parsed, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	p := &Parsed{Sender: models.AnonymousSender}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 && addrs[0].Address != "" {
		p.Sender = addrs[0].Address
	}
	p.Subject, _ = mr.Header.Subject()
	p.Date, _ = mr.Header.Date()
	p.MessageID, _ = mr.Header.MessageID()

	var plain, htmlBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Keep whatever we extracted from the readable parts.
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, err := h.ContentType()
		if err != nil {
			continue
		}
		switch ctype {
		case "text/plain":
			if b, err := io.ReadAll(part.Body); err == nil {
				plain = string(b)
			}
		case "text/html":
			if htmlBody == "" {
				if b, err := io.ReadAll(part.Body); err == nil {
					htmlBody = string(b)
				}
			}
		}
		if plain != "" {
			break
		}
	}

	body := strings.TrimSpace(plain)
	if body == "" {
		body = htmlToText(htmlBody)
	}
	if len(body) > models.MaxBodyLength {
		cut := models.MaxBodyLength
		// Back up to a rune boundary so the cut never produces invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	p.Body = body
	return p, nil
}

// htmlToText renders HTML down to whitespace-normalized text.
func htmlToText(s string) string {
	if s == "" {
		return ""
	}
	s = scriptRE.ReplaceAllString(s, " ")
	s = tagRE.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
