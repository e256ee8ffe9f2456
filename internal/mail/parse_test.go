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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/manisang89/sentinova/internal/models"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// TestParseMessage_Plain verifies header extraction and a simple plain body.
func TestParseMessage_Plain(t *testing.T) {
	raw := crlf(`From: Alice Doe <alice@example.com>
To: support@sentinova.io
Subject: Broken widget
Date: Mon, 12 Jan 2026 10:00:00 +0000
Message-ID: <abc123@example.com>
Content-Type: text/plain; charset=utf-8

The widget arrived broken and I want a refund.
`)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if p.Sender != "alice@example.com" {
		t.Errorf("sender = %q, want alice@example.com", p.Sender)
	}
	if p.Subject != "Broken widget" {
		t.Errorf("subject = %q, want Broken widget", p.Subject)
	}
	if p.MessageID != "abc123@example.com" {
		t.Errorf("message id = %q, want abc123@example.com", p.MessageID)
	}
	if p.Date.IsZero() {
		t.Error("date not parsed")
	}
	if p.Body != "The widget arrived broken and I want a refund." {
		t.Errorf("body = %q", p.Body)
	}
}

// TestParseMessage_MultipartPrefersPlain verifies text/plain wins over HTML.
func TestParseMessage_MultipartPrefersPlain(t *testing.T) {
	raw := crlf(`From: bob@example.com
Subject: Two bodies
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>HTML version</p>
--b1
Content-Type: text/plain; charset=utf-8

plain version
--b1--
`)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if p.Body != "plain version" {
		t.Errorf("body = %q, want plain version", p.Body)
	}
}

// TestParseMessage_HTMLFallback verifies HTML-only mail gets tag-stripped.
func TestParseMessage_HTMLFallback(t *testing.T) {
	raw := crlf(`From: carol@example.com
Subject: Rich mail
Content-Type: text/html; charset=utf-8

<html><head><style>p { color: red }</style></head>
<body><p>Hello &amp; goodbye</p><script>alert(1)</script></body></html>
`)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if p.Body != "Hello & goodbye" {
		t.Errorf("body = %q, want Hello & goodbye", p.Body)
	}
}

// TestParseMessage_SkipsAttachments verifies attachments never become the body.
func TestParseMessage_SkipsAttachments(t *testing.T) {
	raw := crlf(`From: dave@example.com
Subject: With attachment
Content-Type: multipart/mixed; boundary="b2"

--b2
Content-Type: text/plain; charset=utf-8

see attached
--b2
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--b2--
`)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if p.Body != "see attached" {
		t.Errorf("body = %q, want see attached", p.Body)
	}
}

// TestParseMessage_DecodesTransferEncoding verifies quoted-printable bodies
// and encoded-word subjects come out as UTF-8.
func TestParseMessage_DecodesTransferEncoding(t *testing.T) {
	raw := crlf(`From: eve@example.com
Subject: =?utf-8?B?VHLDqHMgbcOpY29udGVudA==?=
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Caf=C3=A9 was cold.
`)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if p.Subject != "Très mécontent" {
		t.Errorf("subject = %q, want decoded UTF-8", p.Subject)
	}
	if p.Body != "Café was cold." {
		t.Errorf("body = %q, want Café was cold.", p.Body)
	}
}

// TestParseMessage_EmptyBody verifies a bodyless message parses with Body "".
func TestParseMessage_EmptyBody(t *testing.T) {
	raw := crlf(`From: frank@example.com
Subject: nothing here
Content-Type: text/plain; charset=utf-8

`)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if p.Body != "" {
		t.Errorf("body = %q, want empty", p.Body)
	}
}

// TestParseMessage_NoFrom verifies the anonymous sender fallback.
func TestParseMessage_NoFrom(t *testing.T) {
	raw := crlf(`Subject: anonymous
Content-Type: text/plain; charset=utf-8

who sent this
`)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if p.Sender != models.AnonymousSender {
		t.Errorf("sender = %q, want %q", p.Sender, models.AnonymousSender)
	}
}

// TestParseMessage_TruncatesBody verifies the storage limit applies.
func TestParseMessage_TruncatesBody(t *testing.T) {
	raw := crlf(`From: gina@example.com
Subject: long
Content-Type: text/plain; charset=utf-8

`) + strings.Repeat("x", models.MaxBodyLength+500)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(p.Body) != models.MaxBodyLength {
		t.Errorf("body length = %d, want %d", len(p.Body), models.MaxBodyLength)
	}
}

// TestParseMessage_TruncatesOnRuneBoundary verifies a body of multibyte runes
// is cut on a rune boundary, so the stored text stays valid UTF-8.
func TestParseMessage_TruncatesOnRuneBoundary(t *testing.T) {
	// Three-byte runes ensure the byte cap lands mid-rune.
	raw := crlf(`From: gina@example.com
Subject: multibyte
Content-Type: text/plain; charset=utf-8

`) + strings.Repeat("…", models.MaxBodyLength/3+500)

	p, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(p.Body) > models.MaxBodyLength {
		t.Errorf("body length = %d, want <= %d", len(p.Body), models.MaxBodyLength)
	}
	if !utf8.ValidString(p.Body) {
		t.Error("truncated body is not valid UTF-8")
	}
}

// TestHTMLToText covers the tag stripper directly.
func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain passthrough", in: "no markup", want: "no markup"},
		{
			name: "tags and entities",
			in:   "<div><b>bold</b> &lt;literal&gt;</div>",
			want: "bold <literal>",
		},
		{
			name: "style stripped",
			in:   "<style>body { color: red }</style>visible",
			want: "visible",
		},
		{
			name: "whitespace collapsed",
			in:   "<p>one</p>\n\n<p>two</p>",
			want: "one two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlToText(tt.in); got != tt.want {
				t.Errorf("htmlToText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
