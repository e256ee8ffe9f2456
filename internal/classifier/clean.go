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

package classifier

import (
	"regexp"
	"strings"
)

var (
	headerLineRE = regexp.MustCompile(`(?m)^(From:|To:|Subject:|Date:).*$`)
	signatureRE  = regexp.MustCompile(`(?m)^--\s*$[\s\S]*`)
	urlRE        = regexp.MustCompile(`https?://\S+`)
	whitespaceRE = regexp.MustCompile(`\s+`)
	ellipsisRE   = regexp.MustCompile(`\.{3,}`)
	exclaimRE    = regexp.MustCompile(`!{2,}`)
	questionRE   = regexp.MustCompile(`\?{2,}`)
)

// CleanText normalises a raw message body before classification: quoted
// email headers and the signature trailer go first (they are line-based),
// then URLs, then whitespace is collapsed and punctuation runs are reduced.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = headerLineRE.ReplaceAllString(text, "")
	text = signatureRE.ReplaceAllString(text, "")
	text = urlRE.ReplaceAllString(text, "")

	text = whitespaceRE.ReplaceAllString(strings.TrimSpace(text), " ")

	text = ellipsisRE.ReplaceAllString(text, "...")
	text = exclaimRE.ReplaceAllString(text, "!")
	text = questionRE.ReplaceAllString(text, "?")

	return strings.TrimSpace(text)
}
