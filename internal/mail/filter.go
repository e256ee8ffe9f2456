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

import "strings"

// SenderFilter drops mail from automated or internal senders. Patterns are
// matched case-insensitively as substrings, so "no-reply" and
// "@corp.example.com" both work.
type SenderFilter struct {
	patterns []string
}

// NewSenderFilter builds a filter from exclude patterns. Blank patterns are
// ignored.
func NewSenderFilter(patterns []string) *SenderFilter {
	f := &SenderFilter{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			f.patterns = append(f.patterns, p)
		}
	}
	return f
}

// Excluded reports whether mail from sender should be dropped.
func (f *SenderFilter) Excluded(sender string) bool {
	if f == nil || len(f.patterns) == 0 {
		return false
	}
	sender = strings.ToLower(sender)
	for _, p := range f.patterns {
		if strings.Contains(sender, p) {
			return true
		}
	}
	return false
}
