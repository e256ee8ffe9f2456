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

package store

import (
	"testing"
	"unicode/utf8"
)

// TestTruncate verifies the byte cap never splits a multibyte rune, so
// truncated error reasons stay valid UTF-8 for the TEXT columns.
func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short passthrough", in: "ok", max: 10, want: "ok"},
		{name: "exact fit", in: "abcd", max: 4, want: "abcd"},
		{name: "ascii cut", in: "abcdef", max: 3, want: "abc"},
		{name: "mid-rune backs up", in: "héllo", max: 2, want: "h"},
		{name: "boundary kept", in: "héllo", max: 3, want: "hé"},
		{name: "all multibyte", in: "……", max: 4, want: "…"},
		{name: "zero max", in: "é", max: 0, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
			}
		})
	}
}
