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

package models

import "testing"

func TestEnumValidation(t *testing.T) {
	if !StatusPending.Valid() || !StatusFailed.Valid() {
		t.Error("known statuses rejected")
	}
	if Status("archived").Valid() {
		t.Error("unknown status accepted")
	}
	if !SentimentAnger.Valid() || !SentimentNeutral.Valid() {
		t.Error("known sentiments rejected")
	}
	if Sentiment("ecstatic").Valid() {
		t.Error("unknown sentiment accepted")
	}
	if !SourceEmail.Valid() || !SourceFormCustom.Valid() {
		t.Error("known sources rejected")
	}
	if Source("fax").Valid() {
		t.Error("unknown source accepted")
	}
}

// TestAlertFor pins the anger-ratio thresholds, including the boundaries.
func TestAlertFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  AlertLevel
	}{
		{0, AlertNone},
		{0.19, AlertNone},
		{0.20, AlertElevated},
		{0.29, AlertElevated},
		{0.30, AlertHigh},
		{0.75, AlertHigh},
	}
	for _, tt := range tests {
		if got := AlertFor(tt.ratio); got != tt.want {
			t.Errorf("AlertFor(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}
