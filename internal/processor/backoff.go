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

package processor

import (
	"math"
	"math/rand"
	"time"
)

// backoffWithJitter returns the wait before the next cycle after `streak`
// consecutive rate-limited cycles: exponential doubling from base, capped at
// max, with half-width jitter so competing workers spread out. The result is
// never shorter than base, so backing off always slows the loop down.
func backoffWithJitter(base, max time.Duration, streak int) time.Duration {
	if streak <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(streak))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	half := wait / 2
	if half <= 0 {
		return base
	}
	jittered := half + time.Duration(rand.Int63n(int64(half)))
	if jittered < base {
		jittered = base
	}
	return jittered
}
