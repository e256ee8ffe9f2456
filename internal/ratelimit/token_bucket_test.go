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

package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBucket(t *testing.T, capacity int, refill float64) *TokenBucket {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTokenBucket(client, capacity, refill, time.Minute)
}

// TestTokenBucket_Exhaustion verifies the bucket denies once capacity is
// spent. Refill is zero so the outcome does not depend on test timing.
func TestTokenBucket_Exhaustion(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 2, 0)

	allowed, tokens, err := bucket.Allow(ctx, "classifier")
	if err != nil || !allowed {
		t.Fatalf("first call: allowed=%v tokens=%v err=%v", allowed, tokens, err)
	}
	if tokens != 1 {
		t.Errorf("remaining after first = %v, want 1", tokens)
	}

	allowed, _, err = bucket.Allow(ctx, "classifier")
	if err != nil || !allowed {
		t.Fatalf("second call: allowed=%v err=%v", allowed, err)
	}

	allowed, tokens, err = bucket.Allow(ctx, "classifier")
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if allowed {
		t.Error("third call allowed, want denial at capacity")
	}
	if tokens != 0 {
		t.Errorf("remaining after denial = %v, want 0", tokens)
	}

	// Note: refill cannot be tested against miniredis deterministically; the
	// script derives elapsed time from the caller's clock.
}

// TestTokenBucket_KeysAreIndependent verifies separate keys get separate
// buckets.
func TestTokenBucket_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 1, 0)

	if allowed, _, err := bucket.Allow(ctx, "alpha"); err != nil || !allowed {
		t.Fatalf("alpha first call: allowed=%v err=%v", allowed, err)
	}
	if allowed, _, _ := bucket.Allow(ctx, "alpha"); allowed {
		t.Error("alpha second call allowed, want denial")
	}
	if allowed, _, err := bucket.Allow(ctx, "beta"); err != nil || !allowed {
		t.Errorf("beta unaffected by alpha: allowed=%v err=%v", allowed, err)
	}
}
