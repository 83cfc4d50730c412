// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TokenBucketLimiter is the general-purpose per-key limiter: a token
// bucket per key, with a hard cap on tracked buckets and LRU eviction
// when full. Allow is amortized constant-time.
type TokenBucketLimiter struct {
	mu sync.Mutex

	maxTokens     float64
	refillPerSec  float64
	buckets       *lru.Cache[string, *tokenBucket]
	now           func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucketLimiter creates a limiter tracking at most maxBuckets
// keys.
func NewTokenBucketLimiter(maxTokens float64, refillPerSec float64, maxBuckets int) *TokenBucketLimiter {
	if maxBuckets <= 0 {
		maxBuckets = 10_000
	}
	cache, _ := lru.New[string, *tokenBucket](maxBuckets)
	return &TokenBucketLimiter{
		maxTokens:    maxTokens,
		refillPerSec: refillPerSec,
		buckets:      cache,
		now:          time.Now,
	}
}

// Allow consumes one token for key, reporting whether the call is within
// budget.
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = &tokenBucket{tokens: l.maxTokens, lastRefill: now}
		l.buckets.Add(key, bucket) // evicts the LRU key when full
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.tokens += elapsed * l.refillPerSec
	if bucket.tokens > l.maxTokens {
		bucket.tokens = l.maxTokens
	}
	bucket.lastRefill = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// Len reports the tracked bucket count.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets.Len()
}
