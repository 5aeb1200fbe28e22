package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// LocalLimiter keeps bucket state in process memory. It is used with the
// memory and sqlite backends, where there is a single replica.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*localBucket
	now       func() time.Time
	lastPrune time.Time
}

type localBucket struct {
	tokens float64
	ts     time.Time
	ttl    time.Duration
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*localBucket), now: time.Now}
}

func (l *LocalLimiter) Allow(_ context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}
	key := bucketKey(scope, subject)
	capacity := float64(bucket.BurstSize)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{tokens: capacity, ts: now}
		l.buckets[key] = b
	}
	b.ttl = bucket.idleTTL()
	if now.After(b.ts) {
		b.tokens = math.Min(capacity, b.tokens+now.Sub(b.ts).Seconds()*bucket.ratePerSecond())
		b.ts = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
	}
	wait := time.Duration((1 - b.tokens) / bucket.ratePerSecond() * float64(time.Second))
	return Decision{RetryAfter: retryAfter(wait)}, nil
}

// prune drops idle buckets at most once a minute.
func (l *LocalLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < time.Minute {
		return
	}
	l.lastPrune = now
	for key, b := range l.buckets {
		if now.Sub(b.ts) > b.ttl {
			delete(l.buckets, key)
		}
	}
}
