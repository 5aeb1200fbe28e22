package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisLimiter(t *testing.T) (*TokenBucketLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenBucketLimiter(rdb), mr
}

func TestTokenBucketLimiter_Allow_Disabled(t *testing.T) {
	lim, _ := newRedisLimiter(t)

	dec, err := lim.Allow(context.Background(), "generations", "user-1", Bucket{})
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed when bucket disabled")
	}
}

func TestTokenBucketLimiter_Allow_BlocksAfterBurst(t *testing.T) {
	lim, mr := newRedisLimiter(t)
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1} // 1 token/sec, burst=1

	dec1, err := lim.Allow(context.Background(), "generations", "user-1", bucket)
	if err != nil {
		t.Fatalf("allow 1: %v", err)
	}
	if !dec1.Allowed {
		t.Fatalf("expected first request to be allowed")
	}

	dec2, err := lim.Allow(context.Background(), "generations", "user-1", bucket)
	if err != nil {
		t.Fatalf("allow 2: %v", err)
	}
	if dec2.Allowed {
		t.Fatalf("expected second request to be rate limited")
	}
	if dec2.RetryAfter <= 0 {
		t.Fatalf("expected retryAfter to be set")
	}

	decOther, err := lim.Allow(context.Background(), "generations", "user-2", bucket)
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !decOther.Allowed {
		t.Fatalf("expected other subject to be allowed (independent bucket)")
	}

	for _, k := range mr.Keys() {
		if !strings.HasPrefix(k, "synth:rl:generations:") {
			t.Fatalf("unexpected key %q", k)
		}
	}
}

func TestTokenBucketLimiter_Refills(t *testing.T) {
	lim, _ := newRedisLimiter(t)
	now := time.Unix(1700000000, 0)
	lim.now = func() time.Time { return now }
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1}

	if dec, _ := lim.Allow(context.Background(), "webhook", "http://hook", bucket); !dec.Allowed {
		t.Fatalf("expected first call allowed")
	}
	if dec, _ := lim.Allow(context.Background(), "webhook", "http://hook", bucket); dec.Allowed {
		t.Fatalf("expected second call limited")
	}
	now = now.Add(1100 * time.Millisecond)
	if dec, _ := lim.Allow(context.Background(), "webhook", "http://hook", bucket); !dec.Allowed {
		t.Fatalf("expected call allowed after refill")
	}
}

func TestLocalLimiter(t *testing.T) {
	lim := NewLocalLimiter()
	now := time.Unix(1700000000, 0)
	lim.now = func() time.Time { return now }
	bucket := Bucket{RequestsPerMinute: 30, BurstSize: 2} // 0.5 token/sec

	for i := 0; i < 2; i++ {
		if dec, _ := lim.Allow(context.Background(), "generations", "u1", bucket); !dec.Allowed {
			t.Fatalf("call %d should be within burst", i+1)
		}
	}
	dec, _ := lim.Allow(context.Background(), "generations", "u1", bucket)
	if dec.Allowed || dec.RetryAfter != 2*time.Second {
		t.Fatalf("expected limited with 2s retry, got %+v", dec)
	}
	if dec, _ := lim.Allow(context.Background(), "generations", "u2", bucket); !dec.Allowed {
		t.Fatalf("other subject must have its own bucket")
	}
	now = now.Add(2 * time.Second)
	if dec, _ := lim.Allow(context.Background(), "generations", "u1", bucket); !dec.Allowed {
		t.Fatalf("expected refill after 2s")
	}
}

func TestBucketIdleTTL(t *testing.T) {
	cases := []struct {
		bucket Bucket
		want   time.Duration
	}{
		{Bucket{}, 2 * time.Minute},
		{Bucket{RequestsPerMinute: 6000, BurstSize: 1}, 30 * time.Second},
		{Bucket{RequestsPerMinute: 60, BurstSize: 30}, 65 * time.Second},
		{Bucket{RequestsPerMinute: 1, BurstSize: 1000}, time.Hour},
	}
	for _, tc := range cases {
		if got := tc.bucket.idleTTL(); got != tc.want {
			t.Errorf("idleTTL(%+v) = %v, want %v", tc.bucket, got, tc.want)
		}
	}
}

func TestRemainingTokens(t *testing.T) {
	redisLim, _ := newRedisLimiter(t)
	bucket := Bucket{RequestsPerMinute: 1, BurstSize: 3}
	for name, lim := range map[string]Limiter{"redis": redisLim, "local": NewLocalLimiter()} {
		t.Run(name, func(t *testing.T) {
			for want := 2; want >= 0; want-- {
				dec, err := lim.Allow(context.Background(), "submit", "alice", bucket)
				if err != nil || !dec.Allowed || dec.Remaining != want {
					t.Fatalf("expected allowed with %d remaining, got %+v %v", want, dec, err)
				}
			}
			dec, _ := lim.Allow(context.Background(), "submit", "alice", bucket)
			if dec.Allowed || dec.RetryAfter < time.Second {
				t.Fatalf("expected denial with retry, got %+v", dec)
			}
		})
	}
}

func TestLocalLimiterPrunesIdleBuckets(t *testing.T) {
	lim := NewLocalLimiter()
	now := time.Unix(1700000000, 0)
	lim.now = func() time.Time { return now }
	bucket := Bucket{RequestsPerMinute: 6000, BurstSize: 1}

	_, _ = lim.Allow(context.Background(), "submit", "gone", bucket)
	now = now.Add(2 * time.Minute)
	_, _ = lim.Allow(context.Background(), "submit", "fresh", bucket)
	if _, ok := lim.buckets[bucketKey("submit", "gone")]; ok {
		t.Fatal("expected idle bucket to be pruned")
	}
	if len(lim.buckets) != 1 {
		t.Fatalf("expected one live bucket, got %d", len(lim.buckets))
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	for in, want := range map[time.Duration]time.Duration{
		0:                       time.Second,
		300 * time.Millisecond:  time.Second,
		1001 * time.Millisecond: 2 * time.Second,
		3 * time.Second:         3 * time.Second,
	} {
		if got := retryAfter(in); got != want {
			t.Errorf("retryAfter(%v) = %v, want %v", in, got, want)
		}
	}
}
