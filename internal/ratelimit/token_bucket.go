package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Bucket is a token bucket refilled at RequestsPerMinute, holding at most
// BurstSize tokens. A zero bucket never limits.
type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute" json:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize" json:"burstSize"`
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

func (b Bucket) ratePerSecond() float64 { return float64(b.RequestsPerMinute) / 60.0 }

// idleTTL is how long an untouched bucket is kept: two full refills plus a
// margin, clamped to [30s, 1h].
func (b Bucket) idleTTL() time.Duration {
	const (
		minTTL = 30 * time.Second
		maxTTL = time.Hour
	)
	if !b.Enabled() {
		return 2 * time.Minute
	}
	fill := float64(b.BurstSize) / b.ratePerSecond()
	ttl := time.Duration(math.Ceil(fill*2))*time.Second + 5*time.Second
	return min(max(ttl, minTTL), maxTTL)
}

// Decision is the outcome of one Allow call. Remaining is the whole number
// of tokens left after the call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is shared by the submit middleware and the webhook notifier.
// Callers treat errors as allow.
type Limiter interface {
	Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error)
}

// TokenBucketLimiter shares bucket state across replicas through Redis.
type TokenBucketLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTokenBucketLimiter(rdb *redis.Client) *TokenBucketLimiter {
	return &TokenBucketLimiter{rdb: rdb, now: time.Now}
}

// KEYS[1] bucket hash; ARGV rate (tokens/ms), capacity, now (ms), ttl (ms).
// Returns {allowed, retry_ms, remaining}.
var takeTokenScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = math.min(tonumber(state[2]) or now, now)
tokens = math.min(capacity, tokens + (now - ts) * rate)

local allowed, retry_ms = 0, 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry_ms = math.ceil((1 - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {allowed, retry_ms, math.floor(tokens)}
`)

func (l *TokenBucketLimiter) Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || l.rdb == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}
	res, err := takeTokenScript.Run(ctx, l.rdb, []string{bucketKey(scope, subject)},
		bucket.ratePerSecond()/1000.0,
		bucket.BurstSize,
		l.now().UnixMilli(),
		bucket.idleTTL().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", scope, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit %s: unexpected reply %v", scope, res)
	}
	if res[0] == 1 {
		return Decision{Allowed: true, Remaining: int(res[2])}, nil
	}
	return Decision{RetryAfter: retryAfter(time.Duration(res[1]) * time.Millisecond)}, nil
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(d time.Duration) time.Duration {
	d = d.Round(time.Millisecond)
	secs := time.Duration(math.Ceil(d.Seconds())) * time.Second
	if secs < time.Second {
		return time.Second
	}
	return secs
}

func bucketKey(scope, subject string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(subject)))
	return "synth:rl:" + scope + ":" + hex.EncodeToString(sum[:])
}
