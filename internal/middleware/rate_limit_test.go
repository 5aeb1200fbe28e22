package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/ratelimit"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/config"
)

// mockLimiter implements ratelimit.Limiter for testing
type mockLimiter struct {
	decision ratelimit.Decision
	err      error
	calls    int
	subject  string
	scope    string
}

func (m *mockLimiter) Allow(ctx context.Context, scope string, subject string, bucket ratelimit.Bucket) (ratelimit.Decision, error) {
	m.calls++
	m.scope = scope
	m.subject = subject
	return m.decision, m.err
}

func submitConfig(rpm, burst int) *config.Config {
	return &config.Config{
		RateLimit: config.RateLimitConfig{
			Submit: config.RateLimitBucketConfig{RequestsPerMinute: rpm, BurstSize: burst},
		},
	}
}

func newSubmitContext(user string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/synth/generations", nil)
	ctx.Request.Header.Set("Authorization", "Bearer test-token")
	if user != "" {
		ctx.Set(ctxUserID, user)
	}
	return ctx, rec
}

func TestRateLimitSubmit_DisabledBucket(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false}}
	ctx, _ := newSubmitContext("user-1")

	RateLimitSubmit(limiter, submitConfig(0, 0))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected request to pass through for disabled bucket")
	}
	if limiter.calls != 0 {
		t.Fatalf("limiter should not be consulted, got %d calls", limiter.calls)
	}
}

func TestRateLimitSubmit_AllowedDecision(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 7}}
	ctx, rec := newSubmitContext("user-1")

	RateLimitSubmit(limiter, submitConfig(100, 10))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected request to pass through for allowed decision")
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "7" {
		t.Fatalf("expected remaining header 7, got %q", got)
	}
	if limiter.scope != "submit" || limiter.subject != "user-1" {
		t.Fatalf("expected submit scope keyed by user, got %q %q", limiter.scope, limiter.subject)
	}
}

func TestRateLimitSubmit_DeniedDecision(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 2500 * time.Millisecond}}
	ctx, rec := newSubmitContext("user-1")

	RateLimitSubmit(limiter, submitConfig(1, 1))(ctx)

	if !ctx.IsAborted() {
		t.Fatal("expected request to be aborted")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["scope"] != "submit" || body["retryAfterSeconds"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRateLimitSubmit_RetryAfterFloor(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 100 * time.Millisecond}}
	ctx, rec := newSubmitContext("user-1")

	RateLimitSubmit(limiter, submitConfig(1, 1))(ctx)

	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
}

func TestRateLimitSubmit_FailsOpen(t *testing.T) {
	limiter := &mockLimiter{err: errors.New("redis down")}
	ctx, _ := newSubmitContext("user-1")

	RateLimitSubmit(limiter, submitConfig(1, 1))(ctx)

	if ctx.IsAborted() {
		t.Fatal("limiter errors must not block requests")
	}
}

func TestRateLimitSubmit_FallsBackToToken(t *testing.T) {
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: true}}
	ctx, _ := newSubmitContext("")

	RateLimitSubmit(limiter, submitConfig(10, 1))(ctx)

	if limiter.subject != "test-token" {
		t.Fatalf("expected bearer token subject, got %q", limiter.subject)
	}
}

func TestRateLimitSubmit_NilLimiter(t *testing.T) {
	ctx, _ := newSubmitContext("user-1")
	RateLimitSubmit(nil, submitConfig(1, 1))(ctx)
	if ctx.IsAborted() {
		t.Fatal("expected pass through without limiter")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic abc":      "",
		"Bearer":         "",
		"":               "",
		"  Bearer xyz  ": "xyz",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
