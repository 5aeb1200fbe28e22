package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/backoff"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/metrics"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/ratelimit"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/tracing"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
)

const (
	HeaderTimestamp = "X-Synth-Timestamp"
	HeaderSignature = "X-Synth-Signature"
)

// NotificationSink delivers workflow events. Notify never blocks on the
// network and never reports failure to the caller.
type NotificationSink interface {
	Notify(ctx context.Context, userID string, n domain.Notification)
}

type NotifierConfig struct {
	WebhookURL  string
	Secret      string
	MaxAttempts int
	Backoff     backoff.Policy
	Bucket      ratelimit.Bucket
}

type notifierService struct {
	inbox   persistence.NotificationStorage
	logger  *slog.Logger
	cfg     NotifierConfig
	limiter ratelimit.Limiter
	client  *http.Client
	now     func() time.Time
	delay   func(attempt int) time.Duration

	pending sync.WaitGroup
	rngMu   sync.Mutex
	rng     *rand.Rand
}

func NewNotifierService(inbox persistence.NotificationStorage, logger *slog.Logger, cfg NotifierConfig, limiter ratelimit.Limiter) NotificationSink {
	return newNotifierService(inbox, logger, cfg, limiter)
}

func newNotifierService(inbox persistence.NotificationStorage, logger *slog.Logger, cfg NotifierConfig, limiter ratelimit.Limiter) *notifierService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	cfg.Backoff = cfg.Backoff.WithDefaults()
	n := &notifierService{
		inbox:   inbox,
		logger:  logger,
		cfg:     cfg,
		limiter: limiter,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	n.delay = n.backoffDelay
	return n
}

func (n *notifierService) Notify(ctx context.Context, userID string, note domain.Notification) {
	note.UserID = userID
	if n.inbox != nil {
		if err := n.inbox.Append(ctx, note); err != nil {
			n.logger.Warn("store notification failed", "user", userID, "request_id", note.RequestID, "err", err)
		}
	}
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	payload := map[string]any{
		"id":        note.ID,
		"userId":    note.UserID,
		"requestId": note.RequestID,
		"eventType": string(note.Kind),
		"message":   note.Message,
		"score":     note.Score,
		"createdAt": note.CreatedAt,
	}
	b, _ := json.Marshal(payload)
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		n.sendWithRetry(ctx, note.Kind, n.cfg.WebhookURL, b)
	}()
}

// Wait blocks until in-flight webhook deliveries finish.
func (n *notifierService) Wait() {
	n.pending.Wait()
}

func (n *notifierService) sendWithRetry(ctx context.Context, kind domain.NotificationKind, url string, body []byte) {
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if n.limiter != nil && n.cfg.Bucket.Enabled() {
			for {
				dec, err := n.limiter.Allow(ctx, "webhook", url, n.cfg.Bucket)
				if err != nil {
					// Fail open.
					break
				}
				if dec.Allowed {
					break
				}
				metrics.RateLimitHitsTotal.WithLabelValues("webhook", string(kind)).Inc()
				if sleepOrDone(ctx, dec.RetryAfter) != nil {
					return
				}
			}
		}

		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectHeaders(ctx, req.Header)
		n.addSignature(req, body)
		resp, err := n.client.Do(req)
		if err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(kind), "success").Inc()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		if attempt < n.cfg.MaxAttempts {
			if sleepOrDone(ctx, n.delay(attempt)) != nil {
				break
			}
		}
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(string(kind), "failure").Inc()
	n.logger.Warn("notification webhook failed", "url", url, "kind", kind)
}

func (n *notifierService) backoffDelay(attempt int) time.Duration {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.cfg.Backoff.Delay(attempt, n.rng)
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (n *notifierService) addSignature(req *http.Request, body []byte) {
	if strings.TrimSpace(n.cfg.Secret) == "" {
		return
	}
	ts := n.now().UTC().Unix()
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderSignature, Sign(n.cfg.Secret, ts, body))
}

// Sign computes the webhook signature: hex HMAC-SHA256 of "<ts>." + body.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
