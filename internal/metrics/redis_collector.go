package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// Keys read by the collector; they must match internal/repository.
const (
	redisStatusPrefix = "synth:status:" // SET of request ids per status
	redisRunsHash     = "synth:runs"    // HASH of search run headers
)

var storedStatuses = []domain.RequestStatus{
	domain.StatusPending,
	domain.StatusProcessing,
	domain.StatusCompleted,
	domain.StatusFailed,
	domain.StatusCancelled,
}

// redisCollector reads stored totals at scrape time: requests per status and
// the number of search runs with a trial log.
type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	requests *prometheus.Desc
	runs     *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:      rdb,
		logger:   logger,
		requests: prometheus.NewDesc("synth_requests", "Stored generation requests by status.", []string{"status"}, nil),
		runs:     prometheus.NewDesc("synth_search_runs", "Stored optimization search runs.", nil, nil),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.runs
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := c.rdb.Pipeline()
	perStatus := make([]*redis.IntCmd, len(storedStatuses))
	for i, st := range storedStatuses {
		perStatus[i] = pipe.SCard(ctx, redisStatusPrefix+string(st))
	}
	runs := pipe.HLen(ctx, redisRunsHash)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("redis metrics scrape failed", "err", err)
		return
	}
	for i, st := range storedStatuses {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.GaugeValue, float64(perStatus[i].Val()), string(st))
	}
	ch <- prometheus.MustNewConstMetric(c.runs, prometheus.GaugeValue, float64(runs.Val()))
}

var registerRedisCollectorOnce sync.Once

// RegisterRedisCollector adds the stored-totals gauges once per process.
func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
