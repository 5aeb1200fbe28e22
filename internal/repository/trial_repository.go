package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

type TrialRepository interface {
	SaveRun(ctx context.Context, run *domain.SearchRun) error
	GetRun(ctx context.Context, requestID string) (*domain.SearchRun, error)
	RecordTrial(ctx context.Context, requestID string, trial domain.TrialResult) error
	ListTrials(ctx context.Context, requestID string) ([]domain.TrialResult, error)
	ResetTrials(ctx context.Context, requestID string) error
}

type trialRedisRepo struct {
	rdb *redis.Client
}

func NewTrialRepository(rdb *redis.Client) TrialRepository {
	return &trialRedisRepo{rdb: rdb}
}

func (r *trialRedisRepo) keyRunsHash() string { return "synth:runs" } // HASH: field = request id, value = run header JSON
func (r *trialRedisRepo) keyTrials(requestID string) string {
	return fmt.Sprintf("synth:trials:%s", requestID) // HASH: field = trial number, value = JSON
}

func (r *trialRedisRepo) SaveRun(ctx context.Context, run *domain.SearchRun) error {
	b, err := json.Marshal(run.Header())
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.keyRunsHash(), run.RequestID, string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET run: %w", err)
	}
	return nil
}

func (r *trialRedisRepo) GetRun(ctx context.Context, requestID string) (*domain.SearchRun, error) {
	js, err := r.rdb.HGet(ctx, r.keyRunsHash(), requestID).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET run: %w", err)
	}
	var run domain.SearchRun
	if err := json.Unmarshal([]byte(js), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

func (r *trialRedisRepo) RecordTrial(ctx context.Context, requestID string, trial domain.TrialResult) error {
	b, err := json.Marshal(trial)
	if err != nil {
		return fmt.Errorf("marshal trial: %w", err)
	}
	// HSETNX keeps the first record of a trial number.
	if err := r.rdb.HSetNX(ctx, r.keyTrials(requestID), strconv.Itoa(trial.Number), string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSETNX trial: %w", err)
	}
	return nil
}

func (r *trialRedisRepo) ListTrials(ctx context.Context, requestID string) ([]domain.TrialResult, error) {
	all, err := r.rdb.HGetAll(ctx, r.keyTrials(requestID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis HGETALL trials: %w", err)
	}
	out := make([]domain.TrialResult, 0, len(all))
	for _, js := range all {
		var t domain.TrialResult
		if err := json.Unmarshal([]byte(js), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trial: %w", err)
		}
		out = append(out, t)
	}
	domain.SortTrials(out)
	return out, nil
}

func (r *trialRedisRepo) ResetTrials(ctx context.Context, requestID string) error {
	pipe := r.rdb.TxPipeline()
	pipe.HDel(ctx, r.keyRunsHash(), requestID)
	pipe.Del(ctx, r.keyTrials(requestID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis reset trials: %w", err)
	}
	return nil
}
