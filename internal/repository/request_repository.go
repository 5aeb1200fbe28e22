package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

var (
	ErrNotFound = errors.New("not-found")
	ErrExists   = errors.New("already-exists")
	ErrConflict = errors.New("status-conflict")
)

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 50

type RequestRepository interface {
	Create(ctx context.Context, req *domain.GenerationRequest) error
	Get(ctx context.Context, id string) (*domain.GenerationRequest, error)
	Save(ctx context.Context, req *domain.GenerationRequest) error
	Transition(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus, mutate func(*domain.GenerationRequest)) (*domain.GenerationRequest, error)
	ListByUser(ctx context.Context, userID string, status domain.RequestStatus, offset, limit int) ([]*domain.GenerationRequest, int, error)
	ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.GenerationRequest, error)
}

type requestRedisRepo struct {
	rdb *redis.Client
}

func NewRequestRepository(rdb *redis.Client) RequestRepository {
	return &requestRedisRepo{rdb: rdb}
}

// ===== Redis keys =====
func (r *requestRedisRepo) keyRequestsHash() string { return "synth:requests" } // HASH: field = id, value = JSON
func (r *requestRedisRepo) keyUserIndex(userID string) string {
	return fmt.Sprintf("synth:user:%s:requests", userID) // ZSET: member = id, score = createdAt (ms)
}
func (r *requestRedisRepo) keyStatusIndex(s domain.RequestStatus) string {
	return "synth:status:" + string(s) // SET of ids
}

func (r *requestRedisRepo) Create(ctx context.Context, req *domain.GenerationRequest) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	ok, err := r.rdb.HSetNX(ctx, r.keyRequestsHash(), req.ID, string(b)).Result()
	if err != nil {
		return fmt.Errorf("redis HSETNX request: %w", err)
	}
	if !ok {
		return ErrExists
	}
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, r.keyUserIndex(req.UserID), &redis.Z{Score: float64(req.CreatedAt.UnixMilli()), Member: req.ID})
	pipe.SAdd(ctx, r.keyStatusIndex(req.Status), req.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis index request: %w", err)
	}
	return nil
}

func (r *requestRedisRepo) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return r.get(ctx, r.rdb, id)
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func (r *requestRedisRepo) get(ctx context.Context, c hashGetter, id string) (*domain.GenerationRequest, error) {
	js, err := c.HGet(ctx, r.keyRequestsHash(), id).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET request: %w", err)
	}
	var req domain.GenerationRequest
	if err := json.Unmarshal([]byte(js), &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &req, nil
}

func (r *requestRedisRepo) Save(ctx context.Context, req *domain.GenerationRequest) error {
	_, err := r.update(ctx, req.ID, func(cur *domain.GenerationRequest) (*domain.GenerationRequest, error) {
		return req.Clone(), nil
	})
	return err
}

func (r *requestRedisRepo) Transition(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus, mutate func(*domain.GenerationRequest)) (*domain.GenerationRequest, error) {
	return r.update(ctx, id, func(cur *domain.GenerationRequest) (*domain.GenerationRequest, error) {
		allowed := false
		for _, s := range from {
			if s == cur.Status {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("%w: request %s is %s", ErrConflict, id, cur.Status)
		}
		next := cur.Clone()
		next.Status = to
		if mutate != nil {
			mutate(next)
			next.Status = to
		}
		return next, nil
	})
}

// update reads, edits and writes one request under WATCH so concurrent
// writers never interleave.
func (r *requestRedisRepo) update(ctx context.Context, id string, edit func(cur *domain.GenerationRequest) (*domain.GenerationRequest, error)) (*domain.GenerationRequest, error) {
	var out *domain.GenerationRequest
	txf := func(tx *redis.Tx) error {
		cur, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := edit(cur)
		if err != nil {
			return err
		}
		b, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.keyRequestsHash(), id, string(b))
			if cur.Status != next.Status {
				pipe.SRem(ctx, r.keyStatusIndex(cur.Status), id)
				pipe.SAdd(ctx, r.keyStatusIndex(next.Status), id)
			}
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, r.keyRequestsHash())
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("redis update request %s: too much contention", id)
}

func (r *requestRedisRepo) ListByUser(ctx context.Context, userID string, status domain.RequestStatus, offset, limit int) ([]*domain.GenerationRequest, int, error) {
	if offset < 0 {
		offset = 0
	}
	if status == "" {
		total, err := r.rdb.ZCard(ctx, r.keyUserIndex(userID)).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("redis ZCARD user index: %w", err)
		}
		stop := int64(-1)
		if limit > 0 {
			stop = int64(offset + limit - 1)
		}
		ids, err := r.rdb.ZRevRange(ctx, r.keyUserIndex(userID), int64(offset), stop).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("redis ZREVRANGE user index: %w", err)
		}
		reqs, err := r.load(ctx, ids)
		return reqs, int(total), err
	}

	ids, err := r.rdb.ZRevRange(ctx, r.keyUserIndex(userID), 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis ZREVRANGE user index: %w", err)
	}
	all, err := r.load(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*domain.GenerationRequest, 0, len(all))
	for _, req := range all {
		if req.Status == status {
			matched = append(matched, req)
		}
	}
	total := len(matched)
	if offset >= total {
		return []*domain.GenerationRequest{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *requestRedisRepo) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.GenerationRequest, error) {
	ids, err := r.rdb.SMembers(ctx, r.keyStatusIndex(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS status index: %w", err)
	}
	reqs, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	// The index may briefly lag the hash; trust the stored status.
	out := reqs[:0]
	for _, req := range reqs {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *requestRedisRepo) load(ctx context.Context, ids []string) ([]*domain.GenerationRequest, error) {
	if len(ids) == 0 {
		return []*domain.GenerationRequest{}, nil
	}
	vals, err := r.rdb.HMGet(ctx, r.keyRequestsHash(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HMGET requests: %w", err)
	}
	out := make([]*domain.GenerationRequest, 0, len(vals))
	for _, v := range vals {
		js, ok := v.(string)
		if !ok || js == "" {
			continue
		}
		var req domain.GenerationRequest
		if err := json.Unmarshal([]byte(js), &req); err != nil {
			return nil, fmt.Errorf("unmarshal request: %w", err)
		}
		out = append(out, &req)
	}
	return out, nil
}
