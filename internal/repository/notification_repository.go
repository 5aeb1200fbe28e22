package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// inboxCap bounds each user's inbox; older entries are trimmed.
const inboxCap = 500

type NotificationRepository interface {
	Append(ctx context.Context, n domain.Notification) error
	List(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

type notificationRedisRepo struct {
	rdb *redis.Client
}

func NewNotificationRepository(rdb *redis.Client) NotificationRepository {
	return &notificationRedisRepo{rdb: rdb}
}

func (r *notificationRedisRepo) keyInbox(userID string) string {
	return fmt.Sprintf("synth:inbox:%s", userID) // LIST, newest first
}

func (r *notificationRedisRepo) Append(ctx context.Context, n domain.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, r.keyInbox(n.UserID), string(b))
	pipe.LTrim(ctx, r.keyInbox(n.UserID), 0, inboxCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis LPUSH inbox: %w", err)
	}
	return nil
}

func (r *notificationRedisRepo) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := r.rdb.LRange(ctx, r.keyInbox(userID), 0, stop).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis LRANGE inbox: %w", err)
	}
	out := make([]domain.Notification, 0, len(items))
	for _, js := range items {
		var n domain.Notification
		if err := json.Unmarshal([]byte(js), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
