package domain

import "time"

type NotificationKind string

const (
	NotifyStarted   NotificationKind = "generation_started"
	NotifyCompleted NotificationKind = "generation_completed"
	NotifyFailed    NotificationKind = "generation_failed"
	NotifyCancelled NotificationKind = "generation_cancelled"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	RequestID string           `json:"requestId"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Score     *float64         `json:"score,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
