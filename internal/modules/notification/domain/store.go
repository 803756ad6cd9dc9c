package domain

import (
	"context"
	"time"
)

// NotificationStore owns the canonical collection of notifications.
//
// Every read excludes notifications whose ExpiresAt has passed. Mutations are
// atomic per notification: SetRead and Remove check ownership and mutate in one
// step, returning ErrNotificationNotFound or ErrNotOwner without side effects.
// An empty ownerID skips the ownership check.
type NotificationStore interface {
	Insert(ctx context.Context, n Notification) error
	Query(ctx context.Context, filter Filter) ([]Notification, error)
	Get(ctx context.Context, id string) (Notification, error)
	SetRead(ctx context.Context, id, ownerID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Remove(ctx context.Context, id, ownerID string) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	StatsFor(ctx context.Context, userID string) (Stats, error)
}
