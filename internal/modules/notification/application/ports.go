package application

import (
	"context"
	"time"

	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

// Publisher pushes events to a user's live realtime connections.
// Implementations must not block on slow connections.
type Publisher interface {
	SendNotificationToUser(userID string, n domain.Notification) error
	SendEventToUser(userID, event string, payload any) error
	BroadcastAnnouncement(message string) error
}

const (
	AuditNotificationCreated       = "NOTIFICATION_CREATED"
	AuditNotificationRead          = "NOTIFICATION_READ"
	AuditNotificationsReadAll      = "NOTIFICATIONS_READ_ALL"
	AuditNotificationDeleted       = "NOTIFICATION_DELETED"
	AuditSystemNotificationCreated = "SYSTEM_NOTIFICATION_CREATED"
	AuditNotificationsExpiredSwept = "NOTIFICATIONS_EXPIRED_SWEPT"
)

type AuditEvent struct {
	Action         string         `json:"action"`
	UserID         string         `json:"userId,omitempty"`
	NotificationID string         `json:"notificationId,omitempty"`
	Count          int            `json:"count,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	At             time.Time      `json:"at"`
}

// AuditSink records business events. Record must not block and never fails
// the caller; sinks log their own errors.
type AuditSink interface {
	Record(ctx context.Context, evt AuditEvent)
}

type nopAuditSink struct{}

func (nopAuditSink) Record(context.Context, AuditEvent) {}

type nopPublisher struct{}

func (nopPublisher) SendNotificationToUser(string, domain.Notification) error { return nil }
func (nopPublisher) SendEventToUser(string, string, any) error                { return nil }
func (nopPublisher) BroadcastAnnouncement(string) error                       { return nil }
