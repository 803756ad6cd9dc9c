package domain

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeInfo        NotificationType = "info"
	NotificationTypeSuccess     NotificationType = "success"
	NotificationTypeWarning     NotificationType = "warning"
	NotificationTypeError       NotificationType = "error"
	NotificationTypeSystem      NotificationType = "system"
	NotificationTypeUserAction  NotificationType = "user_action"
	NotificationTypeDataUpdate  NotificationType = "data_update"
	NotificationTypeReportReady NotificationType = "report_ready"
)

// AllNotificationTypes lists the closed set of notification types in a stable order.
var AllNotificationTypes = []NotificationType{
	NotificationTypeInfo,
	NotificationTypeSuccess,
	NotificationTypeWarning,
	NotificationTypeError,
	NotificationTypeSystem,
	NotificationTypeUserAction,
	NotificationTypeDataUpdate,
	NotificationTypeReportReady,
}

func (t NotificationType) Valid() bool {
	for _, known := range AllNotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"userId" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Data      Payload          `json:"data,omitempty" db:"data"`
	Read      bool             `json:"read" db:"is_read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty" db:"expires_at"`
}

// ExpiredAt reports whether the notification is past its expiry at now.
// A notification expiring exactly at now counts as expired.
func (n Notification) ExpiredAt(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// Filter narrows a notification query. Nil fields match everything.
// A zero Limit means no limit.
type Filter struct {
	UserID *string
	Type   *NotificationType
	Read   *bool
	Limit  int
	Offset int
}

func (f Filter) Matches(n Notification) bool {
	if f.UserID != nil && n.UserID != *f.UserID {
		return false
	}
	if f.Type != nil && n.Type != *f.Type {
		return false
	}
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	return true
}

type Stats struct {
	Total  int                      `json:"total"`
	Unread int                      `json:"unread"`
	ByType map[NotificationType]int `json:"byType"`
}

// NewStats returns zeroed stats with an entry for every notification type.
func NewStats() Stats {
	byType := make(map[NotificationType]int, len(AllNotificationTypes))
	for _, t := range AllNotificationTypes {
		byType[t] = 0
	}
	return Stats{ByType: byType}
}

// Add counts n into the stats.
func (s *Stats) Add(n Notification) {
	s.Total++
	if !n.Read {
		s.Unread++
	}
	s.ByType[n.Type]++
}
