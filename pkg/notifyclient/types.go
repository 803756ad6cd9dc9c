package notifyclient

import (
	"time"

	"github.com/goccy/go-json"
)

type Type string

const (
	TypeInfo        Type = "info"
	TypeSuccess     Type = "success"
	TypeWarning     Type = "warning"
	TypeError       Type = "error"
	TypeSystem      Type = "system"
	TypeUserAction  Type = "user_action"
	TypeDataUpdate  Type = "data_update"
	TypeReportReady Type = "report_ready"
)

// Notification mirrors the server's wire format.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
}

// Stats is the locally cached view of the user's notifications.
type Stats struct {
	Total  int
	Unread int
}

// Server to client events.
const (
	eventNotification         = "notification"
	eventSystemAnnouncement   = "system_announcement"
	eventNotificationRead     = "notification_read"
	eventNotificationsReadAll = "notifications_read_all"
	eventNotificationDeleted  = "notification_deleted"
	eventNotifications        = "notifications"
	eventError                = "error"
	eventPong                 = "pong"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type idPayload struct {
	ID string `json:"id"`
}

// ServerError is an "error" event sent by the server in reply to a request
// made on the connection.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

func (e ServerError) Error() string {
	return e.Code + ": " + e.Message
}
