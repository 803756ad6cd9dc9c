package domain

// Realtime event names, server to client.
const (
	EventNotification         = "notification"
	EventSystemAnnouncement   = "system_announcement"
	EventNotificationRead     = "notification_read"
	EventNotificationsReadAll = "notifications_read_all"
	EventNotificationDeleted  = "notification_deleted"
	EventNotifications        = "notifications"
	EventError                = "error"
	EventPong                 = "pong"
)

// Realtime event names, client to server.
const (
	EventMarkNotificationRead = "mark_notification_read"
	EventGetNotifications     = "get_notifications"
	EventDeleteNotification   = "delete_notification"
	EventMarkAllRead          = "mark_all_read"
	EventPing                 = "ping"
)

type ReadEcho struct {
	ID string `json:"id"`
}

type ReadAllEcho struct {
	Count int `json:"count"`
}
