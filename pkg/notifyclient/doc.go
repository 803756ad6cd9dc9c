// Package notifyclient is the consumer side of the realtime notification
// channel.
//
// A Channel keeps one authenticated WebSocket connection to the server,
// reconnecting a bounded number of times when it drops, and mirrors the
// user's notifications in a local cache. New notifications are raised as
// Alerts through Options.OnAlert; system announcements arrive separately
// through Options.OnAnnouncement and are never cached.
//
// Mutations (MarkAsRead, DeleteNotification, MarkAllAsRead) go through the
// REST API and update the cache only after the server confirms them.
//
//	ch := notifyclient.New(notifyclient.Options{
//		BaseURL: "http://localhost:8080",
//		OnAlert: func(a notifyclient.Alert) { ui.Toast(a) },
//	})
//	if err := ch.Connect(ctx, userID, token); err != nil {
//		return err
//	}
//	defer ch.Disconnect()
package notifyclient
