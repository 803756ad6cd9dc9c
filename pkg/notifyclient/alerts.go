package notifyclient

import "time"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Placement string

const (
	PlacementCorner Placement = "top-right"
	PlacementCenter Placement = "center"
)

const announcementDuration = 10 * time.Second

// Alert is a transient message the UI should display for Duration.
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Icon      string
	Placement Placement
	Duration  time.Duration
	// Notification is nil for system announcements.
	Notification *Notification
}

type alertStyle struct {
	duration time.Duration
	severity Severity
	icon     string
}

var alertStyles = map[Type]alertStyle{
	TypeError:       {8 * time.Second, SeverityError, "x-circle"},
	TypeSystem:      {7 * time.Second, SeverityWarning, "megaphone"},
	TypeWarning:     {6 * time.Second, SeverityWarning, "alert-triangle"},
	TypeReportReady: {6 * time.Second, SeveritySuccess, "file-text"},
	TypeSuccess:     {4 * time.Second, SeveritySuccess, "check-circle"},
	TypeUserAction:  {4 * time.Second, SeverityInfo, "user"},
	TypeInfo:        {3 * time.Second, SeverityInfo, "info"},
	TypeDataUpdate:  {3 * time.Second, SeverityInfo, "refresh-cw"},
}

// AlertFor maps a notification to its corner alert. Unknown types are styled as info.
func AlertFor(n Notification) Alert {
	style, ok := alertStyles[n.Type]
	if !ok {
		style = alertStyles[TypeInfo]
	}
	return Alert{
		Title:        n.Title,
		Message:      n.Message,
		Severity:     style.severity,
		Icon:         style.icon,
		Placement:    PlacementCorner,
		Duration:     style.duration,
		Notification: &n,
	}
}

// AnnouncementAlert builds the centered, longer-lived alert for a system broadcast.
func AnnouncementAlert(message string) Alert {
	return Alert{
		Title:     "System announcement",
		Message:   message,
		Severity:  SeverityWarning,
		Icon:      "megaphone",
		Placement: PlacementCenter,
		Duration:  announcementDuration,
	}
}
