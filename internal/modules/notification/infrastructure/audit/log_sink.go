package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/application"
)

// LogSink writes audit events to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, evt application.AuditEvent) {
	e := s.logger.Info().
		Str("action", evt.Action).
		Time("at", evt.At)
	if evt.UserID != "" {
		e = e.Str("user_id", evt.UserID)
	}
	if evt.NotificationID != "" {
		e = e.Str("notification_id", evt.NotificationID)
	}
	if evt.Count > 0 {
		e = e.Int("count", evt.Count)
	}
	if len(evt.Details) > 0 {
		e = e.Fields(evt.Details)
	}
	e.Msg("audit")
}
