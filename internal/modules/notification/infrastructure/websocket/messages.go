package websocket

import (
	"github.com/goccy/go-json"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

// Message is the envelope for every frame in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is sent on the originating connection when an inbound request fails.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

const (
	codeNotFound     = "not_found"
	codeUnauthorized = "unauthorized"
	codeBadRequest   = "bad_request"
	codeInternal     = "internal"
	codeUnknownEvent = "unknown_event"
)

// listFilter is the client-supplied filter for get_notifications. There is no
// userId field; the connection's bound user is always used.
type listFilter struct {
	Type   *domain.NotificationType `json:"type,omitempty"`
	Read   *bool                    `json:"read,omitempty"`
	Limit  int                      `json:"limit,omitempty"`
	Offset int                      `json:"offset,omitempty"`
}

func encode(event string, payload any) ([]byte, error) {
	msg := Message{Type: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}
