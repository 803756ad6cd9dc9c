package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Payload is the free-form data attached to a notification. It is opaque to stores.
type Payload map[string]any

// Value stores the payload as JSON.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Scan reads a JSON column into the payload.
func (p *Payload) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("payload: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, p)
}

// Clone returns a shallow copy so readers cannot mutate stored payloads.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
