package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidPayload       = errors.New("invalid notification payload")
	ErrDuplicateID          = errors.New("duplicate notification id")
	ErrDelivery             = errors.New("realtime delivery failed")
	ErrInvalidFilter        = errors.New("invalid notification filter")
)

// ErrNotOwner is returned by stores when an owner-checked mutation targets a
// notification that belongs to someone else.
var ErrNotOwner = errors.New("notification owned by another user")

const (
	ActionMarkAsRead = "mark this notification as read"
	ActionDelete     = "delete this notification"
)

// AuthorizationError means the notification exists but the caller does not own it.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return "Unauthorized to " + e.Action
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrUnauthorized
}

// CreationError carries the reason a notification payload was rejected.
type CreationError struct {
	Reason string
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("cannot create notification: %s", e.Reason)
}

func (e *CreationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// DeliveryError wraps a failed realtime push. It is logged, never returned to producers.
type DeliveryError struct {
	UserID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to user %s: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}
