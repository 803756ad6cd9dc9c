package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

// CreatePayload is what a producer supplies to create a notification.
type CreatePayload struct {
	Type      domain.NotificationType `json:"type" validate:"required,notification_type"`
	Title     string                  `json:"title" validate:"required,max=200"`
	Message   string                  `json:"message" validate:"required,max=2000"`
	Data      domain.Payload          `json:"data,omitempty"`
	ExpiresAt *time.Time              `json:"expiresAt,omitempty"`
}

// SystemPayload is a CreatePayload without a type; system notifications are always of type system.
type SystemPayload struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      domain.Payload `json:"data,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
}

type NotificationService struct {
	store     domain.NotificationStore
	publisher Publisher
	audit     AuditSink
	logger    zerolog.Logger
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
}

type Option func(*NotificationService)

func WithPublisher(p Publisher) Option {
	return func(s *NotificationService) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithAuditSink(a AuditSink) Option {
	return func(s *NotificationService) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *NotificationService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *NotificationService) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *NotificationService) { s.newID = gen }
}

func NewNotificationService(store domain.NotificationStore, opts ...Option) *NotificationService {
	s := &NotificationService{
		store:     store,
		publisher: nopPublisher{},
		audit:     nopAuditSink{},
		logger:    zerolog.Nop(),
		validate:  newValidator(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the payload, stores the notification, then pushes it to the
// user's live connections. A failed push is logged and never fails the call.
func (s *NotificationService) Create(ctx context.Context, userID string, p CreatePayload) (domain.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Notification{}, &domain.CreationError{Reason: "userId is required"}
	}
	if err := s.checkPayload(&p); err != nil {
		return domain.Notification{}, err
	}

	n, err := s.insert(ctx, userID, p)
	if err != nil {
		return domain.Notification{}, err
	}

	s.push(n)
	s.audit.Record(ctx, AuditEvent{
		Action:         AuditNotificationCreated,
		UserID:         userID,
		NotificationID: n.ID,
		Details:        map[string]any{"type": string(n.Type)},
		At:             n.CreatedAt,
	})
	return n, nil
}

// CreateSystemNotification validates once and then creates one system
// notification per distinct user id. Validation failures create nothing.
func (s *NotificationService) CreateSystemNotification(ctx context.Context, p SystemPayload, userIDs []string) ([]domain.Notification, error) {
	targets := dedupe(userIDs)
	if len(targets) == 0 {
		return nil, &domain.CreationError{Reason: "at least one userId is required"}
	}

	payload := CreatePayload{
		Type:      domain.NotificationTypeSystem,
		Title:     p.Title,
		Message:   p.Message,
		Data:      p.Data,
		ExpiresAt: p.ExpiresAt,
	}
	if err := s.checkPayload(&payload); err != nil {
		return nil, err
	}

	created := make([]domain.Notification, 0, len(targets))
	for _, userID := range targets {
		n, err := s.insert(ctx, userID, payload)
		if err != nil {
			return created, err
		}
		created = append(created, n)
		s.push(n)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:  AuditSystemNotificationCreated,
		Count:   len(created),
		Details: map[string]any{"title": payload.Title, "userIds": targets},
		At:      s.now(),
	})
	return created, nil
}

// GetNotifications is the only read path. Expired notifications never appear.
func (s *NotificationService) GetNotifications(ctx context.Context, filter domain.Filter) ([]domain.Notification, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidFilter)
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidFilter, *filter.Type)
	}
	items, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	return items, nil
}

// MarkAsRead returns false when the notification does not exist and an
// AuthorizationError when it belongs to someone else. Re-reading is not an error.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, requestingUserID string) (bool, error) {
	if requestingUserID == "" {
		return false, &domain.AuthorizationError{Action: domain.ActionMarkAsRead}
	}
	err := s.store.SetRead(ctx, id, requestingUserID)
	switch {
	case errors.Is(err, domain.ErrNotificationNotFound):
		return false, nil
	case errors.Is(err, domain.ErrNotOwner):
		s.logger.Warn().Str("notification_id", id).Str("user_id", requestingUserID).Msg("rejected mark as read by non-owner")
		return false, &domain.AuthorizationError{Action: domain.ActionMarkAsRead}
	case err != nil:
		return false, fmt.Errorf("mark notification %s read: %w", id, err)
	}

	s.echo(requestingUserID, domain.EventNotificationRead, domain.ReadEcho{ID: id})
	s.audit.Record(ctx, AuditEvent{
		Action:         AuditNotificationRead,
		UserID:         requestingUserID,
		NotificationID: id,
		At:             s.now(),
	})
	return true, nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	count, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read for %s: %w", userID, err)
	}
	if count > 0 {
		s.echo(userID, domain.EventNotificationsReadAll, domain.ReadAllEcho{Count: count})
		s.audit.Record(ctx, AuditEvent{
			Action: AuditNotificationsReadAll,
			UserID: userID,
			Count:  count,
			At:     s.now(),
		})
	}
	return count, nil
}

// DeleteNotification follows the same not-found and ownership rules as MarkAsRead.
func (s *NotificationService) DeleteNotification(ctx context.Context, id, requestingUserID string) (bool, error) {
	if requestingUserID == "" {
		return false, &domain.AuthorizationError{Action: domain.ActionDelete}
	}
	removed, err := s.store.Remove(ctx, id, requestingUserID)
	switch {
	case errors.Is(err, domain.ErrNotOwner):
		s.logger.Warn().Str("notification_id", id).Str("user_id", requestingUserID).Msg("rejected delete by non-owner")
		return false, &domain.AuthorizationError{Action: domain.ActionDelete}
	case err != nil:
		return false, fmt.Errorf("delete notification %s: %w", id, err)
	case !removed:
		return false, nil
	}

	s.echo(requestingUserID, domain.EventNotificationDeleted, domain.ReadEcho{ID: id})
	s.audit.Record(ctx, AuditEvent{
		Action:         AuditNotificationDeleted,
		UserID:         requestingUserID,
		NotificationID: id,
		At:             s.now(),
	})
	return true, nil
}

func (s *NotificationService) GetNotificationStats(ctx context.Context, userID string) (domain.Stats, error) {
	stats, err := s.store.StatsFor(ctx, userID)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats for %s: %w", userID, err)
	}
	return stats, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	stats, err := s.GetNotificationStats(ctx, userID)
	if err != nil {
		return 0, err
	}
	return stats.Unread, nil
}

func (s *NotificationService) CleanupExpiredNotifications(ctx context.Context) (int, error) {
	now := s.now()
	count, err := s.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired notifications: %w", err)
	}
	if count > 0 {
		s.audit.Record(ctx, AuditEvent{
			Action: AuditNotificationsExpiredSwept,
			Count:  count,
			At:     now,
		})
	}
	return count, nil
}

// BroadcastAnnouncement pushes a plain message to every live connection.
// Announcements are not stored.
func (s *NotificationService) BroadcastAnnouncement(_ context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return &domain.CreationError{Reason: "message is required"}
	}
	if err := s.publisher.BroadcastAnnouncement(message); err != nil {
		s.logger.Warn().Err(&domain.DeliveryError{UserID: "*", Err: err}).Msg("announcement delivery failed")
	}
	return nil
}

func (s *NotificationService) checkPayload(p *CreatePayload) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Message = strings.TrimSpace(p.Message)

	if err := s.validate.Struct(p); err != nil {
		return &domain.CreationError{Reason: validationReason(err)}
	}
	if p.Data != nil {
		if _, err := json.Marshal(p.Data); err != nil {
			return &domain.CreationError{Reason: "data is not serializable: " + err.Error()}
		}
	}
	return nil
}

func (s *NotificationService) insert(ctx context.Context, userID string, p CreatePayload) (domain.Notification, error) {
	n := domain.Notification{
		ID:        s.newID(),
		UserID:    userID,
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		Data:      p.Data.Clone(),
		CreatedAt: s.now().UTC(),
		ExpiresAt: p.ExpiresAt,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID).Msg("store insert failed")
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	notificationsCreated.WithLabelValues(string(n.Type)).Inc()
	return n, nil
}

// push runs after the store write so a pushed notification is always readable.
func (s *NotificationService) push(n domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logDelivery(n.UserID, fmt.Errorf("publisher panic: %v", r))
		}
	}()
	if err := s.publisher.SendNotificationToUser(n.UserID, n); err != nil {
		s.logDelivery(n.UserID, err)
	}
}

func (s *NotificationService) echo(userID, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.logDelivery(userID, fmt.Errorf("publisher panic: %v", r))
		}
	}()
	if err := s.publisher.SendEventToUser(userID, event, payload); err != nil {
		s.logDelivery(userID, err)
	}
}

func (s *NotificationService) logDelivery(userID string, err error) {
	s.logger.Warn().Err(&domain.DeliveryError{UserID: userID, Err: err}).Str("user_id", userID).Msg("realtime delivery failed")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
