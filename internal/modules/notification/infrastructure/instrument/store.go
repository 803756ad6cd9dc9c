// Package instrument decorates a NotificationStore with timing metrics and
// debug logging.
package instrument

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

var storeOpDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "notification_store_op_duration_seconds",
		Help:    "Duration of notification store operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op", "outcome"},
)

type Store struct {
	next   domain.NotificationStore
	logger zerolog.Logger
}

var _ domain.NotificationStore = (*Store)(nil)

func NewStore(next domain.NotificationStore, logger zerolog.Logger) *Store {
	return &Store{next: next, logger: logger}
}

// observe records one call. Not-found and ownership failures are expected
// outcomes, not errors.
func (s *Store) observe(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotificationNotFound), errors.Is(err, domain.ErrNotOwner):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	storeOpDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())

	evt := s.logger.Debug()
	if outcome == "error" {
		evt = s.logger.Warn().Err(err)
	}
	evt.Str("op", op).Str("outcome", outcome).Dur("elapsed", elapsed).Msg("store op")
}

func (s *Store) Insert(ctx context.Context, n domain.Notification) error {
	start := time.Now()
	err := s.next.Insert(ctx, n)
	s.observe("insert", start, err)
	return err
}

func (s *Store) Query(ctx context.Context, filter domain.Filter) ([]domain.Notification, error) {
	start := time.Now()
	items, err := s.next.Query(ctx, filter)
	s.observe("query", start, err)
	return items, err
}

func (s *Store) Get(ctx context.Context, id string) (domain.Notification, error) {
	start := time.Now()
	n, err := s.next.Get(ctx, id)
	s.observe("get", start, err)
	return n, err
}

func (s *Store) SetRead(ctx context.Context, id, ownerID string) error {
	start := time.Now()
	err := s.next.SetRead(ctx, id, ownerID)
	s.observe("set_read", start, err)
	return err
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int, error) {
	start := time.Now()
	count, err := s.next.MarkAllRead(ctx, userID)
	s.observe("mark_all_read", start, err)
	return count, err
}

func (s *Store) Remove(ctx context.Context, id, ownerID string) (bool, error) {
	start := time.Now()
	removed, err := s.next.Remove(ctx, id, ownerID)
	s.observe("remove", start, err)
	return removed, err
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	count, err := s.next.SweepExpired(ctx, now)
	s.observe("sweep_expired", start, err)
	return count, err
}

func (s *Store) StatsFor(ctx context.Context, userID string) (domain.Stats, error) {
	start := time.Now()
	stats, err := s.next.StatsFor(ctx, userID)
	s.observe("stats", start, err)
	return stats, err
}
