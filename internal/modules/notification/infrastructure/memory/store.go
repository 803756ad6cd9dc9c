package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

// Store is an in-memory NotificationStore keyed by id. A single RWMutex
// serialises all mutations, which keeps owner checks and writes coherent.
type Store struct {
	mu    sync.RWMutex
	items map[string]domain.Notification
	now   func() time.Time
}

var _ domain.NotificationStore = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the clock used for the expiry filter.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		items: make(map[string]domain.Notification),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Insert(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[n.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, n.ID)
	}
	n.Data = n.Data.Clone()
	s.items[n.ID] = n
	return nil
}

func (s *Store) Query(_ context.Context, filter domain.Filter) ([]domain.Notification, error) {
	now := s.now()

	s.mu.RLock()
	matched := make([]domain.Notification, 0, len(s.items))
	for _, n := range s.items {
		if n.ExpiredAt(now) || !filter.Matches(n) {
			continue
		}
		n.Data = n.Data.Clone()
		matched = append(matched, n)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return paginate(matched, filter.Offset, filter.Limit), nil
}

func paginate(items []domain.Notification, offset, limit int) []domain.Notification {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []domain.Notification{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) Get(_ context.Context, id string) (domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.items[id]
	if !ok || n.ExpiredAt(s.now()) {
		return domain.Notification{}, domain.ErrNotificationNotFound
	}
	n.Data = n.Data.Clone()
	return n, nil
}

func (s *Store) SetRead(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookupOwned(id, ownerID)
	if err != nil {
		return err
	}
	if !n.Read {
		n.Read = true
		s.items[id] = n
	}
	return nil
}

func (s *Store) MarkAllRead(_ context.Context, userID string) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.items {
		if n.UserID != userID || n.Read || n.ExpiredAt(now) {
			continue
		}
		n.Read = true
		s.items[id] = n
		count++
	}
	return count, nil
}

func (s *Store) Remove(_ context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupOwned(id, ownerID); err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			return false, nil
		}
		return false, err
	}
	delete(s.items, id)
	return true, nil
}

// lookupOwned must be called with the write lock held.
func (s *Store) lookupOwned(id, ownerID string) (domain.Notification, error) {
	n, ok := s.items[id]
	if !ok || n.ExpiredAt(s.now()) {
		return domain.Notification{}, domain.ErrNotificationNotFound
	}
	if ownerID != "" && n.UserID != ownerID {
		return domain.Notification{}, domain.ErrNotOwner
	}
	return n, nil
}

func (s *Store) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, n := range s.items {
		if n.ExpiredAt(now) {
			delete(s.items, id)
			swept++
		}
	}
	return swept, nil
}

func (s *Store) StatsFor(_ context.Context, userID string) (domain.Stats, error) {
	now := s.now()
	stats := domain.NewStats()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.items {
		if n.UserID != userID || n.ExpiredAt(now) {
			continue
		}
		stats.Add(n)
	}
	return stats, nil
}

// Len returns the number of stored notifications, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
