package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return base }
}

func notification(id, userID string, typ domain.NotificationType, age time.Duration) domain.Notification {
	return domain.Notification{
		ID:        id,
		UserID:    userID,
		Type:      typ,
		Title:     "title " + id,
		Message:   "message " + id,
		CreatedAt: base.Add(-age),
	}
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, s *Store, items ...domain.Notification) {
	t.Helper()
	for _, n := range items {
		require.NoError(t, s.Insert(context.Background(), n))
	}
}

func TestStore_InsertRejectsDuplicateID(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, notification("n1", "u1", domain.NotificationTypeInfo, 0)))
	err := s.Insert(ctx, notification("n1", "u2", domain.NotificationTypeInfo, 0))
	require.ErrorIs(t, err, domain.ErrDuplicateID)
	assert.Equal(t, 1, s.Len())
}

func TestStore_QueryFiltersSortsAndPaginates(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	seed(t, s,
		notification("a", "u1", domain.NotificationTypeInfo, 3*time.Minute),
		notification("b", "u1", domain.NotificationTypeWarning, 2*time.Minute),
		notification("c", "u1", domain.NotificationTypeInfo, time.Minute),
		notification("d", "u2", domain.NotificationTypeInfo, 0),
	)

	all, err := s.Query(ctx, domain.Filter{UserID: ptr("u1")})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	infos, err := s.Query(ctx, domain.Filter{UserID: ptr("u1"), Type: ptr(domain.NotificationTypeInfo)})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(infos))

	first, err := s.Query(ctx, domain.Filter{UserID: ptr("u1"), Limit: 1})
	require.NoError(t, err)
	second, err := s.Query(ctx, domain.Filter{UserID: ptr("u1"), Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(first))
	assert.Equal(t, []string{"b"}, ids(second))

	beyond, err := s.Query(ctx, domain.Filter{UserID: ptr("u1"), Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	everyone, err := s.Query(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, everyone, 4)
}

func TestStore_QueryByReadState(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	seed(t, s,
		notification("a", "u1", domain.NotificationTypeInfo, time.Minute),
		notification("b", "u1", domain.NotificationTypeInfo, 0),
	)
	require.NoError(t, s.SetRead(ctx, "a", "u1"))

	unread, err := s.Query(ctx, domain.Filter{UserID: ptr("u1"), Read: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(unread))

	read, err := s.Query(ctx, domain.Filter{UserID: ptr("u1"), Read: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(read))
}

func TestStore_ExpiredNeverReturned(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()

	expired := notification("old", "u1", domain.NotificationTypeInfo, time.Hour)
	expired.ExpiresAt = ptr(base.Add(-time.Minute))
	expired.Read = true
	live := notification("new", "u1", domain.NotificationTypeInfo, 0)
	live.ExpiresAt = ptr(base.Add(time.Hour))
	seed(t, s, expired, live)

	items, err := s.Query(ctx, domain.Filter{UserID: ptr("u1")})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(items))

	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotificationNotFound)
	assert.ErrorIs(t, s.SetRead(ctx, "old", "u1"), domain.ErrNotificationNotFound)

	removed, err := s.Remove(ctx, "old", "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	stats, err := s.StatsFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestStore_SetReadChecksOwnerAndIsIdempotent(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	seed(t, s, notification("n1", "owner", domain.NotificationTypeInfo, 0))

	assert.ErrorIs(t, s.SetRead(ctx, "n1", "intruder"), domain.ErrNotOwner)
	got, err := s.Get(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, got.Read)

	require.NoError(t, s.SetRead(ctx, "n1", "owner"))
	require.NoError(t, s.SetRead(ctx, "n1", "owner"))
	got, err = s.Get(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, got.Read)

	assert.ErrorIs(t, s.SetRead(ctx, "missing", "owner"), domain.ErrNotificationNotFound)
}

func TestStore_RemoveChecksOwner(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	seed(t, s, notification("n1", "owner", domain.NotificationTypeInfo, 0))

	removed, err := s.Remove(ctx, "n1", "intruder")
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	assert.False(t, removed)
	assert.Equal(t, 1, s.Len())

	removed, err = s.Remove(ctx, "n1", "owner")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(ctx, "n1", "owner")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_MarkAllReadCountsOnlyOwnedUnreadLive(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	expired := notification("x", "u1", domain.NotificationTypeInfo, time.Hour)
	expired.ExpiresAt = ptr(base.Add(-time.Second))
	seed(t, s,
		notification("a", "u1", domain.NotificationTypeInfo, 0),
		notification("b", "u1", domain.NotificationTypeInfo, 0),
		notification("c", "u2", domain.NotificationTypeInfo, 0),
		expired,
	)
	require.NoError(t, s.SetRead(ctx, "a", "u1"))

	count, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	other, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, other.Read)
}

func TestStore_SweepExpired(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n := notification(fmt.Sprintf("expired-%d", i), "u1", domain.NotificationTypeInfo, time.Hour)
		n.ExpiresAt = ptr(base.Add(-time.Duration(i+1) * time.Minute))
		seed(t, s, n)
	}
	future := notification("future", "u1", domain.NotificationTypeInfo, 0)
	future.ExpiresAt = ptr(base.Add(time.Hour))
	edge := notification("edge", "u2", domain.NotificationTypeInfo, 0)
	edge.ExpiresAt = ptr(base)
	seed(t, s, future, edge, notification("forever", "u2", domain.NotificationTypeInfo, 0))

	swept, err := s.SweepExpired(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 4, swept)

	left, err := s.Query(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"future", "forever"}, ids(left))
	assert.Equal(t, 2, s.Len())
}

func TestStore_StatsForIncludesEveryType(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	seed(t, s,
		notification("a", "u1", domain.NotificationTypeInfo, 0),
		notification("b", "u1", domain.NotificationTypeInfo, 0),
		notification("c", "u1", domain.NotificationTypeReportReady, 0),
		notification("d", "u2", domain.NotificationTypeError, 0),
	)
	require.NoError(t, s.SetRead(ctx, "a", "u1"))

	stats, err := s.StatsFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Unread)
	assert.Len(t, stats.ByType, len(domain.AllNotificationTypes))
	assert.Equal(t, 2, stats.ByType[domain.NotificationTypeInfo])
	assert.Equal(t, 1, stats.ByType[domain.NotificationTypeReportReady])
	assert.Equal(t, 0, stats.ByType[domain.NotificationTypeError])

	empty, err := s.StatsFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Len(t, empty.ByType, len(domain.AllNotificationTypes))
}

func TestStore_ReturnedDataIsCopied(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	n := notification("n1", "u1", domain.NotificationTypeDataUpdate, 0)
	n.Data = domain.Payload{"table": "orders"}
	seed(t, s, n)

	n.Data["table"] = "mutated-by-producer"
	got, err := s.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Data["table"])

	got.Data["table"] = "mutated-by-reader"
	again, err := s.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "orders", again.Data["table"])
}

func TestStore_ConcurrentReadAndDeleteStayCoherent(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()

	const total = 200
	for i := 0; i < total; i++ {
		seed(t, s, notification(fmt.Sprintf("n-%d", i), "u1", domain.NotificationTypeInfo, time.Duration(i)*time.Second))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	readOK := map[string]bool{}
	removedOK := map[string]bool{}
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("n-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.SetRead(ctx, id, "u1"); err == nil {
				mu.Lock()
				readOK[id] = true
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			if removed, err := s.Remove(ctx, id, "u1"); err == nil && removed {
				mu.Lock()
				removedOK[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, removedOK, total)
	assert.Equal(t, 0, s.Len())
	_, err := s.Query(ctx, domain.Filter{})
	require.NoError(t, err)
}

func ids(items []domain.Notification) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.ID)
	}
	return out
}
