package notifyclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_AddDeduplicates(t *testing.T) {
	c := newCache()

	assert.True(t, c.add(Notification{ID: "n1"}))
	assert.False(t, c.add(Notification{ID: "n1", Title: "again"}))
	assert.Equal(t, Stats{Total: 1, Unread: 1}, c.stats())
}

func TestCache_ReadAndRemoveKeepUnreadConsistent(t *testing.T) {
	c := newCache()
	c.add(Notification{ID: "n1"})
	c.add(Notification{ID: "n2"})
	c.add(Notification{ID: "n3", Read: true})

	c.markRead("n1")
	c.markRead("n1")
	c.markRead("missing")
	assert.Equal(t, Stats{Total: 3, Unread: 1}, c.stats())

	c.remove("n3")
	c.remove("n3")
	assert.Equal(t, Stats{Total: 2, Unread: 1}, c.stats())

	c.markAllRead()
	assert.Equal(t, Stats{Total: 2, Unread: 0}, c.stats())
	n, ok := c.get("n2")
	assert.True(t, ok)
	assert.True(t, n.Read)
}

func TestCache_ListNewestFirst(t *testing.T) {
	c := newCache()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.add(Notification{ID: "old", CreatedAt: base})
	c.add(Notification{ID: "new", CreatedAt: base.Add(time.Minute)})

	list := c.list()
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestCache_ReplaceKeepsNewerPushes(t *testing.T) {
	c := newCache()
	c.add(Notification{ID: "stale"})
	since := c.mark()
	c.add(Notification{ID: "pushed"})

	c.replace([]Notification{{ID: "server", Read: true}}, 0, since)

	_, ok := c.get("stale")
	assert.False(t, ok)
	_, ok = c.get("pushed")
	assert.True(t, ok)
	assert.Equal(t, Stats{Total: 2, Unread: 1}, c.stats())
}

func TestCache_ReplaceKeepsLaterReadsAndDeletes(t *testing.T) {
	c := newCache()
	c.add(Notification{ID: "n1"})
	c.add(Notification{ID: "n2"})
	since := c.mark()

	c.markRead("n1")
	c.remove("n2")

	snapshot := []Notification{{ID: "n1"}, {ID: "n2"}, {ID: "n3"}}
	c.replace(snapshot, 3, since)

	n1, ok := c.get("n1")
	assert.True(t, ok)
	assert.True(t, n1.Read)
	_, ok = c.get("n2")
	assert.False(t, ok)
	assert.Equal(t, Stats{Total: 2, Unread: 1}, c.stats())

	// a later snapshot is taken after the mutations and is trusted as is
	c.replace([]Notification{{ID: "n2"}}, 1, c.mark())
	_, ok = c.get("n2")
	assert.True(t, ok)
}

func TestCache_ReplaceKeepsLaterReadAll(t *testing.T) {
	c := newCache()
	c.add(Notification{ID: "n1"})
	since := c.mark()
	c.markAllRead()
	c.add(Notification{ID: "fresh"})

	c.replace([]Notification{{ID: "n1"}}, 1, since)

	n1, _ := c.get("n1")
	assert.True(t, n1.Read)
	fresh, ok := c.get("fresh")
	assert.True(t, ok)
	assert.False(t, fresh.Read)
	assert.Equal(t, Stats{Total: 2, Unread: 1}, c.stats())
}
