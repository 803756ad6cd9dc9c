package notifyclient

import (
	"sort"
	"sync"
)

// cache holds the user's notifications newest first. Every local mutation
// bumps seq and is remembered with it, so a Refresh whose snapshot started
// earlier cannot undo it.
type cache struct {
	mu     sync.RWMutex
	items  map[string]entry
	unread int
	seq    uint64

	readAt    map[string]uint64
	deletedAt map[string]uint64
	allReadAt uint64
}

type entry struct {
	n   Notification
	seq uint64
}

func newCache() *cache {
	return &cache{
		items:     make(map[string]entry),
		readAt:    make(map[string]uint64),
		deletedAt: make(map[string]uint64),
	}
}

// add inserts n unless its id is already cached. It reports whether n was new.
func (c *cache) add(n Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[n.ID]; ok {
		return false
	}
	c.seq++
	c.items[n.ID] = entry{n: n, seq: c.seq}
	if !n.Read {
		c.unread++
	}
	return true
}

func (c *cache) markRead(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.readAt[id] = c.seq
	e, ok := c.items[id]
	if !ok || e.n.Read {
		return
	}
	e.n.Read = true
	c.items[id] = e
	c.unread = max(c.unread-1, 0)
}

func (c *cache) markAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.allReadAt = c.seq
	for id, e := range c.items {
		if !e.n.Read {
			e.n.Read = true
			c.items[id] = e
		}
	}
	c.unread = 0
}

func (c *cache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.deletedAt[id] = c.seq
	e, ok := c.items[id]
	if !ok {
		return
	}
	delete(c.items, id)
	if !e.n.Read {
		c.unread = max(c.unread-1, 0)
	}
}

func (c *cache) mark() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// replace swaps in the server's view taken at since. Entries pushed after
// since that the server list does not contain yet are kept, and reads and
// deletes made after since are applied over the snapshot.
func (c *cache) replace(items []Notification, unread int, since uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]entry, len(items))
	for _, n := range items {
		if c.deletedAt[n.ID] > since {
			if !n.Read {
				unread--
			}
			continue
		}
		if !n.Read && c.readAfter(n.ID, since) {
			n.Read = true
			unread--
		}
		next[n.ID] = entry{n: n}
	}
	for id, e := range c.items {
		if _, ok := next[id]; ok || e.seq <= since {
			continue
		}
		next[id] = e
		if !e.n.Read {
			unread++
		}
	}
	c.items = next
	c.unread = max(unread, 0)

	for id, seq := range c.readAt {
		if seq <= since {
			delete(c.readAt, id)
		}
	}
	for id, seq := range c.deletedAt {
		if seq <= since {
			delete(c.deletedAt, id)
		}
	}
}

// readAfter reports whether id was marked read locally after since. A
// read-all only covers entries that were cached before it. Callers hold mu.
func (c *cache) readAfter(id string, since uint64) bool {
	if c.readAt[id] > since {
		return true
	}
	if c.allReadAt <= since {
		return false
	}
	e, ok := c.items[id]
	return !ok || e.seq < c.allReadAt
}

func (c *cache) get(id string) (Notification, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[id]
	return e.n, ok
}

func (c *cache) list() []Notification {
	c.mu.RLock()
	out := make([]Notification, 0, len(c.items))
	for _, e := range c.items {
		out = append(out, e.n)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (c *cache) stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Total: len(c.items), Unread: c.unread}
}
