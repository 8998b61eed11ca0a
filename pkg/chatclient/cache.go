package chatclient

import (
	"sort"
	"sync"
)

// Cache holds one conversation's records ordered by send time. Broadcasts
// arrive from the room channel and the personal channel, possibly both for
// the same message, so every merge path is idempotent: applying the same
// canonical record any number of times yields one entry.
type Cache struct {
	mu     sync.Mutex
	selfID uint
	peerID uint
	items  []Record
}

func NewCache(selfID, peerID uint) *Cache {
	return &Cache{selfID: selfID, peerID: peerID}
}

// inScope rejects records belonging to other conversations. A cache for
// (self, peer) accepts only messages between exactly those two users.
func (c *Cache) inScope(r Record) bool {
	if r.Sender == c.selfID && r.Recipient == c.peerID {
		return true
	}
	return r.Sender == c.peerID && r.Recipient == c.selfID
}

// Apply merges one incoming record into the cache. Rules, in priority order:
//
//  1. A canonical record whose tempId matches a provisional entry replaces
//     that entry in place. The provisional copy is gone; the canonical one
//     is sent.
//  2. A record matching an existing canonical entry by server ID overwrites
//     it (edits, read-state changes, repeat deliveries).
//  3. A provisional record matching an existing provisional entry by tempId
//     overwrites it.
//  4. Otherwise the record is appended.
//
// After every merge the cache is re-sorted by timestamp, so arrival order
// never determines display order.
func (c *Cache) Apply(r Record) bool {
	if !c.inScope(r) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !r.Provisional() && r.TempID != "" && c.replaceProvisional(r):
	case !r.Provisional() && c.mergeByID(r):
	case r.Provisional() && c.mergeProvisional(r):
	default:
		if r.State == "" {
			if r.Provisional() {
				r.State = StatePending
			} else {
				r.State = StateSent
			}
		}
		c.items = append(c.items, r)
	}

	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Timestamp.Before(c.items[j].Timestamp)
	})
	return true
}

func (c *Cache) replaceProvisional(r Record) bool {
	for i := range c.items {
		if c.items[i].Provisional() && c.items[i].TempID == r.TempID {
			if r.State == "" || r.State == StatePending {
				r.State = StateSent
			}
			c.items[i] = r
			return true
		}
	}
	return false
}

func (c *Cache) mergeByID(r Record) bool {
	for i := range c.items {
		if !c.items[i].Provisional() && c.items[i].ID == r.ID {
			if r.State == "" {
				r.State = c.items[i].State
			}
			c.items[i] = r
			return true
		}
	}
	return false
}

func (c *Cache) mergeProvisional(r Record) bool {
	if r.TempID == "" {
		return false
	}
	for i := range c.items {
		if c.items[i].Provisional() && c.items[i].TempID == r.TempID {
			if r.State == "" {
				r.State = StatePending
			}
			c.items[i] = r
			return true
		}
	}
	return false
}

// Remove drops a record by server ID or, for provisional entries, by tempId.
func (c *Cache) Remove(id uint, tempID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		match := (id != 0 && c.items[i].ID == id) ||
			(tempID != "" && c.items[i].Provisional() && c.items[i].TempID == tempID)
		if match {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// MarkFailed flags the provisional entry with the given tempId. The entry is
// kept so the user can see and retry the failed send.
func (c *Cache) MarkFailed(tempID string) bool {
	if tempID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].Provisional() && c.items[i].TempID == tempID {
			c.items[i].State = StateFailed
			return true
		}
	}
	return false
}

// MarkRead flags canonical records as read by their server IDs.
func (c *Cache) MarkRead(ids ...uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		for i := range c.items {
			if c.items[i].ID == id {
				c.items[i].State = StateRead
			}
		}
	}
}

// SetHistory replaces the cache contents with a fetched history page,
// preserving any still-provisional local entries.
func (c *Cache) SetHistory(records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var kept []Record
	for _, r := range c.items {
		if r.Provisional() && r.State != StateFailed {
			kept = append(kept, r)
		}
	}
	c.items = nil
	for _, r := range records {
		if c.inScope(r) {
			c.items = append(c.items, r)
		}
	}
	c.items = append(c.items, kept...)

	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Timestamp.Before(c.items[j].Timestamp)
	})
}

// Messages returns a copy of the cached records in display order.
func (c *Cache) Messages() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
