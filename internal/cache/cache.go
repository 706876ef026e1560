// Package cache implements the driver tag cache: a concurrent, per-driver
// in-memory store of the most recent value of every (group, tag) pair, with
// the change-detection semantics SPEC_FULL.md §4.1 uses to drive
// report-by-exception delivery.
//
// This is a direct port of the Neuron driver cache
// (_examples/original_source/src/adapter/driver/cache.c): a hash table keyed
// by (group, tag) guarded by a single mutex held for the duration of each
// operation. The C source backs the table with uthash over a fixed-size
// struct key; Go's map already hashes structurally over a comparable key
// type, so no fixed-size byte-array key is needed (see SPEC_FULL.md §9).
package cache

import (
	"sync"

	"github.com/fieldmesh/iiotgw/internal/tagvalue"
)

// Key identifies a cache entry by its (group, tag) pair.
type Key struct {
	Group string
	Tag   string
}

// Entry is a snapshot of a single cache slot, returned by Get/GetChanged/
// Snapshot. It is always a copy; callers cannot mutate cache state through
// it.
type Entry struct {
	Key       Key            `json:"key"`
	Timestamp int64          `json:"timestamp"`
	Changed   bool           `json:"changed"`
	Value     tagvalue.Value `json:"value"`
}

type slot struct {
	timestamp int64
	changed   bool
	value     tagvalue.Value
}

// Cache is one driver's tag cache. Every operation acquires mu for its
// entire duration and never performs I/O while holding it (SPEC_FULL.md §5).
// The zero value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*slot
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]*slot)}
}

// Add inserts or overwrites an entry, resetting timestamp to 0 and changed
// to false — mirroring neu_driver_cache_add's unconditional reset on
// (re-)registration of a tag.
func (c *Cache) Add(group, tag string, value tagvalue.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key{Group: group, Tag: tag}] = &slot{timestamp: 0, changed: false, value: value}
}

// Update applies a freshly observed value to an existing entry, running the
// §4.1 change-detection rule. It is a no-op if the entry does not exist —
// matching neu_driver_cache_update's "tag not in table" early return.
func (c *Cache) Update(group, tag string, timestamp int64, value tagvalue.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[Key{Group: group, Tag: tag}]
	if !ok {
		return
	}
	if s.value.Changed(value) {
		s.changed = true
	}
	s.timestamp = timestamp
	s.value = value
}

// Get returns the current entry without clearing changed. The second
// return is false if no entry exists for (group, tag).
func (c *Cache) Get(group, tag string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[Key{Group: group, Tag: tag}]
	if !ok {
		return Entry{}, false
	}
	return toEntry(group, tag, s), true
}

// GetChanged returns the entry iff changed is set. On return it clears
// changed, unless the entry's value is of ERROR kind: ERROR latches until
// the entry is re-Add'ed, per §4.1's "every error update is reported"
// rationale (fault visibility even if the poller recovers before the next
// report tick).
func (c *Cache) GetChanged(group, tag string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[Key{Group: group, Tag: tag}]
	if !ok || !s.changed {
		return Entry{}, false
	}
	e := toEntry(group, tag, s)
	if s.value.Kind != tagvalue.KindError {
		s.changed = false
	}
	return e, true
}

// Del removes an entry if present.
func (c *Cache) Del(group, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key{Group: group, Tag: tag})
}

// Destroy drops every entry. The Cache remains usable afterward (Go's GC
// reclaims the backing map; there is no mutex to free, unlike the C
// original's nng_mtx_free).
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*slot)
}

// Snapshot returns a copy of every entry currently in the cache.
// Supplemental operation (SPEC_FULL.md §4.1), grounded on the
// gosight-server tag cache's deep-copy-on-read pattern. It does not clear
// any changed flags. The scheduler's report tick does not use it; it reads
// with per-tag GetChanged calls.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for k, s := range c.entries {
		out = append(out, toEntry(k.Group, k.Tag, s))
	}
	return out
}

// SnapshotChanged is like Snapshot but returns only changed entries and
// clears their changed flag (ERROR entries excepted), atomically under a
// single lock acquisition — the bulk analogue of repeated GetChanged calls.
func (c *Cache) SnapshotChanged() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Entry
	for k, s := range c.entries {
		if !s.changed {
			continue
		}
		out = append(out, toEntry(k.Group, k.Tag, s))
		if s.value.Kind != tagvalue.KindError {
			s.changed = false
		}
	}
	return out
}

func toEntry(group, tag string, s *slot) Entry {
	return Entry{
		Key:       Key{Group: group, Tag: tag},
		Timestamp: s.timestamp,
		Changed:   s.changed,
		Value:     s.value,
	}
}
