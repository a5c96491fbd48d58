package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultBudget is the in-memory budget for a session's audio.
const DefaultBudget = 64 << 20

// Entry is a snapshot of one cached chunk.
type Entry struct {
	ChunkIndex int
	Bytes      []byte
	Complete   bool
}

type audioEntry struct {
	data     []byte
	complete bool
}

// AudioCache stores per-chunk audio for the live session. Whenever resident
// bytes exceed the budget it evicts the entries farthest from the playhead;
// the playhead itself is never evicted. It is safe for concurrent use.
//
// Byte slices handed out by Get and Partial must not be modified.
type AudioCache struct {
	mu       sync.Mutex
	budget   int64
	size     int64
	playhead int
	entries  map[int]*audioEntry
	stats    Stats
}

// NewAudioCache creates a cache holding at most budget bytes. A budget of
// zero or less selects DefaultBudget.
func NewAudioCache(budget int64) *AudioCache {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &AudioCache{
		budget:   budget,
		playhead: -1,
		entries:  make(map[int]*audioEntry),
		stats:    Stats{Capacity: budget},
	}
}

// Put stores the final audio for index. It is a no-op when index already
// holds complete audio; partial bytes are superseded.
func (c *AudioCache) Put(index int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[index]; ok && e.complete {
		return nil
	}
	return c.store(index, data)
}

// Replace stores the final audio for index, superseding whatever was there.
func (c *AudioCache) Replace(index int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store(index, data)
}

func (c *AudioCache) store(index int, data []byte) error {
	n := int64(len(data))
	if n > c.budget {
		return ErrItemTooLarge
	}
	if old, ok := c.entries[index]; ok {
		c.size -= int64(len(old.data))
	}
	c.entries[index] = &audioEntry{data: data, complete: true}
	c.size += n
	c.evict(c.playhead)
	return nil
}

// Append adds streamed bytes to the partial entry of index. Appending to a
// complete entry is ignored.
func (c *AudioCache) Append(index int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[index]
	if ok && e.complete {
		return nil
	}
	if !ok {
		e = &audioEntry{}
		c.entries[index] = e
	}
	if int64(len(e.data)+len(data)) > c.budget {
		c.size -= int64(len(e.data))
		delete(c.entries, index)
		return ErrItemTooLarge
	}
	e.data = append(e.data, data...)
	c.size += int64(len(data))
	c.evict(c.playhead)
	return nil
}

// Get returns the complete audio for index.
func (c *AudioCache) Get(index int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[index]
	if !ok || !e.complete {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.data, true
}

// Partial returns whatever bytes are held for index, complete or not.
func (c *AudioCache) Partial(index int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[index]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Has reports whether index holds complete audio, without touching stats.
func (c *AudioCache) Has(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[index]
	return ok && e.complete
}

// Delete removes index.
func (c *AudioCache) Delete(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[index]; ok {
		c.size -= int64(len(e.data))
		delete(c.entries, index)
	}
}

// Clear drops every entry and resets the playhead.
func (c *AudioCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[int]*audioEntry)
	c.size = 0
	c.playhead = -1
}

// SetPlayhead records the chunk currently playing.
func (c *AudioCache) SetPlayhead(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playhead = index
}

// Size returns resident bytes.
func (c *AudioCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

// Budget returns the byte budget.
func (c *AudioCache) Budget() int64 {
	return c.budget
}

// Entries returns a snapshot of every entry ordered by chunk index.
func (c *AudioCache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.entries))
	for i, e := range c.entries {
		out = append(out, Entry{ChunkIndex: i, Bytes: e.data, Complete: e.complete})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ChunkIndex < out[b].ChunkIndex })
	return out
}

// Stats returns cache statistics.
func (c *AudioCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.size
	s.Items = len(c.entries)
	return s
}

// EvictIfOverBudget evicts entries other than protected, farthest from the
// playhead first, until the cache fits its budget. It returns the number of
// entries evicted.
func (c *AudioCache) EvictIfOverBudget(protected int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evict(protected)
}

func (c *AudioCache) evict(protected int) int {
	if c.size <= c.budget {
		return 0
	}

	anchor := c.playhead
	if anchor < 0 {
		anchor = protected
	}
	if anchor < 0 {
		anchor = 0
	}

	victims := make([]int, 0, len(c.entries))
	for i := range c.entries {
		if i != protected {
			victims = append(victims, i)
		}
	}
	sort.Slice(victims, func(a, b int) bool {
		da, db := distance(victims[a], anchor), distance(victims[b], anchor)
		if da != db {
			return da > db
		}
		// equal distance: already played audio goes first
		return victims[a] < victims[b]
	})

	evicted := 0
	for _, i := range victims {
		if c.size <= c.budget {
			break
		}
		c.size -= int64(len(c.entries[i].data))
		delete(c.entries, i)
		evicted++
	}
	if evicted > 0 {
		c.stats.Evictions += int64(evicted)
		c.stats.LastEvict = time.Now()
	}
	return evicted
}

func distance(i, anchor int) int {
	if i > anchor {
		return i - anchor
	}
	return anchor - i
}
