package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Stats holds cache counters
type Stats struct {
	Capacity int64 // Maximum size in bytes
	Size     int64 // Current size in bytes
	Items    int

	Hits      int64
	Misses    int64
	Evictions int64

	LastEvict time.Time
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// SynthesisKey identifies synthesized audio by every input that changes it.
type SynthesisKey struct {
	Text         string
	Voice        string
	Model        string
	Instructions string
	Format       string
}

// String returns a stable hex digest of the key.
func (k SynthesisKey) String() string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		k.Text, k.Voice, k.Model, k.Instructions, k.Format,
	}, "\x00")))
	return hex.EncodeToString(h[:16])
}
