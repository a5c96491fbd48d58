package speech

import (
	"math"
	"sync"
	"time"
)

// DeliveryMode selects how a chunk's audio is requested.
type DeliveryMode string

const (
	ModeStream DeliveryMode = "stream"
	ModeBatch  DeliveryMode = "batch"
)

// Chunk ceilings handed to the segmenter for the next session.
const (
	CeilingSmall   = 1200
	CeilingMedium  = 1800
	CeilingDefault = 2400
	CeilingWide    = 3800
)

const (
	emaKeep   = 0.7
	emaSample = 0.3

	batchPreferredTTFA  = 1800 * time.Millisecond
	batchPreferredChars = 1600
	slowTTFA            = 3500 * time.Millisecond
	fastTTFA            = 1200 * time.Millisecond
)

// PerfStats summarizes recent delivery performance.
type PerfStats struct {
	AvgTTFA       time.Duration
	Successes     int
	FailureStreak int
}

// WithSuccess folds a time-to-first-audio sample into the stats. The first
// sample seeds the average.
func (s PerfStats) WithSuccess(ttfa time.Duration) PerfStats {
	if s.Successes == 0 {
		s.AvgTTFA = ttfa
	} else {
		s.AvgTTFA = time.Duration(math.Round(float64(s.AvgTTFA)*emaKeep + float64(ttfa)*emaSample))
	}
	s.Successes++
	s.FailureStreak = 0
	return s
}

// WithFailure records a failed attempt.
func (s PerfStats) WithFailure() PerfStats {
	s.FailureStreak++
	return s
}

// ChooseMode picks the delivery mode for a chunk.
func ChooseMode(s PerfStats, chunkIndex, chunkChars int) DeliveryMode {
	if chunkIndex == 0 {
		return ModeStream
	}
	if s.FailureStreak >= 2 {
		return ModeBatch
	}
	if s.Successes >= 2 && s.FailureStreak == 0 &&
		s.AvgTTFA <= batchPreferredTTFA && chunkChars > batchPreferredChars {
		return ModeBatch
	}
	return ModeStream
}

// ChunkCeiling returns the maximum chunk length to use for the next session.
func ChunkCeiling(s PerfStats) int {
	switch {
	case s.FailureStreak >= 3:
		return CeilingSmall
	case s.Successes > 0 && s.AvgTTFA > slowTTFA:
		return CeilingMedium
	case s.Successes >= 4 && s.AvgTTFA <= fastTTFA:
		return CeilingWide
	default:
		return CeilingDefault
	}
}

// Perf holds the process-wide PerfStats. It is safe for concurrent use.
type Perf struct {
	mu    sync.Mutex
	stats PerfStats
}

// NewPerf returns empty statistics.
func NewPerf() *Perf {
	return &Perf{}
}

// Snapshot returns the current stats.
func (p *Perf) Snapshot() PerfStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Success records a successful chunk.
func (p *Perf) Success(ttfa time.Duration) PerfStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = p.stats.WithSuccess(ttfa)
	return p.stats
}

// Failure records a failed attempt.
func (p *Perf) Failure() PerfStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = p.stats.WithFailure()
	return p.stats
}
