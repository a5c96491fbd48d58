package audio

import (
	"fmt"
	"time"
)

// PCM layout of the "pcm" response format.
const (
	SampleRate     = 24000
	Channels       = 1
	BytesPerSample = 2
)

// PCMDuration returns the play time of n bytes of PCM at normal speed.
func PCMDuration(n int) time.Duration {
	frames := n / (Channels * BytesPerSample)
	return time.Duration(frames) * time.Second / SampleRate
}

// PCMOffset returns the byte offset of position d, aligned to a frame.
func PCMOffset(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	frames := int(d * SampleRate / time.Second)
	return frames * Channels * BytesPerSample
}

// PlayRequest hands one chunk to a player. When Stream is set, Audio holds
// only the first bytes; the rest follow through AppendStreamChunk and
// EndStream.
type PlayRequest struct {
	Audio      []byte
	MimeType   string
	Speed      float64
	Stream     bool
	SessionID  uint64
	ChunkIndex int
}

// EventKind identifies player notifications.
type EventKind int

const (
	EventPlaying EventKind = iota
	EventProgress
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPlaying:
		return "playing"
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by a player for the chunk it is playing.
type Event struct {
	Kind       EventKind
	SessionID  uint64
	ChunkIndex int
	Position   time.Duration
	Duration   time.Duration
	Err        error
}

// Sink receives player events. Implementations must not block for long.
type Sink func(Event)

// PlayerState represents the current state of a player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
