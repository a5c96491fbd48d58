package narration

import (
	"context"
	"errors"
	"time"

	"github.com/synfinner/auraspeech-tts/internal/audio"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

// Limits and timings.
const (
	MaxChunks          = 400
	MaxSelectionWords  = 2000
	MinSpeed           = 0.25
	MaxSpeed           = 4.0
	SpeedStep          = 0.1
	WordsPerMinute     = 155
	DefaultHeartbeat   = time.Second
	DefaultChunkDelay  = 150 * time.Millisecond
	cacheBatchBytes    = 16 << 10
	observerBufferSize = 1
)

var (
	// ErrNothingToNarrate is returned for empty or whitespace-only input.
	ErrNothingToNarrate = segment.ErrNothingToNarrate

	// ErrTooManyChunks is returned when a document needs more than MaxChunks
	// requests.
	ErrTooManyChunks = errors.New("document is too long to narrate")

	// ErrSelectionTooLong is returned for selections over MaxSelectionWords.
	ErrSelectionTooLong = errors.New("selection is too long to narrate")

	// ErrNoSession is returned by controls that need a live session.
	ErrNoSession = errors.New("no active narration")

	// ErrNotSeekable is returned while audio for the current chunk is
	// still being generated or buffered.
	ErrNotSeekable = errors.New("audio is not seekable yet")

	// ErrOutOfRange is returned for chunk or chapter indexes outside the
	// queue.
	ErrOutOfRange = errors.New("index out of range")

	// ErrClosed is returned once the coordinator loop has exited.
	ErrClosed = errors.New("coordinator is closed")
)

// SourceKind says where a session's text came from.
type SourceKind string

const (
	SourceSelection SourceKind = "selection"
	SourceArticle   SourceKind = "article"
)

// Phase is the coarse playback state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseExtracting Phase = "extracting"
	PhaseGenerating Phase = "generating"
	PhaseBuffering  Phase = "buffering"
	PhasePlaying    Phase = "playing"
	PhasePaused     Phase = "paused"
	PhaseCompleted  Phase = "completed"
)

// Session is one narration of one text. It is immutable once created.
type Session struct {
	ID         uint64
	Source     SourceKind
	Title      string
	PageKey    string
	Queue      segment.Queue
	TotalWords int
	TotalChars int
	StartedAt  time.Time
}

// Chunks returns the number of chunks in the queue.
func (s *Session) Chunks() int {
	return len(s.Queue.Chunks)
}

// State is a snapshot of the coordinator handed to callers and observers.
type State struct {
	SessionID uint64
	Source    SourceKind
	Title     string
	PageKey   string

	Phase        Phase
	CurrentIndex int // chunk handed to the player, -1 before the first
	PendingIndex int // chunk still waiting for audio, or -1
	TotalChunks  int
	ChapterIndex int
	ChapterTitle string
	Chapters     []segment.Chapter

	IsPlaying    bool
	IsPaused     bool
	IsGenerating bool
	IsComplete   bool

	DeliveryMode   speech.DeliveryMode
	AudioTime      time.Duration
	AudioDuration  time.Duration
	ChunkStartedAt time.Time

	Speed      float64
	Voice      string
	TotalWords int
	Elapsed    time.Duration
	Remaining  time.Duration
	Error      string
}

// Active reports whether a session is loaded.
func (s State) Active() bool {
	return s.SessionID != 0
}

// Seekable reports whether the player holds the whole of the current
// chunk. A chunk that is still streaming in is not seekable.
func (s State) Seekable() bool {
	if s.PendingIndex >= 0 || s.CurrentIndex < 0 {
		return false
	}
	return s.Phase == PhasePlaying || s.Phase == PhasePaused
}

// StartRequest describes a new session.
type StartRequest struct {
	Source  SourceKind
	Title   string
	PageKey string
	Text    string
	Hints   []segment.ChapterHint

	// StartChunk is the first chunk to play. Out of range values start at
	// the beginning.
	StartChunk int

	// Resume marks a restart from a bookmark. StartChunk is then honored
	// only while it still lies in ResumeChapter; otherwise playback starts
	// at that chapter's first chunk.
	Resume        bool
	ResumeChapter int
}

// SeekResult reports where a relative or absolute seek landed.
type SeekResult struct {
	Position time.Duration
	Duration time.Duration
	HitStart bool
	HitEnd   bool
}

// Synthesizer produces the audio of one chunk.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.ChunkRequest, sink speech.StreamSink) (speech.Result, error)
	Perf() *speech.Perf
	MimeType() string
	CacheKey(text, voice string) string
}

// Player plays chunk audio and reports progress through the sink given to
// SetSink.
type Player interface {
	SetSink(sink audio.Sink)
	Play(req audio.PlayRequest) error
	AppendStreamChunk(sessionID uint64, chunkIndex int, data []byte) error
	EndStream(sessionID uint64, chunkIndex int) error
	Pause() error
	Resume() error
	Stop() error
	SeekRelative(delta time.Duration) error
	SeekTo(pos time.Duration) error
	SetRate(rate float64) error
	Position() (pos, duration time.Duration)
}

// AudioStore persists finished chunk audio across sessions.
type AudioStore interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
}

// SettingsStore persists the playback speed.
type SettingsStore interface {
	SaveSpeed(speed float64) error
}
