package audio

import (
	"fmt"
	"sync"
	"time"
)

// MockPlayer is a scripted Player for tests. It records every call and,
// when AutoStart or AutoFinish are set, reports playing and ended on its
// own. Events are delivered in order from a single goroutine.
type MockPlayer struct {
	// AutoStart emits EventPlaying after every Play.
	AutoStart bool

	// AutoFinish emits EventEnded once a chunk's audio is complete. It
	// implies AutoStart.
	AutoFinish bool

	// PlayErr, when set, is returned by Play.
	PlayErr error

	mu      sync.Mutex
	sink    Sink
	calls   []string
	plays   []PlayRequest
	current PlayRequest
	data    []byte
	ended   bool
	pos     time.Duration
	rate    float64
	state   PlayerState

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewMockPlayer creates a MockPlayer. Close stops its event goroutine.
func NewMockPlayer() *MockPlayer {
	m := &MockPlayer{
		rate:   1,
		events: make(chan Event, 1024),
		done:   make(chan struct{}),
	}
	go m.deliver()
	return m
}

func (m *MockPlayer) deliver() {
	for {
		select {
		case ev := <-m.events:
			m.mu.Lock()
			sink := m.sink
			m.mu.Unlock()
			if sink != nil {
				sink(ev)
			}
		case <-m.done:
			return
		}
	}
}

func (m *MockPlayer) queue(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *MockPlayer) record(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

// SetSink installs the event receiver.
func (m *MockPlayer) SetSink(sink Sink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// Play records req and makes it the current chunk.
func (m *MockPlayer) Play(req PlayRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("play %d stream=%t", req.ChunkIndex, req.Stream)
	if m.PlayErr != nil {
		return m.PlayErr
	}
	m.current = req
	m.plays = append(m.plays, req)
	m.data = append([]byte(nil), req.Audio...)
	m.ended = !req.Stream
	m.pos = 0
	m.state = StatePlaying
	if req.Speed > 0 {
		m.rate = req.Speed
	}

	if m.AutoStart || m.AutoFinish {
		m.queue(m.event(EventPlaying))
	}
	if m.AutoFinish && m.ended {
		m.queue(m.endEvent())
	}
	return nil
}

func (m *MockPlayer) event(kind EventKind) Event {
	return Event{
		Kind:       kind,
		SessionID:  m.current.SessionID,
		ChunkIndex: m.current.ChunkIndex,
		Position:   m.pos,
		Duration:   PCMDuration(len(m.data)),
	}
}

func (m *MockPlayer) endEvent() Event {
	ev := m.event(EventEnded)
	ev.Position = ev.Duration
	return ev
}

// AppendStreamChunk adds bytes to the current stream.
func (m *MockPlayer) AppendStreamChunk(sessionID uint64, chunkIndex int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("append %d %d", chunkIndex, len(data))
	if !m.current.Stream || m.current.SessionID != sessionID || m.current.ChunkIndex != chunkIndex || m.state == StateStopped {
		return ErrStaleStream
	}
	m.data = append(m.data, data...)
	return nil
}

// EndStream completes the current stream.
func (m *MockPlayer) EndStream(sessionID uint64, chunkIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("end %d", chunkIndex)
	if !m.current.Stream || m.current.SessionID != sessionID || m.current.ChunkIndex != chunkIndex || m.state == StateStopped {
		return ErrStaleStream
	}
	m.ended = true
	if m.AutoFinish {
		m.queue(m.endEvent())
	}
	return nil
}

// Pause records a pause.
func (m *MockPlayer) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("pause")
	m.state = StatePaused
	return nil
}

// Resume records a resume.
func (m *MockPlayer) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("resume")
	m.state = StatePlaying
	return nil
}

// Stop records a stop and forgets the current chunk.
func (m *MockPlayer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("stop")
	m.state = StateStopped
	m.data = nil
	m.pos = 0
	return nil
}

// SeekRelative moves the position by delta within the chunk.
func (m *MockPlayer) SeekRelative(delta time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("seek %+v", delta)
	m.seek(m.pos + delta)
	return nil
}

// SeekTo moves the position to pos within the chunk.
func (m *MockPlayer) SeekTo(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("seekto %v", pos)
	m.seek(pos)
	return nil
}

func (m *MockPlayer) seek(pos time.Duration) {
	dur := PCMDuration(len(m.data))
	m.pos = max(0, min(pos, dur))
}

// SetRate records the playback rate.
func (m *MockPlayer) SetRate(rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("rate %.2f", rate)
	m.rate = rate
	return nil
}

// Position returns the scripted position and the current chunk length.
func (m *MockPlayer) Position() (time.Duration, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos, PCMDuration(len(m.data))
}

// SetPosition moves the scripted position and emits a progress event.
func (m *MockPlayer) SetPosition(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seek(pos)
	m.queue(m.event(EventProgress))
}

// Start emits EventPlaying for the current chunk.
func (m *MockPlayer) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue(m.event(EventPlaying))
}

// Emit delivers ev as is, for events about chunks that are no longer
// current.
func (m *MockPlayer) Emit(ev Event) {
	m.queue(ev)
}

// Finish emits EventEnded for the current chunk.
func (m *MockPlayer) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue(m.endEvent())
}

// Fail emits EventError for the current chunk.
func (m *MockPlayer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := m.event(EventError)
	ev.Err = err
	m.queue(ev)
}

// Calls returns the recorded calls in order.
func (m *MockPlayer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Plays returns every PlayRequest received.
func (m *MockPlayer) Plays() []PlayRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PlayRequest(nil), m.plays...)
}

// Current returns the chunk playing and the bytes received for it.
func (m *MockPlayer) Current() (PlayRequest, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, append([]byte(nil), m.data...)
}

// Rate returns the last rate set.
func (m *MockPlayer) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// State returns the scripted player state.
func (m *MockPlayer) State() PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops event delivery.
func (m *MockPlayer) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
