package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrNoDevice is returned when no audio output is available.
	ErrNoDevice = errors.New("audio output not available")

	// ErrUnsupportedFormat is returned for audio that is not raw PCM.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrStaleStream is returned when streamed bytes are for a chunk other
	// than the one playing.
	ErrStaleStream = errors.New("stream does not match the playing chunk")

	// ErrClosed is returned once the player has been closed.
	ErrClosed = errors.New("player is closed")
)

const (
	defaultProgressInterval = 250 * time.Millisecond
	defaultDeviceBuffer     = 100 * time.Millisecond
)

// PlayerConfig contains configuration for OtoPlayer.
type PlayerConfig struct {
	Volume float64 // 0.0 to 1.0

	// ProgressInterval is how often progress events are emitted.
	ProgressInterval time.Duration

	// DeviceBuffer is the output latency requested from the device.
	DeviceBuffer time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Volume:           1,
		ProgressInterval: defaultProgressInterval,
		DeviceBuffer:     defaultDeviceBuffer,
	}
}

// OtoPlayer plays 24 kHz mono s16le PCM on the system output device. One
// chunk plays at a time; streamed chunks grow while they play.
type OtoPlayer struct {
	backend backend
	config  PlayerConfig

	mu    sync.Mutex
	sink  Sink
	voice voice
	src   *pcmSource
	req   PlayRequest
	state PlayerState
	rate  float64
	gen   uint64 // bumped whenever the playing chunk changes
}

// NewOtoPlayer opens the output device.
func NewOtoPlayer(config PlayerConfig) (*OtoPlayer, error) {
	if config.DeviceBuffer <= 0 {
		config.DeviceBuffer = defaultDeviceBuffer
	}
	b, err := newBackend(config.DeviceBuffer)
	if err != nil {
		return nil, err
	}
	return newOtoPlayer(b, config), nil
}

func newOtoPlayer(b backend, config PlayerConfig) *OtoPlayer {
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = defaultProgressInterval
	}
	if config.Volume <= 0 || config.Volume > 1 {
		config.Volume = 1
	}
	return &OtoPlayer{
		backend: b,
		config:  config,
		state:   StateStopped,
		rate:    1,
	}
}

// SetSink installs the receiver of player events.
func (p *OtoPlayer) SetSink(sink Sink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// Play replaces whatever is playing with req.
func (p *OtoPlayer) Play(req PlayRequest) error {
	if req.MimeType != "" && req.MimeType != "audio/pcm" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.MimeType)
	}
	if !req.Stream && len(req.Audio) == 0 {
		return errors.New("audio data is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return ErrClosed
	}
	p.stopLocked()

	if req.Speed > 0 {
		p.rate = req.Speed
	}
	p.req = req
	p.src = newPCMSource(req.Audio, p.rate, !req.Stream)
	p.voice = p.backend.NewVoice(p.src)
	p.voice.SetVolume(p.config.Volume)
	p.voice.Play()
	p.state = StatePlaying
	p.gen++

	log.Debug("Playing chunk", "session", req.SessionID, "chunk", req.ChunkIndex, "stream", req.Stream, "rate", p.rate)
	go p.monitor(p.gen, req.SessionID, req.ChunkIndex)
	return nil
}

// AppendStreamChunk adds bytes to the chunk being streamed.
func (p *OtoPlayer) AppendStreamChunk(sessionID uint64, chunkIndex int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkStream(sessionID, chunkIndex); err != nil {
		return err
	}
	p.src.append(data)
	return nil
}

// EndStream marks the streamed chunk complete; it ends once played out.
func (p *OtoPlayer) EndStream(sessionID uint64, chunkIndex int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkStream(sessionID, chunkIndex); err != nil {
		return err
	}
	p.src.finish()
	return nil
}

func (p *OtoPlayer) checkStream(sessionID uint64, chunkIndex int) error {
	if p.src == nil || !p.req.Stream || p.req.SessionID != sessionID || p.req.ChunkIndex != chunkIndex {
		return ErrStaleStream
	}
	return nil
}

// Pause pauses the current playback.
func (p *OtoPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", p.state)
	}
	p.voice.Pause()
	p.state = StatePaused
	return nil
}

// Resume resumes paused playback.
func (p *OtoPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", p.state)
	}
	p.voice.Play()
	p.state = StatePlaying
	return nil
}

// Stop stops playback and releases the chunk. No events follow for it.
func (p *OtoPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

func (p *OtoPlayer) stopLocked() {
	if p.state == StateClosed {
		return
	}
	p.gen++
	if p.voice != nil {
		p.voice.Pause()
		if err := p.voice.Close(); err != nil {
			log.Debug("Failed to close voice", "error", err)
		}
		p.voice = nil
	}
	p.src = nil
	p.state = StateStopped
}

// SeekTo moves to pos within the current chunk. Audio already queued on
// the device is dropped by reopening the voice.
func (p *OtoPlayer) SeekTo(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src == nil {
		return errors.New("nothing is playing")
	}
	p.src.seek(pos.Seconds())

	playing := p.state == StatePlaying
	p.voice.Pause()
	if err := p.voice.Close(); err != nil {
		log.Debug("Failed to close voice", "error", err)
	}
	p.voice = p.backend.NewVoice(p.src)
	p.voice.SetVolume(p.config.Volume)
	if playing {
		p.voice.Play()
	}
	return nil
}

// SeekRelative moves by delta from the current position.
func (p *OtoPlayer) SeekRelative(delta time.Duration) error {
	pos, dur := p.Position()
	target := pos + delta
	if target < 0 {
		target = 0
	}
	if target > dur {
		target = dur
	}
	return p.SeekTo(target)
}

// SetRate changes the tempo of current and later chunks.
func (p *OtoPlayer) SetRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("invalid rate %v", rate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rate = rate
	if p.src != nil {
		p.src.setRate(rate)
	}
	return nil
}

// Position returns the play position and the length of the current chunk
// at normal speed. For a stream the length grows as bytes arrive.
func (p *OtoPlayer) Position() (pos, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.positionLocked()
}

func (p *OtoPlayer) positionLocked() (time.Duration, time.Duration) {
	if p.src == nil {
		return 0, 0
	}
	read, length, rate, _ := p.src.state()
	queued := PCMDuration(p.voice.BufferedSize()).Seconds() * rate
	pos := read - queued
	if pos < 0 {
		pos = 0
	}
	if pos > length {
		pos = length
	}
	return seconds(pos), seconds(length)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// State returns the current player state.
func (p *OtoPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close releases the device voice. The shared device stays open.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.state = StateClosed
	return nil
}

// monitor reports playing, progress and ended for one chunk until the
// chunk changes.
func (p *OtoPlayer) monitor(gen, sessionID uint64, chunkIndex int) {
	p.emit(gen, Event{Kind: EventPlaying, SessionID: sessionID, ChunkIndex: chunkIndex})

	ticker := time.NewTicker(p.config.ProgressInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		if p.state != StatePlaying {
			p.mu.Unlock()
			continue
		}
		pos, dur := p.positionLocked()
		_, _, _, drained := p.src.state()
		finished := drained && !p.voice.IsPlaying()
		if finished {
			p.stopLocked()
		}
		sink := p.sink
		p.mu.Unlock()

		if sink == nil {
			continue
		}
		if finished {
			sink(Event{Kind: EventEnded, SessionID: sessionID, ChunkIndex: chunkIndex, Position: dur, Duration: dur})
			return
		}
		sink(Event{Kind: EventProgress, SessionID: sessionID, ChunkIndex: chunkIndex, Position: pos, Duration: dur})
	}
}

func (p *OtoPlayer) emit(gen uint64, ev Event) {
	p.mu.Lock()
	sink := p.sink
	current := p.gen == gen
	p.mu.Unlock()
	if current && sink != nil {
		sink(ev)
	}
}
