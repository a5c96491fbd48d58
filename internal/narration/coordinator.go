package narration

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/audio"
	"github.com/synfinner/auraspeech-tts/internal/cache"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

// Options configures a Coordinator. Zero values select the defaults.
type Options struct {
	Voice string
	Speed float64

	Cache    *cache.AudioCache
	Disk     AudioStore
	Settings SettingsStore

	Heartbeat  time.Duration
	ChunkDelay time.Duration
	MaxChunks  int
}

// Coordinator is the playback state machine. Create it with New and start
// its loop with Run.
type Coordinator struct {
	src    Synthesizer
	player Player
	cache  *cache.AudioCache
	disk   AudioStore
	store  SettingsStore
	opts   Options

	commands     chan func()
	playerEvents chan audio.Event
	jobEvents    chan jobEvent
	started      chan struct{}
	done         chan struct{}

	// owned by the loop goroutine
	ctx         context.Context
	session     *Session
	lastSession uint64
	run         uint64
	state       State
	job         *job
	deferred    []func()
	voice       string
	speed       float64

	pausedDuringGeneration bool
	resumeIndex            int
	prefetchOnResume       bool

	observers    map[int]chan State
	nextObserver int
}

// New creates a coordinator for src and player.
func New(src Synthesizer, player Player, opts Options) *Coordinator {
	if opts.Cache == nil {
		opts.Cache = cache.NewAudioCache(cache.DefaultBudget)
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.ChunkDelay <= 0 {
		opts.ChunkDelay = DefaultChunkDelay
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = MaxChunks
	}
	if opts.Voice == "" {
		opts.Voice = speech.DefaultVoice
	}

	c := &Coordinator{
		src:          src,
		player:       player,
		cache:        opts.Cache,
		disk:         opts.Disk,
		store:        opts.Settings,
		opts:         opts,
		commands:     make(chan func()),
		playerEvents: make(chan audio.Event, 64),
		jobEvents:    make(chan jobEvent, 64),
		started:      make(chan struct{}),
		done:         make(chan struct{}),
		voice:        opts.Voice,
		speed:        ClampSpeed(opts.Speed),
		observers:    make(map[int]chan State),
	}
	c.state = c.idleState()
	player.SetSink(c.PlayerEvent)
	return c
}

// Run processes commands, player events, synthesis results and heartbeat
// ticks until ctx is done. It must be called exactly once.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	close(c.started)
	defer close(c.done)

	heartbeat := time.NewTicker(c.opts.Heartbeat)
	defer heartbeat.Stop()

	log.Debug("Narration loop started")
	for {
		select {
		case <-ctx.Done():
			c.teardown()
			log.Debug("Narration loop stopped")
			return ctx.Err()

		case fn := <-c.commands:
			fn()

		case ev := <-c.playerEvents:
			c.handlePlayerEvent(ev)

		case ev := <-c.jobEvents:
			c.handleJobEvent(ev)

		case <-heartbeat.C:
			c.refreshPosition()
		}

		c.runDeferred()
		c.broadcast()
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// call runs fn on the loop goroutine and waits for its result.
func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- func() { reply <- fn() }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// post queues fn for the loop without waiting. It is used by timers.
func (c *Coordinator) post(fn func()) {
	select {
	case c.commands <- fn:
	case <-c.done:
	}
}

// later queues fn to run on the loop after the current message.
func (c *Coordinator) later(fn func()) {
	c.deferred = append(c.deferred, fn)
}

func (c *Coordinator) runDeferred() {
	for len(c.deferred) > 0 {
		fn := c.deferred[0]
		c.deferred = c.deferred[1:]
		fn()
	}
}

// PlayerEvent delivers a player notification to the loop. It is the sink
// installed on the player.
func (c *Coordinator) PlayerEvent(ev audio.Event) {
	select {
	case c.playerEvents <- ev:
	case <-c.done:
	}
}

// isCurrent is the single guard every asynchronous continuation passes.
func (c *Coordinator) isCurrent(sessionID, run uint64) bool {
	return c.session != nil && c.session.ID == sessionID && c.run == run
}

// invalidate makes every outstanding job, timer and event stale.
func (c *Coordinator) invalidate() {
	c.run++
	if c.job != nil {
		c.job.cancel()
		c.job = nil
	}
}

// Subscribe returns a channel receiving state snapshots after every change
// and on every heartbeat. Slow readers only see the latest snapshot.
func (c *Coordinator) Subscribe(ctx context.Context) (<-chan State, func(), error) {
	var (
		id int
		ch chan State
	)
	err := c.call(ctx, func() error {
		id = c.nextObserver
		c.nextObserver++
		ch = make(chan State, observerBufferSize)
		c.observers[id] = ch
		ch <- c.snapshot()
		return nil
	})
	if err != nil {
		return nil, func() {}, err
	}
	cancel := func() {
		c.post(func() { delete(c.observers, id) })
	}
	return ch, cancel, nil
}

func (c *Coordinator) broadcast() {
	if len(c.observers) == 0 {
		return
	}
	snap := c.snapshot()
	for _, ch := range c.observers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// State returns the current snapshot.
func (c *Coordinator) State(ctx context.Context) (State, error) {
	var s State
	err := c.call(ctx, func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

// Session returns the live session, or ErrNoSession.
func (c *Coordinator) Session(ctx context.Context) (*Session, error) {
	var sess *Session
	err := c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		sess = c.session
		return nil
	})
	return sess, err
}

func (c *Coordinator) idleState() State {
	return State{
		Phase:        PhaseIdle,
		CurrentIndex: -1,
		PendingIndex: -1,
		ChapterIndex: -1,
		Speed:        c.speed,
		Voice:        c.voice,
	}
}

func (c *Coordinator) snapshot() State {
	s := c.state
	s.Speed = c.speed
	s.Voice = c.voice
	s.IsPlaying = s.Phase == PhasePlaying
	s.IsPaused = s.Phase == PhasePaused
	s.IsGenerating = s.PendingIndex >= 0 && s.Phase != PhasePaused
	s.IsComplete = s.Phase == PhaseCompleted

	if c.session == nil {
		return s
	}
	q := c.session.Queue
	s.TotalChunks = len(q.Chunks)
	s.TotalWords = c.session.TotalWords
	s.Chapters = q.Chapters

	at := s.CurrentIndex
	if s.PendingIndex >= 0 {
		at = s.PendingIndex
	}
	if at < 0 {
		at = 0
	}
	if ch := q.ChapterOf(at); ch >= 0 {
		s.ChapterIndex = ch
		s.ChapterTitle = q.Chapters[ch].Title
	}

	offset := s.AudioTime
	if s.PendingIndex >= 0 {
		offset = 0
	}
	s.Elapsed = EstimateElapsed(q, at, offset, c.speed)
	s.Remaining = EstimateElapsed(q, len(q.Chunks), 0, c.speed) - s.Elapsed
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	return s
}

// EstimateElapsed estimates listening time up to offset into chunk index,
// from word counts at WordsPerMinute and the playback speed.
func EstimateElapsed(q segment.Queue, index int, offset time.Duration, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	words := q.WordsBefore(index)
	secs := float64(words) / WordsPerMinute * 60 / speed
	return time.Duration(secs*float64(time.Second)) + offset
}

// ClampSpeed rounds speed to two decimals and clamps it to the supported
// range. Zero selects 1.
func ClampSpeed(speed float64) float64 {
	if speed == 0 {
		return 1
	}
	speed = math.Round(speed*100) / 100
	return math.Max(MinSpeed, math.Min(MaxSpeed, speed))
}
