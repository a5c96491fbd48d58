package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/synfinner/auraspeech-tts/internal/cache"
	"golang.org/x/time/rate"
)

// Defaults applied by NewSource.
const (
	DefaultModel             = "gpt-4o-mini-tts"
	DefaultVoice             = "nova"
	DefaultResponseFormat    = "pcm"
	DefaultReadTimeout       = 12 * time.Second
	DefaultRequestTimeout    = 60 * time.Second
	DefaultToleratedTimeouts = 2
	DefaultRequestsPerMinute = 120
)

// DefaultInstructions is the narrator persona sent with every request.
const DefaultInstructions = "Accent/Affect: Warm, refined, and gently instructive, like a friendly professor or podcast host.\n\n" +
	"Tone: Calm, encouraging, and articulate.\n\n" +
	"Pacing: Steady and deliberate, pausing briefly between ideas.\n\n" +
	"Pronunciation: Clearly articulates terminology with gentle emphasis."

// ChunkRequest asks for the audio of one chunk of a session.
type ChunkRequest struct {
	Text       string
	Voice      string
	SessionID  uint64
	ChunkIndex int
}

// StreamSink receives audio as it streams in. OnReset is called when bytes
// already delivered for the chunk must be discarded because the attempt
// failed and the chunk will be fetched again.
type StreamSink interface {
	OnDelta(audio []byte)
	OnReset()
}

// Result is the complete audio of one chunk.
type Result struct {
	Audio    []byte
	MimeType string
	Mode     DeliveryMode
	TTFA     time.Duration
	Attempts int
}

// Options configures a Source. Zero values select the defaults.
type Options struct {
	Model          string
	Instructions   string
	ResponseFormat string

	// Speed is sent with every request. Tempo changes are normally applied
	// by the player, so this stays at 1.
	Speed float64

	// ReadTimeout bounds the wait for stream headers and for each event.
	ReadTimeout time.Duration
	// RequestTimeout bounds a whole batch request.
	RequestTimeout    time.Duration
	ToleratedTimeouts int
	RequestsPerMinute int
	Retry             RetryPolicy
}

// Source synthesizes chunks through a Transport.
type Source struct {
	transport Transport
	perf      *Perf
	opts      Options
	limiter   *rate.Limiter

	mu           sync.RWMutex
	instructions string

	// overridable in tests
	sleep func(context.Context, time.Duration) error
	rand  func() float64
	now   func() time.Time
}

// NewSource creates a Source. perf may be shared between sources; nil
// allocates fresh statistics.
func NewSource(t Transport, perf *Perf, opts Options) *Source {
	if perf == nil {
		perf = NewPerf()
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.ResponseFormat == "" {
		opts.ResponseFormat = DefaultResponseFormat
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ToleratedTimeouts <= 0 {
		opts.ToleratedTimeouts = DefaultToleratedTimeouts
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	return &Source{
		transport:    t,
		perf:         perf,
		opts:         opts,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 2),
		instructions: opts.Instructions,
		sleep:        sleepContext,
		rand:         rand.Float64,
		now:          time.Now,
	}
}

// Perf returns the delivery statistics the source updates.
func (s *Source) Perf() *Perf {
	return s.perf
}

// MimeType is the MIME type of every Result.Audio.
func (s *Source) MimeType() string {
	return MimeType(s.opts.ResponseFormat)
}

// CacheKey identifies the audio this source would produce for text in
// voice, for lookups in a persistent cache.
func (s *Source) CacheKey(text, voice string) string {
	req := s.wireRequest(ChunkRequest{Text: text, Voice: voice})
	return cache.SynthesisKey{
		Text:         req.Input,
		Voice:        req.Voice,
		Model:        req.Model,
		Instructions: req.Instructions,
		Format:       req.ResponseFormat,
	}.String()
}

// SetInstructions replaces the narrator instructions for later requests.
func (s *Source) SetInstructions(instructions string) {
	s.mu.Lock()
	s.instructions = instructions
	s.mu.Unlock()
}

// Synthesize fetches the audio of one chunk, streaming deltas into sink
// when the stream mode is chosen. A failed streaming attempt that points at
// a protocol problem is retried once in batch mode without consuming the
// retry budget. The returned error is always an *Error.
func (s *Source) Synthesize(ctx context.Context, req ChunkRequest, sink StreamSink) (Result, error) {
	if sink == nil {
		sink = nopSink{}
	}
	chars := utf8.RuneCountInString(req.Text)
	if chars == 0 {
		return Result{}, NewError(KindFatalInput, "empty chunk", nil)
	}

	mode := ChooseMode(s.perf.Snapshot(), req.ChunkIndex, chars)
	fellBack := false
	attempts := 0
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return Result{}, Classify(ctxErr(ctx, err))
		}
		attempts++
		start := s.now()

		var (
			audio []byte
			ttfa  time.Duration
			err   error
		)
		if mode == ModeStream {
			audio, ttfa, err = s.stream(ctx, req, sink, start)
		} else {
			audio, err = s.batch(ctx, req)
			ttfa = s.now().Sub(start)
		}

		if err == nil {
			stats := s.perf.Success(ttfa)
			log.Debug("Chunk synthesized",
				"session", req.SessionID,
				"chunk", req.ChunkIndex,
				"mode", mode,
				"attempt", attempts,
				"ttfa", ttfa.Round(time.Millisecond),
				"avg_ttfa", stats.AvgTTFA.Round(time.Millisecond),
				"size", humanize.Bytes(uint64(len(audio))))
			return Result{
				Audio:    audio,
				MimeType: s.MimeType(),
				Mode:     mode,
				TTFA:     ttfa,
				Attempts: attempts,
			}, nil
		}

		e := Classify(ctxErr(ctx, err))
		if e.Kind == KindCanceled {
			return Result{}, e
		}
		s.perf.Failure()
		log.Debug("Synthesis attempt failed",
			"session", req.SessionID,
			"chunk", req.ChunkIndex,
			"mode", mode,
			"attempt", attempts,
			"kind", e.Kind,
			"error", e)

		if mode == ModeStream && e.IsFallback() && !fellBack {
			fellBack = true
			mode = ModeBatch
			attempts--
			log.Info("Falling back to batch delivery", "chunk", req.ChunkIndex, "reason", e.Kind)
			continue
		}
		if !e.IsRetryable() || attempts >= s.opts.Retry.MaxAttempts {
			return Result{}, e
		}

		delay := s.opts.Retry.Backoff(attempts, e.RetryAfter, s.rand)
		log.Debug("Retrying chunk", "chunk", req.ChunkIndex, "delay", delay.Round(time.Millisecond))
		if err := s.sleep(ctx, delay); err != nil {
			return Result{}, Classify(ctxErr(ctx, err))
		}
	}
}

func (s *Source) wireRequest(req ChunkRequest) Request {
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	s.mu.RLock()
	instructions := s.instructions
	s.mu.RUnlock()

	return Request{
		Model:          s.opts.Model,
		Input:          req.Text,
		Voice:          voice,
		Speed:          s.opts.Speed,
		Instructions:   instructions,
		ResponseFormat: s.opts.ResponseFormat,
	}
}

func (s *Source) batch(ctx context.Context, req ChunkRequest) ([]byte, error) {
	bctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	audio, err := s.transport.Synthesize(bctx, s.wireRequest(req))
	if err != nil {
		if ctx.Err() == nil && bctx.Err() != nil {
			return nil, NewError(KindTransient, fmt.Sprintf("no response within %v", s.opts.RequestTimeout), err)
		}
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}

// stream reads one streaming attempt to completion. Deltas are forwarded to
// sink as they arrive; if the attempt fails after forwarding any, sink is
// reset.
func (s *Source) stream(ctx context.Context, req ChunkRequest, sink StreamSink, start time.Time) (_ []byte, _ time.Duration, err error) {
	wreq := s.wireRequest(req)
	wreq.StreamFormat = "sse"

	// The response body lives on sctx, so the open is bounded by a timer
	// rather than a deadline.
	sctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchdog := time.AfterFunc(s.opts.ReadTimeout, func() { cancel(ErrStreamStalled) })
	st, err := s.transport.Stream(sctx, wreq)
	fired := !watchdog.Stop()
	if err != nil {
		if ctx.Err() == nil && errors.Is(context.Cause(sctx), ErrStreamStalled) {
			return nil, 0, ErrStreamStalled
		}
		return nil, 0, err
	}
	defer st.Close()
	if fired {
		return nil, 0, ErrStreamStalled
	}

	var (
		buf      bytes.Buffer
		ttfa     time.Duration
		events   int
		timeouts int
	)
	defer func() {
		if err != nil && buf.Len() > 0 && ctx.Err() == nil {
			sink.OnReset()
		}
	}()

	for {
		rctx, cancelRead := context.WithTimeout(sctx, s.opts.ReadTimeout)
		raw, rerr := st.Next(rctx)
		cancelRead()

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			if errors.Is(rerr, context.DeadlineExceeded) {
				if buf.Len() == 0 {
					return nil, 0, ErrStreamStalled
				}
				timeouts++
				if timeouts > s.opts.ToleratedTimeouts {
					return nil, 0, ErrStreamStalled
				}
				log.Debug("Stream read timed out", "chunk", req.ChunkIndex, "timeouts", timeouts)
				continue
			}
			return nil, 0, rerr
		}
		timeouts = 0
		events++

		ev, perr := ParseEvent(raw)
		if perr != nil {
			return nil, 0, NewError(KindIntegrity, "malformed audio delta", perr)
		}
		if ev.Kind == EventTerminal {
			break
		}
		if ev.Kind != EventDelta || len(ev.Audio) == 0 {
			continue
		}
		if buf.Len() == 0 {
			ttfa = s.now().Sub(start)
		}
		buf.Write(ev.Audio)
		sink.OnDelta(ev.Audio)
	}

	if buf.Len() == 0 {
		log.Debug("Stream ended without audio", "chunk", req.ChunkIndex, "events", events)
		return nil, 0, ErrEmptyStream
	}
	return buf.Bytes(), ttfa, nil
}

// ctxErr prefers the context's own error so cancellation is never mistaken
// for a transport failure.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

type nopSink struct{}

func (nopSink) OnDelta([]byte) {}
func (nopSink) OnReset()       {}
