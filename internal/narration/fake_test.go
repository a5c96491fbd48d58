package narration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/synfinner/auraspeech-tts/internal/audio"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

// fakeSynth answers every request with silence sized to the text, unless
// respond is set.
type fakeSynth struct {
	perf *speech.Perf

	mu       sync.Mutex
	requests []speech.ChunkRequest
	respond  func(ctx context.Context, call int, req speech.ChunkRequest, sink speech.StreamSink) (speech.Result, error)
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{perf: speech.NewPerf()}
}

func (f *fakeSynth) Synthesize(ctx context.Context, req speech.ChunkRequest, sink speech.StreamSink) (speech.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(ctx, call, req, sink)
	}
	return speech.Result{Audio: silence(req.Text), MimeType: "audio/pcm", Mode: speech.ModeBatch, Attempts: 1}, nil
}

func (f *fakeSynth) Perf() *speech.Perf { return f.perf }
func (f *fakeSynth) MimeType() string   { return "audio/pcm" }

func (f *fakeSynth) CacheKey(text, voice string) string {
	return voice + ":" + fmt.Sprint(len(text)) + ":" + text[:min(len(text), 16)]
}

func (f *fakeSynth) requested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.ChunkIndex
	}
	return out
}

// silence returns 1 ms of audio per character.
func silence(text string) []byte {
	return make([]byte, audio.PCMOffset(time.Duration(len(text))*time.Millisecond))
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	return b, ok
}

func (s *memStore) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	s.data[key] = data
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

type speedRecorder struct {
	mu     sync.Mutex
	speeds []float64
}

func (r *speedRecorder) SaveSpeed(speed float64) error {
	r.mu.Lock()
	r.speeds = append(r.speeds, speed)
	r.mu.Unlock()
	return nil
}

type harness struct {
	c      *Coordinator
	synth  *fakeSynth
	player *audio.MockPlayer
	cancel context.CancelFunc
}

func newHarness(t *testing.T, synth *fakeSynth, opts Options) *harness {
	t.Helper()
	player := audio.NewMockPlayer()
	if opts.ChunkDelay == 0 {
		opts.ChunkDelay = time.Millisecond
	}
	if opts.Heartbeat == 0 {
		opts.Heartbeat = 10 * time.Millisecond
	}
	c := New(synth, player, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()

	h := &harness{c: c, synth: synth, player: player, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		<-c.Done()
		_ = player.Close()
	})
	return h
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	s, err := h.c.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return s
}

func (h *harness) waitFor(t *testing.T, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		s := h.state(t)
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state %+v", what, s)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) start(t *testing.T, text string) State {
	t.Helper()
	s, err := h.c.StartNarration(context.Background(), StartRequest{Source: SourceArticle, Title: "Test", Text: text})
	if err != nil {
		t.Fatalf("StartNarration: %v", err)
	}
	return s
}

// sentences returns n sentences of exactly 60 characters each, joined by
// single spaces.
func sentences(n int) string {
	parts := make([]string, n)
	for i := range parts {
		s := fmt.Sprintf("Sentence %03d is here to fill the narration queue", i)
		parts[i] = s + strings.Repeat("x", 59-len(s)) + "."
	}
	return strings.Join(parts, " ")
}
