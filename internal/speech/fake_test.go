package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"
)

// streamStep scripts one Stream call of fakeTransport.
type streamStep struct {
	openErr error
	events  []RawEvent
	// readErr is returned once events are exhausted; nil means io.EOF.
	readErr error
	// stall blocks after the events until the read deadline passes.
	stall bool
	// hang blocks the open until ctx is done.
	hang bool
}

type batchStep struct {
	audio []byte
	err   error
	hang  bool
}

type fakeTransport struct {
	mu       sync.Mutex
	streams  []streamStep
	batches  []batchStep
	requests []Request

	streamCalls int
	batchCalls  int
}

func (f *fakeTransport) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.batchCalls >= len(f.batches) {
		return nil, fmt.Errorf("unexpected batch call %d", f.batchCalls)
	}
	step := f.batches[f.batchCalls]
	f.batchCalls++
	if step.hang {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return nil, ctx.Err()
	}
	return step.audio, step.err
}

func (f *fakeTransport) Stream(ctx context.Context, req Request) (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.streamCalls >= len(f.streams) {
		return nil, fmt.Errorf("unexpected stream call %d", f.streamCalls)
	}
	step := f.streams[f.streamCalls]
	f.streamCalls++
	if step.hang {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return nil, ctx.Err()
	}
	if step.openErr != nil {
		return nil, step.openErr
	}
	return &fakeStream{step: step}, nil
}

type fakeStream struct {
	step   streamStep
	pos    int
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (RawEvent, error) {
	if s.pos < len(s.step.events) {
		ev := s.step.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.step.stall {
		<-ctx.Done()
		return RawEvent{}, ctx.Err()
	}
	if s.step.readErr != nil {
		return RawEvent{}, s.step.readErr
	}
	return RawEvent{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func deltaEvent(audio string) RawEvent {
	return RawEvent{
		Name: "speech.audio.delta",
		Data: fmt.Sprintf(`{"type":"speech.audio.delta","audio":%q}`, base64.StdEncoding.EncodeToString([]byte(audio))),
	}
}

func doneEvent() RawEvent {
	return RawEvent{Name: "speech.audio.done", Data: `{"type":"speech.audio.done"}`}
}

type recordingSink struct {
	deltas [][]byte
	resets int
}

func (r *recordingSink) OnDelta(b []byte) { r.deltas = append(r.deltas, append([]byte(nil), b...)) }
func (r *recordingSink) OnReset()         { r.resets++; r.deltas = nil }

// newTestSource returns a Source that never sleeps and records backoff
// delays.
func newTestSource(t *testing.T, tr Transport) (*Source, *[]time.Duration) {
	t.Helper()
	s := NewSource(tr, NewPerf(), Options{
		ReadTimeout:       20 * time.Millisecond,
		RequestsPerMinute: 600000,
	})
	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	s.rand = func() float64 { return 0 }
	return s, &delays
}
