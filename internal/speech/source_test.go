package speech

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestSynthesizeStreamsDeltas(t *testing.T) {
	tr := &fakeTransport{streams: []streamStep{{
		events: []RawEvent{deltaEvent("abc"), {Name: "ping", Data: "{}"}, deltaEvent("def"), doneEvent()},
	}}}
	src, _ := newTestSource(t, tr)
	sink := &recordingSink{}

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hello there.", ChunkIndex: 0}, sink)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(res.Audio) != "abcdef" {
		t.Errorf("audio = %q", res.Audio)
	}
	if res.Mode != ModeStream || res.Attempts != 1 {
		t.Errorf("mode = %s, attempts = %d", res.Mode, res.Attempts)
	}
	if len(sink.deltas) != 2 {
		t.Errorf("sink got %d deltas, want 2", len(sink.deltas))
	}
	if res.MimeType != "audio/pcm" {
		t.Errorf("mime = %q", res.MimeType)
	}

	req := tr.requests[0]
	if req.StreamFormat != "sse" || req.Voice != DefaultVoice || req.Model != DefaultModel || req.Speed != 1 {
		t.Errorf("unexpected wire request: %+v", req)
	}
	if got := src.Perf().Snapshot(); got.Successes != 1 || got.FailureStreak != 0 {
		t.Errorf("perf = %+v", got)
	}
}

func TestSynthesizeRetriesTransientFailures(t *testing.T) {
	unavailable := &StatusError{Code: http.StatusServiceUnavailable, Message: "overloaded"}
	tr := &fakeTransport{streams: []streamStep{
		{openErr: unavailable},
		{openErr: unavailable},
		{events: []RawEvent{deltaEvent("ok"), doneEvent()}},
	}}
	src, delays := newTestSource(t, tr)

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hello.", ChunkIndex: 0}, nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	want := []time.Duration{700 * time.Millisecond, 1400 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, (*delays)[i], want[i])
		}
	}
	if got := src.Perf().Snapshot(); got.FailureStreak != 0 || got.Successes != 1 {
		t.Errorf("perf = %+v", got)
	}
}

func TestSynthesizeHonorsRetryAfter(t *testing.T) {
	tr := &fakeTransport{streams: []streamStep{
		{openErr: &StatusError{Code: http.StatusTooManyRequests, RetryAfter: 5 * time.Second}},
		{events: []RawEvent{deltaEvent("ok")}},
	}}
	src, delays := newTestSource(t, tr)

	if _, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != 5*time.Second {
		t.Errorf("delays = %v, want [5s]", *delays)
	}
}

func TestSynthesizeExhaustsRetries(t *testing.T) {
	unavailable := &StatusError{Code: http.StatusBadGateway}
	tr := &fakeTransport{streams: []streamStep{{openErr: unavailable}, {openErr: unavailable}, {openErr: unavailable}}}
	src, _ := newTestSource(t, tr)

	_, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindTransient || e.Status != http.StatusBadGateway {
		t.Fatalf("expected transient 502 error, got %v", err)
	}
	if tr.streamCalls != 3 {
		t.Errorf("stream calls = %d, want 3", tr.streamCalls)
	}
	if got := src.Perf().Snapshot().FailureStreak; got != 3 {
		t.Errorf("failure streak = %d, want 3", got)
	}
}

func TestSynthesizeStallFallsBackToBatch(t *testing.T) {
	tr := &fakeTransport{
		streams: []streamStep{{stall: true}},
		batches: []batchStep{{audio: []byte("batch-audio")}},
	}
	src, delays := newTestSource(t, tr)

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Mode != ModeBatch || string(res.Audio) != "batch-audio" {
		t.Errorf("result = %s %q", res.Mode, res.Audio)
	}
	if res.Attempts != 1 {
		t.Errorf("fallback consumed the retry budget: attempts = %d", res.Attempts)
	}
	if len(*delays) != 0 {
		t.Errorf("fallback should not back off, delays = %v", *delays)
	}
	if tr.requests[1].StreamFormat != "" {
		t.Errorf("batch request carried stream format %q", tr.requests[1].StreamFormat)
	}
}

func TestSynthesizeSilentOpenFallsBackToBatch(t *testing.T) {
	tr := &fakeTransport{
		streams: []streamStep{{hang: true}},
		batches: []batchStep{{audio: []byte("pcm")}},
	}
	src, delays := newTestSource(t, tr)

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Mode != ModeBatch || res.Attempts != 1 || len(*delays) != 0 {
		t.Errorf("result = %s attempts %d delays %v", res.Mode, res.Attempts, *delays)
	}
}

func TestSynthesizeBatchTimeoutIsTransient(t *testing.T) {
	tr := &fakeTransport{batches: []batchStep{{hang: true}, {hang: true}, {hang: true}}}
	src, delays := newTestSource(t, tr)
	src.opts.RequestTimeout = 20 * time.Millisecond
	src.perf.Failure()
	src.perf.Failure()

	_, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Second chunk.", ChunkIndex: 1}, nil)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
	if tr.batchCalls != 3 || len(*delays) != 2 {
		t.Errorf("batch calls = %d, delays = %v", tr.batchCalls, *delays)
	}
}

func TestSynthesizeUnsupportedStreamFallsBack(t *testing.T) {
	tr := &fakeTransport{
		streams: []streamStep{{openErr: &StatusError{Code: http.StatusBadRequest, Message: "stream_format 'sse' is not supported for this model"}}},
		batches: []batchStep{{audio: []byte("pcm")}},
	}
	src, _ := newTestSource(t, tr)

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Mode != ModeBatch {
		t.Errorf("mode = %s, want batch", res.Mode)
	}
}

func TestSynthesizeEmptyStreamFallsBack(t *testing.T) {
	tr := &fakeTransport{
		streams: []streamStep{{events: []RawEvent{{Name: "ping", Data: "{}"}, doneEvent()}}},
		batches: []batchStep{{audio: []byte("pcm")}},
	}
	src, _ := newTestSource(t, tr)

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Mode != ModeBatch {
		t.Errorf("mode = %s, want batch", res.Mode)
	}
}

func TestSynthesizeFallbackFailureSurfaces(t *testing.T) {
	tr := &fakeTransport{
		streams: []streamStep{{stall: true}},
		batches: []batchStep{{err: &StatusError{Code: http.StatusUnauthorized, Message: "bad key"}}},
	}
	src, _ := newTestSource(t, tr)

	_, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRejected {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestSynthesizeResetsSinkAfterMidStreamFailure(t *testing.T) {
	tr := &fakeTransport{streams: []streamStep{
		{events: []RawEvent{deltaEvent("partial")}, readErr: errors.New("connection reset by peer")},
		{events: []RawEvent{deltaEvent("full"), doneEvent()}},
	}}
	src, _ := newTestSource(t, tr)
	sink := &recordingSink{}

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, sink)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if sink.resets != 1 {
		t.Errorf("resets = %d, want 1", sink.resets)
	}
	if len(sink.deltas) != 1 || string(sink.deltas[0]) != "full" {
		t.Errorf("deltas after reset = %q", sink.deltas)
	}
	if string(res.Audio) != "full" {
		t.Errorf("audio = %q", res.Audio)
	}
}

func TestSynthesizeToleratesTimeoutsOnceAudioFlows(t *testing.T) {
	tr := &fakeTransport{streams: []streamStep{{events: []RawEvent{deltaEvent("a")}, stall: true}}, batches: []batchStep{{audio: []byte("b")}}}
	src, _ := newTestSource(t, tr)
	sink := &recordingSink{}

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 0}, sink)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Mode != ModeBatch || sink.resets != 1 {
		t.Errorf("expected a reset and batch fallback, got mode %s resets %d", res.Mode, sink.resets)
	}
}

func TestSynthesizeCanceled(t *testing.T) {
	tr := &fakeTransport{streams: []streamStep{{stall: true}}}
	src, _ := newTestSource(t, tr)
	src.opts.ReadTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := src.Synthesize(ctx, ChunkRequest{Text: "Hi.", ChunkIndex: 0}, nil)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if got := src.Perf().Snapshot().FailureStreak; got != 0 {
		t.Errorf("cancellation counted as failure: streak %d", got)
	}
}

func TestSynthesizeUsesBatchAfterFailures(t *testing.T) {
	tr := &fakeTransport{batches: []batchStep{{audio: []byte("x")}}}
	src, _ := newTestSource(t, tr)
	src.perf.Failure()
	src.perf.Failure()

	res, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Second chunk.", ChunkIndex: 1}, nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Mode != ModeBatch || tr.streamCalls != 0 {
		t.Errorf("mode = %s, stream calls = %d", res.Mode, tr.streamCalls)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	src, _ := newTestSource(t, &fakeTransport{})
	_, err := src.Synthesize(context.Background(), ChunkRequest{}, nil)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindFatalInput {
		t.Fatalf("expected fatal input error, got %v", err)
	}
}

func TestSetInstructions(t *testing.T) {
	tr := &fakeTransport{batches: []batchStep{{audio: []byte("x")}}}
	src, _ := newTestSource(t, tr)
	src.perf.Failure()
	src.perf.Failure()
	src.SetInstructions("Whisper.")

	if _, err := src.Synthesize(context.Background(), ChunkRequest{Text: "Hi.", ChunkIndex: 3, Voice: "alloy"}, nil); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if got := tr.requests[0]; got.Instructions != "Whisper." || got.Voice != "alloy" {
		t.Errorf("request = %+v", got)
	}
}
