package audio

import (
	"testing"
	"time"
)

func TestMockPlayerAutoFinish(t *testing.T) {
	m := NewMockPlayer()
	defer m.Close()
	m.AutoFinish = true

	events := make(chan Event, 8)
	m.SetSink(func(ev Event) { events <- ev })

	if err := m.Play(PlayRequest{Audio: pcmFrames(1, 2), SessionID: 2, ChunkIndex: 0}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	want := []EventKind{EventPlaying, EventEnded}
	for _, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind || ev.SessionID != 2 {
				t.Fatalf("event = %+v, want %s", ev, kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestMockPlayerStreamEndsAfterEndStream(t *testing.T) {
	m := NewMockPlayer()
	defer m.Close()
	m.AutoFinish = true

	events := make(chan Event, 8)
	m.SetSink(func(ev Event) { events <- ev })

	if err := m.Play(PlayRequest{Audio: pcmFrames(1), Stream: true, SessionID: 1, ChunkIndex: 3}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if ev := <-events; ev.Kind != EventPlaying {
		t.Fatalf("first event = %s", ev.Kind)
	}
	if err := m.AppendStreamChunk(1, 3, pcmFrames(2, 3)); err != nil {
		t.Fatalf("AppendStreamChunk: %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected %s before EndStream", ev.Kind)
	case <-time.After(20 * time.Millisecond):
	}

	if err := m.EndStream(1, 3); err != nil {
		t.Fatalf("EndStream: %v", err)
	}
	ev := <-events
	if ev.Kind != EventEnded || ev.Duration != PCMDuration(3*frameSize) {
		t.Errorf("end event = %+v", ev)
	}

	_, data := m.Current()
	if len(data) != 3*frameSize {
		t.Errorf("received %d bytes, want %d", len(data), 3*frameSize)
	}
}

func TestMockPlayerSeekClamps(t *testing.T) {
	m := NewMockPlayer()
	defer m.Close()

	_ = m.Play(PlayRequest{Audio: make([]byte, SampleRate*frameSize)})
	_ = m.SeekTo(3 * time.Second)
	if pos, dur := m.Position(); pos != dur || dur != time.Second {
		t.Errorf("Position() = %v, %v", pos, dur)
	}
	_ = m.SeekRelative(-5 * time.Second)
	if pos, _ := m.Position(); pos != 0 {
		t.Errorf("pos = %v, want 0", pos)
	}

	calls := m.Calls()
	if len(calls) != 3 || calls[0] != "play 0 stream=false" {
		t.Errorf("calls = %q", calls)
	}
}
