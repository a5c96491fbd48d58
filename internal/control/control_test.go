package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/synfinner/auraspeech-tts/internal/bookmark"
	"github.com/synfinner/auraspeech-tts/internal/narration"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"github.com/synfinner/auraspeech-tts/internal/source"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

type fakeNarrator struct {
	calls  []string
	starts []narration.StartRequest
	err    error
	state  narration.State
}

func (f *fakeNarrator) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeNarrator) State(context.Context) (narration.State, error) {
	return f.state, nil
}

func (f *fakeNarrator) StartNarration(_ context.Context, req narration.StartRequest) (narration.State, error) {
	f.starts = append(f.starts, req)
	return f.state, f.record("start %s", req.Source)
}

func (f *fakeNarrator) Pause(context.Context) error       { return f.record("pause") }
func (f *fakeNarrator) Resume(context.Context) error      { return f.record("resume") }
func (f *fakeNarrator) TogglePause(context.Context) error { return f.record("toggle") }
func (f *fakeNarrator) Stop(context.Context) error        { return f.record("stop") }

func (f *fakeNarrator) SkipChunk(_ context.Context, delta int) error {
	return f.record("skip %d", delta)
}

func (f *fakeNarrator) SkipToChapter(_ context.Context, index int) error {
	return f.record("chapter %d", index)
}

func (f *fakeNarrator) SeekRelative(_ context.Context, d time.Duration) (narration.SeekResult, error) {
	return narration.SeekResult{Position: 5 * time.Second, HitStart: d < 0}, f.record("seek %v", d)
}

func (f *fakeNarrator) SeekToTime(_ context.Context, d time.Duration) (narration.SeekResult, error) {
	return narration.SeekResult{Position: d}, f.record("seekto %v", d)
}

func (f *fakeNarrator) NudgeSpeed(_ context.Context, steps int) (float64, error) {
	return 1 + float64(steps)/10, f.record("speed %d", steps)
}

type fakeBookmarks struct {
	keys []string
}

func (f *fakeBookmarks) Save(_ context.Context, pageKey, tabKey string) (bookmark.Bookmark, error) {
	f.keys = append(f.keys, pageKey)
	return bookmark.Bookmark{Key: pageKey, TabKey: tabKey, ChunkIndex: 3}, nil
}

func (f *fakeBookmarks) Resume(_ context.Context, pageKey, _ string) (bookmark.Bookmark, error) {
	f.keys = append(f.keys, pageKey)
	return bookmark.Bookmark{}, bookmark.ErrNoBookmark
}

type fakeProvider struct{}

func (fakeProvider) DetectArticle(context.Context) (source.Article, error) {
	return source.Article{
		Title: "Essay",
		URL:   "https://Example.com/essay/#top",
		Text:  "Some article text.",
		Hints: []segment.ChapterHint{{Title: "Start", StartChar: 0}},
	}, nil
}

func (fakeProvider) SelectedText(context.Context) (string, error) {
	return "Selected words.", nil
}

func TestHandleTransport(t *testing.T) {
	n := &fakeNarrator{state: narration.State{SessionID: 4, Phase: narration.PhasePlaying}}
	s := New(n, nil, nil, "")
	ctx := context.Background()

	cmds := []Command{
		{Action: Pause},
		{Action: Resume},
		{Action: TogglePause},
		{Action: Next},
		{Action: Previous},
		{Action: SeekRelative, Offset: -10 * time.Second},
		{Action: SeekToTime, Offset: time.Minute},
		{Action: SkipToChapter, Chapter: 2},
		{Action: NudgeSpeed, Steps: 2},
		{Action: Stop},
		{Action: GetState},
	}
	for _, cmd := range cmds {
		resp := s.Handle(ctx, cmd)
		if !resp.OK || resp.Error != "" {
			t.Errorf("%s: %+v", cmd.Action, resp)
		}
		if resp.State.SessionID != 4 {
			t.Errorf("%s: state not reported", cmd.Action)
		}
	}

	want := "pause,resume,toggle,skip 1,skip -1,seek -10s,seekto 1m0s,chapter 2,speed 2,stop"
	if got := strings.Join(n.calls, ","); got != want {
		t.Errorf("calls = %s\nwant    %s", got, want)
	}

	resp := s.Handle(ctx, Command{Action: SeekRelative, Offset: -time.Second})
	if resp.Seek == nil || !resp.Seek.HitStart {
		t.Errorf("seek result = %+v", resp.Seek)
	}
	resp = s.Handle(ctx, Command{Action: NudgeSpeed, Steps: 1})
	if resp.Speed != 1.1 {
		t.Errorf("speed = %v", resp.Speed)
	}
}

func TestHandleErrors(t *testing.T) {
	n := &fakeNarrator{err: narration.ErrNotSeekable}
	s := New(n, nil, nil, "")
	ctx := context.Background()

	resp := s.Handle(ctx, Command{Action: SeekRelative, Offset: time.Second})
	if resp.OK || resp.Error != narration.ErrNotSeekable.Error() || resp.Seek != nil {
		t.Errorf("seek while generating = %+v", resp)
	}

	resp = s.Handle(ctx, Command{Action: "rewind"})
	if resp.OK || !strings.Contains(resp.Error, "unknown command") {
		t.Errorf("unknown action = %+v", resp)
	}

	resp = s.Handle(ctx, Command{Action: SaveBookmark})
	if resp.OK {
		t.Error("bookmark saved without a bookmark store")
	}

	resp = s.Handle(ctx, Command{Action: StartArticle})
	if resp.OK || resp.Error != source.ErrNoArticle.Error() {
		t.Errorf("start without provider = %+v", resp)
	}
}

func TestHandleStart(t *testing.T) {
	n := &fakeNarrator{}
	s := New(n, nil, fakeProvider{}, "")
	ctx := context.Background()

	if resp := s.Handle(ctx, Command{Action: StartArticle}); !resp.OK {
		t.Fatalf("start article: %s", resp.Error)
	}
	if resp := s.Handle(ctx, Command{Action: StartSelection}); !resp.OK {
		t.Fatalf("start selection: %s", resp.Error)
	}

	article, sel := n.starts[0], n.starts[1]
	if article.Source != narration.SourceArticle || article.PageKey != "https://example.com/essay" ||
		article.Title != "Essay" || len(article.Hints) != 1 {
		t.Errorf("article request = %+v", article)
	}
	if sel.Source != narration.SourceSelection || sel.Text != "Selected words." || !strings.HasPrefix(sel.PageKey, "tab:") {
		t.Errorf("selection request = %+v", sel)
	}
}

func TestHandleBookmarks(t *testing.T) {
	b := &fakeBookmarks{}
	s := New(&fakeNarrator{}, b, fakeProvider{}, "file:///tmp/essay.md")
	ctx := context.Background()

	resp := s.Handle(ctx, Command{Action: SaveBookmark})
	if !resp.OK || resp.Bookmark == nil || resp.Bookmark.ChunkIndex != 3 {
		t.Errorf("save = %+v", resp)
	}
	if !strings.HasPrefix(resp.Bookmark.TabKey, "tab:") {
		t.Errorf("tab key = %q", resp.Bookmark.TabKey)
	}

	resp = s.Handle(ctx, Command{Action: ResumeBookmark})
	if resp.OK || resp.Error != bookmark.ErrNoBookmark.Error() {
		t.Errorf("resume = %+v", resp)
	}
	if len(b.keys) != 2 || b.keys[0] != "file:///tmp/essay.md" {
		t.Errorf("keys = %v", b.keys)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("plain"), "plain"},
		{speech.NewError(speech.KindTransient, "HTTP 503", nil), "Speech service unavailable: HTTP 503"},
		{speech.NewError(speech.KindRejected, "HTTP 401", nil), "Speech request rejected: HTTP 401"},
		{fmt.Errorf("chunk 2: %w", speech.NewError(speech.KindPlayer, "no device", nil)), "Audio playback failed: no device"},
		{speech.NewError(speech.KindFatalInput, "empty chunk", nil), "empty chunk"},
	}
	for _, tc := range tests {
		if got := Message(tc.err); got != tc.want {
			t.Errorf("Message(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
