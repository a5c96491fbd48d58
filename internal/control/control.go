package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/bookmark"
	"github.com/synfinner/auraspeech-tts/internal/narration"
	"github.com/synfinner/auraspeech-tts/internal/source"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

// Action names a control-surface command.
type Action string

const (
	StartSelection Action = "start-selection"
	StartArticle   Action = "start-article"
	Pause          Action = "pause"
	Resume         Action = "resume"
	TogglePause    Action = "toggle-pause"
	Next           Action = "next"
	Previous       Action = "previous"
	SeekRelative   Action = "seek-relative"
	SeekToTime     Action = "seek-to-time"
	SkipToChapter  Action = "skip-to-chapter"
	NudgeSpeed     Action = "nudge-speed"
	SaveBookmark   Action = "save-bookmark"
	ResumeBookmark Action = "resume-bookmark"
	Stop           Action = "stop"
	GetState       Action = "get-state"
)

// Command is one request to the surface. Only the fields an action uses
// are read.
type Command struct {
	Action  Action        `json:"action"`
	Offset  time.Duration `json:"offset,omitempty"`
	Chapter int           `json:"chapter,omitempty"`
	Steps   int           `json:"steps,omitempty"`
}

// Response reports the outcome of a Command.
type Response struct {
	OK       bool                  `json:"ok"`
	Error    string                `json:"error,omitempty"`
	State    narration.State       `json:"state"`
	Seek     *narration.SeekResult `json:"seek,omitempty"`
	Speed    float64               `json:"speed,omitempty"`
	Bookmark *bookmark.Bookmark    `json:"bookmark,omitempty"`
}

// Narrator is the part of the coordinator the surface drives.
type Narrator interface {
	State(ctx context.Context) (narration.State, error)
	StartNarration(ctx context.Context, req narration.StartRequest) (narration.State, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	TogglePause(ctx context.Context) error
	SkipChunk(ctx context.Context, delta int) error
	SeekRelative(ctx context.Context, delta time.Duration) (narration.SeekResult, error)
	SeekToTime(ctx context.Context, pos time.Duration) (narration.SeekResult, error)
	SkipToChapter(ctx context.Context, index int) error
	NudgeSpeed(ctx context.Context, steps int) (float64, error)
	Stop(ctx context.Context) error
}

// Bookmarks saves and restores positions.
type Bookmarks interface {
	Save(ctx context.Context, pageKey, tabKey string) (bookmark.Bookmark, error)
	Resume(ctx context.Context, pageKey, tabKey string) (bookmark.Bookmark, error)
}

// Surface executes Commands. The page key identifies the article the
// provider reads; the tab key stands in for it when there is none.
type Surface struct {
	narrator  Narrator
	bookmarks Bookmarks
	provider  source.Provider
	pageKey   string
	tabKey    string
}

// New creates a Surface. bookmarks may be nil, which disables the
// bookmark actions.
func New(n Narrator, bookmarks Bookmarks, provider source.Provider, pageKey string) *Surface {
	return &Surface{
		narrator:  n,
		bookmarks: bookmarks,
		provider:  provider,
		pageKey:   pageKey,
		tabKey:    bookmark.NewTabKey(),
	}
}

// Handle runs cmd and reports the state after it.
func (s *Surface) Handle(ctx context.Context, cmd Command) Response {
	var resp Response
	err := s.dispatch(ctx, cmd, &resp)
	if err != nil {
		log.Debug("Command failed", "action", cmd.Action, "error", err)
		resp.Error = Message(err)
	}
	resp.OK = err == nil

	if st, serr := s.narrator.State(ctx); serr == nil {
		resp.State = st
	} else if err == nil {
		resp.OK = false
		resp.Error = Message(serr)
	}
	return resp
}

func (s *Surface) dispatch(ctx context.Context, cmd Command, resp *Response) error {
	switch cmd.Action {
	case StartSelection:
		return s.startSelection(ctx)

	case StartArticle:
		return s.startArticle(ctx)

	case Pause:
		return s.narrator.Pause(ctx)

	case Resume:
		return s.narrator.Resume(ctx)

	case TogglePause:
		return s.narrator.TogglePause(ctx)

	case Next:
		return s.narrator.SkipChunk(ctx, 1)

	case Previous:
		return s.narrator.SkipChunk(ctx, -1)

	case SeekRelative:
		res, err := s.narrator.SeekRelative(ctx, cmd.Offset)
		if err == nil {
			resp.Seek = &res
		}
		return err

	case SeekToTime:
		res, err := s.narrator.SeekToTime(ctx, cmd.Offset)
		if err == nil {
			resp.Seek = &res
		}
		return err

	case SkipToChapter:
		return s.narrator.SkipToChapter(ctx, cmd.Chapter)

	case NudgeSpeed:
		speed, err := s.narrator.NudgeSpeed(ctx, cmd.Steps)
		resp.Speed = speed
		return err

	case SaveBookmark:
		if s.bookmarks == nil {
			return errBookmarksDisabled
		}
		b, err := s.bookmarks.Save(ctx, s.pageKey, s.tabKey)
		if err == nil {
			resp.Bookmark = &b
		}
		return err

	case ResumeBookmark:
		if s.bookmarks == nil {
			return errBookmarksDisabled
		}
		b, err := s.bookmarks.Resume(ctx, s.pageKey, s.tabKey)
		if err == nil {
			resp.Bookmark = &b
		}
		return err

	case Stop:
		return s.narrator.Stop(ctx)

	case GetState:
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

func (s *Surface) startArticle(ctx context.Context) error {
	if s.provider == nil {
		return source.ErrNoArticle
	}
	a, err := s.provider.DetectArticle(ctx)
	if err != nil {
		return err
	}
	key := s.pageKey
	if key == "" {
		key = a.URL
	}
	if key != "" {
		if norm, err := bookmark.NormalizePageURL(key); err == nil {
			key = norm
		}
	} else {
		key = s.tabKey
	}
	_, err = s.narrator.StartNarration(ctx, narration.StartRequest{
		Source:  narration.SourceArticle,
		Title:   a.Title,
		PageKey: key,
		Text:    a.Text,
		Hints:   a.Hints,
	})
	return err
}

func (s *Surface) startSelection(ctx context.Context) error {
	if s.provider == nil {
		return source.ErrNoSelection
	}
	text, err := s.provider.SelectedText(ctx)
	if err != nil {
		return err
	}
	_, err = s.narrator.StartNarration(ctx, narration.StartRequest{
		Source:  narration.SourceSelection,
		Title:   "Selection",
		PageKey: s.tabKey,
		Text:    text,
	})
	return err
}

var (
	// ErrUnknownAction is returned for commands the surface does not know.
	ErrUnknownAction = errors.New("unknown command")

	errBookmarksDisabled = errors.New("bookmarks are disabled")
)

// Message turns err into the one-line text shown to the listener.
func Message(err error) string {
	var se *speech.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case speech.KindTransient:
			return "Speech service unavailable: " + se.Error()
		case speech.KindRejected:
			return "Speech request rejected: " + se.Error()
		case speech.KindPlayer:
			return "Audio playback failed: " + se.Error()
		}
	}
	return err.Error()
}
