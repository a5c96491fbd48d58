package bookmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/narration"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"github.com/synfinner/auraspeech-tts/internal/source"
)

const (
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultResumeTimeout = 20 * time.Second
)

// Controller is the part of the coordinator bookmarks need.
type Controller interface {
	State(ctx context.Context) (narration.State, error)
	Session(ctx context.Context) (*narration.Session, error)
	StartNarration(ctx context.Context, req narration.StartRequest) (narration.State, error)
	SeekToChunk(ctx context.Context, index int) error
	SeekToTime(ctx context.Context, pos time.Duration) (narration.SeekResult, error)
	SetSpeed(ctx context.Context, speed float64) (float64, error)
}

// Resolver saves and restores listening positions.
type Resolver struct {
	ctrl     Controller
	store    Store
	provider source.Provider

	PollInterval  time.Duration
	ResumeTimeout time.Duration

	now func() time.Time
}

// NewResolver creates a Resolver. provider may be nil when articles
// cannot be re-acquired.
func NewResolver(ctrl Controller, store Store, provider source.Provider) *Resolver {
	return &Resolver{
		ctrl:          ctrl,
		store:         store,
		provider:      provider,
		PollInterval:  DefaultPollInterval,
		ResumeTimeout: DefaultResumeTimeout,
		now:           time.Now,
	}
}

// Save bookmarks the live session under its own page key. pageKey, then
// tabKey, stand in when the session has none. A selection session is
// keyed by its tab and leaves the bookmark of the open page alone.
func (r *Resolver) Save(ctx context.Context, pageKey, tabKey string) (Bookmark, error) {
	s, err := r.ctrl.State(ctx)
	if err != nil {
		return Bookmark{}, err
	}
	sess, err := r.ctrl.Session(ctx)
	if err != nil {
		return Bookmark{}, err
	}

	live := sess.PageKey
	if live == "" {
		live = pageKey
	}
	key, err := resolveKey(live, tabKey)
	if err != nil {
		return Bookmark{}, err
	}

	index, offset := s.CurrentIndex, s.AudioTime
	if s.PendingIndex >= 0 {
		index, offset = s.PendingIndex, 0
	}
	if index < 0 {
		index = 0
	}

	b := Bookmark{
		Key:             key,
		TabKey:          tabKey,
		Source:          string(sess.Source),
		Title:           sess.Title,
		ChunkIndex:      index,
		ChapterIndex:    sess.Queue.ChapterOf(index),
		PositionSeconds: offset.Seconds(),
		ElapsedSeconds:  narration.EstimateElapsed(sess.Queue, index, offset, s.Speed).Seconds(),
		Speed:           s.Speed,
		SavedAt:         r.now(),
	}
	if err := r.store.SaveBookmark(ctx, b); err != nil {
		return Bookmark{}, fmt.Errorf("save bookmark: %w", err)
	}
	log.Info("Saved bookmark", "key", key, "chunk", b.ChunkIndex, "position", offset.Round(100*time.Millisecond))
	return b, nil
}

// Resume restores the bookmark saved under pageKey or tabKey. A session
// for the same page is seeked in place; otherwise the article is read
// again and narrated from the saved chunk, or from the start of its
// chapter when the text changed underneath it.
func (r *Resolver) Resume(ctx context.Context, pageKey, tabKey string) (Bookmark, error) {
	key, err := resolveKey(pageKey, tabKey)
	if err != nil {
		return Bookmark{}, err
	}
	b, err := r.store.LoadBookmark(ctx, key)
	if errors.Is(err, ErrNoBookmark) && tabKey != "" && key != tabKey {
		b, err = r.store.LoadBookmark(ctx, tabKey)
	}
	if err != nil {
		return Bookmark{}, err
	}

	if b.Speed > 0 {
		if _, err := r.ctrl.SetSpeed(ctx, b.Speed); err != nil {
			return b, err
		}
	}

	target, offset := b.ChunkIndex, b.Position()
	s, err := r.ctrl.State(ctx)
	if err != nil {
		return b, err
	}

	if s.Active() && (s.PageKey == b.Key || (b.TabKey != "" && s.PageKey == b.TabKey)) {
		sess, err := r.ctrl.Session(ctx)
		if err != nil {
			return b, err
		}
		if target >= sess.Chunks() {
			target, offset = chapterStart(sess.Queue.Chapters, b.ChapterIndex), 0
		}
		log.Debug("Resuming bookmark in place", "key", b.Key, "chunk", target)
		if err := r.ctrl.SeekToChunk(ctx, target); err != nil {
			return b, err
		}
	} else {
		if b.Source == string(narration.SourceSelection) {
			return b, ErrSelectionNotResumable
		}
		if r.provider == nil {
			return b, fmt.Errorf("resume %s: %w", b.Key, source.ErrNoArticle)
		}
		article, err := r.provider.DetectArticle(ctx)
		if err != nil {
			return b, fmt.Errorf("resume %s: %w", b.Key, err)
		}

		log.Debug("Restarting bookmarked article", "key", b.Key, "chunk", target)
		started, err := r.ctrl.StartNarration(ctx, narration.StartRequest{
			Source:        narration.SourceArticle,
			Title:         article.Title,
			PageKey:       b.Key,
			Text:          article.Text,
			Hints:         article.Hints,
			StartChunk:    b.ChunkIndex,
			Resume:        true,
			ResumeChapter: b.ChapterIndex,
		})
		if err != nil {
			return b, err
		}
		if started.PendingIndex != b.ChunkIndex {
			target, offset = started.PendingIndex, 0
		}
	}

	if err := r.waitSeekable(ctx, target); err != nil {
		return b, err
	}
	if offset > 0 {
		if _, err := r.ctrl.SeekToTime(ctx, offset); err != nil {
			return b, err
		}
	}
	return b, nil
}

// waitSeekable polls until chunk index is playing with seekable audio.
func (r *Resolver) waitSeekable(ctx context.Context, index int) error {
	ctx, cancel := context.WithTimeout(ctx, r.ResumeTimeout)
	defer cancel()

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		s, err := r.ctrl.State(ctx)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err == nil && s.CurrentIndex == index && s.Seekable() {
			return nil
		}
		if err == nil && s.Error != "" {
			return errors.New(s.Error)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrResumeTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func resolveKey(pageKey, tabKey string) (string, error) {
	if pageKey != "" {
		return NormalizePageURL(pageKey)
	}
	if tabKey != "" {
		return tabKey, nil
	}
	return "", ErrNoPageKey
}

func chapterStart(chapters []segment.Chapter, index int) int {
	if index >= 0 && index < len(chapters) {
		return chapters[index].StartChunk
	}
	return 0
}
