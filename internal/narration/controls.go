package narration

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

// StartNarration replaces any live session with a new one for req. Input
// problems are reported before anything is cancelled or requested.
func (c *Coordinator) StartNarration(ctx context.Context, req StartRequest) (State, error) {
	if req.Source == "" {
		req.Source = SourceArticle
	}
	if req.Source == SourceSelection && segment.CountWords(req.Text) > MaxSelectionWords {
		return State{}, ErrSelectionTooLong
	}

	ceiling := speech.ChunkCeiling(c.src.Perf().Snapshot())
	q := segment.BuildQueue(req.Text, req.Hints, segment.Options{
		MaxChunkChars: ceiling,
		Title:         req.Title,
	})
	if len(q.Chunks) == 0 {
		return State{}, ErrNothingToNarrate
	}
	if len(q.Chunks) > c.opts.MaxChunks {
		return State{}, fmt.Errorf("%w: %d chunks, limit %d", ErrTooManyChunks, len(q.Chunks), c.opts.MaxChunks)
	}

	var s State
	err := c.call(ctx, func() error {
		c.teardown()
		c.lastSession++
		c.session = &Session{
			ID:         c.lastSession,
			Source:     req.Source,
			Title:      req.Title,
			PageKey:    req.PageKey,
			Queue:      q,
			TotalWords: q.TotalWords(),
			TotalChars: q.TotalChars(),
			StartedAt:  time.Now(),
		}

		c.state = c.idleState()
		c.state.SessionID = c.session.ID
		c.state.Source = req.Source
		c.state.Title = req.Title
		c.state.PageKey = req.PageKey
		c.state.Phase = PhaseExtracting

		start := startChunk(q, req)
		c.state.PendingIndex = start
		log.Info("Starting narration",
			"session", c.session.ID,
			"source", req.Source,
			"chunks", len(q.Chunks),
			"chapters", len(q.Chapters),
			"words", c.session.TotalWords,
			"ceiling", ceiling,
			"start", start)

		sid, run := c.session.ID, c.run
		c.later(func() {
			if c.isCurrent(sid, run) {
				c.playChunk(start)
			}
		})
		s = c.snapshot()
		return nil
	})
	return s, err
}

// startChunk picks where a new session begins.
func startChunk(q segment.Queue, req StartRequest) int {
	start := req.StartChunk
	if start < 0 || start >= len(q.Chunks) {
		start = 0
	}
	if !req.Resume {
		return start
	}
	if q.ChapterOf(req.StartChunk) == req.ResumeChapter {
		return req.StartChunk
	}
	if req.ResumeChapter >= 0 && req.ResumeChapter < len(q.Chapters) {
		return q.Chapters[req.ResumeChapter].StartChunk
	}
	return start
}

// Pause pauses playback. Pausing while a chunk is still being generated
// aborts the request; Resume restarts that chunk.
func (c *Coordinator) Pause(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		c.pause()
		return nil
	})
}

func (c *Coordinator) pause() {
	switch {
	case c.state.Phase == PhasePaused, c.state.Phase == PhaseCompleted:
		return

	case c.state.PendingIndex >= 0 || c.state.Phase == PhaseExtracting ||
		c.state.Phase == PhaseGenerating || c.state.Phase == PhaseBuffering:
		idx := c.state.PendingIndex
		if idx < 0 {
			idx = c.state.CurrentIndex
		}
		if idx < 0 {
			idx = 0
		}
		c.invalidate()
		if err := c.player.Stop(); err != nil {
			log.Warn("Failed to stop player", "error", err)
		}
		c.pausedDuringGeneration = true
		c.resumeIndex = idx
		c.state.CurrentIndex = idx - 1
		c.state.PendingIndex = idx
		c.state.AudioTime = 0
		c.state.AudioDuration = 0
		log.Debug("Paused during generation", "chunk", idx)

	default:
		if err := c.player.Pause(); err != nil {
			log.Warn("Failed to pause player", "error", err)
		}
		if c.job != nil && !c.job.foreground {
			c.job.cancel()
			c.job = nil
			c.prefetchOnResume = true
		}
		pos, dur := c.player.Position()
		c.setPosition(pos, dur)
	}
	c.state.Phase = PhasePaused
}

// Resume continues a paused or completed session.
func (c *Coordinator) Resume(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		c.resume()
		return nil
	})
}

func (c *Coordinator) resume() {
	switch c.state.Phase {
	case PhasePaused:
	case PhaseCompleted:
		idx := c.state.CurrentIndex
		if idx < 0 {
			idx = 0
		}
		c.restartAt(idx)
		return
	default:
		return
	}

	if c.pausedDuringGeneration {
		c.pausedDuringGeneration = false
		c.restartAt(c.resumeIndex)
		return
	}

	if err := c.player.Resume(); err != nil {
		c.fail(playerError("resume", err))
		return
	}
	c.state.Phase = PhasePlaying
	if c.prefetchOnResume {
		c.prefetchOnResume = false
		c.schedulePrefetch()
	}
}

// TogglePause pauses a playing session and resumes a paused one.
func (c *Coordinator) TogglePause(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		if c.state.Phase == PhasePaused || c.state.Phase == PhaseCompleted {
			c.resume()
		} else {
			c.pause()
		}
		return nil
	})
}

// restartAt abandons whatever is in flight and plays chunk k from the top.
func (c *Coordinator) restartAt(k int) {
	c.invalidate()
	if err := c.player.Stop(); err != nil {
		log.Warn("Failed to stop player", "error", err)
	}
	c.pausedDuringGeneration = false
	c.prefetchOnResume = false
	c.state.Error = ""
	c.state.ChunkStartedAt = time.Time{}
	c.playChunk(k)
}

// SeekToChunk restarts playback at chunk index. Cached audio plays without
// a request.
func (c *Coordinator) SeekToChunk(ctx context.Context, index int) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		if index < 0 || index >= c.session.Chunks() {
			return ErrOutOfRange
		}
		log.Debug("Seeking to chunk", "chunk", index)
		c.restartAt(index)
		return nil
	})
}

// SkipChunk moves delta chunks from the current one.
func (c *Coordinator) SkipChunk(ctx context.Context, delta int) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		at := c.state.CurrentIndex
		if c.state.PendingIndex >= 0 {
			at = c.state.PendingIndex
		} else if c.pausedDuringGeneration {
			at = c.resumeIndex
		}
		if at < 0 {
			at = 0
		}
		target := at + delta
		if target < 0 || target >= c.session.Chunks() {
			return ErrOutOfRange
		}
		c.restartAt(target)
		return nil
	})
}

// SkipToChapter restarts playback at the first chunk of chapter index.
func (c *Coordinator) SkipToChapter(ctx context.Context, index int) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		chapters := c.session.Queue.Chapters
		if index < 0 || index >= len(chapters) {
			return ErrOutOfRange
		}
		log.Debug("Skipping to chapter", "chapter", index, "title", chapters[index].Title)
		c.restartAt(chapters[index].StartChunk)
		return nil
	})
}

// SeekRelative moves the playhead within the current chunk, clamped to its
// bounds.
func (c *Coordinator) SeekRelative(ctx context.Context, delta time.Duration) (SeekResult, error) {
	var res SeekResult
	err := c.call(ctx, func() error {
		if err := c.seekable(); err != nil {
			return err
		}
		pos, dur := c.player.Position()
		c.setPosition(pos, dur)
		var clamped bool
		res, clamped = clampSeek(c.state.AudioTime+delta, c.state.AudioDuration)
		if clamped {
			return c.seekTo(res)
		}
		if err := c.player.SeekRelative(delta); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		c.setPosition(res.Position, 0)
		return nil
	})
	return res, err
}

// SeekToTime moves the playhead to pos within the current chunk.
func (c *Coordinator) SeekToTime(ctx context.Context, pos time.Duration) (SeekResult, error) {
	var res SeekResult
	err := c.call(ctx, func() error {
		if err := c.seekable(); err != nil {
			return err
		}
		_, dur := c.player.Position()
		c.setPosition(c.state.AudioTime, dur)
		res, _ = clampSeek(pos, c.state.AudioDuration)
		return c.seekTo(res)
	})
	return res, err
}

func (c *Coordinator) seekable() error {
	if c.session == nil {
		return ErrNoSession
	}
	if !c.state.Seekable() {
		return ErrNotSeekable
	}
	return nil
}

func (c *Coordinator) seekTo(res SeekResult) error {
	if err := c.player.SeekTo(res.Position); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	c.setPosition(res.Position, 0)
	return nil
}

// clampSeek limits target to [0, duration] and reports which bound, if
// any, cut the seek short. Landing exactly on a bound is not a clamp.
func clampSeek(target, duration time.Duration) (SeekResult, bool) {
	res := SeekResult{Position: target, Duration: duration}
	switch {
	case target < 0:
		res.Position = 0
		res.HitStart = true
	case target > duration:
		res.Position = duration
		res.HitEnd = true
	}
	return res, res.HitStart || res.HitEnd
}

// NudgeSpeed changes the speed by steps of SpeedStep and returns the
// resulting speed.
func (c *Coordinator) NudgeSpeed(ctx context.Context, steps int) (float64, error) {
	var speed float64
	err := c.call(ctx, func() error {
		speed = c.setSpeed(c.speed + float64(steps)*SpeedStep)
		return nil
	})
	return speed, err
}

// SetSpeed sets an absolute speed and returns the clamped value applied.
func (c *Coordinator) SetSpeed(ctx context.Context, speed float64) (float64, error) {
	var applied float64
	err := c.call(ctx, func() error {
		applied = c.setSpeed(speed)
		return nil
	})
	return applied, err
}

func (c *Coordinator) setSpeed(speed float64) float64 {
	speed = ClampSpeed(speed)
	if speed == c.speed {
		return speed
	}
	c.speed = speed
	log.Debug("Speed changed", "speed", speed)
	if c.store != nil {
		if err := c.store.SaveSpeed(speed); err != nil {
			log.Warn("Failed to save speed", "error", err)
		}
	}
	if err := c.player.SetRate(speed); err != nil {
		log.Warn("Failed to apply speed", "error", err)
	}
	return speed
}

// SetVoice selects the voice for chunks requested from now on.
func (c *Coordinator) SetVoice(ctx context.Context, voice string) error {
	if voice == "" {
		voice = speech.DefaultVoice
	}
	return c.call(ctx, func() error {
		c.voice = voice
		return nil
	})
}

// Stop ends the session and returns to idle.
func (c *Coordinator) Stop(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.session != nil {
			log.Info("Stopping narration", "session", c.session.ID)
		}
		c.teardown()
		return nil
	})
}
