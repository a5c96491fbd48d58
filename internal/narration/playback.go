package narration

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/audio"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

func (c *Coordinator) handlePlayerEvent(ev audio.Event) {
	if c.session == nil || ev.SessionID != c.session.ID || ev.ChunkIndex != c.state.CurrentIndex {
		return
	}

	switch ev.Kind {
	case audio.EventPlaying:
		if c.state.Phase == PhasePaused {
			return
		}
		c.state.Phase = PhasePlaying
		c.state.ChunkStartedAt = time.Now()
		c.state.Error = ""
		c.setPosition(ev.Position, ev.Duration)
		log.Debug("Chunk playing", "session", ev.SessionID, "chunk", ev.ChunkIndex)
		c.schedulePrefetch()

	case audio.EventProgress:
		c.setPosition(ev.Position, ev.Duration)

	case audio.EventEnded:
		if c.state.PendingIndex >= 0 {
			// the player drained a stream that is still arriving
			return
		}
		c.setPosition(ev.Position, ev.Duration)
		log.Debug("Chunk ended", "session", ev.SessionID, "chunk", ev.ChunkIndex)
		next := ev.ChunkIndex + 1
		if next >= c.session.Chunks() {
			c.complete()
			return
		}
		c.playChunk(next)

	case audio.EventError:
		c.fail(playerError("playback", ev.Err))
	}
}

func (c *Coordinator) setPosition(pos, dur time.Duration) {
	if dur > 0 {
		c.state.AudioDuration = dur
	}
	if pos < 0 {
		pos = 0
	}
	if c.state.AudioDuration > 0 && pos > c.state.AudioDuration {
		pos = c.state.AudioDuration
	}
	c.state.AudioTime = pos
}

// refreshPosition polls the player on every heartbeat tick.
func (c *Coordinator) refreshPosition() {
	if c.session == nil || c.state.Phase != PhasePlaying {
		return
	}
	pos, dur := c.player.Position()
	c.setPosition(pos, dur)
}

func (c *Coordinator) complete() {
	log.Debug("Narration completed", "session", c.session.ID)
	c.state.Phase = PhaseCompleted
	c.state.PendingIndex = -1
	c.state.AudioTime = c.state.AudioDuration
	c.pausedDuringGeneration = false
	c.prefetchOnResume = false
}

// fail surfaces err and ends the session. Cancellations are dropped.
func (c *Coordinator) fail(err error) {
	var se *speech.Error
	if errors.As(err, &se) && se.Kind == speech.KindCanceled {
		return
	}
	log.Error("Narration failed", "error", err)
	c.teardown()
	c.state.Error = err.Error()
}

// teardown cancels everything in flight and returns to idle.
func (c *Coordinator) teardown() {
	c.invalidate()
	if c.session != nil {
		if err := c.player.Stop(); err != nil {
			log.Warn("Failed to stop player", "error", err)
		}
	}
	c.cache.Clear()
	c.session = nil
	c.pausedDuringGeneration = false
	c.prefetchOnResume = false
	c.resumeIndex = 0
	c.state = c.idleState()
}

func playerError(op string, err error) error {
	msg := op
	if err != nil {
		msg += ": " + err.Error()
	}
	return speech.NewError(speech.KindPlayer, msg, err)
}
