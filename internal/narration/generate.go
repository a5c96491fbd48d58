package narration

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/synfinner/auraspeech-tts/internal/audio"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

// job is one in-flight synthesis request. Only one exists at a time.
type job struct {
	session    uint64
	run        uint64
	index      int
	cancel     context.CancelFunc
	foreground bool

	// streaming is set once the player received the first bytes of this
	// chunk as a stream.
	streaming bool
	received  int
	pending   []byte
}

type jobEventKind int

const (
	jobDelta jobEventKind = iota
	jobReset
	jobDone
)

type jobEvent struct {
	job    *job
	kind   jobEventKind
	audio  []byte
	result speech.Result
	err    error
}

// jobSink forwards streamed audio from the synthesis goroutine to the loop.
type jobSink struct {
	c *Coordinator
	j *job
}

func (s jobSink) OnDelta(b []byte) { s.c.postJob(jobEvent{job: s.j, kind: jobDelta, audio: b}) }
func (s jobSink) OnReset()         { s.c.postJob(jobEvent{job: s.j, kind: jobReset}) }

func (c *Coordinator) postJob(ev jobEvent) {
	select {
	case c.jobEvents <- ev:
	case <-c.done:
	}
}

// playChunk makes k the next chunk to play: from memory, from disk, from
// a prefetch already in flight, or from a new foreground request.
func (c *Coordinator) playChunk(k int) {
	sess := c.session
	if sess == nil {
		return
	}
	if k >= sess.Chunks() {
		c.complete()
		return
	}

	c.state.CurrentIndex = k - 1
	c.state.AudioTime = 0
	c.state.AudioDuration = 0

	if data, ok := c.cache.Get(k); ok {
		log.Debug("Playing cached chunk", "session", sess.ID, "chunk", k)
		c.handToPlayer(k, data, false)
		return
	}
	if data, ok := c.diskLookup(k); ok {
		log.Debug("Playing chunk from disk cache", "session", sess.ID, "chunk", k)
		if err := c.cache.Put(k, data); err != nil {
			log.Warn("Failed to cache chunk", "chunk", k, "error", err)
		}
		c.handToPlayer(k, data, false)
		return
	}

	if j := c.job; j != nil && j.index == k && c.isCurrent(j.session, j.run) {
		c.promote(j)
		return
	}
	if c.job != nil {
		c.job.cancel()
		c.job = nil
	}
	c.startJob(k, true)
}

// promote turns an in-flight prefetch into the foreground request, handing
// any audio already streamed to the player.
func (c *Coordinator) promote(j *job) {
	log.Debug("Promoting prefetch", "chunk", j.index, "received", humanize.Bytes(uint64(j.received)))
	j.foreground = true
	c.state.Phase = PhaseGenerating
	c.state.PendingIndex = j.index

	if j.received == 0 {
		return
	}
	head, _ := c.cache.Partial(j.index)
	buf := make([]byte, 0, len(head)+len(j.pending))
	buf = append(append(buf, head...), j.pending...)
	c.startStream(j, buf)
}

func (c *Coordinator) startJob(k int, foreground bool) {
	sess := c.session
	if !c.cache.Has(k) {
		// drop bytes left behind by an aborted stream
		c.cache.Delete(k)
	}
	ctx, cancel := context.WithCancel(c.ctx)
	j := &job{
		session:    sess.ID,
		run:        c.run,
		index:      k,
		cancel:     cancel,
		foreground: foreground,
	}
	c.job = j
	if foreground {
		c.state.Phase = PhaseGenerating
		c.state.PendingIndex = k
	}

	req := speech.ChunkRequest{
		Text:       sess.Queue.Chunks[k].Text,
		Voice:      c.voice,
		SessionID:  sess.ID,
		ChunkIndex: k,
	}
	log.Debug("Requesting chunk", "session", sess.ID, "chunk", k, "foreground", foreground)
	go func() {
		res, err := c.src.Synthesize(ctx, req, jobSink{c: c, j: j})
		c.postJob(jobEvent{job: j, kind: jobDone, result: res, err: err})
	}()
}

func (c *Coordinator) handleJobEvent(ev jobEvent) {
	j := ev.job
	if j != c.job || !c.isCurrent(j.session, j.run) {
		return
	}

	switch ev.kind {
	case jobDelta:
		c.onDelta(j, ev.audio)
	case jobReset:
		c.onReset(j)
	case jobDone:
		c.job = nil
		j.cancel()
		if ev.err != nil {
			c.onJobError(j, ev.err)
			return
		}
		c.onJobDone(j, ev.result)
	}
}

func (c *Coordinator) onDelta(j *job, b []byte) {
	j.received += len(b)
	j.pending = append(j.pending, b...)
	if len(j.pending) >= cacheBatchBytes {
		c.flushPending(j)
	}

	if !j.foreground {
		return
	}
	if !j.streaming {
		c.startStream(j, b)
		return
	}
	if err := c.player.AppendStreamChunk(j.session, j.index, b); err != nil {
		c.fail(playerError("append audio", err))
	}
}

func (c *Coordinator) startStream(j *job, first []byte) {
	j.streaming = true
	c.state.DeliveryMode = speech.ModeStream
	c.handToPlayerStream(j.index, first)
}

func (c *Coordinator) flushPending(j *job) {
	if len(j.pending) == 0 {
		return
	}
	if err := c.cache.Append(j.index, j.pending); err != nil {
		log.Warn("Failed to cache streamed audio", "chunk", j.index, "error", err)
	}
	j.pending = nil
}

// onReset discards audio streamed by a failed attempt; the source retries.
func (c *Coordinator) onReset(j *job) {
	log.Debug("Discarding partial audio", "chunk", j.index, "received", humanize.Bytes(uint64(j.received)))
	c.cache.Delete(j.index)
	j.pending = nil
	j.received = 0
	if j.streaming {
		j.streaming = false
		if err := c.player.Stop(); err != nil {
			log.Warn("Failed to stop player", "error", err)
		}
		c.state.CurrentIndex = j.index - 1
		c.state.Phase = PhaseGenerating
		c.state.PendingIndex = j.index
	}
}

func (c *Coordinator) onJobDone(j *job, res speech.Result) {
	if err := c.cache.Replace(j.index, res.Audio); err != nil {
		log.Warn("Failed to cache chunk", "chunk", j.index, "error", err)
	}
	j.pending = nil
	c.diskStore(j.index, res.Audio)

	if !j.foreground {
		log.Debug("Prefetched chunk", "chunk", j.index, "mode", res.Mode, "size", humanize.Bytes(uint64(len(res.Audio))))
		return
	}

	c.state.DeliveryMode = res.Mode
	if j.streaming {
		c.state.PendingIndex = -1
		c.state.AudioDuration = audio.PCMDuration(len(res.Audio))
		if err := c.player.EndStream(j.session, j.index); err != nil {
			c.fail(playerError("end stream", err))
			return
		}
		if c.state.Phase == PhasePlaying {
			c.schedulePrefetch()
		}
		return
	}
	c.handToPlayer(j.index, res.Audio, false)
}

func (c *Coordinator) onJobError(j *job, err error) {
	var se *speech.Error
	if errors.As(err, &se) && se.Kind == speech.KindCanceled {
		return
	}
	c.cache.Delete(j.index)
	if !j.foreground {
		// the foreground request for this chunk will try again
		log.Warn("Prefetch failed", "chunk", j.index, "error", err)
		return
	}
	c.fail(err)
}

// handToPlayer gives complete chunk audio to the player.
func (c *Coordinator) handToPlayer(k int, data []byte, stream bool) {
	c.state.CurrentIndex = k
	c.state.PendingIndex = -1
	c.state.Phase = PhaseBuffering
	c.state.AudioTime = 0
	c.state.AudioDuration = 0
	if !stream {
		c.state.AudioDuration = audio.PCMDuration(len(data))
	}
	c.cache.SetPlayhead(k)

	err := c.player.Play(audio.PlayRequest{
		Audio:      data,
		MimeType:   c.src.MimeType(),
		Speed:      c.speed,
		Stream:     stream,
		SessionID:  c.session.ID,
		ChunkIndex: k,
	})
	if err != nil {
		c.fail(playerError("start playback", err))
	}
}

// handToPlayerStream starts progressive playback; the foreground request
// is still running, so PendingIndex stays set until EndStream.
func (c *Coordinator) handToPlayerStream(k int, first []byte) {
	c.handToPlayer(k, first, true)
	if c.state.Phase == PhaseBuffering {
		c.state.PendingIndex = k
	}
}

// schedulePrefetch requests CurrentIndex+1 after the inter-chunk delay.
func (c *Coordinator) schedulePrefetch() {
	sid, run := c.session.ID, c.run
	time.AfterFunc(c.opts.ChunkDelay, func() {
		c.post(func() {
			if !c.isCurrent(sid, run) || c.state.Phase != PhasePlaying {
				return
			}
			c.prefetch(c.state.CurrentIndex + 1)
		})
	})
}

func (c *Coordinator) prefetch(k int) {
	if c.session == nil || k >= c.session.Chunks() || c.job != nil {
		return
	}
	if c.cache.Has(k) {
		return
	}
	if data, ok := c.diskLookup(k); ok {
		if err := c.cache.Put(k, data); err == nil {
			return
		}
	}
	c.startJob(k, false)
}

func (c *Coordinator) diskLookup(k int) ([]byte, bool) {
	if c.disk == nil {
		return nil, false
	}
	key := c.src.CacheKey(c.session.Queue.Chunks[k].Text, c.voice)
	return c.disk.Get(key)
}

func (c *Coordinator) diskStore(k int, data []byte) {
	if c.disk == nil {
		return
	}
	key := c.src.CacheKey(c.session.Queue.Chunks[k].Text, c.voice)
	go func() {
		if err := c.disk.Put(key, data); err != nil {
			log.Debug("Failed to persist chunk", "chunk", k, "error", err)
		}
	}()
}
