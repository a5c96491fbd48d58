// Package narration coordinates a narration session: it owns the chunk
// queue, requests audio ahead of playback, hands audio to the player and
// applies transport controls.
//
// All session and playback state is owned by a single goroutine started
// with Coordinator.Run. Public methods send closures to that goroutine and
// wait for the reply, and observers receive value snapshots. Work that
// outlives a call (synthesis, timers) posts back tagged with the session
// and run it was started for; anything whose tags are stale is dropped.
package narration
