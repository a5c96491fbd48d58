// Package speech synthesizes audio for a single chunk of text.
//
// A Source issues one request per chunk through a Transport, either as a
// server-sent event stream of base64 audio deltas or as one buffered
// response. It owns the retry policy, the fallback from streaming to batch
// delivery, and the process-wide delivery statistics that drive the
// adaptive mode and chunk ceiling heuristics.
package speech
