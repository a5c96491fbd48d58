package speech

import (
	"context"
	"fmt"
	"time"
)

// Request is the wire shape of a speech synthesis call.
type Request struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	Instructions   string  `json:"instructions,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
	StreamFormat   string  `json:"stream_format,omitempty"`
}

// RawEvent is a single framed server-sent event before interpretation.
type RawEvent struct {
	Name string
	Data string
}

// EventStream yields raw events until io.EOF. Next must return promptly
// with ctx.Err() once ctx is done.
type EventStream interface {
	Next(ctx context.Context) (RawEvent, error)
	Close() error
}

// Transport performs synthesis requests against a remote service.
type Transport interface {
	// Synthesize returns the complete audio payload for req.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	// Stream opens an event stream for req.
	Stream(ctx context.Context, req Request) (EventStream, error)
}

// StatusError is returned by a Transport when the service answers with a
// non-success HTTP status.
type StatusError struct {
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("speech service returned status %d", e.Code)
	}
	return fmt.Sprintf("speech service returned status %d: %s", e.Code, e.Message)
}

// MimeType maps a response format to the MIME type handed to the player.
func MimeType(format string) string {
	switch format {
	case "", "pcm":
		return "audio/pcm"
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
