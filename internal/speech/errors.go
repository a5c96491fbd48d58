package speech

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrStreamStalled indicates no event arrived within the read timeout.
	ErrStreamStalled = errors.New("audio stream stalled")

	// ErrEmptyStream indicates a stream ended without any audio bytes.
	ErrEmptyStream = errors.New("audio stream ended without audio")

	// ErrEmptyAudio indicates a batch response carried no audio.
	ErrEmptyAudio = errors.New("speech service returned no audio")
)

// ErrorKind groups failures by how the pipeline reacts to them.
type ErrorKind int

const (
	// KindTransient failures are retried, then surfaced.
	KindTransient ErrorKind = iota
	// KindUnsupported means the service rejected the streaming request
	// shape; the chunk is retried in batch mode.
	KindUnsupported
	// KindIntegrity means a stream misbehaved; one batch fallback is tried.
	KindIntegrity
	// KindCanceled is never surfaced.
	KindCanceled
	// KindFatalInput rejects input before any network activity.
	KindFatalInput
	// KindRejected is a non-retryable HTTP rejection.
	KindRejected
	// KindPlayer is an audio output fault.
	KindPlayer
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnsupported:
		return "unsupported"
	case KindIntegrity:
		return "integrity"
	case KindCanceled:
		return "canceled"
	case KindFatalInput:
		return "fatal_input"
	case KindRejected:
		return "rejected"
	case KindPlayer:
		return "player"
	default:
		return "unknown"
	}
}

// Error is a classified synthesis failure.
type Error struct {
	Kind       ErrorKind
	Status     int
	Message    string
	RetryAfter time.Duration
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether another attempt may succeed.
func (e *Error) IsRetryable() bool {
	return e.Kind == KindTransient
}

// IsFallback reports whether the chunk should be retried in batch mode.
func (e *Error) IsFallback() bool {
	return e.Kind == KindUnsupported || e.Kind == KindIntegrity
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Classify maps any error returned by a Transport or the stream reader onto
// an *Error. A nil error yields nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Message: "request canceled", Cause: err}
	}
	if errors.Is(err, ErrStreamStalled) || errors.Is(err, ErrEmptyStream) {
		return &Error{Kind: KindIntegrity, Message: err.Error(), Cause: err}
	}

	var status *StatusError
	if errors.As(err, &status) {
		return classifyStatus(status)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Message: "request timed out", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindTransient, Message: "network error", Cause: err}
	}
	return &Error{Kind: KindTransient, Message: err.Error(), Cause: err}
}

func classifyStatus(s *StatusError) *Error {
	e := &Error{Status: s.Code, Message: s.Message, RetryAfter: s.RetryAfter, Cause: s}
	switch {
	case s.Code == http.StatusTooManyRequests,
		s.Code == http.StatusRequestTimeout,
		s.Code >= 500:
		e.Kind = KindTransient
	case isUnsupportedStream(s):
		e.Kind = KindUnsupported
	default:
		e.Kind = KindRejected
	}
	return e
}

// isUnsupportedStream recognises a service that does not accept the
// streaming request shape.
func isUnsupportedStream(s *StatusError) bool {
	switch s.Code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
	default:
		return false
	}
	msg := strings.ToLower(s.Message)
	return strings.Contains(msg, "stream") || strings.Contains(msg, "not supported")
}
