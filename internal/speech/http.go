package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// HTTPTransport talks to an OpenAI-compatible POST {base}/audio/speech
// endpoint.
type HTTPTransport struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPTransport creates a transport for baseURL. An empty baseURL selects
// DefaultBaseURL.
func NewHTTPTransport(baseURL, apiKey string) *HTTPTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		// No overall timeout; Source bounds opens, reads and batch requests.
		Client: &http.Client{},
	}
}

// Synthesize implements Transport.
func (t *HTTPTransport) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	req.StreamFormat = ""
	resp, err := t.do(ctx, req, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}

// Stream implements Transport.
func (t *HTTPTransport) Stream(ctx context.Context, req Request) (EventStream, error) {
	if req.StreamFormat == "" {
		req.StreamFormat = "sse"
	}
	resp, err := t.do(ctx, req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, &StatusError{
			Code:    http.StatusUnsupportedMediaType,
			Message: fmt.Sprintf("stream_format not supported, got content type %q", ct),
		}
	}
	return newSSEStream(resp.Body), nil
}

func (t *HTTPTransport) do(ctx context.Context, req Request, accept string) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)
	}
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Message:    errorMessage(msg),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return resp, nil
}

// errorMessage extracts {"error":{"message":...}} when present.
func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// sseStream pumps framed events from a response body into a channel so that
// Next can honor a per-read deadline.
type sseStream struct {
	body  io.ReadCloser
	items chan sseItem
	done  chan struct{}
	once  sync.Once
}

type sseItem struct {
	event RawEvent
	err   error
}

func newSSEStream(body io.ReadCloser) *sseStream {
	s := &sseStream{
		body:  body,
		items: make(chan sseItem, 16),
		done:  make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *sseStream) pump() {
	defer close(s.items)
	r := newSSEReader(s.body)
	for {
		ev, err := r.ReadEvent()
		select {
		case s.items <- sseItem{event: ev, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *sseStream) Next(ctx context.Context) (RawEvent, error) {
	select {
	case it, ok := <-s.items:
		if !ok {
			return RawEvent{}, io.EOF
		}
		return it.event, it.err
	case <-ctx.Done():
		return RawEvent{}, ctx.Err()
	}
}

func (s *sseStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.body.Close()
}

// sseReader reads "event:" and "data:" framed events separated by blank
// lines.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReaderSize(r, 64<<10)}
}

// ReadEvent returns the next event, or io.EOF once the body is exhausted.
func (s *sseReader) ReadEvent() (RawEvent, error) {
	var (
		ev   RawEvent
		data []string
		seen bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && seen {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			return RawEvent{}, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if seen {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}
}
