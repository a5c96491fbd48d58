package speech

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind tags a parsed stream event.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventDelta
	EventTerminal
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Event is the interpreted form of a RawEvent. Audio is set for deltas only.
type Event struct {
	Kind  EventKind
	Type  string
	Audio []byte
}

// ParseEvent interprets a raw event. Payloads that are not JSON or carry no
// audio are reported as EventUnknown. An error is returned only when a delta
// carries audio that is not valid base64.
func ParseEvent(raw RawEvent) (Event, error) {
	data := strings.TrimSpace(raw.Data)
	if data == "[DONE]" {
		return Event{Kind: EventTerminal, Type: "done"}, nil
	}

	var payload map[string]any
	if data == "" || json.Unmarshal([]byte(data), &payload) != nil {
		if isTerminalType(raw.Name) {
			return Event{Kind: EventTerminal, Type: raw.Name}, nil
		}
		return Event{Kind: EventUnknown, Type: raw.Name}, nil
	}

	typ, _ := payload["type"].(string)
	if typ == "" {
		typ = raw.Name
	}
	if isTerminalType(typ) {
		return Event{Kind: EventTerminal, Type: typ}, nil
	}

	encoded, ok := audioField(payload)
	if !ok || encoded == "" {
		return Event{Kind: EventUnknown, Type: typ}, nil
	}
	audio, err := decodeBase64(encoded)
	if err != nil {
		return Event{Kind: EventUnknown, Type: typ}, fmt.Errorf("decode audio delta: %w", err)
	}
	return Event{Kind: EventDelta, Type: typ, Audio: audio}, nil
}

func isTerminalType(typ string) bool {
	return typ == "done" || strings.HasSuffix(typ, ".done") || typ == "[DONE]"
}

// audioField finds the base64 payload in the shapes seen from compatible
// servers: {"delta"}, {"audio"}, {"audio":{"data"}} and {"data":{"audio"}}.
func audioField(payload map[string]any) (string, bool) {
	if s, ok := payload["delta"].(string); ok {
		return s, true
	}
	switch v := payload["audio"].(type) {
	case string:
		return v, true
	case map[string]any:
		if s, ok := v["data"].(string); ok {
			return s, true
		}
	}
	if d, ok := payload["data"].(map[string]any); ok {
		if s, ok := d["audio"].(string); ok {
			return s, true
		}
	}
	return "", false
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
