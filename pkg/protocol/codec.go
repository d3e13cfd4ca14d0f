package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidJSON   = errors.New("frame is not valid JSON")
	ErrMissingEvent  = errors.New("frame has no event name")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrNotInbound    = errors.New("event cannot be sent by clients")
	ErrMissingTarget = errors.New("room event without target")
)

// Frame is the envelope every websocket text frame carries.
//
//	{"event": "shapeCreated", "target": "<roomId>", "payload": {...}}
//
// Target is only used by room events.
type Frame struct {
	Event   string
	Target  string
	Message Message
}

type wireFrame struct {
	Event   string  `json:"event"`
	Target  string  `json:"target,omitempty"`
	Payload Message `json:"payload,omitempty"`
}

// Parse decodes any known frame, inbound or outbound, into its concrete
// message type and validates it.
func Parse(data []byte) (*Frame, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	res := gjson.GetManyBytes(data, "event", "target", "payload")
	event, target, payload := res[0], res[1], res[2]

	if event.Type != gjson.String || event.Str == "" {
		return nil, ErrMissingEvent
	}
	k, ok := kinds[event.Str]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Str)
	}

	msg := k.new()
	if payload.Exists() && payload.Type != gjson.Null {
		if err := json.Unmarshal([]byte(payload.Raw), msg); err != nil {
			return nil, fmt.Errorf("%s payload: %w", event.Str, err)
		}
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%s payload: %w", event.Str, err)
	}

	return &Frame{Event: event.Str, Target: target.String(), Message: msg}, nil
}

// Decode parses a frame received from a client. Relay-only events are
// rejected and room events must name their room in target.
func Decode(data []byte) (*Frame, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	switch kinds[f.Event].scope {
	case ScopeClient:
		return nil, fmt.Errorf("%w: %q", ErrNotInbound, f.Event)
	case ScopeRoom:
		if f.Target == "" {
			return nil, fmt.Errorf("%w: %q", ErrMissingTarget, f.Event)
		}
	}
	return f, nil
}

// Encode builds an outbound frame. A nil payload is omitted.
func Encode(event string, payload Message) ([]byte, error) {
	return EncodeTo(event, "", payload)
}

// EncodeTo builds a frame addressed to a room, the form clients send room events in.
func EncodeTo(event, target string, payload Message) ([]byte, error) {
	if _, ok := kinds[event]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	b, err := json.Marshal(wireFrame{Event: event, Target: target, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return b, nil
}
