// Package frame implements the wire codec for a single RPC message: an
// ordered JSON array `[event, taskId, ...payload]`.
//
// Unlike a raw-TCP protocol, a WebSocket text message already delivers one
// complete application message per read, so there is no sticky-packet
// problem to solve at this layer (contrast with a fixed-size header +
// body-length framing scheme over a byte stream) — the event tag and task id
// are simply the first two elements of the array.
package frame

import (
	"encoding/json"
	"fmt"
)

// Event is the frame's leading tag, mirroring the wire grammar table.
type Event int

const (
	CONNECT Event = iota + 1
	INVOKE
	RETURN
	THROW
	YIELD
	PUBLISH
	PING
	PONG
)

func (e Event) String() string {
	switch e {
	case CONNECT:
		return "CONNECT"
	case INVOKE:
		return "INVOKE"
	case RETURN:
		return "RETURN"
	case THROW:
		return "THROW"
	case YIELD:
		return "YIELD"
	case PUBLISH:
		return "PUBLISH"
	case PING:
		return "PING"
	case PONG:
		return "PONG"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Frame is the decoded form of one wire message. TaskID is an int64 for
// every client-originated task and for PING/PONG timestamps, and a string
// for PUBLISH topics and the CONNECT frame's serverId (spec.md §4.5).
type Frame struct {
	Event   Event
	TaskID  any // int64 or string
	Payload []json.RawMessage
}

// IntTaskID returns TaskID as an int64, for the common client-task case.
func (f *Frame) IntTaskID() (int64, bool) {
	switch v := f.TaskID.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// StringTaskID returns TaskID as a string, for PUBLISH topics.
func (f *Frame) StringTaskID() (string, bool) {
	s, ok := f.TaskID.(string)
	return s, ok
}

// Encode serializes event, taskId and payload elements into one JSON array.
// A nil trailing payload element is omitted entirely (mirrors the original
// "if the last argument is empty, do not send it" trimming rule), so a
// RETURN with no value encodes as `[3, 7]` rather than `[3, 7, null]`.
func Encode(event Event, taskID any, payload ...any) ([]byte, error) {
	arr := make([]any, 0, 2+len(payload))
	arr = append(arr, int(event), taskID)

	end := len(payload)
	for end > 0 && payload[end-1] == nil {
		end--
	}
	arr = append(arr, payload[:end]...)

	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("frame: encode: %w", err)
	}
	return data, nil
}

// Decode parses a raw wire message into a Frame. It returns an error for any
// structurally invalid input; callers must treat a decode error as a dropped
// frame (per spec.md §4.1/§6.2), never as a fatal condition.
func Decode(data []byte) (*Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("frame: not a JSON array: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("frame: expected at least [event, taskId], got %d elements", len(raw))
	}

	var eventNum int
	if err := json.Unmarshal(raw[0], &eventNum); err != nil {
		return nil, fmt.Errorf("frame: event tag is not an integer: %w", err)
	}
	event := Event(eventNum)
	if event < CONNECT || event > PONG {
		return nil, fmt.Errorf("frame: unknown event %d", eventNum)
	}

	taskID, err := decodeTaskID(raw[1])
	if err != nil {
		return nil, err
	}

	return &Frame{Event: event, TaskID: taskID, Payload: raw[2:]}, nil
}

func decodeTaskID(raw json.RawMessage) (any, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return int64(asNumber), nil
	}
	return nil, fmt.Errorf("frame: taskId is neither string nor number")
}

// DecodePayload unmarshals payload element i into v. It reports ok=false
// when the frame carries fewer than i+1 payload elements (a frame ending
// early is valid — e.g. a bare RETURN carries no value).
func (f *Frame) DecodePayload(i int, v any) (ok bool, err error) {
	if i >= len(f.Payload) {
		return false, nil
	}
	if err := json.Unmarshal(f.Payload[i], v); err != nil {
		return true, fmt.Errorf("frame: decode payload[%d]: %w", i, err)
	}
	return true, nil
}
