package frame

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode(INVOKE, int64(7), "Detail", "setName", []any{"Mr. Handsome"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.Event != INVOKE {
		t.Errorf("Event mismatch: got %v, want %v", f.Event, INVOKE)
	}
	id, ok := f.IntTaskID()
	if !ok || id != 7 {
		t.Errorf("TaskID mismatch: got %v", f.TaskID)
	}

	var module, method string
	if _, err := f.DecodePayload(0, &module); err != nil || module != "Detail" {
		t.Errorf("payload[0] = %q, err=%v", module, err)
	}
	if _, err := f.DecodePayload(1, &method); err != nil || method != "setName" {
		t.Errorf("payload[1] = %q, err=%v", method, err)
	}
	var args []string
	if _, err := f.DecodePayload(2, &args); err != nil || len(args) != 1 || args[0] != "Mr. Handsome" {
		t.Errorf("payload[2] = %v, err=%v", args, err)
	}
}

func TestEncodeTrimsTrailingNilPayload(t *testing.T) {
	data, err := Encode(RETURN, int64(1), nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("not a JSON array: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected [event, taskId] only, got %d elements: %s", len(raw), data)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"event":1}`),
		[]byte(`[1]`),
		[]byte(`["not-a-number", 1]`),
		[]byte(`[99, 1]`),
	}
	for _, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Errorf("Decode(%s) expected error, got nil", c)
		}
	}
}

func TestDecodeStringTaskIDForTopics(t *testing.T) {
	data, err := Encode(PUBLISH, "news.headlines", "GitHub launches")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	topic, ok := f.StringTaskID()
	if !ok || topic != "news.headlines" {
		t.Errorf("StringTaskID() = %q, %v", topic, ok)
	}
}

func TestEventString(t *testing.T) {
	if CONNECT.String() != "CONNECT" {
		t.Errorf("CONNECT.String() = %q", CONNECT.String())
	}
	if Event(0).String() != "Event(0)" {
		t.Errorf("Event(0).String() = %q", Event(0).String())
	}
}
