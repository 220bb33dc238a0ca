package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     EventShutdown,
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     EventReconnected,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	system := parsed["system"].(map[string]interface{})
	if _, exists := system["reason"]; exists {
		t.Error("RECONNECTED should not have reason field")
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: EventHeartbeat, RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 10, 30, 0, 0, loc),
		Event:     EventStartup,
	})

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestSystemPayloadRoundTrip(t *testing.T) {
	original := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     EventRestart,
		Reason:    "WATCHDOG",
	}
	payload, _ := FormatSystemPayload(original)

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	ts, err := time.Parse(time.RFC3339, parsed.System.Timestamp)
	if err != nil {
		t.Fatalf("parse timestamp: %v", err)
	}
	if !ts.Equal(original.Timestamp) || parsed.System.Event != original.Event || parsed.System.Reason != original.Reason {
		t.Errorf("round trip mismatch: %+v", parsed.System)
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventStartup, Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventHeartbeat})

	if got := f.Events(); len(got) != 2 || got[0] != EventStartup || got[1] != EventHeartbeat {
		t.Fatalf("unexpected events: %v", got)
	}
	if len(f.SystemPayloads) != 2 {
		t.Errorf("expected 2 payloads, got %d", len(f.SystemPayloads))
	}
	if !f.SystemEvents[0].Retained || f.SystemEvents[1].Retained {
		t.Error("retained flag not preserved")
	}
}

func TestFakePublisherPublishSystemError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishSystem(SystemEvent{Event: EventShutdown}); err == nil {
		t.Error("expected error")
	}
	if len(f.SystemEvents) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	f.PublishSystem(SystemEvent{Event: EventStartup})
	f.Close()

	if !f.Closed || !f.IsConnected() {
		t.Error("expected closed and connected")
	}

	f.Reset()
	if f.Closed || f.IsConnected() || len(f.Events()) != 0 || f.SystemPayloads != nil {
		t.Error("Reset should clear all state")
	}

	f.PublishSystem(SystemEvent{Event: EventHeartbeat})
	if len(f.Events()) != 1 {
		t.Error("publisher should be reusable after Reset")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.PublishSystem(SystemEvent{Event: EventStartup}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if (NopPublisher{}).IsConnected() {
		t.Error("NopPublisher should never be connected")
	}
}
