package webhook

import (
	"context"
	"sync"
)

// FakeNotifier records posted events for test assertions.
type FakeNotifier struct {
	mu sync.Mutex

	// Events contains all events that were posted.
	Events []Event

	// Payloads contains the JSON bodies that would have been sent.
	Payloads [][]byte

	// Outcome is returned by every call. Defaults to a 200.
	Outcome *Outcome
}

// NewFakeNotifier creates a FakeNotifier that reports success.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

// PostStateChange records the event.
func (f *FakeNotifier) PostStateChange(_ context.Context, event Event) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Events = append(f.Events, event)
	if payload, err := FormatPayload(event); err == nil {
		f.Payloads = append(f.Payloads, payload)
	}

	if f.Outcome != nil {
		return *f.Outcome
	}
	return Outcome{StatusCode: 200, TransportOK: true}
}

// Posted returns a copy of the recorded events.
func (f *FakeNotifier) Posted() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.Events...)
}

// Reset clears recorded events.
func (f *FakeNotifier) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.Outcome = nil
}
