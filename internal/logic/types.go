// Package logic contains pure business logic for occupancy state tracking.
// This package has NO external dependencies (no GPIO, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Kind identifies which sensor variant a node runs.
type Kind string

const (
	KindLock Kind = "lock" // Hall-effect bathroom lock sensor
	KindDoor Kind = "door" // magnetic door reed switch
)

// ParseKind converts a config string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLock, KindDoor:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown sensor kind %q (want %q or %q)", s, KindLock, KindDoor)
}

// StateOf maps a logical "active" reading to the kind's named state.
// Active means locked for a lock sensor and open for a door sensor.
func (k Kind) StateOf(active bool) State {
	if k == KindDoor {
		if active {
			return StateOpen
		}
		return StateClosed
	}
	if active {
		return StateLocked
	}
	return StateUnlocked
}

// State represents the logical state of the sensed object.
type State string

const (
	StateLocked   State = "LOCKED"
	StateUnlocked State = "UNLOCKED"
	StateOpen     State = "OPEN"
	StateClosed   State = "CLOSED"
)

// Active reports the boolean carried on the wire (isLocked / isOpen).
func (s State) Active() bool {
	return s == StateLocked || s == StateOpen
}

// Context is the debounce state owned by the control loop.
type Context struct {
	// Last state reported to the backend
	Confirmed State
	// State currently accumulating evidence; equals Confirmed when idle
	Pending State
	// When Pending first differed from Confirmed; zero when idle
	PendingSince time.Time
}

// InTransition reports whether a candidate transition is accumulating.
func (c Context) InTransition() bool {
	return c.Pending != c.Confirmed
}

// Input represents a single sample of the sensor.
type Input struct {
	Active bool // already mapped from raw polarity/threshold
	Time   time.Time
}

// Transition describes what a single Process call did to the context.
type Transition string

const (
	TransitionNone      Transition = ""
	TransitionInitial   Transition = "INITIAL"
	TransitionStarted   Transition = "STARTED"
	TransitionCancelled Transition = "CANCELLED"
	TransitionConfirmed Transition = "CONFIRMED"
)

// Reason tells the backend why an event was sent.
type Reason string

const (
	ReasonInitial    Reason = "initial"
	ReasonTransition Reason = "transition"
)

// Event is a confirmed state to be delivered to the webhook.
type Event struct {
	Timestamp time.Time
	Reason    Reason
	State     State
	Previous  State // empty for the initial report
}

// Result is returned by Process for every sample.
type Result struct {
	Transition Transition
	From       State
	To         State
	// Time the candidate was pending before it was confirmed or cancelled
	Elapsed time.Duration
	// Non-nil only for TransitionInitial and TransitionConfirmed
	Event *Event
}

// EventCounts tracks confirmations and cancellations since startup.
type EventCounts struct {
	Confirmed int
	Cancelled int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	State     State
	Counts    EventCounts
}
