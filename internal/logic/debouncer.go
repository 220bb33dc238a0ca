package logic

import "time"

// Debouncer turns periodic samples into confirmed state transitions.
// Not safe for concurrent use; the control loop owns it.
type Debouncer struct {
	kind          Kind
	threshold     time.Duration
	ctx           Context
	initialized   bool
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewDebouncer creates a debouncer for the given sensor kind.
// A reading must hold for threshold before it is confirmed.
// The startTime is used for calculating uptime in heartbeat events.
func NewDebouncer(kind Kind, threshold time.Duration, startTime time.Time) *Debouncer {
	return &Debouncer{
		kind:          kind,
		threshold:     threshold,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Init establishes the starting confirmed state from a first sample and
// returns the event that reports it. The initial state is always reported.
func (d *Debouncer) Init(input Input) Event {
	s := d.kind.StateOf(input.Active)
	d.ctx = Context{Confirmed: s, Pending: s}
	d.initialized = true
	return Event{
		Timestamp: input.Time,
		Reason:    ReasonInitial,
		State:     s,
	}
}

// Process applies one sample. Calling Process before Init initializes the
// debouncer from this sample and returns TransitionInitial.
func (d *Debouncer) Process(input Input) Result {
	if !d.initialized {
		e := d.Init(input)
		return Result{Transition: TransitionInitial, To: e.State, Event: &e}
	}

	reading := d.kind.StateOf(input.Active)

	if reading == d.ctx.Confirmed {
		// Back at (or still at) the confirmed state
		if !d.ctx.InTransition() {
			return Result{}
		}
		res := Result{
			Transition: TransitionCancelled,
			From:       d.ctx.Pending,
			To:         d.ctx.Confirmed,
			Elapsed:    input.Time.Sub(d.ctx.PendingSince),
		}
		d.ctx.Pending = d.ctx.Confirmed
		d.ctx.PendingSince = time.Time{}
		d.eventCounts.Cancelled++
		return res
	}

	if reading != d.ctx.Pending {
		// New candidate; evidence for any earlier candidate is discarded
		d.ctx.Pending = reading
		d.ctx.PendingSince = input.Time
		return Result{
			Transition: TransitionStarted,
			From:       d.ctx.Confirmed,
			To:         reading,
		}
	}

	elapsed := input.Time.Sub(d.ctx.PendingSince)
	if elapsed < d.threshold {
		return Result{}
	}

	prev := d.ctx.Confirmed
	d.ctx.Confirmed = d.ctx.Pending
	d.ctx.PendingSince = time.Time{}
	d.eventCounts.Confirmed++
	return Result{
		Transition: TransitionConfirmed,
		From:       prev,
		To:         d.ctx.Confirmed,
		Elapsed:    elapsed,
		Event: &Event{
			Timestamp: input.Time,
			Reason:    ReasonTransition,
			State:     d.ctx.Confirmed,
			Previous:  prev,
		},
	}
}

// IsInitialized returns whether the starting state has been established.
func (d *Debouncer) IsInitialized() bool {
	return d.initialized
}

// Kind returns the sensor kind.
func (d *Debouncer) Kind() Kind {
	return d.kind
}

// Threshold returns the debounce duration.
func (d *Debouncer) Threshold() time.Duration {
	return d.threshold
}

// Confirmed returns the last confirmed state (empty before Init).
func (d *Debouncer) Confirmed() State {
	return d.ctx.Confirmed
}

// Context returns a copy of the debounce context.
func (d *Debouncer) Context() Context {
	return d.ctx
}

// EventCountsSnapshot returns a copy of the current event counts.
func (d *Debouncer) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet initialized, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Debouncer) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if !d.initialized {
		return nil
	}
	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		State:     d.ctx.Confirmed,
		Counts:    d.eventCounts,
	}
}
