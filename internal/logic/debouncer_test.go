package logic

import (
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewDebouncer(t *testing.T) {
	d := NewDebouncer(KindLock, 100*time.Millisecond, t0)
	if d == nil {
		t.Fatal("NewDebouncer returned nil")
	}
	if d.Threshold() != 100*time.Millisecond {
		t.Errorf("expected threshold 100ms, got %v", d.Threshold())
	}
	if d.IsInitialized() {
		t.Error("new debouncer should not be initialized")
	}
	if d.Confirmed() != "" {
		t.Errorf("expected empty confirmed state, got %s", d.Confirmed())
	}
	if !d.lastHeartbeat.Equal(t0) {
		t.Errorf("expected lastHeartbeat %v, got %v", t0, d.lastHeartbeat)
	}
}

func TestKindStateOf(t *testing.T) {
	tests := []struct {
		kind   Kind
		active bool
		want   State
	}{
		{KindLock, true, StateLocked},
		{KindLock, false, StateUnlocked},
		{KindDoor, true, StateOpen},
		{KindDoor, false, StateClosed},
	}
	for _, tt := range tests {
		got := tt.kind.StateOf(tt.active)
		if got != tt.want {
			t.Errorf("%s.StateOf(%v) = %s, want %s", tt.kind, tt.active, got, tt.want)
		}
		if got.Active() != tt.active {
			t.Errorf("%s.Active() = %v, want %v", got, got.Active(), tt.active)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"lock", "door"} {
		k, err := ParseKind(s)
		if err != nil {
			t.Errorf("ParseKind(%q): unexpected error %v", s, err)
		}
		if string(k) != s {
			t.Errorf("ParseKind(%q) = %q", s, k)
		}
	}
	if _, err := ParseKind("window"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestInitReportsInitialState(t *testing.T) {
	d := NewDebouncer(KindDoor, 1200*time.Millisecond, t0)

	e := d.Init(Input{Active: true, Time: t0})
	if e.Reason != ReasonInitial {
		t.Errorf("expected initial reason, got %s", e.Reason)
	}
	if e.State != StateOpen {
		t.Errorf("expected OPEN, got %s", e.State)
	}
	if e.Previous != "" {
		t.Errorf("expected no previous state, got %s", e.Previous)
	}

	ctx := d.Context()
	if ctx.Confirmed != StateOpen || ctx.Pending != StateOpen {
		t.Errorf("expected confirmed=pending=OPEN, got %+v", ctx)
	}
	if !ctx.PendingSince.IsZero() {
		t.Errorf("expected no pending time, got %v", ctx.PendingSince)
	}
}

func TestProcessBeforeInitInitializes(t *testing.T) {
	d := NewDebouncer(KindLock, 100*time.Millisecond, t0)

	res := d.Process(Input{Active: false, Time: t0})
	if res.Transition != TransitionInitial {
		t.Fatalf("expected INITIAL, got %q", res.Transition)
	}
	if res.Event == nil || res.Event.State != StateUnlocked {
		t.Fatalf("expected initial event UNLOCKED, got %+v", res.Event)
	}
	if !d.IsInitialized() {
		t.Error("expected debouncer to be initialized")
	}
}

func TestNoEventsForStableState(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, false)

	for i := 1; i <= 20; i++ {
		res := d.Process(Input{Active: false, Time: t0.Add(time.Duration(i) * 50 * time.Millisecond)})
		if res.Transition != TransitionNone {
			t.Errorf("tick %d: expected no transition, got %s", i, res.Transition)
		}
	}
}

// Scenario: threshold 100ms, tick 50ms, confirmed UNLOCKED.
// Readings LOCKED, LOCKED, LOCKED, UNLOCKED, LOCKED.
func TestLockScenario(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, false)
	tick := 50 * time.Millisecond

	readings := []bool{true, true, true, false, true}
	want := []Transition{
		TransitionStarted,
		TransitionNone,
		TransitionConfirmed,
		TransitionStarted,
		TransitionCancelled,
	}

	var events []Event
	for i, r := range readings {
		res := d.Process(Input{Active: r, Time: t0.Add(time.Duration(i+1) * tick)})
		if res.Transition != want[i] {
			t.Errorf("tick %d: expected %q, got %q", i+1, want[i], res.Transition)
		}
		if res.Event != nil {
			events = append(events, *res.Event)
		}
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].State != StateLocked || !events[0].State.Active() {
		t.Errorf("expected LOCKED (isLocked=true), got %s", events[0].State)
	}
	if events[0].Previous != StateUnlocked {
		t.Errorf("expected previous UNLOCKED, got %s", events[0].Previous)
	}
	if !events[0].Timestamp.Equal(t0.Add(3 * tick)) {
		t.Errorf("expected confirmation at tick 3, got %v", events[0].Timestamp)
	}
	if d.Confirmed() != StateLocked {
		t.Errorf("expected confirmed LOCKED, got %s", d.Confirmed())
	}
}

func TestBounceShorterThanDebounce(t *testing.T) {
	d := setupDebouncer(t, KindDoor, 1200*time.Millisecond, false) // CLOSED
	tick := 50 * time.Millisecond

	// Open for 1100ms worth of ticks then close again
	i := 1
	for ; i <= 23; i++ {
		res := d.Process(Input{Active: true, Time: t0.Add(time.Duration(i) * tick)})
		if res.Event != nil {
			t.Fatalf("tick %d: unexpected event %+v", i, res.Event)
		}
	}
	res := d.Process(Input{Active: false, Time: t0.Add(time.Duration(i) * tick)})
	if res.Transition != TransitionCancelled {
		t.Errorf("expected CANCELLED, got %q", res.Transition)
	}
	if res.From != StateOpen || res.To != StateClosed {
		t.Errorf("expected OPEN->CLOSED cancellation, got %s->%s", res.From, res.To)
	}
	if d.Confirmed() != StateClosed {
		t.Errorf("expected CLOSED after bounce, got %s", d.Confirmed())
	}
	if c := d.EventCountsSnapshot(); c.Confirmed != 0 || c.Cancelled != 1 {
		t.Errorf("expected 0 confirmed / 1 cancelled, got %+v", c)
	}
}

func TestConfirmationAtFirstTickPastThreshold(t *testing.T) {
	tests := []struct {
		threshold time.Duration
		tick      time.Duration
	}{
		{100 * time.Millisecond, 50 * time.Millisecond},
		{1200 * time.Millisecond, 50 * time.Millisecond},
		{250 * time.Millisecond, 100 * time.Millisecond},
		{75 * time.Millisecond, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		d := setupDebouncer(t, KindLock, tt.threshold, false)

		// Ticks after the first differing sample needed to reach the threshold
		need := int((tt.threshold + tt.tick - 1) / tt.tick)

		confirmedAt := -1
		events := 0
		for i := 0; i <= need+10; i++ {
			res := d.Process(Input{Active: true, Time: t0.Add(time.Second + time.Duration(i)*tt.tick)})
			if res.Event != nil {
				events++
				if confirmedAt < 0 {
					confirmedAt = i
				}
			}
		}

		if events != 1 {
			t.Errorf("threshold=%v tick=%v: expected exactly 1 event, got %d", tt.threshold, tt.tick, events)
		}
		if confirmedAt != need {
			t.Errorf("threshold=%v tick=%v: expected confirmation %d ticks after start, got %d", tt.threshold, tt.tick, need, confirmedAt)
		}
	}
}

func TestDebounceExactTiming(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, true) // LOCKED

	d.Process(Input{Active: false, Time: t0.Add(time.Second)})

	res := d.Process(Input{Active: false, Time: t0.Add(time.Second + 99*time.Millisecond)})
	if res.Event != nil {
		t.Fatal("expected no event at 99ms")
	}

	res = d.Process(Input{Active: false, Time: t0.Add(time.Second + 100*time.Millisecond)})
	if res.Event == nil {
		t.Fatal("expected event at exactly 100ms")
	}
	if res.Elapsed != 100*time.Millisecond {
		t.Errorf("expected elapsed 100ms, got %v", res.Elapsed)
	}
}

func TestPendingRestartsOnFlicker(t *testing.T) {
	d := setupDebouncer(t, KindDoor, 200*time.Millisecond, false) // CLOSED
	tick := 50 * time.Millisecond
	at := func(i int) time.Time { return t0.Add(time.Duration(i) * tick) }

	d.Process(Input{Active: true, Time: at(1)})  // OPEN pending since 1
	d.Process(Input{Active: true, Time: at(2)})  // 50ms
	d.Process(Input{Active: false, Time: at(3)}) // flicker back, cancelled
	d.Process(Input{Active: true, Time: at(4)})  // OPEN pending since 4

	ctx := d.Context()
	if !ctx.PendingSince.Equal(at(4)) {
		t.Fatalf("expected pending timer restarted at tick 4, got %v", ctx.PendingSince)
	}

	// 200ms measured from tick 1 would be tick 5; must not confirm there
	if res := d.Process(Input{Active: true, Time: at(5)}); res.Event != nil {
		t.Fatal("confirmed using evidence from before the flicker")
	}
	d.Process(Input{Active: true, Time: at(6)})
	d.Process(Input{Active: true, Time: at(7)})
	res := d.Process(Input{Active: true, Time: at(8)})
	if res.Event == nil || res.Event.State != StateOpen {
		t.Fatalf("expected OPEN confirmed at tick 8, got %+v", res)
	}
}

func TestIdempotentCancellation(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, false)

	d.Process(Input{Active: true, Time: t0.Add(50 * time.Millisecond)})
	res := d.Process(Input{Active: false, Time: t0.Add(100 * time.Millisecond)})
	if res.Transition != TransitionCancelled {
		t.Fatalf("expected CANCELLED, got %q", res.Transition)
	}

	for i := 3; i < 10; i++ {
		res := d.Process(Input{Active: false, Time: t0.Add(time.Duration(i) * 50 * time.Millisecond)})
		if res.Transition != TransitionNone {
			t.Errorf("tick %d: expected no transition after cancellation, got %q", i, res.Transition)
		}
		ctx := d.Context()
		if ctx.Pending != ctx.Confirmed {
			t.Errorf("tick %d: expected pending == confirmed, got %+v", i, ctx)
		}
	}

	if c := d.EventCountsSnapshot(); c.Cancelled != 1 {
		t.Errorf("expected exactly 1 cancellation, got %d", c.Cancelled)
	}
}

func TestBackToBackTransitions(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, false)

	d.Process(Input{Active: true, Time: t0.Add(1 * time.Second)})
	res := d.Process(Input{Active: true, Time: t0.Add(1100 * time.Millisecond)})
	if res.Event == nil || res.Event.State != StateLocked {
		t.Fatalf("expected LOCKED event, got %+v", res)
	}

	d.Process(Input{Active: false, Time: t0.Add(1150 * time.Millisecond)})
	res = d.Process(Input{Active: false, Time: t0.Add(1250 * time.Millisecond)})
	if res.Event == nil || res.Event.State != StateUnlocked {
		t.Fatalf("expected UNLOCKED event, got %+v", res)
	}
	if res.Event.Previous != StateLocked {
		t.Errorf("expected previous LOCKED, got %s", res.Event.Previous)
	}
}

func TestPendingSinceInvariant(t *testing.T) {
	d := setupDebouncer(t, KindDoor, 150*time.Millisecond, false)
	rng := rand.New(rand.NewSource(42))

	for i := 1; i < 2000; i++ {
		// Biased towards runs so that some transitions confirm
		active := d.Confirmed().Active()
		if rng.Intn(4) == 0 {
			active = !active
		}
		d.Process(Input{Active: active, Time: t0.Add(time.Duration(i) * 50 * time.Millisecond)})

		ctx := d.Context()
		if ctx.InTransition() == ctx.PendingSince.IsZero() {
			t.Fatalf("tick %d: pending_since set=%v but in transition=%v", i, !ctx.PendingSince.IsZero(), ctx.InTransition())
		}
	}
}

func TestEventCountsIncrement(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, false)

	d.Process(Input{Active: true, Time: t0.Add(100 * time.Millisecond)})
	d.Process(Input{Active: true, Time: t0.Add(200 * time.Millisecond)}) // confirmed LOCKED
	d.Process(Input{Active: false, Time: t0.Add(300 * time.Millisecond)})
	d.Process(Input{Active: true, Time: t0.Add(350 * time.Millisecond)}) // cancelled

	c := d.EventCountsSnapshot()
	if c.Confirmed != 1 {
		t.Errorf("expected 1 confirmed, got %d", c.Confirmed)
	}
	if c.Cancelled != 1 {
		t.Errorf("expected 1 cancelled, got %d", c.Cancelled)
	}
}

func setupDebouncer(t *testing.T, kind Kind, threshold time.Duration, active bool) *Debouncer {
	t.Helper()
	d := NewDebouncer(kind, threshold, t0)
	d.Init(Input{Active: active, Time: t0})
	if !d.IsInitialized() {
		t.Fatal("failed to initialize debouncer")
	}
	return d
}

// Heartbeat tests

func TestCheckHeartbeatDisabledWithZeroInterval(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, false)
	if hb := d.CheckHeartbeat(t0.Add(time.Hour), 0); hb != nil {
		t.Error("expected nil heartbeat with zero interval")
	}
}

func TestCheckHeartbeatBeforeInit(t *testing.T) {
	d := NewDebouncer(KindLock, 100*time.Millisecond, t0)
	if hb := d.CheckHeartbeat(t0.Add(time.Hour), time.Minute); hb != nil {
		t.Error("expected nil heartbeat before init")
	}
}

func TestCheckHeartbeatAtInterval(t *testing.T) {
	d := setupDebouncer(t, KindDoor, 100*time.Millisecond, true)

	if hb := d.CheckHeartbeat(t0.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected nil heartbeat before interval")
	}

	hb := d.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}
	if hb.State != StateOpen {
		t.Errorf("expected state OPEN, got %s", hb.State)
	}

	// Interval restarts from the last heartbeat
	if hb := d.CheckHeartbeat(t0.Add(20*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected nil heartbeat 5m after previous")
	}
	if hb := d.CheckHeartbeat(t0.Add(30*time.Minute), 15*time.Minute); hb == nil {
		t.Error("expected second heartbeat at 30m")
	}
}

func TestHeartbeatContainsEventCounts(t *testing.T) {
	d := setupDebouncer(t, KindLock, 100*time.Millisecond, false)

	d.Process(Input{Active: true, Time: t0.Add(100 * time.Millisecond)})
	d.Process(Input{Active: true, Time: t0.Add(200 * time.Millisecond)})

	hb := d.CheckHeartbeat(t0.Add(time.Minute), time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat")
	}
	if hb.Counts.Confirmed != 1 {
		t.Errorf("expected 1 confirmed in heartbeat, got %d", hb.Counts.Confirmed)
	}
	if hb.State != StateLocked {
		t.Errorf("expected LOCKED in heartbeat, got %s", hb.State)
	}
}
