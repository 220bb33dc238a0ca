// Package status provides a thread-safe status tracker for the occupancy node.
// It is read by HTTP handlers, the websocket stream and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/occupancy-node/internal/logic"
)

// NetworkInfo contains connectivity state. This is a local copy to avoid
// importing internal/wifi from status.
type NetworkInfo struct {
	Interface string
	SSID      string
	State     string
	Retries   int
	IP        string
}

// Delivery is the outcome of the most recent webhook POST.
type Delivery struct {
	At          time.Time
	State       logic.State
	StatusCode  int
	TransportOK bool
	Delivered   bool
}

// WebhookStats counts webhook outcomes since startup.
type WebhookStats struct {
	OK     int
	Failed int
	Last   *Delivery
}

// Config contains node configuration for display.
type Config struct {
	PollMs       int64
	DebounceMs   int64
	HeartbeatMs  int64
	RestartAfter time.Duration
	Broker       string
	HTTPAddr     string
	WebhookURL   string
}

// Snapshot is a point-in-time view of node state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	DeviceID      string
	Kind          logic.Kind
	Debounce      logic.Context
	Initialized   bool
	Counts        logic.EventCounts
	Webhook       WebhookStats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the node started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable node state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(deviceID string, kind logic.Kind, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			DeviceID:  deviceID,
			Kind:      kind,
			StartTime: startTime,
			Config:    cfg,
		},
		subs: make(map[int]chan struct{}),
	}
}

// Update sets the debounce context, initialisation status and event counts.
// Called from runLoop on every tick; subscribers are only woken on change.
func (t *Tracker) Update(dc logic.Context, initialized bool, counts logic.EventCounts) {
	t.mu.Lock()
	changed := t.snap.Debounce != dc || t.snap.Initialized != initialized || t.snap.Counts != counts
	t.snap.Debounce = dc
	t.snap.Initialized = initialized
	t.snap.Counts = counts
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// RecordDelivery counts a webhook outcome and keeps it as the last delivery.
func (t *Tracker) RecordDelivery(d Delivery) {
	t.mu.Lock()
	if d.Delivered {
		t.snap.Webhook.OK++
	} else {
		t.snap.Webhook.Failed++
	}
	last := d
	t.snap.Webhook.Last = &last
	t.mu.Unlock()
	t.notify()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	changed := t.snap.MQTTConnected != connected
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
	t.notify()
}

// Snapshot returns a point-in-time copy of the node state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()

	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	if s.Webhook.Last != nil {
		d := *s.Webhook.Last
		s.Webhook.Last = &d
	}
	s.Now = time.Now()
	return s
}

// Subscribe returns a channel that receives a value whenever the tracked
// state changes. Notifications coalesce; a slow reader sees at most one
// pending signal. Call the returned func to unsubscribe.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

func (t *Tracker) notify() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
