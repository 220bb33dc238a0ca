// Package wifi establishes the wireless link before the node starts reporting.
//
// The Manager implements the retry state machine. It is driven by
// notifications from a Radio (the platform driver) and exposes one blocking
// Connect call to the rest of the daemon.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/occupancy-node/internal/logging"
)

// State is the connectivity state owned by the Manager.
type State string

const (
	StateIdle       State = "IDLE"
	StateConnecting State = "CONNECTING"
	StateConnected  State = "CONNECTED"
	StateFailed     State = "FAILED"
)

var (
	// ErrRetriesExhausted is returned by Connect when every attempt failed.
	// It is terminal for the process lifetime.
	ErrRetriesExhausted = errors.New("wifi: retries exhausted")

	// ErrAlreadyStarted is returned by a second call to Connect.
	ErrAlreadyStarted = errors.New("wifi: connect already attempted")
)

// Credentials for the wireless network.
type Credentials struct {
	SSID     string
	Password string
}

// Handler receives notifications from the radio driver.
// The driver must not invoke handler methods concurrently.
type Handler interface {
	OnInterfaceReady()
	OnDisconnected()
	OnAddressAcquired(addr netip.Addr)
}

// Radio is the platform wireless driver.
type Radio interface {
	// Start registers h and brings the interface up. Readiness is reported
	// asynchronously through h.OnInterfaceReady.
	Start(creds Credentials, h Handler) error

	// Connect requests association. The outcome arrives through the handler.
	Connect() error

	// Stop releases the driver.
	Stop() error
}

// Manager runs the bounded-retry connection state machine.
type Manager struct {
	radio Radio

	mu         sync.Mutex
	state      State
	retries    int
	maxRetries int
	addr       netip.Addr
	connected  chan netip.Addr
	failed     chan struct{}
	observer   func(State, int)
}

// NewManager creates a Manager bound to radio.
func NewManager(radio Radio) *Manager {
	return &Manager{
		radio:     radio,
		state:     StateIdle,
		connected: make(chan netip.Addr, 1),
		failed:    make(chan struct{}, 1),
	}
}

// OnStateChange registers fn to be called after every state or retry change.
// fn must not call back into the Manager.
func (m *Manager) OnStateChange(fn func(state State, retries int)) {
	m.mu.Lock()
	m.observer = fn
	m.mu.Unlock()
}

// Connect starts the radio and blocks until the link has an address or
// maxRetries reconnection attempts have failed. There is no timeout; ctx is
// only for process shutdown.
func (m *Manager) Connect(ctx context.Context, creds Credentials, maxRetries int) (netip.Addr, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return netip.Addr{}, ErrAlreadyStarted
	}
	m.maxRetries = maxRetries
	m.retries = 0
	m.mu.Unlock()

	logging.Info("connecting to wifi",
		zap.String("ssid", creds.SSID),
		zap.Int("max_retries", maxRetries),
	)

	if err := m.radio.Start(creds, m); err != nil {
		m.mu.Lock()
		m.state = StateFailed
		notify := m.notifier()
		m.mu.Unlock()
		notify()
		return netip.Addr{}, fmt.Errorf("start radio: %w", err)
	}

	select {
	case addr := <-m.connected:
		return addr, nil
	case <-m.failed:
		return netip.Addr{}, ErrRetriesExhausted
	case <-ctx.Done():
		return netip.Addr{}, ctx.Err()
	}
}

// State returns the current state and retry count.
func (m *Manager) State() (State, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.retries
}

// Addr returns the acquired address (invalid until connected).
func (m *Manager) Addr() netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// OnInterfaceReady makes the first connection attempt.
func (m *Manager) OnInterfaceReady() {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	notify := m.notifier()
	m.mu.Unlock()

	notify()
	m.attempt()
}

// OnDisconnected retries until the bound is reached, then fails for good.
func (m *Manager) OnDisconnected() {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		logging.Warn("wifi link lost after connect; waiting for restart")
		return
	case StateConnecting:
	default:
		m.mu.Unlock()
		return
	}

	if m.retries < m.maxRetries {
		m.retries++
		retries, max := m.retries, m.maxRetries
		notify := m.notifier()
		m.mu.Unlock()

		logging.Info("wifi retry", zap.Int("attempt", retries), zap.Int("max", max))
		notify()
		m.attempt()
		return
	}

	m.state = StateFailed
	m.failed <- struct{}{}
	notify := m.notifier()
	m.mu.Unlock()
	notify()
}

// OnAddressAcquired completes the attempt cycle successfully.
func (m *Manager) OnAddressAcquired(addr netip.Addr) {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateFailed {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.addr = addr
	m.connected <- addr
	notify := m.notifier()
	m.mu.Unlock()

	logging.Info("wifi connected", zap.String("ip", addr.String()))
	notify()
}

func (m *Manager) attempt() {
	if err := m.radio.Connect(); err != nil {
		// A connect primitive that fails outright counts as a disconnect.
		logging.Warn("wifi connect request failed", zap.Error(err))
		m.OnDisconnected()
	}
}

// notifier captures the observer call under the lock; run it after unlocking.
func (m *Manager) notifier() func() {
	fn, state, retries := m.observer, m.state, m.retries
	if fn == nil {
		return func() {}
	}
	return func() { fn(state, retries) }
}
