package wifi

import "sync"

// FakeRadio is a test double. Tests drive the registered handler directly
// through Ready, Disconnect and Acquire.
type FakeRadio struct {
	mu sync.Mutex

	// ConnectCalls counts Connect requests.
	ConnectCalls int
	// Creds records the credentials passed to Start.
	Creds Credentials
	// StartError, if set, is returned by Start.
	StartError error
	// ConnectError, if set, is returned by Connect.
	ConnectError error
	// Stopped tracks if Stop was called.
	Stopped bool

	// OnConnect, if set, runs after every Connect request.
	OnConnect func(call int)

	handler Handler
	started chan struct{}
}

// NewFakeRadio creates a FakeRadio.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{started: make(chan struct{})}
}

// Start records the handler.
func (f *FakeRadio) Start(creds Credentials, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartError != nil {
		return f.StartError
	}
	f.Creds = creds
	f.handler = h
	close(f.started)
	return nil
}

// Started is closed once Start has registered a handler.
func (f *FakeRadio) Started() <-chan struct{} {
	return f.started
}

// Connect records the request.
func (f *FakeRadio) Connect() error {
	f.mu.Lock()
	f.ConnectCalls++
	n := f.ConnectCalls
	err := f.ConnectError
	cb := f.OnConnect
	f.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	return err
}

// Calls returns the number of Connect requests so far.
func (f *FakeRadio) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ConnectCalls
}

// Stop marks the radio as stopped.
func (f *FakeRadio) Stop() error {
	f.mu.Lock()
	f.Stopped = true
	f.mu.Unlock()
	return nil
}

func (f *FakeRadio) Handler() Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}
