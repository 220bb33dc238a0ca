package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/occupancy-node/internal/logging"
)

// DefaultBufferSize is how many lifecycle events are held while the
// broker is unreachable.
const DefaultBufferSize = 64

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topic      string
	BufferSize int

	// OnConnectionChange, if set, is called with the new connection state.
	OnConnectionChange func(connected bool)

	// StatusPayload, if set, renders the retained status published after a
	// reconnect. It replaces the broker-held last will.
	StatusPayload func(event string) []byte
}

// RealPublisher publishes to an actual MQTT broker. Events published while
// the connection is down are buffered and replayed on (re)connect.
type RealPublisher struct {
	client paho.Client
	topic  string

	mu            sync.Mutex
	queue         *outageQueue
	everConnected bool

	connected     func() bool
	publish       func(msg bufferedMsg) error
	onChange      func(bool)
	statusPayload func(event string) []byte
	now           func() time.Time
}

func newPublisher(topic string, bufferSize int, onChange func(bool)) *RealPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &RealPublisher{
		topic:    topic,
		queue:    newOutageQueue(bufferSize),
		onChange: onChange,
		now:      time.Now,
	}
}

// NewRealPublisher creates a publisher for the given broker. It does not
// fail if the broker is unreachable at startup; paho keeps retrying and
// events are buffered meanwhile. A last-will message is registered on the
// system topic so subscribers learn about ungraceful loss.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not set")
	}

	p := newPublisher(opts.Topic, opts.BufferSize, opts.OnConnectionChange)
	p.statusPayload = opts.StatusPayload
	clientOpts, err := p.clientOptions(opts)
	if err != nil {
		return nil, err
	}

	p.client = paho.NewClient(clientOpts)
	p.connected = p.client.IsConnectionOpen
	p.publish = func(msg bufferedMsg) error {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("publish timeout")
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		return nil
	}

	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logging.Warn("mqtt broker not reachable yet, buffering events", zap.String("broker", opts.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) clientOptions(opts Options) (*paho.ClientOptions, error) {
	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     EventShutdown,
		Reason:    ReasonBrokerLost,
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	return paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(opts.Topic, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) }), nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker, or
// buffers it while disconnected.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	msg := bufferedMsg{event: event.Event, topic: p.topic, payload: payload, qos: 1, retained: event.Retained}

	p.mu.Lock()
	if !p.connected() {
		p.queue.push(msg)
		n := p.queue.len()
		p.mu.Unlock()
		logging.Debug("mqtt disconnected, buffered event", zap.String("event", event.Event), zap.Int("buffered", n))
		return nil
	}
	p.mu.Unlock()

	return p.publish(msg)
}

func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	pending := p.queue.drainAll()
	reconnect := p.everConnected
	p.everConnected = true
	p.mu.Unlock()

	logging.Info("mqtt connected", zap.Int("replaying", len(pending)))
	p.onChange(true)

	for _, msg := range pending {
		if err := p.publish(msg); err != nil {
			logging.Warn("mqtt replay failed", zap.Error(err))
		}
	}

	// The broker released our retained last will while we were away
	if reconnect {
		if err := p.publish(p.reconnectedMsg()); err != nil {
			logging.Warn("mqtt publish failed", zap.String("event", EventReconnected), zap.Error(err))
		}
	}
}

func (p *RealPublisher) reconnectedMsg() bufferedMsg {
	var payload []byte
	if p.statusPayload != nil {
		payload = p.statusPayload(EventReconnected)
	} else {
		payload, _ = FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: EventReconnected})
	}
	return bufferedMsg{event: EventReconnected, topic: p.topic, payload: payload, qos: 1, retained: true}
}

func (p *RealPublisher) handleConnectionLost(err error) {
	logging.Warn("mqtt connection lost", zap.Error(err))
	p.onChange(false)
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.connected()
}

// Buffered returns the number of events waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}
