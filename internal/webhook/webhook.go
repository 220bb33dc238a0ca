// Package webhook delivers confirmed state changes to the backend.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/occupancy-node/internal/logging"
	"github.com/sweeney/occupancy-node/internal/logic"
)

// SecretHeader carries the static pre-shared secret.
const SecretHeader = "x-webhook-secret"

// Response bytes read before closing; larger bodies cost a new connection.
const maxDrain = 64 << 10

// Event is a state change to deliver. It is built per confirmed transition
// and never queued.
type Event struct {
	DeviceID  string
	Kind      logic.Kind
	State     logic.State
	Reason    logic.Reason
	Timestamp time.Time
}

// NewEvent builds a webhook event from a debouncer event.
func NewEvent(deviceID string, kind logic.Kind, e logic.Event) Event {
	return Event{
		DeviceID:  deviceID,
		Kind:      kind,
		State:     e.State,
		Reason:    e.Reason,
		Timestamp: e.Timestamp,
	}
}

// Outcome is the result of a single POST.
type Outcome struct {
	StatusCode  int  // 0 on transport failure
	TransportOK bool // false if no HTTP response was received
}

// Delivered reports whether the backend accepted the event.
func (o Outcome) Delivered() bool {
	return o.TransportOK && o.StatusCode == http.StatusOK
}

// Notifier delivers state changes. The control loop depends on this.
type Notifier interface {
	PostStateChange(ctx context.Context, event Event) Outcome
}

// LockPayload is the wire body for the lock sensor.
type LockPayload struct {
	BathroomID string `json:"bathroomId"`
	IsLocked   bool   `json:"isLocked"`
}

// DoorPayload is the wire body for the door sensor.
type DoorPayload struct {
	DoorID string `json:"doorId"`
	IsOpen bool   `json:"isOpen"`
}

// FormatPayload creates the JSON body for an event.
func FormatPayload(event Event) ([]byte, error) {
	switch event.Kind {
	case logic.KindLock:
		return json.Marshal(LockPayload{BathroomID: event.DeviceID, IsLocked: event.State.Active()})
	case logic.KindDoor:
		return json.Marshal(DoorPayload{DoorID: event.DeviceID, IsOpen: event.State.Active()})
	}
	return nil, fmt.Errorf("unknown sensor kind %q", event.Kind)
}

// Client posts events to a single URL. It holds no per-event state.
type Client struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewClient creates a client. TLS verification uses the system roots.
func NewClient(url, secret string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PostStateChange performs exactly one POST. Failures are logged and
// reported in the Outcome; there is no retry.
func (c *Client) PostStateChange(ctx context.Context, event Event) Outcome {
	body, err := FormatPayload(event)
	if err != nil {
		logging.Error("webhook payload", zap.Error(err))
		return Outcome{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		logging.Error("webhook request", zap.Error(err))
		return Outcome{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, c.secret)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Warn("webhook POST failed",
			zap.String("state", string(event.State)),
			zap.Error(err),
		)
		return Outcome{}
	}
	defer func() {
		// Drain so the keep-alive connection is reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		resp.Body.Close()
	}()

	out := Outcome{StatusCode: resp.StatusCode, TransportOK: true}
	fields := []zap.Field{
		zap.String("state", string(event.State)),
		zap.String("reason", string(event.Reason)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	}
	if !out.Delivered() {
		logging.Warn("webhook rejected", fields...)
	} else {
		logging.Info("webhook delivered", fields...)
	}
	return out
}
