package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	DeviceID      string       `json:"device_id"`
	Kind          string       `json:"kind"`
	State         string       `json:"state"`
	Pending       string       `json:"pending,omitempty"`
	PendingSince  string       `json:"pending_since,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Webhook       WebhookJSON  `json:"webhook"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// WebhookJSON reports delivery statistics.
type WebhookJSON struct {
	OK     int           `json:"ok"`
	Failed int           `json:"failed"`
	Last   *DeliveryJSON `json:"last,omitempty"`
}

// DeliveryJSON is the JSON representation of the last delivery.
type DeliveryJSON struct {
	At          string `json:"at"`
	State       string `json:"state"`
	StatusCode  int    `json:"status_code"`
	TransportOK bool   `json:"transport_ok"`
	Delivered   bool   `json:"delivered"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Interface string `json:"interface"`
	SSID      string `json:"ssid"`
	State     string `json:"state"`
	Retries   int    `json:"retries"`
	IP        string `json:"ip,omitempty"`
}

// ConfigJSON is the JSON representation of node config.
type ConfigJSON struct {
	PollMs        int64  `json:"poll_ms"`
	DebounceMs    int64  `json:"debounce_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	RestartAfterS int64  `json:"restart_after_s"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	WebhookURL    string `json:"webhook_url"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Debounce.Confirmed)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		DeviceID:      snap.DeviceID,
		Kind:          string(snap.Kind),
		State:         state,
		Ready:         snap.Initialized,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Webhook:       WebhookJSON{OK: snap.Webhook.OK, Failed: snap.Webhook.Failed},
		Counts: CountsJSON{
			Confirmed: snap.Counts.Confirmed,
			Cancelled: snap.Counts.Cancelled,
		},
		Config: ConfigJSON{
			PollMs:        snap.Config.PollMs,
			DebounceMs:    snap.Config.DebounceMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			RestartAfterS: int64(snap.Config.RestartAfter / time.Second),
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			WebhookURL:    snap.Config.WebhookURL,
		},
	}

	if snap.Initialized && snap.Debounce.InTransition() {
		inner.Pending = string(snap.Debounce.Pending)
		inner.PendingSince = snap.Debounce.PendingSince.UTC().Format(time.RFC3339Nano)
	}

	if last := snap.Webhook.Last; last != nil {
		inner.Webhook.Last = &DeliveryJSON{
			At:          last.At.UTC().Format(time.RFC3339),
			State:       string(last.State),
			StatusCode:  last.StatusCode,
			TransportOK: last.TransportOK,
			Delivered:   last.Delivered,
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Interface: snap.Network.Interface,
			SSID:      snap.Network.SSID,
			State:     snap.Network.State,
			Retries:   snap.Network.Retries,
			IP:        snap.Network.IP,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatCompact returns single-line JSON for the websocket stream.
func FormatCompact(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: buildInner(snap)})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
