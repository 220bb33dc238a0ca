package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/occupancy-node/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"stateClass": func(s string) string {
		switch s {
		case "LOCKED", "OPEN":
			return "active"
		case "UNLOCKED", "CLOSED":
			return "idle"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.DeviceID}} ({{.Kind}})</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: #c00; font-weight: bold; }
.idle { color: green; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>{{.DeviceID}}<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>State</h2>
<table>
<tr><th>Sensor</th><td>{{.Kind}}</td></tr>
{{with stateOrUnknown (printf "%s" .Debounce.Confirmed)}}<tr><th>Confirmed</th><td id="state" class="{{stateClass .}}">{{.}}</td></tr>{{end}}
<tr><th>Pending</th><td id="pending">{{if and .Initialized .Debounce.InTransition}}{{.Debounce.Pending}}{{else}}-{{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Initialized}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
{{if .Network}}<tr><th>Wi-Fi</th><td>{{.Network.State}} ({{.Network.Interface}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>Retries</th><td>{{.Network.Retries}}</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Webhook</h2>
<table>
<tr><th>Delivered</th><td id="webhook-ok">{{.Webhook.OK}}</td></tr>
<tr><th>Failed</th><td id="webhook-failed">{{.Webhook.Failed}}</td></tr>
{{with .Webhook.Last}}<tr><th>Last</th><td>{{.State}} {{if .TransportOK}}HTTP {{.StatusCode}}{{else}}no response{{end}} at {{.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Confirmed</th><td id="confirmed">{{.Counts.Confirmed}}</td></tr>
<tr><th>Cancelled</th><td id="cancelled">{{.Counts.Cancelled}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Restart after</th><td>{{if eq .Config.RestartAfter 0}}disabled{{else}}{{.Config.RestartAfter}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("state");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setText(id, v) {
    var el = document.getElementById(id);
    if (el) { el.textContent = v; }
  }

  function stateClass(s) {
    if (s === "LOCKED" || s === "OPEN") { return "active"; }
    if (s === "UNLOCKED" || s === "CLOSED") { return "idle"; }
    return "unknown";
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        stateEl.textContent = s.state;
        stateEl.className = stateClass(s.state);
        setText("pending", s.pending || "-");
        setText("confirmed", s.event_counts.confirmed);
        setText("cancelled", s.event_counts.cancelled);
        setText("webhook-ok", s.webhook.ok);
        setText("webhook-failed", s.webhook.failed);
      } catch (e) {}
    };
  }

  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
