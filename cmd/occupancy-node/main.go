// Command occupancy-node watches a single lock or door sensor, debounces it
// and reports confirmed state changes to a backend webhook.
//
// Usage:
//
//	occupancy-node run --config /etc/occupancy-node/config.yaml
//	occupancy-node print-state
//	occupancy-node version
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/occupancy-node/internal/config"
	"github.com/sweeney/occupancy-node/internal/discovery"
	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/logging"
	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/mqtt"
	"github.com/sweeney/occupancy-node/internal/status"
	"github.com/sweeney/occupancy-node/internal/version"
	"github.com/sweeney/occupancy-node/internal/watchdog"
	"github.com/sweeney/occupancy-node/internal/web"
	"github.com/sweeney/occupancy-node/internal/webhook"
	"github.com/sweeney/occupancy-node/internal/wifi"
)

var (
	// errRestart is returned when the watchdog asks for a restart.
	errRestart = errors.New("scheduled restart")

	// errShutdown is returned when a signal arrives before the loop starts.
	errShutdown = errors.New("shutdown requested")
)

func main() {
	err := rootCmd.Execute()
	if errors.Is(err, errRestart) {
		os.Exit(watchdog.ExitCode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := logging.Initialize(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	startTime := time.Now()
	logging.Info("starting",
		zap.String("version", version.Full()),
		zap.String("device", cfg.Device.ID),
		zap.String("kind", string(cfg.Device.Kind)),
		zap.Duration("poll", cfg.Poll),
		zap.Duration("debounce", cfg.Debounce),
	)

	// Fail-safe restart runs from process start, independent of everything else
	restart := make(chan struct{})
	wd := watchdog.Start(cfg.RestartAfter, startTime, func() {
		logging.Warn("restart interval reached")
		close(restart)
	})
	defer wd.Stop()

	indicator := openIndicator(cfg)
	defer indicator.Close()

	tracker := status.NewTracker(cfg.Device.ID, cfg.Device.Kind, startTime, status.Config{
		PollMs:       cfg.Poll.Milliseconds(),
		DebounceMs:   cfg.Debounce.Milliseconds(),
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		RestartAfter: cfg.RestartAfter,
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		WebhookURL:   cfg.Webhook.URL,
	})

	// Start HTTP status server
	if cfg.HTTPEnabled() {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logging.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	// Owned from here on so deferred cleanup runs on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Connectivity: blocks until connected, failed, signalled or restarted
	if cfg.WiFi.Enabled {
		radio := wifi.NewInterfaceRadio(cfg.WiFi.Interface, cfg.WiFi.ConnectCommand, cfg.WiFi.AttemptTimeout)
		defer radio.Stop()

		err := connectWiFi(cfg, radio, tracker, indicator, wd, sigCh, restart)
		if errors.Is(err, errShutdown) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	// Lifecycle telemetry is optional
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.InstanceName(),
			Topic:              cfg.SystemTopic(),
			OnConnectionChange: tracker.SetMQTTConnected,
			StatusPayload: func(event string) []byte {
				return status.FormatStatusEvent(tracker.Snapshot(), event, "")
			},
		})
		if err != nil {
			logging.Warn("mqtt disabled", zap.Error(err))
		} else {
			publisher, mqttStatus = p, p
		}
	}
	defer publisher.Close()

	if cfg.MDNS.Enabled && cfg.HTTPEnabled() {
		adv := advertiseStatusPage(cfg)
		defer adv.Shutdown()
	}

	reader, err := openReader(cfg)
	if err != nil {
		return err
	}
	defer reader.Close()

	// Let the sensor settle before the first sample
	select {
	case <-time.After(cfg.Sensor.Settle):
	case s := <-sigCh:
		logging.Info("received signal during settle", zap.String("signal", s.String()))
		return nil
	case <-restart:
		return errRestart
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logging.Warn("failed to publish startup event", zap.Error(err))
	}

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	l := &loop{
		reader:     reader,
		indicator:  indicator,
		notifier:   webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.Timeout),
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		debouncer:  logic.NewDebouncer(cfg.Device.Kind, cfg.Debounce, startTime),
		deviceID:   cfg.Device.ID,
		heartbeat:  cfg.Heartbeat,
		now:        time.Now,
	}
	return l.runLoop(context.Background(), ticker.C, sigCh, restart)
}

// connectWiFi runs the connectivity manager. On exhausted retries it lights
// the indicator and waits for a signal or the restart watchdog. A signal
// yields errShutdown, the watchdog errRestart.
func connectWiFi(cfg *config.Config, radio wifi.Radio, tracker *status.Tracker, indicator gpio.Indicator,
	wd *watchdog.Watchdog, sig <-chan os.Signal, restart <-chan struct{}) error {
	network := func(state wifi.State, retries int, ip string) *status.NetworkInfo {
		return &status.NetworkInfo{
			Interface: cfg.WiFi.Interface,
			SSID:      cfg.WiFi.SSID,
			State:     string(state),
			Retries:   retries,
			IP:        ip,
		}
	}

	mgr := wifi.NewManager(radio)
	mgr.OnStateChange(func(state wifi.State, retries int) {
		tracker.SetNetwork(network(state, retries, ""))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Exactly one goroutine consumes sig until connect is settled
	signalled := make(chan os.Signal, 1)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case s := <-sig:
			signalled <- s
			cancel()
		case <-restart:
			cancel()
		case <-ctx.Done():
		}
	}()

	addr, err := mgr.Connect(ctx, wifi.Credentials{SSID: cfg.WiFi.SSID, Password: cfg.WiFi.Password}, cfg.WiFi.MaxRetries)
	if errors.Is(err, wifi.ErrRetriesExhausted) {
		fields := []zap.Field{zap.Int("max_retries", cfg.WiFi.MaxRetries)}
		if wd.Armed() {
			fields = append(fields, zap.Time("restart_at", wd.Deadline()))
			logging.Error("connectivity failed, waiting for restart", fields...)
		} else {
			logging.Error("connectivity failed, restart disabled; waiting for signal", fields...)
		}
		if err := indicator.Set(true); err != nil {
			logging.Warn("indicator error", zap.Error(err))
		}
		<-watcherDone
	} else {
		cancel()
		<-watcherDone
	}

	select {
	case s := <-signalled:
		logging.Info("received signal during connect, shutting down", zap.String("signal", s.String()))
		return errShutdown
	default:
	}
	select {
	case <-restart:
		return errRestart
	default:
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	_, retries := mgr.State()
	tracker.SetNetwork(network(wifi.StateConnected, retries, addr.String()))
	logging.Info("connected", zap.String("addr", addr.String()), zap.Int("retries", retries))
	return nil
}

func openIndicator(cfg *config.Config) gpio.Indicator {
	if !cfg.Indicator.Enabled {
		return gpio.NopIndicator{}
	}
	ind, err := gpio.NewLineIndicator(cfg.Sensor.Chip, cfg.Indicator.Pin)
	if err != nil {
		logging.Warn("indicator unavailable", zap.Int("pin", cfg.Indicator.Pin), zap.Error(err))
		return gpio.NopIndicator{}
	}
	return ind
}

func openReader(cfg *config.Config) (gpio.Reader, error) {
	switch cfg.Sensor.Source {
	case config.SourceAnalog:
		r, err := gpio.NewAnalogReader(cfg.Sensor.IIOPath, cfg.Sensor.Threshold, cfg.Sensor.Invert)
		if err != nil {
			return nil, fmt.Errorf("init analog sensor: %w", err)
		}
		return r, nil
	default:
		r, err := gpio.NewDigitalReader(gpio.DigitalConfig{
			Chip:      cfg.Sensor.Chip,
			Pin:       cfg.Sensor.Pin,
			Bias:      cfg.Sensor.Bias,
			ActiveLow: cfg.Sensor.ActiveLow,
		})
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return r, nil
	}
}

// advertiseStatusPage returns nil when the advertisement could not be made.
func advertiseStatusPage(cfg *config.Config) *discovery.Advertiser {
	port, err := discovery.PortFromAddr(cfg.HTTP.Addr)
	if err != nil {
		logging.Warn("mdns disabled", zap.Error(err))
		return nil
	}
	adv, err := discovery.Advertise(discovery.Service{
		Instance: cfg.InstanceName(),
		Port:     port,
		DeviceID: cfg.Device.ID,
		Kind:     string(cfg.Device.Kind),
		Version:  version.Version,
	})
	if err != nil {
		logging.Warn("mdns disabled", zap.Error(err))
		return nil
	}
	return adv
}

// loop is the sample-debounce-report cycle. It owns the debouncer.
type loop struct {
	reader     gpio.Reader
	indicator  gpio.Indicator
	notifier   webhook.Notifier
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	debouncer  *logic.Debouncer
	deviceID   string
	heartbeat  time.Duration
	now        func() time.Time

	indicatorFailed bool
}

func (l *loop) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal, restart <-chan struct{}) error {
	// Initial report; if this read fails the first good tick initializes.
	l.sample(ctx)

	for {
		select {
		case s := <-sig:
			logging.Info("received signal, shutting down", zap.String("signal", s.String()))
			l.publishSystem(l.now(), mqtt.EventShutdown, signalName(s))
			return nil

		case <-restart:
			logging.Info("restarting")
			l.publishSystem(l.now(), mqtt.EventRestart, "WATCHDOG")
			return errRestart

		case <-tick:
			l.sample(ctx)
		}
	}
}

func (l *loop) sample(ctx context.Context) {
	t := l.now()
	active, err := l.reader.Read()
	if err != nil {
		logging.Warn("sensor read error", zap.Error(err))
		return
	}

	// The indicator shows the confirmed state, never the raw reading
	if l.debouncer.IsInitialized() {
		l.setIndicator(l.debouncer.Confirmed().Active())
	}

	res := l.debouncer.Process(logic.Input{Active: active, Time: t})
	switch res.Transition {
	case logic.TransitionInitial:
		logging.Info("initial state", zap.String("state", string(res.To)))
		l.post(ctx, *res.Event)
	case logic.TransitionStarted:
		logging.Debug("transition started", zap.String("from", string(res.From)), zap.String("to", string(res.To)))
	case logic.TransitionCancelled:
		logging.Info("transition cancelled",
			zap.String("pending", string(res.From)),
			zap.String("state", string(res.To)),
			zap.Duration("after", res.Elapsed),
		)
	case logic.TransitionConfirmed:
		logging.Info("state confirmed",
			zap.String("from", string(res.From)),
			zap.String("to", string(res.To)),
			zap.Duration("held", res.Elapsed),
		)
		l.post(ctx, *res.Event)
	}

	if hb := l.debouncer.CheckHeartbeat(t, l.heartbeat); hb != nil {
		logging.Info("heartbeat",
			zap.Duration("uptime", hb.Uptime),
			zap.String("state", string(hb.State)),
			zap.Int("confirmed", hb.Counts.Confirmed),
			zap.Int("cancelled", hb.Counts.Cancelled),
		)
		l.publishSystem(hb.Timestamp, mqtt.EventHeartbeat, "")
	}

	l.updateTracker()
}

func (l *loop) post(ctx context.Context, e logic.Event) {
	out := l.notifier.PostStateChange(ctx, webhook.NewEvent(l.deviceID, l.debouncer.Kind(), e))
	l.tracker.RecordDelivery(status.Delivery{
		At:          e.Timestamp,
		State:       e.State,
		StatusCode:  out.StatusCode,
		TransportOK: out.TransportOK,
		Delivered:   out.Delivered(),
	})
}

func (l *loop) setIndicator(on bool) {
	if err := l.indicator.Set(on); err != nil {
		if !l.indicatorFailed {
			logging.Warn("indicator error", zap.Error(err))
			l.indicatorFailed = true
		}
		return
	}
	l.indicatorFailed = false
}

func (l *loop) updateTracker() {
	l.tracker.Update(l.debouncer.Context(), l.debouncer.IsInitialized(), l.debouncer.EventCountsSnapshot())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) publishSystem(at time.Time, event, reason string) {
	l.updateTracker()
	snap := l.tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   event != mqtt.EventHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.publisher.PublishSystem(se); err != nil {
		logging.Warn("system event publish failed", zap.String("event", event), zap.Error(err))
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
