// Package config loads the node configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/logic"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Sensor sources
const (
	SourceDigital = "digital"
	SourceAnalog  = "analog"
)

type Config struct {
	Device       DeviceConfig    `yaml:"device"`
	Sensor       SensorConfig    `yaml:"sensor"`
	Indicator    IndicatorConfig `yaml:"indicator"`
	Poll         time.Duration   `yaml:"poll"`
	Debounce     time.Duration   `yaml:"debounce"`
	RestartAfter time.Duration   `yaml:"restart_after"`
	Heartbeat    time.Duration   `yaml:"heartbeat"`
	WiFi         WiFiConfig      `yaml:"wifi"`
	Webhook      WebhookConfig   `yaml:"webhook"`
	MQTT         MQTTConfig      `yaml:"mqtt"`
	HTTP         HTTPConfig      `yaml:"http"`
	MDNS         MDNSConfig      `yaml:"mdns"`
	Log          LogConfig       `yaml:"log"`
}

type DeviceConfig struct {
	ID   string     `yaml:"id"`
	Kind logic.Kind `yaml:"kind"`
}

type SensorConfig struct {
	Source    string        `yaml:"source"`
	Chip      string        `yaml:"chip"`
	Pin       int           `yaml:"pin"`
	Bias      gpio.Bias     `yaml:"bias"`
	ActiveLow bool          `yaml:"active_low"`
	IIOPath   string        `yaml:"iio_path"`
	Threshold int           `yaml:"threshold"`
	Invert    bool          `yaml:"invert"`
	Settle    time.Duration `yaml:"settle"`
}

type IndicatorConfig struct {
	Enabled bool `yaml:"enabled"`
	Pin     int  `yaml:"pin"`
}

type WiFiConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interface      string        `yaml:"interface"`
	SSID           string        `yaml:"ssid"`
	Password       string        `yaml:"password"`
	MaxRetries     int           `yaml:"max_retries"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// Argv template; {ssid}, {password} and {interface} are substituted.
	ConnectCommand []string `yaml:"connect_command"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

type MQTTConfig struct {
	Broker string `yaml:"broker"` // empty disables lifecycle telemetry
	Topic  string `yaml:"topic"`  // default occupancy/<kind>/<id>/system
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // "off" disables the status server
}

type MDNSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"` // default occupancy-<id>
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default debounce thresholds per sensor kind.
const (
	DefaultLockDebounce = 100 * time.Millisecond
	DefaultDoorDebounce = 1200 * time.Millisecond
)

// DefaultThreshold is the raw ADC level at or above which the analog sensor
// reads active.
const DefaultThreshold = 2000

// Load reads path, expands ${ENV} references and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data. Defaults are applied but Validate is not
// called, so that command-line overrides can be merged first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.SetDefaults()
	return cfg, nil
}

// Default returns a config seeded with every default for which zero is a
// meaningful value (booleans that default to true, pin numbers, thresholds).
// Parse unmarshals over it so explicit zeros survive.
func Default() *Config {
	return &Config{
		Sensor:    SensorConfig{Pin: gpio.DefaultPinSensor, Threshold: DefaultThreshold},
		Indicator: IndicatorConfig{Enabled: true, Pin: gpio.DefaultPinIndicator},
		WiFi:      WiFiConfig{Enabled: true, MaxRetries: 5},
		MDNS:      MDNSConfig{Enabled: true},
	}
}

// SetDefaults fills zero-valued fields. Safe to call more than once.
func (c *Config) SetDefaults() {
	if c.Device.Kind == "" {
		c.Device.Kind = logic.KindLock
	}
	if c.Sensor.Source == "" {
		c.Sensor.Source = SourceDigital
	}
	if c.Sensor.Chip == "" {
		c.Sensor.Chip = gpio.DefaultChip
	}
	if c.Sensor.Bias == "" {
		c.Sensor.Bias = gpio.BiasPullUp
	}
	if c.Sensor.Settle == 0 {
		c.Sensor.Settle = time.Second
	}
	if c.Poll == 0 {
		c.Poll = 50 * time.Millisecond
	}
	if c.Debounce == 0 {
		if c.Device.Kind == logic.KindDoor {
			c.Debounce = DefaultDoorDebounce
		} else {
			c.Debounce = DefaultLockDebounce
		}
	}
	if c.RestartAfter == 0 {
		c.RestartAfter = 30 * time.Minute
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 15 * time.Minute
	}
	if c.WiFi.Interface == "" {
		c.WiFi.Interface = "wlan0"
	}
	if c.WiFi.AttemptTimeout == 0 {
		c.WiFi.AttemptTimeout = 15 * time.Second
	}
	if len(c.WiFi.ConnectCommand) == 0 {
		c.WiFi.ConnectCommand = []string{
			"nmcli", "device", "wifi", "connect", "{ssid}",
			"password", "{password}", "ifname", "{interface}",
		}
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":80"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the config for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("%w: device.id is required", ErrInvalid)
	}
	if _, err := logic.ParseKind(string(c.Device.Kind)); err != nil {
		return fmt.Errorf("%w: device.kind: %v", ErrInvalid, err)
	}

	switch c.Sensor.Source {
	case SourceDigital:
		if _, err := gpio.ParseBias(string(c.Sensor.Bias)); err != nil {
			return fmt.Errorf("%w: sensor.bias: %v", ErrInvalid, err)
		}
		if c.Sensor.Pin < 0 {
			return fmt.Errorf("%w: sensor.pin must be >= 0", ErrInvalid)
		}
	case SourceAnalog:
		if c.Sensor.IIOPath == "" {
			return fmt.Errorf("%w: sensor.iio_path is required for analog source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: sensor.source %q (want %q or %q)", ErrInvalid, c.Sensor.Source, SourceDigital, SourceAnalog)
	}

	if c.Poll <= 0 {
		return fmt.Errorf("%w: poll must be positive", ErrInvalid)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: debounce must not be negative", ErrInvalid)
	}
	if c.WiFi.Enabled {
		if c.WiFi.SSID == "" {
			return fmt.Errorf("%w: wifi.ssid is required when wifi is enabled", ErrInvalid)
		}
		if c.WiFi.MaxRetries < 0 {
			return fmt.Errorf("%w: wifi.max_retries must not be negative", ErrInvalid)
		}
	}

	if c.Webhook.URL == "" {
		return fmt.Errorf("%w: webhook.url is required", ErrInvalid)
	}
	u, err := url.Parse(c.Webhook.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: webhook.url %q must be an absolute http(s) URL", ErrInvalid, c.Webhook.URL)
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("%w: webhook.secret is required", ErrInvalid)
	}
	return nil
}

// SystemTopic returns the MQTT topic for lifecycle events.
func (c *Config) SystemTopic() string {
	if c.MQTT.Topic != "" {
		return c.MQTT.Topic
	}
	return "occupancy/" + string(c.Device.Kind) + "/" + c.Device.ID + "/system"
}

// InstanceName returns the mDNS instance name.
func (c *Config) InstanceName() string {
	if c.MDNS.Name != "" {
		return c.MDNS.Name
	}
	return "occupancy-" + c.Device.ID
}

// HTTPEnabled reports whether the status server should run.
func (c *Config) HTTPEnabled() bool {
	return c.HTTP.Addr != "off"
}
