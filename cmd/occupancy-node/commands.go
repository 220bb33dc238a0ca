package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/occupancy-node/internal/config"
	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/version"
)

const defaultConfigPath = "/etc/occupancy-node/config.yaml"

var rootCmd = &cobra.Command{
	Use:   "occupancy-node",
	Short: "Bathroom lock and door occupancy sensor node",
	Long: `A sensor node that samples a Hall-effect lock sensor or a magnetic door
switch, debounces the reading and reports each confirmed state change to the
backend webhook.

A local status page is served over HTTP and advertised via mDNS. Lifecycle
events are optionally published to an MQTT broker.`,
	Version:       version.Full(),
	SilenceErrors: true,
}

// Persistent flags; a flag only overrides the config file when set.
var (
	configPath string
	deviceID   string
	kind       string
	poll       time.Duration
	debounce   time.Duration
	webhookURL string
	broker     string
	httpAddr   string
	logLevel   string
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(printStateCmd)
	rootCmd.AddCommand(versionCmd)
	bindFlags(rootCmd.PersistentFlags())
}

func bindFlags(f *pflag.FlagSet) {
	f.StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML config file")
	f.StringVar(&deviceID, "device-id", "", "Device identifier reported to the backend")
	f.StringVar(&kind, "kind", "", "Sensor kind (lock or door)")
	f.DurationVar(&poll, "poll", 0, "Sampling interval")
	f.DurationVar(&debounce, "debounce", 0, "Time a reading must hold before it is confirmed")
	f.StringVar(&webhookURL, "webhook-url", "", "Backend webhook URL")
	f.StringVar(&broker, "broker", "", "MQTT broker for lifecycle events (e.g. tcp://host:1883)")
	f.StringVar(&httpAddr, "http", "", `HTTP status server listen address ("off" to disable)`)
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor node",
	Example: `  # Run with the default config file
  occupancy-node run

  # Door sensor with a custom config and verbose logging
  occupancy-node run -c ./door.yaml --kind door --log-level debug`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

var printStateCmd = &cobra.Command{
	Use:          "print-state",
	Short:        "Read the sensor once and print its state",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		reader, err := openReader(cfg)
		if err != nil {
			return err
		}
		defer reader.Close()

		time.Sleep(cfg.Sensor.Settle)
		active, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatState(cfg.Device.Kind, active))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "occupancy-node %s\n", version.Full())
	},
}

func formatState(k logic.Kind, active bool) string {
	return fmt.Sprintf("%s: %s", k, k.StateOf(active))
}

// loadConfig reads the config file and merges flag overrides. A missing file
// at the default path is not an error; the node then runs from defaults and
// flags.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flags.Changed("config") {
			return nil, err
		}
		cfg = config.Default()
		cfg.SetDefaults()
	}
	if err := applyOverrides(cfg, flags); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, flags *pflag.FlagSet) error {
	if flags.Changed("device-id") {
		cfg.Device.ID = deviceID
	}
	if flags.Changed("kind") {
		k, err := logic.ParseKind(kind)
		if err != nil {
			return err
		}
		if k != cfg.Device.Kind && !flags.Changed("debounce") && cfg.Debounce == defaultDebounce(cfg.Device.Kind) {
			cfg.Debounce = defaultDebounce(k)
		}
		cfg.Device.Kind = k
	}
	if flags.Changed("poll") {
		cfg.Poll = poll
	}
	if flags.Changed("debounce") {
		cfg.Debounce = debounce
	}
	if flags.Changed("webhook-url") {
		cfg.Webhook.URL = webhookURL
	}
	if flags.Changed("broker") {
		cfg.MQTT.Broker = broker
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = httpAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	return nil
}

func defaultDebounce(k logic.Kind) time.Duration {
	if k == logic.KindDoor {
		return config.DefaultDoorDebounce
	}
	return config.DefaultLockDebounce
}
