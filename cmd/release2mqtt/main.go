// release2mqtt publishes the update state of locally running containers to
// Home Assistant over MQTT, and installs updates on request or on a schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/release2mqtt/internal/bridge"
	"github.com/nerrad567/release2mqtt/internal/dispatch"
	"github.com/nerrad567/release2mqtt/internal/docker"
	"github.com/nerrad567/release2mqtt/internal/git"
	"github.com/nerrad567/release2mqtt/internal/hass"
	"github.com/nerrad567/release2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/release2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/release2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/release2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/release2mqtt/internal/lifecycle"
	"github.com/nerrad567/release2mqtt/internal/policy"
	"github.com/nerrad567/release2mqtt/internal/process"
	"github.com/nerrad567/release2mqtt/internal/release"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "conf/config.yaml"

// configEnv overrides the default configuration path.
const configEnv = "RELEASE2MQTT_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the parsed command line.
type flags struct {
	configPath  string
	once        bool
	showVersion bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("release2mqtt", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&f.once, "once", false, "run a single scan cycle and exit")
	fs.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

// getConfigPath returns the configuration file path.
// Uses RELEASE2MQTT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintf(stdout, "release2mqtt %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting release2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", f.configPath,
		"node", cfg.Node.Name,
		"level", cfg.Logging.Level,
	)

	if !cfg.Docker.Enabled {
		return errors.New("no unit provider enabled")
	}

	topics := hass.NewTopics(cfg.HomeAssistant.Discovery.Prefix, cfg.HomeAssistant.TopicRoot, cfg.Node.Name)

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Options{
		Availability: &mqtt.Availability{
			Topic:   topics.Availability(),
			Online:  hass.PayloadOnline,
			Offline: hass.PayloadOffline,
		},
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	influxClient, err := connectInflux(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	engine, err := docker.NewEngine()
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			log.Error("error closing docker client", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	runner := process.NewRunner()
	runner.SetLogger(log.Component("process"))

	provider := docker.NewProvider(
		engine,
		docker.NewCompose(runner, cfg.Docker.ComposeCommand, cfg.Docker.ComposeTimeout),
		git.New(runner, git.Options{
			StatusTimeout: cfg.Docker.GitStatusTimeout,
			PullTimeout:   cfg.Docker.GitPullTimeout,
		}),
		docker.Options{
			AllowPull:               cfg.Docker.AllowPull,
			AllowRestart:            cfg.Docker.AllowRestart,
			AllowBuild:              cfg.Docker.AllowBuild,
			DefaultEntityPictureURL: cfg.HomeAssistant.DefaultEntityPictureURL,
			DeviceIcon:              cfg.HomeAssistant.DeviceIcon,
			RegistryTimeout:         cfg.Docker.RegistryTimeout,
		},
	)
	provider.SetLogger(log.Component("docker"))

	publisher := hass.NewPublisher(
		mqttClient,
		hass.NewFormatter(topics, cfg.Commandable(), version),
		cfg.HomeAssistant.Discovery.Enabled,
	)

	dispatcher := dispatch.New(publisher, provider)
	dispatcher.SetLogger(log.Component("dispatch"))

	autoUpdates := policy.New(dispatcher, cfg.Update.AutoInterval)
	autoUpdates.SetLogger(log.Component("policy"))

	deps := bridge.Deps{
		Providers:  []release.Provider{provider},
		Bus:        mqttClient,
		Topics:     topics,
		Publisher:  publisher,
		Dispatcher: dispatcher,
		Policy:     autoUpdates,
	}
	if influxClient != nil {
		dispatcher.SetRecorder(influxClient)
		deps.Recorder = influxClient
	}
	if cfg.Cleanup.Enabled {
		sweeper := lifecycle.NewSweeper(sweepConnector(cfg.MQTT, log), topics, lifecycle.Options{
			Window:  cfg.Cleanup.Window,
			NoLocal: cfg.Cleanup.NoLocal,
		})
		sweeper.SetLogger(log.Component("lifecycle"))
		deps.Sweeper = sweeper
	}

	b := bridge.New(deps, bridge.Options{
		Interval:           cfg.Scan.Interval,
		PublishConcurrency: cfg.Scan.PublishConcurrency,
		QueueSize:          cfg.Commands.QueueSize,
	})
	b.SetLogger(log.Component("bridge"))

	if f.once || !cfg.Commandable() {
		log.Info("running a single scan cycle", "once_flag", f.once, "commandable", cfg.Commandable())
		b.Cycle(ctx)
		log.Info("release2mqtt stopped")
		return nil
	}

	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("running bridge: %w", err)
	}

	log.Info("release2mqtt stopped")
	return nil
}

// connectInflux returns nil without error when telemetry is disabled.
func connectInflux(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Node.Name)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// sweepConnector opens a separate broker session for each sweep, so the
// sweep subscription never disturbs the main connection.
func sweepConnector(cfg config.MQTTConfig, log *logging.Logger) lifecycle.Connector {
	return func(context.Context) (lifecycle.Bus, error) {
		client, err := mqtt.Connect(cfg, mqtt.Options{
			ClientIDSuffix: "-sweep-" + release.NewSession()[:8],
		})
		if err != nil {
			return nil, err
		}
		client.SetLogger(log.Component("mqtt-sweep"))
		return client, nil
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when telemetry is disabled.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
