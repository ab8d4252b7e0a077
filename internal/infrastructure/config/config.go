package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for release2mqtt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node          NodeConfig          `yaml:"node"`
	Logging       LoggingConfig       `yaml:"logging"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Docker        DockerConfig        `yaml:"docker"`
	Scan          ScanConfig          `yaml:"scan"`
	Update        UpdateConfig        `yaml:"update"`
	Commands      CommandsConfig      `yaml:"commands"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
}

// NodeConfig identifies the host this bridge runs on.
// Name defaults to the host name when left empty.
type NodeConfig struct {
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// HomeAssistantConfig controls the Home Assistant MQTT discovery layout.
type HomeAssistantConfig struct {
	Discovery HomeAssistantDiscoveryConfig `yaml:"discovery"`

	// TopicRoot is the base for state, command and availability topics.
	TopicRoot string `yaml:"topic_root"`

	// DeviceIcon is the mdi icon shown for update entities.
	DeviceIcon string `yaml:"device_icon"`

	// DefaultEntityPictureURL is used unless a unit overrides it.
	DefaultEntityPictureURL string `yaml:"default_entity_picture_url"`
}

// HomeAssistantDiscoveryConfig contains discovery topic settings.
type HomeAssistantDiscoveryConfig struct {
	Prefix  string `yaml:"prefix"`
	Enabled bool   `yaml:"enabled"`
}

// DockerConfig contains settings for the Docker unit provider.
type DockerConfig struct {
	Enabled      bool `yaml:"enabled"`
	AllowPull    bool `yaml:"allow_pull"`
	AllowRestart bool `yaml:"allow_restart"`
	AllowBuild   bool `yaml:"allow_build"`

	// ComposeCommand is the compose invocation, e.g. ["docker", "compose"].
	ComposeCommand []string `yaml:"compose_command"`

	// ComposeTimeout bounds a single compose build or up invocation.
	ComposeTimeout time.Duration `yaml:"compose_timeout"`

	// GitStatusTimeout bounds "git status" checks on source-built units.
	GitStatusTimeout time.Duration `yaml:"git_status_timeout"`

	// GitPullTimeout bounds "git pull" on source-built units.
	GitPullTimeout time.Duration `yaml:"git_pull_timeout"`

	// RegistryTimeout bounds a single registry lookup attempt.
	RegistryTimeout time.Duration `yaml:"registry_timeout"`
}

// ScanConfig controls the periodic scan loop.
type ScanConfig struct {
	// Interval between scan cycles. Cycles never overlap.
	Interval time.Duration `yaml:"interval"`

	// PublishConcurrency bounds concurrent per-unit publishing in one scan.
	PublishConcurrency int `yaml:"publish_concurrency"`
}

// UpdateConfig controls auto-update throttling.
type UpdateConfig struct {
	// AutoInterval is the minimum time between automatic install attempts
	// for one unit.
	AutoInterval time.Duration `yaml:"auto_interval"`
}

// CommandsConfig controls inbound command handling.
type CommandsConfig struct {
	// QueueSize bounds commands waiting for the run loop. Commands arriving
	// on a full queue are dropped.
	QueueSize int `yaml:"queue_size"`
}

// CleanupConfig controls the stale retained topic sweep.
type CleanupConfig struct {
	Enabled bool `yaml:"enabled"`

	// Window is how long the sweep collects retained messages.
	Window time.Duration `yaml:"window"`

	// NoLocal drops live echoes of this client's own publishes from the
	// sweep subscription.
	NoLocal bool `yaml:"no_local"`
}

// InfluxDBConfig contains InfluxDB connection settings for update telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// If the file does not exist the defaults are written to it, so a first run
// leaves an editable config behind.
//
// Environment variables follow the pattern: RELEASE2MQTT_SECTION_KEY
// For example: RELEASE2MQTT_MQTT_HOST, RELEASE2MQTT_NODE_NAME
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if writeErr := writeDefaults(path, cfg); writeErr != nil {
			return nil, fmt.Errorf("writing default config: %w", writeErr)
		}
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Node.Name == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolving node name: %w", err)
		}
		cfg.Node.Name = host
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// writeDefaults saves cfg as YAML at path, creating parent directories.
func writeDefaults(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "release2mqtt",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		HomeAssistant: HomeAssistantConfig{
			Discovery: HomeAssistantDiscoveryConfig{
				Prefix:  "homeassistant",
				Enabled: true,
			},
			TopicRoot:               "release2mqtt",
			DeviceIcon:              "mdi:train-car-container",
			DefaultEntityPictureURL: "https://www.docker.com/wp-content/uploads/2022/03/Moby-logo.png",
		},
		Docker: DockerConfig{
			Enabled:          true,
			AllowPull:        true,
			AllowRestart:     true,
			AllowBuild:       true,
			ComposeCommand:   []string{"docker", "compose"},
			ComposeTimeout:   10 * time.Minute,
			GitStatusTimeout: 2 * time.Minute,
			GitPullTimeout:   5 * time.Minute,
			RegistryTimeout:  30 * time.Second,
		},
		Scan: ScanConfig{
			Interval:           3 * time.Hour,
			PublishConcurrency: 4,
		},
		Update: UpdateConfig{
			AutoInterval: 4 * time.Hour,
		},
		Commands: CommandsConfig{
			QueueSize: 32,
		},
		Cleanup: CleanupConfig{
			Enabled: true,
			Window:  20 * time.Second,
			NoLocal: true,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "release2mqtt",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RELEASE2MQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Node
	if v := os.Getenv("RELEASE2MQTT_NODE_NAME"); v != "" {
		cfg.Node.Name = v
	}

	// Logging
	if v := os.Getenv("RELEASE2MQTT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("RELEASE2MQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RELEASE2MQTT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("RELEASE2MQTT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RELEASE2MQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("RELEASE2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.Name == "" {
		errs = append(errs, "node.name is required")
	} else if strings.ContainsAny(c.Node.Name, "/+#") {
		errs = append(errs, "node.name must not contain MQTT topic separators or wildcards")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Topic layout
	if c.HomeAssistant.Discovery.Prefix == "" {
		errs = append(errs, "homeassistant.discovery.prefix is required")
	}
	if c.HomeAssistant.TopicRoot == "" {
		errs = append(errs, "homeassistant.topic_root is required")
	}

	if c.Docker.Enabled && len(c.Docker.ComposeCommand) == 0 {
		errs = append(errs, "docker.compose_command is required when docker is enabled")
	}

	if c.Scan.Interval <= 0 {
		errs = append(errs, "scan.interval must be positive")
	}
	if c.Scan.PublishConcurrency < 1 {
		errs = append(errs, "scan.publish_concurrency must be at least 1")
	}
	if c.Update.AutoInterval <= 0 {
		errs = append(errs, "update.auto_interval must be positive")
	}
	if c.Commands.QueueSize < 1 {
		errs = append(errs, "commands.queue_size must be at least 1")
	}
	if c.Cleanup.Enabled && c.Cleanup.Window <= 0 {
		errs = append(errs, "cleanup.window must be positive when cleanup is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Commandable reports whether any update path is enabled, i.e. whether
// install commands can ever succeed.
func (c *Config) Commandable() bool {
	return c.Docker.AllowPull || c.Docker.AllowRestart || c.Docker.AllowBuild
}
