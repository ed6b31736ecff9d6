package config

import (
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bridge          BridgeConfig    `yaml:"bridge"`
	Discovery       DiscoveryConfig `yaml:"discovery"`
	Proximity       ProximityConfig `yaml:"proximity"`
	Feed            FeedConfig      `yaml:"feed"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// BridgeConfig contains Hue bridge connection settings
type BridgeConfig struct {
	Address string   `yaml:"address"` // Optional; discovery runs when empty
	Token   string   `yaml:"token"`   // Optional; authorization runs when empty
	Timeout Duration `yaml:"timeout"` // HTTP timeout for bridge API requests
}

// DiscoveryConfig contains bridge discovery settings
type DiscoveryConfig struct {
	PortalURL string   `yaml:"portal_url"` // N-UPnP lookup endpoint
	Timeout   Duration `yaml:"timeout"`    // HTTP timeout for the portal lookup
}

// ProximityConfig contains proximity automation settings
type ProximityConfig struct {
	CommandDelay Duration `yaml:"command_delay"` // Delay between consecutive light commands
	SettleDelay  Duration `yaml:"settle_delay"`  // Delay after a batch before the cycle completes
}

// FeedConfig contains advertisement feed server settings
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 1)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 16)
}

// GetWorkers returns worker count with default.
// Defaults to a single worker so proximity batches are never interleaved.
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 16
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./presenced.sqlite"
	}

	// Bridge defaults
	if cfg.Bridge.Timeout == 0 {
		cfg.Bridge.Timeout = Duration(30 * time.Second)
	}

	// Discovery defaults
	if cfg.Discovery.PortalURL == "" {
		cfg.Discovery.PortalURL = "https://discovery.meethue.com/"
	}
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = Duration(10 * time.Second)
	}

	// Proximity defaults
	if cfg.Proximity.CommandDelay == 0 {
		cfg.Proximity.CommandDelay = Duration(250 * time.Millisecond)
	}
	if cfg.Proximity.SettleDelay == 0 {
		cfg.Proximity.SettleDelay = Duration(1 * time.Second)
	}

	// Feed defaults
	if cfg.Feed.Port == 0 {
		cfg.Feed.Port = 9290
	}
	if cfg.Feed.Host == "" {
		cfg.Feed.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
