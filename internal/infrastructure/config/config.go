package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the YAML file is read.
const (
	DefaultHost       = "localhost"
	DefaultPort       = 1883
	DefaultOutputFile = "mqtt.log"
	DefaultPattern    = "#"

	defaultConnectTimeout = 10 * time.Second
	defaultGracePeriod    = time.Second
)

// Config is the root configuration structure for the recorder.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTTAddress    string         `yaml:"mqtt_address"`
	ClientID       string         `yaml:"client_id"`
	PublishQoS     int            `yaml:"publish_qos"`
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`
	Topics         []TopicConfig  `yaml:"topics"`
	OutputFile     string         `yaml:"output_file"`
	Playback       PlaybackConfig `yaml:"playback"`
	Logging        LoggingConfig  `yaml:"logging"`
	Archive        ArchiveConfig  `yaml:"archive"`
	InfluxDB       InfluxDBConfig `yaml:"influxdb"`
	API            APIConfig      `yaml:"api"`
}

// TopicConfig is one subscription entry.
type TopicConfig struct {
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Callback string `yaml:"callback"`
}

// UnmarshalYAML accepts either a bare pattern string or a mapping.
func (t *TopicConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = TopicConfig{Topic: value.Value}
		return nil
	}

	// plain avoids recursing into this method.
	type plain TopicConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = TopicConfig(p)
	return nil
}

// PlaybackConfig contains replay settings.
type PlaybackConfig struct {
	// GracePeriod is how long to wait after the last publish before disconnecting.
	GracePeriod time.Duration `yaml:"grace_period"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ArchiveConfig contains settings for the optional SQLite archive of recorded messages.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains settings for the optional InfluxDB mirror of recorded messages.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	Measurement   string `yaml:"measurement"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains settings for the optional HTTP status API.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	JWT       JWTConfig        `yaml:"jwt"`
}

// APITimeoutConfig contains HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the live message feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// JWTConfig contains bearer token settings. An empty secret leaves the API open.
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"` // minutes
}

// validCallbacks lists the handler names accepted in topics[].callback.
var validCallbacks = map[string]bool{"": true, "dump": true, "log": true, "discard": true}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTREC_KEY
// For example: MQTTREC_MQTT_ADDRESS, MQTTREC_OUTPUT_FILE
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns the validated defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the built-in defaults: record every topic
// on localhost:1883 into mqtt.log.
func Default() *Config {
	return &Config{
		MQTTAddress:    fmt.Sprintf("%s:%d", DefaultHost, DefaultPort),
		ConnectTimeout: defaultConnectTimeout,
		Topics:         []TopicConfig{{Topic: DefaultPattern}},
		OutputFile:     DefaultOutputFile,
		Playback: PlaybackConfig{
			GracePeriod: defaultGracePeriod,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Archive: ArchiveConfig{
			Path:        "./data/mqtt-recorder.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Measurement:   "mqtt_messages",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
			JWT: JWTConfig{
				TokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTTREC_MQTT_ADDRESS"); v != "" {
		cfg.MQTTAddress = v
	}
	if v := os.Getenv("MQTTREC_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("MQTTREC_OUTPUT_FILE"); v != "" {
		cfg.OutputFile = v
	}
	if v := os.Getenv("MQTTREC_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("MQTTREC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("MQTTREC_JWT_SECRET"); v != "" {
		cfg.API.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if _, _, err := ParseAddress(c.MQTTAddress); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt_address: %v", err))
	}

	if c.PublishQoS < 0 || c.PublishQoS > 2 {
		errs = append(errs, "publish_qos must be 0, 1, or 2")
	}

	if c.ConnectTimeout <= 0 {
		errs = append(errs, "connect_timeout must be positive")
	}

	for i, t := range c.Topics {
		if t.Topic == "" {
			errs = append(errs, fmt.Sprintf("topics[%d].topic is required", i))
		}
		if t.QoS < 0 || t.QoS > 2 {
			errs = append(errs, fmt.Sprintf("topics[%d].qos must be 0, 1, or 2", i))
		}
		if !validCallbacks[strings.ToLower(strings.TrimSpace(t.Callback))] {
			errs = append(errs, fmt.Sprintf("topics[%d].callback %q must be dump, log, or discard", i, t.Callback))
		}
	}

	if c.OutputFile == "" {
		errs = append(errs, "output_file is required")
	}

	if c.Playback.GracePeriod < 0 {
		errs = append(errs, "playback.grace_period must not be negative")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, "archive.path is required when the archive is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if c.API.WebSocket.PingInterval <= 0 || c.API.WebSocket.PongTimeout <= 0 {
			errs = append(errs, "api.websocket ping_interval and pong_timeout must be positive")
		}
		if c.API.WebSocket.MaxMessageSize <= 0 {
			errs = append(errs, "api.websocket.max_message_size must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Broker returns the broker host and port from mqtt_address.
func (c *Config) Broker() (host string, port int, err error) {
	return ParseAddress(c.MQTTAddress)
}

// ParseAddress splits a "host[:port]" string. A missing host defaults to
// localhost and a missing port to 1883.
func ParseAddress(addr string) (host string, port int, err error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return DefaultHost, DefaultPort, nil
	}

	if !strings.Contains(addr, ":") {
		return addr, DefaultPort, nil
	}

	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if h == "" {
		h = DefaultHost
	}
	if p == "" {
		return h, DefaultPort, nil
	}

	port, err = strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q in address %q", p, addr)
	}
	return h, port, nil
}
