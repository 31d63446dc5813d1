package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 1234
)

type HTTP struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Debug       bool   `yaml:"debug"`       // mounts /debug/memory
	ReadTimeout string `yaml:"readTimeout"` // 10s
	IdleTimeout string `yaml:"idleTimeout"` // 60s

	ReadTimeoutDur time.Duration `yaml:"-"`
	IdleTimeoutDur time.Duration `yaml:"-"`
}

func (h HTTP) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

type GRPC struct {
	Addr string `yaml:"addr"` // empty disables the health server
}

type Relay struct {
	HeartbeatInterval string   `yaml:"heartbeatInterval"` // 15s
	MissedHeartbeats  int      `yaml:"missedHeartbeats"`  // 2
	HandshakeTimeout  string   `yaml:"handshakeTimeout"`  // 10s
	WriteTimeout      string   `yaml:"writeTimeout"`      // 5s
	SendQueueSize     int      `yaml:"sendQueueSize"`     // 256
	OverflowPolicy    string   `yaml:"overflowPolicy"`    // drop-oldest|disconnect
	MaxMessageSize    int64    `yaml:"maxMessageSize"`    // bytes, 1 MiB
	AllowedOrigins    []string `yaml:"allowedOrigins"`    // empty or "*" allows all

	HeartbeatIntervalDur time.Duration `yaml:"-"`
	HandshakeTimeoutDur  time.Duration `yaml:"-"`
	WriteTimeoutDur      time.Duration `yaml:"-"`
}

type Metrics struct {
	Interval string `yaml:"interval"` // 30s
	Instance string `yaml:"instance"` // defaults to the logger instance id

	IntervalDur time.Duration `yaml:"-"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // collab-relay
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"` // empty disables stats persistence
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Relay    Relay    `yaml:"relay"`
	Metrics  Metrics  `yaml:"metrics"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
}

// LoadConfig reads CONFIG_PATH (default ./config/config.yaml). A missing
// file is not an error: the relay runs on defaults plus HOST/PORT.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HOST"); v != "" {
		c.HTTP.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q: %w", v, err)
		}
		c.HTTP.Port = p
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && c.Postgres.DSN == "" {
		c.Postgres.DSN = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.HTTP.Host == "" {
		c.HTTP.Host = DefaultHost
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultPort
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	c.HTTP.ReadTimeoutDur = parseDurationOr(10*time.Second, c.HTTP.ReadTimeout)
	c.HTTP.IdleTimeoutDur = parseDurationOr(60*time.Second, c.HTTP.IdleTimeout)

	c.Relay.HeartbeatIntervalDur = parseDurationOr(15*time.Second, c.Relay.HeartbeatInterval)
	c.Relay.HandshakeTimeoutDur = parseDurationOr(10*time.Second, c.Relay.HandshakeTimeout)
	c.Relay.WriteTimeoutDur = parseDurationOr(5*time.Second, c.Relay.WriteTimeout)
	if c.Relay.MissedHeartbeats == 0 {
		c.Relay.MissedHeartbeats = 2
	}
	if c.Relay.MissedHeartbeats < 0 {
		return errors.New("relay.missedHeartbeats must be positive")
	}
	if c.Relay.SendQueueSize == 0 {
		c.Relay.SendQueueSize = 256
	}
	if c.Relay.SendQueueSize < 0 {
		return errors.New("relay.sendQueueSize must be positive")
	}
	switch c.Relay.OverflowPolicy {
	case "":
		c.Relay.OverflowPolicy = "drop-oldest"
	case "drop-oldest", "disconnect":
	default:
		return fmt.Errorf("relay.overflowPolicy %q: want drop-oldest or disconnect", c.Relay.OverflowPolicy)
	}
	if c.Relay.MaxMessageSize <= 0 {
		c.Relay.MaxMessageSize = 1 << 20
	}

	c.Metrics.IntervalDur = parseDurationOr(30*time.Second, c.Metrics.Interval)

	if c.Logging.Service == "" {
		c.Logging.Service = "collab-relay"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = os.Getenv("APP_ENV")
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	switch c.Logging.Backend {
	case "", "std", "zap":
	default:
		return fmt.Errorf("logging.backend %q: want std or zap", c.Logging.Backend)
	}
	return nil
}

// helper for the string durations in yaml
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
