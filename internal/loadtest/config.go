package loadtest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Mode selects how edit operations travel through the relay.
type Mode string

const (
	// ModeOpaque sends CBOR-encoded ops as binary frames, the way a CRDT
	// provider pushes sync deltas.
	ModeOpaque Mode = "opaque"
	// ModeStructured wraps each op in a components-update control message.
	ModeStructured Mode = "structured"
)

type Thresholds struct {
	MinConnectSuccess    float64       `json:"minConnectSuccess"` // fraction of dial attempts, 0..1
	MaxErrorRate         float64       `json:"maxErrorRate"`      // errors per attempted operation, 0..1
	MaxP95Latency        time.Duration `json:"maxP95Latency"`     // 0 disables
	MaxLatency           time.Duration `json:"maxLatency"`        // 0 disables
	MinThroughput        float64       `json:"minThroughput"`     // delivered messages per second, 0 disables
	MaxLeakBytesPerCycle uint64        `json:"maxLeakBytesPerCycle"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConnectSuccess:    0.95,
		MaxErrorRate:         0.05,
		MaxP95Latency:        500 * time.Millisecond,
		MinThroughput:        10,
		MaxLeakBytesPerCycle: 50 << 20,
	}
}

type Config struct {
	// URL is the relay base, e.g. ws://127.0.0.1:1234. Room ids are
	// appended as the last path segment.
	URL string
	// HealthURL defaults to URL with the scheme switched to http(s).
	HealthURL string

	Clients       int
	Rooms         int
	RoomPrefix    string
	BatchSize     int
	BatchInterval time.Duration
	RampTimeout   time.Duration
	DialTimeout   time.Duration

	Duration   time.Duration // steady state
	OpInterval time.Duration
	Jitter     time.Duration
	Mode       Mode

	FaultAfter    time.Duration // offset into steady state
	FaultFraction float64       // 0 disables fault injection
	ReapTimeout   time.Duration

	Cycles        int // 0 disables leak detection
	LeakClients   int
	CycleDuration time.Duration
	SettleTimeout time.Duration

	Seed       uint64
	Thresholds Thresholds
}

func DefaultConfig() Config {
	return Config{
		URL:           "ws://127.0.0.1:1234",
		Clients:       100,
		Rooms:         10,
		RoomPrefix:    "load-test-room",
		BatchSize:     10,
		BatchInterval: 6 * time.Second,
		RampTimeout:   30 * time.Second,
		DialTimeout:   10 * time.Second,

		Duration:   5 * time.Minute,
		OpInterval: 2 * time.Second,
		Jitter:     time.Second,
		Mode:       ModeOpaque,

		FaultAfter:    2 * time.Minute,
		FaultFraction: 0.3,
		ReapTimeout:   45 * time.Second,

		Cycles:        5,
		LeakClients:   50,
		CycleDuration: 10 * time.Second,
		SettleTimeout: 45 * time.Second,

		Thresholds: DefaultThresholds(),
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme %q: want ws or wss", u.Scheme)
	}
	if c.HealthURL == "" {
		c.HealthURL = healthBase(u)
	}
	if c.Clients <= 0 {
		return errors.New("clients must be positive")
	}
	if c.Rooms <= 0 {
		c.Rooms = 1
	}
	if c.RoomPrefix == "" {
		c.RoomPrefix = "load-test-room"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = c.Clients
	}
	if c.OpInterval <= 0 {
		return errors.New("op interval must be positive")
	}
	if c.Jitter < 0 || c.Jitter >= c.OpInterval {
		return fmt.Errorf("jitter %s must be in [0, op interval)", c.Jitter)
	}
	switch c.Mode {
	case "":
		c.Mode = ModeOpaque
	case ModeOpaque, ModeStructured:
	default:
		return fmt.Errorf("mode %q: want opaque or structured", c.Mode)
	}
	if c.FaultFraction < 0 || c.FaultFraction >= 1 {
		return fmt.Errorf("fault fraction %.2f must be in [0, 1)", c.FaultFraction)
	}
	if c.FaultFraction > 0 && c.FaultAfter >= c.Duration {
		return fmt.Errorf("fault after %s must be inside the %s steady state", c.FaultAfter, c.Duration)
	}
	if c.Cycles < 0 {
		return errors.New("cycles must not be negative")
	}
	if c.Cycles > 0 && c.LeakClients <= 0 {
		return errors.New("leak clients must be positive when cycles are enabled")
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.RampTimeout <= 0 {
		c.RampTimeout = 30 * time.Second
	}
	if c.ReapTimeout <= 0 {
		c.ReapTimeout = 45 * time.Second
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = c.ReapTimeout
	}
	return nil
}

func (c *Config) roomFor(i int) string {
	return fmt.Sprintf("%s-%d", c.RoomPrefix, i%c.Rooms)
}

func (c *Config) roomURL(room string) string {
	return strings.TrimRight(c.URL, "/") + "/" + url.PathEscape(room)
}

func healthBase(u *url.URL) string {
	h := *u
	if h.Scheme == "wss" {
		h.Scheme = "https"
	} else {
		h.Scheme = "http"
	}
	h.Path = ""
	h.RawQuery = ""
	return h.String()
}
