// Package config loads the JSON configuration consumed by the service
// facade, transport, and HTTP layers. The track store and dispatcher core
// never read this package directly; policy values are passed in as plain
// arguments at construction time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxConfigFileBytes bounds the size of a config file we will parse, as a
// defense against accidentally pointing at the wrong file.
const maxConfigFileBytes = 1 << 20 // 1 MiB

// Config holds every tunable the trackhub binary accepts. Fields are
// pointers so a JSON file can omit a value and let Get* fall back to its
// documented default rather than to Go's zero value.
type Config struct {
	PoolCapacity     *int `json:"pool_capacity,omitempty"`
	PointsPerTrack   *int `json:"points_per_track,omitempty"`
	MaxExtrapolation *int `json:"max_extrapolation,omitempty"`

	DrawQueueCapacity   *int `json:"draw_queue_capacity,omitempty"`
	MergeQueueCapacity  *int `json:"merge_queue_capacity,omitempty"`
	CreateQueueCapacity *int `json:"create_queue_capacity,omitempty"`
	AddQueueCapacity    *int `json:"add_queue_capacity,omitempty"`
	ClearQueueCapacity  *int `json:"clear_queue_capacity,omitempty"`

	DispatcherIdleWaitMillis *int `json:"dispatcher_idle_wait_millis,omitempty"`
	ShutdownGraceSeconds     *int `json:"shutdown_grace_seconds,omitempty"`

	VisualizerListenAddr *string `json:"visualizer_listen_addr,omitempty"`
	TransportListenAddr  *string `json:"transport_listen_addr,omitempty"`
	HTTPListenAddr       *string `json:"http_listen_addr,omitempty"`
}

// Defaults mirror the reference values from the design notes: a 256-slot
// pool, four points kept per track, and three extrapolations tolerated
// before a track is terminated.
const (
	DefaultPoolCapacity     = 256
	DefaultPointsPerTrack   = 4
	DefaultMaxExtrapolation = 3

	DefaultDrawQueueCapacity   = 16
	DefaultMergeQueueCapacity  = 16
	DefaultCreateQueueCapacity = 64
	DefaultAddQueueCapacity    = 1024
	DefaultClearQueueCapacity  = 4

	DefaultDispatcherIdleWaitMillis = 10
	DefaultShutdownGraceSeconds     = 2

	DefaultVisualizerListenAddr = ":7701"
	DefaultTransportListenAddr  = ":7702"
	DefaultHTTPListenAddr       = ":7703"
)

// LoadConfig reads and validates a JSON config file at path. The path must
// carry a .json extension and the file must not exceed maxConfigFileBytes;
// both checks exist to catch the wrong-file-argument mistake early rather
// than letting json.Unmarshal fail opaquely.
func LoadConfig(path string) (*Config, error) {
	if ext := filepath.Ext(path); !strings.EqualFold(ext, ".json") {
		return nil, fmt.Errorf("config: %s: expected a .json file, got extension %q", path, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > maxConfigFileBytes {
		return nil, fmt.Errorf("config: %s: file is %d bytes, exceeds %d byte limit", path, info.Size(), maxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

// MustDefaultConfig returns a Config with every field unset, so every
// accessor resolves to its documented default. Useful for tests and for
// running trackd with no config file supplied.
func MustDefaultConfig() *Config {
	return &Config{}
}

// Validate rejects values that would make the pool or dispatcher
// unusable. It does not fill in defaults; GetPoolCapacity and friends do.
func (c *Config) Validate() error {
	if c.PoolCapacity != nil && *c.PoolCapacity <= 0 {
		return fmt.Errorf("pool_capacity must be positive, got %d", *c.PoolCapacity)
	}
	if c.PointsPerTrack != nil && *c.PointsPerTrack <= 0 {
		return fmt.Errorf("points_per_track must be positive, got %d", *c.PointsPerTrack)
	}
	if c.MaxExtrapolation != nil && *c.MaxExtrapolation < 0 {
		return fmt.Errorf("max_extrapolation must be non-negative, got %d", *c.MaxExtrapolation)
	}
	for name, v := range map[string]*int{
		"draw_queue_capacity":   c.DrawQueueCapacity,
		"merge_queue_capacity":  c.MergeQueueCapacity,
		"create_queue_capacity": c.CreateQueueCapacity,
		"add_queue_capacity":    c.AddQueueCapacity,
		"clear_queue_capacity":  c.ClearQueueCapacity,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.DispatcherIdleWaitMillis != nil && *c.DispatcherIdleWaitMillis <= 0 {
		return fmt.Errorf("dispatcher_idle_wait_millis must be positive, got %d", *c.DispatcherIdleWaitMillis)
	}
	if c.ShutdownGraceSeconds != nil && *c.ShutdownGraceSeconds < 0 {
		return fmt.Errorf("shutdown_grace_seconds must be non-negative, got %d", *c.ShutdownGraceSeconds)
	}
	return nil
}

func (c *Config) GetPoolCapacity() int {
	if c.PoolCapacity != nil {
		return *c.PoolCapacity
	}
	return DefaultPoolCapacity
}

func (c *Config) GetPointsPerTrack() int {
	if c.PointsPerTrack != nil {
		return *c.PointsPerTrack
	}
	return DefaultPointsPerTrack
}

func (c *Config) GetMaxExtrapolation() int {
	if c.MaxExtrapolation != nil {
		return *c.MaxExtrapolation
	}
	return DefaultMaxExtrapolation
}

func (c *Config) GetDrawQueueCapacity() int {
	if c.DrawQueueCapacity != nil {
		return *c.DrawQueueCapacity
	}
	return DefaultDrawQueueCapacity
}

func (c *Config) GetMergeQueueCapacity() int {
	if c.MergeQueueCapacity != nil {
		return *c.MergeQueueCapacity
	}
	return DefaultMergeQueueCapacity
}

func (c *Config) GetCreateQueueCapacity() int {
	if c.CreateQueueCapacity != nil {
		return *c.CreateQueueCapacity
	}
	return DefaultCreateQueueCapacity
}

func (c *Config) GetAddQueueCapacity() int {
	if c.AddQueueCapacity != nil {
		return *c.AddQueueCapacity
	}
	return DefaultAddQueueCapacity
}

func (c *Config) GetClearQueueCapacity() int {
	if c.ClearQueueCapacity != nil {
		return *c.ClearQueueCapacity
	}
	return DefaultClearQueueCapacity
}

func (c *Config) GetDispatcherIdleWaitMillis() int {
	if c.DispatcherIdleWaitMillis != nil {
		return *c.DispatcherIdleWaitMillis
	}
	return DefaultDispatcherIdleWaitMillis
}

func (c *Config) GetShutdownGraceSeconds() int {
	if c.ShutdownGraceSeconds != nil {
		return *c.ShutdownGraceSeconds
	}
	return DefaultShutdownGraceSeconds
}

func (c *Config) GetVisualizerListenAddr() string {
	if c.VisualizerListenAddr != nil {
		return *c.VisualizerListenAddr
	}
	return DefaultVisualizerListenAddr
}

func (c *Config) GetTransportListenAddr() string {
	if c.TransportListenAddr != nil {
		return *c.TransportListenAddr
	}
	return DefaultTransportListenAddr
}

func (c *Config) GetHTTPListenAddr() string {
	if c.HTTPListenAddr != nil {
		return *c.HTTPListenAddr
	}
	return DefaultHTTPListenAddr
}
