// Package config loads the YAML configuration of a wall process.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// Config represents the complete wall process configuration
type Config struct {
	ProcessID        string        `yaml:"process_id"` // defaults to a random uuid
	Processes        int           `yaml:"processes"`  // wall processes sharing the swap barrier
	Peers            []string      `yaml:"peers"`      // optional explicit process ids
	TileSize         int           `yaml:"tile_size"`
	DecodeWorkers    int           `yaml:"decode_workers"`
	HealthPort       string        `yaml:"health_port"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"`
	Barrier          BarrierConfig `yaml:"barrier"`
	Stream           StreamConfig  `yaml:"stream"`
	Window           WindowConfig  `yaml:"window"`
}

// BarrierConfig contains the MQTT swap barrier settings. An empty broker
// is only valid for a single process.
type BarrierConfig struct {
	Broker          string `yaml:"broker"`
	TopicPrefix     string `yaml:"topic_prefix"`
	QoS             byte   `yaml:"qos"`
	ConnectTimeoutS int    `yaml:"connect_timeout_s"`
}

// StreamConfig describes the replayed pixel stream
type StreamConfig struct {
	ID              string `yaml:"id"`         // barrier key, one topic level
	FramesDir       string `yaml:"frames_dir"` // images replayed in name order
	FPS             int    `yaml:"fps"`
	SegmentSize     int    `yaml:"segment_size"`
	Compress        bool   `yaml:"compress"`
	Quality         int    `yaml:"quality"`
	View            string `yaml:"view"` // mono, left, right
	StallThresholdS int    `yaml:"stall_threshold_s"`
}

// WindowConfig places the stream window on the wall
type WindowConfig struct {
	Width   float64   `yaml:"width"`
	Height  float64   `yaml:"height"`
	Zoom    []float64 `yaml:"zoom"`    // x, y, w, h in normalized content space
	Visible []float64 `yaml:"visible"` // part of the window shown by this process, x, y, w, h
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// StreamView returns the configured stereo eye.
func (c *Config) StreamView() types.View {
	switch c.Stream.View {
	case "left":
		return types.ViewLeftEye
	case "right":
		return types.ViewRightEye
	default:
		return types.ViewMono
	}
}

// ZoomRect returns the window zoom, geometry.Unit when unset.
func (c *Config) ZoomRect() geometry.Rect {
	return rectOr(c.Window.Zoom, geometry.Unit)
}

// VisibleRect returns the part of the window shown by this process, the
// whole window when unset.
func (c *Config) VisibleRect() geometry.Rect {
	return rectOr(c.Window.Visible, geometry.Rect{W: c.Window.Width, H: c.Window.Height})
}

func rectOr(v []float64, def geometry.Rect) geometry.Rect {
	if len(v) != 4 {
		return def
	}
	return geometry.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}
}
