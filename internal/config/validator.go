package config

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var idPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	if cfg.ProcessID == "" {
		cfg.ProcessID = uuid.NewString()
	}
	if !idPattern.MatchString(cfg.ProcessID) {
		return fmt.Errorf("process_id must match pattern [a-z0-9-]+")
	}
	for _, p := range cfg.Peers {
		if !idPattern.MatchString(p) {
			return fmt.Errorf("peer %q must match pattern [a-z0-9-]+", p)
		}
	}
	if cfg.Processes == 0 {
		cfg.Processes = max(len(cfg.Peers), 1)
	}
	if cfg.Processes < 1 {
		return fmt.Errorf("processes must be >= 1")
	}

	if cfg.TileSize <= 0 {
		cfg.TileSize = 512
	}
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = 2
	}
	if cfg.HealthPort == "" {
		cfg.HealthPort = "8080"
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateBarrier(cfg); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	if err := validateStream(&cfg.Stream); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	if err := validateWindow(&cfg.Window); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	return nil
}

func validateBarrier(cfg *Config) error {
	b := &cfg.Barrier
	if b.Broker == "" && cfg.Processes > 1 {
		return fmt.Errorf("broker is required with %d processes", cfg.Processes)
	}
	if b.TopicPrefix == "" {
		b.TopicPrefix = "tide/barrier"
	}
	if b.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2")
	}
	if b.ConnectTimeoutS <= 0 {
		b.ConnectTimeoutS = 5
	}
	return nil
}

func validateStream(s *StreamConfig) error {
	if s.ID == "" {
		s.ID = "stream"
	}
	if !idPattern.MatchString(s.ID) {
		return fmt.Errorf("id must match pattern [a-z0-9-]+")
	}
	if s.FramesDir == "" {
		return fmt.Errorf("frames_dir is required")
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	if s.SegmentSize <= 0 {
		s.SegmentSize = 256
	}
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("quality must be in [0, 100]")
	}
	switch s.View {
	case "":
		s.View = "mono"
	case "mono", "left", "right":
	default:
		return fmt.Errorf("view must be mono, left or right, got %q", s.View)
	}
	if s.StallThresholdS <= 0 {
		s.StallThresholdS = 5
	}
	return nil
}

func validateWindow(w *WindowConfig) error {
	if w.Width <= 0 {
		w.Width = 1920
	}
	if w.Height <= 0 {
		w.Height = 1080
	}
	if n := len(w.Zoom); n != 0 && n != 4 {
		return fmt.Errorf("zoom needs 4 values, got %d", n)
	}
	if len(w.Zoom) == 4 && (w.Zoom[2] <= 0 || w.Zoom[3] <= 0) {
		return fmt.Errorf("zoom size must be positive")
	}
	if n := len(w.Visible); n != 0 && n != 4 {
		return fmt.Errorf("visible needs 4 values, got %d", n)
	}
	return nil
}
