// Package health serves the liveness and readiness endpoints of a wall
// process.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// StreamStatus contains the progress of one pixel stream
type StreamStatus struct {
	Received        uint64            `json:"received"`
	Dropped         uint64            `json:"dropped"`
	Installed       uint64            `json:"installed"`
	LastVersion     uint64            `json:"last_version"`
	LastInstalledAt time.Time         `json:"last_installed_at"`
	Stalled         bool              `json:"stalled"`
	Proposals       map[string]uint64 `json:"proposals,omitempty"` // barrier view, process id -> version
}

// Status represents the health state of the wall process
type Status struct {
	Status           string                  `json:"status"` // "ready", "degraded", "waiting"
	ProcessID        string                  `json:"process_id"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	BarrierConnected bool                    `json:"barrier_connected"`
	Stalled          []string                `json:"stalled,omitempty"`
	Streams          map[string]StreamStatus `json:"streams,omitempty"`
}

// Checker aggregates the status of the process components.
type Checker struct {
	processID string
	started   time.Time

	mu      sync.RWMutex
	barrier func() bool
	streams map[string]func() StreamStatus
}

// NewChecker creates a checker for processID.
func NewChecker(processID string) *Checker {
	return &Checker{
		processID: processID,
		started:   time.Now(),
		streams:   make(map[string]func() StreamStatus),
	}
}

// SetBarrier registers the barrier connection check. Without one the
// process is considered alone and the barrier always connected.
func (c *Checker) SetBarrier(connected func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.barrier = connected
}

// AddStream registers the status source of a stream.
func (c *Checker) AddStream(id string, status func() StreamStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[id] = status
}

// RemoveStream unregisters a stream.
func (c *Checker) RemoveStream(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, id)
}

// Check returns the current health status. A stalled stream makes the
// process "waiting": the stream is not advancing on the wall.
func (c *Checker) Check() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		Status:           "ready",
		ProcessID:        c.processID,
		UptimeSeconds:    int64(time.Since(c.started).Seconds()),
		BarrierConnected: c.barrier == nil || c.barrier(),
		Streams:          make(map[string]StreamStatus, len(c.streams)),
	}
	for id, fn := range c.streams {
		s := fn()
		status.Streams[id] = s
		if s.Stalled {
			status.Stalled = append(status.Stalled, id)
		}
	}
	sort.Strings(status.Stalled)

	switch {
	case len(status.Stalled) > 0:
		status.Status = "waiting"
	case !status.BarrierConnected:
		status.Status = "degraded"
	}
	return status
}

// LivenessHandler handles /health (simple liveness check)
func (c *Checker) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(c.started).Seconds()),
	})
}

// ReadinessHandler handles /readiness (detailed status). A waiting process
// answers 503, a degraded one is still ready.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := c.Check()
	code := http.StatusOK
	if status.Status == "waiting" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Handler returns the mux serving both endpoints.
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.LivenessHandler)
	mux.HandleFunc("/readiness", c.ReadinessHandler)
	return mux
}

// Serve runs the health server on port until ctx is cancelled.
func (c *Checker) Serve(ctx context.Context, port string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness"},
	)

	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
