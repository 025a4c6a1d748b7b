package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/BlueBrain/Tide-sub004/internal/barrier"
	"github.com/BlueBrain/Tide-sub004/internal/config"
	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/health"
	"github.com/BlueBrain/Tide-sub004/internal/pixelstream"
	"github.com/BlueBrain/Tide-sub004/internal/stream"
	"github.com/BlueBrain/Tide-sub004/internal/swapsync"
	"github.com/BlueBrain/Tide-sub004/internal/synchronizer"
	"github.com/BlueBrain/Tide-sub004/internal/tileloader"
)

// tickInterval paces the wall loop (one render frame).
const tickInterval = time.Second / 60

// wall is one wall process showing a single stream window.
type wall struct {
	cfg    *config.Config
	logger *slog.Logger

	client mqtt.Client
	group  *barrier.Group

	source   *datasource.PixelStream
	updater  *stream.Updater
	sync     *synchronizer.PixelStream
	pool     *tileloader.Pool
	renderer *renderer
	replayer *replayer
	checker  *health.Checker

	window  geometry.ZoomHelper
	visible geometry.Rect
}

func newWall(cfg *config.Config, logger *slog.Logger) (*wall, error) {
	w := &wall{
		cfg:     cfg,
		logger:  logger,
		window:  geometry.NewZoomHelper(geometry.Size{W: cfg.Window.Width, H: cfg.Window.Height}, cfg.ZoomRect()),
		visible: cfg.VisibleRect(),
		checker: health.NewChecker(cfg.ProcessID),
	}

	var err error
	if w.replayer, err = newReplayer(cfg.Stream, logger); err != nil {
		return nil, err
	}

	frameKey, swapKey := cfg.Stream.ID+"-frame", cfg.Stream.ID+"-swap"
	var frameConsensus, swapConsensus swapsync.Consensus
	if cfg.Barrier.Broker == "" {
		logger.Info("no barrier broker configured, running as a single process")
		frameConsensus = swapsync.NewLocalGroup(1).Member(0)
		swapConsensus = swapsync.NewLocalGroup(1).Member(0)
	} else {
		if err := w.connect(); err != nil {
			return nil, err
		}
		frameConsensus = w.group.Consensus(frameKey)
		swapConsensus = w.group.Consensus(swapKey)
		w.checker.SetBarrier(w.client.IsConnected)
	}

	w.source = datasource.NewPixelStream(pixelstream.JPEGDecoder{}, datasource.PixelStreamOptions{
		TileSize: cfg.TileSize,
		View:     cfg.StreamView(),
		Logger:   logger,
	})
	w.updater = stream.NewUpdater(w.source, frameConsensus, stream.Options{
		StallThreshold: time.Duration(cfg.Stream.StallThresholdS) * time.Second,
		Logger:         logger,
	})
	w.pool = tileloader.NewPool(tileloader.Options{Workers: cfg.DecodeWorkers, Logger: logger})
	w.renderer = newRenderer(w.source, w.pool, logger)
	w.sync = synchronizer.NewPixelStream(w.source, w.renderer, synchronizer.PixelStreamOptions{
		Consensus:        swapConsensus,
		OnFrameDisplayed: func(uint64) { w.updater.AllowNextFrame() },
		Logger:           logger,
	})

	w.checker.AddStream(cfg.Stream.ID, func() health.StreamStatus {
		st := w.updater.Stats()
		status := health.StreamStatus{
			Received:        st.Received,
			Dropped:         st.Dropped,
			Installed:       st.Installed,
			LastVersion:     st.LastVersion,
			LastInstalledAt: st.LastInstalledAt,
			Stalled:         st.Stalled,
		}
		if w.group != nil {
			status.Proposals = w.group.Status(frameKey).Versions
		}
		return status
	})
	return w, nil
}

func (w *wall) connect() error {
	client, err := barrier.Dial(barrier.DialOptions{
		Broker:   w.cfg.Barrier.Broker,
		ClientID: "tidewall-" + w.cfg.ProcessID,
		Timeout:  time.Duration(w.cfg.Barrier.ConnectTimeoutS) * time.Second,
		Logger:   w.logger,
	})
	if err != nil {
		return err
	}
	group, err := barrier.NewGroup(client, barrier.Options{
		ProcessID:   w.cfg.ProcessID,
		Processes:   w.cfg.Processes,
		Peers:       w.cfg.Peers,
		TopicPrefix: w.cfg.Barrier.TopicPrefix,
		QoS:         w.cfg.Barrier.QoS,
		Logger:      w.logger,
	})
	if err != nil {
		client.Disconnect(250)
		return err
	}
	if err := group.Start(); err != nil {
		client.Disconnect(250)
		return err
	}
	w.client, w.group = client, group
	return nil
}

// run drives the wall loop until ctx is cancelled.
func (w *wall) run(ctx context.Context) error {
	go w.replayer.run(ctx, w.updater.Receive)
	go func() {
		if err := w.checker.Serve(ctx, w.cfg.HealthPort, w.logger); err != nil {
			w.logger.Error("health check server failed", "error", err)
		}
	}()

	w.logger.Info("wall loop started",
		"process_id", w.cfg.ProcessID,
		"processes", w.cfg.Processes,
		"stream", w.cfg.Stream.ID,
		"visible", w.visible,
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.tick(); err != nil {
				return err
			}
		}
	}
}

// tick is one iteration of the wall loop. Contract violations are fatal,
// barrier failures are retried on the next tick.
func (w *wall) tick() error {
	if _, err := w.updater.Sync(); err != nil {
		w.logger.Warn("frame barrier failed", "stream", w.cfg.Stream.ID, "error", err)
	}
	if err := w.sync.Update(w.window, w.visible); err != nil {
		return fmt.Errorf("update stream window: %w", err)
	}
	if err := w.sync.UpdateTiles(); err != nil {
		return fmt.Errorf("update stream tiles: %w", err)
	}
	w.renderer.pump(w.sync)
	if w.sync.CanSwapTiles() {
		w.sync.SwapTiles()
	}

	if w.renderer.statsChanged {
		w.renderer.statsChanged = false
		w.logger.Debug("stream window statistics", "stream", w.cfg.Stream.ID, "stats", w.sync.Statistics())
	}
	if w.renderer.areaChanged {
		w.renderer.areaChanged = false
		w.logger.Info("stream size changed", "stream", w.cfg.Stream.ID, "tiles_area", w.sync.TilesArea())
	}
	return nil
}

// shutdown releases the window, the decode pool and the barrier.
func (w *wall) shutdown(ctx context.Context) error {
	w.sync.Reset()
	if err := w.sync.Close(); err != nil {
		w.logger.Warn("detach synchronizer", "error", err)
	}

	// workers may be blocked handing results to the stopped loop
	closed := make(chan struct{})
	go func() {
		w.pool.Close()
		close(closed)
	}()
drain:
	for {
		select {
		case <-w.renderer.results:
		case <-closed:
			break drain
		case <-ctx.Done():
			return fmt.Errorf("decode pool: %w", ctx.Err())
		}
	}

	if w.group != nil {
		if err := w.group.Stop(); err != nil {
			w.logger.Warn("barrier stop failed", "error", err)
		}
		w.client.Disconnect(250)
		w.logger.Info("mqtt disconnected")
	}
	return nil
}

func (w *wall) shutdownTimeout() time.Duration {
	return time.Duration(w.cfg.ShutdownTimeoutS) * time.Second
}
