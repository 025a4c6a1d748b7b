package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"

	"github.com/BlueBrain/Tide-sub004/internal/config"
	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/pixelstream"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

var frameExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// replayer plays a directory of images as a pixel stream. Frame indices
// are derived from the wall clock, so every process replaying the same
// directory produces the same index for the same image.
type replayer struct {
	uri    string
	period time.Duration
	frames [][]types.Segment
	logger *slog.Logger
}

func newReplayer(cfg config.StreamConfig, logger *slog.Logger) (*replayer, error) {
	entries, err := os.ReadDir(cfg.FramesDir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no frames in %s", cfg.FramesDir)
	}

	r := &replayer{
		uri:    cfg.ID,
		period: time.Second / time.Duration(cfg.FPS),
		logger: logger,
	}
	opts := pixelstream.SplitOptions{
		Size:     cfg.SegmentSize,
		Compress: cfg.Compress,
		Quality:  cfg.Quality,
	}
	for _, name := range names {
		segs, err := loadSegments(filepath.Join(cfg.FramesDir, name), opts)
		if err != nil {
			return nil, err
		}
		r.frames = append(r.frames, segs)
	}

	logger.Info("stream replayer ready",
		"uri", r.uri,
		"frames", len(r.frames),
		"fps", cfg.FPS,
		"segment_size", cfg.SegmentSize,
		"compress", cfg.Compress,
	)
	return r, nil
}

func loadSegments(path string, opts pixelstream.SplitOptions) ([]types.Segment, error) {
	img, err := datasource.LoadImage(path)
	if err != nil {
		return nil, err
	}
	if opts.Compress && img.Format != types.FormatRGBA && img.Format != types.FormatYUV420 {
		img = types.FromImage(toRGBA(img))
	}
	segs, err := pixelstream.Split(img, opts)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}
	return segs, nil
}

func toRGBA(img *types.Image) *image.RGBA {
	src := img.ToImage()
	dst := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	xdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, xdraw.Src)
	return dst
}

// frame returns the frame for index. Segments are shared between frames
// and never modified.
func (r *replayer) frame(index uint64) *types.Frame {
	segs := r.frames[index%uint64(len(r.frames))]
	return &types.Frame{
		URI:      r.uri,
		Index:    index,
		TraceID:  uuid.NewString(),
		Segments: segs,
	}
}

func (r *replayer) indexAt(t time.Time) uint64 {
	return uint64(t.UnixNano() / int64(r.period))
}

// run delivers a frame every period until ctx is cancelled.
func (r *replayer) run(ctx context.Context, deliver func(*types.Frame)) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f := r.frame(r.indexAt(now))
			r.logger.Debug("stream frame received", "uri", f.URI, "frame", f.Index, "trace_id", f.TraceID)
			deliver(f)
		}
	}
}
