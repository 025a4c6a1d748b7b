package main

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BlueBrain/Tide-sub004/internal/config"
	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/pixelstream"
	"github.com/BlueBrain/Tide-sub004/internal/stream"
	"github.com/BlueBrain/Tide-sub004/internal/synchronizer"
	"github.com/BlueBrain/Tide-sub004/internal/tileloader"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// TestRendererLoadsAndSwaps drives a static image through the pool.
func TestRendererLoadsAndSwaps(t *testing.T) {
	source := datasource.NewBasic(types.NewImage(64, 32, types.FormatRGBA))
	pool := tileloader.NewPool(tileloader.Options{Workers: 1, Logger: quietLogger()})
	defer pool.Close()

	r := newRenderer(source, pool, quietLogger())
	syncer := synchronizer.NewBasic(source, r)
	window := geometry.NewZoomHelper(geometry.Size{W: 64, H: 32}, geometry.Unit)
	if err := syncer.Update(window, geometry.Rect{W: 64, H: 32}); err != nil {
		t.Fatal(err)
	}
	if err := syncer.UpdateTiles(); err != nil {
		t.Fatal(err)
	}
	if len(r.tiles) != 1 || !r.areaChanged {
		t.Fatalf("tiles %d area changed %v", len(r.tiles), r.areaChanged)
	}

	rt := r.tiles[0]
	deadline := time.Now().Add(5 * time.Second)
	for rt.front == nil {
		if time.Now().After(deadline) {
			t.Fatal("tile never swapped")
		}
		r.pump(syncer)
		time.Sleep(time.Millisecond)
	}
	if rt.loading || rt.back != nil {
		t.Errorf("loading %v back %v", rt.loading, rt.back != nil)
	}
	if rt.front.Width != 64 || rt.front.Height != 32 {
		t.Errorf("front %dx%d", rt.front.Width, rt.front.Height)
	}

	syncer.Reset()
	if len(r.tiles) != 0 {
		t.Errorf("tiles after reset: %d", len(r.tiles))
	}
}

// sequenceSource serves a different image on every load and holds each load
// until released.
type sequenceSource struct {
	*datasource.Basic
	images  []*types.Image
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (s *sequenceSource) TileImage(uint) (*types.Image, error) {
	s.mu.Lock()
	img := s.images[s.calls]
	s.calls++
	s.mu.Unlock()

	s.started <- struct{}{}
	<-s.release
	return img, nil
}

// TestRendererDropsResultOfRemovedTile re-adds a tile while the load of its
// previous incarnation is in flight; only the new load may reach the screen.
func TestRendererDropsResultOfRemovedTile(t *testing.T) {
	oldImg := types.NewImage(64, 32, types.FormatRGBA)
	newImg := types.NewImage(64, 32, types.FormatRGBA)
	source := &sequenceSource{
		Basic:   datasource.NewBasic(oldImg),
		images:  []*types.Image{oldImg, newImg},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	pool := tileloader.NewPool(tileloader.Options{Workers: 1, Logger: quietLogger()})
	defer pool.Close()

	r := newRenderer(source, pool, quietLogger())
	syncer := synchronizer.NewBasic(source, r)
	tl := synchronizer.Tile{ID: 0, Rect: image.Rect(0, 0, 64, 32), Format: types.FormatRGBA}

	r.AddTile(tl)
	<-source.started
	r.RemoveTile(0)
	r.AddTile(tl)
	close(source.release)

	rt := r.tiles[0]
	deadline := time.Now().Add(5 * time.Second)
	for rt.front != newImg {
		if rt.front == oldImg {
			t.Fatal("result of the removed tile was shown")
		}
		if time.Now().After(deadline) {
			t.Fatal("tile never swapped")
		}
		r.pump(syncer)
		time.Sleep(time.Millisecond)
	}
	if rt.loading {
		t.Error("tile still loading")
	}
}

// TestCorruptFrameDoesNotStallStream runs the stream updater, the pixel
// stream synchronizer and the renderer on a frame with an undecodable
// segment: the next frame must still be displayed.
func TestCorruptFrameDoesNotStallStream(t *testing.T) {
	img := types.NewImage(640, 256, types.FormatRGBA)
	split := pixelstream.SplitOptions{Size: 128, Compress: true}
	bad, err := pixelstream.Split(img, split)
	if err != nil {
		t.Fatal(err)
	}
	bad[0].Data = []byte("not a jpeg")
	good, err := pixelstream.Split(img, split)
	if err != nil {
		t.Fatal(err)
	}

	source := datasource.NewPixelStream(pixelstream.JPEGDecoder{}, datasource.PixelStreamOptions{
		TileSize: 512,
		Logger:   quietLogger(),
	})
	updater := stream.NewUpdater(source, nil, stream.Options{Logger: quietLogger()})
	pool := tileloader.NewPool(tileloader.Options{Workers: 2, Logger: quietLogger()})
	defer pool.Close()

	r := newRenderer(source, pool, quietLogger())
	var displayed []uint64
	syncer := synchronizer.NewPixelStream(source, r, synchronizer.PixelStreamOptions{
		OnFrameDisplayed: func(v uint64) {
			displayed = append(displayed, v)
			updater.AllowNextFrame()
		},
		Logger: quietLogger(),
	})
	defer syncer.Close()

	window := geometry.NewZoomHelper(geometry.Size{W: 640, H: 256}, geometry.Unit)
	visible := geometry.Rect{W: 640, H: 256}
	updater.Receive(&types.Frame{URI: "lobby", Index: 1, Segments: bad})

	deadline := time.Now().Add(5 * time.Second)
	for tick := 1; len(displayed) == 0 || displayed[len(displayed)-1] != 2; tick++ {
		if time.Now().After(deadline) {
			t.Fatalf("frame 2 never displayed: displayed %v stats %+v", displayed, updater.Stats())
		}
		if tick == 2 {
			updater.Receive(&types.Frame{URI: "lobby", Index: 2, Segments: good})
		}
		if _, err := updater.Sync(); err != nil {
			t.Fatal(err)
		}
		if err := syncer.Update(window, visible); err != nil {
			t.Fatal(err)
		}
		if err := syncer.UpdateTiles(); err != nil {
			t.Fatal(err)
		}
		r.pump(syncer)
		if syncer.CanSwapTiles() {
			syncer.SwapTiles()
		}
		time.Sleep(time.Millisecond)
	}

	if got := updater.Stats().LastVersion; got != 2 {
		t.Errorf("installed version %d, want 2", got)
	}
}

// TestReplayerFrames checks frame order and clock-derived indices.
func TestReplayerFrames(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), color.RGBA{0, 255, 0, 255})
	writePNG(t, filepath.Join(dir, "a.png"), color.RGBA{255, 0, 0, 255})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := newReplayer(config.StreamConfig{ID: "lobby", FramesDir: dir, FPS: 10, SegmentSize: 16}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(r.frames) != 2 || len(r.frames[0]) != 4 {
		t.Fatalf("frames %d segments %d", len(r.frames), len(r.frames[0]))
	}

	f := r.frame(3)
	if f.URI != "lobby" || f.Index != 3 || f.TraceID == "" {
		t.Errorf("frame %+v", f)
	}
	if &f.Segments[0] != &r.frames[1][0] {
		t.Error("frame 3 should replay the second image")
	}

	if got := r.indexAt(time.Unix(0, int64(250*time.Millisecond))); got != 2 {
		t.Errorf("index at 250ms = %d", got)
	}
}

func TestReplayerRequiresFrames(t *testing.T) {
	if _, err := newReplayer(config.StreamConfig{FramesDir: t.TempDir(), FPS: 10, SegmentSize: 16}, quietLogger()); err == nil {
		t.Error("empty directory accepted")
	}
}
