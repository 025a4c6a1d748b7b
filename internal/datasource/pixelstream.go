package datasource

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/pixelstream"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// PixelStreamOptions configures a PixelStream source.
type PixelStreamOptions struct {
	// TileSize is the target tile size segments are assembled into.
	TileSize int
	// View selects the stereo eye shown by this process; mono segments are
	// always kept.
	View types.View
	// Logger receives assembly fallbacks at debug level.
	Logger *slog.Logger
}

// PixelStream serves the latest frame of a live stream. Tile ids are global
// across channels; every query for a channel goes to that channel's
// assembler (or pass-through fallback).
type PixelStream struct {
	Registry
	decoder pixelstream.Decoder
	opts    PixelStreamOptions

	mu       sync.RWMutex
	frame    *types.Frame
	channels *pixelstream.Channels
}

// NewPixelStream creates an empty stream source. Compressed segments are
// decoded with dec.
func NewPixelStream(dec pixelstream.Decoder, opts PixelStreamOptions) *PixelStream {
	if opts.TileSize <= 0 {
		opts.TileSize = pixelstream.TargetTileSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &PixelStream{decoder: dec, opts: opts}
}

// SetFrame assembles frame and makes it current, then notifies listeners.
// The caller's frame is not modified.
func (ps *PixelStream) SetFrame(frame *types.Frame) error {
	f := frame.FilterView(ps.opts.View)
	f.SortSegments()
	channels, err := pixelstream.NewChannels(f, ps.opts.TileSize, ps.opts.Logger)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	ps.frame, ps.channels = f, channels
	ps.mu.Unlock()

	ps.Notify()
	return nil
}

// Frame returns the current frame, nil before the first one.
func (ps *PixelStream) Frame() *types.Frame {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.frame
}

// Version returns the index of the current frame.
func (ps *PixelStream) Version() uint64 {
	if f := ps.Frame(); f != nil {
		return f.Index
	}
	return 0
}

// Channels returns the per-channel tile sources of the current frame.
func (ps *PixelStream) Channels() *pixelstream.Channels {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.channels
}

// TileImage implements DataSource.
func (ps *PixelStream) TileImage(id uint) (*types.Image, error) {
	c := ps.Channels()
	if c == nil {
		return nil, ErrNoFrame
	}
	return c.TileImage(id, ps.decoder)
}

// TileRect implements DataSource.
func (ps *PixelStream) TileRect(id uint) (image.Rectangle, error) {
	return ps.Snapshot().TileRect(id)
}

// TileFormat implements DataSource.
func (ps *PixelStream) TileFormat(id uint) (types.Format, error) {
	return ps.Snapshot().TileFormat(id)
}

// TilesArea implements DataSource. It is empty before the first frame.
func (ps *PixelStream) TilesArea(lod, channel uint) (image.Point, error) {
	return ps.Snapshot().TilesArea(lod, channel)
}

// ComputeVisibleSet implements DataSource.
func (ps *PixelStream) ComputeVisibleSet(area geometry.Rect, lod, channel uint) (tile.Indices, error) {
	return ps.Snapshot().ComputeVisibleSet(area, lod, channel)
}

// Snapshot returns the current frame together with its tiles, read under
// one lock. The zero Snapshot is the state before the first frame.
func (ps *PixelStream) Snapshot() Snapshot {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return Snapshot{Frame: ps.frame, channels: ps.channels}
}

// Snapshot is one frame of a PixelStream. Its queries keep answering for
// that frame whatever frames are set afterwards.
type Snapshot struct {
	Frame    *types.Frame
	channels *pixelstream.Channels
}

func (s Snapshot) current() (*pixelstream.Channels, error) {
	if s.channels == nil {
		return nil, fmt.Errorf("datasource: stream tile requested before first frame: %w", types.ErrContract)
	}
	return s.channels, nil
}

// TileRect returns the rectangle of a tile of the frame.
func (s Snapshot) TileRect(id uint) (image.Rectangle, error) {
	c, err := s.current()
	if err != nil {
		return image.Rectangle{}, err
	}
	return c.TileRect(id)
}

// TileFormat returns the pixel format of a tile of the frame.
func (s Snapshot) TileFormat(id uint) (types.Format, error) {
	c, err := s.current()
	if err != nil {
		return 0, err
	}
	return c.TileFormat(id)
}

// TilesArea returns the size of a channel of the frame.
func (s Snapshot) TilesArea(lod, channel uint) (image.Point, error) {
	if err := checkLod(lod, 0); err != nil {
		return image.Point{}, err
	}
	if s.channels == nil {
		return image.Point{}, nil
	}
	return s.channels.Size(channel)
}

// ComputeVisibleSet returns the visible tiles of a channel of the frame.
func (s Snapshot) ComputeVisibleSet(area geometry.Rect, lod, channel uint) (tile.Indices, error) {
	if err := checkLod(lod, 0); err != nil {
		return nil, err
	}
	if s.channels == nil {
		return nil, nil
	}
	return s.channels.ComputeVisibleSet(area, channel)
}

// MaxLod implements DataSource.
func (ps *PixelStream) MaxLod() uint { return 0 }

// IsDynamic implements DataSource.
func (ps *PixelStream) IsDynamic() bool { return true }
