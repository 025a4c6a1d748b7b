package pixelstream

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// Channels holds one TileSource per channel of a frame, laid out back to
// back in the global tile id space.
type Channels struct {
	sources []TileSource
	byChan  map[uint]TileSource
	count   uint
}

// NewChannels partitions the frame's segments into contiguous per-channel
// ranges and builds an Assembler for each, falling back to a PassThrough
// when a channel cannot be assembled.
//
// Precondition: segments are sorted by channel, then row-major.
func NewChannels(frame *types.Frame, targetSize int, logger *slog.Logger) (*Channels, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channels{byChan: make(map[uint]TileSource)}

	segs := frame.Segments
	for begin := 0; begin < len(segs); {
		channel := segs[begin].Channel
		end := begin
		for end < len(segs) && segs[end].Channel == channel {
			end++
		}
		if _, seen := c.byChan[channel]; seen {
			return nil, fmt.Errorf("pixelstream: frame %d: channel %d not contiguous: %w", frame.Index, channel, types.ErrContract)
		}

		var src TileSource
		asm, err := TryAssemble(segs[begin:end], targetSize, c.count)
		switch {
		case err == nil:
			src = asm
		case errors.Is(err, types.ErrUnassemblable):
			logger.Debug("frame not assemblable, using pass-through tiles",
				"uri", frame.URI,
				"frame", frame.Index,
				"channel", channel,
				"segments", end-begin,
				"reason", err,
			)
			src = NewPassThrough(segs[begin:end], c.count)
		default:
			return nil, err
		}

		c.sources = append(c.sources, src)
		c.byChan[channel] = src
		c.count += src.TileCount()
		begin = end
	}
	return c, nil
}

// TileCount returns the number of renderer tiles across all channels.
func (c *Channels) TileCount() uint { return c.count }

// Sources returns the per-channel tile sources in id order.
func (c *Channels) Sources() []TileSource { return c.sources }

// Channel returns the tile source of a channel.
func (c *Channels) Channel(channel uint) (TileSource, error) {
	src, ok := c.byChan[channel]
	if !ok {
		return nil, fmt.Errorf("pixelstream: no channel %d: %w", channel, types.ErrContract)
	}
	return src, nil
}

func (c *Channels) owner(id uint) (TileSource, error) {
	for _, src := range c.sources {
		if id >= src.Offset() && id < src.Offset()+src.TileCount() {
			return src, nil
		}
	}
	return nil, fmt.Errorf("pixelstream: tile %d outside [0,%d): %w", id, c.count, types.ErrContract)
}

// Size returns the dimensions of a channel. A channel the frame does not
// carry is empty: senders may stop sending a channel at any frame.
func (c *Channels) Size(channel uint) (image.Point, error) {
	src, ok := c.byChan[channel]
	if !ok {
		return image.Point{}, nil
	}
	return src.Size(), nil
}

// TileRect returns the rectangle of a tile in its channel's space.
func (c *Channels) TileRect(id uint) (image.Rectangle, error) {
	src, err := c.owner(id)
	if err != nil {
		return image.Rectangle{}, err
	}
	return src.TileRect(id)
}

// TileFormat returns the pixel format of a tile.
func (c *Channels) TileFormat(id uint) (types.Format, error) {
	src, err := c.owner(id)
	if err != nil {
		return 0, err
	}
	return src.TileFormat(id)
}

// TileImage returns the assembled or decoded image of a tile.
func (c *Channels) TileImage(id uint, dec Decoder) (*types.Image, error) {
	src, err := c.owner(id)
	if err != nil {
		return nil, err
	}
	return src.TileImage(id, dec)
}

// ComputeVisibleSet returns the visible tiles of one channel, none for a
// channel absent from the frame.
func (c *Channels) ComputeVisibleSet(area geometry.Rect, channel uint) (tile.Indices, error) {
	src, ok := c.byChan[channel]
	if !ok {
		return nil, nil
	}
	return src.ComputeVisibleSet(area, channel)
}
