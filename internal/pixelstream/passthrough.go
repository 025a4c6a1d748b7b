package pixelstream

import (
	"fmt"
	"image"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// PassThrough exposes every segment of one channel as its own renderer tile.
// It accepts any segment geometry at the cost of finer-grained tiles.
type PassThrough struct {
	channel uint
	offset  uint
	size    image.Point
	sources []*sourceTile
}

// NewPassThrough wraps the segments of one channel.
func NewPassThrough(segs []types.Segment, offset uint) *PassThrough {
	p := &PassThrough{offset: offset, sources: newSourceTiles(segs)}
	if len(segs) > 0 {
		p.channel = segs[0].Channel
	}
	for i := range segs {
		p.size.X = max(p.size.X, segs[i].X+segs[i].Width)
		p.size.Y = max(p.size.Y, segs[i].Y+segs[i].Height)
	}
	return p
}

// Channel implements TileSource.
func (p *PassThrough) Channel() uint { return p.channel }

// Offset implements TileSource.
func (p *PassThrough) Offset() uint { return p.offset }

// Size implements TileSource.
func (p *PassThrough) Size() image.Point { return p.size }

// TileCount implements TileSource.
func (p *PassThrough) TileCount() uint { return uint(len(p.sources)) }

func (p *PassThrough) source(id uint) (*sourceTile, error) {
	if id < p.offset || id >= p.offset+uint(len(p.sources)) {
		return nil, fmt.Errorf("pixelstream: tile %d outside [%d,%d): %w", id, p.offset, p.offset+uint(len(p.sources)), types.ErrContract)
	}
	return p.sources[id-p.offset], nil
}

// TileRect implements TileSource.
func (p *PassThrough) TileRect(id uint) (image.Rectangle, error) {
	src, err := p.source(id)
	if err != nil {
		return image.Rectangle{}, err
	}
	return src.seg.Rect(), nil
}

// TileFormat implements TileSource.
func (p *PassThrough) TileFormat(id uint) (types.Format, error) {
	src, err := p.source(id)
	if err != nil {
		return 0, err
	}
	return src.seg.Format, nil
}

// TileImage decodes the segment on demand. Bottom-up segments are flipped so
// the renderer always receives top-down rows.
func (p *PassThrough) TileImage(id uint, dec Decoder) (*types.Image, error) {
	src, err := p.source(id)
	if err != nil {
		return nil, err
	}
	img, err := src.decode(dec)
	if err != nil {
		return nil, err
	}
	if src.seg.RowOrder == types.RowOrderTopDown {
		return img, nil
	}
	return img.Crop(image.Rect(0, 0, img.Width, img.Height), types.RowOrderBottomUp)
}

// ComputeVisibleSet tests each segment's own rectangle against area.
func (p *PassThrough) ComputeVisibleSet(area geometry.Rect, channel uint) (tile.Indices, error) {
	if channel != p.channel {
		return nil, fmt.Errorf(errWrongChannelFmt, channel, p.channel, types.ErrContract)
	}
	var out tile.Indices
	for i, src := range p.sources {
		if area.Intersects(src.seg.Rect()) {
			out = append(out, p.offset+uint(i))
		}
	}
	return out, nil
}
