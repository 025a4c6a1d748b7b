// Package pixelstream reconciles the irregular segment grid delivered by
// streaming clients with the fixed-size tile grid expected by the renderer.
//
// Two strategies exist per channel:
//   - Assembler: segments lie on a grid compatible with the target tile size
//     and are stitched into target tiles (fewer, larger renderer tiles).
//   - PassThrough: every segment becomes one renderer tile (any geometry).
//
// TryAssemble validates the segment layout; when it fails the caller builds
// a PassThrough instead. NewChannels applies that fallback per channel.
package pixelstream

import (
	"errors"
	"fmt"
	"image"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// TargetTileSize is the renderer tile size segments are assembled into.
const TargetTileSize = tile.DefaultSize

// Validation errors, all wrapping types.ErrUnassemblable.
var (
	ErrNoSegments    = fmt.Errorf("pixelstream: no segments: %w", types.ErrUnassemblable)
	ErrSegmentSize   = fmt.Errorf("pixelstream: segment size does not divide target size: %w", types.ErrUnassemblable)
	ErrSegmentLayout = fmt.Errorf("pixelstream: segments do not tile the frame: %w", types.ErrUnassemblable)
	ErrMixedSegments = fmt.Errorf("pixelstream: segments differ in format or channel: %w", types.ErrUnassemblable)
)

const errWrongChannelFmt = "pixelstream: channel %d requested from channel %d source: %w"

// TileSource exposes the renderer tiles of one channel of a frame. Tile ids
// are global across channels: a source owns [Offset, Offset+TileCount).
type TileSource interface {
	Channel() uint
	Offset() uint
	Size() image.Point
	TileCount() uint
	TileRect(id uint) (image.Rectangle, error)
	TileFormat(id uint) (types.Format, error)
	TileImage(id uint, dec Decoder) (*types.Image, error)
	ComputeVisibleSet(area geometry.Rect, channel uint) (tile.Indices, error)
}

// Assembler stitches on-grid segments of one channel into target tiles.
type Assembler struct {
	channel uint
	offset  uint
	format  types.Format
	grid    tile.Grid

	sources []*sourceTile
	// byTarget lists, per target tile, the sources it is assembled from.
	byTarget [][]*sourceTile
}

// TryAssemble validates that segs (one channel, sorted row-major) tile the
// frame on a grid compatible with targetSize and returns an assembler.
// The returned error wraps types.ErrUnassemblable; callers fall back to
// NewPassThrough.
func TryAssemble(segs []types.Segment, targetSize int, offset uint) (*Assembler, error) {
	size, err := validateGrid(segs, targetSize)
	if err != nil {
		return nil, err
	}

	a := &Assembler{
		channel: segs[0].Channel,
		offset:  offset,
		format:  segs[0].Format,
		grid:    tile.Grid{Size: size, TileSize: targetSize},
		sources: newSourceTiles(segs),
	}
	nx, _ := a.grid.Dims()
	a.byTarget = make([][]*sourceTile, a.grid.Count())
	for _, src := range a.sources {
		// segment sizes divide targetSize and border segments are only
		// narrower or shorter, so a segment never straddles two target tiles
		i := (src.seg.Y/targetSize)*nx + src.seg.X/targetSize
		a.byTarget[i] = append(a.byTarget[i], src)
	}
	return a, nil
}

func validateGrid(segs []types.Segment, targetSize int) (image.Point, error) {
	if len(segs) == 0 {
		return image.Point{}, ErrNoSegments
	}
	first := &segs[0]
	w, h := first.Width, first.Height
	if w <= 0 || h <= 0 || w >= targetSize || h >= targetSize || targetSize%w != 0 || targetSize%h != 0 {
		return image.Point{}, fmt.Errorf("first segment %dx%d, target %d: %w", w, h, targetSize, ErrSegmentSize)
	}

	var size image.Point
	for i := range segs {
		s := &segs[i]
		if s.Format != first.Format || s.Channel != first.Channel {
			return image.Point{}, ErrMixedSegments
		}
		size.X = max(size.X, s.X+s.Width)
		size.Y = max(size.Y, s.Y+s.Height)
	}

	x, y, rowHeight := 0, 0, 0
	for i := range segs {
		s := &segs[i]
		if s.X != x || s.Y != y {
			return image.Point{}, fmt.Errorf("segment %d at %d,%d, expected %d,%d: %w", i, s.X, s.Y, x, y, ErrSegmentLayout)
		}
		if x == 0 {
			rowHeight = s.Height
			if rowHeight > h || (rowHeight != h && y+rowHeight != size.Y) {
				return image.Point{}, fmt.Errorf("row at y=%d has height %d: %w", y, rowHeight, ErrSegmentLayout)
			}
		} else if s.Height != rowHeight {
			return image.Point{}, fmt.Errorf("segment %d height %d in row of %d: %w", i, s.Height, rowHeight, ErrSegmentLayout)
		}
		if s.Width > w || (s.Width != w && x+s.Width != size.X) {
			return image.Point{}, fmt.Errorf("segment %d width %d not in last column: %w", i, s.Width, ErrSegmentLayout)
		}

		x += s.Width
		if x == size.X {
			x, y = 0, y+rowHeight
		}
	}
	if x != 0 || y != size.Y {
		return image.Point{}, fmt.Errorf("segments end at %d,%d in %dx%d frame: %w", x, y, size.X, size.Y, ErrSegmentLayout)
	}
	return size, nil
}

// Channel implements TileSource.
func (a *Assembler) Channel() uint { return a.channel }

// Offset implements TileSource.
func (a *Assembler) Offset() uint { return a.offset }

// Size implements TileSource.
func (a *Assembler) Size() image.Point { return a.grid.Size }

// TileCount implements TileSource.
func (a *Assembler) TileCount() uint { return a.grid.Count() }

func (a *Assembler) local(id uint) (uint, error) {
	if id < a.offset || id >= a.offset+a.grid.Count() {
		return 0, fmt.Errorf("pixelstream: tile %d outside [%d,%d): %w", id, a.offset, a.offset+a.grid.Count(), types.ErrContract)
	}
	return id - a.offset, nil
}

// TileRect implements TileSource.
func (a *Assembler) TileRect(id uint) (image.Rectangle, error) {
	i, err := a.local(id)
	if err != nil {
		return image.Rectangle{}, err
	}
	return a.grid.Rect(i), nil
}

// TileFormat implements TileSource.
func (a *Assembler) TileFormat(id uint) (types.Format, error) {
	if _, err := a.local(id); err != nil {
		return 0, err
	}
	return a.format, nil
}

// TileImage decodes the contributing segments (once each) and stitches them
// into a top-down buffer of the target tile size.
func (a *Assembler) TileImage(id uint, dec Decoder) (*types.Image, error) {
	i, err := a.local(id)
	if err != nil {
		return nil, err
	}
	r := a.grid.Rect(i)
	out := types.NewImage(r.Dx(), r.Dy(), a.format)
	for _, src := range a.byTarget[i] {
		img, err := src.decode(dec)
		if err != nil {
			return nil, err
		}
		sr := src.seg.Rect()
		inter := sr.Intersect(r)
		if err := types.Blit(out, inter.Min.Sub(r.Min), img, inter.Sub(sr.Min), src.seg.RowOrder); err != nil {
			if errors.Is(err, types.ErrContract) {
				// decoder output disagrees with the declared segment
				return nil, fmt.Errorf("tile %d: %v: %w", id, err, types.ErrDecode)
			}
			return nil, err
		}
	}
	return out, nil
}

// ComputeVisibleSet implements TileSource.
func (a *Assembler) ComputeVisibleSet(area geometry.Rect, channel uint) (tile.Indices, error) {
	if channel != a.channel {
		return nil, fmt.Errorf(errWrongChannelFmt, channel, a.channel, types.ErrContract)
	}
	return a.grid.VisibleSet(area, a.offset), nil
}
