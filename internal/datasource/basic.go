package datasource

import (
	"fmt"
	"image"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// Basic is static single-tile content (small images, SVG rasterised once).
// Channels are ignored.
type Basic struct {
	Registry
	img *types.Image
}

// NewBasic wraps a decoded image.
func NewBasic(img *types.Image) *Basic {
	return &Basic{img: img}
}

func (b *Basic) check(id uint) error {
	if id != 0 {
		return fmt.Errorf("datasource: basic content has one tile, got %d: %w", id, types.ErrContract)
	}
	return nil
}

// TileImage implements DataSource.
func (b *Basic) TileImage(id uint) (*types.Image, error) {
	if err := b.check(id); err != nil {
		return nil, err
	}
	return b.img, nil
}

// TileRect implements DataSource.
func (b *Basic) TileRect(id uint) (image.Rectangle, error) {
	if err := b.check(id); err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(0, 0, b.img.Width, b.img.Height), nil
}

// TileFormat implements DataSource.
func (b *Basic) TileFormat(id uint) (types.Format, error) {
	if err := b.check(id); err != nil {
		return 0, err
	}
	return b.img.Format, nil
}

// TilesArea implements DataSource.
func (b *Basic) TilesArea(lod, _ uint) (image.Point, error) {
	if err := checkLod(lod, 0); err != nil {
		return image.Point{}, err
	}
	return image.Pt(b.img.Width, b.img.Height), nil
}

// ComputeVisibleSet implements DataSource.
func (b *Basic) ComputeVisibleSet(area geometry.Rect, lod, _ uint) (tile.Indices, error) {
	if err := checkLod(lod, 0); err != nil {
		return nil, err
	}
	if area.Intersects(image.Rect(0, 0, b.img.Width, b.img.Height)) {
		return tile.Indices{0}, nil
	}
	return nil, nil
}

// MaxLod implements DataSource.
func (b *Basic) MaxLod() uint { return 0 }

// IsDynamic implements DataSource.
func (b *Basic) IsDynamic() bool { return false }
