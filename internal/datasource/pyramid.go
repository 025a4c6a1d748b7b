package datasource

import (
	"fmt"
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// Pyramid serves a large static image as a multi-resolution tile pyramid.
// Each LOD is downscaled from the previous one the first time one of its
// tiles is requested. Tiles are RGBA.
type Pyramid struct {
	Registry
	lods tile.LodTiles

	mu     sync.Mutex
	levels []*image.RGBA
}

// NewPyramid builds the pyramid geometry for img. Level 0 is converted to
// RGBA immediately; coarser levels are computed lazily.
func NewPyramid(img *types.Image, tileSize int) *Pyramid {
	p := &Pyramid{lods: tile.NewLodTiles(image.Pt(img.Width, img.Height), tileSize)}
	p.levels = make([]*image.RGBA, p.lods.MaxLod()+1)

	src := img.ToImage()
	if rgba, ok := src.(*image.RGBA); ok {
		p.levels[0] = rgba
	} else {
		base := image.NewRGBA(src.Bounds())
		xdraw.Draw(base, base.Bounds(), src, image.Point{}, xdraw.Src)
		p.levels[0] = base
	}
	return p
}

// Lods returns the pyramid geometry.
func (p *Pyramid) Lods() tile.LodTiles { return p.lods }

func (p *Pyramid) level(lod uint) *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()

	for l := uint(1); l <= lod; l++ {
		if p.levels[l] != nil {
			continue
		}
		area := p.lods.TilesArea(l)
		dst := image.NewRGBA(image.Rect(0, 0, area.X, area.Y))
		prev := p.levels[l-1]
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), prev, prev.Bounds(), xdraw.Src, nil)
		p.levels[l] = dst
	}
	return p.levels[lod]
}

// TileImage implements DataSource.
func (p *Pyramid) TileImage(id uint) (*types.Image, error) {
	lod, err := p.lods.TileLod(id)
	if err != nil {
		return nil, err
	}
	r, _ := p.lods.TileRect(id)
	return types.FromImage(p.level(lod).SubImage(r)), nil
}

// TileRect implements DataSource.
func (p *Pyramid) TileRect(id uint) (image.Rectangle, error) {
	return p.lods.TileRect(id)
}

// TileFormat implements DataSource.
func (p *Pyramid) TileFormat(id uint) (types.Format, error) {
	if _, err := p.lods.TileLod(id); err != nil {
		return 0, err
	}
	return types.FormatRGBA, nil
}

// TilesArea implements DataSource.
func (p *Pyramid) TilesArea(lod, _ uint) (image.Point, error) {
	if err := checkLod(lod, p.lods.MaxLod()); err != nil {
		return image.Point{}, err
	}
	return p.lods.TilesArea(lod), nil
}

// ComputeVisibleSet implements DataSource.
func (p *Pyramid) ComputeVisibleSet(area geometry.Rect, lod, _ uint) (tile.Indices, error) {
	return p.lods.ComputeVisibleSet(area, lod)
}

// MaxLod implements DataSource.
func (p *Pyramid) MaxLod() uint { return p.lods.MaxLod() }

// IsDynamic implements DataSource.
func (p *Pyramid) IsDynamic() bool { return false }

// String describes the pyramid for logs.
func (p *Pyramid) String() string {
	s := p.lods.Size()
	return fmt.Sprintf("pyramid %dx%d, %d lods, %d tiles", s.X, s.Y, p.lods.MaxLod()+1, p.lods.TotalTileCount())
}
