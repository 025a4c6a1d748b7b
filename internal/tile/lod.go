package tile

import (
	"fmt"
	"image"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// DefaultSize is the edge length of renderer tiles.
const DefaultSize = 512

// LodTiles describes a resolution pyramid cut into square tiles.
//
// LOD 0 is full resolution; each LOD halves both dimensions (rounding up)
// until the whole content fits into a single tile at MaxLod. Tile ids are
// numbered from the coarsest level down: id 0 is the single MaxLod tile.
type LodTiles struct {
	size     image.Point
	tileSize int
	maxLod   uint
	first    []uint // first tile id, per LOD
}

// NewLodTiles computes the pyramid for content of the given full-resolution size.
func NewLodTiles(size image.Point, tileSize int) LodTiles {
	if tileSize <= 0 {
		tileSize = DefaultSize
	}
	l := LodTiles{size: size, tileSize: tileSize}
	for {
		a := l.TilesArea(l.maxLod)
		if a.X <= tileSize && a.Y <= tileSize {
			break
		}
		l.maxLod++
	}

	l.first = make([]uint, l.maxLod+1)
	var id uint
	for lod := int(l.maxLod); lod >= 0; lod-- {
		l.first[lod] = id
		id += l.TileCount(uint(lod))
	}
	return l
}

// Size returns the full-resolution content size.
func (l LodTiles) Size() image.Point { return l.size }

// TileSize returns the tile edge length.
func (l LodTiles) TileSize() int { return l.tileSize }

// MaxLod returns the coarsest LOD.
func (l LodTiles) MaxLod() uint { return l.maxLod }

// TilesArea returns the pixel size of the whole content at lod.
func (l LodTiles) TilesArea(lod uint) image.Point {
	d := 1 << lod
	return image.Pt((l.size.X+d-1)/d, (l.size.Y+d-1)/d)
}

// Grid returns the tile grid of lod.
func (l LodTiles) Grid(lod uint) Grid {
	return Grid{Size: l.TilesArea(lod), TileSize: l.tileSize}
}

// TileCount returns the number of tiles at lod.
func (l LodTiles) TileCount(lod uint) uint {
	return l.Grid(lod).Count()
}

// TotalTileCount returns the number of tiles across all LODs.
func (l LodTiles) TotalTileCount() uint {
	return l.first[0] + l.TileCount(0)
}

// FirstTileID returns the id of the first tile of lod.
func (l LodTiles) FirstTileID(lod uint) uint {
	return l.first[lod]
}

// BackgroundTileID returns the id of the single MaxLod tile.
func (l LodTiles) BackgroundTileID() uint {
	return l.first[l.maxLod]
}

// TileLod returns the LOD a tile id belongs to.
func (l LodTiles) TileLod(id uint) (uint, error) {
	if id >= l.TotalTileCount() {
		return 0, fmt.Errorf("tile %d out of range [0,%d): %w", id, l.TotalTileCount(), types.ErrContract)
	}
	for lod := uint(0); lod <= l.maxLod; lod++ {
		if id >= l.first[lod] {
			return lod, nil
		}
	}
	return l.maxLod, nil
}

// TileRect returns the tile rectangle in the tile-grid space of its LOD.
func (l LodTiles) TileRect(id uint) (image.Rectangle, error) {
	lod, err := l.TileLod(id)
	if err != nil {
		return image.Rectangle{}, err
	}
	return l.Grid(lod).Rect(id - l.first[lod]), nil
}

// ComputeVisibleSet returns the ids of the tiles of lod intersecting area.
func (l LodTiles) ComputeVisibleSet(area geometry.Rect, lod uint) (Indices, error) {
	if lod > l.maxLod {
		return nil, fmt.Errorf("lod %d above max lod %d: %w", lod, l.maxLod, types.ErrContract)
	}
	if area.Empty() {
		return nil, nil
	}
	return l.Grid(lod).VisibleSet(area, l.first[lod]), nil
}
