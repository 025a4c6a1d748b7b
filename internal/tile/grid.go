package tile

import (
	"image"
	"math"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
)

// Grid cuts a surface into square tiles of TileSize, row-major. Tiles of
// the last column and row are clipped to the surface.
type Grid struct {
	Size     image.Point
	TileSize int
}

// Dims returns the number of tile columns and rows.
func (g Grid) Dims() (nx, ny int) {
	if g.TileSize <= 0 || g.Size.X <= 0 || g.Size.Y <= 0 {
		return 0, 0
	}
	return (g.Size.X + g.TileSize - 1) / g.TileSize, (g.Size.Y + g.TileSize - 1) / g.TileSize
}

// Count returns the number of tiles.
func (g Grid) Count() uint {
	nx, ny := g.Dims()
	return uint(nx * ny)
}

// Rect returns the rectangle of the i-th tile. i must be below Count.
func (g Grid) Rect(i uint) image.Rectangle {
	nx, _ := g.Dims()
	x, y := int(i)%nx*g.TileSize, int(i)/nx*g.TileSize
	return image.Rect(x, y, min(x+g.TileSize, g.Size.X), min(y+g.TileSize, g.Size.Y))
}

// VisibleSet returns offset+i for every tile i intersecting area.
func (g Grid) VisibleSet(area geometry.Rect, offset uint) Indices {
	if area.Empty() {
		return nil
	}
	nx, ny := g.Dims()
	ts := float64(g.TileSize)
	x0 := max(0, int(math.Floor(area.X/ts)))
	y0 := max(0, int(math.Floor(area.Y/ts)))
	x1 := min(nx-1, int(math.Ceil((area.X+area.W)/ts))-1)
	y1 := min(ny-1, int(math.Ceil((area.Y+area.H)/ts))-1)

	var out Indices
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			i := uint(y*nx + x)
			if area.Intersects(g.Rect(i)) {
				out = append(out, offset+i)
			}
		}
	}
	return out
}
