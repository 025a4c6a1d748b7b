// Package synchronizer turns a window's geometry and a data source's current
// generation into tile lifecycle events for the renderer.
//
// A synchronizer computes the visible tile set of its window, diffs it
// against the tiles the renderer already knows and emits, in this order:
//
//	AddTile     for tiles entering the visible set
//	UpdateTile  for tiles whose content or rectangle must be refreshed
//	RemoveTile  for tiles leaving the visible set
//
// Under SwapTilesSynchronously the refreshed tiles form one generation: the
// renderer reports each uploaded tile through OnSwapReady, and the wall loop
// calls SwapTiles once CanSwapTiles holds, so that the whole content changes
// at once. Removals are deferred until that swap.
//
// All methods must be called from the wall's event loop, except the data
// source notifications which may arrive from any goroutine.
package synchronizer

import (
	"image"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// Tile is the description of a tile handed to the renderer on creation.
type Tile struct {
	ID      uint
	Rect    image.Rectangle
	Format  types.Format
	Texture types.TextureType
}

// Renderer receives tile lifecycle events.
type Renderer interface {
	AddTile(t Tile)
	UpdateTile(id uint, rect image.Rectangle)
	RemoveTile(id uint)
	TilesAreaChanged()
	StatisticsChanged()
}

// Swappable is a renderer tile whose back buffer has been uploaded and can
// be swapped to the front.
type Swappable interface {
	ID() uint
	SwapImage()
}

// Policy controls when uploaded tiles are swapped to the front.
type Policy int

const (
	// SwapTilesIndependently swaps each tile as soon as it is uploaded.
	SwapTilesIndependently Policy = iota
	// SwapTilesSynchronously swaps all refreshed tiles of a generation at once.
	SwapTilesSynchronously
)

// String returns a human-readable name of the policy
func (p Policy) String() string {
	if p == SwapTilesSynchronously {
		return "synchronous"
	}
	return "independent"
}

// Synchronizer is implemented by every content-specific synchronizer.
type Synchronizer interface {
	// Update recomputes the visible area from the window geometry.
	// visibleArea is the part of the window shown by this process, in
	// window display coordinates.
	Update(window geometry.ZoomHelper, visibleArea geometry.Rect) error
	// UpdateTiles diffs the visible set and emits tile events.
	UpdateTiles() error
	// OnSwapReady is called by the renderer once a tile is uploaded.
	OnSwapReady(t Swappable)
	CanSwapTiles() bool
	SwapTiles()

	TilesArea() image.Point
	Statistics() string
	DataSource() datasource.DataSource

	// Reset drops every tile, for instance when the content is closed.
	Reset()
	// Close detaches the synchronizer from its data source.
	Close() error
}

var (
	_ Synchronizer = (*Basic)(nil)
	_ Synchronizer = (*LOD)(nil)
	_ Synchronizer = (*PDF)(nil)
	_ Synchronizer = (*Movie)(nil)
	_ Synchronizer = (*PixelStream)(nil)
)
