package synchronizer

import (
	"fmt"
	"image"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
)

// SelectLod returns the coarsest LOD whose tiles area still covers display
// on both axes. A next LOD exactly as large as display is sufficient, so
// with a 2048px source a 512px display selects LOD 2 and 513px selects
// LOD 1. The result never exceeds source.MaxLod().
func SelectLod(source datasource.DataSource, display geometry.Size) uint {
	var lod uint
	for lod < source.MaxLod() {
		next, err := source.TilesArea(lod+1, 0)
		if err != nil || float64(next.X) < display.W || float64(next.Y) < display.H {
			break
		}
		lod++
	}
	return lod
}

// backgroundTile keeps the single coarsest tile of a pyramid behind the
// visible tiles, stretched over the whole tiles area, so that a LOD change
// shows blurred content instead of holes while the new tiles load. The tile
// lives in the synchronizer's ignore set: the visible-set diff never touches
// it.
type backgroundTile struct {
	id     uint
	active bool
}

// coarsestTile returns the id of the single tile at maxLod.
func coarsestTile(source datasource.DataSource, maxLod, channel uint) (uint, error) {
	area, err := source.TilesArea(maxLod, channel)
	if err != nil {
		return 0, err
	}
	set, err := source.ComputeVisibleSet(geometry.Rect{W: float64(area.X), H: float64(area.Y)}, maxLod, channel)
	if err != nil {
		return 0, err
	}
	if len(set) != 1 {
		return 0, fmt.Errorf("synchronizer: %d tiles at max lod %d", len(set), maxLod)
	}
	return set[0], nil
}

// set shows the background behind tiles of lod. At the coarsest LOD the
// visible tiles already cover the content and the background is dropped.
func (b *backgroundTile) set(t *Tiled, lod uint) error {
	maxLod := t.source.MaxLod()
	if lod >= maxLod || t.tilesArea.X == 0 || t.tilesArea.Y == 0 {
		b.clear(t)
		return nil
	}
	id, err := coarsestTile(t.source, maxLod, t.channel)
	if err != nil {
		return err
	}
	if b.active && b.id == id {
		// stretched to the new tiles area by the next refresh
		return nil
	}
	format, err := t.source.TileFormat(id)
	if err != nil {
		return err
	}

	b.clear(t)
	// shown as a regular tile at the previous lod
	t.forget(id)
	b.id, b.active = id, true
	t.ignore = tile.Indices{id}
	t.renderer.AddTile(Tile{ID: id, Rect: image.Rectangle{Max: t.tilesArea}, Format: format, Texture: t.texture()})
	return nil
}

func (b *backgroundTile) clear(t *Tiled) {
	if !b.active {
		return
	}
	b.active = false
	t.ignore = nil
	t.renderer.RemoveTile(b.id)
}

// rect returns the rectangle of a tile, stretching the background tile over
// the tiles area.
func (b *backgroundTile) rect(t *Tiled, id uint) (image.Rectangle, error) {
	if b.active && id == b.id {
		return image.Rectangle{Max: t.tilesArea}, nil
	}
	return t.source.TileRect(id)
}

// LOD synchronizes static multi-resolution content (large images).
type LOD struct {
	*Tiled
	bg          backgroundTile
	initialized bool
}

// NewLOD creates a synchronizer for pyramidal content. Tiles swap
// independently.
func NewLOD(source datasource.DataSource, renderer Renderer) *LOD {
	l := &LOD{Tiled: newTiled(source, renderer, SwapTilesIndependently)}
	l.rectFor = func(id uint) (image.Rectangle, error) { return l.bg.rect(l.Tiled, id) }
	return l
}

// Update implements Synchronizer.
func (l *LOD) Update(window geometry.ZoomHelper, visibleArea geometry.Rect) error {
	return l.update(window, visibleArea, false)
}

// update selects the LOD for the window's displayed content size. Any
// change of view, LOD or content (force) refreshes every tile.
func (l *LOD) update(window geometry.ZoomHelper, visibleArea geometry.Rect, force bool) error {
	lod := SelectLod(l.source, window.ContentRect().Size())
	lodChanged := !l.initialized || lod != l.lod

	changed, err := l.updateView(window, visibleArea, lod)
	if err != nil {
		return err
	}
	l.initialized = true
	if !changed && !lodChanged && !force {
		return nil
	}
	if lodChanged || force {
		if err := l.bg.set(l.Tiled, lod); err != nil {
			return err
		}
	}
	if force {
		l.renderer.TilesAreaChanged()
	}
	l.MarkDirty()
	l.renderer.StatisticsChanged()
	return nil
}

// Reset implements Synchronizer.
func (l *LOD) Reset() {
	l.bg.clear(l.Tiled)
	l.Tiled.Reset()
	l.initialized = false
}

// Statistics implements Synchronizer.
func (l *LOD) Statistics() string {
	return fmt.Sprintf("LOD %d/%d tiles %d", l.lod, l.source.MaxLod(), len(l.VisibleTiles()))
}
