package synchronizer

import (
	"fmt"
	"image"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// tileState is the renderer-side state of a tile id. Absent ids are not in
// the state table.
type tileState uint8

const (
	tileVisible tileState = iota + 1
	// tilePendingRemoval left the visible set while a synchronous swap was
	// pending; it is removed by SwapTiles unless it becomes visible again.
	tilePendingRemoval
)

// Tiled is the state machine shared by all synchronizers.
type Tiled struct {
	source   datasource.DataSource
	renderer Renderer
	policy   Policy

	lod         uint
	channel     uint
	tilesArea   image.Point
	visibleArea geometry.Rect // in tile-grid space of lod

	states map[uint]tileState
	// ignore holds tiles managed outside the visible-set diff (the LOD
	// background tile).
	ignore tile.Indices

	swapPending bool
	syncSet     tile.Indices
	ready       map[uint]Swappable

	// dirty requests a refresh of every existing tile on the next diff.
	dirty atomic.Bool

	rectFor    func(id uint) (image.Rectangle, error)
	listenerID uuid.UUID
	listening  bool
}

func newTiled(source datasource.DataSource, renderer Renderer, policy Policy) *Tiled {
	t := &Tiled{
		source:   source,
		renderer: renderer,
		policy:   policy,
		states:   make(map[uint]tileState),
		ready:    make(map[uint]Swappable),
	}
	t.rectFor = source.TileRect
	return t
}

// listen registers fn as data source listener; Close unregisters it.
func (t *Tiled) listen(fn func()) {
	t.listenerID = t.source.Register(datasource.ListenerFunc(fn))
	t.listening = true
}

// Close implements Synchronizer.
func (t *Tiled) Close() error {
	if !t.listening {
		return nil
	}
	t.listening = false
	return t.source.Unregister(t.listenerID)
}

// MarkDirty makes the next UpdateTiles refresh every existing tile. Safe
// for concurrent use.
func (t *Tiled) MarkDirty() {
	t.dirty.Store(true)
}

// Policy returns the swap policy.
func (t *Tiled) Policy() Policy { return t.policy }

// DataSource implements Synchronizer.
func (t *Tiled) DataSource() datasource.DataSource { return t.source }

// TilesArea implements Synchronizer.
func (t *Tiled) TilesArea() image.Point { return t.tilesArea }

// Lod returns the LOD whose tiles are shown.
func (t *Tiled) Lod() uint { return t.lod }

// VisibleArea returns the visible area in tile-grid space.
func (t *Tiled) VisibleArea() geometry.Rect { return t.visibleArea }

// SwapPending reports whether a synchronous generation awaits its swap.
func (t *Tiled) SwapPending() bool { return t.swapPending }

// VisibleTiles returns the tiles currently shown by the renderer, excluding
// tiles pending removal and the ignore set.
func (t *Tiled) VisibleTiles() tile.Indices {
	var out tile.Indices
	for id, s := range t.states {
		if s == tileVisible {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Tiled) texture() types.TextureType {
	if t.source.IsDynamic() {
		return types.TextureDynamic
	}
	return types.TextureStatic
}

// updateView maps the window's visible area into the tile-grid space of lod
// and reports whether anything changed.
func (t *Tiled) updateView(window geometry.ZoomHelper, visibleArea geometry.Rect, lod uint) (bool, error) {
	area, err := t.source.TilesArea(lod, t.channel)
	if err != nil {
		return false, err
	}
	var visible geometry.Rect
	if !visibleArea.Empty() && area.X > 0 && area.Y > 0 {
		visible = window.ToTilesArea(visibleArea, area)
	}

	areaChanged := area != t.tilesArea
	changed := areaChanged || lod != t.lod || visible != t.visibleArea
	t.tilesArea, t.visibleArea, t.lod = area, visible, lod
	if areaChanged {
		t.renderer.TilesAreaChanged()
	}
	return changed, nil
}

// tileQuerier answers the tile queries of one visible-set diff.
type tileQuerier interface {
	ComputeVisibleSet(area geometry.Rect, lod, channel uint) (tile.Indices, error)
	TileRect(id uint) (image.Rectangle, error)
	TileFormat(id uint) (types.Format, error)
}

// UpdateTiles implements Synchronizer.
func (t *Tiled) UpdateTiles() error {
	return t.updateTiles(t.dirty.Swap(false), t.source, t.rectFor)
}

// updateTiles diffs the visible set of src, whose tile rectangles come from
// rectFor. refreshAll must be taken from dirty before src is read, so that
// a change signalled meanwhile is kept for the next diff.
func (t *Tiled) updateTiles(refreshAll bool, src tileQuerier, rectFor func(id uint) (image.Rectangle, error)) error {
	var visible tile.Indices
	if !t.visibleArea.Empty() {
		set, err := src.ComputeVisibleSet(t.visibleArea, t.lod, t.channel)
		if err != nil {
			t.dirty.CompareAndSwap(false, refreshAll)
			return err
		}
		visible = set.Difference(t.ignore)
	}
	current := t.VisibleTiles()
	added := visible.Difference(current)
	removed := current.Difference(visible)

	if len(added) == 0 && len(removed) == 0 && !refreshAll {
		return nil
	}

	var fresh, revived tile.Indices
	for _, id := range added {
		if t.states[id] == tilePendingRemoval {
			revived = append(revived, id)
		} else {
			fresh = append(fresh, id)
		}
	}
	updates := revived
	if refreshAll {
		updates = updates.Union(current.Intersect(visible)).Union(t.ignore)
	}

	// resolve everything before emitting so a contract error leaves the
	// renderer state untouched
	adds := make([]Tile, 0, len(fresh))
	for _, id := range fresh {
		rect, err := rectFor(id)
		if err != nil {
			t.dirty.CompareAndSwap(false, refreshAll)
			return fmt.Errorf("synchronizer: tile %d: %w", id, err)
		}
		format, err := src.TileFormat(id)
		if err != nil {
			t.dirty.CompareAndSwap(false, refreshAll)
			return fmt.Errorf("synchronizer: tile %d: %w", id, err)
		}
		adds = append(adds, Tile{ID: id, Rect: rect, Format: format, Texture: t.texture()})
	}
	rects := make([]image.Rectangle, len(updates))
	for i, id := range updates {
		rect, err := rectFor(id)
		if err != nil {
			t.dirty.CompareAndSwap(false, refreshAll)
			return fmt.Errorf("synchronizer: tile %d: %w", id, err)
		}
		rects[i] = rect
	}

	for _, tl := range adds {
		t.states[tl.ID] = tileVisible
		t.renderer.AddTile(tl)
	}
	for i, id := range updates {
		if _, known := t.states[id]; known {
			t.states[id] = tileVisible
		}
		t.renderer.UpdateTile(id, rects[i])
	}

	if t.policy == SwapTilesSynchronously {
		if refreshed := fresh.Union(updates); len(refreshed) > 0 {
			// re-requested tiles must report ready again for the new generation
			for _, id := range refreshed {
				delete(t.ready, id)
			}
			t.syncSet = t.syncSet.Union(refreshed)
			t.swapPending = true
		}
	}

	t.syncSet = t.syncSet.Difference(removed)
	for _, id := range removed {
		delete(t.ready, id)
		if t.policy == SwapTilesSynchronously && t.swapPending {
			t.states[id] = tilePendingRemoval
			continue
		}
		delete(t.states, id)
		t.renderer.RemoveTile(id)
	}

	t.renderer.StatisticsChanged()
	return nil
}

// OnSwapReady implements Synchronizer.
func (t *Tiled) OnSwapReady(s Swappable) {
	id := s.ID()
	if t.policy == SwapTilesSynchronously && t.swapPending && t.syncSet.Contains(id) {
		t.ready[id] = s
		return
	}
	s.SwapImage()
}

// CanSwapTiles implements Synchronizer.
func (t *Tiled) CanSwapTiles() bool {
	if t.policy != SwapTilesSynchronously || !t.swapPending {
		return false
	}
	for _, id := range t.syncSet {
		if _, ok := t.ready[id]; !ok {
			return false
		}
	}
	return true
}

// SwapTiles implements Synchronizer.
func (t *Tiled) SwapTiles() {
	for _, id := range t.sortedStates() {
		if t.states[id] == tilePendingRemoval {
			delete(t.states, id)
			t.renderer.RemoveTile(id)
		}
	}

	ids := make([]uint, 0, len(t.ready))
	for id := range t.ready {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t.ready[id].SwapImage()
	}

	clear(t.ready)
	t.syncSet = nil
	t.swapPending = false
}

// Reset implements Synchronizer.
func (t *Tiled) Reset() {
	for _, id := range t.sortedStates() {
		t.renderer.RemoveTile(id)
	}
	clear(t.states)
	clear(t.ready)
	t.syncSet = nil
	t.swapPending = false
	t.visibleArea = geometry.Rect{}
	t.tilesArea = image.Point{}
	t.dirty.Store(false)
}

func (t *Tiled) sortedStates() []uint {
	ids := make([]uint, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// forget drops a visible tile outside of the diff, used when the background
// tile takes over a tile shown at the previous LOD.
func (t *Tiled) forget(id uint) {
	if _, ok := t.states[id]; !ok {
		return
	}
	delete(t.states, id)
	delete(t.ready, id)
	t.syncSet = t.syncSet.Difference(tile.Indices{id})
	t.renderer.RemoveTile(id)
}
