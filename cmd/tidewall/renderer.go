package main

import (
	"errors"
	"image"
	"log/slog"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/synchronizer"
	"github.com/BlueBrain/Tide-sub004/internal/tileloader"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// maxLoadAttempts bounds the loads of a static tile that keeps failing.
const maxLoadAttempts = 3

// renderTile is the headless counterpart of a GPU tile: a front image on
// screen and a back image being loaded.
type renderTile struct {
	id     uint
	rect   image.Rectangle
	format types.Format

	front *types.Image
	back  *types.Image

	loading bool
	// seq identifies the latest load; results of earlier loads are stale.
	seq      uint64
	failures int
}

func (t *renderTile) ID() uint { return t.id }

func (t *renderTile) SwapImage() {
	if t.back != nil {
		t.front, t.back = t.back, nil
	}
}

// loaded is a pool result tagged with the load it answers.
type loaded struct {
	tile *renderTile
	seq  uint64
	res  tileloader.Result
}

// renderer implements synchronizer.Renderer without a GPU: it loads tile
// images on the pool and reports them swap-ready to the synchronizer. All
// methods except the pool callback run on the wall loop.
type renderer struct {
	source datasource.DataSource
	pool   *tileloader.Pool
	logger *slog.Logger

	tiles   map[uint]*renderTile
	retry   []uint
	results chan loaded

	areaChanged  bool
	statsChanged bool
}

func newRenderer(source datasource.DataSource, pool *tileloader.Pool, logger *slog.Logger) *renderer {
	return &renderer{
		source:  source,
		pool:    pool,
		logger:  logger,
		tiles:   make(map[uint]*renderTile),
		results: make(chan loaded, 256),
	}
}

func (r *renderer) AddTile(t synchronizer.Tile) {
	rt := &renderTile{id: t.ID, rect: t.Rect, format: t.Format}
	r.tiles[t.ID] = rt
	r.load(rt)
}

// UpdateTile reloads the tile; a load in flight is superseded.
func (r *renderer) UpdateTile(id uint, rect image.Rectangle) {
	rt, ok := r.tiles[id]
	if !ok {
		r.logger.Warn("update of unknown tile", "tile", id)
		return
	}
	rt.rect = rect
	rt.failures = 0
	r.load(rt)
}

func (r *renderer) RemoveTile(id uint) {
	delete(r.tiles, id)
}

func (r *renderer) TilesAreaChanged()  { r.areaChanged = true }
func (r *renderer) StatisticsChanged() { r.statsChanged = true }

func (r *renderer) load(rt *renderTile) {
	rt.loading = true
	rt.seq++
	seq := rt.seq
	err := r.pool.Request(r.source, rt.id, func(res tileloader.Result) {
		r.results <- loaded{tile: rt, seq: seq, res: res}
	})
	if errors.Is(err, tileloader.ErrBusy) {
		r.retry = append(r.retry, rt.id)
		return
	}
	if err != nil {
		rt.loading = false
		r.logger.Warn("tile request failed", "tile", rt.id, "error", err)
	}
}

// pump retries queued requests and hands finished tiles to sync. It never
// blocks.
func (r *renderer) pump(sync synchronizer.Synchronizer) {
	retry := r.retry
	r.retry = nil
	for _, id := range retry {
		if rt, ok := r.tiles[id]; ok && rt.loading {
			r.load(rt)
		}
	}

	for {
		select {
		case l := <-r.results:
			r.finish(sync, l)
		default:
			return
		}
	}
}

func (r *renderer) finish(sync synchronizer.Synchronizer, l loaded) {
	rt := l.tile
	if r.tiles[rt.id] != rt || l.seq != rt.seq || !rt.loading {
		// removed, replaced or reloaded since this load started
		return
	}
	rt.loading = false
	if l.res.Err != nil {
		r.failed(sync, rt, l.res.Err)
		return
	}
	rt.failures = 0
	rt.back = l.res.Image
	sync.OnSwapReady(rt)
}

// failed handles a tile whose image could not be loaded. Static content is
// retried a few times; otherwise the tile is reported ready with its
// previous image so that the generation still swaps, and a dynamic source
// refreshes it with the next frame.
func (r *renderer) failed(sync synchronizer.Synchronizer, rt *renderTile, err error) {
	rt.failures++
	if !r.source.IsDynamic() && types.Classify(err).Recoverable() && rt.failures < maxLoadAttempts {
		rt.loading = true
		r.retry = append(r.retry, rt.id)
		return
	}
	rt.back = nil
	sync.OnSwapReady(rt)
}
