package synchronizer

import (
	"fmt"
	"image"
	"reflect"
	"testing"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// recorder is a Renderer keeping the event log and the set of known tiles.
type recorder struct {
	t      *testing.T
	events []string
	tiles  map[uint]image.Rectangle
	area   int
	stats  int
}

func newRecorder(t *testing.T) *recorder {
	return &recorder{t: t, tiles: make(map[uint]image.Rectangle)}
}

func (r *recorder) AddTile(tl Tile) {
	if _, ok := r.tiles[tl.ID]; ok {
		r.t.Errorf("tile %d added twice", tl.ID)
	}
	r.tiles[tl.ID] = tl.Rect
	r.events = append(r.events, fmt.Sprintf("add %d", tl.ID))
}

func (r *recorder) UpdateTile(id uint, rect image.Rectangle) {
	if _, ok := r.tiles[id]; !ok {
		r.t.Errorf("update of unknown tile %d", id)
	}
	r.tiles[id] = rect
	r.events = append(r.events, fmt.Sprintf("update %d", id))
}

func (r *recorder) RemoveTile(id uint) {
	if _, ok := r.tiles[id]; !ok {
		r.t.Errorf("remove of unknown tile %d", id)
	}
	delete(r.tiles, id)
	r.events = append(r.events, fmt.Sprintf("remove %d", id))
}

func (r *recorder) TilesAreaChanged()  { r.area++ }
func (r *recorder) StatisticsChanged() { r.stats++ }

// take returns and clears the event log.
func (r *recorder) take() []string {
	out := r.events
	r.events = nil
	return out
}

// swappable records SwapImage calls.
type swappable struct {
	id      uint
	swapped *[]uint
}

func (s swappable) ID() uint   { return s.id }
func (s swappable) SwapImage() { *s.swapped = append(*s.swapped, s.id) }

func rgbaImage(w, h int) *types.Image {
	return types.FromImage(image.NewRGBA(image.Rect(0, 0, w, h)))
}

func fullView(w, h float64) (geometry.ZoomHelper, geometry.Rect) {
	return geometry.NewZoomHelper(geometry.Size{W: w, H: h}, geometry.Unit), geometry.Rect{W: w, H: h}
}

// TestUpdateTilesIsIdempotent verifies a second diff without changes emits
// nothing.
func TestUpdateTilesIsIdempotent(t *testing.T) {
	rec := newRecorder(t)
	s := NewBasic(datasource.NewBasic(rgbaImage(400, 300)), rec)
	window, visible := fullView(400, 300)

	if err := s.Update(window, visible); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}
	if got := rec.take(); !reflect.DeepEqual(got, []string{"add 0"}) {
		t.Fatalf("first diff: %v", got)
	}

	if err := s.Update(window, visible); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}
	if got := rec.take(); len(got) != 0 {
		t.Fatalf("second diff emitted %v", got)
	}
	if rec.area != 1 {
		t.Errorf("TilesAreaChanged emitted %d times, want 1", rec.area)
	}
}

// TestEmptyVisibleAreaCreatesNoTiles verifies a window outside this process
// gets no tiles.
func TestEmptyVisibleAreaCreatesNoTiles(t *testing.T) {
	rec := newRecorder(t)
	s := NewBasic(datasource.NewBasic(rgbaImage(400, 300)), rec)
	window, _ := fullView(400, 300)

	if err := s.Update(window, geometry.Rect{}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}

	if got := rec.take(); len(got) != 0 {
		t.Fatalf("events for empty area: %v", got)
	}
}

// TestEventOrdering verifies add before update before remove within a diff.
func TestEventOrdering(t *testing.T) {
	rec := newRecorder(t)
	src := datasource.NewMovie(image.Pt(1536, 512), types.FormatRGBA, 512)
	s := newTiled(src, rec, SwapTilesIndependently)
	window := geometry.NewZoomHelper(geometry.Size{W: 1536, H: 512}, geometry.Unit)

	if _, err := s.updateView(window, geometry.Rect{W: 1000, H: 512}, 0); err != nil {
		t.Fatalf("updateView failed: %v", err)
	}
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}
	rec.take()

	// move right with stale content: tile 2 enters, tile 1 is refreshed and
	// tile 0 leaves
	if _, err := s.updateView(window, geometry.Rect{X: 600, W: 900, H: 512}, 0); err != nil {
		t.Fatalf("updateView failed: %v", err)
	}
	s.MarkDirty()
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}

	if got, want := rec.take(), []string{"add 2", "update 1", "remove 0"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("events %v, want %v", got, want)
	}
}

// TestIndependentSwapIsImmediate verifies tiles swap on upload and removals
// are not deferred.
func TestIndependentSwapIsImmediate(t *testing.T) {
	rec := newRecorder(t)
	s := NewBasic(datasource.NewBasic(rgbaImage(400, 300)), rec)
	window, visible := fullView(400, 300)
	var swapped []uint

	_ = s.Update(window, visible)
	_ = s.UpdateTiles()
	s.OnSwapReady(swappable{id: 0, swapped: &swapped})

	if !reflect.DeepEqual(swapped, []uint{0}) || s.CanSwapTiles() {
		t.Fatalf("swapped %v, can swap %v", swapped, s.CanSwapTiles())
	}

	_ = s.Update(window, geometry.Rect{})
	_ = s.UpdateTiles()
	if got := rec.take(); !reflect.DeepEqual(got, []string{"add 0", "remove 0"}) {
		t.Fatalf("events %v", got)
	}
}

// TestSynchronousSwapWaitsForAllTiles verifies a generation swaps only when
// every refreshed tile is ready, and swaps them together.
func TestSynchronousSwapWaitsForAllTiles(t *testing.T) {
	rec := newRecorder(t)
	src := datasource.NewMovie(image.Pt(1024, 1024), types.FormatRGBA, 512)
	s := NewMovie(src, rec)
	defer s.Close()
	window, visible := fullView(1024, 1024)
	var swapped []uint

	_ = s.Update(window, visible)
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}
	if !s.SwapPending() {
		t.Fatal("no swap pending after adding tiles")
	}

	for _, id := range []uint{3, 0, 2} {
		s.OnSwapReady(swappable{id: id, swapped: &swapped})
		if s.CanSwapTiles() {
			t.Fatalf("can swap before tile 1 is ready")
		}
	}
	if len(swapped) != 0 {
		t.Fatalf("tiles swapped early: %v", swapped)
	}

	s.OnSwapReady(swappable{id: 1, swapped: &swapped})
	if !s.CanSwapTiles() {
		t.Fatal("cannot swap with all tiles ready")
	}
	s.SwapTiles()

	if !reflect.DeepEqual(swapped, []uint{0, 1, 2, 3}) {
		t.Fatalf("swapped %v, want all four in order", swapped)
	}
	if s.SwapPending() || s.CanSwapTiles() {
		t.Error("swap still pending after SwapTiles")
	}
}

// TestSynchronousRemovalIsDeferred verifies no tile of the sync set is
// removed before the generation swaps in.
func TestSynchronousRemovalIsDeferred(t *testing.T) {
	rec := newRecorder(t)
	src := datasource.NewMovie(image.Pt(1024, 512), types.FormatRGBA, 512)
	s := NewMovie(src, rec)
	defer s.Close()
	window := geometry.NewZoomHelper(geometry.Size{W: 1024, H: 512}, geometry.Unit)
	var swapped []uint

	_ = s.Update(window, geometry.Rect{W: 1024, H: 512})
	_ = s.UpdateTiles()
	rec.take()

	// shrink to the left tile while the first generation is pending
	_ = s.Update(window, geometry.Rect{W: 400, H: 512})
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}
	if got := rec.take(); len(got) != 0 {
		t.Fatalf("events before swap: %v", got)
	}

	s.OnSwapReady(swappable{id: 0, swapped: &swapped})
	if !s.CanSwapTiles() {
		t.Fatal("removed tile still blocks the swap")
	}
	s.SwapTiles()

	if got := rec.take(); !reflect.DeepEqual(got, []string{"remove 1"}) {
		t.Fatalf("events at swap: %v", got)
	}
}

// TestRevivedTileIsNotRemoved verifies a tile pending removal that becomes
// visible again is revived with an update instead of remove + add.
func TestRevivedTileIsNotRemoved(t *testing.T) {
	rec := newRecorder(t)
	src := datasource.NewMovie(image.Pt(1024, 512), types.FormatRGBA, 512)
	s := NewMovie(src, rec)
	defer s.Close()
	window := geometry.NewZoomHelper(geometry.Size{W: 1024, H: 512}, geometry.Unit)

	_ = s.Update(window, geometry.Rect{W: 1024, H: 512})
	_ = s.UpdateTiles()
	_ = s.Update(window, geometry.Rect{W: 400, H: 512})
	_ = s.UpdateTiles()
	rec.take()

	_ = s.Update(window, geometry.Rect{W: 1024, H: 512})
	if err := s.UpdateTiles(); err != nil {
		t.Fatalf("UpdateTiles failed: %v", err)
	}
	if got := rec.take(); !reflect.DeepEqual(got, []string{"update 1"}) {
		t.Fatalf("revival events %v, want [update 1]", got)
	}

	var swapped []uint
	s.OnSwapReady(swappable{id: 0, swapped: &swapped})
	if s.CanSwapTiles() {
		t.Fatal("revived tile must report ready before the swap")
	}
	s.OnSwapReady(swappable{id: 1, swapped: &swapped})
	s.SwapTiles()

	if got := rec.take(); len(got) != 0 {
		t.Fatalf("revived tile removed at swap: %v", got)
	}
	if !reflect.DeepEqual(s.VisibleTiles(), tile.Indices{0, 1}) {
		t.Errorf("visible tiles %v", s.VisibleTiles())
	}
}

// TestSynchronousSwapSafetyProperty drives random transitions and checks no
// sync set member is removed before SwapTiles.
func TestSynchronousSwapSafetyProperty(t *testing.T) {
	rec := newRecorder(t)
	src := datasource.NewMovie(image.Pt(2048, 1536), types.FormatRGBA, 512)
	s := NewMovie(src, rec)
	defer s.Close()
	window := geometry.NewZoomHelper(geometry.Size{W: 2048, H: 1536}, geometry.Unit)
	var swapped []uint

	areas := []geometry.Rect{
		{W: 600, H: 600}, {X: 500, W: 900, H: 500}, {X: 1200, Y: 700, W: 800, H: 800},
		{W: 2048, H: 1536}, {X: 100, Y: 100, W: 100, H: 100}, {X: 1000, Y: 0, W: 1048, H: 1536},
	}
	for step := 0; step < 60; step++ {
		_ = s.Update(window, areas[(step*7)%len(areas)])
		if step%4 == 0 {
			_ = src.SetFrame(rgbaImage(2048, 1536), uint64(step))
		}
		syncSet := s.syncSet
		if err := s.UpdateTiles(); err != nil {
			t.Fatalf("step %d: UpdateTiles failed: %v", step, err)
		}
		for _, ev := range rec.take() {
			var id uint
			if _, err := fmt.Sscanf(ev, "remove %d", &id); err == nil && syncSet.Contains(id) {
				t.Fatalf("step %d: tile %d of the sync set removed before swap", step, id)
			}
		}

		// the renderer uploads every known tile, swaps every third step
		if step%3 == 2 {
			for _, id := range s.VisibleTiles() {
				s.OnSwapReady(swappable{id: id, swapped: &swapped})
			}
			if s.SwapPending() && !s.CanSwapTiles() {
				t.Fatalf("step %d: all tiles ready but cannot swap", step)
			}
			if s.CanSwapTiles() {
				s.SwapTiles()
				rec.take()
			}
		}
	}
}

// TestResetDropsEverything verifies cancellation clears deferred removals
// and ready tiles together.
func TestResetDropsEverything(t *testing.T) {
	rec := newRecorder(t)
	src := datasource.NewMovie(image.Pt(1024, 512), types.FormatRGBA, 512)
	s := NewMovie(src, rec)
	defer s.Close()
	window := geometry.NewZoomHelper(geometry.Size{W: 1024, H: 512}, geometry.Unit)
	var swapped []uint

	_ = s.Update(window, geometry.Rect{W: 1024, H: 512})
	_ = s.UpdateTiles()
	s.OnSwapReady(swappable{id: 0, swapped: &swapped})
	_ = s.Update(window, geometry.Rect{W: 400, H: 512})
	_ = s.UpdateTiles()
	rec.take()

	s.Reset()

	if got := rec.take(); !reflect.DeepEqual(got, []string{"remove 0", "remove 1"}) {
		t.Fatalf("reset events %v", got)
	}
	if s.SwapPending() || s.CanSwapTiles() || len(rec.tiles) != 0 {
		t.Fatal("state left after reset")
	}
	s.SwapTiles()
	if len(swapped) != 0 || len(rec.take()) != 0 {
		t.Fatalf("stale tiles fired after reset: swapped %v", swapped)
	}
}

// TestContractErrorPropagates verifies a bad channel is a hard failure.
func TestContractErrorPropagates(t *testing.T) {
	rec := newRecorder(t)
	stream := datasource.NewPixelStream(nil, datasource.PixelStreamOptions{})
	if err := stream.SetFrame(streamFrame(t, 1, 0)); err != nil {
		t.Fatalf("SetFrame failed: %v", err)
	}
	s := NewPixelStream(stream, rec, PixelStreamOptions{Channel: 4})
	defer s.Close()
	window, visible := fullView(640, 256)

	err := s.Update(window, visible)

	if types.Classify(err) != types.CategoryContract {
		t.Fatalf("expected contract error, got %v", err)
	}
}

// TestSharedSourceScenario verifies two windows on one movie both refresh
// their own visible tiles after a picture swap.
func TestSharedSourceScenario(t *testing.T) {
	src := datasource.NewMovie(image.Pt(1024, 512), types.FormatRGBA, 512)
	window := geometry.NewZoomHelper(geometry.Size{W: 1024, H: 512}, geometry.Unit)
	left, right := newRecorder(t), newRecorder(t)
	a, b := NewMovie(src, left), NewMovie(src, right)
	defer a.Close()
	defer b.Close()

	_ = a.Update(window, geometry.Rect{W: 400, H: 512})
	_ = b.Update(window, geometry.Rect{X: 600, W: 400, H: 512})
	_ = a.UpdateTiles()
	_ = b.UpdateTiles()
	a.SwapTiles()
	b.SwapTiles()
	left.take()
	right.take()

	if err := src.SetFrame(rgbaImage(1024, 512), 9); err != nil {
		t.Fatalf("SetFrame failed: %v", err)
	}
	_ = a.UpdateTiles()
	_ = b.UpdateTiles()

	if got := left.take(); !reflect.DeepEqual(got, []string{"update 0"}) {
		t.Errorf("left window events %v", got)
	}
	if got := right.take(); !reflect.DeepEqual(got, []string{"update 1"}) {
		t.Errorf("right window events %v", got)
	}
	if a.Statistics() != "frame 9 tiles 1" {
		t.Errorf("statistics %q", a.Statistics())
	}
}
