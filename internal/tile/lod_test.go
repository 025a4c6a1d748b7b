package tile

import (
	"errors"
	"image"
	"math/rand"
	"reflect"
	"testing"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// TestIndicesSetOps covers difference, union and intersection.
func TestIndicesSetOps(t *testing.T) {
	a := Of(5, 1, 3, 3, 7)
	b := Of(3, 4, 7, 9)

	if want := (Indices{1, 3, 5, 7}); !reflect.DeepEqual(a, want) {
		t.Fatalf("Of() = %v, want %v", a, want)
	}
	if got, want := a.Difference(b), (Indices{1, 5}); !reflect.DeepEqual(got, want) {
		t.Errorf("Difference = %v, want %v", got, want)
	}
	if got, want := a.Union(b), (Indices{1, 3, 4, 5, 7, 9}); !reflect.DeepEqual(got, want) {
		t.Errorf("Union = %v, want %v", got, want)
	}
	if got, want := a.Intersect(b), (Indices{3, 7}); !reflect.DeepEqual(got, want) {
		t.Errorf("Intersect = %v, want %v", got, want)
	}
	if !a.Contains(5) || a.Contains(4) {
		t.Error("Contains mismatch")
	}
	if got := Indices(nil).Difference(b); len(got) != 0 {
		t.Errorf("nil - b = %v", got)
	}
}

// TestLodTilesPyramid checks levels, counts and id numbering of a 2048x1024 image.
func TestLodTilesPyramid(t *testing.T) {
	l := NewLodTiles(image.Pt(2048, 1024), 512)

	if l.MaxLod() != 2 {
		t.Fatalf("MaxLod = %d, want 2", l.MaxLod())
	}
	wantCounts := []uint{8, 2, 1}
	for lod, want := range wantCounts {
		if got := l.TileCount(uint(lod)); got != want {
			t.Errorf("TileCount(%d) = %d, want %d", lod, got, want)
		}
	}
	if l.BackgroundTileID() != 0 || l.FirstTileID(1) != 1 || l.FirstTileID(0) != 3 {
		t.Errorf("unexpected first ids: bg=%d lod1=%d lod0=%d",
			l.BackgroundTileID(), l.FirstTileID(1), l.FirstTileID(0))
	}
	if l.TotalTileCount() != 11 {
		t.Errorf("TotalTileCount = %d, want 11", l.TotalTileCount())
	}

	r, err := l.TileRect(0)
	if err != nil || r != image.Rect(0, 0, 512, 256) {
		t.Errorf("TileRect(0) = %v, %v", r, err)
	}
	r, _ = l.TileRect(3 + 7)
	if r != image.Rect(1536, 512, 2048, 1024) {
		t.Errorf("TileRect(10) = %v", r)
	}
}

// TestLodTilesBorderTiles verifies clipping of right/bottom border tiles.
func TestLodTilesBorderTiles(t *testing.T) {
	l := NewLodTiles(image.Pt(700, 600), 512)

	first := l.FirstTileID(0)
	r, _ := l.TileRect(first + 3)

	if r != image.Rect(512, 512, 700, 600) {
		t.Fatalf("border tile = %v", r)
	}
}

// TestLodTilesOutOfRange verifies contract errors.
func TestLodTilesOutOfRange(t *testing.T) {
	l := NewLodTiles(image.Pt(1024, 1024), 512)

	if _, err := l.TileRect(l.TotalTileCount()); !errors.Is(err, types.ErrContract) {
		t.Errorf("expected ErrContract, got %v", err)
	}
	if _, err := l.ComputeVisibleSet(geometry.Rect{W: 10, H: 10}, 9); !errors.Is(err, types.ErrContract) {
		t.Errorf("expected ErrContract for lod, got %v", err)
	}
}

// TestComputeVisibleSetMatchesBruteForce compares the grid walk with a scan
// over every tile of the level, for random areas.
func TestComputeVisibleSetMatchesBruteForce(t *testing.T) {
	l := NewLodTiles(image.Pt(3000, 1700), 512)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		lod := uint(rng.Intn(int(l.MaxLod()) + 1))
		a := l.TilesArea(lod)
		area := geometry.Rect{
			X: rng.Float64()*float64(a.X)*1.2 - 100,
			Y: rng.Float64()*float64(a.Y)*1.2 - 100,
			W: rng.Float64() * float64(a.X),
			H: rng.Float64() * float64(a.Y),
		}

		got, err := l.ComputeVisibleSet(area, lod)
		if err != nil {
			t.Fatalf("ComputeVisibleSet failed: %v", err)
		}

		var want Indices
		for id := l.FirstTileID(lod); id < l.FirstTileID(lod)+l.TileCount(lod); id++ {
			r, _ := l.TileRect(id)
			if area.Intersects(r) {
				want = append(want, id)
			}
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("lod %d area %+v: got %v, want %v", lod, area, got, want)
		}
	}
}
