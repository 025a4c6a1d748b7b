package geometry

import (
	"image"
	"math"
	"testing"
)

func almostEqual(a, b Rect) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.W-b.W) < eps && math.Abs(a.H-b.H) < eps
}

// TestContentRectIdentity verifies the unit zoom maps the window onto itself.
func TestContentRectIdentity(t *testing.T) {
	z := NewZoomHelper(Size{800, 600}, Unit)

	got := z.ContentRect()

	if want := (Rect{0, 0, 800, 600}); !almostEqual(got, want) {
		t.Fatalf("ContentRect() = %+v, want %+v", got, want)
	}
}

// TestContentRectZoomed verifies scale and offset for a zoomed-in window.
func TestContentRectZoomed(t *testing.T) {
	z := NewZoomHelper(Size{800, 600}, Rect{0.25, 0.5, 0.5, 0.25})

	got := z.ContentRect()

	want := Rect{X: -400, Y: -1200, W: 1600, H: 2400}
	if !almostEqual(got, want) {
		t.Fatalf("ContentRect() = %+v, want %+v", got, want)
	}
}

// TestContentRectEmptyZoom verifies a missing zoom defaults to Unit.
func TestContentRectEmptyZoom(t *testing.T) {
	z := ZoomHelper{Display: Size{100, 50}}

	if got := z.ContentRect(); !almostEqual(got, Rect{0, 0, 100, 50}) {
		t.Fatalf("ContentRect() = %+v", got)
	}
}

// TestToTilesArea maps visible window areas to a 2048x1024 tile surface.
func TestToTilesArea(t *testing.T) {
	tests := []struct {
		name    string
		zoom    Rect
		visible Rect
		want    Rect
	}{
		{"full window unzoomed", Unit, Rect{0, 0, 1000, 500}, Rect{0, 0, 2048, 1024}},
		{"right half unzoomed", Unit, Rect{500, 0, 500, 500}, Rect{1024, 0, 1024, 1024}},
		{"zoomed on bottom-right quarter", Rect{0.5, 0.5, 0.5, 0.5}, Rect{0, 0, 1000, 500}, Rect{1024, 512, 1024, 512}},
		{"zoomed, top-left of window", Rect{0.5, 0.5, 0.5, 0.5}, Rect{0, 0, 500, 250}, Rect{1024, 512, 512, 256}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := NewZoomHelper(Size{1000, 500}, tt.zoom)
			got := z.ToTilesArea(tt.visible, image.Pt(2048, 1024))
			if !almostEqual(got, tt.want) {
				t.Errorf("ToTilesArea() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestToTilesAreaEmpty verifies zero-area input never yields a visible area.
func TestToTilesAreaEmpty(t *testing.T) {
	z := NewZoomHelper(Size{1000, 500}, Unit)

	got := z.ToTilesArea(Rect{10, 10, 0, 40}, image.Pt(512, 512))

	if !got.Empty() {
		t.Fatalf("expected empty tiles area, got %+v", got)
	}
}

// TestIntersects checks edge-touching rectangles do not count.
func TestIntersects(t *testing.T) {
	tile := image.Rect(512, 0, 1024, 512)
	tests := []struct {
		area Rect
		want bool
	}{
		{Rect{0, 0, 512, 512}, false},
		{Rect{0, 0, 512.5, 10}, true},
		{Rect{1024, 0, 10, 10}, false},
		{Rect{600, 100, 0, 10}, false},
		{Rect{600, 100, 1, 1}, true},
	}
	for _, tt := range tests {
		if got := tt.area.Intersects(tile); got != tt.want {
			t.Errorf("%+v.Intersects(%v) = %v, want %v", tt.area, tile, got, tt.want)
		}
	}
}
