package geometry

import "image"

// ZoomHelper converts between a window's display size, its zoom rectangle
// and tile-grid coordinates.
//
// Display coordinates are window-relative: (0,0) is the window's top-left.
type ZoomHelper struct {
	// Display is the window size on the wall, in pixels.
	Display Size
	// Zoom is the visible part of the content in normalized [0,0,1,1] space.
	Zoom Rect
}

// NewZoomHelper returns a helper, substituting Unit for an empty zoom.
func NewZoomHelper(display Size, zoom Rect) ZoomHelper {
	if zoom.Empty() {
		zoom = Unit
	}
	return ZoomHelper{Display: display, Zoom: zoom}
}

// ContentRect returns the full content rectangle in window coordinates:
// size = display / zoom size, position = -zoom origin * that size.
func (z ZoomHelper) ContentRect() Rect {
	zoom := z.Zoom
	if zoom.Empty() {
		zoom = Unit
	}
	w := z.Display.W / zoom.W
	h := z.Display.H / zoom.H
	return Rect{X: -zoom.X * w, Y: -zoom.Y * h, W: w, H: h}
}

// ToTilesArea maps a window-relative visible rectangle to tile-grid
// coordinates of a surface of the given size. An empty visible area yields an
// empty result.
func (z ZoomHelper) ToTilesArea(visible Rect, tilesSurface image.Point) Rect {
	content := z.ContentRect()
	if visible.Empty() || content.Empty() || tilesSurface.X <= 0 || tilesSurface.Y <= 0 {
		return Rect{}
	}
	area := visible.Translate(-content.X, -content.Y)
	return area.Scale(float64(tilesSurface.X)/content.W, float64(tilesSurface.Y)/content.H)
}
