// Package types holds the value types shared by the wall tile pipeline:
// pixel formats, planar images, network segments and frames.
package types

import "fmt"

// Format is the pixel layout of a tile or segment.
type Format int

const (
	// FormatRGBA is packed 8-bit RGBA, one plane.
	FormatRGBA Format = iota
	// FormatYUV444 is planar YUV without chroma subsampling.
	FormatYUV444
	// FormatYUV422 is planar YUV with horizontally halved chroma.
	FormatYUV422
	// FormatYUV420 is planar YUV with chroma halved on both axes.
	FormatYUV420
)

// String returns a human-readable name of the format
func (f Format) String() string {
	switch f {
	case FormatRGBA:
		return "rgba"
	case FormatYUV444:
		return "yuv444"
	case FormatYUV422:
		return "yuv422"
	case FormatYUV420:
		return "yuv420"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// IsYUV reports whether the format is one of the planar YUV layouts.
func (f Format) IsYUV() bool {
	return f == FormatYUV444 || f == FormatYUV422 || f == FormatYUV420
}

// PlaneCount returns 1 for RGBA and 3 for YUV.
func (f Format) PlaneCount() int {
	if f.IsYUV() {
		return 3
	}
	return 1
}

// ChromaShift returns the bit shift applied to x and y to go from luma to
// chroma plane coordinates. 444 = no shift, 422 = x only, 420 = both.
func (f Format) ChromaShift() (sx, sy uint) {
	switch f {
	case FormatYUV422:
		return 1, 0
	case FormatYUV420:
		return 1, 1
	default:
		return 0, 0
	}
}

// BytesPerPixel returns the sample size of the given plane.
func (f Format) BytesPerPixel(plane int) int {
	if f == FormatRGBA && plane == 0 {
		return 4
	}
	return 1
}

// TextureType tells the renderer how often a tile texture is uploaded.
type TextureType int

const (
	// TextureStatic is uploaded once.
	TextureStatic TextureType = iota
	// TextureDynamic is re-uploaded for every content generation.
	TextureDynamic
)

// String returns a human-readable name of the texture type
func (t TextureType) String() string {
	if t == TextureDynamic {
		return "dynamic"
	}
	return "static"
}

// RowOrder is the vertical order in which segment rows are stored.
type RowOrder int

const (
	// RowOrderTopDown stores the first image row first.
	RowOrderTopDown RowOrder = iota
	// RowOrderBottomUp stores the last image row first.
	RowOrderBottomUp
)

// View is the stereo eye a segment belongs to.
type View int

const (
	ViewMono View = iota
	ViewLeftEye
	ViewRightEye
)

// String returns a human-readable name of the view
func (v View) String() string {
	switch v {
	case ViewLeftEye:
		return "left"
	case ViewRightEye:
		return "right"
	default:
		return "mono"
	}
}
