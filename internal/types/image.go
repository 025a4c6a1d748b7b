package types

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Image is a decoded tile payload stored plane by plane.
//
// IMMUTABILITY CONTRACT: once an Image has been handed to a reader (renderer,
// upload path, another synchronizer) its planes MUST NOT be modified.
type Image struct {
	Width  int
	Height int
	Format Format

	// Planes holds one tightly packed plane for RGBA, or Y, U, V for YUV.
	Planes [3][]byte
}

// NewImage allocates a zeroed image with tightly packed planes.
func NewImage(width, height int, format Format) *Image {
	img := &Image{Width: width, Height: height, Format: format}
	for p := 0; p < format.PlaneCount(); p++ {
		w, h := img.PlaneSize(p)
		img.Planes[p] = make([]byte, w*h*format.BytesPerPixel(p))
	}
	return img
}

// PlaneSize returns the pixel dimensions of the given plane.
func (img *Image) PlaneSize(plane int) (width, height int) {
	if plane == 0 {
		return img.Width, img.Height
	}
	sx, sy := img.Format.ChromaShift()
	return img.Width >> sx, img.Height >> sy
}

// Stride returns the row length in bytes of the given plane.
func (img *Image) Stride(plane int) int {
	w, _ := img.PlaneSize(plane)
	return w * img.Format.BytesPerPixel(plane)
}

// DataSize returns the total payload size in bytes.
func (img *Image) DataSize() int {
	n := 0
	for p := 0; p < img.Format.PlaneCount(); p++ {
		n += len(img.Planes[p])
	}
	return n
}

// ChromaRegion maps a luma-space region to the matching chroma plane region:
// position and size are shifted right by one bit per subsampled axis.
func ChromaRegion(r image.Rectangle, format Format) image.Rectangle {
	sx, sy := format.ChromaShift()
	x, y := r.Min.X>>sx, r.Min.Y>>sy
	return image.Rect(x, y, x+(r.Dx()>>sx), y+(r.Dy()>>sy))
}

// Blit copies region src of srcImg into dst with its top-left corner at at.
// A bottom-up source is read starting from its last stored row so that the
// destination always ends up top-down.
func Blit(dst *Image, at image.Point, srcImg *Image, src image.Rectangle, order RowOrder) error {
	if dst.Format != srcImg.Format {
		return fmt.Errorf("blit %s into %s: %w", srcImg.Format, dst.Format, ErrContract)
	}
	if !src.In(image.Rect(0, 0, srcImg.Width, srcImg.Height)) {
		return fmt.Errorf("blit region %v outside source %dx%d: %w", src, srcImg.Width, srcImg.Height, ErrContract)
	}
	if !src.Sub(src.Min).Add(at).In(image.Rect(0, 0, dst.Width, dst.Height)) {
		return fmt.Errorf("blit region %v at %v outside destination %dx%d: %w", src, at, dst.Width, dst.Height, ErrContract)
	}

	for p := 0; p < dst.Format.PlaneCount(); p++ {
		s, d := src, image.Rectangle{Min: at, Max: at.Add(src.Size())}
		if p > 0 {
			s = ChromaRegion(src, dst.Format)
			d = ChromaRegion(d, dst.Format)
		}
		bpp := dst.Format.BytesPerPixel(p)
		srcStride, dstStride := srcImg.Stride(p), dst.Stride(p)
		_, srcPlaneHeight := srcImg.PlaneSize(p)
		rowBytes := s.Dx() * bpp

		for row := 0; row < s.Dy(); row++ {
			srcRow := s.Min.Y + row
			if order == RowOrderBottomUp {
				srcRow = srcPlaneHeight - 1 - srcRow
			}
			so := srcRow*srcStride + s.Min.X*bpp
			do := (d.Min.Y+row)*dstStride + d.Min.X*bpp
			copy(dst.Planes[p][do:do+rowBytes], srcImg.Planes[p][so:so+rowBytes])
		}
	}
	return nil
}

// Crop returns a top-down copy of region r.
func (img *Image) Crop(r image.Rectangle, order RowOrder) (*Image, error) {
	out := NewImage(r.Dx(), r.Dy(), img.Format)
	if err := Blit(out, image.Point{}, img, r, order); err != nil {
		return nil, err
	}
	return out, nil
}

// FromImage converts a Go image to a planar Image. YCbCr images keep their
// subsampling when it maps to a supported format; everything else becomes RGBA.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	if ycc, ok := src.(*image.YCbCr); ok {
		format, ok := formatFromRatio(ycc.SubsampleRatio)
		sx, sy := format.ChromaShift()
		// odd sizes would lose the last chroma column or row
		if ok && b.Dx()%(1<<sx) == 0 && b.Dy()%(1<<sy) == 0 {
			out := NewImage(b.Dx(), b.Dy(), format)
			copyPlane(out.Planes[0], out.Stride(0), ycc.Y[ycc.YOffset(b.Min.X, b.Min.Y):], ycc.YStride, b.Dx(), b.Dy())
			cw, ch := out.PlaneSize(1)
			co := ycc.COffset(b.Min.X, b.Min.Y)
			copyPlane(out.Planes[1], out.Stride(1), ycc.Cb[co:], ycc.CStride, cw, ch)
			copyPlane(out.Planes[2], out.Stride(2), ycc.Cr[co:], ycc.CStride, cw, ch)
			return out
		}
	}

	rgba, ok := src.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() || len(rgba.Pix) != 4*b.Dx()*b.Dy() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}
	return &Image{Width: b.Dx(), Height: b.Dy(), Format: FormatRGBA, Planes: [3][]byte{rgba.Pix}}
}

// ToImage wraps the planes in a Go image without copying.
func (img *Image) ToImage() image.Image {
	r := image.Rect(0, 0, img.Width, img.Height)
	if img.Format == FormatRGBA {
		return &image.RGBA{Pix: img.Planes[0], Stride: img.Stride(0), Rect: r}
	}
	ratio := image.YCbCrSubsampleRatio444
	switch img.Format {
	case FormatYUV422:
		ratio = image.YCbCrSubsampleRatio422
	case FormatYUV420:
		ratio = image.YCbCrSubsampleRatio420
	}
	return &image.YCbCr{
		Y: img.Planes[0], Cb: img.Planes[1], Cr: img.Planes[2],
		YStride: img.Stride(0), CStride: img.Stride(1),
		SubsampleRatio: ratio, Rect: r,
	}
}

// At returns the color at (x, y); used by tests and debugging tools.
func (img *Image) At(x, y int) color.Color {
	return img.ToImage().At(x, y)
}

func formatFromRatio(r image.YCbCrSubsampleRatio) (Format, bool) {
	switch r {
	case image.YCbCrSubsampleRatio444:
		return FormatYUV444, true
	case image.YCbCrSubsampleRatio422:
		return FormatYUV422, true
	case image.YCbCrSubsampleRatio420:
		return FormatYUV420, true
	}
	return FormatRGBA, false
}

func copyPlane(dst []byte, dstStride int, src []byte, srcStride, width, height int) {
	for y := 0; y < height; y++ {
		copy(dst[y*dstStride:y*dstStride+width], src[y*srcStride:y*srcStride+width])
	}
}
