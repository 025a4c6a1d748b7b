package pixelstream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// SplitOptions controls how an image is cut into stream segments.
type SplitOptions struct {
	// Size is the segment edge length; border segments are clipped.
	Size int
	// Compress encodes each segment as JPEG (RGBA and YUV420 only).
	Compress bool
	// Quality is the JPEG quality, jpeg.DefaultQuality when zero.
	Quality int

	RowOrder types.RowOrder
	Channel  uint
	View     types.View
}

// Split cuts img into row-major segments the way a streaming client sends
// them. It is the producing side of Assembler and is used by the stream
// replayer.
func Split(img *types.Image, opts SplitOptions) ([]types.Segment, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("pixelstream: segment size %d: %w", opts.Size, types.ErrContract)
	}
	if opts.Compress && img.Format != types.FormatRGBA && img.Format != types.FormatYUV420 {
		return nil, fmt.Errorf("pixelstream: cannot compress %s segments: %w", img.Format, types.ErrContract)
	}
	quality := opts.Quality
	if quality == 0 {
		quality = jpeg.DefaultQuality
	}

	var segs []types.Segment
	for y := 0; y < img.Height; y += opts.Size {
		for x := 0; x < img.Width; x += opts.Size {
			r := image.Rect(x, y, min(x+opts.Size, img.Width), min(y+opts.Size, img.Height))
			sub, err := img.Crop(r, types.RowOrderTopDown)
			if err != nil {
				return nil, err
			}
			if opts.RowOrder == types.RowOrderBottomUp {
				// reading a top-down buffer bottom-up reverses its rows
				if sub, err = sub.Crop(image.Rect(0, 0, sub.Width, sub.Height), types.RowOrderBottomUp); err != nil {
					return nil, err
				}
			}

			seg := types.Segment{
				X: x, Y: y, Width: r.Dx(), Height: r.Dy(),
				Format:     img.Format,
				RowOrder:   opts.RowOrder,
				View:       opts.View,
				Channel:    opts.Channel,
				Compressed: opts.Compress,
			}
			if opts.Compress {
				var buf bytes.Buffer
				if err := jpeg.Encode(&buf, sub.ToImage(), &jpeg.Options{Quality: quality}); err != nil {
					return nil, fmt.Errorf("pixelstream: encode segment at %d,%d: %w", x, y, err)
				}
				seg.Data = buf.Bytes()
			} else {
				seg.Data = make([]byte, 0, sub.DataSize())
				for p := 0; p < sub.Format.PlaneCount(); p++ {
					seg.Data = append(seg.Data, sub.Planes[p]...)
				}
			}
			segs = append(segs, seg)
		}
	}
	return segs, nil
}
