package pixelstream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"

	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// Decoder turns a compressed segment payload into a planar image in the
// segment's declared format.
//
// Implementations must be safe for concurrent use: tile images are requested
// from a worker pool.
type Decoder interface {
	Decode(seg *types.Segment) (*types.Image, error)
}

// JPEGDecoder decodes JPEG segments. YUV segments keep the JPEG chroma
// layout, which must match the declared format; RGBA segments are converted.
type JPEGDecoder struct{}

// Decode implements Decoder.
func (JPEGDecoder) Decode(seg *types.Segment) (*types.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(seg.Data))
	if err != nil {
		return nil, fmt.Errorf("segment at %d,%d: %v: %w", seg.X, seg.Y, err, types.ErrDecode)
	}
	if b := img.Bounds(); b.Dx() != seg.Width || b.Dy() != seg.Height {
		return nil, fmt.Errorf("segment at %d,%d: decoded %dx%d, declared %dx%d: %w",
			seg.X, seg.Y, b.Dx(), b.Dy(), seg.Width, seg.Height, types.ErrDecode)
	}

	if seg.Format == types.FormatRGBA {
		if _, ok := img.(*image.RGBA); !ok {
			rgba := image.NewRGBA(image.Rect(0, 0, seg.Width, seg.Height))
			draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
			img = rgba
		}
	}
	out := types.FromImage(img)
	if out.Format != seg.Format {
		return nil, fmt.Errorf("segment at %d,%d: decoded %s, declared %s: %w",
			seg.X, seg.Y, out.Format, seg.Format, types.ErrDecode)
	}
	return out, nil
}

// sourceTile wraps a delivered segment with its lazily decoded image. The
// payload is decoded at most once per frame, whatever the number of target
// tiles it contributes to.
type sourceTile struct {
	seg *types.Segment

	once sync.Once
	img  *types.Image
	err  error
}

func newSourceTiles(segs []types.Segment) []*sourceTile {
	out := make([]*sourceTile, len(segs))
	for i := range segs {
		out[i] = &sourceTile{seg: &segs[i]}
	}
	return out
}

func (t *sourceTile) decode(dec Decoder) (*types.Image, error) {
	t.once.Do(func() {
		if !t.seg.Compressed {
			t.img, t.err = t.seg.RawImage()
			return
		}
		if dec == nil {
			t.err = fmt.Errorf("compressed segment at %d,%d without decoder: %w", t.seg.X, t.seg.Y, types.ErrContract)
			return
		}
		t.img, t.err = dec.Decode(t.seg)
	})
	return t.img, t.err
}
