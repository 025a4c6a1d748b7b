package types

import (
	"fmt"
	"image"
	"sort"
)

// Segment is one irregular, network-delivered sub-image of a frame.
//
// Data is either a compressed (JPEG) payload or the raw planes laid out one
// after the other with tight strides. Data MUST NOT be modified once the
// segment belongs to a published Frame.
type Segment struct {
	X      int
	Y      int
	Width  int
	Height int

	Format     Format
	RowOrder   RowOrder
	View       View
	Channel    uint
	Compressed bool

	Data []byte
}

// Rect returns the segment rectangle in frame coordinates.
func (s *Segment) Rect() image.Rectangle {
	return image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
}

// RawImage wraps an uncompressed payload as an Image without copying.
func (s *Segment) RawImage() (*Image, error) {
	if s.Compressed {
		return nil, fmt.Errorf("segment at %d,%d is compressed: %w", s.X, s.Y, ErrContract)
	}
	img := &Image{Width: s.Width, Height: s.Height, Format: s.Format}
	offset := 0
	for p := 0; p < s.Format.PlaneCount(); p++ {
		_, h := img.PlaneSize(p)
		n := img.Stride(p) * h
		if offset+n > len(s.Data) {
			return nil, fmt.Errorf("segment at %d,%d: %d bytes for %dx%d %s: %w",
				s.X, s.Y, len(s.Data), s.Width, s.Height, s.Format, ErrDecode)
		}
		img.Planes[p] = s.Data[offset : offset+n]
		offset += n
	}
	return img, nil
}

// Frame is one generation of a pixel stream.
type Frame struct {
	// URI identifies the stream.
	URI string
	// Index is the frame number assigned by the streaming source. All wall
	// processes receive the same index for the same frame, which makes it
	// the swap version.
	Index uint64
	// TraceID follows a frame across processes in logs.
	TraceID string

	Segments []Segment
}

// Size returns the frame dimensions for a channel, computed as the bounding
// box of its segments.
func (f *Frame) Size(channel uint) image.Point {
	var size image.Point
	for i := range f.Segments {
		s := &f.Segments[i]
		if s.Channel != channel {
			continue
		}
		size.X = max(size.X, s.X+s.Width)
		size.Y = max(size.Y, s.Y+s.Height)
	}
	return size
}

// Channels returns the sorted distinct channel indices present in the frame.
func (f *Frame) Channels() []uint {
	seen := make(map[uint]struct{})
	var out []uint
	for i := range f.Segments {
		c := f.Segments[i].Channel
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortSegments orders segments by channel, then row-major by position.
func (f *Frame) SortSegments() {
	sort.SliceStable(f.Segments, func(i, j int) bool {
		a, b := &f.Segments[i], &f.Segments[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}

// FilterView returns a copy of the frame keeping mono segments and the
// segments of the given eye.
func (f *Frame) FilterView(view View) *Frame {
	out := &Frame{URI: f.URI, Index: f.Index, TraceID: f.TraceID}
	for _, s := range f.Segments {
		if s.View == ViewMono || s.View == view {
			out.Segments = append(out.Segments, s)
		}
	}
	return out
}
