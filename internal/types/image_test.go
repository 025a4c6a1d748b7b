package types

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"
)

// TestChromaRegion420 checks that a 4:2:0 region maps to half size at half
// position on both axes.
func TestChromaRegion420(t *testing.T) {
	r := image.Rect(64, 128, 64+256, 128+100)

	got := ChromaRegion(r, FormatYUV420)

	want := image.Rect(32, 64, 32+128, 64+50)
	if got != want {
		t.Fatalf("ChromaRegion(420) = %v, want %v", got, want)
	}
}

// TestChromaRegionShifts covers the per-format shift rules.
func TestChromaRegionShifts(t *testing.T) {
	r := image.Rect(8, 4, 8+16, 4+12)
	tests := []struct {
		format Format
		want   image.Rectangle
	}{
		{FormatYUV444, image.Rect(8, 4, 24, 16)},
		{FormatYUV422, image.Rect(4, 4, 12, 16)},
		{FormatYUV420, image.Rect(4, 2, 12, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := ChromaRegion(r, tt.format); got != tt.want {
				t.Errorf("ChromaRegion(%s) = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

// TestBlitBottomUp verifies a bottom-up source lands top-down in the destination.
func TestBlitBottomUp(t *testing.T) {
	src := NewImage(2, 3, FormatYUV444)
	// stored rows: 0 = last image row
	for p := 0; p < 3; p++ {
		for row := 0; row < 3; row++ {
			for col := 0; col < 2; col++ {
				src.Planes[p][row*2+col] = byte(10*(2-row) + col + 100*p)
			}
		}
	}

	dst := NewImage(4, 4, FormatYUV444)
	if err := Blit(dst, image.Pt(1, 1), src, image.Rect(0, 0, 2, 3), RowOrderBottomUp); err != nil {
		t.Fatalf("Blit failed: %v", err)
	}

	for p := 0; p < 3; p++ {
		for row := 0; row < 3; row++ {
			for col := 0; col < 2; col++ {
				got := dst.Planes[p][(row+1)*4+col+1]
				want := byte(10*row + col + 100*p)
				if got != want {
					t.Errorf("plane %d (%d,%d) = %d, want %d", p, col, row, got, want)
				}
			}
		}
	}
}

// TestBlitRejectsOutOfBounds verifies contract errors on bad regions.
func TestBlitRejectsOutOfBounds(t *testing.T) {
	src := NewImage(4, 4, FormatRGBA)
	dst := NewImage(4, 4, FormatRGBA)

	err := Blit(dst, image.Pt(2, 2), src, image.Rect(0, 0, 4, 4), RowOrderTopDown)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("expected ErrContract, got %v", err)
	}

	err = Blit(NewImage(4, 4, FormatYUV420), image.Point{}, src, image.Rect(0, 0, 2, 2), RowOrderTopDown)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("expected ErrContract for format mismatch, got %v", err)
	}
}

// TestFromImageKeepsSubsampling verifies a 4:2:2 YCbCr keeps its layout.
func TestFromImageKeepsSubsampling(t *testing.T) {
	ycc := image.NewYCbCr(image.Rect(0, 0, 8, 4), image.YCbCrSubsampleRatio422)
	for i := range ycc.Y {
		ycc.Y[i] = byte(i)
	}
	for i := range ycc.Cb {
		ycc.Cb[i] = byte(200 + i)
	}

	img := FromImage(ycc)

	if img.Format != FormatYUV422 {
		t.Fatalf("format = %s, want yuv422", img.Format)
	}
	if w, h := img.PlaneSize(1); w != 4 || h != 4 {
		t.Fatalf("chroma plane = %dx%d, want 4x4", w, h)
	}
	if img.Planes[0][9] != 9 || img.Planes[1][5] != 205 {
		t.Errorf("plane data not copied: y=%d cb=%d", img.Planes[0][9], img.Planes[1][5])
	}
}

// TestFromImageConvertsToRGBA verifies paletted input is converted.
func TestFromImageConvertsToRGBA(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.RGBA{255, 0, 0, 255}})

	img := FromImage(pal)

	if img.Format != FormatRGBA || len(img.Planes[0]) != 16 {
		t.Fatalf("unexpected conversion: %s, %d bytes", img.Format, len(img.Planes[0]))
	}
	if img.Planes[0][0] != 255 || img.Planes[0][1] != 0 {
		t.Errorf("pixel = %v, want red", img.Planes[0][:4])
	}
}

// TestClassify maps wrapped errors onto categories.
func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{fmt.Errorf("tile 4: %w", ErrContract), CategoryContract},
		{fmt.Errorf("segment: %w", ErrDecode), CategoryDecode},
		{fmt.Errorf("grid: %w", ErrUnassemblable), CategoryUnassemblable},
		{errors.New("boom"), CategoryUnknown},
		{nil, CategoryUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if CategoryContract.Recoverable() || !CategoryDecode.Recoverable() {
		t.Error("Recoverable mismatch")
	}
}
