package datasource

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// DecodeFile decodes an image file in any registered format (PNG, JPEG,
// GIF, BMP, WebP).
func DecodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %v: %w", path, err, types.ErrDecode)
	}
	return img, format, nil
}

// LoadImage decodes an image file into a planar Image. JPEG files keep
// their YUV layout.
func LoadImage(path string) (*types.Image, error) {
	img, _, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return types.FromImage(img), nil
}

// Open picks a static source for an image file: Basic when it fits into a
// single tile, Pyramid otherwise.
func Open(path string, tileSize int) (DataSource, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	if img.Width <= tileSize && img.Height <= tileSize {
		return NewBasic(img), nil
	}
	return NewPyramid(img, tileSize), nil
}
