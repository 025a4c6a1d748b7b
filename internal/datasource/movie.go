package datasource

import (
	"fmt"
	"image"
	"sync"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// Movie serves decoded movie pictures at their native size, cut into a
// single-LOD grid. The decoder side pushes pictures with SetFrame.
type Movie struct {
	Registry
	grid   tile.Grid
	format types.Format

	mu    sync.RWMutex
	frame *types.Image
	index uint64
}

// NewMovie creates a movie source for pictures of the given size and format.
func NewMovie(size image.Point, format types.Format, tileSize int) *Movie {
	if tileSize <= 0 {
		tileSize = tile.DefaultSize
	}
	return &Movie{grid: tile.Grid{Size: size, TileSize: tileSize}, format: format}
}

// SetFrame installs a decoded picture and notifies listeners. The image must
// not be modified afterwards.
func (m *Movie) SetFrame(img *types.Image, index uint64) error {
	if img.Width != m.grid.Size.X || img.Height != m.grid.Size.Y || img.Format != m.format {
		return fmt.Errorf("datasource: movie picture %dx%d %s, expected %dx%d %s: %w",
			img.Width, img.Height, img.Format, m.grid.Size.X, m.grid.Size.Y, m.format, types.ErrContract)
	}

	m.mu.Lock()
	m.frame, m.index = img, index
	m.mu.Unlock()

	m.Notify()
	return nil
}

// FrameIndex returns the index of the current picture.
func (m *Movie) FrameIndex() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index
}

func (m *Movie) check(id uint) error {
	if id >= m.grid.Count() {
		return fmt.Errorf("datasource: movie tile %d out of range [0,%d): %w", id, m.grid.Count(), types.ErrContract)
	}
	return nil
}

// TileImage implements DataSource.
func (m *Movie) TileImage(id uint) (*types.Image, error) {
	if err := m.check(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	frame := m.frame
	m.mu.RUnlock()

	if frame == nil {
		return nil, ErrNoFrame
	}
	return cropTile(frame, m.grid.Rect(id))
}

// TileRect implements DataSource.
func (m *Movie) TileRect(id uint) (image.Rectangle, error) {
	if err := m.check(id); err != nil {
		return image.Rectangle{}, err
	}
	return m.grid.Rect(id), nil
}

// TileFormat implements DataSource.
func (m *Movie) TileFormat(id uint) (types.Format, error) {
	if err := m.check(id); err != nil {
		return 0, err
	}
	return m.format, nil
}

// TilesArea implements DataSource.
func (m *Movie) TilesArea(lod, _ uint) (image.Point, error) {
	if err := checkLod(lod, 0); err != nil {
		return image.Point{}, err
	}
	return m.grid.Size, nil
}

// ComputeVisibleSet implements DataSource.
func (m *Movie) ComputeVisibleSet(area geometry.Rect, lod, _ uint) (tile.Indices, error) {
	if err := checkLod(lod, 0); err != nil {
		return nil, err
	}
	return m.grid.VisibleSet(area, 0), nil
}

// MaxLod implements DataSource.
func (m *Movie) MaxLod() uint { return 0 }

// IsDynamic implements DataSource.
func (m *Movie) IsDynamic() bool { return true }
