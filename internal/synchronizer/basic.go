package synchronizer

import (
	"fmt"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
)

// Basic synchronizes static single-LOD content such as small images.
type Basic struct {
	*Tiled
}

// NewBasic creates a synchronizer whose tiles swap independently.
func NewBasic(source datasource.DataSource, renderer Renderer) *Basic {
	return &Basic{Tiled: newTiled(source, renderer, SwapTilesIndependently)}
}

// Update implements Synchronizer.
func (b *Basic) Update(window geometry.ZoomHelper, visibleArea geometry.Rect) error {
	_, err := b.updateView(window, visibleArea, 0)
	return err
}

// Statistics implements Synchronizer.
func (b *Basic) Statistics() string {
	return fmt.Sprintf("tiles %d", len(b.VisibleTiles()))
}

// Movie synchronizes decoded movie pictures. A new picture changes pixels in
// place, so every visible tile is updated and swapped as one generation.
type Movie struct {
	*Tiled
	movie *datasource.Movie
}

// NewMovie creates a synchronizer listening to the movie's new pictures.
// Call Close to detach it.
func NewMovie(source *datasource.Movie, renderer Renderer) *Movie {
	m := &Movie{Tiled: newTiled(source, renderer, SwapTilesSynchronously), movie: source}
	m.listen(m.MarkDirty)
	return m
}

// Update implements Synchronizer.
func (m *Movie) Update(window geometry.ZoomHelper, visibleArea geometry.Rect) error {
	_, err := m.updateView(window, visibleArea, 0)
	return err
}

// Statistics implements Synchronizer.
func (m *Movie) Statistics() string {
	return fmt.Sprintf("frame %d tiles %d", m.movie.FrameIndex(), len(m.VisibleTiles()))
}
