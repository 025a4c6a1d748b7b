// Package datasource exposes the pixel data of one content to the
// synchronizers displaying it.
//
// A DataSource is shared read-mostly by every synchronizer showing the same
// content. Only the producing side (decoder, network callback, page change)
// mutates it, under a reader/writer lock around the current frame, and then
// notifies the registered listeners. Synchronizers never mutate a source.
//
// # Registration
//
// Sources do not own their listeners. A listener registers and keeps the
// returned id; it must unregister on teardown:
//
//	id := src.Register(sync)
//	defer src.Unregister(id)
package datasource

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// DataSource is implemented by every content type.
//
// Tile ids, rectangles and visible sets are expressed in the tile-grid space
// of the LOD a tile belongs to. Errors wrapping types.ErrContract signal a
// misuse by the caller (unknown tile, LOD or channel). Errors wrapping
// types.ErrDecode or ErrNoFrame are transient: the tile has no image this
// cycle.
type DataSource interface {
	TileImage(id uint) (*types.Image, error)
	TileRect(id uint) (image.Rectangle, error)
	TileFormat(id uint) (types.Format, error)
	TilesArea(lod, channel uint) (image.Point, error)
	ComputeVisibleSet(area geometry.Rect, lod, channel uint) (tile.Indices, error)
	MaxLod() uint
	IsDynamic() bool

	// Register adds a listener notified after every generation change.
	Register(l Listener) uuid.UUID
	// Unregister removes a listener.
	Unregister(id uuid.UUID) error
}

// Listener reacts to generation changes of a source. OnDataChanged runs on
// the producer's goroutine and must not block.
type Listener interface {
	OnDataChanged()
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func()

// OnDataChanged implements Listener.
func (f ListenerFunc) OnDataChanged() { f() }

var (
	// ErrListenerNotFound is returned when Unregister is called with an unknown id.
	ErrListenerNotFound = errors.New("datasource: listener not found")

	// ErrNoFrame is returned by dynamic sources before their first frame.
	ErrNoFrame = errors.New("datasource: no frame available")
)

// Registry is the listener table embedded by every source.
type Registry struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]Listener
	order     []uuid.UUID
}

// Register implements DataSource.
func (r *Registry) Register(l Listener) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listeners == nil {
		r.listeners = make(map[uuid.UUID]Listener)
	}
	id := uuid.New()
	r.listeners[id] = l
	r.order = append(r.order, id)
	return id
}

// Unregister implements DataSource.
func (r *Registry) Unregister(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[id]; !ok {
		return ErrListenerNotFound
	}
	delete(r.listeners, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Notify calls every listener in registration order. The table is
// snapshotted first so listeners may unregister from their callback.
func (r *Registry) Notify() {
	r.mu.RLock()
	snapshot := make([]Listener, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.listeners[id])
	}
	r.mu.RUnlock()

	for _, l := range snapshot {
		l.OnDataChanged()
	}
}

func checkLod(lod, maxLod uint) error {
	if lod > maxLod {
		return fmt.Errorf("datasource: lod %d above max lod %d: %w", lod, maxLod, types.ErrContract)
	}
	return nil
}

// cropTile returns region r of img. Images are immutable, so a region
// covering the whole image shares it.
func cropTile(img *types.Image, r image.Rectangle) (*types.Image, error) {
	if r == image.Rect(0, 0, img.Width, img.Height) {
		return img, nil
	}
	return img.Crop(r, types.RowOrderTopDown)
}
