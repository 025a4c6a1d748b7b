package datasource

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"

	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/tile"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// PageRenderer rasterises document pages. Implementations wrap a PDF
// library; RenderPage must be safe for concurrent use.
type PageRenderer interface {
	PageCount() int
	// PageSize returns the full-resolution pixel size of a page.
	PageSize(page int) (image.Point, error)
	// RenderPage rasterises region (in pixels of the page scaled by scale)
	// of a page.
	RenderPage(page int, scale float64, region image.Rectangle) (*types.Image, error)
}

// ErrPageRange is returned by SetPage for a page outside the document.
var ErrPageRange = errors.New("datasource: page out of range")

// PDF serves the current page of a document as a tile pyramid rendered on
// demand. Changing page keeps the visible geometry but replaces every tile.
type PDF struct {
	Registry
	renderer PageRenderer
	tileSize int

	mu   sync.RWMutex
	page int
	lods tile.LodTiles
}

// NewPDF opens the document on its first page.
func NewPDF(renderer PageRenderer, tileSize int) (*PDF, error) {
	p := &PDF{renderer: renderer, tileSize: tileSize}
	if err := p.setPage(0); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PDF) setPage(page int) error {
	if page < 0 || page >= p.renderer.PageCount() {
		return fmt.Errorf("page %d of %d: %w", page, p.renderer.PageCount(), ErrPageRange)
	}
	size, err := p.renderer.PageSize(page)
	if err != nil {
		return fmt.Errorf("page %d size: %w", page, err)
	}
	lods := tile.NewLodTiles(size, p.tileSize)

	p.mu.Lock()
	p.page, p.lods = page, lods
	p.mu.Unlock()
	return nil
}

// SetPage switches to another page and notifies listeners.
func (p *PDF) SetPage(page int) error {
	if err := p.setPage(page); err != nil {
		return err
	}
	p.Notify()
	return nil
}

// Page returns the current page index.
func (p *PDF) Page() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.page
}

// PageCount returns the number of pages of the document.
func (p *PDF) PageCount() int { return p.renderer.PageCount() }

func (p *PDF) current() (int, tile.LodTiles) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.page, p.lods
}

// Lods returns the pyramid geometry of the current page.
func (p *PDF) Lods() tile.LodTiles {
	_, lods := p.current()
	return lods
}

// TileImage implements DataSource.
func (p *PDF) TileImage(id uint) (*types.Image, error) {
	page, lods := p.current()
	lod, err := lods.TileLod(id)
	if err != nil {
		return nil, err
	}
	r, _ := lods.TileRect(id)
	img, err := p.renderer.RenderPage(page, 1/float64(uint(1)<<lod), r)
	if err != nil {
		return nil, fmt.Errorf("page %d tile %d: %v: %w", page, id, err, types.ErrDecode)
	}
	return img, nil
}

// TileRect implements DataSource.
func (p *PDF) TileRect(id uint) (image.Rectangle, error) {
	_, lods := p.current()
	return lods.TileRect(id)
}

// TileFormat implements DataSource.
func (p *PDF) TileFormat(id uint) (types.Format, error) {
	_, lods := p.current()
	if _, err := lods.TileLod(id); err != nil {
		return 0, err
	}
	return types.FormatRGBA, nil
}

// TilesArea implements DataSource.
func (p *PDF) TilesArea(lod, _ uint) (image.Point, error) {
	_, lods := p.current()
	if err := checkLod(lod, lods.MaxLod()); err != nil {
		return image.Point{}, err
	}
	return lods.TilesArea(lod), nil
}

// ComputeVisibleSet implements DataSource.
func (p *PDF) ComputeVisibleSet(area geometry.Rect, lod, _ uint) (tile.Indices, error) {
	_, lods := p.current()
	return lods.ComputeVisibleSet(area, lod)
}

// MaxLod implements DataSource.
func (p *PDF) MaxLod() uint {
	_, lods := p.current()
	return lods.MaxLod()
}

// IsDynamic implements DataSource.
func (p *PDF) IsDynamic() bool { return false }

// ImagePages is a PageRenderer over pre-rasterised page images, such as a
// directory of exported pages.
type ImagePages struct {
	pages []image.Image
}

// NewImagePages wraps page images, in order.
func NewImagePages(pages ...image.Image) *ImagePages {
	return &ImagePages{pages: pages}
}

// PageCount implements PageRenderer.
func (ip *ImagePages) PageCount() int { return len(ip.pages) }

// PageSize implements PageRenderer.
func (ip *ImagePages) PageSize(page int) (image.Point, error) {
	if page < 0 || page >= len(ip.pages) {
		return image.Point{}, ErrPageRange
	}
	return ip.pages[page].Bounds().Size(), nil
}

// RenderPage implements PageRenderer.
func (ip *ImagePages) RenderPage(page int, scale float64, region image.Rectangle) (*types.Image, error) {
	if page < 0 || page >= len(ip.pages) {
		return nil, ErrPageRange
	}
	src := ip.pages[page]
	b := src.Bounds()

	// region in unscaled page pixels
	sr := image.Rect(
		int(math.Floor(float64(region.Min.X)/scale)), int(math.Floor(float64(region.Min.Y)/scale)),
		int(math.Ceil(float64(region.Max.X)/scale)), int(math.Ceil(float64(region.Max.Y)/scale)),
	).Add(b.Min).Intersect(b)

	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sr, xdraw.Src, nil)
	return types.FromImage(dst), nil
}
