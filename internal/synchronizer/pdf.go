package synchronizer

import (
	"fmt"
	"sync/atomic"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
)

// PDF synchronizes the current page of a document. A page change keeps the
// geometry but replaces every tile.
type PDF struct {
	*LOD
	pdf         *datasource.PDF
	pageChanged atomic.Bool
}

// NewPDF creates a synchronizer following the document's page changes.
// Call Close to detach it.
func NewPDF(source *datasource.PDF, renderer Renderer) *PDF {
	p := &PDF{LOD: NewLOD(source, renderer), pdf: source}
	p.listen(func() { p.pageChanged.Store(true) })
	return p
}

// Update implements Synchronizer.
func (p *PDF) Update(window geometry.ZoomHelper, visibleArea geometry.Rect) error {
	force := p.pageChanged.Swap(false)
	if err := p.update(window, visibleArea, force); err != nil {
		if force {
			p.pageChanged.Store(true)
		}
		return err
	}
	return nil
}

// Statistics implements Synchronizer.
func (p *PDF) Statistics() string {
	return fmt.Sprintf("page %d/%d %s", p.pdf.Page()+1, p.pdf.PageCount(), p.LOD.Statistics())
}
