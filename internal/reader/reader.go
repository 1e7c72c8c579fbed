// Package reader is the document reading surface: the displayed page, its
// detected regions, the region selection and the reader chat panel.
package reader

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"docsearch/internal/conversation"
	"docsearch/internal/domain"
	"docsearch/internal/geometry"
	"docsearch/internal/selection"
)

// Reader binds a conversation to the active document and a selection. The
// region cache belongs to the reader alone and is replaced on every page
// change.
type Reader struct {
	docs domain.DocumentBackend
	conv *conversation.Conversation
	sel  *selection.Context
	log  *zap.Logger

	mu       sync.Mutex
	doc      domain.Document
	open     bool
	page     int
	pageID   int
	seq      uint64
	regions  []domain.Region
	loading  bool
	viewport geometry.Viewport
}

// New returns a reader with no document open.
func New(docs domain.DocumentBackend, conv *conversation.Conversation, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{
		docs:     docs,
		conv:     conv,
		sel:      selection.New(),
		log:      log.With(zap.String("module", "reader")),
		viewport: geometry.NewViewport(),
	}
}

// OpenDocument loads the document detail and shows its first page. Opening a
// different document starts a fresh reader conversation.
func (r *Reader) OpenDocument(ctx context.Context, documentID int) error {
	doc, err := r.docs.Document(ctx, documentID)
	if err != nil {
		return fmt.Errorf("open document %d: %w", documentID, err)
	}
	r.mu.Lock()
	switched := r.open && r.doc.ID != doc.ID
	r.doc, r.open = doc, true
	r.mu.Unlock()
	if switched {
		r.sel.Clear()
		r.conv.Reset()
	}
	first := 1
	if len(doc.Pages) > 0 {
		first = doc.Pages[0].Num
	}
	return r.GoToPage(ctx, first)
}

// GoToPage displays page and refetches its regions. The region cache and any
// selection from another page are cleared immediately; once the fetch lands,
// a selection it no longer contains is cleared too. Only the fetch issued by the latest
// page change is applied; a failed fetch leaves the page without regions.
func (r *Reader) GoToPage(ctx context.Context, page int) error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return domain.ErrNoDocument
	}
	if n := r.doc.TotalPages; n > 0 && (page < 1 || page > n) {
		r.mu.Unlock()
		return fmt.Errorf("page %d out of range 1..%d", page, n)
	}
	r.seq++
	seq := r.seq
	docID := r.doc.ID
	r.page = page
	r.pageID = r.doc.PageID(page)
	r.regions = nil
	r.loading = true
	r.viewport.PageWidth, r.viewport.PageHeight = 0, 0
	r.sel.InvalidatePage(r.pageID)
	r.mu.Unlock()

	regions, err := r.docs.PageRegions(ctx, docID, page)
	if err != nil {
		// Overlays are an enhancement; the page is shown without them.
		r.log.Info("regions unavailable", zap.Int("document_id", docID), zap.Int("page", page),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrRegionFetch, err)))
		regions = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq {
		r.log.Debug("dropping stale regions", zap.Int("page", page), zap.Uint64("seq", seq), zap.Uint64("latest", r.seq))
		return nil
	}
	r.regions = regions
	r.loading = false
	r.sel.Retain(regions)
	if r.pageID == 0 && len(regions) > 0 {
		r.pageID = regions[0].PageID
	}
	return nil
}

// NextPage moves forward one page.
func (r *Reader) NextPage(ctx context.Context) error { return r.GoToPage(ctx, r.Page()+1) }

// PrevPage moves back one page.
func (r *Reader) PrevPage(ctx context.Context) error { return r.GoToPage(ctx, r.Page()-1) }

// SetPageSize records the original pixel size of the rendered page once the
// renderer knows it.
func (r *Reader) SetPageSize(width, height float64) {
	r.mu.Lock()
	r.viewport.PageWidth, r.viewport.PageHeight = width, height
	r.mu.Unlock()
}

// ZoomIn enlarges the page one step.
func (r *Reader) ZoomIn() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = r.viewport.ZoomIn()
	return r.viewport.Zoom
}

// ZoomOut shrinks the page one step.
func (r *Reader) ZoomOut() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = r.viewport.ZoomOut()
	return r.viewport.Zoom
}

// SetZoom sets an absolute zoom, clamped to the supported range.
func (r *Reader) SetZoom(z float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = r.viewport.WithZoom(z)
	return r.viewport.Zoom
}

// Overlay positions the current page's regions for the current viewport.
func (r *Reader) Overlay() []geometry.OverlayBox {
	r.mu.Lock()
	defer r.mu.Unlock()
	return geometry.Overlay(r.regions, r.viewport)
}

// SelectRegion toggles the region with the given id on the displayed page.
func (r *Reader) SelectRegion(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regions {
		if reg.ID == id {
			return r.sel.Select(reg), nil
		}
	}
	return false, fmt.Errorf("region %d is not on the displayed page", id)
}

// Selected returns the selected region, if any.
func (r *Reader) Selected() (domain.Region, bool) { return r.sel.Current() }

// Send posts text to the reader conversation with the current selection
// attached. The selection is consumed whether or not the send succeeds.
func (r *Reader) Send(ctx context.Context, text string) error {
	return r.conv.Send(ctx, text, r.sel.Take())
}

// Documents lists the indexed documents that can be opened.
func (r *Reader) Documents(ctx context.Context) ([]domain.Document, error) {
	docs, err := r.docs.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Conversation returns the reader's chat.
func (r *Reader) Conversation() *conversation.Conversation { return r.conv }

// State is a consistent copy of what the reader displays.
type State struct {
	Document domain.Document
	Open     bool
	Page     int
	PageID   int
	Loading  bool
	Regions  []domain.Region
	Viewport geometry.Viewport
}

// Snapshot returns the displayed state.
func (r *Reader) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Document: r.doc,
		Open:     r.open,
		Page:     r.page,
		PageID:   r.pageID,
		Loading:  r.loading,
		Regions:  r.regions,
		Viewport: r.viewport,
	}
}

// Page returns the displayed page number.
func (r *Reader) Page() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page
}
