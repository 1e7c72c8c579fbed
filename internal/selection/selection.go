package selection

import (
	"sync"

	"docsearch/internal/domain"
)

// Context holds at most one selected region for a reading surface. The
// selection is a one-shot attachment: Take hands it to the next message and
// clears it.
type Context struct {
	mu       sync.Mutex
	region   domain.Region
	selected bool
}

// New returns an empty selection.
func New() *Context { return &Context{} }

// Select toggles r. Selecting the current region clears the selection,
// selecting any other region replaces it. It reports whether a region is
// selected afterwards.
func (c *Context) Select(r domain.Region) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected && sameRegion(c.region, r) {
		c.region, c.selected = domain.Region{}, false
		return false
	}
	c.region, c.selected = r, true
	return true
}

// Current returns the selected region, if any.
func (c *Context) Current() (domain.Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region, c.selected
}

// Annotation returns the typed annotation for the selection, or nil.
func (c *Context) Annotation() *domain.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.annotationLocked()
}

// Take returns the annotation and clears the selection unconditionally.
func (c *Context) Take() *domain.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.annotationLocked()
	c.region, c.selected = domain.Region{}, false
	return a
}

// Clear drops the selection.
func (c *Context) Clear() {
	c.mu.Lock()
	c.region, c.selected = domain.Region{}, false
	c.mu.Unlock()
}

// InvalidatePage clears the selection unless it belongs to pageID.
func (c *Context) InvalidatePage(pageID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected && c.region.PageID != pageID {
		c.region, c.selected = domain.Region{}, false
	}
}

// Retain clears the selection unless regions still contains it.
func (c *Context) Retain(regions []domain.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected {
		return
	}
	for _, r := range regions {
		if sameRegion(r, c.region) {
			return
		}
	}
	c.region, c.selected = domain.Region{}, false
}

func (c *Context) annotationLocked() *domain.Annotation {
	if !c.selected {
		return nil
	}
	return &domain.Annotation{
		RegionID: c.region.ID,
		Label:    c.region.Label,
		Box:      c.region.Box,
	}
}

func sameRegion(a, b domain.Region) bool {
	return a.ID == b.ID && a.PageID == b.PageID
}
