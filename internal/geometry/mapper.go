// Package geometry maps stored region boxes onto a zoomed page rendering.
//
// Pages are axis-aligned raster renders at a single uniform zoom, so the
// transform is a plain scale with no offset, rotation or per-axis factor.
package geometry

import "docsearch/internal/domain"

const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	DefaultZoom = 1.0
	ZoomStep    = 0.25
)

// Rect is a box in rendered (on-screen) coordinates.
type Rect struct {
	Left, Top, Width, Height float64
}

// Map scales a page-space box by zoom.
func Map(box domain.BoundingBox, zoom float64) Rect {
	return Rect{
		Left:   box.X0 * zoom,
		Top:    box.Y0 * zoom,
		Width:  (box.X1 - box.X0) * zoom,
		Height: (box.Y1 - box.Y0) * zoom,
	}
}

// Viewport is the rendering state of the displayed page. A zero page size
// means the page has not finished loading.
type Viewport struct {
	PageWidth  float64
	PageHeight float64
	Zoom       float64
}

// NewViewport returns a viewport at the default zoom with unknown page size.
func NewViewport() Viewport { return Viewport{Zoom: DefaultZoom} }

// Ready reports whether the original page dimensions are known.
func (v Viewport) Ready() bool { return v.PageWidth > 0 && v.PageHeight > 0 }

// WithZoom returns a copy with zoom clamped to [MinZoom, MaxZoom].
func (v Viewport) WithZoom(z float64) Viewport {
	v.Zoom = ClampZoom(z)
	return v
}

// ZoomIn steps the zoom up by ZoomStep.
func (v Viewport) ZoomIn() Viewport { return v.WithZoom(v.effectiveZoom() + ZoomStep) }

// ZoomOut steps the zoom down by ZoomStep.
func (v Viewport) ZoomOut() Viewport { return v.WithZoom(v.effectiveZoom() - ZoomStep) }

// RenderedSize is the on-screen size of the whole page.
func (v Viewport) RenderedSize() (w, h float64) {
	z := v.effectiveZoom()
	return v.PageWidth * z, v.PageHeight * z
}

func (v Viewport) effectiveZoom() float64 {
	if v.Zoom == 0 {
		return DefaultZoom
	}
	return v.Zoom
}

// ClampZoom bounds z to the supported zoom range.
func ClampZoom(z float64) float64 {
	switch {
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	}
	return z
}

// OverlayBox is a region positioned for the overlay layer.
type OverlayBox struct {
	Region domain.Region
	Rect   Rect
}

// Overlay positions every region for the viewport. It returns nil while the
// page size is unknown so callers render nothing.
func Overlay(regions []domain.Region, v Viewport) []OverlayBox {
	if !v.Ready() || len(regions) == 0 {
		return nil
	}
	z := v.effectiveZoom()
	out := make([]OverlayBox, 0, len(regions))
	for _, r := range regions {
		out = append(out, OverlayBox{Region: r, Rect: Map(r.Box, z)})
	}
	return out
}
