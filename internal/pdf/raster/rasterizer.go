// Package raster turns PDF pages into the fixed-size letterboxed frames and
// input tensors the detection model consumes.
package raster

import (
	"context"
	"image"
	"math"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// Frame is a page rendered into a square canvas. It is not modified after
// Rasterize returns it.
type Frame struct {
	Image     *image.RGBA
	Transform detection.PageTransform
	Page      int
}

// Size returns the canvas side length in pixels
func (f *Frame) Size() int {
	return f.Image.Bounds().Dx()
}

// Rasterizer letterboxes pages onto a white square canvas
type Rasterizer struct {
	renderer Renderer
	size     int
	logger   logrus.FieldLogger
}

// NewRasterizer creates a rasterizer producing canvases of detection.TargetSize
func NewRasterizer(renderer Renderer, logger logrus.FieldLogger) *Rasterizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Rasterizer{renderer: renderer, size: detection.TargetSize, logger: logger}
}

// Rasterize renders a 1-based page whose MediaBox is box. The page keeps its
// aspect ratio and is centered; the margins stay white.
func (r *Rasterizer) Rasterize(ctx context.Context, src *Source, page int, box detection.Rect) (*Frame, error) {
	if box.Width <= 0 || box.Height <= 0 {
		return nil, errors.Newf(errors.CodeCanvasRenderFailed,
			"page has degenerate size %vx%v", box.Width, box.Height).WithPage(page)
	}

	transform, scaledW, scaledH := detection.Letterbox(box.Width, box.Height, r.size)
	if scaledW <= 0 || scaledH <= 0 {
		return nil, errors.Newf(errors.CodeCanvasRenderFailed,
			"page %vx%v scales to an empty image", box.Width, box.Height).WithPage(page)
	}

	rendered, err := r.renderer.RenderPage(ctx, src.Path, page, scaledW, scaledH)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed, "failed to render page", err).WithPage(page)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, r.size, r.size))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	x0 := int(math.Floor(transform.OffsetX))
	y0 := int(math.Floor(transform.OffsetY))
	target := image.Rect(x0, y0, x0+scaledW, y0+scaledH)

	bounds := rendered.Bounds()
	if bounds.Dx() == scaledW && bounds.Dy() == scaledH {
		draw.Draw(canvas, target, rendered, bounds.Min, draw.Over)
	} else {
		r.logger.WithFields(logrus.Fields{
			"page":     page,
			"rendered": bounds.Size().String(),
			"expected": target.Size().String(),
		}).Debug("rescaling rendered page")
		draw.CatmullRom.Scale(canvas, target, rendered, bounds, draw.Over, nil)
	}

	return &Frame{Image: canvas, Transform: transform, Page: page}, nil
}
