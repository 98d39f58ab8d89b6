package detection

import (
	"fmt"
	"math"
)

// Letterbox computes the transform that fits a page of pageWidth×pageHeight
// points into a square canvas, preserving the aspect ratio, and returns the
// integer pixel size of the scaled page inside the canvas.
func Letterbox(pageWidth, pageHeight float64, canvasSize int) (PageTransform, int, int) {
	side := float64(canvasSize)
	scale := math.Min(side/pageWidth, side/pageHeight)

	// Truncate like a canvas would, tolerating float noise at exact fits.
	scaledW := int(math.Floor(pageWidth*scale + 1e-6))
	scaledH := int(math.Floor(pageHeight*scale + 1e-6))

	return PageTransform{
		OriginalWidth:  pageWidth,
		OriginalHeight: pageHeight,
		CanvasSize:     side,
		OffsetX:        float64(canvasSize-scaledW) / 2,
		OffsetY:        float64(canvasSize-scaledH) / 2,
	}, scaledW, scaledH
}

// Validate checks that the transform can be inverted
func (t PageTransform) Validate() error {
	if t.CanvasSize <= 0 {
		return fmt.Errorf("canvas size must be positive, got %v", t.CanvasSize)
	}
	if t.OriginalWidth <= 0 || t.OriginalHeight <= 0 {
		return fmt.Errorf("page size must be positive, got %vx%v", t.OriginalWidth, t.OriginalHeight)
	}
	if t.CanvasSize-2*t.OffsetX <= 0 || t.CanvasSize-2*t.OffsetY <= 0 {
		return fmt.Errorf("offsets %v,%v leave no content area in a %v canvas", t.OffsetX, t.OffsetY, t.CanvasSize)
	}
	return nil
}

// contentWidth is the canvas width occupied by the page after letterboxing.
func (t PageTransform) contentWidth() float64 {
	return t.CanvasSize - 2*t.OffsetX
}

func (t PageTransform) contentHeight() float64 {
	return t.CanvasSize - 2*t.OffsetY
}

// ToPDF maps a normalized canvas box into PDF user space. The letterbox
// offset is removed per axis and y is flipped against pageHeight because
// the canvas grows downwards while PDF space grows upwards.
func (t PageTransform) ToPDF(box Box, pageHeight float64) Rect {
	canvasX := box.X * t.CanvasSize
	canvasY := box.Y * t.CanvasSize
	canvasW := box.W * t.CanvasSize
	canvasH := box.H * t.CanvasSize

	pdfX := (canvasX - t.OffsetX) / t.contentWidth() * t.OriginalWidth
	pdfY := (canvasY - t.OffsetY) / t.contentHeight() * t.OriginalHeight
	pdfW := canvasW / t.contentWidth() * t.OriginalWidth
	pdfH := canvasH / t.contentHeight() * t.OriginalHeight

	return Rect{
		X:      pdfX,
		Y:      pageHeight - (pdfY + pdfH),
		Width:  pdfW,
		Height: pdfH,
	}
}

// FromPDF is the inverse of ToPDF.
func (t PageTransform) FromPDF(r Rect, pageHeight float64) Box {
	pdfY := pageHeight - r.Y - r.Height

	canvasX := r.X/t.OriginalWidth*t.contentWidth() + t.OffsetX
	canvasY := pdfY/t.OriginalHeight*t.contentHeight() + t.OffsetY
	canvasW := r.Width / t.OriginalWidth * t.contentWidth()
	canvasH := r.Height / t.OriginalHeight * t.contentHeight()

	return Box{
		X: canvasX / t.CanvasSize,
		Y: canvasY / t.CanvasSize,
		W: canvasW / t.CanvasSize,
		H: canvasH / t.CanvasSize,
	}
}

// Translate shifts the rectangle by dx, dy
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Corners returns lower-left and upper-right coordinates
func (r Rect) Corners() (llx, lly, urx, ury float64) {
	return r.X, r.Y, r.X + r.Width, r.Y + r.Height
}
