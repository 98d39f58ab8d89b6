package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Label bar colors per field type
var labelColors = map[detection.FieldType]color.RGBA{
	detection.FieldTypeTextBox:      hexColor("#3B82F6", 0xFF),
	detection.FieldTypeChoiceButton: hexColor("#10B981", 0xFF),
	detection.FieldTypeSignature:    hexColor("#F59E0B", 0xFF),
}

var (
	boxFill       = color.NRGBA(hexColor("#A4DCF8", 0x91))
	fallbackLabel = hexColor("#6B7280", 0xFF)
)

// hexColor parses a #RRGGBB literal. It panics on malformed input, so it is
// only used for package-level constants.
func hexColor(hex string, alpha uint8) color.RGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		panic(fmt.Sprintf("invalid color %q: %v", hex, err))
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}
}

const (
	labelBarHeight = 13
	labelPadding   = 3
)

// RenderPreview draws the detections over a copy of the frame and encodes
// the result as PNG. The frame is left untouched.
func RenderPreview(frame *raster.Frame, fields []detection.Detection) ([]byte, error) {
	bounds := frame.Image.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, frame.Image, bounds.Min, draw.Src)

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	for _, f := range fields {
		box := image.Rect(
			int(f.BBox.X*w), int(f.BBox.Y*h),
			int((f.BBox.X+f.BBox.W)*w), int((f.BBox.Y+f.BBox.H)*h),
		)
		draw.Draw(img, box, image.NewUniform(boxFill), image.Point{}, draw.Over)

		label, ok := labelColors[f.Type]
		if !ok {
			label = fallbackLabel
		}
		bar := image.Rect(box.Min.X, box.Min.Y-labelBarHeight, box.Max.X, box.Min.Y)
		draw.Draw(img, bar, image.NewUniform(label), image.Point{}, draw.Src)

		drawer := font.Drawer{
			Dst:  img,
			Src:  image.White,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(box.Min.X+labelPadding, box.Min.Y-labelPadding),
		}
		drawer.DrawString(fmt.Sprintf("%s (%.0f%%)", f.Type, f.Confidence*100))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
