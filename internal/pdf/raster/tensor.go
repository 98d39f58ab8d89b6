package raster

import (
	"fmt"

	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
)

// Tensor is a dense float32 buffer with its shape
type Tensor struct {
	Data  []float32
	Shape []int64
}

// EncodeTensor converts interleaved RGBA bytes into planar RGB floats in
// [0,1]: all red values, then all green, then all blue. Alpha is dropped.
func EncodeTensor(pix []uint8, width, height int) ([]float32, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	plane := width * height
	if len(pix) != plane*4 {
		return nil, fmt.Errorf("pixel buffer has %d bytes, want %d for %dx%d RGBA", len(pix), plane*4, width, height)
	}

	out := make([]float32, plane*3)
	for i := 0; i < plane; i++ {
		p := pix[i*4 : i*4+3 : i*4+3]
		out[i] = float32(p[0]) / 255
		out[plane+i] = float32(p[1]) / 255
		out[2*plane+i] = float32(p[2]) / 255
	}
	return out, nil
}

// NewTensor encodes RGBA pixels as a [1,3,height,width] model input
func NewTensor(pix []uint8, width, height int) (Tensor, error) {
	data, err := EncodeTensor(pix, width, height)
	if err != nil {
		return Tensor{}, errors.Wrap(errors.CodeInferenceFailed, "failed to encode input tensor", err)
	}
	return Tensor{
		Data:  data,
		Shape: []int64{1, 3, int64(height), int64(width)},
	}, nil
}

// Pixels returns the frame's RGBA bytes without row padding
func (f *Frame) Pixels() []uint8 {
	b := f.Image.Bounds()
	w, h := b.Dx(), b.Dy()
	if f.Image.Stride == w*4 && len(f.Image.Pix) == w*h*4 {
		return f.Image.Pix
	}

	out := make([]uint8, 0, w*h*4)
	for y := 0; y < h; y++ {
		row := f.Image.PixOffset(b.Min.X, b.Min.Y+y)
		out = append(out, f.Image.Pix[row:row+w*4]...)
	}
	return out
}
