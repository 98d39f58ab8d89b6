package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os/exec"
	"testing"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solidRenderer returns a uniformly colored image, optionally at a fixed size
type solidRenderer struct {
	fill        color.RGBA
	fixedWidth  int
	fixedHeight int
	err         error
	calls       int
}

func (s *solidRenderer) RenderPage(_ context.Context, _ string, _ int, width, height int) (image.Image, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.fixedWidth > 0 {
		width, height = s.fixedWidth, s.fixedHeight
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = s.fill.R, s.fill.G, s.fill.B, s.fill.A
	}
	return img, nil
}

var black = color.RGBA{A: 255}

func TestRasterizer_LetterboxLandscape(t *testing.T) {
	rasterizer := NewRasterizer(&solidRenderer{fill: black}, nil)

	frame, err := rasterizer.Rasterize(context.Background(), &Source{}, 1, detection.Rect{Width: 842, Height: 595})
	require.NoError(t, err)

	assert.Equal(t, detection.TargetSize, frame.Size())
	assert.Equal(t, 1, frame.Page)
	assert.InDelta(t, 178.5, frame.Transform.OffsetY, 1e-9)

	// Top margin white, first content row black.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, frame.Image.RGBAAt(600, 0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, frame.Image.RGBAAt(600, 177))
	assert.Equal(t, black, frame.Image.RGBAAt(600, 178))
	assert.Equal(t, black, frame.Image.RGBAAt(600, 178+858))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, frame.Image.RGBAAt(600, 178+859))
}

func TestRasterizer_LetterboxPortrait(t *testing.T) {
	rasterizer := NewRasterizer(&solidRenderer{fill: black}, nil)

	frame, err := rasterizer.Rasterize(context.Background(), &Source{}, 3, detection.Rect{Width: 612, Height: 792})
	require.NoError(t, err)

	assert.InDelta(t, 0, frame.Transform.OffsetY, 1e-9)
	left := int(frame.Transform.OffsetX)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, frame.Image.RGBAAt(left-1, 600))
	assert.Equal(t, black, frame.Image.RGBAAt(left+1, 600))
}

func TestRasterizer_RescalesMismatchedRender(t *testing.T) {
	renderer := &solidRenderer{fill: black, fixedWidth: 100, fixedHeight: 100}
	rasterizer := NewRasterizer(renderer, nil)

	frame, err := rasterizer.Rasterize(context.Background(), &Source{}, 1, detection.Rect{Width: 500, Height: 500})
	require.NoError(t, err)

	for _, pt := range []image.Point{{608, 608}, {5, 1210}} {
		c := frame.Image.RGBAAt(pt.X, pt.Y)
		assert.Less(t, c.R, uint8(8), "pixel %v", pt)
	}
}

func TestRasterizer_Errors(t *testing.T) {
	t.Run("render failure", func(t *testing.T) {
		rasterizer := NewRasterizer(&solidRenderer{err: fmt.Errorf("boom")}, nil)
		_, err := rasterizer.Rasterize(context.Background(), &Source{}, 2, detection.Rect{Width: 612, Height: 792})
		require.Error(t, err)
		assert.Equal(t, errors.CodeCanvasRenderFailed, errors.CodeOf(err))
	})

	t.Run("degenerate page", func(t *testing.T) {
		renderer := &solidRenderer{fill: black}
		rasterizer := NewRasterizer(renderer, nil)
		_, err := rasterizer.Rasterize(context.Background(), &Source{}, 1, detection.Rect{Width: 0, Height: 792})
		assert.Equal(t, errors.CodeCanvasRenderFailed, errors.CodeOf(err))
		assert.Zero(t, renderer.calls)
	})
}

func TestEncodeTensor_PlanarLayout(t *testing.T) {
	// 2x1 image: red pixel then white pixel
	pix := []uint8{255, 0, 0, 255, 255, 255, 255, 0}

	out, err := EncodeTensor(pix, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 0, 1, 0, 1}, out)
}

func TestEncodeTensor_Range(t *testing.T) {
	pix := make([]uint8, 4*4*4)
	for i := range pix {
		pix[i] = uint8(i * 7)
	}

	out, err := EncodeTensor(pix, 4, 4)
	require.NoError(t, err)
	require.Len(t, out, 3*16)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	assert.InDelta(t, float32(pix[4])/255, out[1], 1e-7)
}

func TestEncodeTensor_InvalidInput(t *testing.T) {
	tests := []struct {
		name          string
		pix           []uint8
		width, height int
	}{
		{name: "short buffer", pix: make([]uint8, 15), width: 2, height: 2},
		{name: "zero width", pix: nil, width: 0, height: 2},
		{name: "negative height", pix: nil, width: 2, height: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeTensor(tt.pix, tt.width, tt.height)
			assert.Error(t, err)
		})
	}
}

func TestNewTensor_Shape(t *testing.T) {
	frame, err := NewRasterizer(&solidRenderer{fill: black}, nil).
		Rasterize(context.Background(), &Source{}, 1, detection.Rect{Width: 612, Height: 792})
	require.NoError(t, err)

	tensor, err := NewTensor(frame.Pixels(), frame.Size(), frame.Size())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, detection.TargetSize, detection.TargetSize}, tensor.Shape)
	assert.Len(t, tensor.Data, 3*detection.TargetSize*detection.TargetSize)

	// Canvas corner is white margin
	assert.Equal(t, float32(1), tensor.Data[0])
}

func TestSource_Lifecycle(t *testing.T) {
	src, err := NewSource([]byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.FileExists(t, src.Path)

	require.NoError(t, src.Close())
	assert.NoFileExists(t, src.Path)
}

func TestPdftoppmRenderer_RenderPage(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}

	src, err := NewSource(testutil.FlatFormPDF(t))
	require.NoError(t, err)
	defer src.Close()

	renderer := NewPdftoppmRenderer("", 30*time.Second, nil)
	img, err := renderer.RenderPage(context.Background(), src.Path, 1, 939, 1216)
	require.NoError(t, err)
	assert.Equal(t, 939, img.Bounds().Dx())
	assert.Equal(t, 1216, img.Bounds().Dy())
}

func TestPdftoppmRenderer_MissingBinary(t *testing.T) {
	renderer := NewPdftoppmRenderer("definitely-not-pdftoppm", time.Second, nil)
	_, err := renderer.RenderPage(context.Background(), "/nonexistent.pdf", 1, 10, 10)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCanvasRenderFailed, errors.CodeOf(err))
}
