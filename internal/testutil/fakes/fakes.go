// Package fakes provides in-memory stand-ins for the detection model and the
// page renderer.
package fakes

import (
	"context"
	"image"
	"sync"

	"github.com/a3tai/mcp-pdf-forms/internal/inference"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
)

// Anchor is one detector output column in canvas pixels
type Anchor struct {
	CX, CY, W, H float32
	Class        int
	Score        float32
}

// LetterFields fall inside the content area of a letter page, one per field type
var LetterFields = []Anchor{
	{CX: 608, CY: 900, W: 300, H: 30, Class: 2, Score: 0.85},
	{CX: 608, CY: 200, W: 400, H: 30, Class: 0, Score: 0.9},
	{CX: 300, CY: 500, W: 20, H: 20, Class: 1, Score: 0.8},
}

// RawOutput lays anchors out as a [1, 7, N] model output
func RawOutput(anchors []Anchor) inference.Output {
	n := len(anchors)
	data := make([]float32, 7*n)
	for i, a := range anchors {
		data[i] = a.CX
		data[n+i] = a.CY
		data[2*n+i] = a.W
		data[3*n+i] = a.H
		for c := 0; c < 3; c++ {
			data[(4+c)*n+i] = 0.01
		}
		data[(4+a.Class)*n+i] = a.Score
	}
	return inference.Output{Data: data, Shape: []int64{1, 7, int64(n)}}
}

// Engine returns sessions that answer every run with Output
type Engine struct {
	Output  inference.Output
	LoadErr error
	RunErr  error

	mu      sync.Mutex
	created int
}

// NewEngine returns an engine that detects anchors on every page
func NewEngine(anchors []Anchor) *Engine {
	return &Engine{Output: RawOutput(anchors)}
}

// NewSession implements inference.Engine
func (e *Engine) NewSession(string) (inference.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	e.created++
	return &session{output: e.Output, err: e.RunErr}, nil
}

// Sessions returns the number of sessions created so far
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created
}

type session struct {
	output inference.Output
	err    error
}

func (s *session) Run(raster.Tensor) (inference.Output, error) {
	return s.output, s.err
}

func (s *session) Close() error { return nil }

// Renderer renders every page as a white image of the requested size
type Renderer struct {
	Err error
}

// RenderPage implements raster.Renderer
func (r Renderer) RenderPage(_ context.Context, _ string, _ int, width, height int) (image.Image, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img, nil
}
