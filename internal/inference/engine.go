// Package inference runs the form-field detector. Sessions are created by an
// Engine, cached per model path and driven by a single worker goroutine.
package inference

import (
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
)

// Model tensor names
const (
	InputName  = "images"
	OutputName = "output0"
)

// Output is the raw detector output, shaped [1, 4+numClasses, numAnchors]
type Output struct {
	Data  []float32
	Shape []int64
}

// Engine loads models into runnable sessions
type Engine interface {
	NewSession(modelPath string) (Session, error)
}

// Session runs one model. Implementations need not be safe for concurrent use.
type Session interface {
	Run(input raster.Tensor) (Output, error)
	Close() error
}
