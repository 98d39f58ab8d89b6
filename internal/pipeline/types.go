package pipeline

import (
	"fmt"
	"strings"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/acroform"
)

// Options configures a detection run
type Options struct {
	ModelPath           string  `json:"model_path"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	StripExisting       bool    `json:"strip_existing"`

	// Previews renders a PNG of every page with the detections drawn on it
	Previews bool `json:"previews"`
}

// Progress is reported before each stage of a run
type Progress struct {
	Page      int    `json:"page,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
	Message   string `json:"message"`
}

// ProgressFunc receives progress updates. It is called from the goroutine
// running the pages and must not block for long.
type ProgressFunc func(Progress)

// PageResult holds the detections of one page
type PageResult struct {
	Page             int                     `json:"page"`
	Detections       []detection.Detection   `json:"detections"`
	Transform        detection.PageTransform `json:"transform"`
	Preview          []byte                  `json:"-"`
	ProcessingTimeMs float64                 `json:"processing_time_ms"`
}

// DetectionReport aggregates the results of a whole document
type DetectionReport struct {
	Pages                 []PageResult `json:"pages"`
	PageCount             int          `json:"page_count"`
	TotalProcessingTimeMs float64      `json:"total_processing_time_ms"`
	ModelIdentifier       string       `json:"model_identifier"`
	ModelInfo             string       `json:"model_info"`
	ConfidenceThreshold   float64      `json:"confidence_threshold"`
}

// FieldCount returns the number of detections across all pages
func (r *DetectionReport) FieldCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Detections)
	}
	return n
}

// CountByType returns the number of detections per field type
func (r *DetectionReport) CountByType() map[detection.FieldType]int {
	counts := make(map[detection.FieldType]int)
	for _, p := range r.Pages {
		for _, d := range p.Detections {
			counts[d.Type]++
		}
	}
	return counts
}

// PageDetections converts the report into synthesis input
func (r *DetectionReport) PageDetections() []acroform.PageDetections {
	out := make([]acroform.PageDetections, 0, len(r.Pages))
	for _, p := range r.Pages {
		out = append(out, acroform.PageDetections{
			Page:       p.Page,
			Transform:  p.Transform,
			Detections: p.Detections,
		})
	}
	return out
}

// Result is the outcome of a full detect and apply run
type Result struct {
	Report *DetectionReport            `json:"report"`
	Fields []acroform.SynthesizedField `json:"fields"`
	PDF    []byte                      `json:"-"`
}

// ModelIdentifier derives a display name from a model path
func ModelIdentifier(modelPath string) string {
	switch {
	case strings.Contains(modelPath, "FFDNet-L"):
		return "FFDNet-L"
	case strings.Contains(modelPath, "FFDNet-S"):
		return "FFDNet-S"
	default:
		return "model"
	}
}

func modelInfo(identifier string, fields int, threshold float64) string {
	return fmt.Sprintf("Model: %s\nDetected Fields: %d\nConfidence Threshold: %v", identifier, fields, threshold)
}
