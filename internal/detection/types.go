// Package detection turns raw detector output into ordered form-field
// detections and maps them between canvas space and PDF user space.
package detection

import (
	"fmt"
	"strings"
)

// FieldType is the class of a detected form region
type FieldType string

const (
	FieldTypeTextBox      FieldType = "TextBox"
	FieldTypeChoiceButton FieldType = "ChoiceButton"
	FieldTypeSignature    FieldType = "Signature"
)

// ClassNames lists field types in model output index order.
var ClassNames = []FieldType{
	FieldTypeTextBox,
	FieldTypeChoiceButton,
	FieldTypeSignature,
}

const (
	// TargetSize is the side of the square model input canvas.
	TargetSize = 1216

	// IoUThreshold is the overlap above which same-class candidates are duplicates.
	IoUThreshold = 0.45

	// RowEpsilon is the normalized vertical distance treated as the same row.
	RowEpsilon = 0.01

	// HeightFactor scales the box height when anchoring it to its bottom edge.
	HeightFactor = 1.0

	DefaultConfidenceThreshold = 0.4
	MinConfidenceThreshold     = 0.1
	MaxConfidenceThreshold     = 1.0
)

// ValidateThreshold checks a confidence threshold against the accepted range
func ValidateThreshold(threshold float64) error {
	if threshold < MinConfidenceThreshold || threshold > MaxConfidenceThreshold {
		return fmt.Errorf("confidence threshold %v outside [%v, %v]",
			threshold, MinConfidenceThreshold, MaxConfidenceThreshold)
	}
	return nil
}

// NumClasses returns the number of field classes the model predicts
func NumClasses() int {
	return len(ClassNames)
}

// FieldTypeForClass returns the field type for a model class index
func FieldTypeForClass(classID int) (FieldType, bool) {
	if classID < 0 || classID >= len(ClassNames) {
		return "", false
	}
	return ClassNames[classID], true
}

// IsSupported reports whether t is one of the known field types
func (t FieldType) IsSupported() bool {
	for _, name := range ClassNames {
		if name == t {
			return true
		}
	}
	return false
}

// Lower returns the lowercase form used in field names
func (t FieldType) Lower() string {
	return strings.ToLower(string(t))
}

// CenterBox is a box in center format, normalized to the canvas side.
type CenterBox struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// Corners returns the top-left and bottom-right corners
func (b CenterBox) Corners() (x0, y0, x1, y1 float64) {
	return b.CX - b.W/2, b.CY - b.H/2, b.CX + b.W/2, b.CY + b.H/2
}

// Area returns the box area
func (b CenterBox) Area() float64 {
	return b.W * b.H
}

// Box is a box in corner format (top-left x, top-left y, width, height),
// normalized to the canvas side with y growing downwards.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Candidate is a thresholded anchor prediction awaiting suppression.
type Candidate struct {
	Box        CenterBox `json:"box"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
}

// Detection is an accepted, typed field region.
type Detection struct {
	Type       FieldType `json:"type"`
	BBox       Box       `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// Rect is a rectangle in PDF user space with a bottom-left origin.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageTransform records how a page was letterboxed into the canvas.
type PageTransform struct {
	OriginalWidth  float64 `json:"original_width"`
	OriginalHeight float64 `json:"original_height"`
	CanvasSize     float64 `json:"canvas_size"`
	OffsetX        float64 `json:"offset_x"`
	OffsetY        float64 `json:"offset_y"`
}
