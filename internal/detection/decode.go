package detection

import "fmt"

// Decode walks a raw output tensor of shape [1, 4+numClasses, numAnchors]
// and keeps every anchor whose best class score is strictly greater than
// threshold. Boxes are normalized by canvasSize and stay in center format.
func Decode(data []float32, shape []int64, numClasses int, canvasSize float64, threshold float64) ([]Candidate, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected output rank %d (want 3)", len(shape))
	}
	if numClasses <= 0 {
		return nil, fmt.Errorf("number of classes must be positive")
	}
	if canvasSize <= 0 {
		return nil, fmt.Errorf("canvas size must be positive")
	}

	rows := int(shape[1])
	anchors := int(shape[2])
	if rows < 4+numClasses {
		return nil, fmt.Errorf("output has %d rows, need at least %d", rows, 4+numClasses)
	}
	if anchors < 0 || len(data) < rows*anchors {
		return nil, fmt.Errorf("output holds %d values, shape %v needs %d", len(data), shape, rows*anchors)
	}

	candidates := make([]Candidate, 0)
	for i := 0; i < anchors; i++ {
		classID := 0
		best := data[4*anchors+i]
		for c := 1; c < numClasses; c++ {
			if score := data[(4+c)*anchors+i]; score > best {
				best = score
				classID = c
			}
		}

		// Scores are float32; compare in that domain so a score equal to the
		// threshold as the model would emit it is rejected.
		if best <= float32(threshold) {
			continue
		}
		confidence := float64(best)

		candidates = append(candidates, Candidate{
			Box: CenterBox{
				CX: float64(data[i]) / canvasSize,
				CY: float64(data[anchors+i]) / canvasSize,
				W:  float64(data[2*anchors+i]) / canvasSize,
				H:  float64(data[3*anchors+i]) / canvasSize,
			},
			ClassID:    classID,
			Confidence: confidence,
		})
	}

	return candidates, nil
}

// ToDetections converts suppressed candidates into corner-format detections,
// anchoring the adjusted height at the bottom edge of the predicted box.
// Candidates with an unknown class are dropped.
func ToDetections(candidates []Candidate) []Detection {
	detections := make([]Detection, 0, len(candidates))
	for _, c := range candidates {
		fieldType, ok := FieldTypeForClass(c.ClassID)
		if !ok {
			continue
		}
		adjustedH := c.Box.H * HeightFactor
		detections = append(detections, Detection{
			Type: fieldType,
			BBox: Box{
				X: c.Box.CX - c.Box.W/2,
				Y: c.Box.CY + c.Box.H/2 - adjustedH,
				W: c.Box.W,
				H: adjustedH,
			},
			Confidence: c.Confidence,
		})
	}
	return detections
}

// Postprocess runs the full decode → suppress → convert → order chain.
func Postprocess(data []float32, shape []int64, threshold float64) ([]Detection, error) {
	candidates, err := Decode(data, shape, NumClasses(), TargetSize, threshold)
	if err != nil {
		return nil, err
	}
	kept := NonMaxSuppression(candidates, IoUThreshold)
	return SortReadingOrder(ToDetections(kept), RowEpsilon), nil
}
