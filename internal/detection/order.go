package detection

import (
	"math"
	"sort"
)

// SortReadingOrder returns detections ordered top-to-bottom, left-to-right.
// Two boxes whose top edges differ by at most epsilon share a row and are
// ordered by x alone. The input slice is left untouched.
func SortReadingOrder(detections []Detection, epsilon float64) []Detection {
	ordered := make([]Detection, len(detections))
	copy(ordered, detections)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].BBox, ordered[j].BBox
		if dy := a.Y - b.Y; math.Abs(dy) > epsilon {
			return dy < 0
		}
		return a.X < b.X
	})

	return ordered
}
