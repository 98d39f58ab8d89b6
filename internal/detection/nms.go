package detection

import (
	"math"
	"sort"

	"github.com/tidwall/rtree"
)

// IoU returns the intersection over union of two center-format boxes.
// Boxes with a non-positive area never overlap anything.
func IoU(a, b CenterBox) float64 {
	if a.W <= 0 || a.H <= 0 || b.W <= 0 || b.H <= 0 {
		return 0
	}

	ax0, ay0, ax1, ay1 := a.Corners()
	bx0, by0, bx1, by1 := b.Corners()

	iw := math.Max(0, math.Min(ax1, bx1)-math.Max(ax0, bx0))
	ih := math.Max(0, math.Min(ay1, by1)-math.Max(ay0, by0))
	intersection := iw * ih
	if intersection == 0 {
		return 0
	}

	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// NonMaxSuppression greedily keeps the most confident candidate and drops
// every remaining candidate of the same class overlapping it by more than
// iouThreshold. Candidates of different classes never suppress each other.
// Equal confidences keep their input order.
func NonMaxSuppression(candidates []Candidate, iouThreshold float64) []Candidate {
	if len(candidates) == 0 {
		return []Candidate{}
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	// One spatial index per class, keyed by rank in sorted
	trees := make(map[int]*rtree.RTreeG[int])
	for i, c := range sorted {
		if !c.Box.valid() {
			continue
		}
		tr, ok := trees[c.ClassID]
		if !ok {
			tr = &rtree.RTreeG[int]{}
			trees[c.ClassID] = tr
		}
		lo, hi := c.Box.bounds()
		tr.Insert(lo, hi, i)
	}

	suppressed := make([]bool, len(sorted))
	kept := make([]Candidate, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		current := sorted[i]
		kept = append(kept, current)

		tr, ok := trees[current.ClassID]
		if !ok || !current.Box.valid() {
			continue
		}
		lo, hi := current.Box.bounds()
		tr.Search(lo, hi, func(_, _ [2]float64, j int) bool {
			if j > i && !suppressed[j] && IoU(current.Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
			return true
		})
	}

	return kept
}

func (b CenterBox) valid() bool {
	return b.W > 0 && b.H > 0
}

func (b CenterBox) bounds() (lo, hi [2]float64) {
	x0, y0, x1, y1 := b.Corners()
	return [2]float64{x0, y0}, [2]float64{x1, y1}
}
