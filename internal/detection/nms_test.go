package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	a := CenterBox{CX: 0.5, CY: 0.5, W: 0.2, H: 0.2}

	tests := []struct {
		name     string
		a, b     CenterBox
		expected float64
	}{
		{name: "identical", a: a, b: a, expected: 1.0},
		{name: "disjoint", a: a, b: CenterBox{CX: 0.9, CY: 0.9, W: 0.1, H: 0.1}, expected: 0},
		{name: "touching edges", a: a, b: CenterBox{CX: 0.7, CY: 0.5, W: 0.2, H: 0.2}, expected: 0},
		{name: "half shifted", a: a, b: CenterBox{CX: 0.6, CY: 0.5, W: 0.2, H: 0.2}, expected: 1.0 / 3.0},
		{name: "contained", a: a, b: CenterBox{CX: 0.5, CY: 0.5, W: 0.1, H: 0.1}, expected: 0.25},
		{name: "zero width", a: a, b: CenterBox{CX: 0.5, CY: 0.5, W: 0, H: 0.2}, expected: 0},
		{name: "negative height", a: a, b: CenterBox{CX: 0.5, CY: 0.5, W: 0.2, H: -0.2}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, IoU(tt.a, tt.b), 1e-9)
			assert.InDelta(t, IoU(tt.a, tt.b), IoU(tt.b, tt.a), 1e-12, "IoU must be symmetric")
		})
	}
}

func TestNonMaxSuppression_ClassIsolation(t *testing.T) {
	box := CenterBox{CX: 0.5, CY: 0.5, W: 0.3, H: 0.1}

	t.Run("different classes are both kept", func(t *testing.T) {
		kept := NonMaxSuppression([]Candidate{
			{Box: box, ClassID: 0, Confidence: 0.9},
			{Box: box, ClassID: 2, Confidence: 0.8},
		}, IoUThreshold)
		assert.Len(t, kept, 2)
	})

	t.Run("same class collapses to the most confident", func(t *testing.T) {
		kept := NonMaxSuppression([]Candidate{
			{Box: box, ClassID: 1, Confidence: 0.6},
			{Box: box, ClassID: 1, Confidence: 0.95},
		}, IoUThreshold)
		require.Len(t, kept, 1)
		assert.InDelta(t, 0.95, kept[0].Confidence, 1e-12)
	})
}

func TestNonMaxSuppression_ThresholdIsStrict(t *testing.T) {
	// All values are binary fractions so the IoU is exactly 1/3.
	a := CenterBox{CX: 0.5, CY: 0.5, W: 0.5, H: 0.5}
	b := CenterBox{CX: 0.75, CY: 0.5, W: 0.5, H: 0.5}
	require.Equal(t, 1.0/3.0, IoU(a, b))

	kept := NonMaxSuppression([]Candidate{
		{Box: a, ClassID: 0, Confidence: 0.9},
		{Box: b, ClassID: 0, Confidence: 0.8},
	}, 1.0/3.0)
	assert.Len(t, kept, 2)
}

func TestNonMaxSuppression_StableTies(t *testing.T) {
	kept := NonMaxSuppression([]Candidate{
		{Box: CenterBox{CX: 0.1, CY: 0.1, W: 0.05, H: 0.05}, ClassID: 0, Confidence: 0.7},
		{Box: CenterBox{CX: 0.5, CY: 0.5, W: 0.05, H: 0.05}, ClassID: 0, Confidence: 0.7},
		{Box: CenterBox{CX: 0.9, CY: 0.9, W: 0.05, H: 0.05}, ClassID: 0, Confidence: 0.7},
	}, IoUThreshold)

	require.Len(t, kept, 3)
	assert.InDelta(t, 0.1, kept[0].Box.CX, 1e-12)
	assert.InDelta(t, 0.5, kept[1].Box.CX, 1e-12)
	assert.InDelta(t, 0.9, kept[2].Box.CX, 1e-12)
}

func TestNonMaxSuppression_Idempotent(t *testing.T) {
	input := []Candidate{
		{Box: CenterBox{CX: 0.50, CY: 0.50, W: 0.20, H: 0.05}, ClassID: 0, Confidence: 0.91},
		{Box: CenterBox{CX: 0.51, CY: 0.50, W: 0.20, H: 0.05}, ClassID: 0, Confidence: 0.88},
		{Box: CenterBox{CX: 0.52, CY: 0.51, W: 0.19, H: 0.05}, ClassID: 0, Confidence: 0.72},
		{Box: CenterBox{CX: 0.50, CY: 0.50, W: 0.20, H: 0.05}, ClassID: 2, Confidence: 0.66},
		{Box: CenterBox{CX: 0.20, CY: 0.80, W: 0.03, H: 0.03}, ClassID: 1, Confidence: 0.55},
		{Box: CenterBox{CX: 0.21, CY: 0.80, W: 0.03, H: 0.03}, ClassID: 1, Confidence: 0.50},
	}

	once := NonMaxSuppression(input, IoUThreshold)
	twice := NonMaxSuppression(once, IoUThreshold)

	assert.Equal(t, once, twice)
	assert.Len(t, once, 3)
}

func TestNonMaxSuppression_Empty(t *testing.T) {
	kept := NonMaxSuppression(nil, IoUThreshold)
	assert.NotNil(t, kept)
	assert.Empty(t, kept)
}

func TestNonMaxSuppression_DoesNotMutateInput(t *testing.T) {
	input := []Candidate{
		{Box: CenterBox{CX: 0.1, CY: 0.1, W: 0.05, H: 0.05}, ClassID: 0, Confidence: 0.2},
		{Box: CenterBox{CX: 0.5, CY: 0.5, W: 0.05, H: 0.05}, ClassID: 0, Confidence: 0.9},
	}
	NonMaxSuppression(input, IoUThreshold)
	assert.InDelta(t, 0.2, input[0].Confidence, 1e-12)
}

func TestNonMaxSuppression_SuppressedDoNotSuppress(t *testing.T) {
	a := CenterBox{CX: 0.50, CY: 0.5, W: 0.2, H: 0.1}
	b := CenterBox{CX: 0.55, CY: 0.5, W: 0.2, H: 0.1}
	c := CenterBox{CX: 0.62, CY: 0.5, W: 0.2, H: 0.1}
	require.Greater(t, IoU(a, b), IoUThreshold)
	require.Greater(t, IoU(b, c), IoUThreshold)
	require.Less(t, IoU(a, c), IoUThreshold)

	kept := NonMaxSuppression([]Candidate{
		{Box: c, ClassID: 0, Confidence: 0.7},
		{Box: b, ClassID: 0, Confidence: 0.8},
		{Box: a, ClassID: 0, Confidence: 0.9},
	}, IoUThreshold)

	require.Len(t, kept, 2)
	assert.Equal(t, a, kept[0].Box)
	assert.Equal(t, c, kept[1].Box)
}

func TestNonMaxSuppression_DegenerateBoxesKept(t *testing.T) {
	box := CenterBox{CX: 0.5, CY: 0.5, W: 0.2, H: 0.1}
	flat := CenterBox{CX: 0.5, CY: 0.5, W: 0.2, H: 0}

	kept := NonMaxSuppression([]Candidate{
		{Box: flat, ClassID: 0, Confidence: 0.9},
		{Box: box, ClassID: 0, Confidence: 0.8},
		{Box: flat, ClassID: 0, Confidence: 0.7},
	}, IoUThreshold)

	assert.Len(t, kept, 3)
}
