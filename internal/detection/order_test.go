package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(x, y float64) Detection {
	return Detection{Type: FieldTypeTextBox, BBox: Box{X: x, Y: y, W: 0.1, H: 0.02}, Confidence: 0.9}
}

func TestSortReadingOrder_SameRowWithinEpsilon(t *testing.T) {
	input := []Detection{
		det(0.5, 0.10),
		det(0.1, 0.101),
		det(0.9, 0.50),
	}

	ordered := SortReadingOrder(input, RowEpsilon)

	require.Len(t, ordered, 3)
	assert.Equal(t, input[1], ordered[0])
	assert.Equal(t, input[0], ordered[1])
	assert.Equal(t, input[2], ordered[2])
}

func TestSortReadingOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    []Detection
		expected []Detection
	}{
		{
			name:     "empty",
			input:    []Detection{},
			expected: []Detection{},
		},
		{
			name:     "rows top to bottom",
			input:    []Detection{det(0.1, 0.8), det(0.1, 0.2), det(0.1, 0.5)},
			expected: []Detection{det(0.1, 0.2), det(0.1, 0.5), det(0.1, 0.8)},
		},
		{
			name:     "row left to right",
			input:    []Detection{det(0.7, 0.3), det(0.2, 0.305), det(0.4, 0.3)},
			expected: []Detection{det(0.2, 0.305), det(0.4, 0.3), det(0.7, 0.3)},
		},
		{
			name:     "beyond epsilon is a new row",
			input:    []Detection{det(0.1, 0.32), det(0.9, 0.30)},
			expected: []Detection{det(0.9, 0.30), det(0.1, 0.32)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SortReadingOrder(tt.input, RowEpsilon))
		})
	}
}

func TestSortReadingOrder_LeavesInputUntouched(t *testing.T) {
	input := []Detection{det(0.1, 0.8), det(0.1, 0.2)}
	SortReadingOrder(input, RowEpsilon)
	assert.InDelta(t, 0.8, input[0].BBox.Y, 1e-12)
}
