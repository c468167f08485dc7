package ranking

import (
	"fmt"
	"math"

	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
// A zero-magnitude vector on either side yields 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: got %d, want %d", fixstore.ErrDimensionMismatch, len(b), len(a))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push parallel vectors just past 1.
	return math.Max(-1, math.Min(1, sim)), nil
}
