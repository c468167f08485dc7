package ranking

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
)

// ScoredFix is a ranked candidate with its similarity to the query.
type ScoredFix struct {
	Record     *fixstore.FixRecord `json:"record"`
	Similarity float64             `json:"similarity"`
}

// Options tunes Rank.
type Options struct {
	// MinSimilarity drops candidates scoring below it. Zero disables the filter.
	MinSimilarity float64
}

// Rank scores candidates against query and returns at most limit of them,
// ordered by success rate descending, then similarity descending, then id.
//
// An empty candidate set is not an error. Any candidate whose embedding
// length differs from the query fails the whole call with
// fixstore.ErrDimensionMismatch.
func Rank(query []float32, candidates []*fixstore.FixRecord, limit int, opts Options) ([]ScoredFix, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", fixstore.ErrValidation, limit)
	}

	scored := make([]ScoredFix, 0, len(candidates))
	for _, c := range candidates {
		sim, err := Cosine(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		if opts.MinSimilarity > 0 && sim < opts.MinSimilarity {
			continue
		}
		scored = append(scored, ScoredFix{Record: c, Similarity: sim})
	}

	slices.SortFunc(scored, compare)

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func compare(a, b ScoredFix) int {
	if c := cmp.Compare(b.Record.SuccessRate, a.Record.SuccessRate); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
		return c
	}
	return cmp.Compare(a.Record.ID, b.Record.ID)
}
