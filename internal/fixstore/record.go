package fixstore

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// FixRecord is a stored association between an error message and its fix.
type FixRecord struct {
	// ID is the caller-assigned unique identifier. Immutable after insert.
	ID string `json:"id"`

	// ErrorMessage is the raw error text, stored byte-for-byte.
	ErrorMessage string `json:"error_message"`

	// FixCode is the corrective code change, stored byte-for-byte.
	FixCode string `json:"fix_code"`

	// TechStack is the exact-match partition key, typically
	// "<framework>@<version>+<language>". Opaque to the store.
	TechStack string `json:"tech_stack"`

	// SuccessRate is the learned confidence in [0, 1].
	SuccessRate float64 `json:"success_rate"`

	// Embedding is the semantic vector of ErrorMessage.
	Embedding []float32 `json:"embedding"`

	// FeedbackCount is how many confidence updates have been applied.
	// Maintained by the store.
	FeedbackCount int64 `json:"feedback_count"`

	// CreatedAt is when the record was inserted. Maintained by the store.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the success rate last changed. Maintained by the store.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *FixRecord) Clone() *FixRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Embedding = slices.Clone(r.Embedding)
	return &c
}

// Validate checks the caller-supplied fields of r against a store dimension.
func (r *FixRecord) Validate(dimension int) error {
	if r == nil {
		return fmt.Errorf("%w: record is nil", ErrValidation)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if err := ValidateSuccessRate(r.SuccessRate); err != nil {
		return err
	}
	return ValidateEmbedding(r.Embedding, dimension)
}

// ValidateSuccessRate rejects rates outside [0, 1] and NaN.
func ValidateSuccessRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return fmt.Errorf("%w: success rate %v outside [0, 1]", ErrValidation, rate)
	}
	return nil
}

// ValidateEmbedding checks that v has exactly dimension finite components.
func ValidateEmbedding(v []float32, dimension int) error {
	if len(v) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dimension)
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: embedding component %d is not finite", ErrValidation, i)
		}
	}
	return nil
}

// RateFunc computes a new success rate from the current one.
type RateFunc func(current float64) (float64, error)

// applyRate runs fn and enforces the [0, 1] invariant on its result.
func applyRate(current float64, fn RateFunc) (float64, error) {
	next, err := fn(current)
	if err != nil {
		return 0, err
	}
	if err := ValidateSuccessRate(next); err != nil {
		return 0, err
	}
	return next, nil
}
