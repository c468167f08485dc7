package fixstore

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixRecord_Validate(t *testing.T) {
	valid := func() *FixRecord {
		return &FixRecord{
			ID:          "fix-1",
			TechStack:   "react@18+ts",
			SuccessRate: 0.5,
			Embedding:   []float32{1, 0, 0},
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *FixRecord)
		wantErr error
	}{
		{"valid", func(r *FixRecord) {}, nil},
		{"empty tech stack allowed", func(r *FixRecord) { r.TechStack = "" }, nil},
		{"rate zero", func(r *FixRecord) { r.SuccessRate = 0 }, nil},
		{"rate one", func(r *FixRecord) { r.SuccessRate = 1 }, nil},
		{"empty id", func(r *FixRecord) { r.ID = "" }, ErrValidation},
		{"negative rate", func(r *FixRecord) { r.SuccessRate = -0.01 }, ErrValidation},
		{"rate above one", func(r *FixRecord) { r.SuccessRate = 1.01 }, ErrValidation},
		{"NaN rate", func(r *FixRecord) { r.SuccessRate = math.NaN() }, ErrValidation},
		{"short embedding", func(r *FixRecord) { r.Embedding = []float32{1, 0} }, ErrDimensionMismatch},
		{"nil embedding", func(r *FixRecord) { r.Embedding = nil }, ErrDimensionMismatch},
		{"NaN component", func(r *FixRecord) { r.Embedding[1] = float32(math.NaN()) }, ErrValidation},
		{"Inf component", func(r *FixRecord) { r.Embedding[2] = float32(math.Inf(1)) }, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate(3)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFixRecord_ValidateNil(t *testing.T) {
	var r *FixRecord
	assert.ErrorIs(t, r.Validate(3), ErrValidation)
}

func TestFixRecord_Clone(t *testing.T) {
	orig := &FixRecord{ID: "a", Embedding: []float32{1, 2, 3}}
	c := orig.Clone()
	c.Embedding[0] = 99
	c.ID = "b"

	assert.Equal(t, float32(1), orig.Embedding[0])
	assert.Equal(t, "a", orig.ID)

	var nilRec *FixRecord
	assert.Nil(t, nilRec.Clone())
}

func TestApplyRate(t *testing.T) {
	t.Run("passes result through", func(t *testing.T) {
		got, err := applyRate(0.5, func(c float64) (float64, error) { return c / 2, nil })
		require.NoError(t, err)
		assert.Equal(t, 0.25, got)
	})

	t.Run("rejects out of range result", func(t *testing.T) {
		_, err := applyRate(0.5, func(float64) (float64, error) { return 2, nil })
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("propagates fn error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := applyRate(0.5, func(float64) (float64, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	})
}
