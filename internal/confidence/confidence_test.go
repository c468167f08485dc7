package confidence

import (
	"math"
	"testing"

	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlend(t *testing.T) {
	tests := []struct {
		name   string
		old    float64
		signal float64
		want   float64
	}{
		{"success from half", 0.5, Success, 0.55},
		{"failure from half", 0.5, Failure, 0.45},
		{"success at ceiling", 1, Success, 1},
		{"failure at floor", 0, Failure, 0},
		{"success from floor", 0, Success, 0.1},
		{"failure from ceiling", 1, Failure, 0.9},
		{"partial signal", 0.5, 0.75, 0.525},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Blend(tt.old, tt.signal)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestBlend_InvalidSignal(t *testing.T) {
	for _, s := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		_, err := Blend(0.5, s)
		assert.ErrorIs(t, err, fixstore.ErrValidation, "signal %v", s)
	}
}

func TestBlend_Sequence(t *testing.T) {
	rate := 0.5
	for _, success := range []bool{true, true, false} {
		var err error
		rate, err = Blend(rate, Outcome(success))
		require.NoError(t, err)
	}
	// 0.5 -> 0.55 -> 0.595 -> 0.5355
	assert.InDelta(t, 0.5355, rate, 1e-12)
	assert.Greater(t, rate, 0.5)
}

func TestBlend_StaysInBounds(t *testing.T) {
	rate := 0.0
	for i := 0; i < 1000; i++ {
		var err error
		rate, err = Blend(rate, Outcome(i%7 != 0))
		require.NoError(t, err)
		require.GreaterOrEqual(t, rate, 0.0)
		require.LessOrEqual(t, rate, 1.0)
	}
}

func TestUpdater(t *testing.T) {
	fn := Updater(Success)
	got, err := fn(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, got, 1e-12)

	_, err = Updater(2)(0.5)
	assert.ErrorIs(t, err, fixstore.ErrValidation)
}
