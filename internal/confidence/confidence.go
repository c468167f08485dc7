// Package confidence learns per-fix success rates from outcome feedback.
//
// Each signal is folded into the current rate with an exponential moving
// average, so recent outcomes move the rate by a tenth of their distance from
// it and older outcomes decay geometrically.
package confidence

import (
	"fmt"
	"math"

	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
)

// Decay is the weight kept by the previous rate on every update.
const Decay = 0.9

// Signal values for binary outcomes.
const (
	Failure = 0.0
	Success = 1.0
)

// Outcome converts a binary outcome to its signal.
func Outcome(success bool) float64 {
	if success {
		return Success
	}
	return Failure
}

// Blend returns Decay*old + (1-Decay)*signal, clamped to [0, 1].
// signal must be in [0, 1].
func Blend(old, signal float64) (float64, error) {
	if math.IsNaN(signal) || signal < 0 || signal > 1 {
		return 0, fmt.Errorf("%w: signal %v outside [0, 1]", fixstore.ErrValidation, signal)
	}
	next := Decay*old + (1-Decay)*signal
	return math.Max(0, math.Min(1, next)), nil
}

// Updater returns a fixstore.RateFunc applying signal to the stored rate.
func Updater(signal float64) fixstore.RateFunc {
	return func(current float64) (float64, error) {
		return Blend(current, signal)
	}
}
