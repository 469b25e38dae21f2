package ivp

import (
	"fmt"
	"math"
)

// Tolerances holds the relative tolerance and the per-component
// absolute tolerances that define the error weight vector
// w_i = 1/(rtol*|y_i| + atol_i).
type Tolerances struct {
	Rel float64
	Abs []float64
}

// ScalarTolerances broadcasts a single absolute tolerance to every
// component.
func ScalarTolerances(rtol, atol float64, n int) Tolerances {
	abs := make([]float64, n)
	for i := range abs {
		abs[i] = atol
	}
	return Tolerances{Rel: rtol, Abs: abs}
}

// Validate checks the tolerances eagerly; a violation is a fatal
// configuration error, never retried.
func (tol Tolerances) Validate(n int) error {
	if tol.Rel <= 0 {
		return fmt.Errorf("%w: relative tolerance %g must be positive", ErrIllegalInput, tol.Rel)
	}
	if len(tol.Abs) != n {
		return fmt.Errorf("%w: %d absolute tolerances for %d components", ErrIllegalInput, len(tol.Abs), n)
	}
	for i, a := range tol.Abs {
		if a <= 0 {
			return fmt.Errorf("%w: absolute tolerance [%d]=%g must be positive", ErrIllegalInput, i, a)
		}
	}
	return nil
}

// Weights recomputes the error weight vector for the current solution.
// All weights must come out strictly positive.
func (tol Tolerances) Weights(y, w []float64) error {
	for i := range y {
		d := tol.Rel*math.Abs(y[i]) + tol.Abs[i]
		if d <= 0 || math.IsNaN(d) {
			return fmt.Errorf("%w: component %d", ErrWeights, i)
		}
		w[i] = 1.0 / d
	}
	return nil
}
