// Package linalg provides the linear solver capability set consumed by
// the nonlinear corrector driver, plus Jacobian construction helpers.
package linalg

import "errors"

// ErrSingular indicates a singular or unacceptably ill-conditioned
// iteration matrix. The corrector treats it as a recoverable condition
// (retry with a fresh Jacobian or a smaller step).
var ErrSingular = errors.New("linalg: singular matrix")

// Solver factors and solves the linearized corrector system. Setup is
// expensive relative to Solve and is invoked lazily by the caller.
type Solver interface {
	Name() string
	Init(n int) error
	// Setup factors the n-by-n matrix a. The implementation may keep
	// references into a until the next Setup.
	Setup(a [][]float64) error
	// Solve returns x with A x = b for the last Setup matrix.
	Solve(b []float64) ([]float64, error)
	Destroy()
}

// NewMatrix allocates a zeroed n-by-n dense matrix.
func NewMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	buf := make([]float64, n*n)
	for i := range m {
		m[i] = buf[i*n : (i+1)*n]
	}
	return m
}
