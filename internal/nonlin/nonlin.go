// Package nonlin hosts the corrector drivers that solve the implicit
// step equation of the multistep formulas: a modified Newton iteration
// for stiff problems and a fixed-point iteration for nonstiff ones.
//
// Both drivers iterate on the correction acor = y - y_pred and judge
// convergence in the weighted root-mean-square norm, scaled so that a
// converged correction is well below the local error test threshold.
package nonlin

import (
	"math"

	"github.com/san-kum/odesim/internal/ivp"
)

// Status classifies the outcome of one corrector invocation.
type Status int

const (
	// Converged: the correction satisfies the convergence test.
	Converged Status = iota
	// FailRecoverable: the iteration diverged or stalled with current
	// iteration data; the step must be retried with a smaller step
	// size.
	FailRecoverable
	// FailFatal: a callback or the linear solver reported an
	// unrecoverable error.
	FailFatal
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case FailRecoverable:
		return "fail-recoverable"
	case FailFatal:
		return "fail-fatal"
	}
	return "unknown"
}

// Request carries everything one corrector invocation needs. The
// caller owns all slices; the driver never retains them.
type Request struct {
	T     float64
	Gamma float64
	// Rl1 is 1/l[1] of the active formula, the weight of the predicted
	// scaled derivative in the step equation.
	Rl1      float64
	YPred    []float64
	ZdotPred []float64
	Weights  []float64
	// ConvCoeff is the convergence test constant of the active order.
	ConvCoeff float64
	MaxIters  int
}

// Result is the corrector output. On Converged, Y holds the corrected
// solution, Acor the accumulated correction and AcorNorm its weighted
// norm, which doubles as the input to the local error estimate.
type Result struct {
	Status   Status
	Y        []float64
	Acor     []float64
	AcorNorm float64
	Rate     float64
	Iters    int
}

// Corrector solves the implicit step equation for one attempt.
type Corrector interface {
	Name() string
	Init(n int) error
	Solve(req *Request) (*Result, error)
	// RequestSetup forces iteration-matrix preparation on the next
	// Solve. Drivers without setup cost ignore it.
	RequestSetup()
	Destroy()
}

const (
	// Geometric memory factor of the convergence rate estimate.
	crateDown = 0.3
	// Divergence threshold on consecutive correction norms.
	divergeRate = 2.0
)

// converged applies the shared convergence test: the latest correction
// norm del, damped by the estimated rate, must undercut the
// order-dependent coefficient.
func converged(del, crate, convCoeff float64) bool {
	return del*math.Min(1, crate)/convCoeff < 1
}

// updateRate folds a new norm ratio into the running rate estimate.
func updateRate(crate, del, delp float64) float64 {
	return math.Max(crateDown*crate, del/delp)
}

func recoverable(err error) bool {
	return ivp.IsRecoverable(err)
}
