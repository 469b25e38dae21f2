package ivp

import (
	"errors"
	"fmt"
)

// Domain errors for integration. Only fatal conditions cross the
// integrator boundary; recoverable ones are consumed by the retry loop.
var (
	// ErrRecoverable marks a transient right-hand-side evaluation
	// failure. User callbacks return it (or wrap it) to request a
	// retry with a smaller step.
	ErrRecoverable = errors.New("ivp: recoverable evaluation failure")

	// ErrIllegalInput indicates an invalid configuration (tolerance,
	// order window, step bounds) detected before any step is taken.
	ErrIllegalInput = errors.New("ivp: illegal input")

	// ErrConvergence indicates repeated corrector convergence failures
	// with no intervening accepted step.
	ErrConvergence = errors.New("ivp: repeated nonlinear convergence failures")

	// ErrErrorTest indicates repeated local error test failures.
	ErrErrorTest = errors.New("ivp: repeated error test failures")

	// ErrStepTooSmall indicates the step size was driven below the
	// minimum while still failing.
	ErrStepTooSmall = errors.New("ivp: step size below minimum")

	// ErrTooManySteps indicates the accepted-step budget was exhausted
	// before reaching the stop time.
	ErrTooManySteps = errors.New("ivp: maximum step count exceeded")

	// ErrWeights indicates a non-positive error weight.
	ErrWeights = errors.New("ivp: non-positive error weight")

	// ErrVectorOp indicates an unrecoverable vector-backend failure.
	ErrVectorOp = errors.New("ivp: vector operation failed")

	// ErrCallbackFatal indicates an unrecoverable user callback
	// failure.
	ErrCallbackFatal = errors.New("ivp: unrecoverable callback failure")
)

// IsRecoverable reports whether err asks for a retry with a smaller
// step rather than an abort.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// StepError wraps a fatal error with the integrator state at the point
// of failure.
type StepError struct {
	Time      float64
	Step      float64
	Order     int
	ConvFails int
	ErrFails  int
	Wrapped   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%v (t=%.6g, h=%.6g, order=%d, ncf=%d, nef=%d)",
		e.Wrapped, e.Time, e.Step, e.Order, e.ConvFails, e.ErrFails)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
