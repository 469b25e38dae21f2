package ivp

// System is the right-hand side of an initial value problem
// y' = f(t, y). Eval writes f(t, y) into ydot and must be free of side
// effects other than its outputs. A return of ErrRecoverable (possibly
// wrapped) asks the integrator to retry the step with a smaller step
// size; any other non-nil error aborts the integration.
type System interface {
	Dim() int
	Eval(t float64, y, ydot []float64) error
}

// Jacobian is an optional capability of a System. When absent the
// integrator approximates the Jacobian by finite differences.
type Jacobian interface {
	Jac(t float64, y []float64, dfdy [][]float64) error
}

// Configurable systems expose named parameters for runtime adjustment.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Observer receives every accepted step.
type Observer interface {
	OnStep(t, h float64, order int, y []float64)
}

// Options controls the adaptive integration loop. Zero values select
// the documented defaults.
type Options struct {
	// InitStep, if > 0, is the step size for the first attempt.
	// Otherwise an estimate is computed from the initial derivative.
	InitStep float64

	// MinStep is the smallest admissible step size. Failing below it
	// is fatal.
	MinStep float64

	// MaxStep, if > 0, caps the step size.
	MaxStep float64

	// MaxSteps bounds the number of accepted steps per Run.
	MaxSteps uint

	// MaxOrder caps the method order within the formula family's
	// window.
	MaxOrder int

	// MaxNewtonIters bounds corrector iterations per attempt.
	MaxNewtonIters int

	// MaxConvFails and MaxErrFails are the fatal thresholds for
	// consecutive nonlinear-convergence and error-test failures on a
	// single step.
	MaxConvFails int
	MaxErrFails  int

	// MaxGrowthInit and MaxGrowth cap the step-size growth factor on
	// the first accepted step and thereafter.
	MaxGrowthInit float64
	MaxGrowth     float64
}

func DefaultOptions() Options {
	return Options{
		MinStep:        1e-14,
		MaxSteps:       100000,
		MaxNewtonIters: 3,
		MaxConvFails:   10,
		MaxErrFails:    7,
		MaxGrowthInit:  10.0,
		MaxGrowth:      5.0,
	}
}

// Stats accumulates integration counters, in the spirit of the usual
// solver diagnostic output.
type Stats struct {
	// Steps is the number of accepted steps.
	Steps uint
	// ConvFails counts rejected attempts due to corrector
	// non-convergence; ErrTestFails counts rejected attempts due to
	// the local error test.
	ConvFails    uint
	ErrTestFails uint
	// FcnEvals counts right-hand-side evaluations; JacSetups counts
	// Jacobian/preconditioner refreshes; LinSolves counts linear
	// solves inside the corrector.
	FcnEvals    uint
	JacSetups   uint
	LinSolves   uint
	LastStep    float64
	NextStep    float64
	CurrentTime float64
	LastOrder   int
}

// Result is a recorded trajectory.
type Result struct {
	Times  []float64
	States [][]float64
	Stats  Stats
}
