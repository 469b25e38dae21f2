// Package solve wires the integration components into a runnable
// solver: it picks the vector backend, the corrector and the linear
// solver, drives the step controller to the stop time, and records the
// trajectory.
package solve

import (
	"context"
	"fmt"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/linalg"
	"github.com/san-kum/odesim/internal/method"
	"github.com/san-kum/odesim/internal/nonlin"
	"github.com/san-kum/odesim/internal/rk"
	"github.com/san-kum/odesim/internal/stepper"
	"github.com/san-kum/odesim/internal/vec"
)

// Corrector selection for the implicit families.
type CorrectorKind int

const (
	// NewtonCorrector uses the modified Newton iteration with a direct
	// linear solver. Required for stiff problems.
	NewtonCorrector CorrectorKind = iota
	// FunctionalCorrector uses fixed-point iteration; cheap, nonstiff
	// only.
	FunctionalCorrector
)

// Linear solver backend for the Newton corrector.
type LinearKind int

const (
	DenseLinear LinearKind = iota
	SparseLinear
)

// Config selects the method stack for one solver instance.
type Config struct {
	Family    method.Family
	Corrector CorrectorKind
	Linear    LinearKind
	Tol       ivp.Tolerances
	Opts      ivp.Options

	// Explicit switches the solver to the embedded Runge-Kutta pair
	// instead of the implicit multistep families.
	Explicit bool
}

// Solver runs initial value problems to a stop time.
type Solver struct {
	sys       ivp.System
	cfg       Config
	observers []ivp.Observer

	// attemptHook, when set, sees every step attempt including
	// rejected ones.
	attemptHook func(stepper.Outcome)

	// statsHook, when set, receives the counter snapshot after every
	// accepted step, before the observers run.
	statsHook func(ivp.Stats)
}

func New(sys ivp.System, cfg Config) *Solver {
	return &Solver{sys: sys, cfg: cfg}
}

// AddObserver registers a per-accepted-step callback.
func (s *Solver) AddObserver(o ivp.Observer) {
	s.observers = append(s.observers, o)
}

// SetAttemptHook registers a callback for every attempt, accepted or
// rejected.
func (s *Solver) SetAttemptHook(fn func(stepper.Outcome)) {
	s.attemptHook = fn
}

// SetStatsHook registers a per-accepted-step counter snapshot
// callback. Not called on the explicit path, whose counters are only
// final.
func (s *Solver) SetStatsHook(fn func(ivp.Stats)) {
	s.statsHook = fn
}

func (s *Solver) newLinearSolver() linalg.Solver {
	if s.cfg.Linear == SparseLinear {
		return linalg.NewSparse()
	}
	return linalg.NewDense()
}

// Run integrates from t0 to tEnd. Cancellation is honored at step
// boundaries: the partial result is returned with ctx's error.
func (s *Solver) Run(ctx context.Context, t0, tEnd float64, y0 []float64) (*ivp.Result, error) {
	if tEnd <= t0 {
		return nil, fmt.Errorf("%w: tEnd %g not beyond t0 %g", ivp.ErrIllegalInput, tEnd, t0)
	}

	n := s.sys.Dim()
	ops := vec.Auto(n)
	defer ops.Cleanup()

	if s.cfg.Explicit {
		r := rk.New(s.sys, ops, s.cfg.Tol, s.cfg.Opts)
		return r.Integrate(t0, tEnd, y0, observerList(s.observers))
	}

	stats := &ivp.Stats{}

	var corr nonlin.Corrector
	if s.cfg.Corrector == FunctionalCorrector {
		corr = nonlin.NewFixedPoint(s.sys, ops, stats)
	} else {
		jac, _ := s.sys.(ivp.Jacobian)
		corr = nonlin.NewNewton(s.sys, jac, s.newLinearSolver(), ops, stats)
	}
	defer corr.Destroy()

	tab, err := method.NewTable(s.cfg.Family, s.cfg.Opts.MaxOrder)
	if err != nil {
		return nil, err
	}

	ctrl := stepper.New(s.sys, tab, corr, ops, s.cfg.Tol, s.cfg.Opts, stats)
	if err := ctrl.Init(t0, y0); err != nil {
		return nil, err
	}

	maxSteps := s.cfg.Opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = ivp.DefaultOptions().MaxSteps
	}

	res := &ivp.Result{}
	res.Times = append(res.Times, t0)
	res.States = append(res.States, ops.Clone(y0))

	for {
		select {
		case <-ctx.Done():
			res.Stats = ctrl.Stats()
			return res, ctx.Err()
		default:
		}

		if !ctrl.LimitStepTo(tEnd) {
			break
		}

		out, err := ctrl.AttemptStep()
		if s.attemptHook != nil {
			s.attemptHook(out)
		}
		if err != nil {
			res.Stats = ctrl.Stats()
			return res, err
		}
		if out.Kind != stepper.Accepted {
			continue
		}

		res.Times = append(res.Times, out.T)
		res.States = append(res.States, ops.Clone(ctrl.Current()))
		if s.statsHook != nil {
			s.statsHook(ctrl.Stats())
		}
		for _, o := range s.observers {
			o.OnStep(out.T, out.H, out.Order, ctrl.Current())
		}

		if ctrl.Stats().Steps >= maxSteps && ctrl.Time() < tEnd {
			res.Stats = ctrl.Stats()
			return res, &ivp.StepError{
				Time:    ctrl.Time(),
				Step:    out.H,
				Order:   out.Order,
				Wrapped: ivp.ErrTooManySteps,
			}
		}
	}

	res.Stats = ctrl.Stats()
	return res, nil
}

// observerList fans a step notification out to several observers.
type observerList []ivp.Observer

func (l observerList) OnStep(t, h float64, order int, y []float64) {
	for _, o := range l {
		o.OnStep(t, h, order, y)
	}
}
