// Package rk provides an explicit Dormand-Prince RK45 integrator with
// the same tolerance and weight conventions as the multistep core. It
// is the nonstiff cross-check: cheap per step, no nonlinear solve.
package rk

import (
	"fmt"
	"math"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/vec"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

const (
	safety   = 0.9
	minScale = 0.2
	maxScale = 10.0
)

type RK45 struct {
	ops  vec.Ops
	sys  ivp.System
	tol  ivp.Tolerances
	opts ivp.Options

	n  int
	w  []float64
	k  [7][]float64
	ys []float64
	yn []float64
	ee []float64
}

func New(sys ivp.System, ops vec.Ops, tol ivp.Tolerances, opts ivp.Options) *RK45 {
	return &RK45{ops: ops, sys: sys, tol: tol, opts: opts}
}

func (r *RK45) init() {
	r.n = r.sys.Dim()
	for i := range r.k {
		r.k[i] = make([]float64, r.n)
	}
	r.w = make([]float64, r.n)
	r.ys = make([]float64, r.n)
	r.yn = make([]float64, r.n)
	r.ee = make([]float64, r.n)
}

// step computes one trial step of size h from (t, y) into yn and
// returns the weighted error estimate. k[0] must hold f(t, y) on entry
// (FSAL: k[6] of an accepted step is the next k[0]).
func (r *RK45) step(t, h float64, y []float64) (float64, error) {
	ops := r.ops
	evalStage := func(dst []float64, tOff float64, coef []float64, ks int) error {
		ops.Copy(r.ys, y)
		for s := 0; s < ks; s++ {
			if coef[s] != 0 {
				ops.AxPy(h*coef[s], r.k[s], r.ys)
			}
		}
		return r.sys.Eval(t+tOff*h, r.ys, dst)
	}

	if err := evalStage(r.k[1], a2, []float64{b21}, 1); err != nil {
		return 0, err
	}
	if err := evalStage(r.k[2], a3, []float64{b31, b32}, 2); err != nil {
		return 0, err
	}
	if err := evalStage(r.k[3], a4, []float64{b41, b42, b43}, 3); err != nil {
		return 0, err
	}
	if err := evalStage(r.k[4], a5, []float64{b51, b52, b53, b54}, 4); err != nil {
		return 0, err
	}
	if err := evalStage(r.k[5], 1, []float64{b61, b62, b63, b64, b65}, 5); err != nil {
		return 0, err
	}

	if err := vec.LinComb(ops,
		[]float64{1, h * c1, h * c3, h * c4, h * c5, h * c6},
		[][]float64{y, r.k[0], r.k[2], r.k[3], r.k[4], r.k[5]},
		r.yn); err != nil {
		return 0, fmt.Errorf("%w: %v", ivp.ErrVectorOp, err)
	}
	if err := r.sys.Eval(t+h, r.yn, r.k[6]); err != nil {
		return 0, err
	}

	if err := vec.LinComb(ops,
		[]float64{h * dc1, h * dc3, h * dc4, h * dc5, h * dc6, h * dc7},
		[][]float64{r.k[0], r.k[2], r.k[3], r.k[4], r.k[5], r.k[6]},
		r.ee); err != nil {
		return 0, fmt.Errorf("%w: %v", ivp.ErrVectorOp, err)
	}
	return ops.WrmsNorm(r.ee, r.w), nil
}

// Integrate runs from t0 to tEnd, recording every accepted step. obs
// may be nil.
func (r *RK45) Integrate(t0, tEnd float64, y0 []float64, obs ivp.Observer) (*ivp.Result, error) {
	if err := r.tol.Validate(len(y0)); err != nil {
		return nil, err
	}
	if tEnd <= t0 {
		return nil, fmt.Errorf("%w: tEnd %g not beyond t0 %g", ivp.ErrIllegalInput, tEnd, t0)
	}
	r.init()
	if len(y0) != r.n {
		return nil, fmt.Errorf("%w: state length %d, system dimension %d",
			ivp.ErrIllegalInput, len(y0), r.n)
	}

	opts := r.opts
	maxSteps := opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = ivp.DefaultOptions().MaxSteps
	}

	res := &ivp.Result{}
	t := t0
	y := r.ops.Clone(y0)

	if err := r.tol.Weights(y, r.w); err != nil {
		return nil, err
	}
	if err := r.sys.Eval(t, y, r.k[0]); err != nil {
		return nil, fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, err)
	}
	res.Stats.FcnEvals++

	h := opts.InitStep
	if h <= 0 {
		h = (tEnd - t0) / 100
	}
	if opts.MaxStep > 0 {
		h = math.Min(h, opts.MaxStep)
	}

	res.Times = append(res.Times, t)
	res.States = append(res.States, r.ops.Clone(y))

	for t < tEnd {
		if t+h > tEnd {
			h = tEnd - t
		}

		errNorm, err := r.step(t, h, y)
		res.Stats.FcnEvals += 6
		if err != nil {
			if ivp.IsRecoverable(err) {
				h = math.Max(h*minScale, opts.MinStep)
				res.Stats.ErrTestFails++
				continue
			}
			return res, &ivp.StepError{Time: t, Step: h, Order: 5,
				Wrapped: fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, err)}
		}

		if errNorm > 1 {
			res.Stats.ErrTestFails++
			if h <= opts.MinStep*(1+1e-6) && opts.MinStep > 0 {
				return res, &ivp.StepError{Time: t, Step: h, Order: 5, Wrapped: ivp.ErrStepTooSmall}
			}
			h *= math.Max(minScale, safety*math.Pow(errNorm, -0.25))
			h = math.Max(h, opts.MinStep)
			continue
		}

		t += h
		r.ops.Copy(y, r.yn)
		r.ops.Copy(r.k[0], r.k[6])

		res.Stats.Steps++
		res.Stats.LastStep = h
		res.Stats.LastOrder = 5
		res.Stats.CurrentTime = t
		res.Times = append(res.Times, t)
		res.States = append(res.States, r.ops.Clone(y))
		if obs != nil {
			obs.OnStep(t, h, 5, y)
		}
		if res.Stats.Steps >= maxSteps && t < tEnd {
			return res, &ivp.StepError{Time: t, Step: h, Order: 5, Wrapped: ivp.ErrTooManySteps}
		}

		if err := r.tol.Weights(y, r.w); err != nil {
			return res, &ivp.StepError{Time: t, Step: h, Order: 5, Wrapped: err}
		}

		if errNorm > 0 {
			h *= math.Min(maxScale, safety*math.Pow(errNorm, -0.2))
		} else {
			h *= maxScale
		}
		if opts.MaxStep > 0 {
			h = math.Min(h, opts.MaxStep)
		}
		res.Stats.NextStep = h
	}
	return res, nil
}
