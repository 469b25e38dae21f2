package nonlin

import (
	"fmt"
	"math"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/linalg"
	"github.com/san-kum/odesim/internal/vec"
)

const (
	// Relative gamma change beyond which the iteration matrix is stale.
	gammaChangeMax = 0.3
	// Solves between unconditional iteration-matrix refreshes.
	maxSolvesBetweenSetups = 20
)

// Newton is the modified Newton corrector: it solves
// M delta = gamma f(t, y) - rl1 zdot_pred - acor with M = I - gamma J,
// reusing the factored M across iterations and across steps until it
// goes stale.
type Newton struct {
	sys   ivp.System
	jac   ivp.Jacobian
	ls    linalg.Solver
	ops   vec.Ops
	stats *ivp.Stats

	n    int
	jmat [][]float64
	mmat [][]float64

	y, fy, ftmp []float64
	acor, rhs   []float64

	gammaSaved       float64
	jacCurrent       bool
	forceSetup       bool
	solvesSinceSetup int
}

// NewNewton builds the driver. jac may be nil, in which case the
// Jacobian is approximated by forward differences. stats receives the
// evaluation, setup and solve counters.
func NewNewton(sys ivp.System, jac ivp.Jacobian, ls linalg.Solver, ops vec.Ops, stats *ivp.Stats) *Newton {
	return &Newton{sys: sys, jac: jac, ls: ls, ops: ops, stats: stats}
}

func (nw *Newton) Name() string { return "newton" }

func (nw *Newton) Init(n int) error {
	if err := nw.ls.Init(n); err != nil {
		return err
	}
	nw.n = n
	nw.jmat = linalg.NewMatrix(n)
	nw.mmat = linalg.NewMatrix(n)
	nw.y = make([]float64, n)
	nw.fy = make([]float64, n)
	nw.ftmp = make([]float64, n)
	nw.acor = make([]float64, n)
	nw.rhs = make([]float64, n)
	nw.forceSetup = true
	return nil
}

func (nw *Newton) RequestSetup() { nw.forceSetup = true }

func (nw *Newton) Destroy() { nw.ls.Destroy() }

func (nw *Newton) needSetup(gamma float64) bool {
	if nw.forceSetup || !nw.jacCurrent {
		return true
	}
	if nw.solvesSinceSetup >= maxSolvesBetweenSetups {
		return true
	}
	return math.Abs(gamma/nw.gammaSaved-1) > gammaChangeMax
}

// setup refreshes the Jacobian at the predicted point and factors
// M = I - gamma J.
func (nw *Newton) setup(req *Request) (Status, error) {
	if nw.jac != nil {
		if err := nw.jac.Jac(req.T, nw.y, nw.jmat); err != nil {
			if recoverable(err) {
				return FailRecoverable, nil
			}
			return FailFatal, fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, err)
		}
	} else {
		evals, err := linalg.FDJacobian(nw.sys, req.T, nw.y, nw.fy, nw.jmat, nw.ftmp)
		nw.stats.FcnEvals += uint(evals)
		if err != nil {
			if recoverable(err) {
				return FailRecoverable, nil
			}
			return FailFatal, fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, err)
		}
	}
	nw.stats.JacSetups++

	linalg.BuildNewtonMatrix(nw.mmat, nw.jmat, req.Gamma)
	if err := nw.ls.Setup(nw.mmat); err != nil {
		// A singular iteration matrix is cured by a smaller step.
		return FailRecoverable, nil
	}

	nw.jacCurrent = true
	nw.forceSetup = false
	nw.gammaSaved = req.Gamma
	nw.solvesSinceSetup = 0
	return Converged, nil
}

func (nw *Newton) Solve(req *Request) (*Result, error) {
	callSetup := nw.needSetup(req.Gamma)

	for pass := 0; ; pass++ {
		nw.ops.Copy(nw.y, req.YPred)
		if err := nw.sys.Eval(req.T, nw.y, nw.fy); err != nil {
			nw.stats.FcnEvals++
			if recoverable(err) {
				return &Result{Status: FailRecoverable}, nil
			}
			return &Result{Status: FailFatal}, fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, err)
		}
		nw.stats.FcnEvals++

		if callSetup {
			st, err := nw.setup(req)
			if st != Converged {
				return &Result{Status: st}, err
			}
		}

		res, retry, err := nw.iterate(req)
		if err != nil {
			return res, err
		}
		if res != nil {
			nw.solvesSinceSetup++
			return res, nil
		}

		// The iteration failed. With a fresh matrix there is nothing
		// left to refresh; with a stale one, try once more after a
		// setup.
		nw.jacCurrent = false
		if !retry || callSetup || pass > 0 {
			return &Result{Status: FailRecoverable}, nil
		}
		callSetup = true
	}
}

// iterate runs the inner Newton loop. It returns a non-nil Result on
// convergence; otherwise retry reports whether a matrix refresh is
// worth attempting.
func (nw *Newton) iterate(req *Request) (res *Result, retry bool, err error) {
	ops := nw.ops
	ops.Fill(nw.acor, 0)

	crate := 1.0
	delp := 0.0

	for m := 0; m < req.MaxIters; m++ {
		// rhs = gamma f - rl1 zdot_pred - acor
		ops.LinSum(req.Gamma, nw.fy, -req.Rl1, req.ZdotPred, nw.rhs)
		ops.AxPy(-1, nw.acor, nw.rhs)

		delta, serr := nw.ls.Solve(nw.rhs)
		if serr != nil {
			return nil, true, nil
		}
		nw.stats.LinSolves++

		del := ops.WrmsNorm(delta, req.Weights)
		ops.AxPy(1, delta, nw.acor)
		ops.LinSum(1, req.YPred, 1, nw.acor, nw.y)

		if m > 0 {
			crate = updateRate(crate, del, delp)
		}
		if converged(del, crate, req.ConvCoeff) {
			return &Result{
				Status:   Converged,
				Y:        ops.Clone(nw.y),
				Acor:     ops.Clone(nw.acor),
				AcorNorm: ops.WrmsNorm(nw.acor, req.Weights),
				Rate:     crate,
				Iters:    m + 1,
			}, false, nil
		}
		if m > 0 && del > divergeRate*delp {
			return nil, true, nil
		}
		delp = del

		if ferr := nw.sys.Eval(req.T, nw.y, nw.fy); ferr != nil {
			nw.stats.FcnEvals++
			if recoverable(ferr) {
				return nil, true, nil
			}
			return &Result{Status: FailFatal}, false,
				fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, ferr)
		}
		nw.stats.FcnEvals++
	}
	return nil, true, nil
}
