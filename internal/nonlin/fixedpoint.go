package nonlin

import (
	"fmt"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/vec"
)

// FixedPoint is the functional corrector: it iterates
// acor = gamma f(t, y) - rl1 zdot_pred directly, with no linear
// algebra. Suitable for nonstiff problems paired with the Adams
// formulas.
type FixedPoint struct {
	sys   ivp.System
	ops   vec.Ops
	stats *ivp.Stats

	y, fy, acor, acorNew, delta []float64
}

func NewFixedPoint(sys ivp.System, ops vec.Ops, stats *ivp.Stats) *FixedPoint {
	return &FixedPoint{sys: sys, ops: ops, stats: stats}
}

func (fp *FixedPoint) Name() string { return "fixed-point" }

func (fp *FixedPoint) Init(n int) error {
	fp.y = make([]float64, n)
	fp.fy = make([]float64, n)
	fp.acor = make([]float64, n)
	fp.acorNew = make([]float64, n)
	fp.delta = make([]float64, n)
	return nil
}

func (fp *FixedPoint) RequestSetup() {}

func (fp *FixedPoint) Destroy() {}

func (fp *FixedPoint) Solve(req *Request) (*Result, error) {
	ops := fp.ops
	ops.Fill(fp.acor, 0)
	ops.Copy(fp.y, req.YPred)

	crate := 1.0
	delp := 0.0

	for m := 0; m < req.MaxIters; m++ {
		if err := fp.sys.Eval(req.T, fp.y, fp.fy); err != nil {
			fp.stats.FcnEvals++
			if recoverable(err) {
				return &Result{Status: FailRecoverable}, nil
			}
			return &Result{Status: FailFatal}, fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, err)
		}
		fp.stats.FcnEvals++

		ops.LinSum(req.Gamma, fp.fy, -req.Rl1, req.ZdotPred, fp.acorNew)
		ops.LinSum(1, fp.acorNew, -1, fp.acor, fp.delta)
		del := ops.WrmsNorm(fp.delta, req.Weights)

		ops.Copy(fp.acor, fp.acorNew)
		ops.LinSum(1, req.YPred, 1, fp.acor, fp.y)

		if m > 0 {
			crate = updateRate(crate, del, delp)
		}
		if converged(del, crate, req.ConvCoeff) {
			return &Result{
				Status:   Converged,
				Y:        ops.Clone(fp.y),
				Acor:     ops.Clone(fp.acor),
				AcorNorm: ops.WrmsNorm(fp.acor, req.Weights),
				Rate:     crate,
				Iters:    m + 1,
			}, nil
		}
		if m > 0 && del > divergeRate*delp {
			break
		}
		delp = del
	}
	return &Result{Status: FailRecoverable}, nil
}
