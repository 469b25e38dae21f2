// Package stepper implements the adaptive step controller: one
// predict / correct / error-test cycle per attempt, with step-size and
// order adaptation on acceptance and a layered retry policy on
// failure.
package stepper

import (
	"fmt"
	"math"

	"github.com/san-kum/odesim/internal/history"
	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/method"
	"github.com/san-kum/odesim/internal/nonlin"
	"github.com/san-kum/odesim/internal/vec"
)

// OutcomeKind classifies one step attempt.
type OutcomeKind int

const (
	Accepted OutcomeKind = iota
	RejectedConvergence
	RejectedErrorTest
)

func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case RejectedConvergence:
		return "rejected-convergence"
	case RejectedErrorTest:
		return "rejected-error-test"
	}
	return "unknown"
}

// Outcome reports one attempt: the time reached (unchanged on
// rejection), the step size used and the active order, plus the scaled
// error estimate when the corrector converged.
type Outcome struct {
	Kind  OutcomeKind
	T     float64
	H     float64
	Order int
	Dsm   float64
}

// Step-size selection constants. The biases deflate the raw error
// estimates at the candidate orders so the step only changes when the
// gain is clear; thresh suppresses changes below 50%.
const (
	biasDown = 6.0
	biasSame = 6.0
	biasUp   = 10.0
	addon    = 1e-6
	thresh   = 1.5

	etaMinConvFail = 0.25
	etaMaxErrFail  = 0.2
	etaMinErrFail  = 0.1
)

// Estimate scales a weighted correction norm into the local error
// measure tested against 1.
func Estimate(acorNorm, errCoeff float64) float64 {
	return acorNorm * errCoeff
}

// Controller owns the integration state between steps: current time,
// step size, order, history, weights and the failure counters of the
// step in progress.
type Controller struct {
	ops  vec.Ops
	sys  ivp.System
	tab  *method.Table
	hist *history.Store
	corr nonlin.Corrector
	tol  ivp.Tolerances
	opts ivp.Options

	// stats is shared with the corrector so both sides accumulate into
	// one set of counters.
	stats *ivp.Stats

	n    int
	t, h float64
	q    int
	w    []float64
	hmax float64

	// Step/order changes decided on acceptance (or rejection) are
	// applied at the start of the next attempt.
	pendingEta   float64
	pendingOrder int

	// qwait gates order changes: no change is considered until it
	// reaches zero. etamax caps growth for the next selection.
	qwait  int
	etamax float64

	// Saved correction of the previous accepted step, used to
	// synthesize a new history column on order increase and to
	// estimate the error at order q+1.
	acorPrev  []float64
	savedAcor []float64
	savedH    float64

	ncf, nef int

	initialized bool
	firstStep   bool
}

// New assembles a controller. The corrector must already be built for
// the same system; Init prepares both. stats may be the same struct
// the corrector accumulates into; nil allocates a private one.
func New(sys ivp.System, tab *method.Table, corr nonlin.Corrector, ops vec.Ops, tol ivp.Tolerances, opts ivp.Options, stats *ivp.Stats) *Controller {
	if stats == nil {
		stats = &ivp.Stats{}
	}
	return &Controller{
		ops:   ops,
		sys:   sys,
		tab:   tab,
		corr:  corr,
		tol:   tol,
		opts:  opts,
		stats: stats,
	}
}

// Init validates the configuration, primes the history at order 1 and
// fixes the first step size.
func (c *Controller) Init(t0 float64, y0 []float64) error {
	n := c.sys.Dim()
	if len(y0) != n {
		return fmt.Errorf("%w: state length %d, system dimension %d",
			ivp.ErrIllegalInput, len(y0), n)
	}
	if err := c.tol.Validate(n); err != nil {
		return err
	}
	if c.opts.MinStep < 0 || (c.opts.MaxStep > 0 && c.opts.MaxStep < c.opts.MinStep) {
		return fmt.Errorf("%w: step bounds [%g, %g]",
			ivp.ErrIllegalInput, c.opts.MinStep, c.opts.MaxStep)
	}
	c.n = n
	c.hmax = c.opts.MaxStep
	if c.hmax <= 0 {
		c.hmax = math.Inf(1)
	}

	c.w = make([]float64, n)
	if err := c.tol.Weights(y0, c.w); err != nil {
		return err
	}

	ydot0 := make([]float64, n)
	if err := c.sys.Eval(t0, y0, ydot0); err != nil {
		c.stats.FcnEvals++
		return fmt.Errorf("%w: %v", ivp.ErrCallbackFatal, err)
	}
	c.stats.FcnEvals++

	h := c.opts.InitStep
	if h <= 0 {
		h = c.estimateFirstStep(t0, y0, ydot0)
	}
	h = math.Max(h, c.opts.MinStep)
	h = math.Min(h, c.hmax)

	if err := c.corr.Init(n); err != nil {
		return err
	}

	c.hist = history.New(c.ops, n, c.tab.QMax)
	c.hist.Init(y0, ydot0, h)
	c.t = t0
	c.h = h
	c.q = 1
	c.qwait = 2
	c.etamax = c.opts.MaxGrowthInit
	c.pendingEta = 1
	c.pendingOrder = c.q
	c.ncf, c.nef = 0, 0
	c.firstStep = true
	c.initialized = true

	c.stats.NextStep = h
	c.stats.CurrentTime = t0
	return nil
}

// estimateFirstStep computes a starting step from the scaled sizes of
// the solution, its derivative and a one-sided second-derivative probe.
func (c *Controller) estimateFirstStep(t0 float64, y0, ydot0 []float64) float64 {
	dnf := c.ops.WrmsNorm(ydot0, c.w)
	dny := c.ops.WrmsNorm(y0, c.w)

	var h float64
	if math.Min(dnf, dny) < 1e-10 {
		h = 1e-6
	} else {
		h = 1e-2 * dny / dnf
	}
	h = math.Min(h, c.hmax)

	// Explicit Euler probe for the second derivative.
	y2 := make([]float64, c.n)
	f2 := make([]float64, c.n)
	c.ops.LinSum(1, y0, h, ydot0, y2)
	if err := c.sys.Eval(t0+h, y2, f2); err != nil {
		c.stats.FcnEvals++
		return h
	}
	c.stats.FcnEvals++

	c.ops.AxPy(-1, ydot0, f2)
	der2 := c.ops.WrmsNorm(f2, c.w) / h
	der12 := math.Max(der2, dnf)

	var h1 float64
	if der12 <= 1e-15 {
		h1 = math.Max(1e-6, h*1e-3)
	} else {
		h1 = math.Sqrt(1e-2 / der12)
	}
	return math.Min(1e2*h, math.Min(h1, c.hmax))
}

// Time returns the last accepted time.
func (c *Controller) Time() float64 { return c.t }

// Current returns the last accepted solution, owned by the controller.
func (c *Controller) Current() []float64 { return c.hist.Current() }

// Order returns the order the next attempt will use.
func (c *Controller) Order() int {
	if c.pendingOrder != 0 {
		return c.pendingOrder
	}
	return c.q
}

// NextStep returns the step size the next attempt will use.
func (c *Controller) NextStep() float64 { return c.h * c.pendingEta }

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() ivp.Stats { return *c.stats }

// LimitStepTo shrinks the next step so it lands exactly on tstop when
// it would otherwise overshoot. Returns false when tstop is already
// reached.
func (c *Controller) LimitStepTo(tstop float64) bool {
	remaining := tstop - c.t
	// Roundoff guard: a leftover below the local time resolution counts
	// as reached rather than forcing a degenerate step.
	fuzz := 100 * 2.220446049250313e-16 * math.Max(math.Abs(c.t), math.Abs(tstop))
	if remaining <= fuzz {
		return false
	}
	hnext := c.h * c.pendingEta
	if c.t+hnext > tstop {
		c.pendingEta = remaining / c.h
	}
	return true
}

// applyPending performs the deferred order change and history rescale
// before an attempt. Order changes precede the rescale so the new
// column participates in the scaling.
func (c *Controller) applyPending() error {
	if c.pendingOrder > c.q {
		coef := c.tab.IncreaseCoeff(c.q)
		if err := c.hist.IncreaseOrder(coef, c.acorPrev); err != nil {
			return err
		}
		c.q = c.pendingOrder
	} else if c.pendingOrder > 0 && c.pendingOrder < c.q {
		c.hist.DecreaseOrder(c.tab.DecreaseCoeffs(c.q))
		c.q = c.pendingOrder
	}
	c.pendingOrder = c.q

	if c.pendingEta != 1 {
		c.h *= c.pendingEta
		c.hist.Rescale(c.pendingEta)
		c.pendingEta = 1
	}
	return nil
}

// AttemptStep runs one predict / correct / error-test cycle. On
// rejection the controller has already scheduled the retry adjustments;
// the caller simply attempts again. A non-nil error is fatal and
// carries the failure context.
func (c *Controller) AttemptStep() (Outcome, error) {
	if !c.initialized {
		return Outcome{}, fmt.Errorf("%w: controller not initialized", ivp.ErrIllegalInput)
	}
	if err := c.applyPending(); err != nil {
		return Outcome{}, err
	}

	coeffs := c.tab.ForOrder(c.q)
	gamma := c.h / coeffs.L[1]
	rl1 := 1.0 / coeffs.L[1]
	tpred := c.t + c.h

	pred := c.hist.Predict()

	res, err := c.corr.Solve(&nonlin.Request{
		T:         tpred,
		Gamma:     gamma,
		Rl1:       rl1,
		YPred:     pred.Z[0],
		ZdotPred:  pred.Z[1],
		Weights:   c.w,
		ConvCoeff: coeffs.ConvCoeff,
		MaxIters:  c.opts.MaxNewtonIters,
	})
	if err != nil {
		return Outcome{}, c.fatal(err)
	}
	if res.Status != nonlin.Converged {
		return c.convergenceFailure()
	}

	dsm := Estimate(res.AcorNorm, coeffs.ErrCoeff)
	if dsm > 1 {
		return c.errorTestFailure(dsm)
	}
	return c.accept(pred, res, coeffs, dsm, tpred)
}

func (c *Controller) fatal(err error) error {
	return &ivp.StepError{
		Time:      c.t,
		Step:      c.h,
		Order:     c.q,
		ConvFails: c.ncf,
		ErrFails:  c.nef,
		Wrapped:   err,
	}
}

// convergenceFailure schedules the retry after a corrector failure:
// cut the step to a quarter, force an iteration-matrix refresh, and
// give up when the counter or the step floor is exhausted.
func (c *Controller) convergenceFailure() (Outcome, error) {
	c.ncf++
	c.stats.ConvFails++
	c.etamax = 1

	out := Outcome{Kind: RejectedConvergence, T: c.t, H: c.h, Order: c.q}

	if c.h <= c.opts.MinStep*(1+1e-6) {
		return out, c.fatal(ivp.ErrStepTooSmall)
	}
	if c.ncf >= c.opts.MaxConvFails {
		return out, c.fatal(ivp.ErrConvergence)
	}

	c.pendingEta = math.Max(etaMinConvFail, c.opts.MinStep/c.h)
	c.corr.RequestSetup()
	return out, nil
}

// errorTestFailure schedules the retry after a failed local error
// test: shrink the step based on the estimate, drop the order after
// two consecutive failures, and give up at the configured limit.
func (c *Controller) errorTestFailure(dsm float64) (Outcome, error) {
	c.nef++
	c.stats.ErrTestFails++
	c.etamax = 1

	out := Outcome{Kind: RejectedErrorTest, T: c.t, H: c.h, Order: c.q, Dsm: dsm}

	if c.h <= c.opts.MinStep*(1+1e-6) {
		return out, c.fatal(ivp.ErrStepTooSmall)
	}
	if c.nef >= c.opts.MaxErrFails {
		return out, c.fatal(ivp.ErrErrorTest)
	}

	eta := 1.0 / (math.Pow(dsm, 1.0/float64(c.q+1)) + addon)
	eta = math.Min(etaMaxErrFail, math.Max(etaMinErrFail, eta))
	eta = math.Max(eta, c.opts.MinStep/c.h)
	c.pendingEta = eta

	if c.nef >= 2 && c.q > 1 {
		c.pendingOrder = c.q - 1
		c.qwait = c.pendingOrder + 1
	}
	return out, nil
}

// accept commits the step, refreshes the weights and selects the step
// size and order for the next attempt.
func (c *Controller) accept(pred *history.Prediction, res *nonlin.Result, coeffs method.Coeffs, dsm, tpred float64) (Outcome, error) {
	c.hist.Commit(pred, res.Acor, coeffs.L)
	c.t = tpred
	c.ncf, c.nef = 0, 0

	c.stats.Steps++
	c.stats.LastStep = c.h
	c.stats.LastOrder = c.q
	c.stats.CurrentTime = c.t

	if err := c.tol.Weights(c.hist.Current(), c.w); err != nil {
		return Outcome{}, c.fatal(err)
	}

	c.acorPrev = res.Acor

	out := Outcome{Kind: Accepted, T: c.t, H: c.h, Order: c.q, Dsm: dsm}

	c.qwait--
	c.selectNext(res, dsm)

	// Snapshot the correction one step before an order change becomes
	// admissible; the next step differences against it to estimate the
	// error at order q+1.
	if c.qwait == 1 && c.q < c.tab.QMax {
		c.savedAcor = c.ops.Clone(res.Acor)
		c.savedH = c.h
	}

	if c.firstStep {
		c.firstStep = false
	}
	c.stats.NextStep = c.h * c.pendingEta
	return out, nil
}

// selectNext picks the step-size ratio and order for the next step.
func (c *Controller) selectNext(res *nonlin.Result, dsm float64) {
	// After any failure on this step, hold h and q once before
	// resuming growth.
	if c.etamax == 1 {
		c.qwait = maxInt(c.qwait, 2)
		c.pendingEta = 1
		c.pendingOrder = c.q
		c.etamax = c.opts.MaxGrowth
		return
	}

	etaq := 1.0 / (math.Pow(biasSame*dsm, 1.0/float64(c.q+1)) + addon)

	if c.qwait != 0 {
		c.finishSelection(etaq, c.q)
		return
	}

	c.qwait = 2
	eta, order := etaq, c.q

	if c.q > 1 {
		dsmDown := Estimate(c.ops.WrmsNorm(c.hist.Column(c.q), c.w), c.tab.ForOrder(c.q).ErrCoeffDown)
		etaDown := 1.0 / (math.Pow(biasDown*dsmDown, 1.0/float64(c.q)) + addon)
		// Ties prefer the lower order.
		if etaDown >= eta {
			eta, order = etaDown, c.q-1
		}
	}
	if c.q < c.tab.QMax && c.savedAcor != nil {
		cquot := math.Pow(c.h/c.savedH, float64(c.q+1))
		diff := c.ops.Clone(res.Acor)
		c.ops.AxPy(-cquot, c.savedAcor, diff)
		dsmUp := Estimate(c.ops.WrmsNorm(diff, c.w), c.tab.ForOrder(c.q).ErrCoeffUp)
		etaUp := 1.0 / (math.Pow(biasUp*dsmUp, 1.0/float64(c.q+2)) + addon)
		if etaUp > eta {
			eta, order = etaUp, c.q+1
		}
	}

	c.finishSelection(eta, order)
}

func (c *Controller) finishSelection(eta float64, order int) {
	if eta < thresh {
		c.pendingEta = 1
		c.pendingOrder = c.q
	} else {
		eta = math.Min(eta, c.etamax)
		eta = math.Min(eta, c.hmax/c.h)
		eta = math.Max(eta, c.opts.MinStep/c.h)
		c.pendingEta = eta
		c.pendingOrder = order
		if order != c.q {
			c.qwait = order + 1
		}
	}
	c.etamax = c.opts.MaxGrowth
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
