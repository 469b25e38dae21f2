package stepper

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/linalg"
	"github.com/san-kum/odesim/internal/method"
	"github.com/san-kum/odesim/internal/nonlin"
	"github.com/san-kum/odesim/internal/vec"
)

type decay struct{ lambda float64 }

func (d decay) Dim() int { return 1 }

func (d decay) Eval(t float64, y, ydot []float64) error {
	ydot[0] = d.lambda * y[0]
	return nil
}

// stubCorrector returns a scripted outcome, bypassing the real
// iteration so the controller's reaction can be tested in isolation.
type stubCorrector struct {
	status   nonlin.Status
	acorNorm float64
	setups   int
}

func (s *stubCorrector) Name() string     { return "stub" }
func (s *stubCorrector) Init(n int) error { return nil }
func (s *stubCorrector) RequestSetup()    { s.setups++ }
func (s *stubCorrector) Destroy()         {}

func (s *stubCorrector) Solve(req *nonlin.Request) (*nonlin.Result, error) {
	if s.status != nonlin.Converged {
		return &nonlin.Result{Status: s.status}, nil
	}
	n := len(req.YPred)
	y := make([]float64, n)
	copy(y, req.YPred)
	return &nonlin.Result{
		Status:   nonlin.Converged,
		Y:        y,
		Acor:     make([]float64, n),
		AcorNorm: s.acorNorm,
		Iters:    1,
	}, nil
}

func bdfTable(t *testing.T) *method.Table {
	t.Helper()
	tab, err := method.NewTable(method.BDF, 0)
	if err != nil {
		t.Fatal(err)
	}
	return tab
}

func newtonController(t *testing.T, sys ivp.System, opts ivp.Options) *Controller {
	t.Helper()
	ops := vec.NewSerial()
	stats := &ivp.Stats{}
	corr := nonlin.NewNewton(sys, nil, linalg.NewDense(), ops, stats)
	tol := ivp.ScalarTolerances(1e-6, 1e-8, sys.Dim())
	return New(sys, bdfTable(t), corr, ops, tol, opts, stats)
}

func stubController(t *testing.T, sys ivp.System, stub *stubCorrector, opts ivp.Options) *Controller {
	t.Helper()
	tol := ivp.ScalarTolerances(1e-6, 1e-8, sys.Dim())
	return New(sys, bdfTable(t), stub, vec.NewSerial(), tol, opts, nil)
}

func TestEstimate(t *testing.T) {
	if got := Estimate(2.0, 0.5); got != 1.0 {
		t.Errorf("Estimate = %f, want 1", got)
	}
	// The acceptance boundary is exactly 1: just below passes, just
	// above fails.
	if Estimate(1.999999, 0.5) > 1 {
		t.Error("estimate just below the boundary must pass")
	}
	if Estimate(2.000001, 0.5) <= 1 {
		t.Error("estimate just above the boundary must fail")
	}
}

func TestInit_RejectsBadTolerances(t *testing.T) {
	c := newtonController(t, decay{lambda: -1}, ivp.DefaultOptions())
	c.tol = ivp.ScalarTolerances(1e-6, -1, 1)

	err := c.Init(0, []float64{1})
	if !errors.Is(err, ivp.ErrIllegalInput) {
		t.Errorf("err = %v, want ErrIllegalInput", err)
	}
	if c.Stats().Steps != 0 {
		t.Error("no step may be taken on illegal input")
	}
}

func TestInit_RejectsDimensionMismatch(t *testing.T) {
	c := newtonController(t, decay{lambda: -1}, ivp.DefaultOptions())
	if err := c.Init(0, []float64{1, 2}); !errors.Is(err, ivp.ErrIllegalInput) {
		t.Errorf("err = %v, want ErrIllegalInput", err)
	}
}

func TestInit_EstimatesFirstStep(t *testing.T) {
	c := newtonController(t, decay{lambda: -1}, ivp.DefaultOptions())
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}
	h := c.NextStep()
	if h <= 0 || h > 1 {
		t.Errorf("estimated first step %g out of plausible range", h)
	}
}

func TestAttemptStep_AdvancesMonotonically(t *testing.T) {
	c := newtonController(t, decay{lambda: -1}, ivp.DefaultOptions())
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	prev := c.Time()
	for i := 0; i < 200; i++ {
		out, err := c.AttemptStep()
		if err != nil {
			t.Fatal(err)
		}
		if out.Kind != Accepted {
			continue
		}
		if out.T <= prev {
			t.Fatalf("time not strictly increasing: %g after %g", out.T, prev)
		}
		if out.Dsm > 1 {
			t.Fatalf("accepted step with dsm = %g > 1", out.Dsm)
		}
		if out.Order < 1 || out.Order > method.MaxOrderBDF {
			t.Fatalf("order %d out of bounds", out.Order)
		}
		prev = out.T
	}

	// The trajectory must track exp(-t) to within tolerance-scale
	// accuracy.
	want := math.Exp(-c.Time())
	if diff := math.Abs(c.Current()[0] - want); diff > 1e-4 {
		t.Errorf("y(%g) = %g, want %g (diff %g)", c.Time(), c.Current()[0], want, diff)
	}
	if c.Stats().Steps == 0 {
		t.Error("no accepted steps recorded")
	}
}

func TestAttemptStep_OrderClimbsUnderSmoothness(t *testing.T) {
	c := newtonController(t, decay{lambda: -1}, ivp.DefaultOptions())
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	maxOrder := 1
	for i := 0; i < 300; i++ {
		out, err := c.AttemptStep()
		if err != nil {
			t.Fatal(err)
		}
		if out.Kind == Accepted && out.Order > maxOrder {
			maxOrder = out.Order
		}
	}
	if maxOrder < 2 {
		t.Errorf("order never rose above 1 on a smooth problem")
	}
}

func TestConvergenceFailure_ShrinksStepAndRefreshes(t *testing.T) {
	stub := &stubCorrector{status: nonlin.FailRecoverable}
	opts := ivp.DefaultOptions()
	opts.InitStep = 0.1
	c := stubController(t, decay{lambda: -1}, stub, opts)
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	out, err := c.AttemptStep()
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != RejectedConvergence {
		t.Fatalf("kind = %v, want rejected-convergence", out.Kind)
	}
	if out.T != 0 {
		t.Errorf("rejection moved time to %g", out.T)
	}
	if got := c.NextStep(); math.Abs(got-0.025) > 1e-12 {
		t.Errorf("next step = %g, want quarter of 0.1", got)
	}
	if stub.setups != 1 {
		t.Errorf("setup requests = %d, want 1", stub.setups)
	}
}

func TestConvergenceFailure_ExhaustionIsFatal(t *testing.T) {
	stub := &stubCorrector{status: nonlin.FailRecoverable}
	opts := ivp.DefaultOptions()
	opts.InitStep = 0.1
	c := stubController(t, decay{lambda: -1}, stub, opts)
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	var fatal error
	rejections := 0
	for i := 0; i < 50; i++ {
		out, err := c.AttemptStep()
		if out.Kind == RejectedConvergence {
			rejections++
		}
		if err != nil {
			fatal = err
			break
		}
	}
	if !errors.Is(fatal, ivp.ErrConvergence) {
		t.Fatalf("err = %v, want ErrConvergence", fatal)
	}
	if rejections != opts.MaxConvFails {
		t.Errorf("rejections = %d, want %d", rejections, opts.MaxConvFails)
	}

	var stepErr *ivp.StepError
	if !errors.As(fatal, &stepErr) {
		t.Fatal("fatal error must carry step context")
	}
	if stepErr.ConvFails != opts.MaxConvFails {
		t.Errorf("StepError.ConvFails = %d, want %d", stepErr.ConvFails, opts.MaxConvFails)
	}
}

func TestStepFloor_IsFatal(t *testing.T) {
	stub := &stubCorrector{status: nonlin.FailRecoverable}
	opts := ivp.DefaultOptions()
	opts.InitStep = 1e-3
	opts.MinStep = 1e-4
	opts.MaxConvFails = 100
	c := stubController(t, decay{lambda: -1}, stub, opts)
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	var fatal error
	for i := 0; i < 100; i++ {
		if _, err := c.AttemptStep(); err != nil {
			fatal = err
			break
		}
	}
	if !errors.Is(fatal, ivp.ErrStepTooSmall) {
		t.Errorf("err = %v, want ErrStepTooSmall", fatal)
	}
}

func TestErrorTestFailure_ReducesStepThenOrder(t *testing.T) {
	stub := &stubCorrector{status: nonlin.Converged, acorNorm: 1e6}
	opts := ivp.DefaultOptions()
	opts.InitStep = 0.1
	c := stubController(t, decay{lambda: -1}, stub, opts)
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	out, err := c.AttemptStep()
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != RejectedErrorTest {
		t.Fatalf("kind = %v, want rejected-error-test", out.Kind)
	}
	if out.Dsm <= 1 {
		t.Errorf("Dsm = %g, want > 1", out.Dsm)
	}
	next := c.NextStep()
	if next >= 0.1*0.2+1e-12 || next < 0.1*0.1-1e-12 {
		t.Errorf("next step = %g, want within [0.01, 0.02]", next)
	}
}

func TestErrorTestFailure_ExhaustionIsFatal(t *testing.T) {
	stub := &stubCorrector{status: nonlin.Converged, acorNorm: 1e6}
	opts := ivp.DefaultOptions()
	opts.InitStep = 0.1
	c := stubController(t, decay{lambda: -1}, stub, opts)
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	var fatal error
	rejections := 0
	for i := 0; i < 50; i++ {
		out, err := c.AttemptStep()
		if out.Kind == RejectedErrorTest {
			rejections++
		}
		if err != nil {
			fatal = err
			break
		}
	}
	if !errors.Is(fatal, ivp.ErrErrorTest) {
		t.Fatalf("err = %v, want ErrErrorTest", fatal)
	}
	if rejections != opts.MaxErrFails {
		t.Errorf("rejections = %d, want %d", rejections, opts.MaxErrFails)
	}
}

func TestGrowthFrozenAfterFailure(t *testing.T) {
	stub := &stubCorrector{status: nonlin.FailRecoverable}
	opts := ivp.DefaultOptions()
	opts.InitStep = 0.1
	c := stubController(t, decay{lambda: -1}, stub, opts)
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.AttemptStep(); err != nil {
		t.Fatal(err)
	}
	// Let the retry succeed with a clean correction.
	stub.status = nonlin.Converged
	out, err := c.AttemptStep()
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != Accepted {
		t.Fatalf("kind = %v, want accepted", out.Kind)
	}
	// The step after a failure holds h rather than growing.
	if got := c.NextStep(); math.Abs(got-out.H) > 1e-15 {
		t.Errorf("next step = %g, want held at %g", got, out.H)
	}
}

func TestLimitStepTo_NeverOvershoots(t *testing.T) {
	c := newtonController(t, decay{lambda: -1}, ivp.DefaultOptions())
	if err := c.Init(0, []float64{1}); err != nil {
		t.Fatal(err)
	}

	const tstop = 0.5
	for i := 0; i < 10000; i++ {
		if !c.LimitStepTo(tstop) {
			break
		}
		if _, err := c.AttemptStep(); err != nil {
			t.Fatal(err)
		}
		if c.Time() > tstop+1e-12 {
			t.Fatalf("overshot tstop: t = %.15g", c.Time())
		}
	}
	if math.Abs(c.Time()-tstop) > 1e-10 {
		t.Errorf("final time %.15g, want %.15g", c.Time(), tstop)
	}
}

func TestAttemptStep_RequiresInit(t *testing.T) {
	c := newtonController(t, decay{lambda: -1}, ivp.DefaultOptions())
	if _, err := c.AttemptStep(); !errors.Is(err, ivp.ErrIllegalInput) {
		t.Errorf("err = %v, want ErrIllegalInput", err)
	}
}
