package nonlin

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/linalg"
	"github.com/san-kum/odesim/internal/vec"
)

type decay struct{ lambda float64 }

func (d decay) Dim() int { return 1 }

func (d decay) Eval(t float64, y, ydot []float64) error {
	ydot[0] = d.lambda * y[0]
	return nil
}

type quadDecay struct{}

func (quadDecay) Dim() int { return 1 }

func (quadDecay) Eval(t float64, y, ydot []float64) error {
	ydot[0] = -y[0] * y[0]
	return nil
}

// flaky fails its first n evaluations recoverably, then behaves like
// exponential decay.
type flaky struct {
	remaining int
	fatal     bool
}

func (f *flaky) Dim() int { return 1 }

func (f *flaky) Eval(t float64, y, ydot []float64) error {
	if f.remaining > 0 {
		f.remaining--
		if f.fatal {
			return errors.New("hard failure")
		}
		return fmt.Errorf("transient: %w", ivp.ErrRecoverable)
	}
	ydot[0] = -y[0]
	return nil
}

func backwardEulerRequest(ypred, zdot, gamma float64) *Request {
	return &Request{
		T:         0,
		Gamma:     gamma,
		Rl1:       1, // l = (1, 1)
		YPred:     []float64{ypred},
		ZdotPred:  []float64{zdot},
		Weights:   []float64{1},
		ConvCoeff: 0.2, // 0.1 / errCoeff(1)
		MaxIters:  3,
	}
}

// residual of the step equation acor - gamma f(y) + rl1 zdot at the
// returned solution.
func residual(sys ivp.System, req *Request, res *Result) float64 {
	f := make([]float64, len(res.Y))
	if err := sys.Eval(req.T, res.Y, f); err != nil {
		return math.Inf(1)
	}
	return res.Acor[0] - req.Gamma*f[0] + req.Rl1*req.ZdotPred[0]
}

func TestNewton_SolvesLinearStep(t *testing.T) {
	sys := decay{lambda: -1}
	var stats ivp.Stats
	nw := NewNewton(sys, nil, linalg.NewDense(), vec.NewSerial(), &stats)
	if err := nw.Init(1); err != nil {
		t.Fatal(err)
	}
	defer nw.Destroy()

	req := backwardEulerRequest(1.0, -0.04, 0.05)
	res, err := nw.Solve(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Converged {
		t.Fatalf("status = %v, want converged", res.Status)
	}

	// Analytic correction: acor (1+gamma) = -gamma ypred - zdot.
	want := (-0.05 + 0.04) / 1.05
	if math.Abs(res.Acor[0]-want) > 1e-10 {
		t.Errorf("acor = %.12f, want %.12f", res.Acor[0], want)
	}
	if r := residual(sys, req, res); math.Abs(r) > 1e-10 {
		t.Errorf("step equation residual = %g", r)
	}
	if stats.JacSetups != 1 {
		t.Errorf("JacSetups = %d, want 1", stats.JacSetups)
	}
	if stats.LinSolves == 0 || stats.FcnEvals == 0 {
		t.Errorf("counters not bumped: %+v", stats)
	}
}

func TestNewton_SolvesNonlinearStep(t *testing.T) {
	sys := quadDecay{}
	var stats ivp.Stats
	nw := NewNewton(sys, nil, linalg.NewDense(), vec.NewSerial(), &stats)
	if err := nw.Init(1); err != nil {
		t.Fatal(err)
	}
	defer nw.Destroy()

	req := backwardEulerRequest(1.0, -0.08, 0.1)
	// Tight convergence constant so the iteration runs to the residual
	// floor rather than stopping at the usual accuracy margin.
	req.ConvCoeff = 1e-7
	req.MaxIters = 5
	res, err := nw.Solve(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Converged {
		t.Fatalf("status = %v, want converged", res.Status)
	}
	if r := residual(sys, req, res); math.Abs(r) > 1e-8 {
		t.Errorf("step equation residual = %g", r)
	}
	if res.AcorNorm < 0 {
		t.Errorf("AcorNorm = %f", res.AcorNorm)
	}
}

func TestNewton_ReusesMatrixAcrossSolves(t *testing.T) {
	var stats ivp.Stats
	nw := NewNewton(decay{lambda: -1}, nil, linalg.NewDense(), vec.NewSerial(), &stats)
	if err := nw.Init(1); err != nil {
		t.Fatal(err)
	}
	defer nw.Destroy()

	req := backwardEulerRequest(1.0, -0.04, 0.05)
	if _, err := nw.Solve(req); err != nil {
		t.Fatal(err)
	}
	if _, err := nw.Solve(req); err != nil {
		t.Fatal(err)
	}
	if stats.JacSetups != 1 {
		t.Errorf("JacSetups = %d, want 1 (matrix reused at unchanged gamma)", stats.JacSetups)
	}

	nw.RequestSetup()
	if _, err := nw.Solve(req); err != nil {
		t.Fatal(err)
	}
	if stats.JacSetups != 2 {
		t.Errorf("JacSetups = %d, want 2 after explicit setup request", stats.JacSetups)
	}
}

func TestNewton_SetupOnGammaChange(t *testing.T) {
	var stats ivp.Stats
	nw := NewNewton(decay{lambda: -1}, nil, linalg.NewDense(), vec.NewSerial(), &stats)
	if err := nw.Init(1); err != nil {
		t.Fatal(err)
	}
	defer nw.Destroy()

	if _, err := nw.Solve(backwardEulerRequest(1.0, -0.04, 0.05)); err != nil {
		t.Fatal(err)
	}
	// Halving gamma exceeds the staleness threshold.
	if _, err := nw.Solve(backwardEulerRequest(1.0, -0.02, 0.025)); err != nil {
		t.Fatal(err)
	}
	if stats.JacSetups != 2 {
		t.Errorf("JacSetups = %d, want 2 after large gamma change", stats.JacSetups)
	}
}

func TestNewton_RecoverableEvalFailure(t *testing.T) {
	var stats ivp.Stats
	sys := &flaky{remaining: 100}
	nw := NewNewton(sys, nil, linalg.NewDense(), vec.NewSerial(), &stats)
	if err := nw.Init(1); err != nil {
		t.Fatal(err)
	}
	defer nw.Destroy()

	res, err := nw.Solve(backwardEulerRequest(1.0, -0.04, 0.05))
	if err != nil {
		t.Fatalf("recoverable failure must not surface an error: %v", err)
	}
	if res.Status != FailRecoverable {
		t.Errorf("status = %v, want fail-recoverable", res.Status)
	}
}

func TestNewton_FatalEvalFailure(t *testing.T) {
	var stats ivp.Stats
	sys := &flaky{remaining: 100, fatal: true}
	nw := NewNewton(sys, nil, linalg.NewDense(), vec.NewSerial(), &stats)
	if err := nw.Init(1); err != nil {
		t.Fatal(err)
	}
	defer nw.Destroy()

	res, err := nw.Solve(backwardEulerRequest(1.0, -0.04, 0.05))
	if !errors.Is(err, ivp.ErrCallbackFatal) {
		t.Errorf("err = %v, want ErrCallbackFatal", err)
	}
	if res.Status != FailFatal {
		t.Errorf("status = %v, want fail-fatal", res.Status)
	}
}

func TestFixedPoint_Converges(t *testing.T) {
	var stats ivp.Stats
	fp := NewFixedPoint(decay{lambda: -1}, vec.NewSerial(), &stats)
	if err := fp.Init(1); err != nil {
		t.Fatal(err)
	}

	req := backwardEulerRequest(1.0, -0.009, 0.01)
	req.ConvCoeff = 1e-8
	req.MaxIters = 10
	res, err := fp.Solve(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Converged {
		t.Fatalf("status = %v, want converged", res.Status)
	}
	if r := residual(decay{lambda: -1}, req, res); math.Abs(r) > 1e-6 {
		t.Errorf("step equation residual = %g", r)
	}
}

func TestFixedPoint_DivergesOnStiffStep(t *testing.T) {
	// gamma*|lambda| = 10: the fixed-point map is strongly expansive.
	var stats ivp.Stats
	fp := NewFixedPoint(decay{lambda: -100}, vec.NewSerial(), &stats)
	if err := fp.Init(1); err != nil {
		t.Fatal(err)
	}

	req := backwardEulerRequest(1.0, -0.05, 0.1)
	req.MaxIters = 10
	res, err := fp.Solve(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != FailRecoverable {
		t.Errorf("status = %v, want fail-recoverable", res.Status)
	}
}

func TestConvergenceTest(t *testing.T) {
	if !converged(0.01, 1, 0.2) {
		t.Error("small correction must pass")
	}
	if converged(0.5, 1, 0.2) {
		t.Error("large correction must fail")
	}
	// A fast rate relaxes the raw norm requirement.
	if !converged(0.3, 0.1, 0.2) {
		t.Error("rapidly converging iteration must pass")
	}
}
