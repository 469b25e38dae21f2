package solve

import (
	"context"
	"fmt"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/method"
	"github.com/san-kum/odesim/internal/problems"
	"github.com/san-kum/odesim/internal/stepper"
)

// faultyDecay is exponential decay whose Eval fails for a scripted
// window of calls.
type faultyDecay struct {
	calls     int
	failFrom  int
	failUntil int
	fatal     bool
}

func (f *faultyDecay) Dim() int { return 1 }

func (f *faultyDecay) Eval(t float64, y, ydot []float64) error {
	f.calls++
	if f.calls >= f.failFrom && (f.failUntil == 0 || f.calls <= f.failUntil) {
		if f.fatal {
			return fmt.Errorf("hard failure at call %d", f.calls)
		}
		return fmt.Errorf("transient at call %d: %w", f.calls, ivp.ErrRecoverable)
	}
	ydot[0] = -y[0]
	return nil
}

var _ = Describe("running an initial value problem to a stop time", func() {
	var cfg Config

	BeforeEach(func() {
		cfg = Config{
			Family: method.BDF,
			Tol:    ivp.ScalarTolerances(1e-6, 1e-9, 1),
			Opts:   ivp.DefaultOptions(),
		}
	})

	Describe("a smooth decay problem", func() {
		It("lands exactly on the stop time with tolerance-scale accuracy", func() {
			res, err := New(problems.NewDecay(), cfg).Run(context.Background(), 0, 1, []float64{1})
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Times[len(res.Times)-1]).To(BeNumerically("~", 1.0, 1e-12))
			Expect(res.States[len(res.States)-1][0]).To(BeNumerically("~", math.Exp(-1), 1e-4))

			for i := 1; i < len(res.Times); i++ {
				Expect(res.Times[i]).To(BeNumerically(">", res.Times[i-1]),
					"accepted times must be strictly increasing")
				Expect(res.Times[i]).To(BeNumerically("<=", 1.0+1e-12),
					"the stop time must never be overshot")
			}
			Expect(res.Stats.Steps).To(BeNumerically(">", 0))
		})
	})

	Describe("transient right-hand-side failures", func() {
		It("rejects, shrinks the step, and then accepts", func() {
			// Call 1 is the priming evaluation; calls 2 and 3 are the
			// first evaluations of two consecutive step attempts.
			sys := &faultyDecay{failFrom: 2, failUntil: 3}
			cfg.Opts.InitStep = 0.1

			var kinds []stepper.OutcomeKind
			var acceptedH float64
			s := New(sys, cfg)
			s.SetAttemptHook(func(out stepper.Outcome) {
				if len(kinds) < 3 {
					kinds = append(kinds, out.Kind)
					if out.Kind == stepper.Accepted {
						acceptedH = out.H
					}
				}
			})

			res, err := s.Run(context.Background(), 0, 0.5, []float64{1})
			Expect(err).NotTo(HaveOccurred())

			Expect(kinds).To(Equal([]stepper.OutcomeKind{
				stepper.RejectedConvergence,
				stepper.RejectedConvergence,
				stepper.Accepted,
			}))
			Expect(acceptedH).To(BeNumerically("<", 0.1),
				"the surviving step must be smaller than the one that failed")
			Expect(res.Stats.ConvFails).To(Equal(uint(2)))
			Expect(res.Times[len(res.Times)-1]).To(BeNumerically("~", 0.5, 1e-12))
		})
	})

	Describe("an illegal tolerance configuration", func() {
		It("fails eagerly without taking a step", func() {
			cfg.Tol = ivp.ScalarTolerances(1e-6, -1, 1)

			res, err := New(problems.NewDecay(), cfg).Run(context.Background(), 0, 1, []float64{1})
			Expect(err).To(MatchError(ivp.ErrIllegalInput))
			Expect(res).To(BeNil())
		})
	})

	Describe("a persistently failing right-hand side", func() {
		It("gives up fatally once the step floor is reached", func() {
			sys := &faultyDecay{failFrom: 2}
			cfg.Opts.InitStep = 1e-2
			cfg.Opts.MinStep = 1e-3
			cfg.Opts.MaxConvFails = 1000

			res, err := New(sys, cfg).Run(context.Background(), 0, 1, []float64{1})
			Expect(err).To(MatchError(ivp.ErrStepTooSmall))

			var stepErr *ivp.StepError
			Expect(err).To(BeAssignableToTypeOf(stepErr))
			Expect(res.Stats.Steps).To(Equal(uint(0)))
		})
	})

	Describe("a fatally failing right-hand side", func() {
		It("aborts with the callback error", func() {
			sys := &faultyDecay{failFrom: 2, fatal: true}
			cfg.Opts.InitStep = 0.1

			_, err := New(sys, cfg).Run(context.Background(), 0, 1, []float64{1})
			Expect(err).To(MatchError(ivp.ErrCallbackFatal))
		})
	})
})
