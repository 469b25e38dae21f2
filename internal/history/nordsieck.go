// Package history owns the multistep history representation: the
// Nordsieck array of scaled derivatives z[j] ~ h^j y^(j)/j!, one column
// per order up to the current method order.
//
// The store is the only owner of the array. Prediction is pure;
// committing a step, rescaling on a step-size change and order changes
// mutate the array in place with O(q) vector operations.
package history

import (
	"fmt"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/vec"
)

type Store struct {
	ops  vec.Ops
	n    int
	qmax int
	q    int
	z    [][]float64
}

// Prediction is the propagated history for one step attempt. Z[0] is
// the predicted solution, Z[1] the predicted scaled derivative.
type Prediction struct {
	Z [][]float64
}

func New(ops vec.Ops, n, qmax int) *Store {
	z := make([][]float64, qmax+1)
	for j := range z {
		z[j] = make([]float64, n)
	}
	return &Store{ops: ops, n: n, qmax: qmax, z: z}
}

// Init primes the store at order 1 from the initial solution and its
// derivative, for the given first step size.
func (s *Store) Init(y0, ydot0 []float64, h float64) {
	s.ops.Copy(s.z[0], y0)
	s.ops.LinSum(h, ydot0, 0, ydot0, s.z[1])
	for j := 2; j <= s.qmax; j++ {
		s.ops.Fill(s.z[j], 0)
	}
	s.q = 1
}

func (s *Store) Order() int { return s.q }

// Current returns the last accepted solution (column 0). The returned
// slice is owned by the store; callers must not modify it.
func (s *Store) Current() []float64 { return s.z[0] }

// Column returns history column j; read-only for callers.
func (s *Store) Column(j int) []float64 { return s.z[j] }

// Predict propagates the history to the next step time at the current
// order and step size. It is a pure function of the stored history:
// the store itself is not touched, so repeated calls yield identical
// output.
func (s *Store) Predict() *Prediction {
	p := &Prediction{Z: make([][]float64, s.q+1)}
	for j := 0; j <= s.q; j++ {
		p.Z[j] = s.ops.Clone(s.z[j])
	}
	// Pascal-triangle propagation: z_pred = A(q) z.
	for k := 1; k <= s.q; k++ {
		for j := s.q; j >= k; j-- {
			s.ops.AxPy(1, p.Z[j], p.Z[j-1])
		}
	}
	return p
}

// Commit folds an accepted correction into the history: column j
// becomes pred.Z[j] + l[j]*acor. Afterwards column 0 equals the
// accepted solution.
func (s *Store) Commit(pred *Prediction, acor, l []float64) {
	for j := 0; j <= s.q; j++ {
		s.ops.LinSum(1, pred.Z[j], l[j], acor, s.z[j])
	}
}

// Rescale adjusts the history in place for a step-size change by the
// ratio r = h_new/h_old: column j scales by r^j. No recomputation from
// derivative data is ever needed.
func (s *Store) Rescale(r float64) {
	factor := r
	for j := 1; j <= s.q; j++ {
		s.ops.Scale(s.z[j], factor)
		factor *= r
	}
}

// IncreaseOrder expands the active window by one, synthesizing the new
// highest column from the previous step's correction scaled by c.
func (s *Store) IncreaseOrder(c float64, acorPrev []float64) error {
	if s.q >= s.qmax {
		return fmt.Errorf("%w: order increase beyond capacity %d", ivp.ErrIllegalInput, s.qmax)
	}
	s.q++
	if acorPrev == nil {
		s.ops.Fill(s.z[s.q], 0)
		return nil
	}
	s.ops.LinSum(c, acorPrev, 0, acorPrev, s.z[s.q])
	return nil
}

// DecreaseOrder contracts the active window by one: interior column j
// absorbs -adj[j] times the highest column, which is then dropped.
func (s *Store) DecreaseOrder(adj []float64) {
	if s.q <= 1 {
		return
	}
	for j := 2; j < s.q; j++ {
		if adj[j] != 0 {
			s.ops.AxPy(-adj[j], s.z[s.q], s.z[j])
		}
	}
	s.ops.Fill(s.z[s.q], 0)
	s.q--
}
