package method

import (
	"fmt"
	"math"

	"github.com/san-kum/odesim/internal/ivp"
)

// Family selects the multistep formula family.
type Family int

const (
	// BDF are the backward differentiation formulas, orders 1-5,
	// suited to stiff problems.
	BDF Family = iota
	// Adams are the Adams-Moulton formulas, orders 1-12, suited to
	// nonstiff problems.
	Adams
)

func (f Family) String() string {
	switch f {
	case BDF:
		return "bdf"
	case Adams:
		return "adams"
	}
	return "unknown"
}

const (
	MaxOrderBDF   = 5
	MaxOrderAdams = 12

	// Corrector convergence safety factor relative to the error test.
	nlsCoef = 0.1
)

// Coeffs holds the order-dependent constants of one formula at one
// order, for a history of uniformly scaled derivatives.
type Coeffs struct {
	Order int

	// L are the correction coefficients: committing a step folds the
	// corrector output into history column j with weight L[j].
	// L[0] == 1 and gamma = h/L[1].
	L []float64

	// ErrCoeff scales the weighted correction norm into the local
	// error estimate at the current order; ErrCoeffDown and ErrCoeffUp
	// are the analogous constants for the estimates at order-1 and
	// order+1 used by order selection.
	ErrCoeff     float64
	ErrCoeffDown float64
	ErrCoeffUp   float64

	// ConvCoeff is the corrector convergence test constant.
	ConvCoeff float64
}

// Table is the precomputed coefficient table of a formula family up to
// its maximum order, plus the family's step-control constants.
type Table struct {
	Family Family
	QMin   int
	QMax   int

	coeffs []Coeffs
}

// NewTable builds the table for a family. maxOrder <= 0 selects the
// family maximum.
func NewTable(f Family, maxOrder int) (*Table, error) {
	famMax := MaxOrderBDF
	if f == Adams {
		famMax = MaxOrderAdams
	}
	if maxOrder <= 0 {
		maxOrder = famMax
	}
	if maxOrder < 1 || maxOrder > famMax {
		return nil, fmt.Errorf("%w: order window [1,%d] outside [1,%d] for %s",
			ivp.ErrIllegalInput, maxOrder, famMax, f)
	}

	t := &Table{Family: f, QMin: 1, QMax: maxOrder}
	t.coeffs = make([]Coeffs, maxOrder+1)
	for q := 1; q <= maxOrder; q++ {
		if f == Adams {
			t.coeffs[q] = adamsCoeffs(q)
		} else {
			t.coeffs[q] = bdfCoeffs(q)
		}
	}
	return t, nil
}

// ForOrder returns the coefficients at order q.
func (t *Table) ForOrder(q int) Coeffs {
	return t.coeffs[q]
}

// IncreaseCoeff is the factor applied to the last correction when
// synthesizing the new highest history column on an order increase.
func (t *Table) IncreaseCoeff(q int) float64 {
	return t.coeffs[q].ErrCoeff
}

// DecreaseCoeffs returns the adjustment coefficients applied to the
// interior history columns before dropping the highest one on an order
// decrease: column j receives -adj[j] times column q, for 2 <= j < q.
func (t *Table) DecreaseCoeffs(q int) []float64 {
	adj := make([]float64, q+1)
	if q <= 2 {
		return adj
	}
	adj[2] = 1
	for j := 1; j <= q-2; j++ {
		xi := float64(j)
		for i := j + 2; i >= 2; i-- {
			adj[i] = adj[i]*xi + adj[i-1]
		}
	}
	return adj
}

// bdfCoeffs generates the fixed-leading-coefficient BDF constants at
// order q for a uniform step history. The correction polynomial is the
// product of the factors (1 + x/xi_j) with xi_j = j.
func bdfCoeffs(q int) Coeffs {
	l := make([]float64, q+1)
	l[0], l[1] = 1, 1

	alpha0, alpha0Hat := -1.0, -1.0
	xiInv, xiStarInv := 1.0, 1.0

	if q > 1 {
		for j := 2; j < q; j++ {
			xiInv = 1.0 / float64(j)
			alpha0 -= xiInv
			for i := j; i >= 1; i-- {
				l[i] += l[i-1] * xiInv
			}
		}

		alpha0 -= 1.0 / float64(q)
		xiStarInv = -l[1] - alpha0
		xiInv = 1.0 / float64(q)
		alpha0Hat = -l[1] - xiInv
		for i := q; i >= 1; i-- {
			l[i] += l[i-1] * xiStarInv
		}
	}

	a1 := 1 - alpha0Hat + alpha0
	a2 := 1 + float64(q)*a1

	errCoeff := math.Abs(a1 / (alpha0 * a2))

	errDown := 1.0
	if q > 1 {
		c := xiStarInv / l[q]
		a3 := alpha0 + 1.0/float64(q)
		a4 := alpha0Hat + xiInv
		errDown = math.Abs(c * (1 - a4 + a3) / a3)
	}

	xiInvUp := 1.0 / float64(q+1)
	a5 := alpha0 - xiInvUp
	a6 := alpha0Hat - xiInvUp
	errUp := math.Abs((1 - a6 + a5) / a2 / (xiInvUp * float64(q+2) * a5))

	return Coeffs{
		Order:        q,
		L:            l,
		ErrCoeff:     errCoeff,
		ErrCoeffDown: errDown,
		ErrCoeffUp:   errUp,
		ConvCoeff:    nlsCoef / errCoeff,
	}
}

// adamsCoeffs generates the Adams-Moulton constants at order q for a
// uniform step history, by integrating the product polynomial
// of the factors (1 + x/xi_j).
func adamsCoeffs(q int) Coeffs {
	if q == 1 {
		return Coeffs{
			Order:        1,
			L:            []float64{1, 1},
			ErrCoeff:     0.5,
			ErrCoeffDown: 1,
			ErrCoeffUp:   1.0 / 12.0,
			ConvCoeff:    nlsCoef / 0.5,
		}
	}

	m := make([]float64, q+1)
	m[0] = 1

	errDown := 1.0
	hsum := 1.0
	for j := 1; j < q; j++ {
		if j == q-1 {
			sum := altSum(q-2, m, 2)
			errDown = float64(q) * sum / m[q-2]
		}
		xiInv := 1.0 / hsum
		for i := j; i >= 1; i-- {
			m[i] += m[i-1] * xiInv
		}
		hsum += 1.0
	}

	m0 := altSum(q-1, m, 1)
	m1 := altSum(q-1, m, 2)
	m0Inv := 1.0 / m0

	l := make([]float64, q+1)
	l[0] = 1
	for i := 1; i <= q; i++ {
		l[i] = m0Inv * m[i-1] / float64(i)
	}

	xi := hsum
	errCoeff := math.Abs(m1 * m0Inv / xi)

	xiInv := 1.0 / xi
	for i := q; i >= 1; i-- {
		m[i] += m[i-1] * xiInv
	}
	m2 := altSum(q, m, 2)
	errUp := math.Abs(m2 * m0Inv / float64(q+1))

	return Coeffs{
		Order:        q,
		L:            l,
		ErrCoeff:     errCoeff,
		ErrCoeffDown: math.Abs(errDown),
		ErrCoeffUp:   errUp,
		ConvCoeff:    nlsCoef / errCoeff,
	}
}

// altSum is the alternating sum a[0]/k - a[1]/(k+1) + a[2]/(k+2) - ...
// through index iend.
func altSum(iend int, a []float64, k int) float64 {
	if iend < 0 {
		return 0
	}
	sum, sign := 0.0, 1.0
	for i := 0; i <= iend; i++ {
		sum += sign * a[i] / float64(i+k)
		sign = -sign
	}
	return sum
}
