package linalg

import (
	"math"

	"github.com/san-kum/odesim/internal/ivp"
)

var srur = math.Sqrt(2.2204460492503131e-16)

// FDJacobian fills dfdy with a forward-difference approximation of
// df/dy at (t, y). fy must hold f(t, y); ftmp is scratch of the same
// length. y is perturbed in place and restored. Returns the number of
// derivative evaluations spent.
func FDJacobian(sys ivp.System, t float64, y, fy []float64, dfdy [][]float64, ftmp []float64) (int, error) {
	n := len(y)
	evals := 0
	for j := 0; j < n; j++ {
		yj := y[j]
		inc := srur * math.Abs(yj)
		if inc == 0 {
			inc = srur
		}
		y[j] = yj + inc
		if err := sys.Eval(t, y, ftmp); err != nil {
			y[j] = yj
			return evals, err
		}
		evals++
		y[j] = yj

		incInv := 1.0 / inc
		for i := 0; i < n; i++ {
			dfdy[i][j] = (ftmp[i] - fy[i]) * incInv
		}
	}
	return evals, nil
}

// BuildNewtonMatrix forms M = I - gamma*J into m from the Jacobian j.
func BuildNewtonMatrix(m, j [][]float64, gamma float64) {
	n := len(m)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			m[r][c] = -gamma * j[r][c]
		}
		m[r][r] += 1
	}
}
