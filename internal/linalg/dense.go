package linalg

import "math"

// Dense solves the iteration matrix by LU factorization with partial
// pivoting. It is the default backend for small and moderately sized
// systems where fill-in is not a concern.
type Dense struct {
	n    int
	lu   [][]float64
	pivs []int
	x    []float64
}

func NewDense() *Dense { return &Dense{} }

func (d *Dense) Name() string { return "dense-lu" }

func (d *Dense) Init(n int) error {
	d.n = n
	d.lu = NewMatrix(n)
	d.pivs = make([]int, n)
	d.x = make([]float64, n)
	return nil
}

func (d *Dense) Setup(a [][]float64) error {
	n := d.n
	for i := 0; i < n; i++ {
		copy(d.lu[i], a[i])
	}

	for k := 0; k < n; k++ {
		// Partial pivoting on column k.
		p, pmax := k, math.Abs(d.lu[k][k])
		for i := k + 1; i < n; i++ {
			if v := math.Abs(d.lu[i][k]); v > pmax {
				p, pmax = i, v
			}
		}
		d.pivs[k] = p
		if pmax == 0 {
			return ErrSingular
		}
		if p != k {
			d.lu[k], d.lu[p] = d.lu[p], d.lu[k]
		}

		pivInv := 1.0 / d.lu[k][k]
		for i := k + 1; i < n; i++ {
			m := d.lu[i][k] * pivInv
			d.lu[i][k] = m
			if m == 0 {
				continue
			}
			row, src := d.lu[i], d.lu[k]
			for j := k + 1; j < n; j++ {
				row[j] -= m * src[j]
			}
		}
	}
	return nil
}

func (d *Dense) Solve(b []float64) ([]float64, error) {
	n := d.n
	copy(d.x, b)

	// The factorization swaps whole rows, multipliers included, so the
	// stored L is relative to the fully permuted system. Apply every
	// interchange to the right-hand side before substituting.
	for k := 0; k < n; k++ {
		if p := d.pivs[k]; p != k {
			d.x[k], d.x[p] = d.x[p], d.x[k]
		}
	}
	for k := 0; k < n; k++ {
		for i := k + 1; i < n; i++ {
			d.x[i] -= d.lu[i][k] * d.x[k]
		}
	}
	for i := n - 1; i >= 0; i-- {
		sum := d.x[i]
		row := d.lu[i]
		for j := i + 1; j < n; j++ {
			sum -= row[j] * d.x[j]
		}
		d.x[i] = sum / row[i]
	}

	out := make([]float64, n)
	copy(out, d.x)
	return out, nil
}

func (d *Dense) Destroy() {}
