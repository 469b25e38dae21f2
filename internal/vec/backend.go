package vec

// Ops is the required capability set for state-vector arithmetic.
// Every integrator component receives an Ops explicitly; backends carry
// no shared mutable state and may be used from independent solver
// instances concurrently.
type Ops interface {
	Name() string
	Available() bool
	Clone(x []float64) []float64
	Copy(dst, src []float64)
	Fill(x []float64, c float64)
	Scale(x []float64, c float64)
	// AxPy computes y += a*x in place.
	AxPy(a float64, x, y []float64)
	// LinSum computes out = a*x + b*y. out may alias x or y.
	LinSum(a float64, x []float64, b float64, y, out []float64)
	Dot(x, y []float64) float64
	// WrmsNorm is the weighted root-mean-square norm
	// sqrt(sum((x_i*w_i)^2)/n).
	WrmsNorm(x, w []float64) float64
	Cleanup()
}

// Fused is an optional capability. Backends that batch multi-term
// linear combinations can implement it; absence only changes cost,
// never results.
type Fused interface {
	// LinComb computes out = sum_k c[k]*xs[k].
	LinComb(c []float64, xs [][]float64, out []float64) error
}

// LinComb dispatches to the fused capability when the backend provides
// it and composes AxPy calls otherwise.
func LinComb(ops Ops, c []float64, xs [][]float64, out []float64) error {
	if f, ok := ops.(Fused); ok {
		return f.LinComb(c, xs, out)
	}
	ops.Fill(out, 0)
	for k := range c {
		if c[k] != 0 {
			ops.AxPy(c[k], xs[k], out)
		}
	}
	return nil
}

// Auto selects the best available backend for vectors of the given
// length: the chunked multi-goroutine backend for large systems, the
// serial backend otherwise.
func Auto(n int) Ops {
	par := NewParallel()
	if par.Available() && n >= parallelThreshold {
		return par
	}
	return NewSerial()
}
