package vec

import "math"

type Serial struct{}

func NewSerial() *Serial { return &Serial{} }

func (s *Serial) Name() string    { return "serial" }
func (s *Serial) Available() bool { return true }
func (s *Serial) Cleanup()        {}

func (s *Serial) Clone(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}

func (s *Serial) Copy(dst, src []float64) { copy(dst, src) }

func (s *Serial) Fill(x []float64, c float64) {
	for i := range x {
		x[i] = c
	}
}

func (s *Serial) Scale(x []float64, c float64) {
	for i := range x {
		x[i] *= c
	}
}

func (s *Serial) AxPy(a float64, x, y []float64) {
	for i := range y {
		y[i] += a * x[i]
	}
}

func (s *Serial) LinSum(a float64, x []float64, b float64, y, out []float64) {
	for i := range out {
		out[i] = a*x[i] + b*y[i]
	}
}

func (s *Serial) Dot(x, y []float64) float64 {
	sum := 0.0
	for i := range x {
		sum += x[i] * y[i]
	}
	return sum
}

func (s *Serial) WrmsNorm(x, w []float64) float64 {
	sum := 0.0
	for i := range x {
		v := x[i] * w[i]
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// LinComb implements the optional fused capability.
func (s *Serial) LinComb(c []float64, xs [][]float64, out []float64) error {
	for i := range out {
		sum := 0.0
		for k := range c {
			sum += c[k] * xs[k][i]
		}
		out[i] = sum
	}
	return nil
}
