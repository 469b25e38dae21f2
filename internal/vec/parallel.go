package vec

import (
	"math"
	"runtime"
	"sync"
)

// Below this length the goroutine fan-out costs more than it saves.
const parallelThreshold = 4096

type Parallel struct {
	workers int
	serial  *Serial
}

func NewParallel() *Parallel {
	return &Parallel{
		workers: runtime.NumCPU(),
		serial:  NewSerial(),
	}
}

func (p *Parallel) Name() string    { return "parallel" }
func (p *Parallel) Available() bool { return p.workers > 1 }
func (p *Parallel) Cleanup()        {}

func (p *Parallel) Clone(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}

func (p *Parallel) Copy(dst, src []float64) { copy(dst, src) }

func (p *Parallel) chunked(n int, body func(start, end int)) {
	if n < parallelThreshold {
		body(0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + p.workers - 1) / p.workers

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			start := worker * chunkSize
			end := start + chunkSize
			if start >= n {
				return
			}
			if end > n {
				end = n
			}
			body(start, end)
		}(w)
	}

	wg.Wait()
}

func (p *Parallel) Fill(x []float64, c float64) {
	p.chunked(len(x), func(start, end int) {
		for i := start; i < end; i++ {
			x[i] = c
		}
	})
}

func (p *Parallel) Scale(x []float64, c float64) {
	p.chunked(len(x), func(start, end int) {
		for i := start; i < end; i++ {
			x[i] *= c
		}
	})
}

func (p *Parallel) AxPy(a float64, x, y []float64) {
	p.chunked(len(y), func(start, end int) {
		for i := start; i < end; i++ {
			y[i] += a * x[i]
		}
	})
}

func (p *Parallel) LinSum(a float64, x []float64, b float64, y, out []float64) {
	p.chunked(len(out), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = a*x[i] + b*y[i]
		}
	})
}

func (p *Parallel) reduce(n int, body func(start, end int) float64) float64 {
	if n < parallelThreshold {
		return body(0, n)
	}

	partial := make([]float64, p.workers)
	var wg sync.WaitGroup
	chunkSize := (n + p.workers - 1) / p.workers

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			start := worker * chunkSize
			end := start + chunkSize
			if start >= n {
				return
			}
			if end > n {
				end = n
			}
			partial[worker] = body(start, end)
		}(w)
	}

	wg.Wait()

	total := 0.0
	for _, v := range partial {
		total += v
	}
	return total
}

func (p *Parallel) Dot(x, y []float64) float64 {
	return p.reduce(len(x), func(start, end int) float64 {
		sum := 0.0
		for i := start; i < end; i++ {
			sum += x[i] * y[i]
		}
		return sum
	})
}

func (p *Parallel) WrmsNorm(x, w []float64) float64 {
	sum := p.reduce(len(x), func(start, end int) float64 {
		s := 0.0
		for i := start; i < end; i++ {
			v := x[i] * w[i]
			s += v * v
		}
		return s
	})
	return math.Sqrt(sum / float64(len(x)))
}

// LinComb implements the optional fused capability.
func (p *Parallel) LinComb(c []float64, xs [][]float64, out []float64) error {
	p.chunked(len(out), func(start, end int) {
		for i := start; i < end; i++ {
			sum := 0.0
			for k := range c {
				sum += c[k] * xs[k][i]
			}
			out[i] = sum
		}
	})
	return nil
}
