package problems

import (
	"fmt"

	"github.com/san-kum/odesim/internal/ivp"
)

func unknownParam(name string) error {
	return fmt.Errorf("%w: unknown parameter %q", ivp.ErrIllegalInput, name)
}

// Oscillator implements the undamped harmonic oscillator.
// State: [x, v]
// Equations:
//
//	dx/dt = v
//	dv/dt = -ω²x
type Oscillator struct {
	omega float64
}

func NewOscillator() *Oscillator {
	return &Oscillator{omega: 1.0}
}

func (o *Oscillator) Dim() int { return 2 }

func (o *Oscillator) Eval(t float64, y, ydot []float64) error {
	ydot[0] = y[1]
	ydot[1] = -o.omega * o.omega * y[0]
	return nil
}

func (o *Oscillator) Jac(t float64, y []float64, dfdy [][]float64) error {
	dfdy[0][0], dfdy[0][1] = 0, 1
	dfdy[1][0], dfdy[1][1] = -o.omega*o.omega, 0
	return nil
}

func (o *Oscillator) DefaultState() []float64 {
	return []float64{1.0, 0.0}
}

// GetParams implements ivp.Configurable
func (o *Oscillator) GetParams() map[string]float64 {
	return map[string]float64{"omega": o.omega}
}

// SetParam implements ivp.Configurable
func (o *Oscillator) SetParam(name string, value float64) error {
	if name == "omega" {
		o.omega = value
		return nil
	}
	return unknownParam(name)
}
