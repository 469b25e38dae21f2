package problems

// VanDerPol implements the Van der Pol oscillator.
// State: [x, y] where y = dx/dt
// Equations:
//
//	dx/dt = y
//	dy/dt = μ(1 - x²)y - x
//
// Stiffness grows with μ; μ = 1000 is the standard stiff benchmark.
type VanDerPol struct {
	mu float64
}

func NewVanDerPol() *VanDerPol {
	return &VanDerPol{mu: 1.0}
}

func NewStiffVanDerPol() *VanDerPol {
	return &VanDerPol{mu: 1000.0}
}

func (v *VanDerPol) Dim() int { return 2 }

func (v *VanDerPol) Eval(t float64, y, ydot []float64) error {
	x, yd := y[0], y[1]
	ydot[0] = yd
	ydot[1] = v.mu*(1-x*x)*yd - x
	return nil
}

func (v *VanDerPol) Jac(t float64, y []float64, dfdy [][]float64) error {
	x, yd := y[0], y[1]
	dfdy[0][0], dfdy[0][1] = 0, 1
	dfdy[1][0] = -2*v.mu*x*yd - 1
	dfdy[1][1] = v.mu * (1 - x*x)
	return nil
}

func (v *VanDerPol) DefaultState() []float64 {
	return []float64{2.0, 0.0}
}

// GetParams implements ivp.Configurable
func (v *VanDerPol) GetParams() map[string]float64 {
	return map[string]float64{"mu": v.mu}
}

// SetParam implements ivp.Configurable
func (v *VanDerPol) SetParam(name string, value float64) error {
	if name == "mu" {
		v.mu = value
		return nil
	}
	return unknownParam(name)
}
