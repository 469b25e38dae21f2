package problems

// Decay implements scalar exponential decay.
// State: [y]
// Equation:
//
//	dy/dt = -λy
//
// Exact solution y(t) = y0·exp(-λt), which makes it the accuracy
// baseline.
type Decay struct {
	lambda float64
}

func NewDecay() *Decay {
	return &Decay{lambda: 1.0}
}

func (d *Decay) Dim() int { return 1 }

func (d *Decay) Eval(t float64, y, ydot []float64) error {
	ydot[0] = -d.lambda * y[0]
	return nil
}

func (d *Decay) Jac(t float64, y []float64, dfdy [][]float64) error {
	dfdy[0][0] = -d.lambda
	return nil
}

func (d *Decay) DefaultState() []float64 {
	return []float64{1.0}
}

// GetParams implements ivp.Configurable
func (d *Decay) GetParams() map[string]float64 {
	return map[string]float64{"lambda": d.lambda}
}

// SetParam implements ivp.Configurable
func (d *Decay) SetParam(name string, value float64) error {
	if name == "lambda" {
		d.lambda = value
		return nil
	}
	return unknownParam(name)
}
