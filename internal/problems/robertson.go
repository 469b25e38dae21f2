package problems

// Robertson implements the Robertson chemical kinetics problem, the
// classic stiff benchmark with rate constants spanning nine orders of
// magnitude.
// State: [y1, y2, y3] (concentrations, y1+y2+y3 conserved)
// Equations:
//
//	dy1/dt = -k1·y1 + k3·y2·y3
//	dy2/dt =  k1·y1 - k2·y2² - k3·y2·y3
//	dy3/dt =  k2·y2²
type Robertson struct {
	k1, k2, k3 float64
}

func NewRobertson() *Robertson {
	return &Robertson{k1: 0.04, k2: 3e7, k3: 1e4}
}

func (r *Robertson) Dim() int { return 3 }

func (r *Robertson) Eval(t float64, y, ydot []float64) error {
	ydot[0] = -r.k1*y[0] + r.k3*y[1]*y[2]
	ydot[1] = r.k1*y[0] - r.k2*y[1]*y[1] - r.k3*y[1]*y[2]
	ydot[2] = r.k2 * y[1] * y[1]
	return nil
}

func (r *Robertson) Jac(t float64, y []float64, dfdy [][]float64) error {
	dfdy[0][0], dfdy[0][1], dfdy[0][2] = -r.k1, r.k3*y[2], r.k3*y[1]
	dfdy[1][0] = r.k1
	dfdy[1][1] = -2*r.k2*y[1] - r.k3*y[2]
	dfdy[1][2] = -r.k3 * y[1]
	dfdy[2][0], dfdy[2][1], dfdy[2][2] = 0, 2*r.k2*y[1], 0
	return nil
}

func (r *Robertson) DefaultState() []float64 {
	return []float64{1.0, 0.0, 0.0}
}

// GetParams implements ivp.Configurable
func (r *Robertson) GetParams() map[string]float64 {
	return map[string]float64{"k1": r.k1, "k2": r.k2, "k3": r.k3}
}

// SetParam implements ivp.Configurable
func (r *Robertson) SetParam(name string, value float64) error {
	switch name {
	case "k1":
		r.k1 = value
	case "k2":
		r.k2 = value
	case "k3":
		r.k3 = value
	default:
		return unknownParam(name)
	}
	return nil
}
