package problems

// Brusselator implements the two-species Brusselator reaction model.
// State: [u, v]
// Equations:
//
//	du/dt = a + u²v - (b+1)u
//	dv/dt = bu - u²v
//
// For b > 1 + a² the fixed point is unstable and the system settles on
// a limit cycle.
type Brusselator struct {
	a, b float64
}

func NewBrusselator() *Brusselator {
	return &Brusselator{a: 1.0, b: 3.0}
}

func (br *Brusselator) Dim() int { return 2 }

func (br *Brusselator) Eval(t float64, y, ydot []float64) error {
	u, v := y[0], y[1]
	ydot[0] = br.a + u*u*v - (br.b+1)*u
	ydot[1] = br.b*u - u*u*v
	return nil
}

func (br *Brusselator) Jac(t float64, y []float64, dfdy [][]float64) error {
	u, v := y[0], y[1]
	dfdy[0][0] = 2*u*v - (br.b + 1)
	dfdy[0][1] = u * u
	dfdy[1][0] = br.b - 2*u*v
	dfdy[1][1] = -u * u
	return nil
}

func (br *Brusselator) DefaultState() []float64 {
	return []float64{1.5, 3.0}
}

// GetParams implements ivp.Configurable
func (br *Brusselator) GetParams() map[string]float64 {
	return map[string]float64{"a": br.a, "b": br.b}
}

// SetParam implements ivp.Configurable
func (br *Brusselator) SetParam(name string, value float64) error {
	switch name {
	case "a":
		br.a = value
	case "b":
		br.b = value
	default:
		return unknownParam(name)
	}
	return nil
}
