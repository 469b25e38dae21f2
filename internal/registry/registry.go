// Package registry maps problem names to constructors so the CLI and
// config layer can build systems by name.
package registry

import (
	"fmt"
	"sort"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/problems"
)

type Registry struct {
	problems map[string]func() ivp.System
}

func New() *Registry {
	r := &Registry{
		problems: make(map[string]func() ivp.System),
	}

	r.problems["decay"] = func() ivp.System { return problems.NewDecay() }
	r.problems["oscillator"] = func() ivp.System { return problems.NewOscillator() }
	r.problems["vanderpol"] = func() ivp.System { return problems.NewVanDerPol() }
	r.problems["vanderpol-stiff"] = func() ivp.System { return problems.NewStiffVanDerPol() }
	r.problems["robertson"] = func() ivp.System { return problems.NewRobertson() }
	r.problems["brusselator"] = func() ivp.System { return problems.NewBrusselator() }

	return r
}

func (r *Registry) GetProblem(name string) (ivp.System, error) {
	fn, ok := r.problems[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListProblems() []string {
	names := make([]string, 0, len(r.problems))
	for name := range r.problems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultState returns the conventional initial condition for a named
// problem, or nil when the problem is unknown.
func (r *Registry) DefaultState(name string) []float64 {
	sys, err := r.GetProblem(name)
	if err != nil {
		return nil
	}
	if d, ok := sys.(interface{ DefaultState() []float64 }); ok {
		return d.DefaultState()
	}
	return nil
}
