package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/method"
	"github.com/san-kum/odesim/internal/solve"
)

const (
	DefaultDuration = 10.0
	DefaultRtol     = 1e-6
	DefaultAtol     = 1e-9
)

// Config is the runnable description of one integration: the problem,
// the method stack and the tolerances. Zero numeric fields select the
// solver defaults.
type Config struct {
	Problem   string  `yaml:"problem"`
	Family    string  `yaml:"family"`    // bdf | adams
	Corrector string  `yaml:"corrector"` // newton | functional
	Linear    string  `yaml:"linear"`    // dense | sparse
	Explicit  bool    `yaml:"explicit"`  // rk45 instead of multistep
	Duration  float64 `yaml:"duration"`
	Rtol      float64 `yaml:"rtol"`
	Atol      float64 `yaml:"atol"`

	InitStep float64 `yaml:"init_step"`
	MinStep  float64 `yaml:"min_step"`
	MaxStep  float64 `yaml:"max_step"`
	MaxSteps uint    `yaml:"max_steps"`
	MaxOrder int     `yaml:"max_order"`

	InitState []float64          `yaml:"init_state"`
	Params    map[string]float64 `yaml:"params"`
}

func DefaultConfig() *Config {
	return &Config{
		Problem:   "decay",
		Family:    "bdf",
		Corrector: "newton",
		Linear:    "dense",
		Duration:  DefaultDuration,
		Rtol:      DefaultRtol,
		Atol:      DefaultAtol,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Solve translates the file-level configuration into the solver's
// config for a system of dimension n.
func (c *Config) Solve(n int) (solve.Config, error) {
	out := solve.Config{Explicit: c.Explicit}

	switch c.Family {
	case "", "bdf":
		out.Family = method.BDF
	case "adams":
		out.Family = method.Adams
	default:
		return out, fmt.Errorf("unknown family: %s", c.Family)
	}

	switch c.Corrector {
	case "", "newton":
		out.Corrector = solve.NewtonCorrector
	case "functional":
		out.Corrector = solve.FunctionalCorrector
	default:
		return out, fmt.Errorf("unknown corrector: %s", c.Corrector)
	}

	switch c.Linear {
	case "", "dense":
		out.Linear = solve.DenseLinear
	case "sparse":
		out.Linear = solve.SparseLinear
	default:
		return out, fmt.Errorf("unknown linear solver: %s", c.Linear)
	}

	rtol, atol := c.Rtol, c.Atol
	if rtol == 0 {
		rtol = DefaultRtol
	}
	if atol == 0 {
		atol = DefaultAtol
	}
	out.Tol = ivp.ScalarTolerances(rtol, atol, n)

	out.Opts = ivp.DefaultOptions()
	out.Opts.InitStep = c.InitStep
	if c.MinStep > 0 {
		out.Opts.MinStep = c.MinStep
	}
	out.Opts.MaxStep = c.MaxStep
	if c.MaxSteps > 0 {
		out.Opts.MaxSteps = c.MaxSteps
	}
	out.Opts.MaxOrder = c.MaxOrder

	return out, nil
}
