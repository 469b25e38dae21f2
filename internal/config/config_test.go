package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/method"
	"github.com/san-kum/odesim/internal/solve"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Problem != "decay" {
		t.Errorf("expected problem decay, got %s", cfg.Problem)
	}
	if cfg.Duration <= 0 {
		t.Error("duration should be positive")
	}
	if cfg.Rtol <= 0 || cfg.Atol <= 0 {
		t.Error("tolerances should be positive")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("vanderpol", "stiff")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Problem != "vanderpol-stiff" {
		t.Errorf("expected problem vanderpol-stiff, got %s", cfg.Problem)
	}
	if cfg.Family != "bdf" {
		t.Errorf("stiff preset must use bdf, got %s", cfg.Family)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("decay", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "default"); cfg != nil {
		t.Error("expected nil for nonexistent problem")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("decay")
	if len(presets) == 0 {
		t.Error("expected presets for decay")
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent problem")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := DefaultConfig()
	cfg.Problem = "robertson"
	cfg.Linear = "sparse"
	cfg.InitState = []float64{1, 0, 0}
	cfg.Params = map[string]float64{"k1": 0.05}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Problem != "robertson" || loaded.Linear != "sparse" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if len(loaded.InitState) != 3 {
		t.Errorf("expected 3 initial states, got %d", len(loaded.InitState))
	}
	if loaded.Params["k1"] != 0.05 {
		t.Errorf("expected k1 0.05, got %f", loaded.Params["k1"])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoad_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("problem: oscillator\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Problem != "oscillator" {
		t.Errorf("expected problem oscillator, got %s", cfg.Problem)
	}
	if cfg.Family != "bdf" || cfg.Rtol != DefaultRtol {
		t.Errorf("unset fields should keep defaults: %+v", cfg)
	}
}

func TestSolve_Translation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*testing.T, solve.Config)
	}{
		{"defaults", func(c *Config) {}, func(t *testing.T, s solve.Config) {
			if s.Family != method.BDF || s.Corrector != solve.NewtonCorrector {
				t.Errorf("unexpected stack: %+v", s)
			}
		}},
		{"adams-functional", func(c *Config) {
			c.Family = "adams"
			c.Corrector = "functional"
		}, func(t *testing.T, s solve.Config) {
			if s.Family != method.Adams || s.Corrector != solve.FunctionalCorrector {
				t.Errorf("unexpected stack: %+v", s)
			}
		}},
		{"sparse", func(c *Config) { c.Linear = "sparse" }, func(t *testing.T, s solve.Config) {
			if s.Linear != solve.SparseLinear {
				t.Errorf("expected sparse linear solver")
			}
		}},
		{"explicit", func(c *Config) { c.Explicit = true }, func(t *testing.T, s solve.Config) {
			if !s.Explicit {
				t.Errorf("expected explicit stack")
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			s, err := cfg.Solve(2)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, s)
		})
	}
}

func TestSolve_RejectsUnknownNames(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Family = "bogus" },
		func(c *Config) { c.Corrector = "bogus" },
		func(c *Config) { c.Linear = "bogus" },
	} {
		cfg := DefaultConfig()
		mutate(cfg)
		if _, err := cfg.Solve(1); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestSolve_TolerancesWired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rtol = 1e-4
	cfg.Atol = 1e-7

	s, err := cfg.Solve(3)
	if err != nil {
		t.Fatal(err)
	}
	want := ivp.ScalarTolerances(1e-4, 1e-7, 3)
	if len(s.Tol.Abs) != len(want.Abs) || s.Tol.Rel != want.Rel {
		t.Errorf("tolerances not wired: %+v", s.Tol)
	}
	if s.Tol.Abs[0] != 1e-7 {
		t.Errorf("expected atol 1e-7, got %g", s.Tol.Abs[0])
	}
}
