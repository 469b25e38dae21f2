package config

var Presets = map[string]map[string]*Config{
	"decay": {
		"default": {
			Problem: "decay", Family: "bdf", Corrector: "newton", Linear: "dense",
			Duration: 5.0, Rtol: 1e-6, Atol: 1e-9,
			InitState: []float64{1.0},
		},
		"loose": {
			Problem: "decay", Family: "adams", Corrector: "functional",
			Duration: 5.0, Rtol: 1e-4, Atol: 1e-6,
			InitState: []float64{1.0},
		},
	},
	"oscillator": {
		"nonstiff": {
			Problem: "oscillator", Family: "adams", Corrector: "functional",
			Duration: 20.0, Rtol: 1e-8, Atol: 1e-10,
			InitState: []float64{1.0, 0.0},
		},
		"explicit": {
			Problem: "oscillator", Explicit: true,
			Duration: 20.0, Rtol: 1e-8, Atol: 1e-10,
			InitState: []float64{1.0, 0.0},
		},
	},
	"vanderpol": {
		"mild": {
			Problem: "vanderpol", Family: "bdf", Corrector: "newton", Linear: "dense",
			Duration: 20.0, Rtol: 1e-6, Atol: 1e-9,
			InitState: []float64{2.0, 0.0},
		},
		"stiff": {
			Problem: "vanderpol-stiff", Family: "bdf", Corrector: "newton", Linear: "dense",
			Duration: 3000.0, Rtol: 1e-6, Atol: 1e-8,
			InitState: []float64{2.0, 0.0},
		},
	},
	"robertson": {
		"kinetics": {
			Problem: "robertson", Family: "bdf", Corrector: "newton", Linear: "sparse",
			Duration: 40.0, Rtol: 1e-6, Atol: 1e-10,
			InitState: []float64{1.0, 0.0, 0.0},
		},
	},
	"brusselator": {
		"limit_cycle": {
			Problem: "brusselator", Family: "bdf", Corrector: "newton", Linear: "dense",
			Duration: 30.0, Rtol: 1e-6, Atol: 1e-9,
			InitState: []float64{1.5, 3.0},
		},
	},
}

func GetPreset(problem, preset string) *Config {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	cfg, ok := problemPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(problem string) []string {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(problemPresets))
	for name := range problemPresets {
		names = append(names, name)
	}
	return names
}
