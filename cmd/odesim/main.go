package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/odesim/internal/config"
	"github.com/san-kum/odesim/internal/export"
	"github.com/san-kum/odesim/internal/ivp"
	"github.com/san-kum/odesim/internal/registry"
	"github.com/san-kum/odesim/internal/solve"
	"github.com/san-kum/odesim/internal/storage"
	"github.com/san-kum/odesim/internal/tui"
)

var (
	dataDir    string
	duration   float64
	rtol       float64
	atol       float64
	family     string
	corrector  string
	linear     string
	explicit   bool
	initStep   float64
	minStep    float64
	maxStep    float64
	maxSteps   uint
	maxOrder   int
	initState  []float64
	paramFlags []string
	configFile string
	preset     string
	// plot axes
	xAxis int
	yAxis int
	// image rendering
	outPath  string
	plotKind string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "odesim",
		Short: "adaptive ODE integration lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".odesim", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "integrate a problem and store the run",
		Args:  cobra.ExactArgs(1),
		RunE:  runProblem,
	}
	addSolverFlags(runCmd)
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "terminal phase space plot",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "component for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 1, "component for y-axis")

	renderCmd := &cobra.Command{
		Use:   "render [run_id]",
		Short: "render a run to an image file",
		Args:  cobra.ExactArgs(1),
		RunE:  renderRun,
	}
	renderCmd.Flags().StringVar(&outPath, "out", "run.png", "output file (extension selects format)")
	renderCmd.Flags().StringVar(&plotKind, "kind", "trajectory", "trajectory | steps | phase")
	renderCmd.Flags().IntVar(&xAxis, "x-axis", 0, "component for x-axis (phase)")
	renderCmd.Flags().IntVar(&yAxis, "y-axis", 1, "component for y-axis (phase)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	compareCmd := &cobra.Command{
		Use:   "compare [problem] [stack1] [stack2] ...",
		Short: "compare method stacks on the same problem",
		Long:  "Stacks are named family-corrector, e.g. bdf-newton, adams-functional, or rk45.",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareStacks,
	}
	compareCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "stop time")
	compareCmd.Flags().Float64Var(&rtol, "rtol", config.DefaultRtol, "relative tolerance")
	compareCmd.Flags().Float64Var(&atol, "atol", config.DefaultAtol, "absolute tolerance")

	presetsCmd := &cobra.Command{
		Use:   "presets [problem]",
		Short: "list available presets for a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for problem: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	problemsCmd := &cobra.Command{
		Use:   "problems",
		Short: "list available problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range registry.New().ListProblems() {
				fmt.Println(name)
			}
			return nil
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live [problem]",
		Short: "integrate with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	addSolverFlags(liveCmd)
	liveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	liveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, phaseCmd, renderCmd, exportCmd,
		exportCSVCmd, exportJSONCmd, compareCmd, presetsCmd, problemsCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSolverFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "stop time")
	cmd.Flags().Float64Var(&rtol, "rtol", config.DefaultRtol, "relative tolerance")
	cmd.Flags().Float64Var(&atol, "atol", config.DefaultAtol, "absolute tolerance")
	cmd.Flags().StringVar(&family, "family", "bdf", "formula family (bdf|adams)")
	cmd.Flags().StringVar(&corrector, "corrector", "newton", "corrector (newton|functional)")
	cmd.Flags().StringVar(&linear, "linear", "dense", "linear solver (dense|sparse)")
	cmd.Flags().BoolVar(&explicit, "explicit", false, "use the explicit RK45 pair")
	cmd.Flags().Float64Var(&initStep, "init-step", 0, "initial step size (0 = estimate)")
	cmd.Flags().Float64Var(&minStep, "min-step", 0, "minimum step size")
	cmd.Flags().Float64Var(&maxStep, "max-step", 0, "maximum step size")
	cmd.Flags().UintVar(&maxSteps, "max-steps", 0, "step budget")
	cmd.Flags().IntVar(&maxOrder, "max-order", 0, "maximum method order")
	cmd.Flags().Float64SliceVar(&initState, "state", nil, "initial state (comma-separated)")
	cmd.Flags().StringArrayVar(&paramFlags, "param", nil, "problem parameter name=value (repeatable)")
}

// buildConfig resolves the effective configuration: preset, then
// config file, then explicitly set flags.
func buildConfig(cmd *cobra.Command, problem string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Problem = problem

	if preset != "" {
		p := config.GetPreset(problem, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(problem))
		}
		*cfg = *p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		loaded.Problem = cfg.Problem
		*cfg = *loaded
	}

	if cmd.Flags().Changed("time") {
		cfg.Duration = duration
	}
	if cmd.Flags().Changed("rtol") {
		cfg.Rtol = rtol
	}
	if cmd.Flags().Changed("atol") {
		cfg.Atol = atol
	}
	if cmd.Flags().Changed("family") {
		cfg.Family = family
	}
	if cmd.Flags().Changed("corrector") {
		cfg.Corrector = corrector
	}
	if cmd.Flags().Changed("linear") {
		cfg.Linear = linear
	}
	if cmd.Flags().Changed("explicit") {
		cfg.Explicit = explicit
	}
	if cmd.Flags().Changed("init-step") {
		cfg.InitStep = initStep
	}
	if cmd.Flags().Changed("min-step") {
		cfg.MinStep = minStep
	}
	if cmd.Flags().Changed("max-step") {
		cfg.MaxStep = maxStep
	}
	if cmd.Flags().Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}
	if cmd.Flags().Changed("max-order") {
		cfg.MaxOrder = maxOrder
	}
	if cmd.Flags().Changed("state") {
		cfg.InitState = initState
	}
	if cmd.Flags().Changed("param") {
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		for _, kv := range paramFlags {
			name, value, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("malformed --param %q, want name=value", kv)
			}
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed --param %q: %w", kv, err)
			}
			cfg.Params[name] = v
		}
	}

	return cfg, nil
}

// prepare builds the system and solver configuration for one run.
func prepare(cfg *config.Config) (ivp.System, []float64, solve.Config, error) {
	reg := registry.New()

	sys, err := reg.GetProblem(cfg.Problem)
	if err != nil {
		return nil, nil, solve.Config{}, err
	}

	for name, value := range cfg.Params {
		c, ok := sys.(ivp.Configurable)
		if !ok {
			return nil, nil, solve.Config{}, fmt.Errorf("problem %s has no adjustable parameters", cfg.Problem)
		}
		if err := c.SetParam(name, value); err != nil {
			return nil, nil, solve.Config{}, err
		}
	}

	y0 := cfg.InitState
	if len(y0) == 0 {
		y0 = reg.DefaultState(cfg.Problem)
	}
	if len(y0) != sys.Dim() {
		return nil, nil, solve.Config{}, fmt.Errorf("initial state has %d components, problem needs %d", len(y0), sys.Dim())
	}

	sc, err := cfg.Solve(sys.Dim())
	if err != nil {
		return nil, nil, solve.Config{}, err
	}
	return sys, y0, sc, nil
}

func runProblem(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}

	sys, y0, sc, err := prepare(cfg)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("integrating %s to t=%g...\n", cfg.Problem, cfg.Duration)
	start := time.Now()

	result, err := solve.New(sys, sc).Run(context.Background(), 0, cfg.Duration, y0)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(storage.RunMetadata{
		Problem:   cfg.Problem,
		Family:    cfg.Family,
		Corrector: cfg.Corrector,
		Linear:    cfg.Linear,
		Explicit:  cfg.Explicit,
		Duration:  cfg.Duration,
		Rtol:      cfg.Rtol,
		Atol:      cfg.Atol,
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d (conv fails %d, err fails %d)\n",
		result.Stats.Steps, result.Stats.ConvFails, result.Stats.ErrTestFails)
	fmt.Printf("rhs evals: %d, jacobian setups: %d, linear solves: %d\n",
		result.Stats.FcnEvals, result.Stats.JacSetups, result.Stats.LinSolves)
	fmt.Printf("final order: %d, last step: %.3e\n",
		result.Stats.LastOrder, result.Stats.LastStep)

	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tTIME\tDURATION\tFAMILY\tCORRECTOR\tSTEPS")

	for _, run := range runs {
		fam := run.Family
		if run.Explicit {
			fam = "rk45"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\t%d\n",
			run.ID,
			run.Problem,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			fam,
			run.Corrector,
			run.Stats.Steps,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("problem: %s\n", meta.Problem)
	fmt.Printf("samples: %d\n\n", len(states))

	numVars := len(states[0])
	if numVars > 6 {
		numVars = 6
	}

	for varIdx := 0; varIdx < numVars; varIdx++ {
		data := make([]float64, len(states))
		for i := range states {
			if varIdx < len(states[i]) {
				data[i] = states[i][varIdx]
			}
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("y%d vs time", varIdx)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	// Accepted steps are non-uniform, so the step sizes themselves are
	// worth a plot.
	if len(times) > 2 {
		steps := make([]float64, len(times)-1)
		for i := 1; i < len(times); i++ {
			steps[i-1] = times[i] - times[i-1]
		}
		graph := asciigraph.Plot(steps,
			asciigraph.Height(6),
			asciigraph.Width(80),
			asciigraph.Caption("accepted step size"),
		)
		fmt.Println(graph)
	}

	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}
	if len(states[0]) <= xAxis || len(states[0]) <= yAxis {
		return fmt.Errorf("state dimension too small for selected axes")
	}

	fmt.Printf("phase space plot: %s (%s)\n", meta.ID, meta.Problem)
	fmt.Printf("x-axis: y%d, y-axis: y%d\n\n", xAxis, yAxis)

	xMin, xMax := states[0][xAxis], states[0][xAxis]
	yMin, yMax := states[0][yAxis], states[0][yAxis]
	for _, s := range states {
		if s[xAxis] < xMin {
			xMin = s[xAxis]
		}
		if s[xAxis] > xMax {
			xMax = s[xAxis]
		}
		if s[yAxis] < yMin {
			yMin = s[yAxis]
		}
		if s[yAxis] > yMax {
			yMax = s[yAxis]
		}
	}
	xRange, yRange := xMax-xMin, yMax-yMin
	if xRange == 0 {
		xRange = 1
	}
	if yRange == 0 {
		yRange = 1
	}

	const width, height = 70, 20
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for i, s := range states {
		px := int(float64(width-1) * (s[xAxis] - xMin) / xRange)
		py := height - 1 - int(float64(height-1)*(s[yAxis]-yMin)/yRange)
		if px < 0 || px >= width || py < 0 || py >= height {
			continue
		}
		switch {
		case i < len(states)/3:
			canvas[py][px] = '.'
		case i < 2*len(states)/3:
			canvas[py][px] = 'o'
		default:
			canvas[py][px] = '●'
		}
	}

	fmt.Printf("  %.2f ┌%s┐\n", yMax, strings.Repeat("─", width))
	for i := range canvas {
		if i == height/2 {
			fmt.Printf("  %.2f │%s│\n", (yMax+yMin)/2, string(canvas[i]))
		} else {
			fmt.Printf("       │%s│\n", string(canvas[i]))
		}
	}
	fmt.Printf("  %.2f └%s┘\n", yMin, strings.Repeat("─", width))
	fmt.Printf("       %.2f%s%.2f\n", xMin, strings.Repeat(" ", width-20), xMax)
	fmt.Printf("\nLegend: . = early, o = middle, ● = late\n")

	return nil
}

func renderRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s (%s)", meta.Problem, meta.ID)
	switch plotKind {
	case "trajectory":
		err = export.Trajectory(outPath, title, times, states)
	case "steps":
		err = export.StepSizes(outPath, title, times)
	case "phase":
		err = export.Phase(outPath, title, states, xAxis, yAxis)
	default:
		return fmt.Errorf("unknown plot kind: %s", plotKind)
	}
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	states, times, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to export")
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{"time"}
	for i := range states[0] {
		header = append(header, fmt.Sprintf("y%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range states {
		row := []string{strconv.FormatFloat(times[i], 'g', 17, 64)}
		for _, val := range states[i] {
			row = append(row, strconv.FormatFloat(val, 'g', 17, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	states, times, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}

	result := &ivp.Result{Times: times, States: states, Stats: meta.Stats}
	return storage.ExportJSONStdout(*meta, result)
}

// compareStacks runs the same problem through several method stacks
// and tabulates accuracy and cost.
func compareStacks(cmd *cobra.Command, args []string) error {
	problem := args[0]
	stacks := args[1:]

	reg := registry.New()
	y0 := reg.DefaultState(problem)
	if y0 == nil {
		return fmt.Errorf("unknown problem: %s", problem)
	}

	fmt.Printf("comparing stacks for %s (t=%g, rtol=%g, atol=%g)\n\n", problem, duration, rtol, atol)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STACK\tFINAL_Y0\tSTEPS\tRHS_EVALS\tJAC_SETUPS\tTIME")

	for _, name := range stacks {
		cfg := config.DefaultConfig()
		cfg.Problem = problem
		cfg.Rtol = rtol
		cfg.Atol = atol

		switch name {
		case "rk45":
			cfg.Explicit = true
		default:
			fam, corr, ok := strings.Cut(name, "-")
			if !ok {
				fmt.Fprintf(w, "%s\terror: want family-corrector or rk45\n", name)
				continue
			}
			cfg.Family = fam
			cfg.Corrector = corr
		}

		sys, state, sc, err := prepare(cfg)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}

		start := time.Now()
		result, err := solve.New(sys, sc).Run(context.Background(), 0, duration, state)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}

		final := result.States[len(result.States)-1][0]
		fmt.Fprintf(w, "%s\t%.6e\t%d\t%d\t%d\t%v\n",
			name, final, result.Stats.Steps, result.Stats.FcnEvals,
			result.Stats.JacSetups, elapsed.Round(time.Microsecond))
	}

	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}

	sys, y0, sc, err := prepare(cfg)
	if err != nil {
		return err
	}

	events := make(chan tui.StepEvent, 64)
	done := make(chan error, 1)

	s := solve.New(sys, sc)
	// The stats hook fires before the observer on the same goroutine,
	// so the observer always sees the matching snapshot.
	var latest ivp.Stats
	s.SetStatsHook(func(st ivp.Stats) { latest = st })
	s.AddObserver(liveObserver{events: events, stats: func() ivp.Stats { return latest }})

	go func() {
		res, err := s.Run(context.Background(), 0, cfg.Duration, y0)
		if res != nil {
			// flush a final event carrying the closing counters
			last := len(res.Times) - 1
			if last >= 0 {
				events <- tui.StepEvent{
					T:     res.Times[last],
					H:     res.Stats.LastStep,
					Order: res.Stats.LastOrder,
					Y:     res.States[last],
					Stats: res.Stats,
				}
			}
		}
		close(events)
		done <- err
	}()

	return tui.Run(cfg.Problem, sys.Dim(), events, done)
}

// liveObserver forwards accepted steps to the TUI channel. The send is
// non-blocking so a slow terminal never stalls the solver.
type liveObserver struct {
	events chan<- tui.StepEvent
	stats  func() ivp.Stats
}

func (o liveObserver) OnStep(t, h float64, order int, y []float64) {
	state := make([]float64, len(y))
	copy(state, y)
	select {
	case o.events <- tui.StepEvent{T: t, H: h, Order: order, Y: state, Stats: o.stats()}:
	default:
	}
}
