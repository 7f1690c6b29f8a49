package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/experiment"
	"github.com/san-kum/certsim/internal/sim"
	"github.com/san-kum/certsim/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	logLevel    string
	metricsAddr string

	configFile string
	preset     string
	dt         float64
	duration   float64
	seed       uint64
	integrator string
	exportPath string
	noSave     bool

	numRuns  int
	runLimit int

	columns []string

	sweepParam  string
	sweepValues []float64
	gridSpecs   []string
	tuneMetric  string

	trials       int
	perturbation float64

	xIndex  int
	yIndex  int
	svgPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "certsim",
		Short:         "certificate-based safe control simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(); err != nil {
				return err
			}
			serveMetrics()
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".certsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run one scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	scenarioFlags(runCmd)
	runCmd.Flags().StringVar(&exportPath, "export", "", "write the full run as json to this path (- for stdout)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [model]",
		Short: "run independently seeded copies of a scenario in parallel",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	scenarioFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&numRuns, "runs", 8, "number of runs")
	ensembleCmd.Flags().IntVar(&runLimit, "limit", 0, "max concurrent runs (0 = unbounded)")
	ensembleCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list scenario presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run columns (states, inputs or diagnostics)",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&columns, "column", nil, "columns to plot, e.g. x0,u1,clf_values[0] (default: states)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run a scenario across values of one parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	scenarioFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "lyapunov.rate", "parameter to sweep")
	sweepCmd.Flags().Float64SliceVar(&sweepValues, "values", nil, "parameter values")
	sweepCmd.Flags().IntVar(&runLimit, "limit", 0, "max concurrent runs (0 = unbounded)")

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid search parameters minimizing a run metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	scenarioFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&gridSpecs, "grid", nil, "grid axis as param=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "goal_distance", "metric to minimize")
	tuneCmd.Flags().IntVar(&runLimit, "limit", 0, "max concurrent runs (0 = unbounded)")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "run a scenario from randomly perturbed initial states",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	scenarioFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturbation, "perturbation", 0.1, "half-width of the uniform initial state offset")
	monteCarloCmd.Flags().IntVar(&runLimit, "limit", 0, "max concurrent runs (0 = unbounded)")

	trajectoryCmd := &cobra.Command{
		Use:   "trajectory [run_id]",
		Short: "draw a stored run in the plane of two state coordinates",
		Args:  cobra.ExactArgs(1),
		RunE:  drawTrajectory,
	}
	trajectoryCmd.Flags().IntVar(&xIndex, "x", 0, "state index on the horizontal axis")
	trajectoryCmd.Flags().IntVar(&yIndex, "y", 1, "state index on the vertical axis")
	trajectoryCmd.Flags().StringVar(&svgPath, "svg", "", "also write the drawing as svg to this path")

	rootCmd.AddCommand(runCmd, ensembleCmd, sweepCmd, tuneCmd, monteCarloCmd,
		presetsCmd, listCmd, showCmd, plotCmd, trajectoryCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func scenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset name for the model")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&integrator, "integrator", "euler", "integrator")
}

func setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func serveMetrics() {
	if metricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			slog.Error("metrics server stopped", "addr", metricsAddr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", metricsAddr)
}

// resolveConfig picks the scenario: a config file, else a preset of the
// model (its first one when --preset is unset). Explicit flags override.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		name string
		err  error
	)
	switch {
	case configFile != "":
		if cfg, err = config.Load(configFile); err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
	default:
		model := "single_integrator"
		if len(args) > 0 {
			model = args[0]
		}
		name = preset
		if name == "" {
			available := config.ListPresets(model)
			if len(available) == 0 {
				return nil, "", fmt.Errorf("unknown model: %s (available: %v)", model, config.ListModels())
			}
			name = available[0]
		}
		if cfg = config.GetPreset(model, name); cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(model))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	return cfg, name, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, runErr := exp.Run(ctx)
	if result == nil {
		return runErr
	}

	meta := storage.NewMetadata(cfg, name, result, runErr)
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if meta.ID, err = st.Save(cfg, name, result, runErr); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
	}

	if exportPath != "" {
		if err := exportRun(meta, result); err != nil {
			return err
		}
	}
	if exportPath != "-" {
		fmt.Println(renderSummary(meta, result, runErr))
	}
	return runErr
}

func exportRun(meta storage.RunMetadata, result *sim.Result) error {
	if exportPath == "-" {
		return storage.ExportJSON(os.Stdout, meta, result)
	}
	f, err := os.Create(exportPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := storage.ExportJSON(f, meta, result); err != nil {
		return err
	}
	return f.Close()
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := exp.Ensemble(ctx, numRuns, runLimit)
	if err != nil {
		return err
	}

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		for i, res := range results {
			runCfg := cfg.Clone()
			runCfg.Seed = cfg.Seed + uint64(i)
			if _, err := st.Save(runCfg, name, res, nil); err != nil {
				return fmt.Errorf("save run %d: %w", i, err)
			}
		}
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s ensemble: %d runs", cfg.Model, len(results))))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tMEAN\tMIN\tMAX")
	for _, key := range metricKeys(results) {
		mean, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
		for _, res := range results {
			v := res.Metrics[key]
			mean += v / float64(len(results))
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		fmt.Fprintf(w, "%s\t%.4g\t%.4g\t%.4g\n", key, mean, lo, hi)
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := config.ListModels()
	if len(args) > 0 {
		models = args
	}
	for _, model := range models {
		names := config.ListPresets(model)
		if len(names) == 0 {
			return fmt.Errorf("unknown model: %s (available: %v)", model, config.ListModels())
		}
		fmt.Printf("%s %s\n", labelStyle.Render(model+":"), strings.Join(names, ", "))
	}
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
	fmt.Fprintln(w, "ID\tMODEL\tPRESET\tTIME\tSTEPS\tSEED\tSTATUS")
	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			run.ID,
			run.Model,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.StepsTaken,
			run.Steps,
			run.Seed,
			status,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	cols, err := st.Columns(args[0])
	if err != nil {
		return err
	}
	fmt.Println(renderMetadata(meta))
	fmt.Printf("%s %s\n", labelStyle.Render("columns:"), strings.Join(cols, " "))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	cols := columns
	if len(cols) == 0 {
		all, err := st.Columns(runID)
		if err != nil {
			return err
		}
		for _, c := range all {
			if strings.HasPrefix(c, "x") && !strings.HasPrefix(c, "xhat") {
				cols = append(cols, c)
			}
		}
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("run %s (%s)", meta.ID, meta.Model)))
	for _, col := range cols {
		values, _, err := st.LoadSeries(runID, col)
		if err != nil {
			return err
		}
		data := finite(values)
		if len(data) == 0 {
			fmt.Printf("%s: no finite samples\n\n", col)
			continue
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(col+" vs step"),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

// finite drops NaN and Inf samples, which asciigraph cannot scale.
func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func isInfeasible(err error) bool {
	var stepErr *sim.StepError
	return errors.As(err, &stepErr) && errors.Is(err, sim.ErrInfeasible)
}
