package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/certsim/internal/automation"
	"github.com/spf13/cobra"
)

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(sweepValues) == 0 {
		return fmt.Errorf("--values is required (parameters: %v)", automation.Params())
	}

	ctx, cancel := signalContext()
	defer cancel()

	r := automation.NewRunner(cfg, automation.WithLogger(slog.Default()), automation.WithLimit(runLimit))
	results, err := r.RunSweep(ctx, automation.Sweep{Param: sweepParam, Values: sweepValues})
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s sweep over %s", cfg.Model, sweepParam)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VALUE\tSTEPS\tCONVERGED\tSAFE\tGOAL DIST\tEFFORT\tSTATUS")
	for _, res := range results {
		fmt.Fprintf(w, "%g\t%d\t%s\t%s\t%.4g\t%.4g\t%s\n",
			res.Value,
			res.StepsTaken,
			yesNo(res.Converged),
			yesNo(res.Safe),
			res.Metrics["goal_distance"],
			res.Metrics["control_effort"],
			outcomeStatus(res.Outcome),
		)
	}
	return w.Flush()
}

func outcomeStatus(o automation.Outcome) string {
	switch {
	case o.Err == nil:
		return okStyle.Render("ok")
	case o.Infeasible():
		return warnStyle.Render("infeasible")
	default:
		return errStyle.Render("failed")
	}
}

// parseGrid reads axes written as param=v1,v2,...
func parseGrid(axes []string) ([]automation.Sweep, error) {
	grid := make([]automation.Sweep, 0, len(axes))
	for _, raw := range axes {
		name, list, ok := strings.Cut(raw, "=")
		if !ok || name == "" || list == "" {
			return nil, fmt.Errorf("bad grid axis %q, want param=v1,v2", raw)
		}
		axis := automation.Sweep{Param: name}
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("grid axis %s: %w", name, err)
			}
			axis.Values = append(axis.Values, v)
		}
		grid = append(grid, axis)
	}
	return grid, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	grid, err := parseGrid(gridSpecs)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	r := automation.NewRunner(cfg, automation.WithLogger(slog.Default()), automation.WithLimit(runLimit))
	best, err := r.GridSearch(ctx, grid, tuneMetric)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("best %s = %.6g", tuneMetric, best.Value)))
	for _, name := range sortedMetricNames(best.Params) {
		fmt.Println(field(name, fmt.Sprintf("%g", best.Params[name])))
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	r := automation.NewRunner(cfg, automation.WithLogger(slog.Default()), automation.WithLimit(runLimit))
	results, err := r.RunMonteCarlo(ctx, automation.MonteCarlo{
		Trials:       trials,
		Perturbation: perturbation,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return err
	}

	stats := automation.MonteCarloStats(results)
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s monte carlo: %d trials, perturbation %g", cfg.Model, stats.Total, perturbation)),
		field("completed", fmt.Sprintf("%d", stats.Completed)),
		field("converged", fmt.Sprintf("%d", stats.Converged)),
		field("safe", fmt.Sprintf("%d", stats.Safe)),
		field("infeasible", fmt.Sprintf("%d", stats.Infeasible)),
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
	return nil
}
