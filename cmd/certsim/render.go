package main

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/certsim/internal/sim"
	"github.com/san-kum/certsim/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func field(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-14s", label)) + value
}

func renderMetadata(meta *storage.RunMetadata) string {
	lines := []string{
		titleStyle.Render(meta.ID),
		field("model", meta.Model),
		field("preset", meta.Preset),
		field("integrator", meta.Integrator),
		field("dt", fmt.Sprintf("%g", meta.Dt)),
		field("steps", fmt.Sprintf("%d/%d", meta.StepsTaken, meta.Steps)),
		field("seed", fmt.Sprintf("%d", meta.Seed)),
	}
	if meta.Error != "" {
		lines = append(lines, field("error", errStyle.Render(meta.Error)))
	}
	lines = append(lines, field("diagnostics", strings.Join(meta.DiagnosticKeys, " ")))
	for _, k := range sortedMetricNames(meta.Metrics) {
		lines = append(lines, field(k, fmt.Sprintf("%.6g", meta.Metrics[k])))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderSummary reports the run outcome and whether the certificates held
// over the final step.
func renderSummary(meta storage.RunMetadata, result *sim.Result, runErr error) string {
	var status string
	switch {
	case runErr == nil:
		status = okStyle.Render("completed")
	case isInfeasible(runErr):
		status = warnStyle.Render("infeasible: ") + runErr.Error()
	default:
		status = errStyle.Render("failed: ") + runErr.Error()
	}

	lines := []string{
		titleStyle.Render(meta.ID),
		field("status", status),
		field("steps", fmt.Sprintf("%d/%d", result.StepsTaken, meta.Steps)),
	}
	if n := len(result.States); n > 0 {
		lines = append(lines, field("final state", formatVector(result.States[n-1])))
	}
	if n := len(result.Diagnostics); n > 0 {
		last := result.Diagnostics[n-1]
		if _, ok := last["clf_values"]; ok {
			lines = append(lines, field("clf complete", yesNo(last.Bool("clf_complete"))))
		}
		if _, ok := last["cbf_values"]; ok {
			lines = append(lines, field("cbf safe", yesNo(last.Bool("cbf_complete"))))
		}
	}
	for _, k := range sortedMetricNames(result.Metrics) {
		lines = append(lines, field(k, fmt.Sprintf("%.6g", result.Metrics[k])))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func yesNo(b bool) string {
	if b {
		return okStyle.Render("yes")
	}
	return warnStyle.Render("no")
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func sortedMetricNames(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// metricKeys lists, sorted, the metric names with a finite value in
// every run.
func metricKeys(results []*sim.Result) []string {
	if len(results) == 0 {
		return nil
	}
	var keys []string
	for _, k := range sortedMetricNames(results[0].Metrics) {
		ok := true
		for _, res := range results {
			v, present := res.Metrics[k]
			if !present || math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
		}
		if ok {
			keys = append(keys, k)
		}
	}
	return keys
}
