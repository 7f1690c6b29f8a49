// Package storage persists simulation runs as a directory per run:
// metadata.json, the scenario config.yaml, states.csv and diagnostics.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/sim"
)

var ErrRunNotFound = errors.New("run not found")

const (
	metadataFile    = "metadata.json"
	configFile      = "config.yaml"
	statesFile      = "states.csv"
	diagnosticsFile = "diagnostics.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID             string             `json:"id"`
	Model          string             `json:"model"`
	Preset         string             `json:"preset,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	Seed           uint64             `json:"seed"`
	Dt             float64            `json:"dt"`
	Duration       float64            `json:"duration"`
	Integrator     string             `json:"integrator"`
	Steps          int                `json:"steps"`
	StepsTaken     int                `json:"steps_taken"`
	Metrics        map[string]float64 `json:"metrics"`
	DiagnosticKeys []string           `json:"diagnostic_keys"`
	// Error is set when the run stopped early; the stored history is the
	// partial one up to the failing step.
	Error string `json:"error,omitempty"`
}

// NewMetadata describes result as produced by cfg. runErr is the error
// returned alongside a partial result, if any.
func NewMetadata(cfg *config.Config, preset string, result *sim.Result, runErr error) RunMetadata {
	meta := RunMetadata{
		ID:             fmt.Sprintf("%s_%s", cfg.Model, uuid.NewString()[:8]),
		Model:          cfg.Model,
		Preset:         preset,
		Timestamp:      time.Now(),
		Seed:           cfg.Seed,
		Dt:             cfg.Dt,
		Duration:       cfg.Duration,
		Integrator:     cfg.Integrator,
		Steps:          cfg.Steps(),
		StepsTaken:     result.StepsTaken,
		Metrics:        finiteMetrics(result.Metrics),
		DiagnosticKeys: result.DiagnosticKeys,
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	return meta
}

// encoding/json rejects NaN and Inf.
func finiteMetrics(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// Save writes the run and returns its ID.
func (s *Store) Save(cfg *config.Config, preset string, result *sim.Result, runErr error) (string, error) {
	meta := NewMetadata(cfg, preset, result, runErr)
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, statesFile), stateRecords(result)); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, diagnosticsFile), diagnosticRecords(result)); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// stateRecords has one row per sample time. Step columns (u, xhat) are
// empty on the final row, which has no step after it.
func stateRecords(r *sim.Result) [][]string {
	if len(r.States) == 0 {
		return [][]string{{"time"}}
	}
	n := len(r.States[0])
	m := 0
	if len(r.Controls) > 0 {
		m = len(r.Controls[0])
	}

	header := []string{"time"}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	for i := 0; i < m; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("xhat%d", i))
	}

	records := [][]string{header}
	for k, x := range r.States {
		row := make([]string, 0, len(header))
		row = append(row, formatFloat(r.Times[k]))
		for _, v := range x {
			row = append(row, formatFloat(v))
		}
		row = appendStep(row, r.Controls, k, m)
		row = appendStep(row, r.Estimates, k, n)
		records = append(records, row)
	}
	return records
}

func appendStep[T ~[]float64](row []string, hist []T, k, width int) []string {
	if k >= len(hist) {
		for i := 0; i < width; i++ {
			row = append(row, "")
		}
		return row
	}
	for _, v := range hist[k] {
		row = append(row, formatFloat(v))
	}
	return row
}

// DiagnosticColumn names element idx of a diagnostic key in diagnostics.csv.
func DiagnosticColumn(key string, idx int) string {
	return fmt.Sprintf("%s[%d]", key, idx)
}

// diagnosticRecords has one row per step and one column per key element.
// Keys can change width between steps; missing elements are empty cells.
func diagnosticRecords(r *sim.Result) [][]string {
	widths := make([]int, len(r.DiagnosticKeys))
	for _, d := range r.Diagnostics {
		for i, key := range r.DiagnosticKeys {
			widths[i] = max(widths[i], len(d[key]))
		}
	}

	header := []string{"step", "time"}
	for i, key := range r.DiagnosticKeys {
		for j := 0; j < widths[i]; j++ {
			header = append(header, DiagnosticColumn(key, j))
		}
	}

	records := [][]string{header}
	for k, d := range r.Diagnostics {
		row := []string{strconv.Itoa(k), formatFloat(r.Times[k])}
		for i, key := range r.DiagnosticKeys {
			v := d[key]
			for j := 0; j < widths[i]; j++ {
				if j < len(v) {
					row = append(row, formatFloat(v[j]))
				} else {
					row = append(row, "")
				}
			}
		}
		records = append(records, row)
	}
	return records
}

// List returns stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s metadata: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

// LoadStates returns the true state trajectory and its sample times.
func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	header, records, err := s.readCSV(runID, statesFile)
	if err != nil {
		return nil, nil, err
	}

	var cols []int
	for i, name := range header {
		if strings.HasPrefix(name, "x") && !strings.HasPrefix(name, "xhat") {
			cols = append(cols, i)
		}
	}

	times := make([]float64, 0, len(records))
	states := make([][]float64, 0, len(records))
	for _, record := range records {
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("run %s: bad time %q: %w", runID, record[0], err)
		}
		state := make([]float64, len(cols))
		for j, c := range cols {
			if state[j], err = strconv.ParseFloat(record[c], 64); err != nil {
				return nil, nil, fmt.Errorf("run %s: bad %s %q: %w", runID, header[c], record[c], err)
			}
		}
		times = append(times, t)
		states = append(states, state)
	}
	return states, times, nil
}

// LoadSeries returns one column of states.csv or diagnostics.csv (for
// example "x0", "u1" or DiagnosticColumn("clf_values", 0)) with its times.
// Empty cells load as NaN.
func (s *Store) LoadSeries(runID, column string) ([]float64, []float64, error) {
	for _, file := range []string{statesFile, diagnosticsFile} {
		header, records, err := s.readCSV(runID, file)
		if err != nil {
			return nil, nil, err
		}
		col := slices.Index(header, column)
		if col < 0 {
			continue
		}
		timeCol := slices.Index(header, "time")

		times := make([]float64, len(records))
		values := make([]float64, len(records))
		for i, record := range records {
			if times[i], err = strconv.ParseFloat(record[timeCol], 64); err != nil {
				return nil, nil, fmt.Errorf("run %s: bad time %q: %w", runID, record[timeCol], err)
			}
			if record[col] == "" {
				values[i] = math.NaN()
				continue
			}
			if values[i], err = strconv.ParseFloat(record[col], 64); err != nil {
				return nil, nil, fmt.Errorf("run %s: bad %s %q: %w", runID, column, record[col], err)
			}
		}
		return values, times, nil
	}
	return nil, nil, fmt.Errorf("run %s has no column %q", runID, column)
}

// Columns lists every plottable column of a run.
func (s *Store) Columns(runID string) ([]string, error) {
	var out []string
	for _, file := range []string{statesFile, diagnosticsFile} {
		header, _, err := s.readCSV(runID, file)
		if err != nil {
			return nil, err
		}
		for _, name := range header {
			if name != "time" && name != "step" {
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func (s *Store) readCSV(runID, name string) ([]string, [][]string, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("run %s %s: %w", runID, name, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("run %s %s: missing header", runID, name)
	}
	return records[0], records[1:], nil
}

type ExportData struct {
	Meta        RunMetadata            `json:"meta"`
	Times       []float64              `json:"times"`
	States      [][]float64            `json:"states"`
	Controls    [][]float64            `json:"controls"`
	Estimates   [][]float64            `json:"estimates"`
	Diagnostics []map[string][]float64 `json:"diagnostics"`
}

// ExportJSON writes the full in-memory history of a run. Non-finite
// diagnostic values are dropped since JSON cannot carry them.
func ExportJSON(w io.Writer, meta RunMetadata, result *sim.Result) error {
	data := ExportData{
		Meta:        meta,
		Times:       result.Times,
		States:      make([][]float64, len(result.States)),
		Controls:    make([][]float64, len(result.Controls)),
		Estimates:   make([][]float64, len(result.Estimates)),
		Diagnostics: make([]map[string][]float64, len(result.Diagnostics)),
	}
	for i, x := range result.States {
		data.States[i] = x
	}
	for i, u := range result.Controls {
		data.Controls[i] = u
	}
	for i, x := range result.Estimates {
		data.Estimates[i] = x
	}
	for i, d := range result.Diagnostics {
		clean := make(map[string][]float64, len(d))
		for k, v := range d {
			if !slices.ContainsFunc(v, func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }) {
				clean[k] = v
			}
		}
		data.Diagnostics[i] = clean
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
