package sim

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidConfig indicates a run or controller configuration that can
	// never execute (non-positive step count, mismatched dimensions, ...).
	ErrInvalidConfig = errors.New("sim: invalid configuration")

	// ErrInvalidState indicates a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("sim: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("sim: dimension mismatch between state and system")

	// ErrInfeasible indicates the solver proved no admissible input exists.
	ErrInfeasible = errors.New("sim: control problem infeasible")

	// ErrNumerical indicates a numerical failure that retrying cannot fix.
	ErrNumerical = errors.New("sim: numerical failure")
)

// Stage names the collaborator that failed within a step.
type Stage string

const (
	StageSensor     Stage = "sensor"
	StageEstimator  Stage = "estimator"
	StageController Stage = "controller"
	StageIntegrator Stage = "integrator"
)

// StepError wraps an error with simulation context.
type StepError struct {
	Step    int
	Time    float64
	Stage   Stage
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f) %s: %v", e.Step, e.Time, e.Stage, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
