package solver

import (
	"errors"
	"fmt"
)

var (
	ErrReduceFailed       = errors.New("surface helium reduction failed")
	ErrNotInitialized     = errors.New("solver context not created")
	ErrCheckpointMismatch = errors.New("checkpoint does not match the run")
)

// SolverError wraps a failure inside one evaluation. Point is -1 when the
// failure is not tied to a grid point.
type SolverError struct {
	Op    string
	Point int
	Cause error
}

func (e *SolverError) Error() string {
	if e.Point < 0 {
		return fmt.Sprintf("solver %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("solver %s at point %d: %v", e.Op, e.Point, e.Cause)
}

func (e *SolverError) Unwrap() error {
	return e.Cause
}

func solverError(op string, xi int, cause error) error {
	return &SolverError{Op: op, Point: xi, Cause: cause}
}
