package txn

import (
	"errors"
	"fmt"
)

var (
	// ErrNilStore is returned when a Planner is constructed without a store.
	ErrNilStore = errors.New("txn: store is required")

	// ErrPlanConsumed is returned when Execute is called on a plan that
	// already ran. Plans are single-use.
	ErrPlanConsumed = errors.New("txn: plan already executed")
)

// ExecError describes a failed plan execution: which step failed, why, and
// how the rollback went. It is the only error shape Execute returns for
// step failures.
type ExecError struct {
	// FailedStep is the zero-based index of the step that failed.
	FailedStep int

	// Op and Table identify the failed step.
	Op    Op
	Table string

	// StepErr is the error the failed step returned.
	StepErr error

	// Compensated lists the indices of steps whose compensations succeeded,
	// in the order they were compensated (reverse of execution order).
	Compensated []int

	// CompensationErrs holds the errors of compensations that failed.
	// Empty when the rollback was clean.
	CompensationErrs []error
}

func (e *ExecError) Error() string {
	if len(e.CompensationErrs) > 0 {
		return fmt.Sprintf("txn: step %d (%s %s) failed: %v (compensated %d steps, %d compensations failed)",
			e.FailedStep, e.Op, e.Table, e.StepErr, len(e.Compensated), len(e.CompensationErrs))
	}
	return fmt.Sprintf("txn: step %d (%s %s) failed: %v (compensated %d steps)",
		e.FailedStep, e.Op, e.Table, e.StepErr, len(e.Compensated))
}

func (e *ExecError) Unwrap() error { return e.StepErr }

// IsExecError extracts an ExecError from an error chain.
func IsExecError(err error) (*ExecError, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
