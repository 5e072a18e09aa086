package streamflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph construction and compilation. Wrap-aware:
// structured errors below unwrap to these, so errors.Is works across
// the whole hierarchy.
var (
	// ErrUnknownTask indicates a task handle that does not belong to
	// the graph it was used with (or a zero handle).
	ErrUnknownTask = errors.New("unknown task")

	// ErrSelfDependency indicates an edge from a task to itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrGraphFrozen indicates mutation of a graph after a successful
	// compile.
	ErrGraphFrozen = errors.New("graph is frozen after a successful compile")

	// ErrCycleDetected indicates the dependency graph is not acyclic.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrEmptyRange indicates an uninitialized reduction over zero
	// elements, which has no defined result.
	ErrEmptyRange = errors.New("empty reduction range")

	// ErrInvalidBuffer indicates a task references a buffer that is
	// freed, mis-sized, or spanned out of bounds.
	ErrInvalidBuffer = errors.New("invalid buffer")
)

// CycleError reports a dependency cycle found during compilation.
//
// Tasks holds one witness cycle in dependency order, rotated so the
// lowest task ID leads; the final task has an edge back to the first.
// Labels holds the matching display names.
type CycleError struct {
	// Tasks is the witness cycle in dependency order.
	Tasks []TaskID

	// Labels holds the display name of each task in Tasks.
	Labels []string
}

func (e *CycleError) Error() string {
	if len(e.Labels) == 0 {
		return ErrCycleDetected.Error()
	}
	return fmt.Sprintf("%s: %s -> %s",
		ErrCycleDetected.Error(), strings.Join(e.Labels, " -> "), e.Labels[0])
}

// Unwrap makes errors.Is(err, ErrCycleDetected) work.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// TaskError wraps a failure from a task body during a run. The run's
// handle resolves to the TaskError of the first task that failed.
type TaskError struct {
	// Task is the failing task's ID.
	Task TaskID

	// Label is the failing task's display name.
	Label string

	// Kind is the failing task's kind.
	Kind Kind

	// Err is the underlying failure.
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.Label, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError is produced when a task body panics on its queue. The panic
// is recovered, the run faults, and the stack trace is preserved here.
type PanicError struct {
	// Task is the panicking task's ID.
	Task TaskID

	// Label is the panicking task's display name.
	Label string

	// Value is the recovered panic value.
	Value any

	// Stack is the stack trace captured at recovery.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Label, e.Value)
}
