// Package runlog provides persistent run history for compiled graph runs.
package runlog

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Status is the terminal outcome of a recorded run.
type Status string

const (
	// StatusOk marks a run that drained without a fault.
	StatusOk Status = "ok"

	// StatusFault marks a run that captured an execution fault.
	StatusFault Status = "fault"
)

// Record is one completed run. The engine appends a record when a run
// resolves; the digest groups records by the graph structure that
// produced them.
type Record struct {
	// RunID is the run's unique identifier.
	RunID string

	// Digest is the compiled plan's structural digest.
	Digest string

	// Status is the run outcome.
	Status Status

	// Fault is the fault message for StatusFault runs, empty otherwise.
	Fault string

	// Started is when the run was submitted.
	Started time.Time

	// Duration is submission to drain.
	Duration time.Duration

	// Tasks is the number of tasks in the plan.
	Tasks int

	// Queues is the number of device queues the plan was scheduled
	// across.
	Queues int

	// Steps is the number of scheduled step entries.
	Steps int

	// Schedule is the plan summary as a JSON blob, stored opaquely so
	// history does not depend on the engine's types.
	Schedule []byte
}

// DecodeSchedule unmarshals the schedule blob into v, which should match
// the engine's plan summary shape.
func (r Record) DecodeSchedule(v any) error {
	if len(r.Schedule) == 0 {
		return errors.New("record has no schedule")
	}
	return json.Unmarshal(r.Schedule, v)
}

// Store persists run records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores a run record. Appending a record whose RunID
	// already exists replaces the stored record.
	Append(rec Record) error

	// Get retrieves a record by run ID.
	// Returns ErrNotFound if no such run was recorded.
	Get(runID string) (Record, error)

	// List returns up to limit records, most recent first.
	// A limit of 0 or less means no limit. An empty store yields an
	// empty slice, not an error.
	List(limit int) ([]Record, error)

	// ListByDigest returns up to limit records whose plan digest
	// matches, most recent first.
	ListByDigest(digest string, limit int) ([]Record, error)

	// Delete removes a record.
	// Returns nil if the record doesn't exist.
	Delete(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for run history operations.
var (
	// ErrNotFound indicates a run record doesn't exist.
	ErrNotFound = errors.New("run record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("run history store closed")
)
