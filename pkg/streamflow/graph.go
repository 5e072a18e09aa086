package streamflow

import (
	"fmt"
	"sync"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// taskRecord is the arena entry behind a Task handle. Records are
// append-only and adjacency lists hold task IDs rather than pointers, so
// the compiler walks the graph with plain integer indexing.
type taskRecord struct {
	id    TaskID
	kind  Kind
	mode  ReduceMode // reduce only
	note  string     // short detail for plan dumps: "h2d", "fill", ...
	label string
	count int // elements moved or reduced, 0 for invoke

	body  func() error // copy, invoke, and fill bodies
	check func() error // compile-time validation, may be nil
	build buildFunc    // reduce only

	succs []TaskID
	preds []TaskID
}

// buildFunc instantiates a reduction's execution phases against a device
// for one run. The release closure frees per-run scratch; it may be nil,
// as may the phase slice for an empty initialized range.
type buildFunc func(dev *device.Device, rp reducePlan) (phases []func() error, release func())

func (r *taskRecord) display() string {
	if r.label != "" {
		return r.label
	}
	return fmt.Sprintf("%s#%d", r.kind, r.id)
}

// Graph is a mutable dependency graph of device tasks. Declare tasks
// with the package-level declaration functions, wire ordering with
// Succeed/Precede or AddDependency, then Compile against a device.
//
// Declaring a task enqueues nothing; nothing executes until a compiled
// plan is run. After a successful Compile the graph freezes and further
// mutation fails with ErrGraphFrozen (the declaration functions panic,
// since they have no error return). A failed Compile leaves the graph
// mutable so callers can fix the reported problems and compile again.
//
// A Graph is safe for concurrent use, though graphs are typically built
// from a single goroutine.
type Graph struct {
	mu      sync.RWMutex
	records []*taskRecord
	frozen  bool
}

// NewGraph creates an empty task graph.
func NewGraph() *Graph {
	return &Graph{}
}

// TaskCount returns the number of declared tasks.
func (g *Graph) TaskCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// Frozen reports whether a successful compile has made the graph
// immutable.
func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// add appends a record and returns its handle. Declaration functions
// validate their arguments before calling this.
func (g *Graph) add(rec *taskRecord) Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		panic("streamflow: " + ErrGraphFrozen.Error())
	}
	rec.id = TaskID(len(g.records))
	g.records = append(g.records, rec)
	return Task{g: g, id: rec.id}
}

func (g *Graph) setLabel(id TaskID, label string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		panic("streamflow: " + ErrGraphFrozen.Error())
	}
	g.records[id].label = label
}

// AddDependency records that succ runs after pred. Both handles must
// belong to this graph. Duplicate edges are permitted and harmless;
// self edges are rejected immediately rather than surfacing as a
// one-task cycle at compile time.
func (g *Graph) AddDependency(pred, succ Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrGraphFrozen
	}
	if err := g.owns(pred); err != nil {
		return err
	}
	if err := g.owns(succ); err != nil {
		return err
	}
	if pred.id == succ.id {
		return fmt.Errorf("%w: task %d", ErrSelfDependency, pred.id)
	}
	g.records[pred.id].succs = append(g.records[pred.id].succs, succ.id)
	g.records[succ.id].preds = append(g.records[succ.id].preds, pred.id)
	return nil
}

func (g *Graph) owns(t Task) error {
	if t.g == nil {
		return fmt.Errorf("%w: zero task handle", ErrUnknownTask)
	}
	if t.g != g {
		return fmt.Errorf("%w: task belongs to a different graph", ErrUnknownTask)
	}
	return nil
}
