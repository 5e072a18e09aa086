package streamflow

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// Compile validates the graph and lowers it into an immutable execution
// plan bound to dev.
//
// Validation gathers every problem instead of stopping at the first:
// per-task buffer checks, empty uninitialized reduction ranges, and
// dependency cycles are reported together in one joined error. On
// failure the graph stays mutable so the caller can fix it and compile
// again; on success the graph freezes and the returned plan is safe for
// concurrent and repeated runs.
func (g *Graph) Compile(dev *device.Device, opts ...CompileOption) (*CompiledGraph, error) {
	if dev == nil {
		panic("streamflow: device cannot be nil")
	}
	cfg := defaultCompileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for _, rec := range g.records {
		if rec.check == nil {
			continue
		}
		if err := rec.check(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.display(), err))
		}
	}
	if cyc := findCycle(g.records); cyc != nil {
		errs = append(errs, cyc)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cg := lower(g.records, dev, cfg)
	g.frozen = true
	return cg, nil
}

// Colors for the iterative depth-first cycle scan.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS path
	colorBlack        // fully explored
)

type dfsFrame struct {
	id   TaskID
	next int // index of the next successor to visit
}

// findCycle scans for a dependency cycle and returns a witness path if
// one exists. Tasks are visited in ID order and successors in
// declaration order, so the reported cycle is deterministic.
func findCycle(records []*taskRecord) *CycleError {
	color := make([]int, len(records))
	parent := make([]TaskID, len(records))
	for i := range parent {
		parent[i] = -1
	}

	for start := range records {
		if color[start] != colorWhite {
			continue
		}
		stack := []dfsFrame{{id: TaskID(start)}}
		color[start] = colorGray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succs := records[top.id].succs
			if top.next >= len(succs) {
				color[top.id] = colorBlack
				stack = stack[:len(stack)-1]
				continue
			}
			child := succs[top.next]
			top.next++
			switch color[child] {
			case colorWhite:
				color[child] = colorGray
				parent[child] = top.id
				stack = append(stack, dfsFrame{id: child})
			case colorGray:
				// Back edge from top.id to child closes a cycle.
				return newCycleError(records, parent, top.id, child)
			}
		}
	}
	return nil
}

// newCycleError builds the witness for the back edge from -> to by
// walking parent links from "from" up to "to", then rotates the path so
// the lowest task ID leads, keeping reports stable across compiles.
func newCycleError(records []*taskRecord, parent []TaskID, from, to TaskID) *CycleError {
	reversed := []TaskID{from}
	for cur := from; cur != to; {
		cur = parent[cur]
		reversed = append(reversed, cur)
	}
	path := make([]TaskID, len(reversed))
	for i, id := range reversed {
		path[len(path)-1-i] = id
	}

	lowest := 0
	for i, id := range path {
		if id < path[lowest] {
			lowest = i
		}
	}
	rotated := make([]TaskID, 0, len(path))
	rotated = append(rotated, path[lowest:]...)
	rotated = append(rotated, path[:lowest]...)

	labels := make([]string, len(rotated))
	for i, id := range rotated {
		labels[i] = records[id].display()
	}
	return &CycleError{Tasks: rotated, Labels: labels}
}

// topoOrder returns a topological order over the records. The ready set
// drains through a min-heap keyed on task ID, so ties between
// independent tasks always resolve to declaration order and the order is
// identical from compile to compile. Callers must have established
// acyclicity first.
func topoOrder(records []*taskRecord) []TaskID {
	indegree := make([]int, len(records))
	for _, rec := range records {
		for _, s := range rec.succs {
			indegree[s]++
		}
	}

	ready := &taskIDHeap{}
	heap.Init(ready)
	for id, deg := range indegree {
		if deg == 0 {
			heap.Push(ready, TaskID(id))
		}
	}

	order := make([]TaskID, 0, len(records))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(TaskID)
		order = append(order, id)
		for _, s := range records[id].succs {
			indegree[s]--
			if indegree[s] == 0 {
				heap.Push(ready, s)
			}
		}
	}
	return order
}

// taskIDHeap is a min-heap of task IDs for deterministic ready-set
// draining.
type taskIDHeap []TaskID

func (h taskIDHeap) Len() int           { return len(h) }
func (h taskIDHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h taskIDHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskIDHeap) Push(x any) {
	*h = append(*h, x.(TaskID))
}

func (h *taskIDHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// lower assigns queues, places cross-queue barriers, expands reductions
// into execution phases, and packages the result as an immutable plan.
func lower(records []*taskRecord, dev *device.Device, cfg compileConfig) *CompiledGraph {
	order := topoOrder(records)
	nqueues := dev.QueueCount()

	// Queue assignment. A task with exactly one predecessor stays on
	// its predecessor's queue while that predecessor is still the
	// queue's tail, extending a chain with no barrier. Everything else
	// takes the next queue round-robin.
	queueOf := make([]int, len(records))
	tail := make([]TaskID, nqueues)
	for i := range tail {
		tail[i] = -1
	}
	next := 0
	for _, id := range order {
		rec := records[id]
		q := -1
		if len(rec.preds) == 1 {
			p := rec.preds[0]
			if tail[queueOf[p]] == p {
				q = queueOf[p]
			}
		}
		if q < 0 {
			q = next
			next = (next + 1) % nqueues
		}
		queueOf[id] = q
		tail[q] = id
	}

	// A predecessor observed from a different queue gets one barrier
	// event, shared by all of its cross-queue successors.
	barrierOf := make([]int, len(records))
	for i := range barrierOf {
		barrierOf[i] = -1
	}
	barriers := 0
	for _, id := range order {
		for _, p := range records[id].preds {
			if queueOf[p] != queueOf[id] && barrierOf[p] < 0 {
				barrierOf[p] = barriers
				barriers++
			}
		}
	}

	// Snapshot records and expand reductions into phases.
	compiled := make([]*compiledRecord, len(records))
	for i, rec := range records {
		cr := &compiledRecord{
			id:    rec.id,
			kind:  rec.kind,
			mode:  rec.mode,
			note:  rec.note,
			label: rec.label,
			count: rec.count,
			queue: queueOf[i],
			body:  rec.body,
			build: rec.build,
		}
		if rec.kind == KindReduce {
			cr.rp = planReduction(rec.count, dev.Width(), cfg.blockSize)
			if rec.count > 0 {
				cr.phases = 1
				if cr.rp.twoPass {
					cr.phases = 2
				}
			}
		} else {
			cr.phases = 1
		}
		compiled[i] = cr
	}

	// Emit the step stream in topological order: waits on foreign
	// predecessors, then the task's phases, then the barrier record if
	// any successor needs one. A two-pass reduction's phases share the
	// task's queue, so queue FIFO alone orders pass one before pass
	// two. A task whose wait/record steps come up empty and whose
	// phase count is zero contributes nothing; its ordering guarantees
	// hold transitively through its neighbors.
	var steps []Step
	for _, id := range order {
		rec := records[id]
		cr := compiled[id]
		q := queueOf[id]
		seen := make(map[int]bool, len(rec.preds))
		for _, p := range rec.preds {
			if queueOf[p] == q {
				continue
			}
			b := barrierOf[p]
			if seen[b] {
				continue
			}
			seen[b] = true
			steps = append(steps, Step{Queue: q, Kind: StepWait, Task: id, Barrier: b})
		}
		for ph := 0; ph < cr.phases; ph++ {
			steps = append(steps, Step{Queue: q, Kind: StepExec, Task: id, Phase: ph})
		}
		if barrierOf[id] >= 0 {
			steps = append(steps, Step{Queue: q, Kind: StepRecord, Task: id, Barrier: barrierOf[id]})
		}
	}

	return &CompiledGraph{
		dev:       dev,
		records:   compiled,
		steps:     steps,
		queues:    nqueues,
		barriers:  barriers,
		blockSize: cfg.blockSize,
		digest:    computeDigest(records, nqueues, cfg.blockSize),
	}
}
