package streamflow

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// StepKind classifies one entry of a compiled plan's step stream.
type StepKind uint8

const (
	// StepExec runs one phase of a task's body.
	StepExec StepKind = iota

	// StepRecord signals a barrier event after a producing task.
	StepRecord

	// StepWait blocks a queue until a barrier event is signaled.
	StepWait
)

var stepKindStrings = [...]string{
	StepExec:   "exec",
	StepRecord: "record",
	StepWait:   "wait",
}

func (k StepKind) String() string {
	if int(k) < len(stepKindStrings) {
		return stepKindStrings[k]
	}
	return "unknown"
}

// Step is one scheduled entry of a compiled plan. Steps on the same
// queue execute in stream order; steps on different queues are ordered
// only through record/wait barrier pairs.
type Step struct {
	// Queue is the device queue the step runs on.
	Queue int

	// Kind says whether the step executes, records, or waits.
	Kind StepKind

	// Task is the task the step belongs to. For wait steps it is the
	// waiting task.
	Task TaskID

	// Phase is the task phase for exec steps. Two-pass reductions have
	// phase 0 (block partials) and phase 1 (combine).
	Phase int

	// Barrier indexes the barrier event for record and wait steps.
	Barrier int
}

// compiledRecord is the immutable per-task snapshot inside a plan.
type compiledRecord struct {
	id     TaskID
	kind   Kind
	mode   ReduceMode
	note   string
	label  string
	count  int
	queue  int
	phases int
	rp     reducePlan

	body  func() error
	build buildFunc
}

func (r *compiledRecord) display() string {
	if r.label != "" {
		return r.label
	}
	return fmt.Sprintf("%s#%d", r.kind, r.id)
}

// CompiledGraph is an immutable execution plan bound to a device.
//
// A plan is safe for concurrent use: any number of runs may execute it
// at once, though runs sharing buffers will race unless the caller
// serializes them. Rerunning the same plan replays the same schedule.
type CompiledGraph struct {
	dev       *device.Device
	records   []*compiledRecord
	steps     []Step
	queues    int
	barriers  int
	blockSize int
	digest    string
}

// TaskCount returns the number of tasks in the plan.
func (cg *CompiledGraph) TaskCount() int {
	return len(cg.records)
}

// QueueCount returns the number of device queues the plan was scheduled
// across.
func (cg *CompiledGraph) QueueCount() int {
	return cg.queues
}

// BarrierCount returns the number of cross-queue barrier events each run
// of the plan uses.
func (cg *CompiledGraph) BarrierCount() int {
	return cg.barriers
}

// Digest returns a hex digest of the graph structure and compile
// parameters. Equal digests imply identical schedules.
func (cg *CompiledGraph) Digest() string {
	return cg.digest
}

// Device returns the device the plan was compiled against.
func (cg *CompiledGraph) Device() *device.Device {
	return cg.dev
}

// Steps returns a copy of the scheduled step stream.
func (cg *CompiledGraph) Steps() []Step {
	out := make([]Step, len(cg.steps))
	copy(out, cg.steps)
	return out
}

// StepSummary is the rendered form of one Step.
type StepSummary struct {
	Queue  int    `json:"queue"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// PlanSummary is a serializable description of a compiled plan, used by
// plan dumps and run history records.
type PlanSummary struct {
	Digest   string        `json:"digest"`
	Tasks    int           `json:"tasks"`
	Queues   int           `json:"queues"`
	Barriers int           `json:"barriers"`
	Steps    []StepSummary `json:"steps"`
}

// Summary returns the plan in serializable form.
func (cg *CompiledGraph) Summary() PlanSummary {
	sum := PlanSummary{
		Digest:   cg.digest,
		Tasks:    len(cg.records),
		Queues:   cg.queues,
		Barriers: cg.barriers,
		Steps:    make([]StepSummary, len(cg.steps)),
	}
	for i, s := range cg.steps {
		sum.Steps[i] = StepSummary{
			Queue:  s.Queue,
			Kind:   s.Kind.String(),
			Detail: cg.stepDetail(s),
		}
	}
	return sum
}

func (cg *CompiledGraph) stepDetail(s Step) string {
	rec := cg.records[s.Task]
	switch s.Kind {
	case StepExec:
		name := rec.display()
		if rec.note != "" {
			name += "[" + rec.note + "]"
		}
		if rec.kind == KindReduce && rec.rp.twoPass {
			if s.Phase == 0 {
				return fmt.Sprintf("%s partial x%d", name, rec.rp.blocks)
			}
			return name + " combine"
		}
		return name
	case StepRecord:
		return fmt.Sprintf("%s -> b%d", rec.display(), s.Barrier)
	case StepWait:
		return fmt.Sprintf("b%d -> %s", s.Barrier, rec.display())
	}
	return ""
}

// Describe renders the plan as a human-readable table, one line per
// step.
func (cg *CompiledGraph) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tasks=%d queues=%d barriers=%d digest=%.12s\n",
		len(cg.records), cg.queues, cg.barriers, cg.digest)
	for i, s := range cg.steps {
		fmt.Fprintf(&b, "%3d  q%d  %-6s  %s\n", i, s.Queue, s.Kind, cg.stepDetail(s))
	}
	return b.String()
}
