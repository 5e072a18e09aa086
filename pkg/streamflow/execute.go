package streamflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
	"github.com/randalmurphal/streamflow/pkg/streamflow/observability"
	"github.com/randalmurphal/streamflow/pkg/streamflow/runlog"
)

// Run enqueues the plan on the device's queues and returns a handle
// immediately; it never blocks on device work. Resolve the handle with
// Wait, Poll, or Done.
//
// The context is used for telemetry propagation and is checked once
// before submission: an already-cancelled context faults the handle
// without enqueueing anything. An in-flight run cannot be cancelled.
//
// Each run gets its own barrier events and reduction scratch, so
// concurrent runs of the same plan are safe with respect to the engine;
// whether their buffer accesses race is up to the graphs the caller
// built.
//
// Example:
//
//	handle := compiled.Run(ctx)
//	if err := handle.Wait(); err != nil {
//	    log.Fatal(err)
//	}
func (cg *CompiledGraph) Run(ctx context.Context, opts ...RunOption) *Handle {
	if ctx == nil {
		panic("streamflow: run context cannot be nil")
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	runID := cfg.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &run{
		cg:     cg,
		cfg:    &cfg,
		handle: newHandle(runID),
	}
	go r.execute(ctx)
	return r.handle
}

// run is the per-run state shared between the submitter goroutine and
// the step wrappers executing on queue workers.
type run struct {
	cg     *CompiledGraph
	cfg    *runConfig
	handle *Handle

	// ctx carries the run span for task spans and metrics. Written by
	// the submitter before any step is submitted.
	ctx context.Context

	events  []*device.Event
	phases  [][]func() error
	release []func()

	wg       sync.WaitGroup
	executed atomic.Int64

	// First-fault latch. Later faults in the same run are discarded.
	faultOnce sync.Once
	faulted   atomic.Bool
	fault     error
}

// trip latches the run's first fault. Exec steps observed after the
// latch are skipped; barrier steps still fire so every queue drains.
func (r *run) trip(err error) {
	r.faultOnce.Do(func() {
		r.fault = err
		r.faulted.Store(true)
	})
}

// execute is the submitter: it instantiates per-run state, pushes every
// step to its queue in plan order, waits for the run's steps to drain,
// and finalizes the handle. It runs on its own goroutine so Run returns
// immediately.
func (r *run) execute(ctx context.Context) {
	cg, cfg := r.cg, r.cfg
	started := time.Now()

	observability.LogRunStart(cfg.logger, r.handle.runID, len(cg.records), cg.queues)

	execCtx := ctx
	var runSpan trace.Span
	if cfg.tracingEnabled {
		execCtx, runSpan = cfg.spans.StartRunSpan(ctx, r.handle.runID, cg.digest)
	}
	r.ctx = execCtx

	// Refuse to submit when the run cannot proceed. These are the only
	// faults that can exist before any step runs.
	switch {
	case ctx.Err() != nil:
		r.trip(fmt.Errorf("run not submitted: %w", ctx.Err()))
	case cg.dev.Closed():
		r.trip(fmt.Errorf("run not submitted: %w", device.ErrClosed))
	default:
		r.submit()
		r.wg.Wait()
	}

	for _, release := range r.release {
		release()
	}

	duration := time.Since(started)
	durationMs := float64(duration.Milliseconds())
	fault := r.fault

	cfg.metrics.RecordRun(execCtx, fault == nil, duration)
	if cfg.tracingEnabled {
		cfg.spans.EndSpanWithError(runSpan, fault)
	}
	if fault != nil {
		observability.LogRunFault(cfg.logger, r.handle.runID, fault, durationMs)
	} else {
		observability.LogRunComplete(cfg.logger, r.handle.runID, durationMs, r.executed.Load())
	}
	if cfg.history != nil {
		r.appendHistory(started, duration, fault)
	}

	r.handle.resolve(fault)
}

// submit instantiates the run's events and reduction phases, then pushes
// every step to its queue in plan order. Steps on one queue keep their
// relative order because a single goroutine submits them; cross-queue
// order comes from the barrier events alone.
func (r *run) submit() {
	cg := r.cg

	r.events = make([]*device.Event, cg.barriers)
	for i := range r.events {
		r.events[i] = device.NewEvent()
	}

	r.phases = make([][]func() error, len(cg.records))
	for i, rec := range cg.records {
		if rec.build == nil {
			r.phases[i] = []func() error{rec.body}
			continue
		}
		phases, release := rec.build(cg.dev, rec.rp)
		r.phases[i] = phases
		if release != nil {
			r.release = append(r.release, release)
		}
		if rec.count > 0 {
			r.cfg.metrics.RecordReducePlan(r.ctx, rec.rp.blocks, rec.rp.twoPass)
		}
	}

	for _, step := range cg.steps {
		fn := r.stepFunc(step)
		r.wg.Add(1)
		cg.dev.Queue(step.Queue).Submit(func() {
			defer r.wg.Done()
			fn()
		})
	}
}

// stepFunc builds the queue-side wrapper for one step.
func (r *run) stepFunc(step Step) func() {
	switch step.Kind {
	case StepRecord:
		ev := r.events[step.Barrier]
		return func() {
			ev.Signal()
			if r.cfg.tracingEnabled {
				observability.RecordBarrierEvent(r.ctx, r.cfg.spans, "record", step.Barrier, step.Queue)
			}
		}
	case StepWait:
		ev := r.events[step.Barrier]
		return func() {
			ev.Wait()
			if r.cfg.tracingEnabled {
				observability.RecordBarrierEvent(r.ctx, r.cfg.spans, "wait", step.Barrier, step.Queue)
			}
		}
	case StepExec:
		return r.execFunc(step)
	default:
		panic("streamflow: unknown step kind")
	}
}

// execFunc builds the wrapper for one exec step: fault short-circuit,
// observability, panic confinement, first-fault capture.
func (r *run) execFunc(step Step) func() {
	rec := r.cg.records[step.Task]
	body := r.phases[step.Task][step.Phase]
	cfg := r.cfg

	return func() {
		if r.faulted.Load() {
			observability.LogTaskSkipped(cfg.logger, rec.display())
			return
		}

		observability.LogTaskStart(cfg.logger, rec.display(), step.Queue)

		stepCtx := r.ctx
		var span trace.Span
		if cfg.tracingEnabled {
			stepCtx, span = cfg.spans.StartTaskSpan(r.ctx, rec.display(), rec.kind.String(), step.Queue)
		}

		start := time.Now()
		err := runBody(rec, body)
		duration := time.Since(start)

		cfg.metrics.RecordTask(stepCtx, rec.kind.String(), duration, err)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(span, err)
		}

		if err != nil {
			observability.LogTaskFault(cfg.logger, rec.display(), err)
			r.trip(err)
			return
		}
		observability.LogTaskComplete(cfg.logger, rec.display(), float64(duration.Milliseconds()))
		r.executed.Add(1)
	}
}

// runBody executes one task phase with panic recovery. Errors come back
// as TaskError, panics as PanicError with the worker's stack.
func runBody(rec *compiledRecord, body func() error) (err error) {
	defer func() {
		if rv := recover(); rv != nil {
			err = &PanicError{
				Task:  rec.id,
				Label: rec.display(),
				Value: rv,
				Stack: string(debug.Stack()),
			}
		}
	}()
	if err := body(); err != nil {
		return &TaskError{Task: rec.id, Label: rec.display(), Kind: rec.kind, Err: err}
	}
	return nil
}

// appendHistory writes the run's history record. Failures are logged and
// never fault the run; history is bookkeeping, not part of the result.
func (r *run) appendHistory(started time.Time, duration time.Duration, fault error) {
	cg := r.cg
	rec := runlog.Record{
		RunID:    r.handle.runID,
		Digest:   cg.digest,
		Status:   runlog.StatusOk,
		Started:  started.UTC(),
		Duration: duration,
		Tasks:    len(cg.records),
		Queues:   cg.queues,
		Steps:    len(cg.steps),
	}
	if fault != nil {
		rec.Status = runlog.StatusFault
		rec.Fault = fault.Error()
	}
	if blob, err := json.Marshal(cg.Summary()); err == nil {
		rec.Schedule = blob
	}
	if err := r.cfg.history.Append(rec); err != nil {
		observability.LogHistoryError(r.cfg.logger, r.handle.runID, err)
	}
}
