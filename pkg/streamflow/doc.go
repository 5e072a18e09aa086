/*
Package streamflow builds and executes task graphs on accelerator-style
devices.

# Overview

streamflow is a Go library for describing a small directed graph of
heterogeneous device operations (memory transfers, arbitrary callables,
and parallel reductions) and executing that graph across a device's
submission queues with correct cross-queue ordering and a single
synchronization point for the caller.

The library separates three phases:
  - Authoring: declare tasks and wire dependency edges.
  - Compilation: validate the graph, order it, assign queues, place
    cross-queue barriers, and plan reductions.
  - Execution: submit the compiled plan and resolve an asynchronous
    handle.

# Basic Usage

Allocate buffers on a device, declare tasks, wire edges, compile, run:

	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	in := device.Alloc[int64](dev, 1000)
	out := device.Alloc[int64](dev, 1)
	host := make([]int64, 1000)
	for i := range host {
	    host[i] = int64(i + 1)
	}
	result := make([]int64, 1)

	g := streamflow.NewGraph()
	load := streamflow.CopyIn(g, in, host).Label("load")
	seed := streamflow.Fill(g, out, 1000).Label("seed")
	sum := streamflow.Reduce(g, in.All(), out, func(a, b int64) int64 { return a + b }).
	    Label("sum").
	    Succeed(load, seed)
	streamflow.CopyOut(g, result, out).Label("store").Succeed(sum)

	compiled, err := g.Compile(dev)
	if err != nil {
	    log.Fatal(err)
	}

	handle := compiled.Run(context.Background())
	if err := handle.Wait(); err != nil {
	    log.Fatal(err)
	}
	fmt.Println(result[0]) // 500500 + 1000

Declaring a task enqueues nothing. Tasks with no dependency path between
them may execute concurrently on different queues; the graph author
declares every edge correctness needs, such as a reduction depending on
the transfer that fills its input.

# Reductions

Reduce folds an element range into a one-element result buffer with an
associative binary operator. Two modes differ in how the result's prior
value participates:

	// result = fold(op, seed ++ elements); seed is result's prior value
	streamflow.Reduce(g, in.All(), result, op)

	// result = fold(op, elements); prior value ignored, range must be
	// non-empty
	streamflow.UninitializedReduce(g, in.All(), result, op)

The engine guarantees only the associative-fold value. Element
combination order is unspecified and varies with block partitioning, so
floating-point totals may differ between configurations; operators must
be associative, and commutativity is recommended.

# Compilation and Determinism

Compile validates buffer ranges, rejects empty uninitialized reductions,
and fails on dependency cycles, reporting every problem in one joined
error. On success the graph freezes and the compiled plan is immutable;
building the same tasks and edges again yields an identical schedule and
an identical Digest. A failed compile leaves the graph mutable so the
caller can fix it and retry.

# Execution and Faults

Run returns a *Handle immediately; Wait blocks until every queue the
plan touched has drained. The first fault (a callable error, a transfer
on a freed buffer, an operator panic) resolves the handle; later faults
in the same run are discarded, and effects committed before the fault
remain. Handles are terminal: rerun the compiled plan for a fresh
attempt. Poll and Done support external timeouts; the engine itself has
no cancellation.

	handle := compiled.Run(ctx)
	select {
	case <-handle.Done():
	    err := handle.Wait()
	case <-time.After(5 * time.Second):
	    // run continues; only the caller stops waiting
	}

# Error Handling

Authoring and compile errors are synchronous and recoverable:

	_, err := g.Compile(dev)
	var cycle *streamflow.CycleError
	if errors.As(err, &cycle) {
	    log.Printf("cycle through %v", cycle.Labels)
	}

Execution faults surface only through the handle:

	var taskErr *streamflow.TaskError
	if errors.As(handle.Wait(), &taskErr) {
	    log.Printf("task %s failed: %v", taskErr.Label, taskErr.Err)
	}

Panics in callables and operators are recovered into PanicError with the
stack trace. Constructor misuse (nil graph, nil operator, mutating a
frozen graph) panics with a "streamflow: ..." message.

# Observability

Enable logging, metrics, and tracing per run:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	handle := compiled.Run(ctx,
	    streamflow.WithLogger(logger),
	    streamflow.WithMetrics(true),
	    streamflow.WithTracing(true),
	    streamflow.WithRunID("run-123"))

Logs include structured fields: run_id, task, queue, duration_ms.
OpenTelemetry metrics: streamflow.task.executions, streamflow.run.latency_ms, etc.
OpenTelemetry tracing: streamflow.run > streamflow.task.{label} spans.

# Thread Safety

  - Graph is safe for concurrent use, though typically built from one
    goroutine
  - CompiledGraph is safe for concurrent and repeated runs (immutable)
  - Handle is safe for concurrent Wait/Poll/Done
  - Buffers are NOT locked by the engine; unguarded concurrent access
    by unrelated tasks is a caller error

# Subpackages

  - device: host-backed execution substrate (queues, buffers, events,
    kernel launches)
  - runlog: run history storage (memory, SQLite)
  - workload: registry of canned graphs for the CLI and benchmarks
  - observability: logging, metrics, and tracing helpers
  - config: typed configuration loading for the CLI
*/
package streamflow
