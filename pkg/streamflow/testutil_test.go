package streamflow

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// Shared fixtures for the engine tests. Tests build small devices with a
// fixed queue count so scheduling behavior is pinned down rather than
// dependent on the machine.

// Binary operators used across reduction tests.

func sumInt64(a, b int64) int64 { return a + b }

func minInt64(a, b int64) int64 {
	if b < a {
		return b
	}
	return a
}

func maxInt64(a, b int64) int64 {
	if b > a {
		return b
	}
	return a
}

func xorInt64(a, b int64) int64 { return a ^ b }

// hostSeq returns [1, 2, ..., n] as int64.
func hostSeq(n int) []int64 {
	host := make([]int64, n)
	for i := range host {
		host[i] = int64(i + 1)
	}
	return host
}

// foldInt64 is the reference sequential fold the engine's reductions are
// checked against.
func foldInt64(op func(int64, int64) int64, elems []int64) int64 {
	acc := elems[0]
	for _, v := range elems[1:] {
		acc = op(acc, v)
	}
	return acc
}

// countingOp wraps op and counts its invocations, for tests that assert
// the operator is or is not called.
func countingOp(op func(int64, int64) int64, calls *atomic.Int64) func(int64, int64) int64 {
	return func(a, b int64) int64 {
		calls.Add(1)
		return op(a, b)
	}
}

// makeTrackingCallable returns a callable that appends name to tracker
// when it runs. Only safe for graphs where the tracked tasks are totally
// ordered by dependencies.
func makeTrackingCallable(name string, tracker *[]string) Callable {
	return func() error {
		*tracker = append(*tracker, name)
		return nil
	}
}

// makeFailingCallable returns a callable that fails with err.
func makeFailingCallable(err error) Callable {
	return func() error {
		return err
	}
}

// makePanicCallable returns a callable that panics with value.
func makePanicCallable(value any) Callable {
	return func() error {
		panic(value)
	}
}

// stagedBuffer allocates an n-element buffer on dev and declares a task
// loading [1..n] into it. Most reduction tests start from this shape.
func stagedBuffer(g *Graph, dev *device.Device, n int) (*device.Buffer[int64], Task) {
	buf := device.Alloc[int64](dev, n)
	load := CopyIn(g, buf, hostSeq(n)).Label("load")
	return buf, load
}

// compileAndRun compiles g, runs it once, and fails the test on any
// compile or execution error.
func compileAndRun(t *testing.T, g *Graph, dev *device.Device, opts ...CompileOption) {
	t.Helper()
	cg, err := g.Compile(dev, opts...)
	require.NoError(t, err)
	require.NoError(t, cg.Run(context.Background()).Wait())
}

// scrambled returns n deterministic values spread around zero, so min
// and max reductions have something to find.
func scrambled(n int) []int64 {
	host := make([]int64, n)
	for i := range host {
		host[i] = int64((i*7919)%101) - 50
	}
	return host
}

// execSteps filters a plan's step stream down to exec entries for one
// task.
func execSteps(steps []Step, id TaskID) []Step {
	var out []Step
	for _, s := range steps {
		if s.Kind == StepExec && s.Task == id {
			out = append(out, s)
		}
	}
	return out
}

// queuesUsed returns the set of queues the plan's exec steps touch.
func queuesUsed(steps []Step) map[int]bool {
	used := make(map[int]bool)
	for _, s := range steps {
		if s.Kind == StepExec {
			used[s.Queue] = true
		}
	}
	return used
}
