package streamflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// TestCompile_NilDevice_Panics tests the nil device guard.
func TestCompile_NilDevice_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "streamflow: device cannot be nil", func() {
		NewGraph().Compile(nil)
	})
}

// TestCompile_EmptyGraph tests that an empty graph compiles to an empty
// plan.
func TestCompile_EmptyGraph(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	cg, err := NewGraph().Compile(dev)
	require.NoError(t, err)

	assert.Equal(t, 0, cg.TaskCount())
	assert.Empty(t, cg.Steps())
	assert.Equal(t, 0, cg.BarrierCount())
	assert.NotEmpty(t, cg.Digest())
}

// TestCompile_Chain_SingleQueue tests that a linear chain schedules onto
// one queue with no barriers even when more queues are available.
func TestCompile_Chain_SingleQueue(t *testing.T) {
	dev := device.New(device.WithQueues(4))
	defer dev.Close()

	g := NewGraph()
	a := Invoke(g, noopCallable).Label("a")
	b := Invoke(g, noopCallable).Label("b").Succeed(a)
	Invoke(g, noopCallable).Label("c").Succeed(b)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	assert.Equal(t, 0, cg.BarrierCount())
	used := queuesUsed(cg.Steps())
	assert.Len(t, used, 1)
	for _, s := range cg.Steps() {
		assert.Equal(t, StepExec, s.Kind)
	}
}

// TestCompile_ForkJoin_Barriers tests queue spreading and barrier
// placement for a diamond.
func TestCompile_ForkJoin_Barriers(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	r := Invoke(g, noopCallable).Label("root")
	x := Invoke(g, noopCallable).Label("x").Succeed(r)
	y := Invoke(g, noopCallable).Label("y").Succeed(r)
	j := Invoke(g, noopCallable).Label("join").Succeed(x, y)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	// x chains onto root's queue; y and the join land on the other
	// queue or back on the first, so two edges cross queues: root -> y
	// and one branch into the join.
	assert.Equal(t, 2, cg.BarrierCount())
	assert.Len(t, queuesUsed(cg.Steps()), 2)

	var waits, records int
	for _, s := range cg.Steps() {
		switch s.Kind {
		case StepWait:
			waits++
		case StepRecord:
			records++
		}
	}
	assert.Equal(t, 2, waits)
	assert.Equal(t, 2, records)

	// Every task still has exactly one exec step.
	for _, task := range []Task{r, x, y, j} {
		assert.Len(t, execSteps(cg.Steps(), task.ID()), 1)
	}
}

// TestCompile_SingleQueueDevice_NoBarriers tests that one queue means
// pure FIFO ordering with no barrier events at all.
func TestCompile_SingleQueueDevice_NoBarriers(t *testing.T) {
	dev := device.New(device.WithQueues(1))
	defer dev.Close()

	g := NewGraph()
	r := Invoke(g, noopCallable)
	x := Invoke(g, noopCallable).Succeed(r)
	y := Invoke(g, noopCallable).Succeed(r)
	Invoke(g, noopCallable).Succeed(x, y)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	assert.Equal(t, 0, cg.BarrierCount())
	assert.Len(t, cg.Steps(), 4)
}

// TestCompile_DuplicateEdge_OneWait tests that duplicate cross-queue
// edges share one barrier and emit one wait step.
func TestCompile_DuplicateEdge_OneWait(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	a := Invoke(g, noopCallable)
	b := Invoke(g, noopCallable)
	require.NoError(t, g.AddDependency(a, b))
	require.NoError(t, g.AddDependency(a, b))

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	// Two predecessors puts b on the round-robin queue, away from a.
	require.Equal(t, 1, cg.BarrierCount())
	var waits int
	for _, s := range cg.Steps() {
		if s.Kind == StepWait {
			waits++
		}
	}
	assert.Equal(t, 1, waits)
}

// TestCompile_Deterministic tests that identical graphs compile to
// identical schedules and digests.
func TestCompile_Deterministic(t *testing.T) {
	dev := device.New(device.WithQueues(3))
	defer dev.Close()

	build := func() *Graph {
		g := NewGraph()
		r := Invoke(g, noopCallable).Label("root")
		buf := device.Alloc[int64](dev, 512)
		out := device.Alloc[int64](dev, 1)
		load := CopyIn(g, buf, hostSeq(512)).Label("load").Succeed(r)
		Reduce(g, buf.All(), out, sumInt64).Label("sum").Succeed(load)
		Invoke(g, noopCallable).Label("side").Succeed(r)
		return g
	}

	first, err := build().Compile(dev, WithBlockSize(64))
	require.NoError(t, err)
	second, err := build().Compile(dev, WithBlockSize(64))
	require.NoError(t, err)

	assert.Equal(t, first.Digest(), second.Digest())
	assert.Equal(t, first.Steps(), second.Steps())
}

// TestCompile_Cycle tests cycle detection with a deterministic witness
// path.
func TestCompile_Cycle(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	a := Invoke(g, noopCallable).Label("a")
	b := Invoke(g, noopCallable).Label("b")
	c := Invoke(g, noopCallable).Label("c")
	require.NoError(t, g.AddDependency(a, b))
	require.NoError(t, g.AddDependency(b, c))
	require.NoError(t, g.AddDependency(c, a))

	_, err := g.Compile(dev)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycleDetected)

	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []TaskID{a.ID(), b.ID(), c.ID()}, cyc.Tasks)
	assert.Equal(t, "dependency cycle detected: a -> b -> c -> a", cyc.Error())
}

// TestCompile_Cycle_RotatedWitness tests that the witness rotates so the
// lowest task ID leads even when the scan enters the cycle elsewhere.
func TestCompile_Cycle_RotatedWitness(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	x := Invoke(g, noopCallable).Label("x")
	a := Invoke(g, noopCallable).Label("a")
	b := Invoke(g, noopCallable).Label("b")
	require.NoError(t, g.AddDependency(x, b))
	require.NoError(t, g.AddDependency(b, a))
	require.NoError(t, g.AddDependency(a, b))

	_, err := g.Compile(dev)
	require.Error(t, err)

	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []TaskID{a.ID(), b.ID()}, cyc.Tasks)
	assert.Equal(t, "dependency cycle detected: a -> b -> a", cyc.Error())
}

// TestCompile_Cycle_RunsNothing tests that a failed compile never
// executes a task body.
func TestCompile_Cycle_RunsNothing(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	ran := false
	a := Invoke(g, func() error {
		ran = true
		return nil
	})
	b := Invoke(g, noopCallable)
	require.NoError(t, g.AddDependency(a, b))
	require.NoError(t, g.AddDependency(b, a))

	_, err := g.Compile(dev)
	require.Error(t, err)
	dev.Synchronize()
	assert.False(t, ran)
}

// TestCompile_ValidationErrors tests the per-task buffer checks.
func TestCompile_ValidationErrors(t *testing.T) {
	dev := device.New(device.WithQueues(1))
	defer dev.Close()

	tests := []struct {
		name     string
		declare  func(g *Graph)
		wantErr  error
		contains string
	}{
		{
			name: "copy length mismatch",
			declare: func(g *Graph) {
				dst := device.Alloc[int64](dev, 3)
				src := device.Alloc[int64](dev, 5)
				Copy(g, dst, src).Label("move")
			},
			wantErr:  ErrInvalidBuffer,
			contains: "move: invalid buffer: copy length mismatch, dst 3 src 5",
		},
		{
			name: "copy-in freed destination",
			declare: func(g *Graph) {
				dst := device.Alloc[int64](dev, 4)
				dst.Free()
				CopyIn(g, dst, hostSeq(4))
			},
			wantErr:  ErrInvalidBuffer,
			contains: "copy#0: invalid buffer: copy destination freed",
		},
		{
			name: "reduce span out of bounds",
			declare: func(g *Graph) {
				in := device.Alloc[int64](dev, 8)
				out := device.Alloc[int64](dev, 1)
				Reduce(g, in.Span(2, 9), out, sumInt64).Label("sum")
			},
			wantErr:  ErrInvalidBuffer,
			contains: "sum: invalid buffer: reduce span [2, 9) outside buffer of 8 elements",
		},
		{
			name: "reduce span inverted",
			declare: func(g *Graph) {
				in := device.Alloc[int64](dev, 8)
				out := device.Alloc[int64](dev, 1)
				Reduce(g, in.Span(5, 2), out, sumInt64)
			},
			wantErr: ErrInvalidBuffer,
		},
		{
			name: "reduce result wrong size",
			declare: func(g *Graph) {
				in := device.Alloc[int64](dev, 8)
				out := device.Alloc[int64](dev, 2)
				Reduce(g, in.All(), out, sumInt64).Label("sum")
			},
			wantErr:  ErrInvalidBuffer,
			contains: "sum: invalid buffer: reduce result must hold exactly 1 element, has 2",
		},
		{
			name: "uninitialized reduce over empty range",
			declare: func(g *Graph) {
				in := device.Alloc[int64](dev, 8)
				out := device.Alloc[int64](dev, 1)
				UninitializedReduce(g, in.Span(3, 3), out, sumInt64).Label("sum")
			},
			wantErr:  ErrEmptyRange,
			contains: "sum: empty reduction range: uninitialized reduce over [3, 3)",
		},
		{
			name: "fill freed destination",
			declare: func(g *Graph) {
				dst := device.Alloc[int64](dev, 4)
				dst.Free()
				Fill(g, dst, int64(7))
			},
			wantErr: ErrInvalidBuffer,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGraph()
			tc.declare(g)

			_, err := g.Compile(dev)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.contains != "" {
				assert.Contains(t, err.Error(), tc.contains)
			}
			assert.False(t, g.Frozen())
		})
	}
}

// TestCompile_GathersAllErrors tests that validation reports every
// problem in one joined error instead of stopping at the first.
func TestCompile_GathersAllErrors(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	dst := device.Alloc[int64](dev, 3)
	src := device.Alloc[int64](dev, 5)
	Copy(g, dst, src).Label("bad-copy")

	in := device.Alloc[int64](dev, 8)
	out := device.Alloc[int64](dev, 1)
	UninitializedReduce(g, in.Span(4, 4), out, sumInt64).Label("bad-reduce")

	a := Invoke(g, noopCallable).Label("a")
	b := Invoke(g, noopCallable).Label("b")
	require.NoError(t, g.AddDependency(a, b))
	require.NoError(t, g.AddDependency(b, a))

	_, err := g.Compile(dev)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrInvalidBuffer)
	assert.ErrorIs(t, err, ErrEmptyRange)
	assert.ErrorIs(t, err, ErrCycleDetected)
	assert.Contains(t, err.Error(), "bad-copy")
	assert.Contains(t, err.Error(), "bad-reduce")
	assert.Contains(t, err.Error(), "a -> b -> a")
}

// TestCompile_TwoPassReduce_Phases tests that a gridded reduction
// expands into two exec phases on the same queue, partials first.
func TestCompile_TwoPassReduce_Phases(t *testing.T) {
	dev := device.New(device.WithQueues(2), device.WithWidth(4))
	defer dev.Close()

	g := NewGraph()
	buf, load := stagedBuffer(g, dev, 8)
	out := device.Alloc[int64](dev, 1)
	red := UninitializedReduce(g, buf.All(), out, sumInt64).Label("sum").Succeed(load)

	cg, err := g.Compile(dev, WithBlockSize(2))
	require.NoError(t, err)

	steps := execSteps(cg.Steps(), red.ID())
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].Phase)
	assert.Equal(t, 1, steps[1].Phase)
	assert.Equal(t, steps[0].Queue, steps[1].Queue)
}

// TestCompile_SinglePassReduce_OnePhase tests that a small reduction
// stays a single exec step.
func TestCompile_SinglePassReduce_OnePhase(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	buf, load := stagedBuffer(g, dev, 8)
	out := device.Alloc[int64](dev, 1)
	red := Reduce(g, buf.All(), out, sumInt64).Succeed(load)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	assert.Len(t, execSteps(cg.Steps(), red.ID()), 1)
}

// TestCompile_EmptyInitializedReduce_NoExecSteps tests that a reduction
// over zero elements contributes no exec steps but keeps its place in
// the dependency order.
func TestCompile_EmptyInitializedReduce_NoExecSteps(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	in := device.Alloc[int64](dev, 8)
	out := device.Alloc[int64](dev, 1)
	before := Invoke(g, noopCallable).Label("before")
	red := Reduce(g, in.Span(4, 4), out, sumInt64).Label("empty").Succeed(before)
	Invoke(g, noopCallable).Label("after").Succeed(red)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	assert.Empty(t, execSteps(cg.Steps(), red.ID()))
	assert.Equal(t, 3, cg.TaskCount())
}

// TestCompile_Digest tests digest stability and sensitivity.
func TestCompile_Digest(t *testing.T) {
	dev2 := device.New(device.WithQueues(2))
	defer dev2.Close()
	dev3 := device.New(device.WithQueues(3))
	defer dev3.Close()

	build := func(label string) *Graph {
		g := NewGraph()
		a := Invoke(g, noopCallable).Label(label)
		Invoke(g, noopCallable).Succeed(a)
		return g
	}

	base, err := build("a").Compile(dev2)
	require.NoError(t, err)
	same, err := build("a").Compile(dev2)
	require.NoError(t, err)
	relabeled, err := build("z").Compile(dev2)
	require.NoError(t, err)
	moreQueues, err := build("a").Compile(dev3)
	require.NoError(t, err)
	blocked, err := build("a").Compile(dev2, WithBlockSize(32))
	require.NoError(t, err)

	assert.Equal(t, base.Digest(), same.Digest())
	assert.NotEqual(t, base.Digest(), relabeled.Digest())
	assert.NotEqual(t, base.Digest(), moreQueues.Digest())
	assert.NotEqual(t, base.Digest(), blocked.Digest())
	assert.Len(t, base.Digest(), 64)
}

// TestCompiledGraph_Summary tests the serializable plan description.
func TestCompiledGraph_Summary(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	buf, load := stagedBuffer(g, dev, 8)
	out := device.Alloc[int64](dev, 1)
	UninitializedReduce(g, buf.All(), out, sumInt64).Label("sum").Succeed(load)

	cg, err := g.Compile(dev, WithBlockSize(2))
	require.NoError(t, err)

	sum := cg.Summary()
	assert.Equal(t, cg.Digest(), sum.Digest)
	assert.Equal(t, 2, sum.Tasks)
	assert.Equal(t, 2, sum.Queues)
	assert.Equal(t, 0, sum.Barriers)
	require.Len(t, sum.Steps, len(cg.Steps()))

	details := make([]string, len(sum.Steps))
	for i, s := range sum.Steps {
		details[i] = s.Detail
	}
	assert.Contains(t, details, "load[h2d]")
	assert.Contains(t, details, "sum[uninit] partial x4")
	assert.Contains(t, details, "sum[uninit] combine")
}

// TestCompiledGraph_Describe tests the human-readable plan dump.
func TestCompiledGraph_Describe(t *testing.T) {
	dev := device.New(device.WithQueues(2))
	defer dev.Close()

	g := NewGraph()
	r := Invoke(g, noopCallable).Label("root")
	x := Invoke(g, noopCallable).Label("x").Succeed(r)
	y := Invoke(g, noopCallable).Label("y").Succeed(r)
	Invoke(g, noopCallable).Label("join").Succeed(x, y)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	out := cg.Describe()
	assert.Contains(t, out, "tasks=4 queues=2 barriers=2")
	assert.Contains(t, out, "root -> b0")
	assert.Contains(t, out, "b0 -> y")
}

// TestCompile_Steps_ReturnsCopy tests that mutating the returned step
// slice does not corrupt the plan.
func TestCompile_Steps_ReturnsCopy(t *testing.T) {
	dev := device.New(device.WithQueues(1))
	defer dev.Close()

	g := NewGraph()
	Invoke(g, noopCallable)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	steps := cg.Steps()
	require.NotEmpty(t, steps)
	steps[0].Queue = 99
	assert.Equal(t, 0, cg.Steps()[0].Queue)
}

// TestPlanReduction tests the block planner's sizing rules.
func TestPlanReduction(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		width     int
		blockSize int
		want      reducePlan
	}{
		{"zero elements", 0, 8, 0, reducePlan{}},
		{"negative elements", -3, 8, 0, reducePlan{}},
		{"explicit size exact", 8, 8, 2, reducePlan{blocks: 4, blockSize: 2, twoPass: true}},
		{"explicit size ragged", 10, 8, 4, reducePlan{blocks: 3, blockSize: 4, twoPass: true}},
		{"explicit size covers all", 10, 8, 16, reducePlan{blocks: 1, blockSize: 16, twoPass: false}},
		{"small input single pass", 100, 8, 0, reducePlan{blocks: 1, blockSize: 100, twoPass: false}},
		{"threshold single block", 256, 8, 0, reducePlan{blocks: 1, blockSize: 256, twoPass: false}},
		{"just past threshold", 300, 8, 0, reducePlan{blocks: 2, blockSize: 150, twoPass: true}},
		{"large capped by width", 10000, 8, 0, reducePlan{blocks: 8, blockSize: 1250, twoPass: true}},
		{"width below one clamps", 512, 0, 0, reducePlan{blocks: 1, blockSize: 512, twoPass: false}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := planReduction(tc.n, tc.width, tc.blockSize)
			assert.Equal(t, tc.want, got)
		})
	}
}

// TestPlanReduction_CoversEveryElement tests block coverage over a sweep
// of sizes: blocks tile [0, n) exactly.
func TestPlanReduction_CoversEveryElement(t *testing.T) {
	for n := 1; n <= 2000; n += 37 {
		for _, width := range []int{1, 3, 8} {
			rp := planReduction(n, width, 0)
			require.Positive(t, rp.blocks)
			require.Positive(t, rp.blockSize)

			covered := 0
			for b := 0; b < rp.blocks; b++ {
				lo := b * rp.blockSize
				hi := lo + rp.blockSize
				if hi > n {
					hi = n
				}
				require.Greater(t, hi, lo, "n=%d width=%d block %d is empty", n, width, b)
				covered += hi - lo
			}
			require.Equal(t, n, covered, "n=%d width=%d", n, width)
		}
	}
}

// TestFindCycle_NoCycle tests the scan on an acyclic graph.
func TestFindCycle_NoCycle(t *testing.T) {
	g := NewGraph()
	a := Invoke(g, noopCallable)
	b := Invoke(g, noopCallable).Succeed(a)
	Invoke(g, noopCallable).Succeed(a, b)

	assert.Nil(t, findCycle(g.records))
}

// TestTopoOrder_TiesByID tests that independent tasks order by ID.
func TestTopoOrder_TiesByID(t *testing.T) {
	g := NewGraph()
	// Declared in reverse dependency order: c and b are independent
	// roots, a depends on both.
	c := Invoke(g, noopCallable)
	b := Invoke(g, noopCallable)
	a := Invoke(g, noopCallable).Succeed(b, c)

	order := topoOrder(g.records)
	assert.Equal(t, []TaskID{c.ID(), b.ID(), a.ID()}, order)
}
