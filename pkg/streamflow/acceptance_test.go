package streamflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// TestAcceptance_SeededSumReduction runs the canonical end-to-end
// scenario: load 1..N onto the device, seed the result with 1000, fold
// with addition, and read the total back on the host.
func TestAcceptance_SeededSumReduction(t *testing.T) {
	const n = 100_000
	const seed = int64(1000)

	dev := device.New(device.WithQueues(2), device.WithWidth(4))
	defer dev.Close()

	g := NewGraph()
	in := device.Alloc[int64](dev, n)
	out := device.Alloc[int64](dev, 1)
	res := make([]int64, 1)

	load := CopyIn(g, in, hostSeq(n)).Label("load")
	seedTask := CopyIn(g, out, []int64{seed}).Label("seed")
	total := Reduce(g, in.All(), out, sumInt64).Label("total").Succeed(load, seedTask)
	CopyOut(g, res, out).Label("readback").Succeed(total)

	cg, err := g.Compile(dev)
	require.NoError(t, err, "graph should compile cleanly")

	handle := cg.Run(context.Background())
	require.NoError(t, handle.Wait(), "run should complete without fault")

	want := seed + int64(n)*int64(n+1)/2
	assert.Equal(t, want, res[0], "seeded sum of 1..%d should be %d", n, want)

	state, fault := handle.Poll()
	assert.Equal(t, StateOk, state)
	assert.NoError(t, fault)
	assert.True(t, g.Frozen(), "graph should freeze after a successful compile")
}

// TestAcceptance_UninitializedSum runs the same pipeline without a seed:
// the result is exactly the fold of the input.
func TestAcceptance_UninitializedSum(t *testing.T) {
	const n = 100_000

	dev := device.New(device.WithQueues(2), device.WithWidth(4))
	defer dev.Close()

	g := NewGraph()
	in := device.Alloc[int64](dev, n)
	out := device.Alloc[int64](dev, 1)
	res := make([]int64, 1)

	load := CopyIn(g, in, hostSeq(n)).Label("load")
	total := UninitializedReduce(g, in.All(), out, sumInt64).Label("total").Succeed(load)
	CopyOut(g, res, out).Label("readback").Succeed(total)

	cg, err := g.Compile(dev)
	require.NoError(t, err)
	require.NoError(t, cg.Run(context.Background()).Wait())

	assert.Equal(t, int64(n)*int64(n+1)/2, res[0])
}

// TestAcceptance_MultiStagePipeline runs two independent device chains
// that merge into a combining stage, exercising multi-queue scheduling
// and cross-queue barriers end to end.
func TestAcceptance_MultiStagePipeline(t *testing.T) {
	const n = 4096

	dev := device.New(device.WithQueues(3), device.WithWidth(4))
	defer dev.Close()

	g := NewGraph()
	left := device.Alloc[int64](dev, n)
	right := device.Alloc[int64](dev, n)
	leftSum := device.Alloc[int64](dev, 1)
	rightSum := device.Alloc[int64](dev, 1)
	res := make([]int64, 2)

	loadLeft := CopyIn(g, left, hostSeq(n)).Label("load-left")
	loadRight := Fill(g, right, int64(3)).Label("fill-right")
	sumLeft := UninitializedReduce(g, left.All(), leftSum, sumInt64).Label("sum-left").Succeed(loadLeft)
	sumRight := UninitializedReduce(g, right.All(), rightSum, sumInt64).Label("sum-right").Succeed(loadRight)
	outLeft := CopyOut(g, res[0:1], leftSum).Label("out-left").Succeed(sumLeft)
	outRight := CopyOut(g, res[1:2], rightSum).Label("out-right").Succeed(sumRight)

	Invoke(g, noopCallable).Label("merge").Succeed(outLeft, outRight)

	cg, err := g.Compile(dev)
	require.NoError(t, err)
	require.NotZero(t, cg.BarrierCount(), "independent chains should spread across queues")

	require.NoError(t, cg.Run(context.Background()).Wait())

	assert.Equal(t, int64(n)*int64(n+1)/2, res[0], "left chain total")
	assert.Equal(t, int64(3*n), res[1], "right chain total")
}

// TestAcceptance_PlanReplay tests that one compiled plan replays
// identically across sequential runs.
func TestAcceptance_PlanReplay(t *testing.T) {
	const n = 10_000

	dev := device.New(device.WithQueues(2), device.WithWidth(4))
	defer dev.Close()

	g := NewGraph()
	in := device.Alloc[int64](dev, n)
	out := device.Alloc[int64](dev, 1)
	res := make([]int64, 1)

	load := CopyIn(g, in, hostSeq(n))
	total := UninitializedReduce(g, in.All(), out, sumInt64).Succeed(load)
	CopyOut(g, res, out).Succeed(total)

	cg, err := g.Compile(dev)
	require.NoError(t, err)

	want := int64(n) * int64(n+1) / 2
	for i := 0; i < 5; i++ {
		res[0] = 0
		require.NoError(t, cg.Run(context.Background()).Wait(), "replay %d", i)
		require.Equal(t, want, res[0], "replay %d", i)
	}
}
