// Package workload provides a registry of canned task graphs used by the
// CLI and benchmarks: each workload builds a graph against a device for a
// given element count and knows how to verify its own result.
package workload

import (
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/streamflow/pkg/streamflow"
	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// Instance is one built workload: an authored (not yet compiled) graph,
// a verification check to call after the run's handle resolves, and a
// cleanup releasing the device buffers the build allocated.
type Instance struct {
	// Graph is the authored task graph, ready to compile.
	Graph *streamflow.Graph

	// Verify checks the run's result. Call it only after a successful
	// Wait; the host-side result storage is not valid before that.
	Verify func() error

	// Close frees the instance's device buffers. Call it after the
	// last run of the graph has resolved.
	Close func()
}

// BuildFunc constructs a workload instance over n elements on dev.
type BuildFunc func(dev *device.Device, n int) (*Instance, error)

var (
	mu       sync.RWMutex
	builders = make(map[string]BuildFunc)
)

// Register adds a named workload. It panics on an empty name, a nil
// build function, or a duplicate name; workloads register once, at init
// time.
func Register(name string, build BuildFunc) {
	if name == "" {
		panic("workload: name cannot be empty")
	}
	if build == nil {
		panic("workload: build function cannot be nil")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := builders[name]; dup {
		panic("workload: duplicate name: " + name)
	}
	builders[name] = build
}

// Get returns the build function for a name and whether it exists.
func Get(name string) (BuildFunc, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := builders[name]
	return b, ok
}

// Names returns all registered workload names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("sum-reduce", buildSumReduce)
	Register("uninitialized-sum", buildUninitializedSum)
	Register("pipeline", buildPipeline)
}

// seedValue is the initialized-reduce seed the sum-reduce workload
// plants in its result buffer before folding.
const seedValue = 1000

func sum64(a, b int64) int64 { return a + b }

// hostRange returns [1, 2, ..., n].
func hostRange(n int) []int64 {
	host := make([]int64, n)
	for i := range host {
		host[i] = int64(i + 1)
	}
	return host
}

// buildSumReduce stages [1..n] onto the device, seeds the result buffer,
// folds the range into it, and copies the total back out. Expected
// result: n(n+1)/2 + seed.
func buildSumReduce(dev *device.Device, n int) (*Instance, error) {
	if n < 1 {
		return nil, fmt.Errorf("sum-reduce needs at least 1 element, got %d", n)
	}

	in := device.Alloc[int64](dev, n)
	out := device.Alloc[int64](dev, 1)
	result := make([]int64, 1)

	g := streamflow.NewGraph()
	load := streamflow.CopyIn(g, in, hostRange(n)).Label("load")
	seed := streamflow.Fill(g, out, int64(seedValue)).Label("seed")
	total := streamflow.Reduce(g, in.All(), out, sum64).Label("sum").Succeed(load, seed)
	streamflow.CopyOut(g, result, out).Label("store").Succeed(total)

	expected := int64(n)*int64(n+1)/2 + seedValue
	return &Instance{
		Graph: g,
		Verify: func() error {
			if result[0] != expected {
				return fmt.Errorf("sum-reduce: got %d, want %d", result[0], expected)
			}
			return nil
		},
		Close: func() {
			in.Free()
			out.Free()
		},
	}, nil
}

// buildUninitializedSum folds [1..n] with no seed contribution. Expected
// result: n(n+1)/2.
func buildUninitializedSum(dev *device.Device, n int) (*Instance, error) {
	if n < 1 {
		return nil, fmt.Errorf("uninitialized-sum needs at least 1 element, got %d", n)
	}

	in := device.Alloc[int64](dev, n)
	out := device.Alloc[int64](dev, 1)
	result := make([]int64, 1)

	g := streamflow.NewGraph()
	load := streamflow.CopyIn(g, in, hostRange(n)).Label("load")
	total := streamflow.UninitializedReduce(g, in.All(), out, sum64).Label("sum").Succeed(load)
	streamflow.CopyOut(g, result, out).Label("store").Succeed(total)

	expected := int64(n) * int64(n+1) / 2
	return &Instance{
		Graph: g,
		Verify: func() error {
			if result[0] != expected {
				return fmt.Errorf("uninitialized-sum: got %d, want %d", result[0], expected)
			}
			return nil
		},
		Close: func() {
			in.Free()
			out.Free()
		},
	}, nil
}

// buildPipeline runs two independent transform chains that join into an
// elementwise combine and a final fold, exercising multi-queue
// scheduling with cross-queue barriers. a[i] = 2(i+1), b[i] = (i+1)+1,
// c[i] = a[i]+b[i]; expected result: sum(c) = 3*n(n+1)/2 + n.
func buildPipeline(dev *device.Device, n int) (*Instance, error) {
	if n < 1 {
		return nil, fmt.Errorf("pipeline needs at least 1 element, got %d", n)
	}

	a := device.Alloc[int64](dev, n)
	b := device.Alloc[int64](dev, n)
	c := device.Alloc[int64](dev, n)
	out := device.Alloc[int64](dev, 1)
	result := make([]int64, 1)

	g := streamflow.NewGraph()
	loadA := streamflow.CopyIn(g, a, hostRange(n)).Label("load-a")
	scaleA := streamflow.Invoke(g, func() error {
		for i, v := range a.Elems() {
			a.Elems()[i] = 2 * v
		}
		return nil
	}).Label("scale-a").Succeed(loadA)

	loadB := streamflow.CopyIn(g, b, hostRange(n)).Label("load-b")
	bumpB := streamflow.Invoke(g, func() error {
		for i, v := range b.Elems() {
			b.Elems()[i] = v + 1
		}
		return nil
	}).Label("bump-b").Succeed(loadB)

	combine := streamflow.Invoke(g, func() error {
		ae, be, ce := a.Elems(), b.Elems(), c.Elems()
		for i := range ce {
			ce[i] = ae[i] + be[i]
		}
		return nil
	}).Label("combine").Succeed(scaleA, bumpB)

	total := streamflow.UninitializedReduce(g, c.All(), out, sum64).Label("sum").Succeed(combine)
	streamflow.CopyOut(g, result, out).Label("store").Succeed(total)

	expected := 3*int64(n)*int64(n+1)/2 + int64(n)
	return &Instance{
		Graph: g,
		Verify: func() error {
			if result[0] != expected {
				return fmt.Errorf("pipeline: got %d, want %d", result[0], expected)
			}
			return nil
		},
		Close: func() {
			a.Free()
			b.Free()
			c.Free()
			out.Free()
		},
	}, nil
}
