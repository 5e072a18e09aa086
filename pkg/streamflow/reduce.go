package streamflow

import (
	"fmt"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// defaultBlockElems is the minimum number of elements a reduction block
// holds when no explicit block size is configured. Below this the fold
// is cheaper than the scatter/gather around it, so small inputs reduce
// in a single pass.
const defaultBlockElems = 256

// reducePlan describes how one reduction is decomposed: a grid of blocks
// folding blockSize elements each, followed by a combine pass when the
// grid has more than one block.
type reducePlan struct {
	blocks    int
	blockSize int
	twoPass   bool
}

// planReduction sizes the block grid for an n-element reduction.
//
// With an explicit blockSize the grid is exactly ceil(n/blockSize).
// Otherwise blocks hold at least defaultBlockElems elements and the grid
// is capped at the device width, so small inputs fold inline and large
// inputs spread across the available workers. A one-block grid always
// executes as a single pass with no scratch.
func planReduction(n, width, blockSize int) reducePlan {
	if n <= 0 {
		return reducePlan{}
	}
	if blockSize > 0 {
		blocks := (n + blockSize - 1) / blockSize
		return reducePlan{blocks: blocks, blockSize: blockSize, twoPass: blocks > 1}
	}
	if width < 1 {
		width = 1
	}
	blocks := (n + defaultBlockElems - 1) / defaultBlockElems
	if blocks > width {
		blocks = width
	}
	size := (n + blocks - 1) / blocks
	blocks = (n + size - 1) / size
	return reducePlan{blocks: blocks, blockSize: size, twoPass: blocks > 1}
}

// Reduce declares an initialized reduction: fold the elements of in with
// op and combine the fold into result's existing value, which acts as
// the seed. An empty input range leaves the seed untouched and never
// invokes op. The result buffer must hold exactly one element.
//
// op must be associative; the fold is decomposed into blocks whose
// partial results combine in block order, so non-associative operators
// produce unspecified values. Operators are invoked only with loaded
// element values, never with a synthesized identity.
func Reduce[T any](g *Graph, in device.Span[T], result *device.Buffer[T], op func(T, T) T) Task {
	return addReduce(g, in, result, op, ModeInitialized)
}

// UninitializedReduce declares a reduction that ignores result's prior
// contents: the result is exactly the fold of the input range. The range
// must be non-empty; Compile rejects an empty range with ErrEmptyRange
// since there is no value to produce. A single-element range stores that
// element without invoking op at all.
func UninitializedReduce[T any](g *Graph, in device.Span[T], result *device.Buffer[T], op func(T, T) T) Task {
	return addReduce(g, in, result, op, ModeUninitialized)
}

func addReduce[T any](g *Graph, in device.Span[T], result *device.Buffer[T], op func(T, T) T, mode ReduceMode) Task {
	if g == nil {
		panic("streamflow: graph cannot be nil")
	}
	if op == nil {
		panic("streamflow: reduce operator cannot be nil")
	}
	if result == nil {
		panic("streamflow: reduce result cannot be nil")
	}
	if in.Buffer() == nil {
		panic("streamflow: reduce input span has no buffer")
	}

	note := "init"
	if mode == ModeUninitialized {
		note = "uninit"
	}

	check := func() error {
		buf := in.Buffer()
		if buf.Freed() {
			return fmt.Errorf("%w: reduce input freed", ErrInvalidBuffer)
		}
		if result.Freed() {
			return fmt.Errorf("%w: reduce result freed", ErrInvalidBuffer)
		}
		if in.First() < 0 || in.First() > in.Last() || in.Last() > buf.Len() {
			return fmt.Errorf("%w: reduce span [%d, %d) outside buffer of %d elements",
				ErrInvalidBuffer, in.First(), in.Last(), buf.Len())
		}
		if result.Len() != 1 {
			return fmt.Errorf("%w: reduce result must hold exactly 1 element, has %d",
				ErrInvalidBuffer, result.Len())
		}
		if mode == ModeUninitialized && in.Len() == 0 {
			return fmt.Errorf("%w: uninitialized reduce over [%d, %d)",
				ErrEmptyRange, in.First(), in.Last())
		}
		return nil
	}

	build := func(dev *device.Device, rp reducePlan) ([]func() error, func()) {
		n := in.Len()
		if n == 0 {
			// Initialized identity: the seed already holds the answer.
			return nil, nil
		}
		if !rp.twoPass {
			return []func() error{func() error {
				elems, res, err := reduceStorage(in, result)
				if err != nil {
					return err
				}
				acc := elems[0]
				for i := 1; i < len(elems); i++ {
					acc = op(acc, elems[i])
				}
				if mode == ModeInitialized {
					res[0] = op(res[0], acc)
				} else {
					res[0] = acc
				}
				return nil
			}}, nil
		}

		// Two passes: a gridded kernel folds each block into per-run
		// scratch, then a second step on the same queue combines the
		// partials in block order. Queue FIFO orders the passes.
		scratch := device.Alloc[T](dev, rp.blocks)
		partial := func() error {
			elems, _, err := reduceStorage(in, result)
			if err != nil {
				return err
			}
			parts := scratch.Elems()
			return dev.Launch(device.Kernel{
				Grid: rp.blocks,
				Body: func(block int) error {
					lo := block * rp.blockSize
					hi := min(lo+rp.blockSize, n)
					acc := elems[lo]
					for i := lo + 1; i < hi; i++ {
						acc = op(acc, elems[i])
					}
					parts[block] = acc
					return nil
				},
			})
		}
		combine := func() error {
			_, res, err := reduceStorage(in, result)
			if err != nil {
				return err
			}
			parts := scratch.Elems()
			acc := parts[0]
			for i := 1; i < len(parts); i++ {
				acc = op(acc, parts[i])
			}
			if mode == ModeInitialized {
				res[0] = op(res[0], acc)
			} else {
				res[0] = acc
			}
			return nil
		}
		return []func() error{partial, combine}, scratch.Free
	}

	return g.add(&taskRecord{
		kind:  KindReduce,
		mode:  mode,
		note:  note,
		count: in.Len(),
		check: check,
		build: build,
	})
}

// reduceStorage resolves the input span and result storage, failing if
// either buffer was freed between compile and execution.
func reduceStorage[T any](in device.Span[T], result *device.Buffer[T]) ([]T, []T, error) {
	buf := in.Buffer()
	if buf.Freed() {
		return nil, nil, fmt.Errorf("%w: reduce input", device.ErrFreed)
	}
	if result.Freed() {
		return nil, nil, fmt.Errorf("%w: reduce result", device.ErrFreed)
	}
	return buf.Elems()[in.First():in.Last()], result.Elems(), nil
}
