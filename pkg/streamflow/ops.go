package streamflow

import (
	"fmt"

	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
)

// Copy declares a device-to-device copy task. The buffers must hold the
// same number of elements; mismatches and freed buffers are reported at
// Compile time, not here.
func Copy[T any](g *Graph, dst, src *device.Buffer[T]) Task {
	if g == nil {
		panic("streamflow: graph cannot be nil")
	}
	if dst == nil {
		panic("streamflow: copy destination cannot be nil")
	}
	if src == nil {
		panic("streamflow: copy source cannot be nil")
	}
	return g.add(&taskRecord{
		kind:  KindCopy,
		note:  "d2d",
		count: dst.Len(),
		check: func() error {
			if dst.Freed() {
				return fmt.Errorf("%w: copy destination freed", ErrInvalidBuffer)
			}
			if src.Freed() {
				return fmt.Errorf("%w: copy source freed", ErrInvalidBuffer)
			}
			if dst.Len() != src.Len() {
				return fmt.Errorf("%w: copy length mismatch, dst %d src %d",
					ErrInvalidBuffer, dst.Len(), src.Len())
			}
			return nil
		},
		body: func() error { return device.Memcpy(dst, src) },
	})
}

// CopyIn declares a host-to-device copy task. The source slice contents
// are read when the task executes, not when it is declared, so the same
// graph can be rerun after refilling the slice.
func CopyIn[T any](g *Graph, dst *device.Buffer[T], src []T) Task {
	if g == nil {
		panic("streamflow: graph cannot be nil")
	}
	if dst == nil {
		panic("streamflow: copy destination cannot be nil")
	}
	return g.add(&taskRecord{
		kind:  KindCopy,
		note:  "h2d",
		count: len(src),
		check: func() error {
			if dst.Freed() {
				return fmt.Errorf("%w: copy destination freed", ErrInvalidBuffer)
			}
			if dst.Len() != len(src) {
				return fmt.Errorf("%w: copy length mismatch, dst %d src %d",
					ErrInvalidBuffer, dst.Len(), len(src))
			}
			return nil
		},
		body: func() error { return device.MemcpyIn(dst, src) },
	})
}

// CopyOut declares a device-to-host copy task. The destination slice is
// written when the task executes; callers read it only after the run's
// handle resolves.
func CopyOut[T any](g *Graph, dst []T, src *device.Buffer[T]) Task {
	if g == nil {
		panic("streamflow: graph cannot be nil")
	}
	if src == nil {
		panic("streamflow: copy source cannot be nil")
	}
	return g.add(&taskRecord{
		kind:  KindCopy,
		note:  "d2h",
		count: len(dst),
		check: func() error {
			if src.Freed() {
				return fmt.Errorf("%w: copy source freed", ErrInvalidBuffer)
			}
			if src.Len() != len(dst) {
				return fmt.Errorf("%w: copy length mismatch, dst %d src %d",
					ErrInvalidBuffer, len(dst), src.Len())
			}
			return nil
		},
		body: func() error { return device.MemcpyOut(dst, src) },
	})
}

// Invoke declares a task that runs an arbitrary callable on its queue.
// A non-nil return faults the run; a panic is recovered into a
// PanicError.
func Invoke(g *Graph, fn Callable) Task {
	if g == nil {
		panic("streamflow: graph cannot be nil")
	}
	if fn == nil {
		panic("streamflow: callable cannot be nil")
	}
	return g.add(&taskRecord{
		kind: KindInvoke,
		body: func() error { return fn() },
	})
}

// Fill declares a task that sets every element of dst to v. It is an
// invoke-class task with a device-side body.
func Fill[T any](g *Graph, dst *device.Buffer[T], v T) Task {
	if g == nil {
		panic("streamflow: graph cannot be nil")
	}
	if dst == nil {
		panic("streamflow: fill destination cannot be nil")
	}
	return g.add(&taskRecord{
		kind:  KindInvoke,
		note:  "fill",
		count: dst.Len(),
		check: func() error {
			if dst.Freed() {
				return fmt.Errorf("%w: fill destination freed", ErrInvalidBuffer)
			}
			return nil
		},
		body: func() error { return device.Fill(dst, v) },
	})
}
