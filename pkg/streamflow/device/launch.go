package device

import (
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Kernel describes a gridded unit of work: Body is executed once per
// block index in [0, Grid). Blocks run concurrently, bounded by the
// device width, and must not assume any execution order.
type Kernel struct {
	Grid int
	Body func(block int) error
}

// PanicError is the error produced when a kernel block panics. The panic
// is confined to the block's worker and surfaces as an ordinary launch
// error.
type PanicError struct {
	// Block is the grid index whose body panicked.
	Block int

	// Value is the recovered panic value.
	Value any

	// Stack is the worker's stack trace at the point of the panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel block %d panicked: %v", e.Block, e.Value)
}

// Launch runs the kernel across its grid and blocks until every block has
// finished. At most Width blocks execute concurrently. The first block
// error is returned; remaining blocks still run to completion. A Grid of
// zero or less is a no-op.
func (d *Device) Launch(k Kernel) error {
	if k.Body == nil {
		return errors.New("device: kernel body is nil")
	}
	if k.Grid <= 0 {
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(d.width)
	for block := 0; block < k.Grid; block++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{
						Block: block,
						Value: r,
						Stack: string(debug.Stack()),
					}
				}
			}()
			return k.Body(block)
		})
	}
	return g.Wait()
}
