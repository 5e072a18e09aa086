// Package device provides the host-backed execution substrate the task
// graph engine runs on: devices with ordered submission queues, typed
// memory buffers, one-shot events for cross-queue synchronization, and
// gridded kernel launches with bounded parallelism.
//
// The reference device executes in-process. Queues are goroutine-backed
// FIFO lanes, buffer storage is host memory, and kernel grids fan out
// across a worker set sized by the device width. This keeps the engine's
// scheduling semantics real and testable without accelerator hardware;
// binding to an actual accelerator runtime means reimplementing these
// primitives, not the engine.
package device

import (
	"errors"
	"runtime"
	"sync"
)

// ErrClosed is returned when an operation targets a closed device.
var ErrClosed = errors.New("device closed")

// defaultQueues is the queue count used when WithQueues is not given.
const defaultQueues = 2

// Device is a set of ordered execution queues plus a parallel width used
// to bound kernel launches. A Device is an explicit resource owned by the
// caller; there is no process-global device. Tests typically create small
// devices (one or two queues) to pin down scheduling behavior.
//
// All methods except Close are safe for concurrent use. Close must not
// race with in-flight submissions.
type Device struct {
	width  int
	queues []*Queue

	mu     sync.Mutex
	closed bool
}

// Option configures a Device.
type Option func(*deviceConfig)

type deviceConfig struct {
	queues int
	width  int
}

// WithQueues sets the number of submission queues. Values below 1 are
// ignored. The default is 2.
func WithQueues(n int) Option {
	return func(c *deviceConfig) {
		if n >= 1 {
			c.queues = n
		}
	}
}

// WithWidth sets the maximum number of kernel blocks executing
// concurrently during a Launch. Values below 1 are ignored. The default
// is runtime.GOMAXPROCS(0).
func WithWidth(n int) Option {
	return func(c *deviceConfig) {
		if n >= 1 {
			c.width = n
		}
	}
}

// New creates a device and starts its queue workers.
//
//	dev := device.New(device.WithQueues(3), device.WithWidth(8))
//	defer dev.Close()
func New(opts ...Option) *Device {
	cfg := deviceConfig{
		queues: defaultQueues,
		width:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Device{width: cfg.width}
	d.queues = make([]*Queue, cfg.queues)
	for i := range d.queues {
		d.queues[i] = newQueue(i)
	}
	return d
}

// QueueCount returns the number of submission queues.
func (d *Device) QueueCount() int {
	return len(d.queues)
}

// Width returns the kernel launch parallelism bound.
func (d *Device) Width() int {
	return d.width
}

// Queue returns queue i. It panics if i is out of range; queue indices
// come from the device itself, so an out-of-range index is a programming
// error rather than a runtime condition.
func (d *Device) Queue(i int) *Queue {
	if i < 0 || i >= len(d.queues) {
		panic("device: queue index out of range")
	}
	return d.queues[i]
}

// Synchronize blocks until every task submitted to every queue before the
// call has finished.
func (d *Device) Synchronize() {
	for _, q := range d.queues {
		q.Synchronize()
	}
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close drains all queues and stops their workers. It is idempotent.
// Submitting to a closed device's queues panics, so callers must not
// close a device while runs are in flight.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	for _, q := range d.queues {
		q.shutdown()
	}
	return nil
}
