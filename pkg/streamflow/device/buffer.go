package device

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrFreed is returned when a transfer or kernel touches a buffer
	// that has already been freed.
	ErrFreed = errors.New("buffer freed")

	// ErrSizeMismatch is returned when a transfer's source and
	// destination hold different element counts.
	ErrSizeMismatch = errors.New("copy length mismatch")
)

// Buffer is a typed device allocation of a fixed number of elements.
// Element storage lives on the device for its whole lifetime; the host
// moves data in and out through Memcpy transfers.
//
// Buffers are not reference counted. Free releases the storage and makes
// every subsequent transfer fail with ErrFreed. Freeing a buffer while a
// run that uses it is in flight is a caller error.
type Buffer[T any] struct {
	dev   *Device
	data  []T
	freed atomic.Bool
}

// Alloc allocates a zeroed buffer of n elements on d.
//
// Alloc panics on a nil device or a negative count; both are programming
// errors in graph construction, not runtime conditions.
func Alloc[T any](d *Device, n int) *Buffer[T] {
	if d == nil {
		panic("device: cannot allocate on nil device")
	}
	if n < 0 {
		panic("device: allocation count cannot be negative")
	}
	return &Buffer[T]{dev: d, data: make([]T, n)}
}

// Len returns the element count the buffer was allocated with. Len is
// stable across Free.
func (b *Buffer[T]) Len() int {
	return len(b.data)
}

// Device returns the device the buffer lives on.
func (b *Buffer[T]) Device() *Device {
	return b.dev
}

// Freed reports whether Free has been called.
func (b *Buffer[T]) Freed() bool {
	return b.freed.Load()
}

// Free releases the buffer. It is idempotent.
func (b *Buffer[T]) Free() {
	b.freed.Store(true)
}

// Elems exposes the backing storage. Kernels use it for in-place access;
// host code should prefer Memcpy transfers. The result is only valid
// while the buffer is unfreed.
func (b *Buffer[T]) Elems() []T {
	return b.data
}

// Span returns the half-open element range [first, last) of the buffer.
// The range is not validated here; the graph compiler rejects spans that
// fall outside the buffer or are inverted.
func (b *Buffer[T]) Span(first, last int) Span[T] {
	return Span[T]{buf: b, first: first, last: last}
}

// All returns a span covering the whole buffer.
func (b *Buffer[T]) All() Span[T] {
	return Span[T]{buf: b, first: 0, last: len(b.data)}
}

// Span is a half-open element range [First, Last) within a buffer.
// The zero Span has no buffer.
type Span[T any] struct {
	buf   *Buffer[T]
	first int
	last  int
}

// Buffer returns the underlying buffer, or nil for the zero span.
func (s Span[T]) Buffer() *Buffer[T] {
	return s.buf
}

// First returns the inclusive start index.
func (s Span[T]) First() int {
	return s.first
}

// Last returns the exclusive end index.
func (s Span[T]) Last() int {
	return s.last
}

// Len returns Last - First. It can be negative for an inverted span;
// such spans are rejected at graph compile time.
func (s Span[T]) Len() int {
	return s.last - s.first
}

// MemcpyIn copies host elements into a device buffer. The element counts
// must match exactly.
func MemcpyIn[T any](dst *Buffer[T], src []T) error {
	if dst.Freed() {
		return fmt.Errorf("%w: destination", ErrFreed)
	}
	if len(src) != dst.Len() {
		return fmt.Errorf("%w: dst has %d elements, src has %d", ErrSizeMismatch, dst.Len(), len(src))
	}
	copy(dst.data, src)
	return nil
}

// MemcpyOut copies a device buffer into host storage. The element counts
// must match exactly.
func MemcpyOut[T any](dst []T, src *Buffer[T]) error {
	if src.Freed() {
		return fmt.Errorf("%w: source", ErrFreed)
	}
	if len(dst) != src.Len() {
		return fmt.Errorf("%w: dst has %d elements, src has %d", ErrSizeMismatch, len(dst), src.Len())
	}
	copy(dst, src.data)
	return nil
}

// Memcpy copies one device buffer into another. The element counts must
// match exactly.
func Memcpy[T any](dst, src *Buffer[T]) error {
	if dst.Freed() {
		return fmt.Errorf("%w: destination", ErrFreed)
	}
	if src.Freed() {
		return fmt.Errorf("%w: source", ErrFreed)
	}
	if dst.Len() != src.Len() {
		return fmt.Errorf("%w: dst has %d elements, src has %d", ErrSizeMismatch, dst.Len(), src.Len())
	}
	copy(dst.data, src.data)
	return nil
}

// Fill sets every element of the buffer to v.
func Fill[T any](dst *Buffer[T], v T) error {
	if dst.Freed() {
		return fmt.Errorf("%w: destination", ErrFreed)
	}
	for i := range dst.data {
		dst.data[i] = v
	}
	return nil
}
