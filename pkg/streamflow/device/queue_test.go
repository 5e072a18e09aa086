package device

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFOOrder(t *testing.T) {
	d := New(WithQueues(1))
	defer d.Close()
	q := d.Queue(0)

	const n = 200
	var got []int
	for i := 0; i < n; i++ {
		q.Submit(func() {
			got = append(got, i)
		})
	}
	q.Synchronize()

	// Tasks on one queue run strictly in submission order, so no
	// locking is needed around the slice.
	assert.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueue_Synchronize_Blocks(t *testing.T) {
	d := New(WithQueues(1))
	defer d.Close()
	q := d.Queue(0)

	release := make(chan struct{})
	var done bool
	q.Submit(func() {
		<-release
		done = true
	})

	close(release)
	q.Synchronize()
	assert.True(t, done)
}

func TestQueue_SubmitNil_Panics(t *testing.T) {
	d := New(WithQueues(1))
	defer d.Close()

	assert.PanicsWithValue(t, "device: cannot submit nil task", func() {
		d.Queue(0).Submit(nil)
	})
}

func TestQueues_RunConcurrently(t *testing.T) {
	d := New(WithQueues(2))
	defer d.Close()

	// Queue 0 blocks until queue 1 makes progress. If queues shared a
	// worker this would deadlock.
	var wg sync.WaitGroup
	wg.Add(1)
	fromQ1 := make(chan struct{})
	d.Queue(0).Submit(func() {
		defer wg.Done()
		<-fromQ1
	})
	d.Queue(1).Submit(func() {
		close(fromQ1)
	})
	wg.Wait()
	d.Synchronize()
}
