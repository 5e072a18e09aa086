package device

import "sync"

// queueDepth is the submission buffer size per queue. Submissions beyond
// the buffer block the submitter until the worker catches up, which
// bounds memory without changing ordering.
const queueDepth = 64

// Queue is an ordered execution lane. Tasks submitted to a queue run one
// at a time in submission order; tasks on different queues run
// concurrently and are unordered with respect to each other unless
// synchronized through an Event.
type Queue struct {
	id    int
	tasks chan func()
	wg    sync.WaitGroup
}

func newQueue(id int) *Queue {
	q := &Queue{
		id:    id,
		tasks: make(chan func(), queueDepth),
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	for task := range q.tasks {
		task()
		q.wg.Done()
	}
}

// ID returns the queue's index on its device.
func (q *Queue) ID() int {
	return q.id
}

// Submit enqueues fn for execution. It may block if the queue's
// submission buffer is full. Submit panics if the device has been closed.
func (q *Queue) Submit(fn func()) {
	if fn == nil {
		panic("device: cannot submit nil task")
	}
	q.wg.Add(1)
	q.tasks <- fn
}

// Synchronize blocks until every task submitted before the call has
// finished. It does not prevent further submissions.
func (q *Queue) Synchronize() {
	q.wg.Wait()
}

// shutdown waits for pending tasks and stops the worker.
func (q *Queue) shutdown() {
	q.wg.Wait()
	close(q.tasks)
}
