package streamflow

import "sync"

// State is the lifecycle state of a run handle.
type State uint8

const (
	// StatePending means the run is still executing on device queues.
	StatePending State = iota

	// StateOk means every step drained without a fault.
	StateOk

	// StateFault means the run captured an execution fault. The handle
	// is terminal; retry means compiling or rerunning a fresh graph.
	StateFault
)

var stateStrings = [...]string{
	StatePending: "pending",
	StateOk:      "ok",
	StateFault:   "fault",
}

func (s State) String() string {
	if int(s) < len(stateStrings) {
		return stateStrings[s]
	}
	return "unknown"
}

// Handle is the completion token for one run of a compiled graph.
//
// Run returns a Handle immediately; the work proceeds on the device's
// queues. Wait blocks for completion, Poll checks without blocking, and
// Done supports select-based timeouts built outside the engine. A handle
// resolves exactly once and then never changes state.
//
// Discarding a handle without calling Wait does not abandon the run: the
// submitted steps drain regardless. It only discards the caller's way of
// learning the outcome.
type Handle struct {
	runID string
	done  chan struct{}

	mu    sync.Mutex
	state State
	fault error
}

func newHandle(runID string) *Handle {
	return &Handle{
		runID: runID,
		done:  make(chan struct{}),
	}
}

// RunID returns the run's identifier.
func (h *Handle) RunID() string {
	return h.runID
}

// Wait blocks until the run completes and returns nil on success or the
// first captured execution fault. Calling Wait again on a resolved
// handle returns the stored result immediately.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fault
}

// Poll reports the handle's state without blocking. While the run is in
// flight it returns (StatePending, nil); afterwards it returns the same
// terminal state and fault every time.
func (h *Handle) Poll() (State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.fault
}

// Done returns a channel closed when the run completes, for use in
// select statements. The engine has no timeouts or cancellation; callers
// wanting either build them over this channel or Poll.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// resolve moves the handle to its terminal state. It must be called
// exactly once, after every step of the run has drained.
func (h *Handle) resolve(fault error) {
	h.mu.Lock()
	if fault != nil {
		h.state = StateFault
		h.fault = fault
	} else {
		h.state = StateOk
	}
	h.mu.Unlock()
	close(h.done)
}
