package streamflow

// TaskID identifies a task within its graph. IDs are assigned densely in
// declaration order and never change, so they double as stable indices
// into the graph's task arena.
type TaskID int

// Kind classifies what a task does when it executes.
type Kind uint8

const (
	// KindCopy moves elements between buffers or across the host
	// boundary.
	KindCopy Kind = iota

	// KindInvoke runs an arbitrary callable on its queue.
	KindInvoke

	// KindReduce folds an element range into a single result element.
	KindReduce
)

var kindStrings = [...]string{
	KindCopy:   "copy",
	KindInvoke: "invoke",
	KindReduce: "reduce",
}

func (k Kind) String() string {
	if int(k) < len(kindStrings) {
		return kindStrings[k]
	}
	return "unknown"
}

// ReduceMode selects how a reduction treats the result buffer's prior
// contents.
type ReduceMode uint8

const (
	// ModeInitialized folds the input range into the result's existing
	// value, which acts as the seed. An empty range leaves the seed
	// untouched.
	ModeInitialized ReduceMode = iota

	// ModeUninitialized overwrites the result with the fold of the
	// input range alone. The range must not be empty.
	ModeUninitialized
)

var reduceModeStrings = [...]string{
	ModeInitialized:   "initialized",
	ModeUninitialized: "uninitialized",
}

func (m ReduceMode) String() string {
	if int(m) < len(reduceModeStrings) {
		return reduceModeStrings[m]
	}
	return "unknown"
}

// Callable is the body of an Invoke task. It runs on a device queue when
// the task's dependencies are satisfied; a non-nil return faults the run.
type Callable func() error

// Task is a lightweight handle to one node in a Graph. Handles are
// returned by the declaration functions (Copy, Invoke, Reduce, ...) and
// stay valid for the life of the graph. The zero Task is not usable.
type Task struct {
	g  *Graph
	id TaskID
}

// ID returns the task's stable identifier within its graph.
func (t Task) ID() TaskID {
	return t.id
}

// Succeed declares that t runs after every task in preds and returns t
// for chaining. It panics on a zero handle, a handle from a different
// graph, a self edge, or a frozen graph; use Graph.AddDependency when an
// error return is preferred.
func (t Task) Succeed(preds ...Task) Task {
	t.mustGraph()
	for _, p := range preds {
		if err := t.g.AddDependency(p, t); err != nil {
			panic("streamflow: " + err.Error())
		}
	}
	return t
}

// Precede declares that t runs before every task in succs and returns t
// for chaining. Panic behavior matches Succeed.
func (t Task) Precede(succs ...Task) Task {
	t.mustGraph()
	for _, s := range succs {
		if err := t.g.AddDependency(t, s); err != nil {
			panic("streamflow: " + err.Error())
		}
	}
	return t
}

// Label attaches a display name to the task for plan dumps, logs, and
// errors. Unlabeled tasks render as "kind#id".
func (t Task) Label(label string) Task {
	t.mustGraph()
	t.g.setLabel(t.id, label)
	return t
}

func (t Task) mustGraph() {
	if t.g == nil {
		panic("streamflow: zero task handle")
	}
}
