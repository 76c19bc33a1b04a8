package task

// Handle is a type-erased reference to a running task: the operations a
// scheduler needs (wake, clone, drop, run) without the scheduler needing to
// know the task's future or output type. Reading output by value requires the
// concrete *Task[T], which the code that created the task keeps for
// itself: a scheduler only ever drives a task, it doesn't consume its
// result.
type Handle struct {
	wake       func()
	cloneWaker func() Handle
	drop       func()
	run        func() RunResult
}

// Wake reschedules the task this handle refers to.
func (h Handle) Wake() {
	h.wake()
}

// Clone returns a new Handle referring to the same task, incrementing its
// reference count.
func (h Handle) Clone() Handle {
	return h.cloneWaker()
}

// Drop releases this reference. The task's backing memory (future,
// runtime, output) is conceptually freed once the reference count
// reaches zero; Go's garbage collector does the actual reclamation once
// nothing referencing the Task remains reachable.
func (h Handle) Drop() {
	h.drop()
}

// Run drives the task one step: poll it if no poll is already in flight
// and it hasn't reached a terminal state.
func (h Handle) Run() RunResult {
	return h.run()
}
