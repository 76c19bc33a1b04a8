package task

import "sync/atomic"

// Bit layout for the task state word: the low 60 bits are a plain
// reference count, and the top four bits are lifecycle flags. Reference
// count increments/decrements operate on the whole word as an integer (as
// opposed to masking each time) so that ordinary add/sub-by-one never
// touches the flag bits, as long as the count stays under refCountMax.
const (
	refCountMax  = uint64(1)<<60 - 1
	refCountMask = refCountMax

	finishedBit = uint64(1) << 63
	runningBit  = uint64(1) << 62
	canceledBit = uint64(1) << 61
	consumedBit = uint64(1) << 60
)

// RunResult is the outcome of driving a task one step.
type RunResult uint8

const (
	RunPending RunResult = iota
	RunFinished
	RunCanceled
)

// state is the single atomic word backing a task's lifecycle: reference
// count plus finished/running/canceled/consumed flags.
type state struct {
	word atomic.Uint64
}

func (s *state) addRef() {
	newWord := s.word.Add(1)
	if (newWord-1)&refCountMask == refCountMax {
		panic("task: reference count overflow")
	}
}

func (s *state) subRef() uint64 {
	newWord := s.word.Add(^uint64(0))
	if (newWord+1)&refCountMask == 0 {
		panic("task: reference count underflow")
	}
	return newWord
}

func (s *state) refCount() uint64 {
	return s.word.Load() & refCountMask
}

// pollLifecycle runs pollFun under the running-bit gate described by the
// poll outcome table: it returns early (without calling pollFun) if the
// task is already finished, canceled, or being polled elsewhere. The
// second return value reports whether pollFun actually ran this call,
// which callers use to fire the completion waker exactly once.
func (s *state) pollLifecycle(pollFun func() RunResult) (RunResult, bool) {
	for {
		current := s.word.Load()
		if current&refCountMask == 0 {
			panic("task: tried to poll a dropped future")
		}

		expected := current & refCountMask
		if s.word.CompareAndSwap(expected, current|runningBit) {
			break
		}

		failed := s.word.Load()
		switch {
		case failed&finishedBit != 0:
			return RunFinished, false
		case failed&canceledBit != 0:
			return RunCanceled, false
		case failed&runningBit != 0:
			return RunPending, false
		}
		// Neither finished, canceled, nor running: only the refcount
		// changed concurrently (a clone or drop). Retry the CAS.
	}

	result := pollFun()
	switch result {
	case RunFinished:
		s.clearRunningSet(finishedBit)
	case RunCanceled:
		s.clearRunningSet(canceledBit)
	default:
		s.clearRunningSet(0)
	}
	return result, true
}

func (s *state) clearRunningSet(bit uint64) {
	for {
		old := s.word.Load()
		nw := (old &^ runningBit) | bit
		if s.word.CompareAndSwap(old, nw) {
			return
		}
	}
}

// cancel sets the canceled bit, unless the task is already finished or
// already canceled. It reports whether this call performed the
// transition.
func (s *state) cancel() bool {
	for {
		old := s.word.Load()
		if old&(finishedBit|canceledBit) != 0 {
			return false
		}
		if s.word.CompareAndSwap(old, old|canceledBit) {
			return true
		}
	}
}

func (s *state) isTerminal() bool {
	return s.word.Load()&(finishedBit|canceledBit) != 0
}

// tryConsume implements get_output's CAS: finished && !canceled &&
// !consumed -> consumed.
func (s *state) tryConsume() bool {
	for {
		current := s.word.Load()
		if current&finishedBit == 0 || current&canceledBit != 0 || current&consumedBit != 0 {
			return false
		}
		if s.word.CompareAndSwap(current, current|consumedBit) {
			return true
		}
	}
}
