package timeline

import (
	"sort"
	"sync"
	"time"
)

// Step is one action in a sequence, run Offset after the sequence starts.
type Step struct {
	Offset time.Duration
	Run    func()
}

// Sequence is a running schedule of steps.
type Sequence struct {
	mu        sync.Mutex
	timer     Timer
	cancelled bool
	done      chan struct{}
}

// Cancel stops any steps that have not yet run. It is safe to call more than
// once and after the sequence has finished.
func (s *Sequence) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.closeDoneLocked()
}

// Done is closed once every step has run or the sequence was cancelled.
func (s *Sequence) Done() <-chan struct{} {
	return s.done
}

func (s *Sequence) closeDoneLocked() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Schedule runs steps in offset order relative to the clock's current time.
// Only one timer is armed at a time; each fire arms the next step using its
// offset relative to the start, so delays never accumulate. Steps with
// non-positive offsets run before Schedule returns.
func Schedule(clock Clock, steps []Step) *Sequence {
	ordered := make([]Step, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Offset < ordered[j].Offset
	})

	seq := &Sequence{done: make(chan struct{})}
	start := clock.Now()

	var runFrom func(i int)
	runFrom = func(i int) {
		for ; i < len(ordered); i++ {
			seq.mu.Lock()
			if seq.cancelled {
				seq.mu.Unlock()
				return
			}
			wait := ordered[i].Offset - clock.Now().Sub(start)
			if wait > 0 {
				next := i
				seq.timer = clock.AfterFunc(wait, func() { runFrom(next) })
				seq.mu.Unlock()
				return
			}
			seq.mu.Unlock()

			if ordered[i].Run != nil {
				ordered[i].Run()
			}
		}

		seq.mu.Lock()
		seq.timer = nil
		seq.closeDoneLocked()
		seq.mu.Unlock()
	}

	runFrom(0)
	return seq
}
