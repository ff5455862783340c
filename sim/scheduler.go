package sim

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// Handle is the scheduler's record of one queued event. Removing an event
// only marks its handle inactive; the node stays queued until it reaches
// the front, where it is discarded.
type Handle struct {
	ev       Event
	seq      int64
	active   bool
	executed bool
}

// Event returns the scheduled event.
func (h *Handle) Event() Event { return h.ev }

// Active reports whether the event is still due to execute.
func (h *Handle) Active() bool { return h.active }

// Executed reports whether the event has run.
func (h *Handle) Executed() bool { return h.executed }

// eventQueue is a min-heap ordered by (Time, Priority, seq).
// Implements heap.Interface.
type eventQueue []*Handle

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	ei, ej := q[i].ev, q[j].ev
	if ei.Time() != ej.Time() {
		return ei.Time() < ej.Time()
	}
	if ei.Priority() != ej.Priority() {
		return ei.Priority() < ej.Priority()
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(*Handle))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Scheduler owns the simulation clock and the bounded event queue.
type Scheduler struct {
	clock    float64
	queue    eventQueue
	capacity int
	active   int
	nextSeq  int64
	executed int64
}

// NewScheduler creates a scheduler holding at most capacity queued events.
// A capacity <= 0 means unbounded.
func NewScheduler(capacity int) *Scheduler {
	return &Scheduler{capacity: capacity}
}

// Now returns the simulation clock.
func (s *Scheduler) Now() float64 { return s.clock }

// Executed returns the number of events executed so far.
func (s *Scheduler) Executed() int64 { return s.executed }

// Insert queues an event. Events may not be scheduled before the clock.
func (s *Scheduler) Insert(ev Event) (*Handle, error) {
	t := ev.Time()
	if math.IsNaN(t) || t < s.clock {
		return nil, fmt.Errorf("%w: %s at %g, clock is %g", ErrEventInPast, ev.Kind(), t, s.clock)
	}
	if s.capacity > 0 && len(s.queue) >= s.capacity {
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, s.capacity)
	}
	s.nextSeq++
	h := &Handle{ev: ev, seq: s.nextSeq, active: true}
	heap.Push(&s.queue, h)
	s.active++
	return h, nil
}

// Remove cancels a queued event. Removing a nil, cancelled or executed
// handle is a no-op.
func (s *Scheduler) Remove(h *Handle) {
	if h == nil || !h.active || h.executed {
		return
	}
	h.active = false
	s.active--
}

// front drops cancelled events from the head of the queue and returns the
// next active one without removing it.
func (s *Scheduler) front() *Handle {
	for len(s.queue) > 0 {
		h := s.queue[0]
		if h.active {
			return h
		}
		heap.Pop(&s.queue)
	}
	return nil
}

// ExecuteNext runs the next active event. It reports false if there is none.
func (s *Scheduler) ExecuteNext(sim *Simulator) (bool, error) {
	h := s.front()
	if h == nil {
		return false, nil
	}
	heap.Pop(&s.queue)
	s.clock = h.ev.Time()
	h.active = false
	h.executed = true
	s.active--
	s.executed++
	sim.observe(h.ev)
	if err := h.ev.Execute(sim); err != nil {
		return true, fmt.Errorf("executing %s: %w", h.ev, err)
	}
	return true, nil
}

// ExecuteBy runs every event due within d of the clock and then moves the
// clock forward by exactly d. It returns the number of events executed.
func (s *Scheduler) ExecuteBy(sim *Simulator, d float64) (int, error) {
	if d < 0 || math.IsNaN(d) {
		return 0, fmt.Errorf("cannot advance by %g", d)
	}
	stop := s.clock + d
	n := 0
	for {
		h := s.front()
		if h == nil || h.ev.Time() > stop {
			break
		}
		if _, err := s.ExecuteNext(sim); err != nil {
			return n + 1, err
		}
		n++
	}
	s.clock = stop
	return n, nil
}

// ExecuteN runs up to n events and returns the number executed.
func (s *Scheduler) ExecuteN(sim *Simulator, n int, verbose bool) (int, error) {
	done := 0
	for done < n {
		if verbose {
			if h := s.front(); h != nil {
				logrus.Infof("<< %s", h.ev)
			}
		}
		ok, err := s.ExecuteNext(sim)
		if ok {
			done++
		}
		if err != nil || !ok {
			return done, err
		}
	}
	return done, nil
}

// Sizes returns the capacity, the number of queued nodes (cancelled ones
// included) and the number of active events.
func (s *Scheduler) Sizes() (capacity, total, active int) {
	return s.capacity, len(s.queue), s.active
}

// Peek returns up to n queued handles in execution order without changing
// the queue. With activeOnly, cancelled events are skipped.
func (s *Scheduler) Peek(n int, activeOnly bool) []*Handle {
	if n <= 0 {
		return nil
	}
	sorted := append(eventQueue(nil), s.queue...)
	sort.Sort(sorted)
	out := make([]*Handle, 0, min(n, len(sorted)))
	for _, h := range sorted {
		if len(out) >= n {
			break
		}
		if activeOnly && !h.active {
			continue
		}
		out = append(out, h)
	}
	return out
}
