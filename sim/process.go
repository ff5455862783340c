package sim

import "math"

// Process holds at most one pending event of a recurring activity together
// with the reference time used to condition the next draw.
type Process struct {
	sched *Scheduler
	next  *Handle
	last  float64
}

func newProcess(s *Scheduler) *Process {
	return &Process{sched: s, last: s.Now()}
}

// Update cancels the pending event and schedules ev, keeping the reference time.
func (p *Process) Update(ev Event) error {
	p.sched.Remove(p.next)
	p.next = nil
	h, err := p.sched.Insert(ev)
	if err != nil {
		return err
	}
	p.next = h
	return nil
}

// Replace is Update followed by moving the reference time to the clock.
func (p *Process) Replace(ev Event) error {
	if err := p.Update(ev); err != nil {
		return err
	}
	p.last = p.sched.Now()
	return nil
}

// Clear cancels the pending event.
func (p *Process) Clear() {
	p.sched.Remove(p.next)
	p.next = nil
}

// SetLastTime moves the reference time to the clock.
func (p *Process) SetLastTime() { p.last = p.sched.Now() }

// SetLastTimeAt sets the reference time, which may not lie in the future.
func (p *Process) SetLastTimeAt(t float64) error {
	if t > p.sched.Now() {
		return invariantf("cannot set 'lastexecution' time into the future (%g > %g)", t, p.sched.Now())
	}
	p.last = t
	return nil
}

// LastTime returns the reference time.
func (p *Process) LastTime() float64 { return p.last }

// Pending reports whether an event is waiting to execute.
func (p *Process) Pending() bool { return p.next != nil && p.next.active }

// NextTime returns the time of the pending event, or +Inf.
func (p *Process) NextTime() float64 {
	if !p.Pending() {
		return math.Inf(1)
	}
	return p.next.ev.Time()
}
