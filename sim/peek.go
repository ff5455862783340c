package sim

// EventInfo describes a queued event.
type EventInfo struct {
	Time   float64
	Kind   string
	Active bool
	// Text is empty unless requested.
	Text string
}

// PeekEvents lists up to n queued events in execution order. With
// activeOnly, cancelled events are skipped.
func (s *Simulator) PeekEvents(n int, withText, activeOnly bool) ([]EventInfo, error) {
	if s.closed {
		return nil, ErrClosed
	}
	handles := s.sched.Peek(n, activeOnly)
	out := make([]EventInfo, len(handles))
	for i, h := range handles {
		ev := h.Event()
		out[i] = EventInfo{Time: ev.Time(), Kind: ev.Kind().String(), Active: h.Active()}
		if withText {
			out[i].Text = ev.String()
		}
	}
	return out, nil
}
