package sim

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEvent appends its label to a shared log when it executes.
type recordingEvent struct {
	baseEvent
	label    string
	priority int
	log      *[]string
	err      error
}

func (e *recordingEvent) Kind() EventKind { return KindGeneric }
func (e *recordingEvent) Priority() int   { return e.priority }

func (e *recordingEvent) Execute(*Simulator) error {
	*e.log = append(*e.log, e.label)
	return e.err
}

func (e *recordingEvent) String() string { return fmt.Sprintf("%s | %s", e.label, e.stamp()) }

func newRecording(t float64, label string, log *[]string) *recordingEvent {
	return &recordingEvent{baseEvent: baseEvent{t}, label: label, priority: priorityOther, log: log}
}

func TestScheduler_ExecutesInTimeOrder(t *testing.T) {
	// GIVEN events inserted out of order
	var log []string
	sched := NewScheduler(0)
	s := &Simulator{sched: sched}
	for _, ev := range []struct {
		t     float64
		label string
	}{{5, "c"}, {1, "a"}, {3, "b"}} {
		_, err := sched.Insert(newRecording(ev.t, ev.label, &log))
		require.NoError(t, err)
	}

	// WHEN all events run
	n, err := sched.ExecuteN(s, 10, false)

	// THEN they ran by time and the clock sits at the last one
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, log)
	assert.Equal(t, 5.0, sched.Now())
	assert.Equal(t, int64(3), s.stats.Events)
}

func TestScheduler_TiesBreakByPriorityThenInsertion(t *testing.T) {
	// GIVEN simultaneous events with different priorities
	var log []string
	sched := NewScheduler(0)
	s := &Simulator{sched: sched}
	late := newRecording(2, "person-death", &log)
	late.priority = priorityPersonDeath
	first := newRecording(2, "other-1", &log)
	second := newRecording(2, "other-2", &log)
	early := newRecording(2, "ps-death", &log)
	early.priority = priorityPartnershipDeath
	for _, ev := range []Event{first, late, second, early} {
		_, err := sched.Insert(ev)
		require.NoError(t, err)
	}

	// WHEN executed
	_, err := sched.ExecuteN(s, 4, false)

	// THEN lower priorities run first and equal ones keep insertion order
	require.NoError(t, err)
	assert.Equal(t, []string{"ps-death", "person-death", "other-1", "other-2"}, log)
}

func TestScheduler_Insert_RejectsPastAndOverflow(t *testing.T) {
	var log []string
	sched := NewScheduler(2)
	s := &Simulator{sched: sched}
	_, err := sched.Insert(newRecording(1, "a", &log))
	require.NoError(t, err)
	_, err = sched.ExecuteN(s, 1, false)
	require.NoError(t, err)

	t.Run("before clock", func(t *testing.T) {
		_, err := sched.Insert(newRecording(0.5, "past", &log))
		assert.True(t, errors.Is(err, ErrEventInPast))
	})
	t.Run("at clock", func(t *testing.T) {
		_, err := sched.Insert(newRecording(1, "now", &log))
		assert.NoError(t, err)
	})
	t.Run("capacity counts cancelled nodes", func(t *testing.T) {
		h, err := sched.Insert(newRecording(3, "b", &log))
		require.NoError(t, err)
		sched.Remove(h)
		_, err = sched.Insert(newRecording(4, "c", &log))
		assert.True(t, errors.Is(err, ErrQueueFull))
	})
}

func TestScheduler_Remove_SkipsCancelledEvents(t *testing.T) {
	// GIVEN three events of which the middle one is cancelled
	var log []string
	sched := NewScheduler(0)
	s := &Simulator{sched: sched}
	_, _ = sched.Insert(newRecording(1, "a", &log))
	h, _ := sched.Insert(newRecording(2, "b", &log))
	_, _ = sched.Insert(newRecording(3, "c", &log))
	sched.Remove(h)
	sched.Remove(h)

	// THEN sizes report the cancelled node as queued but inactive
	capacity, total, active := sched.Sizes()
	assert.Equal(t, 0, capacity)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, active)

	// WHEN everything runs
	n, err := sched.ExecuteN(s, 10, false)

	// THEN the cancelled event never executes
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "c"}, log)
	assert.False(t, h.Executed())
}

func TestScheduler_ExecuteBy_MovesClockExactly(t *testing.T) {
	tests := []struct {
		name    string
		times   []float64
		advance float64
		wantN   int
	}{
		{"no events", nil, 7.5, 0},
		{"events beyond horizon", []float64{10, 20}, 7.5, 0},
		{"event at horizon runs", []float64{2, 7.5, 9}, 7.5, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var log []string
			sched := NewScheduler(0)
			s := &Simulator{sched: sched}
			for _, ti := range tc.times {
				_, err := sched.Insert(newRecording(ti, "e", &log))
				require.NoError(t, err)
			}

			n, err := sched.ExecuteBy(s, tc.advance)

			require.NoError(t, err)
			assert.Equal(t, tc.wantN, n)
			assert.Equal(t, tc.advance, sched.Now())
		})
	}
}

func TestScheduler_ExecuteBy_RejectsNegative(t *testing.T) {
	sched := NewScheduler(0)
	_, err := sched.ExecuteBy(&Simulator{sched: sched}, -1)
	assert.Error(t, err)
}

func TestScheduler_ExecuteNext_WrapsEventError(t *testing.T) {
	// GIVEN an event failing with an invariant error
	var log []string
	sched := NewScheduler(0)
	ev := newRecording(1, "bad", &log)
	ev.err = invariantf("broken")
	_, _ = sched.Insert(ev)

	// WHEN it runs
	ok, err := sched.ExecuteNext(&Simulator{sched: sched})

	// THEN the error keeps its class
	assert.True(t, ok)
	assert.True(t, errors.Is(err, ErrInvariant))
	var inv *InvariantError
	assert.True(t, errors.As(err, &inv))
}

func TestScheduler_Peek_LeavesQueueUnchanged(t *testing.T) {
	var log []string
	sched := NewScheduler(0)
	_, _ = sched.Insert(newRecording(3, "c", &log))
	h, _ := sched.Insert(newRecording(1, "a", &log))
	_, _ = sched.Insert(newRecording(2, "b", &log))
	sched.Remove(h)

	all := sched.Peek(10, false)
	activeOnly := sched.Peek(1, true)

	require.Len(t, all, 3)
	assert.Equal(t, 1.0, all[0].Event().Time())
	assert.False(t, all[0].Active())
	require.Len(t, activeOnly, 1)
	assert.Equal(t, 2.0, activeOnly[0].Event().Time())
	_, total, active := sched.Sizes()
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, active)
}

func TestScheduler_Peek_NonPositiveCountIsEmpty(t *testing.T) {
	var log []string
	sched := NewScheduler(0)
	_, _ = sched.Insert(newRecording(1, "a", &log))

	for _, n := range []int{0, -1, -100} {
		assert.Empty(t, sched.Peek(n, false), "n=%d", n)
	}
	_, total, _ := sched.Sizes()
	assert.Equal(t, 1, total)
}
