package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_AtMostOnePendingEvent(t *testing.T) {
	// GIVEN a process that is updated several times
	var log []string
	sched := NewScheduler(0)
	s := &Simulator{sched: sched}
	proc := newProcess(sched)
	require.NoError(t, proc.Update(newRecording(5, "first", &log)))
	require.NoError(t, proc.Update(newRecording(3, "second", &log)))
	require.NoError(t, proc.Replace(newRecording(4, "third", &log)))

	// THEN only the last event is active
	_, total, active := sched.Sizes()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, active)
	assert.True(t, proc.Pending())
	assert.Equal(t, 4.0, proc.NextTime())

	// WHEN the queue drains
	_, err := sched.ExecuteN(s, 10, false)

	// THEN only that event ran
	require.NoError(t, err)
	assert.Equal(t, []string{"third"}, log)
	assert.False(t, proc.Pending())
	assert.True(t, math.IsInf(proc.NextTime(), 1))
}

func TestProcess_Clear_CancelsPending(t *testing.T) {
	var log []string
	sched := NewScheduler(0)
	proc := newProcess(sched)
	require.NoError(t, proc.Update(newRecording(1, "a", &log)))

	proc.Clear()
	proc.Clear()

	assert.False(t, proc.Pending())
	_, _, active := sched.Sizes()
	assert.Equal(t, 0, active)
}

func TestProcess_LastTime(t *testing.T) {
	var log []string
	sched := NewScheduler(0)
	s := &Simulator{sched: sched}
	_, _ = sched.ExecuteBy(s, 10)
	proc := newProcess(sched)
	assert.Equal(t, 10.0, proc.LastTime())

	t.Run("update keeps reference time", func(t *testing.T) {
		require.NoError(t, proc.SetLastTimeAt(4))
		require.NoError(t, proc.Update(newRecording(12, "a", &log)))
		assert.Equal(t, 4.0, proc.LastTime())
	})
	t.Run("replace moves reference time to clock", func(t *testing.T) {
		require.NoError(t, proc.Replace(newRecording(12, "b", &log)))
		assert.Equal(t, 10.0, proc.LastTime())
	})
	t.Run("future reference time is an invariant violation", func(t *testing.T) {
		err := proc.SetLastTimeAt(11)
		assert.True(t, errors.Is(err, ErrInvariant))
	})
}
