package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrEventInPast is returned when an event is scheduled before the clock.
	ErrEventInPast = errors.New("event inserted before current time")
	// ErrQueueFull is returned when the event list has reached its capacity.
	ErrQueueFull = errors.New("event list overflow; try to increase 'eventlistsizefactor' in the 'simulation' section")
	// ErrInvariant is wrapped by every InvariantError.
	ErrInvariant = errors.New("internal invariant violated")
	// ErrClosed is returned by a simulator after Close.
	ErrClosed = errors.New("simulator is closed")
)

// InvariantError reports a broken internal invariant of the simulation state.
// It is fatal: a simulator that returned one refuses to advance further.
type InvariantError struct {
	// Entity describes the object the violation was detected on, if any.
	Entity string
	Msg    string
}

func (e *InvariantError) Error() string {
	if e.Entity == "" {
		return "internal: " + e.Msg
	}
	return fmt.Sprintf("internal: %s (%s)", e.Msg, e.Entity)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariantf(format string, args ...any) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// invariantOn ties a violation to an entity.
func invariantOn(e entity, format string, args ...any) error {
	return &InvariantError{Entity: e.describe(), Msg: fmt.Sprintf(format, args...)}
}
