// Package trace provides event-trace recording for simulation analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// EventRecord captures a single executed event.
type EventRecord struct {
	Time float64 // simulation time in days
	Kind string  // upper-case event kind label
	Text string  // human-readable description of the event
}
