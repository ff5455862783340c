package trace

// TraceLevel controls the verbosity of event tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every executed event.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level    TraceLevel
	Capacity int // most recent events kept; <= 0 keeps all
}

// SimulationTrace collects event records during a simulation. With a
// positive capacity it keeps only the most recent records, but counts all.
type SimulationTrace struct {
	Config   TraceConfig
	Events   []EventRecord
	next     int
	recorded int
	dropped  int
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	st := &SimulationTrace{Config: config}
	if config.Capacity > 0 {
		st.Events = make([]EventRecord, 0, config.Capacity)
	}
	return st
}

// RecordEvent appends an event record, overwriting the oldest one once the
// capacity is reached.
func (st *SimulationTrace) RecordEvent(record EventRecord) {
	st.recorded++
	if st.Config.Capacity <= 0 || len(st.Events) < st.Config.Capacity {
		st.Events = append(st.Events, record)
		return
	}
	st.Events[st.next] = record
	st.next = (st.next + 1) % st.Config.Capacity
	st.dropped++
}

// Recorded returns the number of events recorded, dropped ones included.
func (st *SimulationTrace) Recorded() int { return st.recorded }

// Dropped returns the number of records overwritten by newer ones.
func (st *SimulationTrace) Dropped() int { return st.dropped }

// Ordered returns the kept records oldest first.
func (st *SimulationTrace) Ordered() []EventRecord {
	out := make([]EventRecord, 0, len(st.Events))
	out = append(out, st.Events[st.next:]...)
	return append(out, st.Events[:st.next]...)
}
