package trace

import "math"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalEvents      int
	KeptEvents       int
	FirstTime        float64
	LastTime         float64
	UniqueKinds      int
	KindDistribution map[string]int // event kind → count among kept records
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		KindDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalEvents = st.Recorded()
	summary.KeptEvents = len(st.Events)
	if len(st.Events) > 0 {
		summary.FirstTime = math.Inf(1)
		summary.LastTime = math.Inf(-1)
		for _, e := range st.Events {
			summary.KindDistribution[e.Kind]++
			summary.FirstTime = math.Min(summary.FirstTime, e.Time)
			summary.LastTime = math.Max(summary.LastTime, e.Time)
		}
	}

	summary.UniqueKinds = len(summary.KindDistribution)

	return summary
}
