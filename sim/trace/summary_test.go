package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalEvents != 0 || summary.KeptEvents != 0 {
		t.Errorf("expected 0 events, got %d/%d", summary.TotalEvents, summary.KeptEvents)
	}
	if summary.FirstTime != 0 || summary.LastTime != 0 {
		t.Error("expected zero time range")
	}
	if summary.UniqueKinds != 0 || len(summary.KindDistribution) != 0 {
		t.Error("expected empty kind distribution")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed event kinds
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	st.RecordEvent(EventRecord{Time: 3, Kind: "HAVESEX"})
	st.RecordEvent(EventRecord{Time: 1, Kind: "BIRTH"})
	st.RecordEvent(EventRecord{Time: 7, Kind: "HAVESEX"})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts and time range match
	if summary.TotalEvents != 3 {
		t.Errorf("expected 3 events, got %d", summary.TotalEvents)
	}
	if summary.UniqueKinds != 2 {
		t.Errorf("expected 2 unique kinds, got %d", summary.UniqueKinds)
	}
	if summary.KindDistribution["HAVESEX"] != 2 {
		t.Errorf("expected 2 HAVESEX, got %d", summary.KindDistribution["HAVESEX"])
	}
	if summary.FirstTime != 1 || summary.LastTime != 7 {
		t.Errorf("expected range [1, 7], got [%g, %g]", summary.FirstTime, summary.LastTime)
	}
}

func TestSummarize_BoundedTrace_CountsDropped(t *testing.T) {
	// GIVEN a trace that dropped records
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents, Capacity: 1})
	st.RecordEvent(EventRecord{Time: 1, Kind: "BIRTH"})
	st.RecordEvent(EventRecord{Time: 2, Kind: "TREAT"})

	// WHEN summarized
	summary := Summarize(st)

	// THEN the total includes dropped records while the distribution covers kept ones
	if summary.TotalEvents != 2 || summary.KeptEvents != 1 {
		t.Errorf("expected 2 total and 1 kept, got %d and %d", summary.TotalEvents, summary.KeptEvents)
	}
	if summary.KindDistribution["TREAT"] != 1 || summary.KindDistribution["BIRTH"] != 0 {
		t.Errorf("unexpected distribution %v", summary.KindDistribution)
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	// GIVEN a nil trace
	// WHEN summarized
	summary := Summarize(nil)

	// THEN the summary is zero-valued
	if summary.TotalEvents != 0 || summary.KindDistribution == nil {
		t.Error("expected zero summary with non-nil map")
	}
}
