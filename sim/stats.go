package sim

// Statistics holds the running counters of a simulation. Time and
// PopulationSize are filled in when the record is read.
type Statistics struct {
	Time           float64
	PopulationSize int64
	Events         int64

	Births       int64
	Deaths       int64
	Immigrations int64
	Emigrations  int64

	PersonBinChanges      int64
	PartnershipBinChanges int64
	InfectionBinChanges   int64

	PartnershipsCreated int64
	PartnershipsEnded   int64
	Contacts            int64
	UnprotectedContacts int64
	Pregnancies         int64

	Infections     int64
	Clearances     int64
	Tests          int64
	Treatments     int64
	VainTreatments int64
	FollowUpVisits int64
}

// StatField is one named entry of a statistics record.
type StatField struct {
	Name  string
	Value float64
}

// Fields returns the record in its fixed column order.
func (st Statistics) Fields() []StatField {
	return []StatField{
		{"time", st.Time},
		{"popsize", float64(st.PopulationSize)},
		{"events", float64(st.Events)},
		{"births", float64(st.Births)},
		{"deaths", float64(st.Deaths)},
		{"immigrations", float64(st.Immigrations)},
		{"emigrations", float64(st.Emigrations)},
		{"personbinchanges", float64(st.PersonBinChanges)},
		{"partnershipbinchanges", float64(st.PartnershipBinChanges)},
		{"infectionbinchanges", float64(st.InfectionBinChanges)},
		{"partnershipscreated", float64(st.PartnershipsCreated)},
		{"partnershipsended", float64(st.PartnershipsEnded)},
		{"contacts", float64(st.Contacts)},
		{"unprotectedcontacts", float64(st.UnprotectedContacts)},
		{"pregnancies", float64(st.Pregnancies)},
		{"infections", float64(st.Infections)},
		{"clearances", float64(st.Clearances)},
		{"tests", float64(st.Tests)},
		{"treatments", float64(st.Treatments)},
		{"vaintreatments", float64(st.VainTreatments)},
		{"followupvisits", float64(st.FollowUpVisits)},
	}
}

// Statistics returns a copy of the counters at the current time.
func (s *Simulator) Statistics() (Statistics, error) {
	if s.closed {
		return Statistics{}, ErrClosed
	}
	st := s.stats
	st.Time = s.Now()
	st.PopulationSize = int64(s.pop.Size())
	return st, nil
}
