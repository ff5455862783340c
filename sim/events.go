package sim

import "fmt"

// deathEvent ends the life of a person, a partnership or an infection.
type deathEvent struct {
	baseEvent
	target entity
}

func (e *deathEvent) Kind() EventKind { return KindDeath }

// Priority runs partnership deaths before infection deaths and both before
// the deaths of persons at the same instant.
func (e *deathEvent) Priority() int {
	switch e.target.(type) {
	case *Partnership:
		return priorityPartnershipDeath
	case *Infection:
		return priorityInfectionDeath
	}
	return priorityPersonDeath
}

func (e *deathEvent) Execute(*Simulator) error { return e.target.slotDeath() }

func (e *deathEvent) String() string {
	return fmt.Sprintf("death: %s | %s", e.target.describe(), e.stamp())
}

// binChangeEvent moves an entity from one bin to another.
type binChangeEvent struct {
	baseEvent
	target   entity
	from, to int
}

func (e *binChangeEvent) Kind() EventKind { return KindBinChange }
func (e *binChangeEvent) Priority() int   { return kindPriority(KindBinChange) }

func (e *binChangeEvent) Execute(*Simulator) error { return e.target.slotBinChange(e.from, e.to) }

func (e *binChangeEvent) String() string {
	cr := e.target.base().creator
	return fmt.Sprintf("binchange: %s from='%s' to='%s' | %s",
		e.target.describe(), cr.BinName(e.from), cr.BinName(e.to), e.stamp())
}

// haveSexEvent is one contact of a partnership.
type haveSexEvent struct {
	baseEvent
	ps          *Partnership
	unprotected bool
}

func (e *haveSexEvent) Kind() EventKind { return KindHaveSex }
func (e *haveSexEvent) Priority() int   { return kindPriority(KindHaveSex) }

func (e *haveSexEvent) Execute(*Simulator) error { return e.ps.slotHaveSex(e.unprotected) }

func (e *haveSexEvent) String() string {
	unprot := "no"
	if e.unprotected {
		unprot = "yes"
	}
	return fmt.Sprintf("havesex: psuid=%d unprot=%s | %s", e.ps.id, unprot, e.stamp())
}

// psInitiateEvent starts a partner search.
type psInitiateEvent struct {
	baseEvent
	former *PSFormer
	person *Person
}

func (e *psInitiateEvent) Kind() EventKind { return KindPSInitiate }
func (e *psInitiateEvent) Priority() int   { return kindPriority(KindPSInitiate) }

func (e *psInitiateEvent) Execute(*Simulator) error { return e.former.slotPSInitiate(e.person) }

func (e *psInitiateEvent) String() string {
	return fmt.Sprintf("psinitiate: psformer='%s' puid=%d | %s", e.former.name, e.person.id, e.stamp())
}

// visitEvent is a clinic visit.
type visitEvent struct {
	baseEvent
	person *Person
	gpType int
	notif  Notification
	cause  VisitCause
}

func (e *visitEvent) Kind() EventKind { return KindVisitGP }
func (e *visitEvent) Priority() int   { return kindPriority(KindVisitGP) }

func (e *visitEvent) Execute(*Simulator) error {
	return e.person.slotVisitGP(e.gpType, e.cause, e.notif)
}

func (e *visitEvent) String() string {
	return fmt.Sprintf("visitgp: puid=%d gpvisittype='%s' cause=%s | %s",
		e.person.id, e.person.sim.coll.visits.TypeName(e.gpType), e.cause, e.stamp())
}

// treatEvent treats one infection type of a person once a test result is in.
type treatEvent struct {
	baseEvent
	person  *Person
	infType int
}

func (e *treatEvent) Kind() EventKind { return KindTreat }
func (e *treatEvent) Priority() int   { return kindPriority(KindTreat) }

func (e *treatEvent) Execute(*Simulator) error { return e.person.slotTreat(e.infType, 0) }

func (e *treatEvent) String() string {
	return fmt.Sprintf("treat: puid=%d infectiontype='%s' | %s",
		e.person.id, e.person.sim.coll.infections.TypeName(e.infType), e.stamp())
}

// provokeVisitEvent sends the host of an infection to the clinic.
type provokeVisitEvent struct {
	baseEvent
	infection *Infection
}

func (e *provokeVisitEvent) Kind() EventKind { return KindProvokeGPVisit }
func (e *provokeVisitEvent) Priority() int   { return kindPriority(KindProvokeGPVisit) }

func (e *provokeVisitEvent) Execute(*Simulator) error { return e.infection.slotProvokeGPVisit() }

func (e *provokeVisitEvent) String() string {
	return fmt.Sprintf("provokevisitgp: infuid=%d hostpuid=%d | %s",
		e.infection.id, e.infection.host.id, e.stamp())
}

// infectPersonEvent seeds an infection in a person entering the population.
type infectPersonEvent struct {
	baseEvent
	ic     *InfectionCreator
	person *Person
}

func (e *infectPersonEvent) Kind() EventKind { return KindInfectPerson }
func (e *infectPersonEvent) Priority() int   { return kindPriority(KindInfectPerson) }

func (e *infectPersonEvent) Execute(*Simulator) error { return e.ic.slotInfectPerson(e.person) }

func (e *infectPersonEvent) String() string {
	return fmt.Sprintf("infectperson: infectiontype='%s' puid=%d | %s", e.ic.name, e.person.id, e.stamp())
}

// birthEvent ends a pregnancy, or replaces a person who died.
type birthEvent struct {
	baseEvent
	cause          Cause
	mother, father *Person
}

func (e *birthEvent) Kind() EventKind { return KindBirth }
func (e *birthEvent) Priority() int   { return kindPriority(KindBirth) }

func (e *birthEvent) Execute(s *Simulator) error {
	if e.mother != nil {
		if err := e.mother.slotBabyIsBorn(e.father); err != nil {
			return err
		}
	}
	return s.pop.slotBirth(e.cause, e.mother, e.father)
}

func (e *birthEvent) String() string {
	return fmt.Sprintf("birth: motherpuid=%d fatherpuid=%d cause=%s | %s",
		personID(e.mother), personID(e.father), e.cause, e.stamp())
}

// getPregnantEvent is a spontaneous pregnancy.
type getPregnantEvent struct {
	baseEvent
	mother *Person
}

func (e *getPregnantEvent) Kind() EventKind { return KindGetPregnant }
func (e *getPregnantEvent) Priority() int   { return kindPriority(KindGetPregnant) }

func (e *getPregnantEvent) Execute(*Simulator) error { return e.mother.slotGetPregnant(nil) }

func (e *getPregnantEvent) String() string {
	return fmt.Sprintf("getpregnant: motherpuid=%d | %s", e.mother.id, e.stamp())
}

// abortionEvent ends a pregnancy the mother does not survive.
type abortionEvent struct {
	baseEvent
	mother, father *Person
}

func (e *abortionEvent) Kind() EventKind { return KindAbortion }
func (e *abortionEvent) Priority() int   { return priorityAbortion }

func (e *abortionEvent) Execute(*Simulator) error { return e.mother.slotAbortion() }

func (e *abortionEvent) String() string {
	return fmt.Sprintf("abortion: motherpuid=%d fatherpuid=%d | %s",
		personID(e.mother), personID(e.father), e.stamp())
}

// immigrationEvent brings a person of a random type into the population.
type immigrationEvent struct {
	baseEvent
}

func (e *immigrationEvent) Kind() EventKind { return KindImmigration }
func (e *immigrationEvent) Priority() int   { return kindPriority(KindImmigration) }

func (e *immigrationEvent) Execute(s *Simulator) error { return s.pop.slotImmigration() }

func (e *immigrationEvent) String() string { return "immigration | " + e.stamp() }

type removeWhat int

const (
	removePartnerships removeWhat = iota
	removeInfections
)

func (w removeWhat) String() string {
	if w == removePartnerships {
		return "partnerships"
	}
	return "infections"
}

// removeOldEvent runs a removal sweep and schedules the next one.
type removeOldEvent struct {
	baseEvent
	what removeWhat
}

func (e *removeOldEvent) Kind() EventKind { return KindRemoveOld }
func (e *removeOldEvent) Priority() int   { return kindPriority(KindRemoveOld) }

func (e *removeOldEvent) Execute(s *Simulator) error {
	horizon := s.pop.removeInf
	if e.what == removePartnerships {
		horizon = s.pop.removePS
		s.pop.removeOldPartnerships()
	} else {
		s.pop.removeOldInfections()
	}
	_, err := s.sched.Insert(&removeOldEvent{baseEvent: baseEvent{s.Now() + horizon}, what: e.what})
	return err
}

func (e *removeOldEvent) String() string {
	return fmt.Sprintf("removeold: what=%s | %s", e.what, e.stamp())
}

func personID(p *Person) int64 {
	if p == nil {
		return 0
	}
	return p.id
}
