package sim

import "fmt"

// Event defines the interface for all simulation events.
// Each event has a scheduled time (in days), a kind, a tie-break priority
// and an Execute method that advances simulation state when invoked.
type Event interface {
	Time() float64
	Kind() EventKind
	// Priority orders events scheduled at the same time; lower runs first.
	Priority() int
	Execute(*Simulator) error
	String() string
}

// EventKind identifies the type of an event.
type EventKind int

const (
	KindGeneric EventKind = iota
	KindImmigration
	KindBirth
	KindPSInitiate
	KindDeath
	KindBinChange
	KindHaveSex
	KindGetPregnant
	KindRemoveOld
	KindInfectPerson
	KindAbortion
	KindVisitGP
	KindTreat
	KindProvokeGPVisit
)

var kindLabels = map[EventKind]string{
	KindGeneric:        "GENERIC",
	KindImmigration:    "IMMIGRATION",
	KindBirth:          "BIRTH",
	KindPSInitiate:     "PSINITIATE",
	KindDeath:          "AGEABLEDEATH",
	KindBinChange:      "AGEABLEBINCHANGE",
	KindHaveSex:        "HAVESEX",
	KindGetPregnant:    "GETPREGNANT",
	KindRemoveOld:      "REMOVEOLD",
	KindInfectPerson:   "INFECTPERSON",
	KindAbortion:       "ABORTION",
	KindVisitGP:        "VISITGP",
	KindTreat:          "TREAT",
	KindProvokeGPVisit: "PROVOKEVISITGP",
}

// String returns the upper-case label of the kind.
func (k EventKind) String() string {
	if s, ok := kindLabels[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Priorities of simultaneous events. A partnership ending at the death of a
// partner ends first, an abortion happens before the mother dies and an
// infection dies before its host.
const (
	priorityPartnershipDeath = iota
	priorityAbortion
	priorityInfectionDeath
	priorityPersonDeath
	priorityOther
)

// kindPriority is the priority of every event without a special rule.
func kindPriority(k EventKind) int {
	return priorityOther + int(k)
}

// baseEvent carries the scheduled time of an event.
type baseEvent struct {
	time float64
}

// Time returns the scheduled time of the event.
func (e baseEvent) Time() float64 { return e.time }

func (e baseEvent) stamp() string { return fmt.Sprintf("time=%g", e.time) }
