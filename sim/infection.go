package sim

import (
	"fmt"
	"math"
	"slices"

	"github.com/aroellin/rstisim/sim/dist"
)

// Infection is an infection carried by a host person. It is infectious
// until it reaches its type's cleared or treated bin; after the immunity
// period it dies and moves to the host's old infections.
type Infection struct {
	Ageable
	ic *InfectionCreator

	id     int64
	strain int64
	host   *Person
	parent *Infection
	ps     *Partnership
	// immunityAt is the time the infection was cleared or treated, +Inf before.
	immunityAt float64

	procProvoke *Process
}

// ID returns the unique infection id.
func (inf *Infection) ID() int64 { return inf.id }

// Strain returns the strain id shared by all descendants of one seed.
func (inf *Infection) Strain() int64 { return inf.strain }

// Host returns the infected person.
func (inf *Infection) Host() *Person { return inf.host }

// Parent returns the infection this one was transmitted from, or nil.
func (inf *Infection) Parent() *Infection { return inf.parent }

// Partnership returns the partnership of transmission, or nil.
func (inf *Infection) Partnership() *Partnership { return inf.ps }

// ImmunityAt returns when the infection was cleared or treated, +Inf if not yet.
func (inf *Infection) ImmunityAt() float64 { return inf.immunityAt }

// HostSubject implements dist.Hosted.
func (inf *Infection) HostSubject() dist.Subject { return inf.host }

// IsInfectious reports whether the infection is outside its cleared and
// treated bins.
func (inf *Infection) IsInfectious() bool {
	return inf.bin != inf.ic.cleared && inf.bin != inf.ic.treated
}

func (inf *Infection) describe() string {
	var parent int64
	if inf.parent != nil {
		parent = inf.parent.id
	}
	return fmt.Sprintf("infection infuid=%d type=%s bin=%s hostpuid=%d parentinfuid=%d",
		inf.id, inf.creator.name, inf.creator.BinName(inf.bin), inf.host.id, parent)
}

// Number implements dist.Subject.
func (inf *Infection) Number(c dist.Covariate) (int, error) {
	if c == dist.IsActive {
		if inf.IsInfectious() {
			return 1, nil
		}
		return 0, nil
	}
	return inf.Ageable.Number(c)
}

// throwEventBinChange schedules the next progression. An infection in a
// terminal bin does not progress, and none happens after the host dies.
func (inf *Infection) throwEventBinChange(cond bool) error {
	if inf.IsInfectious() {
		if err := inf.Ageable.throwEventBinChange(cond); err != nil {
			return err
		}
	}
	if inf.procBinChange.NextTime() >= inf.host.death {
		inf.procBinChange.Clear()
	}
	return nil
}

func (inf *Infection) throwEventProvokeGPVisit(cond bool) error {
	now := inf.sim.Now()
	var (
		wait float64
		err  error
	)
	if cond {
		wait, err = inf.AttributeAtLeast(inf.ic.provoke, now, now-inf.procProvoke.LastTime())
	} else {
		wait, err = inf.Attribute(inf.ic.provoke, now)
	}
	if err != nil {
		return err
	}
	if now+wait >= inf.host.death {
		inf.procProvoke.Clear()
		return nil
	}
	return inf.procProvoke.Replace(&provokeVisitEvent{baseEvent: baseEvent{now + wait}, infection: inf})
}

// slotBinChange progresses the infection. Entering the cleared or treated
// bin stops progression and symptoms and schedules the end of immunity.
func (inf *Infection) slotBinChange(from, to int) error {
	s := inf.sim
	if err := inf.ageableBinChange(from, to); err != nil {
		return err
	}
	s.stats.InfectionBinChanges++
	inf.host.slotInfectionChangedState(inf, to)
	if inf.IsInfectious() {
		return inf.throwEventProvokeGPVisit(true)
	}
	now := s.Now()
	inf.immunityAt = now
	inf.procBinChange.Clear()
	inf.procProvoke.Clear()
	if to == inf.ic.cleared {
		s.stats.Clearances++
	}
	imm, err := inf.Attribute(inf.ic.immunity, now)
	if err != nil {
		return err
	}
	inf.death = now + imm
	return inf.throwEventDeath()
}

func (inf *Infection) slotTreated() error {
	if !inf.IsInfectious() {
		return nil
	}
	return inf.slotBinChange(inf.bin, inf.ic.treated)
}

// slotProvokeGPVisit sends the host to the clinic because of symptoms.
func (inf *Infection) slotProvokeGPVisit() error {
	inf.procProvoke.SetLastTime()
	gt, err := inf.Attribute(inf.ic.provokeType, inf.sim.Now())
	if err != nil {
		return err
	}
	if err := inf.host.slotVisitGP(dist.FloorInt(gt), VisitSymptoms, Notification{}); err != nil {
		return err
	}
	// The visit may have treated the infection.
	if !inf.IsInfectious() {
		return nil
	}
	return inf.throwEventProvokeGPVisit(false)
}

func (inf *Infection) slotDeath() error {
	inf.procProvoke.Clear()
	if err := inf.host.slotDeregisterInfection(inf); err != nil {
		return err
	}
	inf.ageableDeath()
	return nil
}

func (inf *Infection) slotHostDies() error { return inf.slotDeath() }

// slotTryToProgress attempts transmission to victim during a contact in ps.
func (inf *Infection) slotTryToProgress(victim *Person, ps *Partnership) error {
	if !inf.IsInfectious() {
		return nil
	}
	ic := inf.ic
	now := inf.sim.Now()
	p, err := inf.Attribute(ic.infFactor, now)
	if err != nil {
		return err
	}
	couple, err := ic.infCouple.SampleFor(inf.host, victim, now)
	if err != nil {
		return err
	}
	p *= couple
	for _, f := range []struct {
		who  interface{ Attribute(Attribute, float64) (float64, error) }
		attr Attribute
	}{
		{inf.host, ic.infFactorInfector},
		{victim, ic.infFactorSusceptible},
		{ps, ic.infFactorPS},
		{inf, ic.infectiousness},
	} {
		v, err := f.who.Attribute(f.attr, now)
		if err != nil {
			return err
		}
		p *= v
	}
	u, err := ic.uniform.Sample()
	if err != nil {
		return err
	}
	if u < p {
		return victim.slotInfect(inf, ps)
	}
	return nil
}

// === Creation ===

// newInfection creates an infection of host. A transmitted infection
// inherits the strain of its parent; a seed starts a new strain.
func (ic *InfectionCreator) newInfection(host *Person, parent *Infection, ps *Partnership) (*Infection, error) {
	s := ic.sim
	inf := &Infection{ic: ic, host: host, parent: parent, ps: ps, immunityAt: math.Inf(1)}
	if err := inf.init(s, ic.Creator, inf); err != nil {
		return nil, err
	}
	inf.procProvoke = newProcess(s.sched)
	s.uids.infection++
	inf.id = s.uids.infection
	if parent != nil {
		inf.strain = parent.strain
	} else {
		s.uids.strain++
		inf.strain = s.uids.strain
	}
	inf.death = math.Inf(1)
	if err := inf.sampleInitialBin(host); err != nil {
		return nil, err
	}
	if err := inf.throwEventBinChange(false); err != nil {
		return nil, err
	}
	if err := inf.throwEventProvokeGPVisit(false); err != nil {
		return nil, err
	}
	return inf, nil
}

// slotInfectPerson seeds a new strain in person unless the person is dead
// or already carries an infection of this type.
func (ic *InfectionCreator) slotInfectPerson(p *Person) error {
	if !p.IsAlive() || slices.ContainsFunc(p.infections, func(i *Infection) bool { return i.Type() == ic.typ }) {
		return nil
	}
	inf, err := ic.newInfection(p, nil, nil)
	if err != nil {
		return err
	}
	return p.slotRegisterInfection(inf)
}
