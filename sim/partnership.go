package sim

import (
	"fmt"
	"slices"

	"github.com/aroellin/rstisim/sim/dist"
)

// FormationInfo describes how a partnership was found.
type FormationInfo struct {
	// Fitness is the acceptance score of the successful candidate.
	Fitness float64
	// Tries is the number of candidates drawn, the successful one included.
	Tries int
	// FormerType is the partnership former type that found the partner.
	FormerType int
}

// Partnership is a sexual partnership between two persons.
type Partnership struct {
	Ageable
	psc *PSCreator

	id             int64
	p1, p2         *Person
	contacts       int
	contactsUnprot int
	info           FormationInfo
	entry          entry

	procHaveSex *Process
}

// ID returns the unique partnership id.
func (ps *Partnership) ID() int64 { return ps.id }

// Person1 returns the person who initiated the partnership.
func (ps *Partnership) Person1() *Person { return ps.p1 }

// Person2 returns the person who accepted the partnership.
func (ps *Partnership) Person2() *Person { return ps.p2 }

// Info returns how the partnership was formed.
func (ps *Partnership) Info() FormationInfo { return ps.info }

// Contacts returns the number of contacts and unprotected contacts so far.
func (ps *Partnership) Contacts() (total, unprotected int) { return ps.contacts, ps.contactsUnprot }

// Partner returns the other person of the partnership.
func (ps *Partnership) Partner(p *Person) (*Person, error) {
	switch p {
	case ps.p1:
		return ps.p2, nil
	case ps.p2:
		return ps.p1, nil
	}
	return nil, invariantOn(ps, "person %d is not part of partnership", p.id)
}

func (ps *Partnership) describe() string {
	return fmt.Sprintf("partnership psuid=%d type=%s from=%d to=%d birth=%g death=%g",
		ps.id, ps.creator.name, ps.p1.id, ps.p2.id, ps.birth, ps.death)
}

// Number implements dist.Subject.
func (ps *Partnership) Number(c dist.Covariate) (int, error) {
	switch c {
	case dist.Contacts:
		return ps.contacts, nil
	case dist.UnprotectedContacts:
		return ps.contactsUnprot, nil
	}
	return ps.Ageable.Number(c)
}

func (ps *Partnership) slotDeath() error {
	ps.ageableDeath()
	ps.procHaveSex.Clear()
	if err := ps.p1.slotDeregisterPartnership(ps); err != nil {
		return err
	}
	if err := ps.p2.slotDeregisterPartnership(ps); err != nil {
		return err
	}
	return ps.sim.pop.deregisterPartnership(ps)
}

func (ps *Partnership) slotBinChange(from, to int) error {
	if err := ps.ageableBinChange(from, to); err != nil {
		return err
	}
	ps.sim.stats.PartnershipBinChanges++
	return ps.throwEventHaveSex(true)
}

// slotHaveSex handles one contact: every infection of each partner tries
// to pass to the other one.
func (ps *Partnership) slotHaveSex(unprotected bool) error {
	s := ps.sim
	ps.contacts++
	s.stats.Contacts++
	if unprotected {
		ps.contactsUnprot++
		s.stats.UnprotectedContacts++
	}
	for _, pair := range [][2]*Person{{ps.p1, ps.p2}, {ps.p2, ps.p1}} {
		for _, inf := range slices.Clone(pair[0].infections) {
			if err := inf.slotTryToProgress(pair[1], ps); err != nil {
				return err
			}
		}
	}
	if err := ps.p1.slotNotifyHaveContact(ps, unprotected); err != nil {
		return err
	}
	if err := ps.p2.slotNotifyHaveContact(ps, unprotected); err != nil {
		return err
	}
	return ps.throwEventHaveSex(false)
}

// throwEventHaveSex samples the next contact and whether it is unprotected.
// The conditional form resumes from the last contact.
func (ps *Partnership) throwEventHaveSex(cond bool) error {
	psc := ps.psc
	now := ps.sim.Now()
	fac, err := ps.product(psc.contactFactor, psc.contactCouple, psc.contactFactor1, psc.contactFactor2)
	if err != nil {
		return err
	}
	var wait float64
	if cond {
		last := ps.procHaveSex.LastTime()
		if now < last {
			return invariantOn(ps, "cannot sample conditional having sex if last sex is later than now")
		}
		wait, err = ps.AttributeWithFactorAtLeast(psc.contact, last, fac, now-last)
	} else {
		wait, err = ps.AttributeWithFactor(psc.contact, now, fac)
	}
	if err != nil {
		return err
	}
	t := now + wait
	if t >= ps.death {
		ps.procHaveSex.Clear()
		return nil
	}
	prob, err := ps.Attribute(psc.unprotected, now)
	if err != nil {
		return err
	}
	more, err := ps.product(psc.unprotectedFactor, psc.unprotectedCouple, psc.unprotectedFactor1, psc.unprotectedFactor2)
	if err != nil {
		return err
	}
	u, err := psc.uniform.SampleFor(ps, now)
	if err != nil {
		return err
	}
	return ps.procHaveSex.Replace(&haveSexEvent{baseEvent: baseEvent{t}, ps: ps, unprotected: u < prob*more})
}

// product multiplies a partnership attribute, a couple attribute and one
// person attribute of each partner.
func (ps *Partnership) product(own Attribute, couple *PairAttribute, of1, of2 Attribute) (float64, error) {
	now := ps.sim.Now()
	f, err := ps.Attribute(own, now)
	if err != nil {
		return 0, err
	}
	c, err := couple.SampleFor(ps.p1, ps.p2, now)
	if err != nil {
		return 0, err
	}
	f1, err := ps.p1.Attribute(of1, now)
	if err != nil {
		return 0, err
	}
	f2, err := ps.p2.Attribute(of2, now)
	if err != nil {
		return 0, err
	}
	return f * c * f1 * f2, nil
}
