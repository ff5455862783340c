package sim

import (
	"fmt"
	"slices"

	"github.com/aroellin/rstisim/sim/dist"
)

// Cause tells why a person appears or disappears, or why a birth happens.
type Cause int

const (
	CauseBirth Cause = iota
	CausePopulate
	CauseImmigration
	CauseReplacement
	CauseDeath
	CauseEmigration
)

var causeNames = [...]string{"birth", "populate", "immigration", "replacement", "death", "emigration"}

func (c Cause) String() string {
	if c < 0 || int(c) >= len(causeNames) {
		return fmt.Sprintf("Cause(%d)", int(c))
	}
	return causeNames[c]
}

// VisitCause tells why a person visits a clinic.
type VisitCause int

const (
	// VisitGeneral is a routine visit driven by the person's 'visitgp' process.
	VisitGeneral VisitCause = iota
	// VisitSymptoms is provoked by the symptoms of an infection.
	VisitSymptoms
	// VisitNotified follows a partner notification.
	VisitNotified
)

var visitCauseNames = [...]string{"general", "symptoms", "notified"}

func (c VisitCause) String() string {
	if c < 0 || int(c) >= len(visitCauseNames) {
		return fmt.Sprintf("VisitCause(%d)", int(c))
	}
	return visitCauseNames[c]
}

// Notification identifies a partner-notification chain and the distance
// from its index case.
type Notification struct {
	// ID is shared by every visit of one chain; 0 until the index visit.
	ID int64
	// Link is 0 for the index case and grows by one per notified partner.
	Link int
}

type pregnancy struct {
	pregnant    bool
	pregnancies int
	abortions   int
	proc        *Process
}

// Person is an individual of the population. Its lists of partnerships and
// infections are ordered newest first.
type Person struct {
	Ageable
	pc *PersonCreator

	id       int64
	cause    Cause
	motherID int64
	fatherID int64
	slot     int
	entry    entry

	partnerships    []*Partnership
	partnershipsOld []*Partnership
	infections      []*Infection
	infectionsOld   []*Infection

	partnersCurrent   int
	partnersTotal     int
	contacts          int
	contactsUnprot    int
	infectionsCurrent int
	infectionsTotal   int
	visits            int
	notifications     int
	alreadyNotified   int
	treatments        int
	positiveTests     int
	linkNumber        int
	children          int

	notified     []Notification
	notifRecords []NotificationRecord
	visitRecords []VisitRecord

	procVisitGP *Process
	procTreat   []*Process
	preg        *pregnancy
}

// ID returns the unique person id.
func (p *Person) ID() int64 { return p.id }

// Cause returns why the person was created.
func (p *Person) Cause() Cause { return p.cause }

// IsMale reports whether the person is of a MALE type.
func (p *Person) IsMale() bool { return p.pc.variant == personMale }

// IsFemale reports whether the person is of a FEMALE type.
func (p *Person) IsFemale() bool { return p.pc.variant == personFemale }

// Partnerships returns the current partnerships, newest first.
func (p *Person) Partnerships() []*Partnership { return p.partnerships }

// Infections returns the current infections, newest first.
func (p *Person) Infections() []*Infection { return p.infections }

// LinkNumber returns the link number of the last notification chain the
// person took part in.
func (p *Person) LinkNumber() int { return p.linkNumber }

// Notifications returns the notifications this person sent, newest first.
func (p *Person) Notifications() []NotificationRecord { return p.notifRecords }

// Visits returns the clinic visits of this person, newest first.
func (p *Person) Visits() []VisitRecord { return p.visitRecords }

func (p *Person) describe() string {
	return fmt.Sprintf("person puid=%d type=%s bin=%s birth=%g death=%g partners=%d cause=%s",
		p.id, p.creator.name, p.creator.BinName(p.bin), p.birth, p.death, p.partnersCurrent, p.cause)
}

func (p *Person) setLinkNumber(n int) { p.linkNumber = n }

// Number implements dist.Subject.
func (p *Person) Number(c dist.Covariate) (int, error) {
	now := p.sim.Now()
	switch c {
	case dist.Treatments:
		return p.treatments, nil
	case dist.CurrentPartners:
		return p.partnersCurrent, nil
	case dist.CurrentPartnersType0, dist.CurrentPartnersType1, dist.CurrentPartnersType2,
		dist.CurrentPartnersType3, dist.CurrentPartnersType4:
		n := 0
		for _, ps := range p.partnerships {
			if cv, ok := dist.PartnersOfType(ps.Type()); ok && cv == c {
				n++
			}
		}
		return n, nil
	case dist.TotalPartners:
		return p.partnersTotal, nil
	case dist.WithinPartners:
		n := p.partnersCurrent
		for _, ps := range p.partnershipsOld {
			if now-ps.death < p.sim.withinLag {
				n++
			}
		}
		return n, nil
	case dist.Contacts:
		return p.contacts, nil
	case dist.UnprotectedContacts:
		return p.contactsUnprot, nil
	case dist.CurrentInfections:
		return p.infectionsCurrent, nil
	case dist.WithinInfections:
		n := p.infectionsCurrent
		for _, inf := range p.infectionsOld {
			if now-inf.death < p.sim.withinLag {
				n++
			}
		}
		return n, nil
	case dist.TotalInfections:
		return p.infectionsTotal, nil
	case dist.LinkNumber:
		return p.linkNumber, nil
	case dist.AlreadyNotified:
		return p.alreadyNotified, nil
	case dist.PositiveTests:
		return p.positiveTests, nil
	}
	switch p.pc.variant {
	case personMale:
		if c == dist.Children {
			return p.children, nil
		}
	case personFemale:
		switch c {
		case dist.IsPregnant:
			if p.preg.pregnant {
				return 1, nil
			}
			return 0, nil
		case dist.Children:
			return p.children, nil
		case dist.Abortions:
			return p.preg.abortions, nil
		case dist.Pregnancies:
			return p.preg.pregnancies, nil
		}
	}
	return p.Ageable.Number(c)
}

// === Lifecycle ===

func (p *Person) slotDeath() error {
	s := p.sim
	if err := s.pop.deregisterFromFormation(p); err != nil {
		return err
	}
	if p.partnersCurrent > 0 {
		return invariantOn(p, "active partnerships present when person dies")
	}
	// slotHostDies removes the infection from p.infections.
	for _, inf := range slices.Clone(p.infections) {
		if err := inf.slotHostDies(); err != nil {
			return err
		}
	}
	for _, proc := range p.procTreat {
		proc.Clear()
	}
	p.procVisitGP.Clear()
	if p.preg != nil {
		p.preg.proc.Clear()
	}
	if err := s.pop.deregisterPerson(p, CauseDeath); err != nil {
		return err
	}
	p.ageableDeath()
	return nil
}

func (p *Person) slotBinChange(from, to int) error {
	if err := p.ageableBinChange(from, to); err != nil {
		return err
	}
	p.sim.stats.PersonBinChanges++
	if err := p.sim.pop.updateFormation(p); err != nil {
		return err
	}
	for _, ps := range p.partnerships {
		if err := ps.throwEventHaveSex(true); err != nil {
			return err
		}
	}
	if p.preg != nil {
		return p.throwEventGetPregnant(true)
	}
	return nil
}

// === Clinic visits and treatment ===

// slotTreat treats an infection type now, or schedules the treatment after
// wait unless one is already scheduled. Treating an absent or already
// cleared infection counts as a vain treatment.
func (p *Person) slotTreat(t int, wait float64) error {
	if t < 0 || t >= len(p.procTreat) {
		return invariantOn(p, "cannot treat specifically without infection given")
	}
	if wait < 0 {
		return invariantOn(p, "cannot set treatment event into the past")
	}
	s := p.sim
	if wait > 0 {
		if p.procTreat[t].Pending() {
			return nil
		}
		return p.procTreat[t].Replace(&treatEvent{baseEvent: baseEvent{s.Now() + wait}, person: p, infType: t})
	}
	p.procTreat[t].Clear()
	if inf := p.infectionOf(t); inf != nil {
		if err := inf.slotTreated(); err != nil {
			return err
		}
	} else {
		s.stats.VainTreatments++
	}
	p.treatments++
	s.stats.Treatments++
	return nil
}

func (p *Person) slotTestedPositive(int) { p.positiveTests++ }

func (p *Person) slotVisitGP(gpType int, cause VisitCause, notif Notification) error {
	pc := p.pc
	now := p.sim.Now()
	switch cause {
	case VisitGeneral:
		prob := 1.0
		for _, a := range []Attribute{pc.visitProb, pc.visitProbFactor, pc.visitProbFactor2} {
			v, err := p.Attribute(a, now)
			if err != nil {
				return err
			}
			prob *= v
		}
		u, err := pc.visitUniform.Sample()
		if err != nil {
			return err
		}
		if u < prob {
			if err := p.visit(gpType, cause, notif); err != nil {
				return err
			}
		}
		return p.throwEventVisitGP(false)
	case VisitSymptoms:
		return p.visit(gpType, cause, notif)
	case VisitNotified:
		if err := p.visit(gpType, cause, notif); err != nil {
			return err
		}
		return p.throwEventVisitGP(false)
	}
	return invariantOn(p, "unknown visit cause %d", int(cause))
}

func (p *Person) visit(gpType int, cause VisitCause, notif Notification) error {
	if gpType < 0 || gpType >= len(p.sim.visitTypes) {
		return invariantOn(p, "clinic visit type %d does not exist", gpType)
	}
	p.positiveTests = 0
	rec, err := p.sim.visitTypes[gpType].makeVisit(p, notif)
	if err != nil {
		return err
	}
	rec.Cause = cause
	p.visitRecords = slices.Insert(p.visitRecords, 0, rec)
	p.visits++
	return nil
}

func (p *Person) throwEventVisitGP(cond bool) error {
	pc := p.pc
	now := p.sim.Now()
	gt, err := p.Attribute(pc.gpVisitType, now)
	if err != nil {
		return err
	}
	fac := 1.0
	for _, a := range []Attribute{pc.visitFactor, pc.visitFactor2} {
		v, err := p.Attribute(a, now)
		if err != nil {
			return err
		}
		fac *= v
	}
	var wait float64
	if cond {
		wait, err = p.AttributeWithFactorAtLeast(pc.visitGP, now, fac, now-p.procVisitGP.LastTime())
	} else {
		wait, err = p.AttributeWithFactor(pc.visitGP, now, fac)
	}
	if err != nil {
		return err
	}
	t := now + wait
	if t >= p.death {
		p.procVisitGP.Clear()
		return nil
	}
	ev := &visitEvent{baseEvent: baseEvent{t}, person: p, gpType: dist.FloorInt(gt), cause: VisitGeneral}
	if cond {
		return p.procVisitGP.Update(ev)
	}
	return p.procVisitGP.Replace(ev)
}

// === Notification ===

func (p *Person) isNotifiedAlready(n Notification) bool {
	for _, m := range p.notified {
		if m.ID == n.ID {
			return true
		}
	}
	return false
}

func (p *Person) slotNotificationStarts(n Notification) {
	p.alreadyNotified = 0
	if !p.isNotifiedAlready(n) {
		p.notified = slices.Insert(p.notified, 0, n)
		p.notifications++
	}
}

func (p *Person) slotNotifyingPartner(partner *Person, ps *Partnership, nt *Notifier, n Notification) {
	rec := NotificationRecord{
		NotifierType: nt.typ,
		ID:           n.ID,
		Link:         n.Link,
		Time:         p.sim.Now(),
		Sender:       p.id,
		SenderType:   p.Type(),
		SenderBin:    p.BinLinearised(),
		Receiver:     partner.id,
		ReceiverType: partner.Type(),
		ReceiverBin:  partner.BinLinearised(),
		Partnership:  ps.id,
		PSType:       ps.Type(),
		PSBin:        ps.BinLinearised(),
	}
	p.notifRecords = slices.Insert(p.notifRecords, 0, rec)
	p.alreadyNotified++
}

// slotVisitGPNotified schedules a follow-up visit unless the person already
// belongs to the notification chain.
func (p *Person) slotVisitGPNotified(gpType int, wait float64, n Notification) error {
	if p.isNotifiedAlready(n) {
		return nil
	}
	s := p.sim
	p.notified = slices.Insert(p.notified, 0, n)
	p.notifications++
	s.stats.FollowUpVisits++
	t := s.Now() + wait
	if t >= p.death {
		p.procVisitGP.Clear()
		return nil
	}
	return p.procVisitGP.Update(&visitEvent{baseEvent: baseEvent{t}, person: p, gpType: gpType, notif: n, cause: VisitNotified})
}

// === Partnerships ===

func (p *Person) slotRegisterPartnership(ps *Partnership) error {
	p.partnersCurrent++
	p.partnersTotal++
	p.partnerships = slices.Insert(p.partnerships, 0, ps)
	if err := p.sim.pop.updateFormation(p); err != nil {
		return err
	}
	if p.preg != nil {
		return p.throwEventGetPregnant(true)
	}
	return nil
}

func (p *Person) slotDeregisterPartnership(ps *Partnership) error {
	p.partnersCurrent--
	found := 0
	p.partnerships = slices.DeleteFunc(p.partnerships, func(q *Partnership) bool {
		if q == ps {
			found++
			return true
		}
		return false
	})
	switch {
	case found == 0:
		return invariantOn(p, "while deregistering partnership: not found in active partnerships")
	case found > 1:
		return invariantOn(p, "while deregistering partnership: partnership was registered more than once")
	}
	p.partnershipsOld = slices.Insert(p.partnershipsOld, 0, ps)
	if err := p.sim.pop.updateFormation(p); err != nil {
		return err
	}
	if p.preg != nil {
		return p.throwEventGetPregnant(true)
	}
	return nil
}

// lastPartnershipWith returns the most recent partnership with q, current
// ones first, or nil.
func (p *Person) lastPartnershipWith(q *Person) *Partnership {
	for _, list := range [][]*Partnership{p.partnerships, p.partnershipsOld} {
		for _, ps := range list {
			if ps.p1.id == q.id || ps.p2.id == q.id {
				return ps
			}
		}
	}
	return nil
}

// internalRemovePartnership forgets an ended partnership and scrubs the
// references infections hold to it.
func (p *Person) internalRemovePartnership(ps *Partnership) {
	if i := slices.Index(p.partnershipsOld, ps); i >= 0 {
		p.partnershipsOld = slices.Delete(p.partnershipsOld, i, i+1)
	}
	for _, list := range [][]*Infection{p.infections, p.infectionsOld} {
		for _, inf := range list {
			if inf.ps == ps {
				inf.ps = nil
			}
		}
	}
}

func (p *Person) slotNotifyHaveContact(ps *Partnership, unprotected bool) error {
	p.contacts++
	if unprotected {
		p.contactsUnprot++
	}
	if p.preg == nil || !unprotected || p.preg.pregnant {
		return nil
	}
	partner, err := ps.Partner(p)
	if err != nil {
		return err
	}
	if !partner.IsMale() {
		return nil
	}
	now := p.sim.Now()
	fac, err := p.Attribute(p.pc.pregPerContactFactor, now)
	if err != nil {
		return err
	}
	prob, err := p.Attribute(p.pc.pregPerContact, now)
	if err != nil {
		return err
	}
	u, err := p.pc.pregUniform.SampleFor(p, now)
	if err != nil {
		return err
	}
	if u < fac*prob {
		return p.slotGetPregnant(partner)
	}
	return nil
}

// === Infections ===

// infectionOf returns the current infection of type t, or nil.
func (p *Person) infectionOf(t int) *Infection {
	for _, inf := range p.infections {
		if inf.Type() == t {
			return inf
		}
	}
	return nil
}

// IsInfected reports whether the person carries an infectious infection of type t.
func (p *Person) IsInfected(t int) bool {
	if inf := p.infectionOf(t); inf != nil {
		return inf.IsInfectious()
	}
	return false
}

func (p *Person) slotRegisterInfection(inf *Infection) error {
	p.infectionsCurrent++
	p.infectionsTotal++
	if slices.Contains(p.infections, inf) {
		return invariantOn(p, "infection is already in list 'infections'")
	}
	p.infections = slices.Insert(p.infections, 0, inf)
	return p.sim.pop.updateFormation(p)
}

func (p *Person) slotDeregisterInfection(inf *Infection) error {
	found := 0
	p.infections = slices.DeleteFunc(p.infections, func(q *Infection) bool {
		if q == inf {
			found++
			return true
		}
		return false
	})
	switch {
	case found == 0:
		return invariantOn(p, "infection not found in the list of current infections")
	case found > 1:
		return invariantOn(p, "found infection more than once in list 'infections'")
	}
	if slices.Contains(p.infectionsOld, inf) {
		return invariantOn(p, "infection is already in list 'infectionsold'")
	}
	p.infectionsOld = slices.Insert(p.infectionsOld, 0, inf)
	return nil
}

// internalRemoveInfection forgets an old infection and scrubs the parent
// references other infections of this person hold to it.
func (p *Person) internalRemoveInfection(inf *Infection) {
	if i := slices.Index(p.infectionsOld, inf); i >= 0 {
		p.infectionsOld = slices.Delete(p.infectionsOld, i, i+1)
	}
	for _, list := range [][]*Infection{p.infections, p.infectionsOld} {
		for _, q := range list {
			if q.parent == inf {
				q.parent = nil
			}
		}
	}
}

// slotInfect transmits inf to the person unless an infection of that type
// is already present.
func (p *Person) slotInfect(inf *Infection, ps *Partnership) error {
	if p.infectionOf(inf.Type()) != nil {
		return nil
	}
	child, err := inf.ic.newInfection(p, inf, ps)
	if err != nil {
		return err
	}
	if err := p.slotRegisterInfection(child); err != nil {
		return err
	}
	p.sim.stats.Infections++
	return nil
}

func (p *Person) slotInfectionChangedState(inf *Infection, to int) {
	if to == inf.ic.cleared || to == inf.ic.treated {
		p.infectionsCurrent--
	}
}

// === Reproduction ===

func (p *Person) slotBabyIsBorn(father *Person) error {
	switch p.pc.variant {
	case personMale:
		p.children++
		return nil
	case personFemale:
		if !p.preg.pregnant {
			return invariantOn(p, "female was not pregnant but got baby")
		}
		p.children++
		p.preg.pregnant = false
		if father != nil {
			if err := father.slotBabyIsBorn(p); err != nil {
				return err
			}
		}
		return p.throwEventGetPregnant(false)
	}
	return invariantOn(p, "person of a GENERIC type cannot have children")
}

func (p *Person) slotAbortion() error {
	if p.preg == nil {
		return invariantOn(p, "abortion for a person that cannot be pregnant")
	}
	p.preg.abortions++
	p.preg.pregnant = false
	return p.throwEventGetPregnant(false)
}

// slotGetPregnant starts a pregnancy. The pregnancy ends in a birth, or in
// an abortion at the mother's death if she dies first.
func (p *Person) slotGetPregnant(father *Person) error {
	if p.preg == nil {
		return invariantOn(p, "person of a non-FEMALE type cannot get pregnant")
	}
	if p.preg.pregnant {
		return invariantOn(p, "received EventGetPregnant, but female already pregnant")
	}
	s := p.sim
	now := s.Now()
	p.preg.proc.SetLastTime()
	p.preg.proc.Clear()
	p.preg.pregnant = true
	p.preg.pregnancies++
	s.stats.Pregnancies++

	d, err := p.Attribute(p.pc.pregDuration, now)
	if err != nil {
		return err
	}
	if now+d < p.death {
		_, err = s.sched.Insert(&birthEvent{baseEvent: baseEvent{now + d}, cause: CauseBirth, mother: p, father: father})
	} else {
		_, err = s.sched.Insert(&abortionEvent{baseEvent: baseEvent{p.death}, mother: p, father: father})
	}
	return err
}

// throwEventGetPregnant samples the next spontaneous pregnancy. Nothing is
// scheduled while pregnant.
func (p *Person) throwEventGetPregnant(cond bool) error {
	proc := p.preg.proc
	proc.Clear()
	if p.preg.pregnant {
		return nil
	}
	now := p.sim.Now()
	fac, err := p.Attribute(p.pc.pregFactor, now)
	if err != nil {
		return err
	}
	var wait float64
	if cond {
		diff := now - proc.LastTime()
		if diff < 0 {
			return invariantOn(p, "cannot sample conditional pregnancy if last pregnancy is later than now")
		}
		wait, err = p.AttributeWithFactorAtLeast(p.pc.pregRate, proc.LastTime(), fac, diff)
	} else {
		wait, err = p.AttributeWithFactor(p.pc.pregRate, now, fac)
	}
	if err != nil {
		return err
	}
	if now+wait < p.death {
		return proc.Replace(&getPregnantEvent{baseEvent: baseEvent{now + wait}, mother: p})
	}
	return nil
}
