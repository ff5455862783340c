package sim

import (
	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// VisitRecord is the outcome of one clinic visit.
type VisitRecord struct {
	VisitType int
	// ID and Link identify the notification chain the visit belongs to.
	ID         int64
	Link       int
	Time       float64
	Cause      VisitCause
	Person     int64
	PersonType int
	PersonBin  int

	DirectTreated int
	Tested        int
	Positive      int
	// NotifierType is the last notifier the visit started, or -1.
	NotifierType int
}

// GPVisitCreator is a clinic visit type: it decides what happens when a
// person sees a doctor, from direct treatment over testing to partner
// notification.
type GPVisitCreator struct {
	*Creator
	uniform *dist.Distribution
	target  []bool

	direct         Attribute
	directSpecific Attribute
	test           Attribute
	testSpecific   Attribute
	obey           Attribute
	obeySpecific   Attribute

	notify       [3]Attribute
	notifierType [3]Attribute
}

var notifySuffixes = [3]string{"", "2", "3"}

func newGPVisitCreator(s *Simulator, name string, cfg *config.Node) (*GPVisitCreator, error) {
	if err := genericOnly(cfg, name); err != nil {
		return nil, err
	}
	cr, err := newCreator(s, s.coll.visits, name, cfg, nil)
	if err != nil {
		return nil, err
	}
	gc := &GPVisitCreator{Creator: cr, target: make([]bool, s.coll.infections.Len())}

	targets, err := cfg.Get("targets")
	if err != nil {
		return nil, err
	}
	names, err := targets.Strings()
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		t, err := s.coll.infections.TypeByName(targets, n)
		if err != nil {
			return nil, err
		}
		gc.target[t] = true
	}
	if gc.uniform, err = gc.uniformAt("uniformdistribution"); err != nil {
		return nil, err
	}

	people := s.coll.persons
	attr := func(dst *Attribute, key string, def float64) {
		if err == nil {
			*dst, err = gc.InstallAttribute(people, key, "", def)
		}
	}
	attr(&gc.direct, "probabilitydirecttreatment", 0)
	attr(&gc.directSpecific, "probabilitydirecttreatmentspecific", 0)
	attr(&gc.test, "probabilitytesting", 1)
	attr(&gc.testSpecific, "probabilitytestingspecific", 0)
	attr(&gc.obey, "probabilityobey", 1)
	attr(&gc.obeySpecific, "probabilityobeyspecific", 0)
	for i, suffix := range notifySuffixes {
		attr(&gc.notify[i], "probabilitynotifypartners"+suffix, 0)
		attr(&gc.notifierType[i], "partnernotifiertype"+suffix, 0)
		if err != nil {
			return nil, err
		}
		if n := s.coll.notifiers.Len(); n > 0 {
			if err := people.AttributeDistribution(gc.notifierType[i]).CheckRange(0, float64(n-1)); err != nil {
				return nil, err
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return gc, nil
}

// roll draws a uniform number and compares it with the person's attribute a.
func (gc *GPVisitCreator) roll(p *Person, a Attribute) (bool, error) {
	prob, err := p.Attribute(a, gc.sim.Now())
	if err != nil {
		return false, err
	}
	u, err := gc.uniform.Sample()
	if err != nil {
		return false, err
	}
	return u < prob, nil
}

// selectTargets returns the target types chosen either all at once, when
// the overall probability succeeds, or one by one with the specific
// probability. Types rejected by skip are never chosen overall.
func (gc *GPVisitCreator) selectTargets(p *Person, overall, specific Attribute, eligible func(t int) bool, skip []bool) ([]bool, error) {
	chosen := make([]bool, len(gc.target))
	all, err := gc.roll(p, overall)
	if err != nil {
		return nil, err
	}
	for t := range gc.target {
		if !eligible(t) {
			continue
		}
		if all {
			chosen[t] = skip == nil || !skip[t]
			continue
		}
		if chosen[t], err = gc.roll(p, specific); err != nil {
			return nil, err
		}
	}
	return chosen, nil
}

// makeVisit runs a visit of p: direct treatment, tests, treatment of the
// positive results once they arrive, and partner notification. An index
// visit (link 0) opens a new notification chain.
func (gc *GPVisitCreator) makeVisit(p *Person, notif Notification) (VisitRecord, error) {
	s := gc.sim
	if notif.Link == 0 {
		s.uids.notification++
		notif.ID = s.uids.notification
	}
	rec := VisitRecord{
		VisitType:    gc.typ,
		ID:           notif.ID,
		Link:         notif.Link,
		Time:         s.Now(),
		Person:       p.id,
		PersonType:   p.Type(),
		PersonBin:    p.bin,
		NotifierType: -1,
	}
	p.setLinkNumber(notif.Link)
	isTarget := func(t int) bool { return gc.target[t] }

	treated, err := gc.selectTargets(p, gc.direct, gc.directSpecific, isTarget, nil)
	if err != nil {
		return rec, err
	}
	for t, ok := range treated {
		if !ok {
			continue
		}
		if err := p.slotTreat(t, 0); err != nil {
			return rec, err
		}
	}

	tested, err := gc.selectTargets(p, gc.test, gc.testSpecific, isTarget, treated)
	if err != nil {
		return rec, err
	}
	positive := make([]bool, len(gc.target))
	wait := make([]float64, len(gc.target))
	for t, ok := range tested {
		if !ok {
			continue
		}
		ic := s.infectionTypes[t]
		if positive[t], err = ic.testResult(p); err != nil {
			return rec, err
		}
		if positive[t] {
			p.slotTestedPositive(t)
		}
		if wait[t], err = ic.waitForResult(p); err != nil {
			return rec, err
		}
	}

	obeyed, err := gc.selectTargets(p, gc.obey, gc.obeySpecific, func(t int) bool { return positive[t] }, nil)
	if err != nil {
		return rec, err
	}
	for t, ok := range obeyed {
		if !ok {
			continue
		}
		if err := p.slotTreat(t, wait[t]); err != nil {
			return rec, err
		}
	}

	p.slotNotificationStarts(notif)
	for i := range notifySuffixes {
		ok, err := gc.roll(p, gc.notify[i])
		if err != nil {
			return rec, err
		}
		if !ok {
			continue
		}
		v, err := p.Attribute(gc.notifierType[i], s.Now())
		if err != nil {
			return rec, err
		}
		nt := dist.FloorInt(v)
		if nt < 0 || nt >= len(s.notifiers) {
			return rec, invariantOn(p, "partner notifier type %d does not exist", nt)
		}
		rec.NotifierType = nt
		if err := s.notifiers[nt].notifyPartners(p, notif); err != nil {
			return rec, err
		}
	}

	for t := range gc.target {
		rec.DirectTreated += btoi(treated[t])
		rec.Tested += btoi(tested[t])
		rec.Positive += btoi(positive[t])
	}
	return rec, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
