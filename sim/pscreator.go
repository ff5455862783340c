package sim

import (
	"math"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// PSCreator is a partnership type.
type PSCreator struct {
	*Creator
	uniform *dist.Distribution

	breakup        *PairAttribute
	breakupFactor1 Attribute
	breakupFactor2 Attribute

	contact        Attribute
	contactFactor  Attribute
	contactCouple  *PairAttribute
	contactFactor1 Attribute
	contactFactor2 Attribute

	unprotected        Attribute
	unprotectedFactor  Attribute
	unprotectedCouple  *PairAttribute
	unprotectedFactor1 Attribute
	unprotectedFactor2 Attribute
}

func newPSCreator(s *Simulator, name string, cfg *config.Node) (*PSCreator, error) {
	if err := genericOnly(cfg, name); err != nil {
		return nil, err
	}
	cr, err := newCreator(s, s.coll.partnerships, name, cfg, s.coll.persons)
	if err != nil {
		return nil, err
	}
	psc := &PSCreator{Creator: cr}
	if psc.uniform, err = psc.uniformAt("uniformdistribution"); err != nil {
		return nil, err
	}

	people, own := s.coll.persons, s.coll.partnerships
	pair := func(dst **PairAttribute, key string, init, def float64) {
		if err == nil {
			*dst, err = psc.InstallPairAttribute(people, key, init, def)
		}
	}
	attr := func(dst *Attribute, c *Collection, key string, def float64) {
		if err == nil {
			*dst, err = psc.InstallAttribute(c, key, "", def)
		}
	}
	pair(&psc.breakup, "breakup", 0, 365)
	attr(&psc.breakupFactor1, people, "breakupfactorperson1", 1)
	attr(&psc.breakupFactor2, people, "breakupfactorperson2", 1)

	attr(&psc.contact, own, "contact", 7)
	attr(&psc.contactFactor, own, "contactfactor", 1)
	pair(&psc.contactCouple, "contactcouplefactor", 0, 1)
	attr(&psc.contactFactor1, people, "contactfactorperson1", 1)
	attr(&psc.contactFactor2, people, "contactfactorperson2", 1)

	attr(&psc.unprotected, own, "unprotected", 1)
	attr(&psc.unprotectedFactor, own, "unprotectedfactor", 1)
	pair(&psc.unprotectedCouple, "unprotectedfactorcouple", 0, 1)
	attr(&psc.unprotectedFactor1, people, "unprotectedfactorperson1", 1)
	attr(&psc.unprotectedFactor2, people, "unprotectedfactorperson2", 1)
	if err != nil {
		return nil, err
	}
	return psc, nil
}

// genericOnly rejects any basetype but GENERIC.
func genericOnly(cfg *config.Node, name string) error {
	bt, err := basetype(cfg, "GENERIC")
	if err != nil {
		return err
	}
	if bt != "GENERIC" {
		return cfg.Errorf("unknown basetype '%s' for type '%s'", bt, name)
	}
	return nil
}

// create forms a partnership between p1 and p2 starting now. It lasts for
// the scaled breakup time, but never beyond the death of either partner.
func (psc *PSCreator) create(p1, p2 *Person, info FormationInfo) (*Partnership, error) {
	s := psc.sim
	now := s.Now()
	f1, err := p1.Attribute(psc.breakupFactor1, now)
	if err != nil {
		return nil, err
	}
	f2, err := p2.Attribute(psc.breakupFactor2, now)
	if err != nil {
		return nil, err
	}
	d, err := psc.breakup.At(p1.Type(), p2.BinLinearised())
	if err != nil {
		return nil, err
	}
	length, err := d.SampleWithFactorFor(f1*f2, p1, now)
	if err != nil {
		return nil, err
	}
	length = math.Max(0, math.Min(length, math.Min(p1.death-now, p2.death-now)))

	ps := &Partnership{psc: psc, p1: p1, p2: p2, info: info}
	if err := ps.init(s, psc.Creator, ps); err != nil {
		return nil, err
	}
	if err := ps.sampleInitialBin(p1); err != nil {
		return nil, err
	}
	ps.procHaveSex = newProcess(s.sched)
	s.uids.partnership++
	ps.id = s.uids.partnership
	ps.birth = now
	ps.death = now + length

	s.pop.registerPartnership(ps)
	if err := p1.slotRegisterPartnership(ps); err != nil {
		return nil, err
	}
	if err := p2.slotRegisterPartnership(ps); err != nil {
		return nil, err
	}
	if err := ps.throwEventDeath(); err != nil {
		return nil, err
	}
	if err := ps.throwEventHaveSex(false); err != nil {
		return nil, err
	}
	if err := ps.throwEventBinChange(false); err != nil {
		return nil, err
	}
	return ps, nil
}
