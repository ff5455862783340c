package sim

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// PSFormer is a partnership former of basetype INDIVIDUALSEARCH: every
// person of an active type searches on its own, drawing random candidates
// until one accepts.
type PSFormer struct {
	*Creator
	uniform *dist.Distribution

	seek         Attribute
	seekFactor   Attribute
	accept       Attribute
	acceptFactor Attribute
	block        Attribute
	active       []bool

	ageMean *PairAttribute
	ageSD   *PairAttribute
	mixing  *PairAttribute
	psType  *PairAttribute

	// procs holds the search process of each population slot.
	procs []*Process
}

// searchEffort is the number of candidates drawn per person in the
// population before a search gives up.
const searchEffort = 100

func newPSFormer(s *Simulator, name string, cfg *config.Node) (*PSFormer, error) {
	bt, err := basetype(cfg, "INDIVIDUALSEARCH")
	if err != nil {
		return nil, err
	}
	if bt != "INDIVIDUALSEARCH" {
		return nil, cfg.Errorf("unknown basetype '%s' for partnership former '%s'", bt, name)
	}
	cr, err := newCreator(s, s.coll.formers, name, cfg, s.coll.persons)
	if err != nil {
		return nil, err
	}
	f := &PSFormer{Creator: cr, procs: make([]*Process, s.pop.target)}
	if f.uniform, err = f.uniformAt("uniformdistribution"); err != nil {
		return nil, err
	}

	people := s.coll.persons
	attr := func(dst *Attribute, key string, def float64) {
		if err == nil {
			*dst, err = f.InstallAttribute(people, key, "", def)
		}
	}
	attr(&f.seek, "seek", math.Inf(1))
	attr(&f.seekFactor, "seekfactor", 1)
	attr(&f.accept, "accept", 1)
	attr(&f.acceptFactor, "acceptfactor", 1)
	attr(&f.block, "blockpreviouspartners", 0)
	if err != nil {
		return nil, err
	}

	activeNode, err := cfg.Get("active")
	if err != nil {
		return nil, err
	}
	names, err := activeNode.Strings()
	if err != nil {
		return nil, err
	}
	f.active = make([]bool, people.Len())
	for _, n := range names {
		t, err := people.TypeByName(activeNode, n)
		if err != nil {
			return nil, err
		}
		f.active[t] = true
	}

	pair := func(dst **PairAttribute, key string, init, def float64) {
		if err == nil {
			*dst, err = f.InstallPairAttribute(people, key, init, def)
		}
	}
	pair(&f.ageMean, "agedifferencemean", 0, 0)
	pair(&f.ageSD, "agedifferencesd", 1e-8, math.Inf(1))
	pair(&f.mixing, "mixingfactors", 0, 1)
	pair(&f.psType, "partnershiptype", 0, 0)
	if err != nil {
		return nil, err
	}
	if err := f.psType.CheckRange(0, float64(s.coll.partnerships.Len()-1)); err != nil {
		return nil, err
	}
	logrus.Debugf("partnership former %d='%s' active=%v", f.typ, name, names)
	return f, nil
}

// === Population hooks ===

func (f *PSFormer) registerPerson(p *Person) error {
	if p.slot < 0 {
		return invariantOn(p, "trying to register person for partnership formation, but person has no valid slot")
	}
	if p.slot >= len(f.procs) {
		f.procs = append(f.procs, make([]*Process, p.slot+100-len(f.procs))...)
	}
	if !f.active[p.Type()] {
		return nil
	}
	if f.procs[p.slot] != nil {
		return invariantOn(p, "trying to assign new partnership formation process, but position is occupied already")
	}
	f.procs[p.slot] = newProcess(f.sim.sched)
	return f.throwEventPSInitiate(p)
}

func (f *PSFormer) deregisterPerson(p *Person) error {
	if !f.active[p.Type()] {
		return nil
	}
	proc := f.procs[p.slot]
	if proc == nil {
		return invariantOn(p, "trying to remove partnership formation process, but there is no active process present at this position")
	}
	proc.Clear()
	f.procs[p.slot] = nil
	return nil
}

func (f *PSFormer) updatePerson(p *Person) error {
	if !f.active[p.Type()] {
		return nil
	}
	if p.slot < 0 {
		return invariantOn(p, "updating partnership formation of a person without slot")
	}
	return f.throwEventPSInitiate(p)
}

// throwEventPSInitiate schedules the next search of p.
func (f *PSFormer) throwEventPSInitiate(p *Person) error {
	proc := f.procs[p.slot]
	if proc == nil {
		return invariantOn(p, "no partnership formation process present")
	}
	now := f.sim.Now()
	if p.death < now {
		return invariantOn(p, "cannot throw partnership forming event for dead person")
	}
	if !p.IsAlive() {
		// dies at now, after its partnerships ended
		proc.Clear()
		return nil
	}
	fac, err := p.Attribute(f.seekFactor, now)
	if err != nil {
		return err
	}
	wait, err := p.AttributeWithFactor(f.seek, now, fac)
	if err != nil {
		return err
	}
	if now+wait >= p.death {
		proc.Clear()
		return nil
	}
	return proc.Replace(&psInitiateEvent{baseEvent: baseEvent{now + wait}, former: f, person: p})
}

// === Search ===

// slotPSInitiate searches a partner for p1. A candidate is scored with a
// Gaussian kernel on the age difference, scaled by the mixing factor and the
// candidate's acceptance, and accepted if the score beats a uniform draw
// and a former partnership does not block the pair.
func (f *PSFormer) slotPSInitiate(p1 *Person) error {
	s := f.sim
	now := s.Now()
	t1 := p1.Type()
	block1, err := p1.Attribute(f.block, now)
	if err != nil {
		return err
	}

	var (
		p2    *Person
		score float64
		tries int
	)
	limit := searchEffort * s.pop.Size()
	for tries = 1; tries <= limit; tries++ {
		u, err := f.uniform.Sample()
		if err != nil {
			return err
		}
		cand, err := s.pop.randomPerson(f.uniform)
		if err != nil {
			return err
		}
		idx := cand.BinLinearised()
		mix, err := sampleCell(f.mixing, t1, idx, p1, now)
		if err != nil {
			return err
		}
		if mix == 0 {
			continue
		}
		mean, err := sampleCell(f.ageMean, t1, idx, p1, now)
		if err != nil {
			return err
		}
		sd, err := sampleCell(f.ageSD, t1, idx, p1, now)
		if err != nil {
			return err
		}
		z := (p1.birth - cand.birth - mean) / sd
		score = math.Exp(-0.5 * z * z)
		if u > score {
			continue
		}
		acceptFac, err := cand.Attribute(f.acceptFactor, now)
		if err != nil {
			return err
		}
		accept, err := cand.Attribute(f.accept, now)
		if err != nil {
			return err
		}
		score *= mix * acceptFac * accept
		if u >= score || cand == p1 {
			continue
		}
		ok, err := f.unblocked(p1, cand, block1, now)
		if err != nil {
			return err
		}
		if ok {
			p2 = cand
			break
		}
	}

	if p2 == nil {
		logrus.Debugf("t=%g: no partner found for person %d after %d tries", now, p1.id, limit)
		return f.throwEventPSInitiate(p1)
	}
	d, err := f.psType.At(t1, p2.BinLinearised())
	if err != nil {
		return err
	}
	pst, err := d.SampleIntFor(p1, now)
	if err != nil {
		return err
	}
	if pst < 0 || pst >= len(s.psTypes) {
		return invariantOn(p1, "partnership type %d does not exist", pst)
	}
	info := FormationInfo{Fitness: score, Tries: tries, FormerType: f.typ}
	if _, err := s.psTypes[pst].create(p1, p2, info); err != nil {
		return err
	}
	return f.throwEventPSInitiate(p1)
}

// unblocked reports whether p1 may partner with cand: either they never were
// partners, their last partnership is still running, or it ended longer ago
// than both block windows.
func (f *PSFormer) unblocked(p1, cand *Person, block1, now float64) (bool, error) {
	ps := p1.lastPartnershipWith(cand)
	if ps == nil {
		return true, nil
	}
	back := now - ps.death
	if back < 0 {
		return true, nil
	}
	block2, err := cand.Attribute(f.block, now)
	if err != nil {
		return false, err
	}
	return back > math.Max(block1, block2), nil
}

func sampleCell(pa *PairAttribute, from, to int, s dist.Subject, now float64) (float64, error) {
	d, err := pa.At(from, to)
	if err != nil {
		return 0, err
	}
	return d.SampleFor(s, now)
}
