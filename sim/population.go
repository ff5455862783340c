package sim

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// slotIncrement is how many slots the person table grows by when full.
const slotIncrement = 100

// Population stores the persons and partnerships of a simulation.
//
// Persons live in a slot table with a free-slot queue so that partnership
// formers can index per-person state by slot; a dead person's slot is
// reused by the next registration. Ended partnerships and old infections
// stay reachable until a removal sweep drops them.
type Population struct {
	sim    *Simulator
	target int

	slots []*Person
	free  []int

	active roster[*Person]
	dead   roster[*Person]
	gone   roster[*Person]

	partnerships roster[*Partnership]
	ended        roster[*Partnership]

	atDeathReplace    bool
	timeOfReplacement *dist.Distribution
	atBirthInsert     bool
	immigration       *dist.Distribution

	removePS  float64
	removeInf float64
}

func newPopulation(s *Simulator, cfg *config.Node) (*Population, error) {
	size, err := cfg.IntAt("size")
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, cfg.Errorf("population size must not be negative, got %d", size)
	}
	pop := &Population{
		sim:            s,
		target:         size,
		slots:          make([]*Person, size),
		free:           make([]int, size),
		atDeathReplace: true,
		removePS:       math.Inf(1),
		removeInf:      math.Inf(1),
	}
	for i := range pop.free {
		pop.free[i] = i
	}

	if cfg.Exists("atdeath") {
		v, err := cfg.StringAt("atdeath")
		if err != nil {
			return nil, err
		}
		pop.atDeathReplace = v == "replace"
	}
	if pop.atDeathReplace {
		if n := cfg.Lookup("timeofreplacement"); n != nil {
			if pop.timeOfReplacement, err = s.builder.Build(n, nil); err != nil {
				return nil, err
			}
		} else {
			pop.timeOfReplacement = s.builder.Constant(1)
		}
	}
	if cfg.Exists("atbirth") {
		v, err := cfg.StringAt("atbirth")
		if err != nil {
			return nil, err
		}
		pop.atBirthInsert = v == "insert"
	}
	if n := cfg.Lookup("immigration"); n != nil {
		d, err := s.builder.Build(n, nil)
		if err != nil {
			return nil, err
		}
		if d.Max() > 0 {
			pop.immigration = d
		}
	}
	logrus.Debugf("population size=%d atdeath-replace=%t atbirth-insert=%t immigration=%t",
		size, pop.atDeathReplace, pop.atBirthInsert, pop.immigration != nil)
	if err := pop.throwEventImmigration(); err != nil {
		return nil, err
	}
	return pop, nil
}

// Size returns the number of live persons.
func (pop *Population) Size() int { return pop.active.Len() }

// Target returns the configured population size.
func (pop *Population) Target() int { return pop.target }

// Active returns a copy of the live persons, newest first.
func (pop *Population) Active() []*Person { return pop.active.slice() }

// Dead returns a copy of the persons who died, most recent first.
func (pop *Population) Dead() []*Person { return pop.dead.slice() }

// Emigrated returns a copy of the persons who left the population, most
// recent first.
func (pop *Population) Emigrated() []*Person { return pop.gone.slice() }

// Partnerships returns a copy of the running partnerships, newest first.
func (pop *Population) Partnerships() []*Partnership { return pop.partnerships.slice() }

// EndedPartnerships returns a copy of the partnerships that ended and were
// not yet removed, most recent first.
func (pop *Population) EndedPartnerships() []*Partnership { return pop.ended.slice() }

// === Person registry ===

// registerPerson assigns a slot to p. Persons entering by population or
// immigration are exposed to every infection type's prevalence.
func (pop *Population) registerPerson(p *Person, cause Cause) error {
	if p.slot >= 0 {
		return invariantOn(p, "person registered twice")
	}
	if len(pop.free) == 0 {
		n := len(pop.slots)
		pop.slots = append(pop.slots, make([]*Person, slotIncrement)...)
		for i := n; i < n+slotIncrement; i++ {
			pop.free = append(pop.free, i)
		}
	}
	p.slot = pop.free[0]
	pop.free = pop.free[1:]
	pop.slots[p.slot] = p
	p.entry = pop.active.pushFront(p)

	if cause != CausePopulate && cause != CauseImmigration {
		return nil
	}
	for _, ic := range pop.sim.infectionTypes {
		if _, err := ic.randomlyInfect(p, cause); err != nil {
			return err
		}
	}
	return nil
}

// deregisterPerson moves p to the dead or emigrated list and frees its
// slot. With replacement at death, a birth follows after the replacement time.
func (pop *Population) deregisterPerson(p *Person, cause Cause) error {
	s := pop.sim
	if p.slot < 0 || p.slot >= len(pop.slots) || pop.slots[p.slot] != p {
		return invariantOn(p, "deregistering person without a valid slot")
	}
	if cause != CauseDeath && cause != CauseEmigration {
		return invariantOn(p, "unknown deletion cause %s", cause)
	}
	if !pop.active.remove(p.entry) {
		return invariantOn(p, "deregistering person that is not in the active list")
	}
	if cause == CauseDeath {
		p.entry = pop.dead.pushFront(p)
		s.stats.Deaths++
	} else {
		p.entry = pop.gone.pushFront(p)
		s.stats.Emigrations++
	}
	pop.slots[p.slot] = nil
	pop.free = append(pop.free, p.slot)
	p.slot = -1

	if !pop.atDeathReplace {
		return nil
	}
	wait, err := pop.timeOfReplacement.Sample()
	if err != nil {
		return err
	}
	_, err = s.sched.Insert(&birthEvent{baseEvent: baseEvent{s.Now() + wait}, cause: CauseReplacement})
	return err
}

// randomPerson draws a live person uniformly.
func (pop *Population) randomPerson(uniform *dist.Distribution) (*Person, error) {
	if pop.active.Len() == 0 {
		return nil, invariantf("cannot draw a random person from an empty population")
	}
	for {
		i, err := uniform.SampleIntMax(len(pop.slots))
		if err != nil {
			return nil, err
		}
		if p := pop.slots[i]; p != nil {
			return p, nil
		}
	}
}

// === Partnership formation ===

func (pop *Population) registerForFormation(p *Person) error {
	for _, f := range pop.sim.formers {
		if err := f.registerPerson(p); err != nil {
			return err
		}
	}
	return nil
}

func (pop *Population) updateFormation(p *Person) error {
	for _, f := range pop.sim.formers {
		if err := f.updatePerson(p); err != nil {
			return err
		}
	}
	return nil
}

func (pop *Population) deregisterFromFormation(p *Person) error {
	for _, f := range pop.sim.formers {
		if err := f.deregisterPerson(p); err != nil {
			return err
		}
	}
	return nil
}

// === Partnership registry ===

func (pop *Population) registerPartnership(ps *Partnership) {
	ps.entry = pop.partnerships.pushFront(ps)
	pop.sim.stats.PartnershipsCreated++
}

func (pop *Population) deregisterPartnership(ps *Partnership) error {
	if !pop.partnerships.remove(ps.entry) {
		return invariantOn(ps, "ending partnership that is not in the active list")
	}
	ps.entry = pop.ended.pushFront(ps)
	pop.sim.stats.PartnershipsEnded++
	return nil
}

// === Actions ===

// populate fills every slot with a person of a random type. The active
// list is then ordered by birth, youngest first.
func (pop *Population) populate() error {
	for range pop.target {
		if _, err := pop.createRandom(CausePopulate, nil, nil); err != nil {
			return err
		}
	}
	sortByKey(&pop.active, func(p *Person) float64 { return -p.birth })
	logrus.Infof("populated with %d persons", pop.active.Len())
	return nil
}

func (pop *Population) createRandom(cause Cause, mother, father *Person) (*Person, error) {
	cr, err := pop.sim.coll.persons.RandomCreator()
	if err != nil {
		return nil, err
	}
	return pop.sim.personTypes[cr.typ].create(cause, mother, father)
}

func (pop *Population) throwEventImmigration() error {
	if pop.immigration == nil {
		return nil
	}
	wait, err := pop.immigration.Sample()
	if err != nil {
		return err
	}
	t := pop.sim.Now() + wait
	if math.IsInf(t, 1) {
		return nil
	}
	_, err = pop.sim.sched.Insert(&immigrationEvent{baseEvent{t}})
	return err
}

func (pop *Population) slotImmigration() error {
	if _, err := pop.createRandom(CauseImmigration, nil, nil); err != nil {
		return err
	}
	pop.sim.stats.Immigrations++
	return pop.throwEventImmigration()
}

// slotBirth adds a newborn. A natural birth only enters the population with
// 'atbirth: insert'; a replacement birth always does.
func (pop *Population) slotBirth(cause Cause, mother, father *Person) error {
	switch cause {
	case CauseBirth:
		if !pop.atBirthInsert {
			return nil
		}
	case CauseReplacement:
		if !pop.atDeathReplace {
			return invariantf("received birth event with cause replacement but 'atdeath' is not 'replace'")
		}
	default:
		return invariantf("birth event with cause %s", cause)
	}
	if _, err := pop.createRandom(CauseBirth, mother, father); err != nil {
		return err
	}
	pop.sim.stats.Births++
	return nil
}

// === Removal sweeps ===

// removeOldPartnerships drops ended partnerships older than the retention
// horizon after both partners forgot them.
func (pop *Population) removeOldPartnerships() {
	limit := pop.sim.Now() - pop.removePS
	n := pop.ended.deleteFunc(func(ps *Partnership) bool {
		if ps.death >= limit {
			return false
		}
		ps.p1.internalRemovePartnership(ps)
		ps.p2.internalRemovePartnership(ps)
		ps.entry = entry{}
		return true
	})
	logrus.Debugf("t=%g: removed %d old partnerships", pop.sim.Now(), n)
}

// removeOldInfections drops the old infections of live persons that died
// before the retention horizon, scrubbing parent references first.
func (pop *Population) removeOldInfections() {
	limit := pop.sim.Now() - pop.removeInf
	var old []*Infection
	for p := range pop.active.all() {
		for _, inf := range p.infectionsOld {
			if inf.death < limit {
				old = append(old, inf)
			}
		}
	}
	for _, inf := range old {
		for p := range pop.active.all() {
			p.internalRemoveInfection(inf)
		}
	}
	logrus.Debugf("t=%g: removed %d old infections", pop.sim.Now(), len(old))
}
