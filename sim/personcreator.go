package sim

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

type personVariant int

const (
	personGeneric personVariant = iota
	personMale
	personFemale
)

// maxLifespanDraws bounds the resampling of a lifespan that equals the age
// the person is created at.
const maxLifespanDraws = 1000

// PersonCreator is a person type.
type PersonCreator struct {
	*Creator
	variant personVariant

	lifespan       Attribute
	birthshift     Attribute
	initran        Attribute
	initranPresent bool
	immigrationAge Attribute

	visitGP          Attribute
	visitFactor      Attribute
	visitFactor2     Attribute
	visitProb        Attribute
	visitProbFactor  Attribute
	visitProbFactor2 Attribute
	gpVisitType      Attribute
	uniform          *dist.Distribution
	visitUniform     *dist.Distribution

	pregRate             Attribute
	pregFactor           Attribute
	pregPerContact       Attribute
	pregPerContactFactor Attribute
	pregDuration         Attribute
	pregUniform          *dist.Distribution
}

func newPersonCreator(s *Simulator, name string, cfg *config.Node) (*PersonCreator, error) {
	bt, err := basetype(cfg, "GENERIC")
	if err != nil {
		return nil, err
	}
	pc := &PersonCreator{}
	switch bt {
	case "GENERIC":
		pc.variant = personGeneric
	case "MALE":
		pc.variant = personMale
	case "FEMALE":
		pc.variant = personFemale
	default:
		return nil, cfg.Errorf("unknown basetype '%s' for person type '%s'", bt, name)
	}
	if pc.Creator, err = newCreator(s, s.coll.persons, name, cfg, nil); err != nil {
		return nil, err
	}
	logrus.Debugf("person type %d='%s' basetype=%s bins=%v", pc.typ, name, bt, pc.bins)

	people := s.coll.persons
	install := func(dst *Attribute, key, path string, def float64) {
		if err != nil {
			return
		}
		*dst, err = pc.InstallAttribute(people, key, path, def)
	}
	install(&pc.lifespan, "lifespan", "", 80*daysInYear)
	install(&pc.birthshift, "birthshift", "", 0)
	install(&pc.initran, "initialrandomisation", "", 0)
	install(&pc.immigrationAge, "immigrationage", "", 20*daysInYear)
	install(&pc.visitGP, "visitgp", "", math.Inf(1))
	install(&pc.visitFactor, "visitgpfactor", "", 1)
	install(&pc.visitFactor2, "visitgpfactor2", "", 1)
	install(&pc.visitProb, "visitgpprobability", "", 1)
	install(&pc.visitProbFactor, "visitgpprobabilityfactor", "", 1)
	install(&pc.visitProbFactor2, "visitgpprobabilityfactor2", "", 1)
	install(&pc.gpVisitType, "gpvisittype", "", 0)
	if err != nil {
		return nil, err
	}
	pc.initranPresent = cfg.Exists("initialrandomisation")
	if pc.uniform, err = pc.uniformAt("uniformdistribution"); err != nil {
		return nil, err
	}
	if pc.visitUniform, err = pc.uniformAt("uniformdistribution"); err != nil {
		return nil, err
	}

	if n := s.coll.visits.Len(); n > 0 {
		if err := people.AttributeDistribution(pc.gpVisitType).CheckRange(0, float64(n-1)); err != nil {
			return nil, err
		}
	} else {
		cfg.Warnf("no 'gpvisits' specified; clinic visits of person type '%s' cannot happen", name)
	}

	if pc.variant == personFemale {
		if err := pc.installPregnancy(); err != nil {
			return nil, err
		}
	}

	s.maxAge = math.Max(s.maxAge, people.AttributeDistribution(pc.lifespan).Max())
	s.minAge = math.Min(s.minAge, people.AttributeDistribution(pc.birthshift).Min())
	return pc, nil
}

func (pc *PersonCreator) installPregnancy() error {
	var err error
	if pc.cfg.Exists("pregnancy") {
		pc.pregUniform, err = pc.uniformAt("pregnancy.uniformdistribution")
	} else {
		pc.pregUniform, err = pc.uniformAt("uniformdistribution")
	}
	if err != nil {
		return err
	}
	people := pc.sim.coll.persons
	for _, a := range []struct {
		dst  *Attribute
		name string
		def  float64
	}{
		{&pc.pregRate, "generalrate", math.Inf(1)},
		{&pc.pregFactor, "generalfactor", 1},
		{&pc.pregPerContact, "probabilitypercontact", 0},
		{&pc.pregPerContactFactor, "probabilitypercontactfactor", 1},
		{&pc.pregDuration, "duration", 260},
	} {
		if *a.dst, err = pc.InstallAttribute(people, a.name, "pregnancy", a.def); err != nil {
			return err
		}
	}
	return nil
}

// create brings a new person into the population: it samples birth and
// death for the given cause, registers the person, replays the bin history
// since birth and starts the person's processes.
func (pc *PersonCreator) create(cause Cause, mother, father *Person) (*Person, error) {
	s := pc.sim
	now := s.Now()
	p := &Person{pc: pc, cause: cause, slot: -1}
	if mother != nil {
		p.motherID = mother.id
	}
	if father != nil {
		p.fatherID = father.id
	}
	if err := p.init(s, pc.Creator, p); err != nil {
		return nil, err
	}
	if err := p.sampleInitialBin(nil); err != nil {
		return nil, err
	}
	s.uids.person++
	p.id = s.uids.person
	p.procVisitGP = newProcess(s.sched)
	p.procTreat = make([]*Process, len(s.infectionTypes))
	for i := range p.procTreat {
		p.procTreat[i] = newProcess(s.sched)
	}
	if pc.variant == personFemale {
		p.preg = &pregnancy{proc: newProcess(s.sched)}
	}

	var lifespan float64
	switch cause {
	case CauseBirth, CausePopulate:
		shift, err := p.Attribute(pc.birthshift, now)
		if err != nil {
			return nil, err
		}
		if lifespan, err = pc.sampleLifespan(p, now, shift); err != nil {
			return nil, err
		}
		p.birth = now - shift
		if cause == CausePopulate {
			var u float64
			if pc.initranPresent {
				u, err = p.Attribute(pc.initran, now)
			} else {
				u, err = pc.uniform.Sample()
			}
			if err != nil {
				return nil, err
			}
			p.birth -= u * (lifespan - shift)
		}
	case CauseImmigration:
		age, err := p.Attribute(pc.immigrationAge, now)
		if err != nil {
			return nil, err
		}
		p.birth = now - age
		if lifespan, err = pc.sampleLifespan(p, now, age); err != nil {
			return nil, err
		}
	default:
		return nil, invariantf("unknown creation cause %s", cause)
	}
	p.death = p.birth + lifespan
	if p.death == p.birth {
		return nil, invariantOn(p, "time of death equals time of birth")
	}

	if err := s.pop.registerPerson(p, cause); err != nil {
		return nil, err
	}
	if err := p.throwEventDeath(); err != nil {
		return nil, err
	}
	if err := p.replayBins(); err != nil {
		return nil, err
	}
	if err := s.pop.registerForFormation(p); err != nil {
		return nil, err
	}
	if err := p.throwEventVisitGP(false); err != nil {
		return nil, err
	}
	if p.preg != nil {
		if err := p.preg.proc.SetLastTimeAt(p.birth); err != nil {
			return nil, err
		}
		if err := p.throwEventGetPregnant(false); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// sampleLifespan draws a lifespan exceeding atleast.
func (pc *PersonCreator) sampleLifespan(p *Person, now, atleast float64) (float64, error) {
	for range maxLifespanDraws {
		rest, err := p.AttributeAtLeast(pc.lifespan, now, atleast)
		if err != nil {
			return 0, err
		}
		if rest != 0 {
			return atleast + rest, nil
		}
	}
	return 0, pc.cfg.Errorf("person type '%s': 'lifespan' never exceeds the age at creation %g", pc.name, atleast)
}

// replayBins simulates the bin transitions from birth up to the clock and
// schedules the first one still in the future.
func (p *Person) replayBins() error {
	now := p.sim.Now()
	next := p.birth
	if err := p.procBinChange.SetLastTimeAt(p.birth); err != nil {
		return err
	}
	var (
		bc  binChange
		err error
	)
	for {
		if bc, err = p.sampleBinChange(p.bin, p.procBinChange.LastTime(), false); err != nil {
			return err
		}
		if bc.to == noBin {
			break
		}
		if next += bc.rel; next > now {
			break
		}
		if err := p.procBinChange.SetLastTimeAt(next); err != nil {
			return err
		}
		p.bin = bc.to
	}
	if bc.to != noBin && next < p.death {
		return p.procBinChange.Update(&binChangeEvent{baseEvent: baseEvent{next}, target: p, from: p.bin, to: bc.to})
	}
	return nil
}
