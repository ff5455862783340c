package sim

import (
	"math"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// InfectionCreator is an infection type.
type InfectionCreator struct {
	*Creator
	uniform     *dist.Distribution
	testUniform *dist.Distribution

	prevPopulating  Attribute
	prevImmigrating Attribute
	immunity        Attribute
	provoke         Attribute
	provokeType     Attribute

	infectiousness       Attribute
	infFactor            Attribute
	infCouple            *PairAttribute
	infFactorInfector    Attribute
	infFactorSusceptible Attribute
	infFactorPS          Attribute

	sensitivity Attribute
	specificity Attribute
	waitResult  Attribute

	cleared int
	treated int
}

func newInfectionCreator(s *Simulator, name string, cfg *config.Node) (*InfectionCreator, error) {
	if err := genericOnly(cfg, name); err != nil {
		return nil, err
	}
	cr, err := newCreator(s, s.coll.infections, name, cfg, s.coll.persons)
	if err != nil {
		return nil, err
	}
	ic := &InfectionCreator{Creator: cr}
	if ic.uniform, err = ic.uniformAt("uniformdistribution"); err != nil {
		return nil, err
	}
	if cfg.Exists("test") {
		ic.testUniform, err = ic.uniformAt("test.uniformdistribution")
	} else {
		ic.testUniform, err = ic.uniformAt("uniformdistribution")
	}
	if err != nil {
		return nil, err
	}

	people, own, couples := s.coll.persons, s.coll.infections, s.coll.partnerships
	attr := func(dst *Attribute, c *Collection, key, path string, def float64) {
		if err == nil {
			*dst, err = ic.InstallAttribute(c, key, path, def)
		}
	}
	attr(&ic.prevPopulating, people, "prevalencewhenpopulating", "", 0.1)
	attr(&ic.prevImmigrating, people, "prevalencewhenimmigrating", "", 0)
	attr(&ic.immunity, own, "immunity", "", 0)
	attr(&ic.provoke, own, "provokegpvisit", "", math.Inf(1))
	attr(&ic.provokeType, own, "provokegpvisittype", "", 0)
	attr(&ic.infectiousness, own, "infectiousness", "", 0.1)
	attr(&ic.infFactor, own, "infectiousnessfactor", "", 1)
	if err == nil {
		ic.infCouple, err = ic.InstallPairAttribute(people, "infectiousnessfactorcouple", 0, 1)
	}
	attr(&ic.infFactorInfector, people, "infectiousnessfactorinfector", "", 1)
	attr(&ic.infFactorSusceptible, people, "infectiousnessfactorsusceptible", "", 1)
	attr(&ic.infFactorPS, couples, "infectiousnessfactorpartnership", "", 1)
	attr(&ic.sensitivity, own, "sensitivity", "test", 1)
	attr(&ic.specificity, people, "specificity", "test", 1)
	attr(&ic.waitResult, people, "waitforresult", "test", 1)
	if err != nil {
		return nil, err
	}
	if n := s.coll.visits.Len(); n > 0 {
		if err := own.AttributeDistribution(ic.provokeType).CheckRange(0, float64(n-1)); err != nil {
			return nil, err
		}
	}

	clearedName, err := cfg.StringOr("clearedbin", "cleared")
	if err != nil {
		return nil, err
	}
	if ic.cleared, err = ic.BinByName(clearedName); err != nil {
		return nil, err
	}
	treatedName, err := cfg.StringOr("treatedbin", "treated")
	if err != nil {
		return nil, err
	}
	if ic.treated, err = ic.BinByName(treatedName); err != nil {
		return nil, err
	}
	return ic, nil
}

// ClearedBin returns the bin of naturally cleared infections.
func (ic *InfectionCreator) ClearedBin() int { return ic.cleared }

// TreatedBin returns the bin of treated infections.
func (ic *InfectionCreator) TreatedBin() int { return ic.treated }

// randomlyInfect rolls the prevalence of a person entering the population
// and, on success, schedules the infection for now.
func (ic *InfectionCreator) randomlyInfect(p *Person, why Cause) (bool, error) {
	var a Attribute
	switch why {
	case CausePopulate:
		a = ic.prevPopulating
	case CauseImmigration:
		a = ic.prevImmigrating
	default:
		return false, ic.cfg.Errorf("cannot randomly infect person except when populating or immigrating")
	}
	now := ic.sim.Now()
	prob, err := p.Attribute(a, now)
	if err != nil {
		return false, err
	}
	u, err := ic.uniform.Sample()
	if err != nil {
		return false, err
	}
	if u >= prob {
		return false, nil
	}
	if _, err := ic.sim.sched.Insert(&infectPersonEvent{baseEvent: baseEvent{now}, ic: ic, person: p}); err != nil {
		return false, err
	}
	return true, nil
}

// testResult tests p for this infection type. An infectious infection is
// detected with its sensitivity; otherwise the test is falsely positive
// with one minus the person's specificity.
func (ic *InfectionCreator) testResult(p *Person) (bool, error) {
	ic.sim.stats.Tests++
	now := ic.sim.Now()
	u, err := ic.testUniform.Sample()
	if err != nil {
		return false, err
	}
	if inf := p.infectionOf(ic.typ); inf != nil && inf.IsInfectious() {
		sens, err := inf.Attribute(ic.sensitivity, now)
		if err != nil {
			return false, err
		}
		return u < sens, nil
	}
	spec, err := p.Attribute(ic.specificity, now)
	if err != nil {
		return false, err
	}
	return u > spec, nil
}

func (ic *InfectionCreator) waitForResult(p *Person) (float64, error) {
	return p.Attribute(ic.waitResult, ic.sim.Now())
}
