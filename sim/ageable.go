package sim

import (
	"math"

	"github.com/aroellin/rstisim/sim/dist"
)

// entity is implemented by every ageable: persons, partnerships and
// infections. The scheduler's death and bin-change events dispatch through it.
type entity interface {
	dist.Subject
	base() *Ageable
	slotDeath() error
	slotBinChange(from, to int) error
	throwEventBinChange(cond bool) error
	describe() string
}

// Ageable is the lifecycle shared by all entities: a birth and death time, a
// current bin with stochastic transitions, and attributes that may be fixed
// at birth.
type Ageable struct {
	sim     *Simulator
	creator *Creator
	self    entity

	bin          int
	birth, death float64
	// fixed holds the values of fixed-at-birth attributes, indexed by
	// attribute and bin; nil rows are not fixed for this entity.
	fixed [][]float64

	procDeath     *Process
	procBinChange *Process
}

// init sets birth and death to the clock and caches every fixed-at-birth
// attribute of the entity's collection, once per bin, or once for all bins
// unless the attribute is fixed per bin. The initial bin is left to the caller.
func (a *Ageable) init(s *Simulator, cr *Creator, self entity) error {
	a.sim, a.creator, a.self = s, cr, self
	now := s.Now()
	a.birth, a.death = now, now
	a.procDeath = newProcess(s.sched)
	a.procBinChange = newProcess(s.sched)

	attrs := cr.collection.attrs
	a.fixed = make([][]float64, len(attrs))
	for i, attr := range attrs {
		if !attr.fixed || !attr.appliesTo(cr) {
			continue
		}
		row := make([]float64, len(cr.bins))
		for b := range row {
			if b > 0 && !attr.fixedPerBin {
				row[b] = row[0]
				continue
			}
			a.bin = b
			v, err := attr.dist.SampleFor(self, now)
			if err != nil {
				return err
			}
			row[b] = v
		}
		a.fixed[i] = row
	}
	a.bin = 0
	return nil
}

// sampleInitialBin draws the starting bin, against subject s when given.
func (a *Ageable) sampleInitialBin(s dist.Subject) error {
	var (
		b   int
		err error
	)
	if s == nil {
		b, err = a.creator.binDist.SampleInt()
	} else {
		b, err = a.creator.binDist.SampleIntFor(s, a.sim.Now())
	}
	if err != nil {
		return err
	}
	a.bin = b
	return nil
}

func (a *Ageable) base() *Ageable { return a }

// Birth returns the time of birth. It implements dist.Subject.
func (a *Ageable) Birth() float64 { return a.birth }

// Death returns the (scheduled) time of death.
func (a *Ageable) Death() float64 { return a.death }

// Bin returns the current bin.
func (a *Ageable) Bin() int { return a.bin }

// Type returns the type id.
func (a *Ageable) Type() int { return a.creator.typ }

// Creator returns the entity type.
func (a *Ageable) Creator() *Creator { return a.creator }

// BinLinearised returns the current (type, bin) as a dense collection index.
func (a *Ageable) BinLinearised() int { return a.creator.Linearise(a.bin) }

// IsAlive reports whether the clock lies in [birth, death).
func (a *Ageable) IsAlive() bool {
	now := a.sim.Now()
	return a.birth <= now && now < a.death
}

// Number answers the covariates every ageable knows; all others are 0.
func (a *Ageable) Number(c dist.Covariate) (int, error) {
	switch c {
	case dist.Bin:
		return a.bin, nil
	case dist.Type:
		return a.creator.typ, nil
	case dist.IsActive:
		if a.IsAlive() {
			return 1, nil
		}
	}
	return 0, nil
}

func (a *Ageable) fixedValue(attr Attribute) (float64, bool) {
	row := a.fixed[attr]
	if row == nil {
		return 0, false
	}
	return row[a.bin], true
}

func (a *Ageable) attr(attr Attribute) *attribute { return a.creator.collection.attrs[attr] }

// Attribute samples an attribute at time now, or returns its fixed value.
func (a *Ageable) Attribute(attr Attribute, now float64) (float64, error) {
	if v, ok := a.fixedValue(attr); ok {
		return v, nil
	}
	return a.attr(attr).dist.SampleFor(a.self, now)
}

// AttributeAtLeast samples an attribute conditioned on exceeding atleast
// and returns the residual.
func (a *Ageable) AttributeAtLeast(attr Attribute, now, atleast float64) (float64, error) {
	if v, ok := a.fixedValue(attr); ok {
		if atleast > v {
			return 0, a.creator.cfg.Errorf(
				"trying to condition on attribute that was fixed at birth, but conditioning value is bigger than attribute (%s)",
				a.attr(attr).name)
		}
		return v - atleast, nil
	}
	return a.attr(attr).dist.SampleForAtLeast(a.self, now, atleast)
}

// AttributeWithFactor samples a scaled waiting time.
func (a *Ageable) AttributeWithFactor(attr Attribute, now, factor float64) (float64, error) {
	if _, ok := a.fixedValue(attr); ok {
		return 0, a.creator.cfg.Errorf("cannot sample with factor if attribute was fixed at birth (%s)", a.attr(attr).name)
	}
	return a.attr(attr).dist.SampleWithFactorFor(factor, a.self, now)
}

// AttributeWithFactorAtLeast samples a scaled waiting time conditioned on
// exceeding atleast.
func (a *Ageable) AttributeWithFactorAtLeast(attr Attribute, now, factor, atleast float64) (float64, error) {
	if _, ok := a.fixedValue(attr); ok {
		return 0, a.creator.cfg.Errorf("cannot sample with factor if attribute was fixed at birth (%s)", a.attr(attr).name)
	}
	return a.attr(attr).dist.SampleWithFactorForAtLeast(factor, a.self, now, atleast)
}

// === Lifecycle ===

// ageableDeath cancels the owned processes and fixes the death time.
func (a *Ageable) ageableDeath() {
	a.procDeath.Clear()
	a.procBinChange.Clear()
	a.death = a.sim.Now()
}

// ageableBinChange commits a transition and schedules the next one.
func (a *Ageable) ageableBinChange(from, to int) error {
	if a.bin != from {
		return invariantOn(a.self, "trying to change from bin person is not in (%d, current %d)", from, a.bin)
	}
	a.bin = to
	a.procBinChange.SetLastTime()
	return a.self.throwEventBinChange(false)
}

type binChange struct {
	from, to int
	rel      float64
}

const noBin = -1

// sampleBinChange returns the earliest transition out of bin from. The
// conditional form conditions each waiting time on the time elapsed since
// the last transition. Only strictly positive waiting times count, and ties
// go to the first declared transition.
func (a *Ageable) sampleBinChange(from int, now float64, cond bool) (binChange, error) {
	best := binChange{from: from, to: noBin, rel: math.Inf(1)}
	last := a.procBinChange.LastTime()
	for _, t := range a.creator.transitions {
		if t.from != from {
			continue
		}
		var (
			next float64
			err  error
		)
		if cond {
			elapsed := now - last
			if elapsed < 0 {
				return best, invariantOn(a.self, "cannot sample conditional bin change if last change is later than now")
			}
			next, err = t.at.SampleForAtLeast(a.self, last, elapsed)
		} else {
			next, err = t.at.SampleFor(a.self, now)
		}
		if err != nil {
			return best, err
		}
		if next > 0 && next < best.rel {
			best.to, best.rel = t.to, next
		}
	}
	return best, nil
}

// throwEventBinChange schedules the next transition, or cancels it if
// there is none before death.
func (a *Ageable) throwEventBinChange(cond bool) error {
	now := a.sim.Now()
	bc, err := a.sampleBinChange(a.bin, now, cond)
	if err != nil {
		return err
	}
	if bc.to != noBin && now+bc.rel < a.death {
		return a.procBinChange.Update(&binChangeEvent{
			baseEvent: baseEvent{now + bc.rel}, target: a.self, from: a.bin, to: bc.to,
		})
	}
	a.procBinChange.Clear()
	return nil
}

// throwEventDeath schedules death at the death time.
func (a *Ageable) throwEventDeath() error {
	if math.IsInf(a.death, 1) {
		a.procDeath.Clear()
		return nil
	}
	return a.procDeath.Replace(&deathEvent{baseEvent: baseEvent{a.death}, target: a.self})
}
