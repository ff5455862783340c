// sim/simulator.go
package sim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
	"github.com/aroellin/rstisim/sim/trace"
)

const (
	daysInYear = 365
	// defaultEventListSizeFactor times the population size bounds the event list.
	defaultEventListSizeFactor = 50
	defaultWithinLag           = 365.0
)

// Option configures a Simulator.
type Option func(*options)

type options struct {
	seed     *int64
	tracer   *trace.SimulationTrace
	capacity int
	verbose  bool
}

// WithSeed overrides 'simulation.seed'.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithTracer records every executed event into tr.
func WithTracer(tr *trace.SimulationTrace) Option {
	return func(o *options) { o.tracer = tr }
}

// WithSchedulerCapacity overrides the event list capacity derived from
// 'simulation.eventlistsizefactor'. A capacity <= 0 means unbounded.
func WithSchedulerCapacity(capacity int) Option {
	return func(o *options) { o.capacity = capacity }
}

// WithVerbose logs every event executed by AdvanceEvents.
func WithVerbose(verbose bool) Option {
	return func(o *options) { o.verbose = verbose }
}

// Simulator is the simulation context: it owns the clock, the random cores,
// the entity types, the population and the counters. It is not safe for
// concurrent use; drive it from a single goroutine.
type Simulator struct {
	root    *config.Node
	seed    int64
	rng     *PartitionedRNG
	builder *dist.Builder
	sched   *Scheduler
	tracer  *trace.SimulationTrace
	verbose bool

	stats Statistics
	uids  struct {
		person, partnership, infection, strain, notification int64
	}

	coll struct {
		persons, formers, partnerships, infections, visits, notifiers *Collection
	}
	personTypes    []*PersonCreator
	formers        []*PSFormer
	psTypes        []*PSCreator
	infectionTypes []*InfectionCreator
	visitTypes     []*GPVisitCreator
	notifiers      []*Notifier

	pop       *Population
	withinLag float64
	maxAge    float64
	minAge    float64
	testDist  *dist.Distribution

	populated bool
	failed    error
	closed    bool
}

// New builds a simulator from the root of a model configuration.
func New(root *config.Node, opts ...Option) (*Simulator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s := &Simulator{
		root:      root,
		tracer:    o.tracer,
		verbose:   o.verbose,
		withinLag: defaultWithinLag,
		minAge:    math.Inf(1),
	}

	switch {
	case o.seed != nil:
		s.seed = *o.seed
	case root.Exists("simulation.seed"):
		seed, err := root.IntAt("simulation.seed")
		if err != nil {
			return nil, err
		}
		s.seed = int64(seed)
	default:
		s.seed = time.Now().Unix()
	}
	s.rng = NewPartitionedRNG(NewSimulationKey(s.seed))
	s.builder = dist.NewBuilder(s.rng)

	size, err := root.IntAt("model.population.size")
	if err != nil {
		return nil, err
	}
	capacity := o.capacity
	if capacity == 0 {
		factor := defaultEventListSizeFactor
		if root.Exists("simulation.eventlistsizefactor") {
			if factor, err = root.IntAt("simulation.eventlistsizefactor"); err != nil {
				return nil, err
			}
		}
		capacity = factor * size
	}
	s.sched = NewScheduler(capacity)

	if s.pop, err = newPopulation(s, root.Lookup("model.population")); err != nil {
		return nil, err
	}
	if err := s.readGlobals(); err != nil {
		return nil, err
	}
	if err := s.buildCollections(); err != nil {
		return nil, err
	}
	if err := s.buildTypes(); err != nil {
		return nil, err
	}
	logrus.Infof("initialised model: seed=%d persons=%d formers=%d partnerships=%d infections=%d gpvisits=%d notifiers=%d",
		s.seed, len(s.personTypes), len(s.formers), len(s.psTypes), len(s.infectionTypes), len(s.visitTypes), len(s.notifiers))
	return s, nil
}

// readGlobals reads the removal horizons, the 'within' lag and the test
// distribution, and schedules the first removal sweeps.
func (s *Simulator) readGlobals() error {
	root := s.root
	for _, r := range []struct {
		key  string
		what removeWhat
		dst  *float64
	}{
		{"simulation.remove.partnershipsolderthan", removePartnerships, &s.pop.removePS},
		{"simulation.remove.infectionsolderthan", removeInfections, &s.pop.removeInf},
	} {
		if !root.Exists(r.key) {
			logrus.Warnf("'%s' not set: keeping all %s in memory", r.key, r.what)
			continue
		}
		v, err := root.FloatAt(r.key)
		if err != nil {
			return err
		}
		*r.dst = v
		if math.IsInf(v, 1) {
			continue
		}
		if _, err := s.sched.Insert(&removeOldEvent{baseEvent: baseEvent{s.Now() + v}, what: r.what}); err != nil {
			return err
		}
	}
	if root.Exists("simulation.withintimelag") {
		v, err := root.FloatAt("simulation.withintimelag")
		if err != nil {
			return err
		}
		s.withinLag = v
	}
	if n := root.Lookup("test.distribution"); n != nil {
		d, err := s.builder.Build(n, nil)
		if err != nil {
			return err
		}
		s.testDist = d
	}
	return nil
}

var collectionSpecs = []struct {
	label, names, dist, types string
	required                  bool
}{
	{"person", "model.population.people.names", "model.population.people.distribution", "model.people", true},
	{"partnership former", "model.population.partnershipformers.names", "", "model.partnershipformers", false},
	{"partnership", "model.population.partnerships.names", "", "model.partnerships", false},
	{"infection", "model.population.infections.names", "", "model.infections", false},
	{"gpvisit", "model.population.gpvisits.names", "", "model.gpvisits", false},
	{"partner notification", "model.population.partnernotification.names", "", "model.partnernotification", false},
}

func (s *Simulator) collections() []**Collection {
	c := &s.coll
	return []**Collection{&c.persons, &c.formers, &c.partnerships, &c.infections, &c.visits, &c.notifiers}
}

// buildCollections reads the type names of every collection before any type
// is built, so that types may refer to each other.
func (s *Simulator) buildCollections() error {
	for i, dst := range s.collections() {
		spec := collectionSpecs[i]
		names := s.root.Lookup(spec.names)
		if names == nil && spec.required {
			if _, err := s.root.Get(spec.names); err != nil {
				return fmt.Errorf("missing %s types definition: %w", spec.label, err)
			}
		}
		var distNode *config.Node
		if spec.dist != "" {
			distNode = s.root.Lookup(spec.dist)
		}
		c, err := newCollection(s.builder, spec.label, names, distNode)
		if err != nil {
			return err
		}
		*dst = c
	}
	s.coll.infections.host = s.coll.persons
	return nil
}

// buildTypes builds every type from 'model.<collection>.<name>' in
// collection order.
func (s *Simulator) buildTypes() error {
	for i, dst := range s.collections() {
		c := *dst
		spec := collectionSpecs[i]
		for _, name := range c.names {
			cfg, err := s.root.Get(spec.types + "." + name)
			if err != nil {
				return err
			}
			if err := s.buildType(c, name, cfg); err != nil {
				return err
			}
			logrus.Debugf("read %s type '%s'", spec.label, name)
		}
	}
	return nil
}

func (s *Simulator) buildType(c *Collection, name string, cfg *config.Node) error {
	switch c {
	case s.coll.persons:
		pc, err := newPersonCreator(s, name, cfg)
		if err != nil {
			return err
		}
		s.personTypes = append(s.personTypes, pc)
	case s.coll.formers:
		f, err := newPSFormer(s, name, cfg)
		if err != nil {
			return err
		}
		s.formers = append(s.formers, f)
	case s.coll.partnerships:
		psc, err := newPSCreator(s, name, cfg)
		if err != nil {
			return err
		}
		s.psTypes = append(s.psTypes, psc)
	case s.coll.infections:
		ic, err := newInfectionCreator(s, name, cfg)
		if err != nil {
			return err
		}
		s.infectionTypes = append(s.infectionTypes, ic)
	case s.coll.visits:
		gc, err := newGPVisitCreator(s, name, cfg)
		if err != nil {
			return err
		}
		s.visitTypes = append(s.visitTypes, gc)
	case s.coll.notifiers:
		n, err := newNotifier(s, name, cfg)
		if err != nil {
			return err
		}
		s.notifiers = append(s.notifiers, n)
	default:
		return invariantf("unknown collection %s", c.name)
	}
	return nil
}

// === Control surface ===

// guard rejects calls on a closed simulator or one that failed before.
func (s *Simulator) guard() error {
	if s.closed {
		return ErrClosed
	}
	if s.failed != nil {
		return fmt.Errorf("simulation halted after earlier failure: %w", s.failed)
	}
	return nil
}

// fail records a fatal error; the simulator refuses to run afterwards.
func (s *Simulator) fail(err error) error {
	if err != nil {
		s.failed = err
	}
	return err
}

// Populate fills the population with its configured number of persons.
func (s *Simulator) Populate() error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.populated {
		return errors.New("population already populated")
	}
	s.populated = true
	return s.fail(s.pop.populate())
}

// AdvanceBy executes every event within d days and moves the clock forward
// by exactly d. It returns the number of events executed.
func (s *Simulator) AdvanceBy(d float64) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	n, err := s.sched.ExecuteBy(s, d)
	return n, s.fail(err)
}

// AdvanceEvents executes up to n events and returns the number executed.
func (s *Simulator) AdvanceEvents(n int) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	done, err := s.sched.ExecuteN(s, n, s.verbose)
	return done, s.fail(err)
}

// Close releases the simulation state. Every later call fails with ErrClosed.
func (s *Simulator) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.pop = nil
	s.personTypes, s.formers, s.psTypes = nil, nil, nil
	s.infectionTypes, s.visitTypes, s.notifiers = nil, nil, nil
	s.coll.persons, s.coll.formers, s.coll.partnerships = nil, nil, nil
	s.coll.infections, s.coll.visits, s.coll.notifiers = nil, nil, nil
	s.testDist = nil
	logrus.Debugf("simulator closed at t=%g after %d events", s.sched.Now(), s.stats.Events)
}

// Now returns the simulation clock in days.
func (s *Simulator) Now() float64 { return s.sched.Now() }

// Seed returns the seed the random cores were derived from.
func (s *Simulator) Seed() int64 { return s.seed }

// AgeRange returns the smallest possible age at birth ('birthshift') and the
// largest possible lifespan over all person types.
func (s *Simulator) AgeRange() (minAge, maxAge float64) { return s.minAge, s.maxAge }

// Population returns the population, nil after Close.
func (s *Simulator) Population() *Population { return s.pop }

// SchedulerSizes returns the event list capacity, the number of queued
// events including cancelled ones, and the number of active events.
func (s *Simulator) SchedulerSizes() (capacity, total, active int) { return s.sched.Sizes() }

// TypeNames returns the type names of every collection, keyed by collection.
func (s *Simulator) TypeNames() map[string][]string {
	out := make(map[string][]string, 6)
	for _, c := range s.collections() {
		if *c != nil {
			out[(*c).name] = append([]string(nil), (*c).names...)
		}
	}
	return out
}

// TestDistribution draws n values from 'test.distribution', conditioned on
// exceeding atleast when it is not nil.
func (s *Simulator) TestDistribution(n int, atleast *float64) ([]float64, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.testDist == nil {
		return nil, s.root.Errorf("'test.distribution' not defined")
	}
	logrus.Debugf("testing distribution %s", s.testDist)
	out := make([]float64, n)
	for i := range out {
		var (
			v   float64
			err error
		)
		if atleast == nil {
			v, err = s.testDist.Sample()
		} else {
			v, err = s.testDist.SampleAtLeast(*atleast)
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// observe is called by the scheduler before each event executes.
func (s *Simulator) observe(ev Event) {
	s.stats.Events++
	if s.tracer != nil && s.tracer.Config.Level == trace.TraceLevelEvents {
		s.tracer.RecordEvent(trace.EventRecord{Time: ev.Time(), Kind: ev.Kind().String(), Text: ev.String()})
	}
}
