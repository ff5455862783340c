package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/internal/testutil"
	"github.com/aroellin/rstisim/sim/trace"
)

func newModel(t *testing.T, name string, opts ...Option) *Simulator {
	t.Helper()
	s, err := New(testutil.LoadModel(t, name), opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func pendingEvents(t *testing.T, s *Simulator, kind EventKind) int {
	t.Helper()
	_, total, _ := s.SchedulerSizes()
	evs, err := s.PeekEvents(total, false, true)
	require.NoError(t, err)
	n := 0
	for _, ev := range evs {
		if ev.Kind == kind.String() {
			n++
		}
	}
	return n
}

func TestSimulator_New_ReadsGlobals(t *testing.T) {
	// GIVEN the demography model with an explicit seed
	s := newModel(t, "demography")

	// THEN the seed, scheduler capacity and age range come from the model
	assert.Equal(t, int64(42), s.Seed())
	capacity, total, active := s.SchedulerSizes()
	assert.Equal(t, 20*100, capacity)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, active)
	minAge, maxAge := s.AgeRange()
	assert.Equal(t, 0.0, minAge)
	assert.Equal(t, 29200.0, maxAge)
	assert.Equal(t, []string{"generic"}, s.TypeNames()["person"])
}

func TestSimulator_New_Options(t *testing.T) {
	s := newModel(t, "demography", WithSeed(99), WithSchedulerCapacity(5))

	assert.Equal(t, int64(99), s.Seed())
	capacity, _, _ := s.SchedulerSizes()
	assert.Equal(t, 5, capacity)
}

func TestSimulator_New_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing population size", `
model:
  population:
    people:
      names: [generic]
`},
		{"missing people names", `
model:
  population:
    size: 10
`},
		{"missing type definition", `
model:
  population:
    size: 10
    people:
      names: [generic]
`},
		{"unknown basetype", `
model:
  population:
    size: 10
    people:
      names: [generic]
  people:
    generic:
      basetype: ROBOT
`},
		{"gpvisit target unknown", `
model:
  population:
    size: 10
    people:
      names: [generic]
    gpvisits:
      names: [clinic]
  people:
    generic: {}
  gpvisits:
    clinic:
      targets: [flu]
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(testutil.ParseModel(t, tc.yaml), WithSeed(1))
			require.Error(t, err)
			var cfgErr *config.Error
			assert.True(t, errors.As(err, &cfgErr), "expected a configuration error, got %v", err)
		})
	}
}

// Scenario A: with replacement at death the population only dips by the
// replacements still due.
func TestSimulator_ReplacementKeepsPopulationSize(t *testing.T) {
	// GIVEN a populated fixed-size population
	s := newModel(t, "demography")
	require.NoError(t, s.Populate())
	assert.Equal(t, 100, s.Population().Size())

	// WHEN advancing 10000 days in steps
	for step := 0; step < 100; step++ {
		_, err := s.AdvanceBy(100)
		require.NoError(t, err)

		// THEN live persons plus pending replacements always make the target
		pending := pendingEvents(t, s, KindBirth)
		require.Equal(t, 100, s.Population().Size()+pending, "at t=%g", s.Now())
	}

	st, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 10000.0, st.Time)
	assert.Greater(t, st.Deaths, int64(0))
	assert.Equal(t, st.Deaths, st.Births+int64(100-s.Population().Size()))
	assert.Equal(t, int64(0), st.Emigrations)
	assert.Equal(t, int64(len(s.Population().Dead())), st.Deaths)
}

func TestSimulator_LivingPersonsAreAlive(t *testing.T) {
	s := newModel(t, "demography")
	require.NoError(t, s.Populate())
	_, err := s.AdvanceBy(3650)
	require.NoError(t, err)

	now := s.Now()
	for _, p := range s.Population().Active() {
		assert.LessOrEqual(t, p.Birth(), p.Death())
		assert.True(t, p.IsAlive(), "person %d birth=%g death=%g now=%g", p.ID(), p.Birth(), p.Death(), now)
	}
	for _, p := range s.Population().Dead() {
		assert.LessOrEqual(t, p.Death(), now)
		assert.False(t, p.IsAlive())
	}
}

func TestSimulator_SameSeedSameRun(t *testing.T) {
	run := func() Statistics {
		s := newModel(t, "partnerships")
		require.NoError(t, s.Populate())
		_, err := s.AdvanceBy(500)
		require.NoError(t, err)
		st, err := s.Statistics()
		require.NoError(t, err)
		return st
	}
	assert.Equal(t, run(), run())
}

// Scenario B: perfect tests with an immediate result never treat in vain.
func TestSimulator_PerfectTestsTreatEveryDetection(t *testing.T) {
	// GIVEN a population seeded with an infection and regular clinic visits
	s := newModel(t, "treatment")
	require.NoError(t, s.Populate())

	// WHEN the population lives for five years
	_, err := s.AdvanceBy(5 * 365)
	require.NoError(t, err)

	// THEN every positive test led to exactly one treatment and none was vain
	st, err := s.Statistics()
	require.NoError(t, err)
	assert.Greater(t, st.Tests, int64(0))
	assert.Greater(t, st.Treatments, int64(0))
	assert.Equal(t, int64(0), st.VainTreatments)

	positives := 0
	for _, old := range []bool{false, true} {
		visits, err := s.SnapshotVisits(old)
		require.NoError(t, err)
		for _, v := range visits {
			assert.Equal(t, 0, v.DirectTreated)
			assert.Equal(t, 1, v.Tested)
			positives += v.Positive
		}
	}
	assert.Equal(t, st.Treatments, int64(positives))
	assert.Equal(t, st.Tests, int64(positives)+countNegative(t, s))
}

func countNegative(t *testing.T, s *Simulator) int64 {
	t.Helper()
	var n int64
	for _, old := range []bool{false, true} {
		visits, err := s.SnapshotVisits(old)
		require.NoError(t, err)
		for _, v := range visits {
			n += int64(v.Tested - v.Positive)
		}
	}
	return n
}

// Scenario C: partnerships between the two types last exactly 30 days
// unless a partner dies first.
func TestSimulator_ConstantBreakupLastsThirtyDays(t *testing.T) {
	// GIVEN a population forming partnerships
	s := newModel(t, "partnerships")
	require.NoError(t, s.Populate())

	// WHEN running for a year
	_, err := s.AdvanceBy(365)
	require.NoError(t, err)

	// THEN every partnership joins both types and lasts 30 days or ends at a death
	deaths := map[int64]float64{}
	for _, old := range []bool{false, true} {
		people, err := s.SnapshotPeople(old)
		require.NoError(t, err)
		for _, p := range people {
			deaths[p.PUID] = p.Death
		}
	}
	checked := 0
	for _, old := range []bool{false, true} {
		rows, err := s.SnapshotPartnerships(old)
		require.NoError(t, err)
		for _, ps := range rows {
			checked++
			assert.NotEqual(t, ps.PUID1, ps.PUID2)
			length := ps.End - ps.Begin
			if math.Abs(length-30) < 1e-9 {
				continue
			}
			assert.Less(t, length, 30.0)
			early := math.Min(deaths[ps.PUID1], deaths[ps.PUID2])
			assert.InDelta(t, early, ps.End, 1e-9, "partnership %d ended at %g", ps.PSUID, ps.End)
		}
	}
	assert.Greater(t, checked, 0)

	st, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, st.PartnershipsCreated, st.PartnershipsEnded+int64(len(s.Population().Partnerships())))
	assert.Greater(t, st.Contacts, int64(0))
	assert.LessOrEqual(t, st.UnprotectedContacts, st.Contacts)
}

func TestSimulator_PartnershipsOnlyJoinMixingTypes(t *testing.T) {
	s := newModel(t, "partnerships")
	require.NoError(t, s.Populate())
	_, err := s.AdvanceBy(200)
	require.NoError(t, err)

	for _, ps := range s.Population().Partnerships() {
		assert.NotEqual(t, ps.Person1().Type(), ps.Person2().Type())
		assert.Contains(t, ps.Person1().Partnerships(), ps)
		assert.Contains(t, ps.Person2().Partnerships(), ps)
	}
}

func TestSimulator_SymmetricPairAttribute(t *testing.T) {
	// GIVEN the symmetric breakup of the partnership model
	s := newModel(t, "partnerships")
	people := s.coll.persons
	breakup := s.psTypes[0].breakup

	// WHEN looking up both orderings of the type pair
	ab, err := breakup.At(0, people.Linearise(1, 0))
	require.NoError(t, err)
	ba, err := breakup.At(1, people.Linearise(0, 0))
	require.NoError(t, err)

	// THEN both sample the same value while same-type pairs keep the initial value
	va, err := ab.Sample()
	require.NoError(t, err)
	vb, err := ba.Sample()
	require.NoError(t, err)
	assert.Equal(t, 30.0, va)
	assert.Equal(t, va, vb)
	aa, err := breakup.At(0, people.Linearise(0, 0))
	require.NoError(t, err)
	v, err := aa.Sample()
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestSimulator_PersonTypeDistribution(t *testing.T) {
	s := newModel(t, "partnerships")
	require.NoError(t, s.Populate())

	counts := make([]float64, 2)
	for _, p := range s.Population().Active() {
		counts[p.Type()]++
	}
	assert.Greater(t, testutil.ChiSquarePValue(t, counts, []float64{0.5, 0.5}), 0.001)
}

func TestSimulator_RemoveOldPartnerships(t *testing.T) {
	// GIVEN partnerships kept for 400 days after they end
	s := newModel(t, "partnerships")
	require.NoError(t, s.Populate())

	// WHEN running well beyond the horizon
	_, err := s.AdvanceBy(1000)
	require.NoError(t, err)

	// THEN only recently ended partnerships are still in memory
	for _, ps := range s.Population().EndedPartnerships() {
		assert.GreaterOrEqual(t, ps.Death(), s.Now()-2*400)
	}
	assert.Equal(t, 1, pendingEvents(t, s, KindRemoveOld))
}

func TestSimulator_HaltsAfterFailure(t *testing.T) {
	s := newModel(t, "demography")
	require.NoError(t, s.Populate())
	s.failed = invariantf("broken")

	_, err := s.AdvanceBy(1)

	assert.True(t, errors.Is(err, ErrInvariant))
	_, err = s.AdvanceEvents(1)
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestSimulator_Close(t *testing.T) {
	s, err := New(testutil.LoadModel(t, "demography"))
	require.NoError(t, err)
	require.NoError(t, s.Populate())

	s.Close()
	s.Close()

	_, err = s.AdvanceBy(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.AdvanceEvents(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Statistics()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.SnapshotPeople(false)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.PeekEvents(1, true, true)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Populate(), ErrClosed)
}

func TestSimulator_PopulateTwice(t *testing.T) {
	s := newModel(t, "demography")
	require.NoError(t, s.Populate())
	assert.Error(t, s.Populate())
}

func TestSimulator_AdvanceEvents_CountsAndTraces(t *testing.T) {
	// GIVEN a simulator recording into a bounded trace
	tr := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelEvents, Capacity: 10})
	s := newModel(t, "partnerships", WithTracer(tr))
	require.NoError(t, s.Populate())

	// WHEN executing 50 events
	n, err := s.AdvanceEvents(50)

	// THEN the counter, the trace and the clock agree
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	st, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(50), st.Events)
	assert.Equal(t, 50, tr.Recorded())
	assert.Len(t, tr.Events, 10)
	last := tr.Ordered()[9]
	assert.Equal(t, s.Now(), last.Time)
	assert.NotEmpty(t, last.Text)
}

func TestSimulator_PeekEvents(t *testing.T) {
	s := newModel(t, "partnerships")
	require.NoError(t, s.Populate())

	evs, err := s.PeekEvents(5, true, true)
	require.NoError(t, err)

	require.Len(t, evs, 5)
	for i := 1; i < len(evs); i++ {
		assert.LessOrEqual(t, evs[i-1].Time, evs[i].Time)
	}
	for _, ev := range evs {
		assert.True(t, ev.Active)
		assert.NotEmpty(t, ev.Kind)
		assert.Contains(t, ev.Text, "time=")
	}
	again, err := s.PeekEvents(5, false, true)
	require.NoError(t, err)
	for i := range evs {
		assert.Equal(t, evs[i].Time, again[i].Time)
		assert.Empty(t, again[i].Text)
	}
}

func TestSimulator_TestDistribution(t *testing.T) {
	t.Run("defined", func(t *testing.T) {
		s := newModel(t, "notification")
		xs, err := s.TestDistribution(2000, nil)
		require.NoError(t, err)
		testutil.AssertMeanWithin(t, "uniform(2,5)", xs, 3.5, 0.1)

		atleast := 4.0
		rest, err := s.TestDistribution(500, &atleast)
		require.NoError(t, err)
		for _, r := range rest {
			assert.GreaterOrEqual(t, r, 0.0)
			assert.LessOrEqual(t, r, 1.0)
		}
	})
	t.Run("undefined", func(t *testing.T) {
		s := newModel(t, "demography")
		_, err := s.TestDistribution(1, nil)
		assert.ErrorContains(t, err, "'test.distribution' not defined")
	})
}
