package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireConsistentRegistry checks that slots, the free list and the rosters
// agree with each other.
func requireConsistentRegistry(t *testing.T, pop *Population) {
	t.Helper()
	occupied := 0
	for i, p := range pop.slots {
		if p == nil {
			continue
		}
		occupied++
		require.Equal(t, i, p.slot)
		require.True(t, pop.active.holds(p.entry), "person %d in slot %d is not active", p.ID(), i)
	}
	require.Equal(t, pop.Size(), occupied)
	require.Equal(t, len(pop.slots), occupied+len(pop.free))
	for p := range pop.dead.all() {
		require.Equal(t, -1, p.slot)
		require.True(t, pop.dead.holds(p.entry))
		require.False(t, pop.active.holds(p.entry))
	}
	for ps := range pop.partnerships.all() {
		require.True(t, pop.partnerships.holds(ps.entry))
	}
}

func TestPopulation_RegistryStaysConsistentAcrossTurnover(t *testing.T) {
	// GIVEN a populated model with births, deaths and partnerships
	s := newModel(t, "partnerships")
	require.NoError(t, s.Populate())
	requireConsistentRegistry(t, s.pop)

	// WHEN many persons die and are replaced
	for range 20 {
		_, err := s.AdvanceBy(500)
		require.NoError(t, err)

		// THEN the registry invariants hold after every step
		requireConsistentRegistry(t, s.pop)
	}
	st, err := s.Statistics()
	require.NoError(t, err)
	assert.Greater(t, st.Deaths, int64(0))
	assert.Equal(t, st.Deaths, int64(s.pop.dead.Len()))
	assert.Equal(t, st.PartnershipsCreated-st.PartnershipsEnded, int64(s.pop.partnerships.Len()))
}

func TestPopulation_PopulateOrdersYoungestFirst(t *testing.T) {
	s := newModel(t, "demography")
	require.NoError(t, s.Populate())

	active := s.Population().Active()
	require.Len(t, active, 100)
	for i := 1; i < len(active); i++ {
		assert.GreaterOrEqual(t, active[i-1].Birth(), active[i].Birth())
	}
}
