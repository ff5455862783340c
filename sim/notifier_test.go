package sim

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/internal/testutil"
)

// newCouple returns the notification model with one person of each type
// joined by a running partnership.
func newCouple(t *testing.T) (*Simulator, *Person, *Person, *Partnership) {
	t.Helper()
	return newCoupleFrom(t, testutil.LoadModel(t, "notification"))
}

func newCoupleFrom(t *testing.T, root *config.Node) (*Simulator, *Person, *Person, *Partnership) {
	t.Helper()
	s, err := New(root)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	a, err := s.personTypes[0].create(CausePopulate, nil, nil)
	require.NoError(t, err)
	b, err := s.personTypes[1].create(CausePopulate, nil, nil)
	require.NoError(t, err)
	ps, err := s.psTypes[0].create(a, b, FormationInfo{Tries: 1})
	require.NoError(t, err)
	return s, a, b, ps
}

func TestNotifier_ChainReachesPartnerOnce(t *testing.T) {
	// GIVEN a couple where every visit notifies all partners
	s, a, b, ps := newCouple(t)

	// WHEN a visits the clinic with symptoms
	require.NoError(t, a.slotVisitGP(0, VisitSymptoms, Notification{}))

	// THEN a opens chain 1 and notifies b, who is scheduled for a follow-up
	require.Len(t, a.Visits(), 1)
	index := a.Visits()[0]
	assert.Equal(t, int64(1), index.ID)
	assert.Equal(t, 0, index.Link)
	assert.Equal(t, VisitSymptoms, index.Cause)
	assert.Equal(t, 0, index.NotifierType)

	require.Len(t, a.Notifications(), 1)
	sent := a.Notifications()[0]
	assert.Equal(t, b.ID(), sent.Receiver)
	assert.Equal(t, a.ID(), sent.Sender)
	assert.Equal(t, ps.ID(), sent.Partnership)
	assert.Equal(t, index.ID, sent.ID)
	assert.Equal(t, 1, b.LinkNumber())

	st, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.FollowUpVisits)

	// WHEN the reaction time of one day passes
	_, err = s.AdvanceBy(2)
	require.NoError(t, err)

	// THEN b visited as link 1 of the same chain and did not notify a back
	require.Len(t, b.Visits(), 1)
	follow := b.Visits()[0]
	assert.Equal(t, index.ID, follow.ID)
	assert.Equal(t, 1, follow.Link)
	assert.Equal(t, VisitNotified, follow.Cause)
	assert.Equal(t, 1.0, follow.Time)
	assert.Empty(t, b.Notifications())
	assert.Len(t, a.Visits(), 1)

	st, err = s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.FollowUpVisits)
}

func TestNotifier_NewIndexVisitOpensNewChain(t *testing.T) {
	s, a, b, _ := newCouple(t)

	require.NoError(t, a.slotVisitGP(0, VisitSymptoms, Notification{}))
	_, err := s.AdvanceBy(2)
	require.NoError(t, err)
	require.NoError(t, a.slotVisitGP(0, VisitSymptoms, Notification{}))

	require.Len(t, a.Visits(), 2)
	assert.Equal(t, int64(2), a.Visits()[0].ID, "visits are newest first")
	require.Len(t, a.Notifications(), 2)
	assert.Equal(t, int64(2), a.Notifications()[0].ID)
	assert.Equal(t, b.ID(), a.Notifications()[0].Receiver)

	st, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.FollowUpVisits)
}

func TestNotifier_FormerPartnersWithinWindow(t *testing.T) {
	tests := []struct {
		name     string
		advance  float64
		notified bool
	}{
		{name: "recently ended", advance: 100, notified: true},
		{name: "ended before the window", advance: 400, notified: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN a partnership that ended at time 0
			s, a, b, ps := newCouple(t)
			require.NoError(t, ps.slotDeath())
			require.Empty(t, a.Partnerships())

			// WHEN a visits the clinic some time later
			_, err := s.AdvanceBy(tc.advance)
			require.NoError(t, err)
			require.NoError(t, a.slotVisitGP(0, VisitSymptoms, Notification{}))

			// THEN the former partner is reached only inside the look-back window
			if tc.notified {
				require.Len(t, a.Notifications(), 1)
				assert.Equal(t, b.ID(), a.Notifications()[0].Receiver)
			} else {
				assert.Empty(t, a.Notifications())
			}
		})
	}
}

func TestNotifier_UnlimitedPartnerCountKeepsLookingBack(t *testing.T) {
	// GIVEN a notifier that goes back over any number of former partners
	data, err := os.ReadFile(testutil.ModelPath(t, "notification"))
	require.NoError(t, err)
	model := strings.Replace(string(data), "gobackpartners: 0", "gobackpartners: inf", 1)
	s, a, b, ps := newCoupleFrom(t, testutil.ParseModel(t, model))
	require.NoError(t, ps.slotDeath())

	// WHEN a visits long after the time window closed
	_, err = s.AdvanceBy(400)
	require.NoError(t, err)
	require.NoError(t, a.slotVisitGP(0, VisitSymptoms, Notification{}))

	// THEN the partner count alone keeps the former partner in reach
	require.Len(t, a.Notifications(), 1)
	assert.Equal(t, b.ID(), a.Notifications()[0].Receiver)
}
