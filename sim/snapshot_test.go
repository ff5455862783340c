package sim

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_LivingCouple(t *testing.T) {
	// GIVEN a couple where a visited the clinic and notified b
	s, a, b, ps := newCouple(t)
	require.NoError(t, a.slotVisitGP(0, VisitSymptoms, Notification{}))

	// WHEN the living persons are snapshot
	people, err := s.SnapshotPeople(false)
	require.NoError(t, err)

	// THEN both rows carry ad hoc ids by position, newest person first
	want := []PersonRow{
		{PUID: b.ID(), AdhocID: intPtr(1), Type: 1, Death: 20000, CurrentPartners: 1, TotalPartners: 1, Notifications: 1},
		{PUID: a.ID(), AdhocID: intPtr(2), Type: 0, Death: 20000, CurrentPartners: 1, TotalPartners: 1, Visits: 1, Notifications: 1},
	}
	ignore := cmpopts.IgnoreFields(PersonRow{}, "Bin", "WithinPartners")
	if diff := cmp.Diff(want, people, ignore); diff != "" {
		t.Errorf("SnapshotPeople(false) mismatch (-want +got):\n%s", diff)
	}

	partnerships, err := s.SnapshotPartnerships(false)
	require.NoError(t, err)
	wantPS := []PartnershipRow{{
		PSUID: ps.ID(), AdhocID1: intPtr(2), AdhocID2: intPtr(1), PUID1: a.ID(), PUID2: b.ID(),
		End: 5000, Tries: 1,
	}}
	if diff := cmp.Diff(wantPS, partnerships); diff != "" {
		t.Errorf("SnapshotPartnerships(false) mismatch (-want +got):\n%s", diff)
	}

	notifs, err := s.SnapshotNotifications(false)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, b.ID(), notifs[0].Receiver)
}

func TestSnapshot_DeadHaveNoAdhocID(t *testing.T) {
	// GIVEN a couple that split up after which b died
	s, a, b, ps := newCouple(t)
	_, err := s.AdvanceBy(10)
	require.NoError(t, err)
	require.NoError(t, ps.slotDeath())
	require.NoError(t, b.slotDeath())

	// THEN b is only among the dead, without an ad hoc id
	living, err := s.SnapshotPeople(false)
	require.NoError(t, err)
	require.Len(t, living, 1)
	assert.Equal(t, a.ID(), living[0].PUID)
	assert.Equal(t, 1, *living[0].AdhocID)

	dead, err := s.SnapshotPeople(true)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, b.ID(), dead[0].PUID)
	assert.Nil(t, dead[0].AdhocID)
	assert.Equal(t, 10.0, dead[0].Death)
	assert.Equal(t, 0, dead[0].CurrentPartners)

	// AND the ended partnership keeps its puids but loses the dead partner's ad hoc id
	ended, err := s.SnapshotPartnerships(true)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, 10.0, ended[0].End)
	require.NotNil(t, ended[0].AdhocID1)
	assert.Equal(t, 1, *ended[0].AdhocID1)
	assert.Nil(t, ended[0].AdhocID2)
	assert.Equal(t, b.ID(), ended[0].PUID2)
}

func TestSnapshot_InfectionNAFields(t *testing.T) {
	s, p := newClinic(t, 0)
	require.NoError(t, s.infectionTypes[0].slotInfectPerson(p))

	rows, err := s.SnapshotInfections(false, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, p.ID(), row.HostPUID)
	assert.Nil(t, row.ParentInfUID, "seeded infection has no parent")
	assert.Nil(t, row.PSUID, "seeded infection was not passed on in a partnership")
	assert.Nil(t, row.Death, "infection is still running")
	assert.Equal(t, []string{"infected", "cleared", "treated"}, s.BinLabels("infection"))
}

func TestSnapshot_Closed(t *testing.T) {
	s := newModel(t, "demography")
	s.Close()

	_, err := s.SnapshotPeople(false)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.SnapshotInfections(false, false)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.SnapshotVisits(false)
	assert.ErrorIs(t, err, ErrClosed)
}
