package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPSFormer_NoSearchForPersonDyingNow(t *testing.T) {
	tests := []struct {
		name    string
		death   float64
		wantErr bool
	}{
		{name: "dies now", death: 0},
		{name: "died before", death: -1, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN a searching person whose death is moved to the given time
			s := newModel(t, "partnerships")
			p, err := s.personTypes[0].create(CausePopulate, nil, nil)
			require.NoError(t, err)
			f := s.formers[0]
			p.death = tc.death

			// WHEN its formation is updated
			err = f.updatePerson(p)

			// THEN no further search is pending
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvariant)
				return
			}
			require.NoError(t, err)
			assert.False(t, f.procs[p.slot].Pending())
		})
	}
}
