package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aroellin/rstisim/sim"
)

func TestMetrics_Observe(t *testing.T) {
	// GIVEN metrics for one run
	m := NewMetrics("run-1")

	// WHEN statistics are observed twice
	m.Observe(sim.Statistics{Time: 10, Births: 3, Deaths: 2})
	m.Observe(sim.Statistics{Time: 20, Births: 5, Deaths: 2, FollowUpVisits: 1})

	// THEN the gauges hold the latest values
	assert.Equal(t, 20.0, testutil.ToFloat64(m.Gauge("time")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Gauge("births")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Gauge("followupvisits")))
	assert.Nil(t, m.Gauge("nosuchfield"))

	n, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Equal(t, len((sim.Statistics{}).Fields()), n)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics("run-1")
	m.Observe(sim.Statistics{PopulationSize: 100, Treatments: 7})
	path := filepath.Join(t.TempDir(), "stats.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `rstisim_popsize{run="run-1"} 100`)
	assert.Contains(t, text, `rstisim_treatments{run="run-1"} 7`)
	assert.Contains(t, text, "# TYPE rstisim_births gauge")
}
