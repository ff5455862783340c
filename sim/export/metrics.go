// Package export writes simulation results outside the process: state
// snapshots to a SQLite database and statistics counters to a Prometheus
// textfile.
package export

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aroellin/rstisim/sim"
)

const namespace = "rstisim"

// Metrics exposes the statistics counters of a run as gauges on a private
// registry, labelled with the run id.
type Metrics struct {
	reg    *prometheus.Registry
	gauges map[string]prometheus.Gauge
}

// NewMetrics registers one gauge per statistics field.
func NewMetrics(runID string) *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry(), gauges: make(map[string]prometheus.Gauge)}
	for _, f := range (sim.Statistics{}).Fields() {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        f.Name,
			Help:        "Simulation statistic " + f.Name + ".",
			ConstLabels: prometheus.Labels{"run": runID},
		})
		m.reg.MustRegister(g)
		m.gauges[f.Name] = g
	}
	return m
}

// Observe sets every gauge to the value in st.
func (m *Metrics) Observe(st sim.Statistics) {
	for _, f := range st.Fields() {
		m.gauges[f.Name].Set(f.Value)
	}
}

// Gauge returns the gauge of a statistics field, or nil.
func (m *Metrics) Gauge(name string) prometheus.Gauge { return m.gauges[name] }

// Registry returns the registry holding the gauges.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes the gauges in the Prometheus text format, atomically
// replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
