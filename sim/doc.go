// Package sim provides the discrete-event engine of an individual-based
// model of sexually transmitted infections in a population.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go, events.go: the event kinds and their tie-break priorities
//   - scheduler.go, process.go: the event list and the one-pending-event handles
//   - simulator.go: initialisation order and the control surface
//
// # Architecture
//
// Every entity (person, partnership, infection) embeds an Ageable: a birth
// and death time, a bin with stochastic transitions and attributes. Types
// are Creators grouped in Collections; attributes are distributions
// installed on a collection and resolved per type and bin.
//
// Sub-packages:
//   - sim/config/: configuration tree (YAML or TOML)
//   - sim/dist/: distributions with covariate-driven conditioning
//   - sim/trace/: event trace recording
//   - sim/export/: SQLite snapshots and Prometheus statistics
//
// A Simulator is not safe for concurrent use. All randomness is drawn from
// a PartitionedRNG, so two runs with the same seed and model are identical.
package sim
