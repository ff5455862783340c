// Package testutil provides shared test infrastructure for the simulator.
// It consolidates model fixtures and assertion helpers used across
// the sim/ and sim/export/ test packages.
package testutil

import (
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aroellin/rstisim/sim/config"
)

// ModelPath returns the path of testdata/models/<name>.yaml.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func ModelPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "models", name+".yaml")
}

// LoadModel parses the named model fixture.
func LoadModel(t *testing.T, name string) *config.Node {
	t.Helper()

	root, err := config.Load(ModelPath(t, name))
	if err != nil {
		t.Fatalf("Failed to load model %s: %v", name, err)
	}
	return root
}

// ParseModel parses an inline YAML model.
func ParseModel(t *testing.T, yaml string) *config.Node {
	t.Helper()

	root, err := config.Parse([]byte(yaml), t.Name())
	if err != nil {
		t.Fatalf("Failed to parse model: %v", err)
	}
	return root
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
