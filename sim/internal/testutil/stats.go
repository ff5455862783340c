package testutil

import (
	"testing"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ChiSquarePValue returns the p-value of Pearson's goodness-of-fit test of
// observed counts against expected probabilities.
func ChiSquarePValue(t *testing.T, observed []float64, probs []float64) float64 {
	t.Helper()
	if len(observed) != len(probs) {
		t.Fatalf("ChiSquarePValue: %d counts for %d probabilities", len(observed), len(probs))
	}
	total := 0.0
	for _, o := range observed {
		total += o
	}
	expected := make([]float64, len(probs))
	for i, p := range probs {
		expected[i] = p * total
	}
	chi2 := stat.ChiSquare(observed, expected)
	return 1 - distuv.ChiSquared{K: float64(len(probs) - 1)}.CDF(chi2)
}

// AssertMeanWithin checks that the sample mean lies within tol of want.
func AssertMeanWithin(t *testing.T, name string, xs []float64, want, tol float64) {
	t.Helper()
	if len(xs) == 0 {
		t.Errorf("%s: no samples", name)
		return
	}
	if got := stat.Mean(xs, nil); got < want-tol || got > want+tol {
		t.Errorf("%s: mean %v not within %v of %v", name, got, tol, want)
	}
}
