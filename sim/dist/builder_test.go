package dist

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aroellin/rstisim/sim/config"
)

var posInf = math.Inf(1)

// fakeScope is an entity type with bins, a collection with types, or both.
type fakeScope struct {
	bins   []string
	types  []string
	scopes []Scope
}

func (f fakeScope) Bins() ([]string, bool) { return f.bins, f.bins != nil }

func (f fakeScope) Types() ([]Scope, []string, bool) { return f.scopes, f.types, f.types != nil }

func (f fakeScope) Host() (Scope, bool) { return nil, false }

func buildErr(t *testing.T, yaml string, scope Scope) error {
	t.Helper()
	n, err := config.Parse([]byte(yaml), "test")
	require.NoError(t, err)
	_, err = NewBuilder(newTestCores(1)).Build(n, scope)
	return err
}

func TestBuild_InfersKind(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Kind
		min  float64
		max  float64
	}{
		{"scalar", "4", KindConstant, 4, 4},
		{"probability vector", "[0.5, 0.25, 0.25]", KindDiscrete, 0, 2},
		{"nested distribution", "distribution: 3", KindConstant, 3, 3},
		{"rate", "rate: 1\nshift: 2", KindExponential, 2, posInf},
		{"density", "values: [1, 3]\ndensity: [1, 1]", KindLinear, 1, 3},
		{"exponential with density", "type: exponential\nfrom: 0\nstep: 5\ndensity: [1, 2, 1]", KindPoisson, 0, posInf},
		{"constant with density", "type: constant\nvalues: [0, 1]\ndensity: [1, 1]", KindStepLinear, 0, posInf},
		{"constant with value", "type: constant\nvalue: 9", KindConstant, 9, 9},
		{"simple", "values: [2, 4]\nprobabilities: [0.5, 0.5]", KindDiscrete, 2, 4},
		{"simple grid", "from: 10\nstep: 2\nprobabilities: [0.5, 0.5]", KindDiscrete, 10, 12},
		{"weibull", "type: weibull\nshape: 2\nscale: 3\ncutat: 8", KindWeibull, 0, 8},
		{"uniform", "type: uniform\nmin: -1\nmax: 1", KindUniform, -1, 1},
		{"array", partnersArray, KindArray, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustBuild(t, tt.yaml, nil)
			assert.Equal(t, tt.want, d.Kind())
			assert.Equal(t, tt.min, d.Min())
			assert.Equal(t, tt.max, d.Max())
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		scope Scope
		want  string
	}{
		{"decreasing values", "values: [2, 1]\nprobabilities: [0.5, 0.5]", nil, "values must be given in non-decreasing order"},
		{"negative probability", "[-0.5, 1.5]", nil, "invalid probabilities"},
		{"increasing survival", "values: [0, 1]\nsurvival: [0.5, 0.8]", nil, "invalid survival function"},
		{"negative density", "values: [0, 1]\ndensity: [1, -1]", nil, "invalid density function"},
		{"short linear", "values: [0]\ndensity: [1]", nil, "must be at least of length two"},
		{"poisson ties", "type: exponential\nvalues: [0, 0, 1]\ndensity: [1, 1, 1]", nil, "values must be given in increasing order"},
		{"cut below shift", "rate: 1\nshift: 5\ncutat: 2", nil, "cut point must be bigger than shift"},
		{"unknown type", "type: gamma", nil, "unknown distribution type 'gamma'"},
		{"unknown covariate", "depends: shoesize\nminimum: 0\nmaximum: 1", nil, "unknown size dependency 'shoesize'"},
		{"negative minimum", "depends: children\nminimum: -1\nmaximum: 1", nil, "cannot have indices smaller than 0"},
		{"bin without type", "depends: bin\n\"*\": 1", nil, "specify type first (use 'bytype' flag)"},
		{"type inside type", "depends: type\n\"*\": 1", fakeScope{bins: []string{"generic"}}, "type already specified"},
		{"host without host", "host: 1", nil, "type does not have an associated host"},
		{"unknown conditioning", "values: [1]\nrelativeto: tomorrow", nil, "unknown conditioning type 'tomorrow'"},
		{"missing array entry", "depends: children\nminimum: 0\nmaximum: 1\n\"0\": 1", nil, "'1' not found"},
		{"missing arguments", "type: simple", nil, "missing arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := buildErr(t, tt.yaml, tt.scope)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_ErrorsCarryConfigurationLine(t *testing.T) {
	err := buildErr(t, "# comment\nvalues: [0, 1]\ndensity: [1, -1]\n", nil)
	var cerr *config.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 3, cerr.Line)
	assert.Equal(t, "density", cerr.Path)
}

func TestBuild_SurvivalFunction(t *testing.T) {
	// GIVEN survival 1, 0.5, 0 at 0, 1, 2
	d := mustBuild(t, "values: [0, 1, 2]\nsurvival: [1, 0.5, 0]", nil)

	// THEN half the mass sits on 0 and half on 1
	zeros := 0
	for range 10000 {
		k, err := d.SampleInt()
		require.NoError(t, err)
		require.Contains(t, []int{0, 1}, k)
		if k == 0 {
			zeros++
		}
	}
	assert.InDelta(t, 0.5, float64(zeros)/10000, 0.03)
}

func TestBuild_RescalesProbabilities(t *testing.T) {
	d := mustBuild(t, "values: [0, 1]\nprobabilities: [2, 2]", nil)
	ones := 0
	for range 10000 {
		k, err := d.SampleInt()
		require.NoError(t, err)
		ones += k
	}
	assert.InDelta(t, 0.5, float64(ones)/10000, 0.03)
}

func TestBuild_ArrayByBin(t *testing.T) {
	// GIVEN a type with two bins and a wildcard entry
	scope := fakeScope{bins: []string{"low", "high"}}
	d := mustBuild(t, "depends: bin\nlow: 1\n\"*\": 2", scope)

	for bin, want := range []float64{1, 2} {
		v, err := d.SampleFor(&subject{numbers: map[Covariate]int{Bin: bin}}, 0)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestBuild_ArrayByTypeUsesTheTypeScope(t *testing.T) {
	// GIVEN a collection whose second type has bins
	scope := fakeScope{
		types:  []string{"male", "female"},
		scopes: []Scope{fakeScope{bins: []string{"a"}}, fakeScope{bins: []string{"a", "b"}}},
	}
	yaml := "depends: type\nmale: 1\nfemale:\n  depends: bin\n  a: 3\n  b: 4\n"
	d := mustBuild(t, yaml, scope)

	// THEN each entry resolved the bins of its own type
	s := &subject{numbers: map[Covariate]int{Type: 1, Bin: 1}}
	v, err := d.SampleFor(s, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestBuild_YesNoCovariates(t *testing.T) {
	d := mustBuild(t, "depends: ispregnant\n\"no\": 1\n\"yes\": 0", nil)
	v, err := d.SampleFor(&subject{numbers: map[Covariate]int{IsPregnant: 1}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestBuild_RandCoreSelectsCore(t *testing.T) {
	cores := newTestCores(1)
	n, err := config.Parse([]byte("type: uniform\nrandcore: 3"), "test")
	require.NoError(t, err)
	_, err = NewBuilder(cores).Build(n, nil)
	require.NoError(t, err)
	assert.Len(t, cores.cores, 4)
}

func TestCheckRange(t *testing.T) {
	d := mustBuild(t, "[0.5, 0.5]", nil)
	assert.NoError(t, d.CheckRange(0, 1))
	assert.Error(t, d.CheckRange(0, 0))
}
