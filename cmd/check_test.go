package cmd

import (
	"bytes"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckModel(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, checkModel(&out, modelPath("partnerships")))

	text := out.String()
	assert.Regexp(t, `seed\s+11\n`, text)
	assert.Regexp(t, `population\s+150\n`, text)
	assert.Regexp(t, `person types\s+2: a, b\n`, text)
	assert.Regexp(t, `partnership types\s+1: casual\n`, text)
	assert.Regexp(t, `partnership former types\s+1: search\n`, text)
	assert.NotContains(t, text, "infection types", "collections without types are omitted")
}

func TestCheckModel_Invalid(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, checkModel(&out, modelPath("nosuchmodel")))
	assert.Empty(t, out.String())
}

func sampleValue(t *testing.T, text, name string) float64 {
	t.Helper()
	m := regexp.MustCompile(`(?m)^` + name + `\s+(\S+)$`).FindStringSubmatch(text)
	require.NotNil(t, m, "no %s line in %q", name, text)
	v, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	return v
}

func TestSampleDistribution(t *testing.T) {
	t.Run("unconditioned", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, sampleDistribution(&out, modelPath("notification"), 2000, nil))

		text := out.String()
		assert.Equal(t, 2000.0, sampleValue(t, text, "n"))
		assert.InDelta(t, 3.5, sampleValue(t, text, "mean"), 0.1)
		assert.GreaterOrEqual(t, sampleValue(t, text, "min"), 2.0)
		assert.LessOrEqual(t, sampleValue(t, text, "max"), 5.0)
	})
	t.Run("conditioned", func(t *testing.T) {
		var out bytes.Buffer
		atleast := 4.0
		require.NoError(t, sampleDistribution(&out, modelPath("notification"), 500, &atleast))

		text := out.String()
		assert.Equal(t, 4.0, sampleValue(t, text, "atleast"))
		assert.LessOrEqual(t, sampleValue(t, text, "max"), 1.0, "conditioned samples are residuals")
	})
	t.Run("errors", func(t *testing.T) {
		var out bytes.Buffer
		assert.ErrorContains(t, sampleDistribution(&out, modelPath("demography"), 10, nil), "test.distribution")
		assert.ErrorContains(t, sampleDistribution(&out, modelPath("notification"), 0, nil), "must be positive")
	})
}
