package config

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
model:
  population:
    size: 100
    people:
      names: [male, female]
  people:
    male:
      basetype: MALE
      lifespan: inf
      weights: [0.2, 0.3, 0.5]
`

func TestParse_LookupByPath(t *testing.T) {
	// GIVEN a YAML model definition
	root, err := Parse([]byte(sampleYAML), "sample.yaml")
	require.NoError(t, err)

	// WHEN resolving nested paths
	size, err := root.FloatAt("model.population.size")
	require.NoError(t, err)
	names, err := root.Lookup("model.population.people.names").Strings()
	require.NoError(t, err)

	// THEN scalars and sequences resolve with their source positions
	assert.Equal(t, 100.0, size)
	assert.Equal(t, []string{"male", "female"}, names)
	assert.Equal(t, 5, root.Lookup("model.population.people").Line())
	assert.Equal(t, "model.people.male.basetype", root.Lookup("model.people.male.basetype").Path())
}

func TestParse_Predicates(t *testing.T) {
	root, err := Parse([]byte(sampleYAML), "sample.yaml")
	require.NoError(t, err)
	male := root.Lookup("model.people.male")

	assert.True(t, male.IsMap())
	assert.True(t, male.Child("weights").IsNumeric())
	assert.Equal(t, 3, male.Child("weights").Len())
	assert.True(t, male.Child("basetype").IsString())
	assert.False(t, male.Child("basetype").IsNumeric())

	// bare inf is read as a number
	life, err := male.Child("lifespan").Float(0)
	require.NoError(t, err)
	assert.True(t, math.IsInf(life, 1))
}

func TestGet_MissingKeyCarriesPosition(t *testing.T) {
	root, err := Parse([]byte(sampleYAML), "sample.yaml")
	require.NoError(t, err)

	_, err = root.Get("model.people.female")
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "model.people", cerr.Path)
	assert.Equal(t, 7, cerr.Line)
	assert.Contains(t, err.Error(), "configuration line 7")
}

func TestCoercion_Errors(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		call func(n *Node) error
	}{
		{"string as number", FromValue("abc"), func(n *Node) error { _, err := n.Float(0); return err }},
		{"fraction as integer", FromValue(1.5), func(n *Node) error { _, err := n.Int(0); return err }},
		{"index past scalar", FromValue(1.0), func(n *Node) error { _, err := n.Float(1); return err }},
		{"mapping as value", FromValue(map[string]any{"a": 1}), func(n *Node) error { _, err := n.String(0); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.call(tt.node))
		})
	}
}

func TestLookup_NilSafe(t *testing.T) {
	var n *Node
	assert.Nil(t, n.Lookup("a.b"))
	assert.False(t, n.Exists("a"))
	assert.True(t, n.IsNull())
	assert.Equal(t, 0, n.Len())
}

func TestFromValue_SortedKeysAndDefaults(t *testing.T) {
	n := FromValue(map[string]any{"b": 2, "a": []any{1.0, 2.0}})
	assert.Equal(t, []string{"a", "b"}, n.Keys())

	v, err := n.FloatOr("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	s, err := n.StringOr("b", "x")
	require.NoError(t, err)
	assert.Equal(t, "2", s)
}

func TestParseTOML(t *testing.T) {
	data := []byte(`
[model.population]
size = 10
atdeath = "replace"
immigration = [0.5, 0.5]
`)
	root, err := ParseTOML(data, "m.toml")
	require.NoError(t, err)

	size, err := root.IntAt("model.population.size")
	require.NoError(t, err)
	assert.Equal(t, 10, size)

	atdeath, err := root.StringAt("model.population.atdeath")
	require.NoError(t, err)
	assert.Equal(t, "replace", atdeath)
	assert.True(t, root.Lookup("model.population.immigration").IsNumeric())
}
