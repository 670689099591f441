package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "Dog", NewType("Dog").String())
	assert.Equal(t, "ArrayCollection<Dog>", NewType("ArrayCollection", NewType("Dog")).String())
	assert.Equal(t, "Map<string, List<Dog>>",
		NewType("Map", NewType("string"), NewType("List", NewType("Dog"))).String())
}

func TestParseType(t *testing.T) {
	cases := []string{
		"Dog",
		"ArrayCollection<Dog>",
		"Map<string, List<Dog>>",
	}
	for _, notation := range cases {
		typ, err := ParseType(notation)
		require.NoError(t, err, notation)
		assert.Equal(t, notation, typ.String())
	}

	typ, err := ParseType("  Map< string ,int > ")
	require.NoError(t, err)
	assert.True(t, typ.Equal(NewType("Map", NewType("string"), NewType("int"))))
}

func TestParseTypeInvalid(t *testing.T) {
	for _, notation := range []string{"", "<Dog>", "List<Dog", "List<Dog>>", "List<,>", "List<Dog Cat>"} {
		_, err := ParseType(notation)
		assert.ErrorIs(t, err, merr.ErrTypeNotation, notation)
	}
}

func TestTypeCloneIsDeep(t *testing.T) {
	orig := NewType("List", NewType("Dog"))
	clone := orig.Clone()
	clone.Params[0].Name = "Cat"
	assert.Equal(t, "Dog", orig.Params[0].Name)

	renamed := orig.WithName("ArrayCollection")
	renamed.Params[0].Name = "Cat"
	assert.Equal(t, "List<Dog>", orig.String())
	assert.Equal(t, "ArrayCollection<Cat>", renamed.String())
}

func TestTypeEqual(t *testing.T) {
	assert.True(t, NewType("Dog").Equal(NewType("Dog")))
	assert.False(t, NewType("Dog").Equal(NewType("dog")))
	assert.False(t, NewType("List", NewType("Dog")).Equal(NewType("List")))
	assert.True(t, Type{}.IsZero())
	assert.False(t, NewType("Dog").IsZero())
}

func TestEventTypeIsolation(t *testing.T) {
	e := NewPreSerializeEvent(NewContext(), "value", NewType("List", NewType("Dog")))
	got := e.Type()
	got.Params[0].Name = "Cat"
	assert.Equal(t, "List<Dog>", e.Type().String())

	e.StopPropagation()
	clone := e.WithType(NewType("Dog"))
	assert.False(t, clone.IsPropagationStopped())
	assert.Equal(t, "value", clone.Object())
	assert.Same(t, e.Context(), clone.Context())
	assert.Equal(t, "List<Dog>", e.Type().String())
}
