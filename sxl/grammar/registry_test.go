package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrammar(t *testing.T, id string) *Grammar {
	t.Helper()
	g, err := Parse([]byte("dsl:\n  id: " + id))
	require.NoError(t, err)
	return g
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testGrammar(t, "sxl-b")))
	require.NoError(t, reg.Register(testGrammar(t, "sxl-a")))

	g, ok := reg.Lookup("sxl-a")
	require.True(t, ok)
	assert.Equal(t, "sxl-a", g.ID())

	_, ok = reg.Lookup("sxl-missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"sxl-a", "sxl-b"}, reg.IDs())

	grammars := reg.Grammars()
	require.Len(t, grammars, 2)
	assert.Equal(t, "sxl-a", grammars[0].ID())
	assert.Equal(t, "sxl-b", grammars[1].ID())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testGrammar(t, "sxl-a")))

	err := reg.Register(testGrammar(t, "sxl-a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryRejectsNilAndEmpty(t *testing.T) {
	reg := NewRegistry()
	require.Error(t, reg.Register(nil))
	require.Error(t, reg.Register(&Grammar{}))
}
