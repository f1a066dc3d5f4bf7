package roster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRosterShape(t *testing.T) {
	r := Default()
	require.Len(t, r.Entries, 6)
	require.NotEmpty(t, r.Tasks)

	seen := map[string]bool{}
	for _, e := range r.Entries {
		assert.False(t, seen[e.Persona.ID], "duplicate persona %s", e.Persona.ID)
		seen[e.Persona.ID] = true
		assert.NotEmpty(t, e.Updates, e.Persona.ID)
		assert.NotEmpty(t, e.Coordination, e.Persona.ID)
		for _, tpl := range e.Coordination {
			assert.True(t, strings.Contains(tpl, OtherPlaceholder), "coordination template without {other}: %q", tpl)
		}
	}
}

func TestIconFallsBackForUnknownPersona(t *testing.T) {
	r := Default()
	assert.Equal(t, "🔬", r.Icon("ross"))
	assert.Equal(t, "🤖", r.Icon("newman"))
}

func TestLookup(t *testing.T) {
	r := Default()
	p, ok := r.Lookup("pam")
	require.True(t, ok)
	assert.Equal(t, "Pam Beesly", p.Name)

	_, ok = r.Lookup("")
	assert.False(t, ok)
}
