package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	m := NewManager()
	for _, kw := range []string{Unprepared, Splitting, Prepared, Georeferencing, Georeferenced, Trimming, Trimmed} {
		assert.Truef(t, m.Lookup(kw), "keyword %q", kw)
	}
	assert.False(t, m.Lookup("archived"))
}

func TestLabel(t *testing.T) {
	m := NewManager()
	assert.Equal(t, "Georeferencing", m.Label(Georeferencing))
	assert.Equal(t, "archived", m.Label("archived"))
}

func TestPriorStable(t *testing.T) {
	m := NewManager()
	assert.Equal(t, Unprepared, m.PriorStable(Splitting))
	assert.Equal(t, Prepared, m.PriorStable(Georeferencing))
	assert.Equal(t, Georeferenced, m.PriorStable(Trimming))

	// stable statuses are their own fallback
	assert.Equal(t, Prepared, m.PriorStable(Prepared))
	assert.Equal(t, "archived", m.PriorStable("archived"))
}
