package interner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternIsIdempotent(t *testing.T) {
	in := New()
	a := in.Intern("count")
	b := in.Intern("count")
	assert.Equal(t, a, b)
	assert.Equal(t, 1, in.Len())
}

func TestInternDistinctNamesGetDistinctSymbols(t *testing.T) {
	in := New()
	a := in.Intern("foo")
	b := in.Intern("bar")
	assert.NotEqual(t, a, b)
}

func TestNameRoundTrips(t *testing.T) {
	in := New()
	sym := in.Intern("self")
	assert.Equal(t, "self", in.Name(sym))
}

func TestLookupMissing(t *testing.T) {
	in := New()
	_, ok := in.Lookup("nope")
	assert.False(t, ok)
}
