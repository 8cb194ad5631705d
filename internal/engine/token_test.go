package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7GeneratorProducesValidUUIDs(t *testing.T) {
	gen := UUIDv7Generator{}

	a := gen.Generate()
	b := gen.Generate()

	assert.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGeneratorSequence(t *testing.T) {
	gen := NewFixedGenerator("one", "two")

	assert.Equal(t, "one", gen.Generate())
	assert.Equal(t, "two", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestClockMonotonic(t *testing.T) {
	clock := NewClock()

	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())
}
