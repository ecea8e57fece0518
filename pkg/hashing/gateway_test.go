package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_Deterministic(t *testing.T) {
	g := NewGateway()

	h1 := g.Hash("patient-123")
	h2 := g.Hash("patient-123")

	assert.Equal(t, h1, h2)
	assert.Len(t, h1.Hex(), 64)
}

func TestGateway_DistinctInputsDistinctHandles(t *testing.T) {
	g := NewGateway()

	assert.NotEqual(t, g.Hash("patient-123"), g.Hash("patient-124"))
	assert.NotEqual(t, g.Hash("doctor-1"), g.Hash("patient-1"))
}

func TestGateway_KnownVector(t *testing.T) {
	g := NewGateway()

	// SHA-256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		g.Hash("abc").Hex())
}

func TestGateway_HashOptional(t *testing.T) {
	g := NewGateway()

	assert.True(t, g.HashOptional("").IsZero())
	assert.False(t, g.HashOptional("record-1").IsZero())
	assert.Equal(t, g.Hash("record-1"), g.HashOptional("record-1"))
}

func TestParseHandle_RoundTrip(t *testing.T) {
	g := NewGateway()
	h := g.Hash("consent_p1_d1_1700000000000_abcd1234")

	parsed, err := ParseHandle(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHandle_Invalid(t *testing.T) {
	_, err := ParseHandle("not-hex")
	assert.Error(t, err)

	_, err = ParseHandle("abcd")
	assert.Error(t, err)
}

func TestZeroHandle(t *testing.T) {
	assert.True(t, ZeroHandle.IsZero())
	assert.Equal(t,
		"0000000000000000000000000000000000000000000000000000000000000000",
		ZeroHandle.Hex())
}
