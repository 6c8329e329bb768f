package mathx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetaPDFKnownValue(t *testing.T) {
	got := BetaPDF(0.2, 2.0, 5.0)
	assert.InDelta(t, 2.4576, got, 1e-3)
}

func TestBetaPDFEndpointRules(t *testing.T) {
	assert.True(t, math.IsInf(BetaPDF(0, 0.5, 2), 1))
	assert.Equal(t, 0.0, BetaPDF(0, 2, 2))
	assert.InDelta(t, 1.0, BetaPDF(0, 1, 1), 1e-9)
	assert.True(t, math.IsInf(BetaPDF(1, 2, 0.5), 1))
	assert.Equal(t, 0.0, BetaPDF(1, 2, 2))
}

func TestBetaMeanVar(t *testing.T) {
	assert.InDelta(t, 2.0/7.0, BetaMean(2, 5), 1e-9)
	assert.Greater(t, BetaVar(2, 5), 0.0)
}

func TestBetaCDFMonotoneAndBounds(t *testing.T) {
	assert.Equal(t, 0.0, BetaCDF(0, 2, 5))
	assert.Equal(t, 1.0, BetaCDF(1, 2, 5))
	prev := 0.0
	for _, x := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		cur := BetaCDF(x, 2, 5)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestBetaInvCDFRoundTrip(t *testing.T) {
	alpha, beta := 3.0, 4.0
	for _, p := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		x := BetaInvCDF(p, alpha, beta)
		got := BetaCDF(x, alpha, beta)
		assert.InDelta(t, p, got, 1e-6)
	}
}
