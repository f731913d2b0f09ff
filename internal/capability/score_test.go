package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreDeterministic(t *testing.T) {
	spec := &HardwareSpec{Cores: 4096, Clock: 1.8, Memory: 8}

	units1, tier1 := Score(spec)
	units2, tier2 := Score(spec)
	assert.Equal(t, units1, units2)
	assert.Equal(t, tier1, tier2)
}

func TestScoreFormula(t *testing.T) {
	units, _ := Score(&HardwareSpec{Cores: 4096e6, Clock: 1.8, Memory: 8})
	assert.InDelta(t, 4096e6*1.8*2*8/1e12, units, 1e-9)
}

func TestScoreClampsLowEnd(t *testing.T) {
	// A weak descriptor lands below the floor and is clamped up.
	units, tier := Score(&HardwareSpec{Cores: 2000, Clock: 1.5, Memory: 2})
	assert.Equal(t, MinComputeUnits, units)
	assert.Equal(t, TierLight, tier)
}

func TestScoreClampsHighEnd(t *testing.T) {
	units, tier := Score(&HardwareSpec{Cores: 1e12, Clock: 100, Memory: 1024})
	assert.Equal(t, MaxComputeUnits, units)
	assert.Equal(t, TierSuperNode, tier)
}

func TestScoreNilSpecUsesDefaults(t *testing.T) {
	units, tier := Score(nil)
	assert.Equal(t, MinComputeUnits, units)
	assert.Equal(t, TierLight, tier)
}

func TestScoreIgnoresNonPositiveFields(t *testing.T) {
	units, _ := Score(&HardwareSpec{Cores: -5, Clock: 0, Memory: -1})
	defaults, _ := Score(nil)
	assert.Equal(t, defaults, units)
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		units float64
		tier  Tier
	}{
		{0.1, TierLight},
		{1.99, TierLight},
		{2, TierStandard},
		{4.99, TierStandard},
		{5, TierHighPerformance},
		{9.99, TierHighPerformance},
		{10, TierSuperNode},
		{100, TierSuperNode},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.tier, TierFor(tt.units), "units %v", tt.units)
	}
}

func TestMemoryOf(t *testing.T) {
	assert.Equal(t, DefaultMemory, MemoryOf(nil))
	assert.Equal(t, DefaultMemory, MemoryOf(&HardwareSpec{Memory: 0}))
	assert.Equal(t, 16.0, MemoryOf(&HardwareSpec{Memory: 16}))
}
