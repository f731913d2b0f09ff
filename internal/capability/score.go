// Package capability converts raw device telemetry into a normalized
// compute score and a coarse node tier.
package capability

// Tier buckets nodes by compute score.
type Tier string

const (
	TierLight           Tier = "LIGHT"
	TierStandard        Tier = "STANDARD"
	TierHighPerformance Tier = "HIGH_PERFORMANCE"
	TierSuperNode       Tier = "SUPER_NODE"
)

// Tier thresholds in compute units.
const (
	superNodeThreshold = 10.0
	highPerfThreshold  = 5.0
	standardThreshold  = 2.0
)

// Score bounds. The clamp keeps a single outlier spec from dominating
// scheduling decisions.
const (
	MinComputeUnits = 0.1
	MaxComputeUnits = 100.0
)

// Defaults used when the descriptor omits a field. Cores is a shader-unit
// proxy, not a physical core count.
const (
	DefaultCores  = 1000.0
	DefaultClock  = 1.0
	DefaultMemory = 1.0
)

// HardwareSpec is the raw device descriptor reported at registration.
// All fields are optional.
type HardwareSpec struct {
	Cores  float64 `json:"cores,omitempty"`
	Clock  float64 `json:"clock_speed,omitempty"`
	Memory float64 `json:"memory,omitempty"`
}

// Score computes the normalized compute units and tier for a descriptor.
// Pure and deterministic for identical input.
func Score(spec *HardwareSpec) (float64, Tier) {
	cores := DefaultCores
	clock := DefaultClock
	memory := DefaultMemory
	if spec != nil {
		if spec.Cores > 0 {
			cores = spec.Cores
		}
		if spec.Clock > 0 {
			clock = spec.Clock
		}
		if spec.Memory > 0 {
			memory = spec.Memory
		}
	}

	units := cores * clock * 2 * memory / 1e12
	if units < MinComputeUnits {
		units = MinComputeUnits
	}
	if units > MaxComputeUnits {
		units = MaxComputeUnits
	}

	return units, TierFor(units)
}

// TierFor derives the tier for a compute score.
func TierFor(units float64) Tier {
	switch {
	case units >= superNodeThreshold:
		return TierSuperNode
	case units >= highPerfThreshold:
		return TierHighPerformance
	case units >= standardThreshold:
		return TierStandard
	default:
		return TierLight
	}
}

// MemoryOf returns the declared memory capacity of a descriptor, falling
// back to the default when absent.
func MemoryOf(spec *HardwareSpec) float64 {
	if spec == nil || spec.Memory <= 0 {
		return DefaultMemory
	}
	return spec.Memory
}
