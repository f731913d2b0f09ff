package protocol

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Protocol versioning constants
const (
	CurrentVersion       = "1.0.0"
	MinCompatibleVersion = "1.0.0"
)

// IsCompatible reports whether a joiner's announced protocol version is at
// least the minimum this swarm speaks.
func IsCompatible(nodeVersion string) (bool, error) {
	v, err := version.NewVersion(nodeVersion)
	if err != nil {
		return false, fmt.Errorf("invalid version string: %w", err)
	}

	min, err := version.NewVersion(MinCompatibleVersion)
	if err != nil {
		return false, fmt.Errorf("invalid min version: %w", err)
	}

	return !v.LessThan(min), nil
}
