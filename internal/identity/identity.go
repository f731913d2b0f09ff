// Package identity holds the device-side identity a node presents when
// joining the swarm: its sr25519 device key, wallet binding, and advertised
// capability.
package identity

import (
	"fmt"
	"time"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/decred/base58"

	"neuroswarm/internal/capability"
	"neuroswarm/internal/crypto"
)

// Identity represents a node's identity on the network
type Identity struct {
	// Core identification
	NodeID        string
	WalletAddress string
	Version       string

	// Device key proving this identity across admissions
	deviceKey *schnorrkel.MiniSecretKey
	publicKey []byte

	// Advertised capability
	ComputeUnits float64
	Tier         capability.Tier
	Memory       float64

	LastSeen time.Time
}

// New creates an identity with a fresh device key and a capability profile
// scored from the hardware description.
func New(nodeID, wallet, version string, spec *capability.HardwareSpec) (*Identity, error) {
	if wallet == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	key, pub, err := crypto.GenerateDeviceKey()
	if err != nil {
		return nil, fmt.Errorf("generating device key: %w", err)
	}

	units, tier := capability.Score(spec)
	return &Identity{
		NodeID:        nodeID,
		WalletAddress: wallet,
		Version:       version,
		deviceKey:     key,
		publicKey:     pub,
		ComputeUnits:  units,
		Tier:          tier,
		Memory:        capability.MemoryOf(spec),
	}, nil
}

// PublicKey returns the base58-encoded device public key as transmitted in
// join requests.
func (i *Identity) PublicKey() string {
	return base58.Encode(i.publicKey)
}

// Sign produces the sr25519 device proof over message.
func (i *Identity) Sign(message []byte) ([]byte, error) {
	return crypto.SignSr25519(message, i.deviceKey)
}

// UpdateLastSeen updates the last seen timestamp
func (i *Identity) UpdateLastSeen() {
	i.LastSeen = time.Now()
}
