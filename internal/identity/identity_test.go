package identity

import (
	"testing"

	"github.com/decred/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroswarm/internal/capability"
	"neuroswarm/internal/crypto"
)

func TestNewRequiresWallet(t *testing.T) {
	_, err := New("node-1", "", "1.0.0", nil)
	assert.Error(t, err)
}

func TestNewScoresCapability(t *testing.T) {
	id, err := New("node-1", "wallet-1", "1.0.0", &capability.HardwareSpec{Cores: 1e12, Clock: 2, Memory: 8})
	require.NoError(t, err)
	assert.Equal(t, 32.0, id.ComputeUnits)
	assert.Equal(t, capability.TierSuperNode, id.Tier)
	assert.Equal(t, 8.0, id.Memory)
}

func TestSignProvesPublicKey(t *testing.T) {
	id, err := New("node-1", "wallet-1", "1.0.0", nil)
	require.NoError(t, err)

	pub := base58.Decode(id.PublicKey())
	require.Len(t, pub, 32)

	message := []byte("device proof")
	signature, err := id.Sign(message)
	require.NoError(t, err)

	valid, err := crypto.VerifySr25519(message, signature, pub)
	require.NoError(t, err)
	assert.True(t, valid)
}
