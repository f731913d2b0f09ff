package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(MessageTypeJoinRequest, "node-1", JoinRequest{
		NodeID:          "node-1",
		WalletAddress:   "wallet-1",
		DevicePublicKey: "3vQB7B6MrGQZaxCuFg4oh",
		Version:         "1.0.0",
		ComputeUnits:    7.5,
		Tier:            "HIGH_PERFORMANCE",
		Memory:          8,
	})
	require.NoError(t, err)

	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeJoinRequest, decoded.Type)
	assert.Equal(t, "node-1", decoded.SenderID)

	body, err := DecodePayload[JoinRequest](decoded)
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", body.WalletAddress)
	assert.Equal(t, 7.5, body.ComputeUnits)
}

func TestDecodeMessageRejectsMalformed(t *testing.T) {
	_, err := DecodeMessage([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeMessage([]byte(`{"payload":{}}`))
	assert.Error(t, err, "a message without a type is invalid")
}

func TestDecodePayloadRequiresBody(t *testing.T) {
	msg, err := NewMessage(MessageTypeHeartbeat, "node-1", nil)
	require.NoError(t, err)

	_, err = DecodePayload[HeartbeatBody](msg)
	assert.Error(t, err)
}

func TestSwarmStatePayload(t *testing.T) {
	state := SwarmState{
		SwarmID:  "swarm-abc",
		LeaderID: "node-2",
		Term:     3,
		Members: []MemberInfo{
			{NodeID: "node-1", ComputeUnits: 2},
			{NodeID: "node-2", ComputeUnits: 9},
		},
		TotalComputeUnits: 11,
	}

	msg := MustMessage(MessageTypeSwarmState, "swarm-abc", state)
	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	body, err := DecodePayload[SwarmState](decoded)
	require.NoError(t, err)
	assert.Equal(t, state.LeaderID, body.LeaderID)
	assert.Len(t, body.Members, 2)
	assert.Equal(t, 11.0, body.TotalComputeUnits)
}

func TestIsCompatible(t *testing.T) {
	compatible, err := IsCompatible(CurrentVersion)
	require.NoError(t, err)
	assert.True(t, compatible)

	compatible, err = IsCompatible("2.3.1")
	require.NoError(t, err)
	assert.True(t, compatible)

	compatible, err = IsCompatible("0.9.0")
	require.NoError(t, err)
	assert.False(t, compatible)

	_, err = IsCompatible("not-a-version")
	assert.Error(t, err)
}
