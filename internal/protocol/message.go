// Package protocol defines the typed messages carried on the swarm channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types for the swarm channel.
const (
	MessageTypeJoinRequest       = "JOIN_REQUEST"
	MessageTypeChallenge         = "CHALLENGE"
	MessageTypeChallengeResponse = "CHALLENGE_RESPONSE"
	MessageTypeSwarmState        = "SWARM_STATE"
	MessageTypeHeartbeat         = "HEARTBEAT"
	MessageTypeLeaderElection    = "LEADER_ELECTION"
	MessageTypeElectionVote      = "ELECTION_VOTE"
	MessageTypeTaskAssigned      = "TASK_ASSIGNED"
	MessageTypeTaskCompleted     = "TASK_COMPLETED"
	MessageTypeTaskFailed        = "TASK_FAILED"
	MessageTypeLeaderHeartbeat   = "LEADER_HEARTBEAT"
	MessageTypeError             = "ERROR"
)

// Message is the envelope for every frame on the swarm channel. Payload
// holds the type-specific body; decode it with DecodePayload.
type Message struct {
	Type      string          `json:"type"`
	SenderID  string          `json:"sender_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a message with an encoded payload.
func NewMessage(msgType, senderID string, payload any) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		SenderID:  senderID,
		Timestamp: time.Now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Encode serializes a message to JSON.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage deserializes a message from JSON.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// DecodePayload decodes the message payload into the given body struct.
func DecodePayload[T any](m *Message) (*T, error) {
	var body T
	if len(m.Payload) == 0 {
		return nil, fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, &body); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return &body, nil
}

// MustMessage is NewMessage for payloads that cannot fail to encode.
// Panics otherwise; reserved for internally constructed payload structs.
func MustMessage(msgType, senderID string, payload any) *Message {
	msg, err := NewMessage(msgType, senderID, payload)
	if err != nil {
		panic(err)
	}
	return msg
}
