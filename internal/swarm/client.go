package swarm

import (
	"context"
	"encoding/hex"

	"github.com/gorilla/websocket"

	"neuroswarm/internal/crypto"
	"neuroswarm/internal/errs"
	"neuroswarm/internal/identity"
	"neuroswarm/internal/protocol"
)

// defaultSolveIterations bounds the proof-of-work search on the client side.
const defaultSolveIterations = 1 << 28

// Client is the joining side of the admission handshake. It drives the
// JOIN_REQUEST, CHALLENGE, CHALLENGE_RESPONSE exchange over a raw connection
// and reports the resulting membership.
type Client struct {
	id            *identity.Identity
	conn          wire
	maxIterations uint64
}

// NewClient creates a client for the given identity over an open connection.
func NewClient(id *identity.Identity, conn wire) *Client {
	return &Client{
		id:            id,
		conn:          conn,
		maxIterations: defaultSolveIterations,
	}
}

// Join performs the admission handshake and returns the first swarm state
// received after admission. Rejections surface as authentication errors.
func (c *Client) Join(ctx context.Context) (*protocol.SwarmState, error) {
	join, err := protocol.NewMessage(protocol.MessageTypeJoinRequest, c.id.NodeID, protocol.JoinRequest{
		NodeID:          c.id.NodeID,
		WalletAddress:   c.id.WalletAddress,
		DevicePublicKey: c.id.PublicKey(),
		Version:         c.id.Version,
		ComputeUnits:    c.id.ComputeUnits,
		Tier:            string(c.id.Tier),
		Memory:          c.id.Memory,
	})
	if err != nil {
		return nil, err
	}
	if err := c.send(join); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, errs.Wrap(errs.KindAuthentication, err, "connection closed during admission")
		}
		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			return nil, err
		}

		switch msg.Type {
		case protocol.MessageTypeChallenge:
			if err := c.answerChallenge(msg); err != nil {
				return nil, err
			}
		case protocol.MessageTypeSwarmState:
			state, err := protocol.DecodePayload[protocol.SwarmState](msg)
			if err != nil {
				return nil, err
			}
			c.id.UpdateLastSeen()
			return state, nil
		case protocol.MessageTypeError:
			body, err := protocol.DecodePayload[protocol.ErrorBody](msg)
			if err != nil {
				return nil, err
			}
			return nil, errs.Authentication("join rejected: %s: %s", body.Code, body.Message)
		default:
			// Broadcasts for other members can arrive mid-handshake.
		}
	}
}

func (c *Client) answerChallenge(msg *protocol.Message) error {
	body, err := protocol.DecodePayload[protocol.ChallengeBody](msg)
	if err != nil {
		return err
	}

	challenge := &crypto.Challenge{
		Nonce:      body.Nonce,
		Difficulty: body.Difficulty,
		IssuedAt:   body.IssuedAt,
	}
	solution, err := challenge.Solve(c.maxIterations)
	if err != nil {
		return errs.Wrap(errs.KindAuthentication, err, "solving admission challenge")
	}

	signature, err := c.id.Sign(ProofMessage(body.Nonce, solution))
	if err != nil {
		return errs.Wrap(errs.KindAuthentication, err, "signing device proof")
	}

	resp, err := protocol.NewMessage(protocol.MessageTypeChallengeResponse, c.id.NodeID, protocol.ChallengeResponse{
		Nonce:     body.Nonce,
		Solution:  solution,
		Signature: hex.EncodeToString(signature),
	})
	if err != nil {
		return err
	}
	return c.send(resp)
}

// Heartbeat sends a liveness refresh with the current capacity.
func (c *Client) Heartbeat(currentTask string) error {
	msg, err := protocol.NewMessage(protocol.MessageTypeHeartbeat, c.id.NodeID, protocol.HeartbeatBody{
		ComputeUnits: c.id.ComputeUnits,
		CurrentTask:  currentTask,
	})
	if err != nil {
		return err
	}
	c.id.UpdateLastSeen()
	return c.send(msg)
}

// LeaderHeartbeat broadcasts the leader's duty message. Only meaningful when
// this client holds office.
func (c *Client) LeaderHeartbeat(body protocol.LeaderHeartbeatBody) error {
	msg, err := protocol.NewMessage(protocol.MessageTypeLeaderHeartbeat, c.id.NodeID, body)
	if err != nil {
		return err
	}
	return c.send(msg)
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
