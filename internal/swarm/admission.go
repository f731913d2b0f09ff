package swarm

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/decred/base58"
	"github.com/sirupsen/logrus"

	"neuroswarm/internal/crypto"
	"neuroswarm/internal/errs"
	"neuroswarm/internal/protocol"
)

const sr25519PublicKeySize = 32

// pendingJoin holds the handshake state between JOIN_REQUEST and
// CHALLENGE_RESPONSE.
type pendingJoin struct {
	request   protocol.JoinRequest
	publicKey []byte
	challenge *crypto.Challenge
}

// ProofMessage is the byte string a joiner signs to answer a challenge. It
// binds the signature to both the nonce and the specific solution found.
func ProofMessage(nonce string, solution uint64) []byte {
	buf := make([]byte, 0, len(nonce)+8)
	buf = append(buf, nonce...)
	return binary.LittleEndian.AppendUint64(buf, solution)
}

func (c *Coordinator) handleJoinRequest(m *Member, msg *protocol.Message) {
	req, err := protocol.DecodePayload[protocol.JoinRequest](msg)
	if err != nil {
		m.sendError(protocol.ErrCodeBadMessage, err.Error())
		return
	}

	if err := c.screenJoin(req); err != nil {
		c.rejectJoin(m, req.NodeID, protocol.ErrCodeIncompatible, err)
		return
	}

	publicKey := base58.Decode(req.DevicePublicKey)
	if len(publicKey) != sr25519PublicKeySize {
		c.rejectJoin(m, req.NodeID, protocol.ErrCodeBadSignature, errs.Authentication("device public key is not a valid sr25519 key"))
		return
	}

	challenge, err := crypto.NewChallenge(c.difficulty)
	if err != nil {
		m.sendError(protocol.ErrCodeBadMessage, "challenge issuance failed")
		return
	}

	c.mu.Lock()
	c.pending[req.NodeID] = &pendingJoin{
		request:   *req,
		publicKey: publicKey,
		challenge: challenge,
	}
	c.mu.Unlock()

	m.mu.Lock()
	m.nodeID = req.NodeID
	m.mu.Unlock()

	m.enqueue(protocol.MustMessage(protocol.MessageTypeChallenge, c.swarmID, protocol.ChallengeBody{
		Nonce:      challenge.Nonce,
		Difficulty: challenge.Difficulty,
		IssuedAt:   challenge.IssuedAt,
	}))
	c.log.WithFields(logrus.Fields{"node": req.NodeID, "difficulty": challenge.Difficulty}).Debug("challenge issued")
}

// screenJoin applies the pre-challenge gates: required fields and protocol
// version compatibility.
func (c *Coordinator) screenJoin(req *protocol.JoinRequest) error {
	if req.NodeID == "" || req.WalletAddress == "" {
		return errs.Authentication("join request missing node id or wallet address")
	}
	compatible, err := protocol.IsCompatible(req.Version)
	if err != nil {
		return errs.Authentication("unparseable protocol version %q", req.Version)
	}
	if !compatible {
		return errs.Authentication("protocol version %s is below minimum %s", req.Version, protocol.MinCompatibleVersion)
	}
	return nil
}

func (c *Coordinator) handleChallengeResponse(m *Member, msg *protocol.Message) {
	resp, err := protocol.DecodePayload[protocol.ChallengeResponse](msg)
	if err != nil {
		m.sendError(protocol.ErrCodeBadMessage, err.Error())
		return
	}

	nodeID := m.NodeID()
	c.mu.Lock()
	pending, ok := c.pending[nodeID]
	if ok {
		delete(c.pending, nodeID)
	}
	c.mu.Unlock()

	if !ok {
		c.rejectJoin(m, nodeID, protocol.ErrCodeNotAdmitted, errs.Authentication("no challenge outstanding for node %s", nodeID))
		return
	}

	if err := c.verifyResponse(pending, resp); err != nil {
		c.rejectJoin(m, nodeID, protocol.ErrCodeBadChallenge, err)
		return
	}

	c.admit(m, pending.request)
}

// verifyResponse checks the anti-sybil proof: the challenge must still be
// live, the solution must carry the required work, and the signature must
// prove possession of the announced device key.
func (c *Coordinator) verifyResponse(pending *pendingJoin, resp *protocol.ChallengeResponse) error {
	if resp.Nonce != pending.challenge.Nonce {
		return errs.Authentication("challenge response nonce mismatch")
	}
	if pending.challenge.Expired(c.challengeTTL) {
		return errs.Authentication("challenge expired")
	}
	if !pending.challenge.Verify(resp.Solution) {
		return errs.Authentication("challenge solution does not meet difficulty %d", pending.challenge.Difficulty)
	}

	signature, err := hex.DecodeString(resp.Signature)
	if err != nil {
		return errs.Authentication("signature is not valid hex")
	}
	valid, err := crypto.VerifySr25519(ProofMessage(resp.Nonce, resp.Solution), signature, pending.publicKey)
	if err != nil || !valid {
		return errs.Authentication("device proof signature invalid")
	}
	return nil
}

// rejectJoin surfaces an admission failure to the joiner and closes the
// connection. Unverified joins never reach the membership table.
func (c *Coordinator) rejectJoin(m *Member, nodeID, code string, err error) {
	c.log.WithFields(logrus.Fields{"node": nodeID, "reason": err.Error()}).Warn("join rejected")
	m.closeWithError(code, err.Error())
}
