package protocol

import "time"

// JoinRequest opens the admission handshake. DevicePublicKey is the
// base58-encoded sr25519 public key the device will prove ownership of.
type JoinRequest struct {
	NodeID          string  `json:"node_id"`
	WalletAddress   string  `json:"wallet_address"`
	DevicePublicKey string  `json:"device_public_key"`
	Version         string  `json:"version"`
	ComputeUnits    float64 `json:"compute_units"`
	Tier            string  `json:"tier"`
	Memory          float64 `json:"memory"`
}

// ChallengeBody carries the proof-of-work puzzle issued to a joiner.
type ChallengeBody struct {
	Nonce      string    `json:"nonce"`
	Difficulty int       `json:"difficulty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// ChallengeResponse answers a challenge. Signature is the hex-encoded
// sr25519 signature over the challenge nonce, proving the joiner holds
// the device key it announced.
type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	Solution  uint64 `json:"solution"`
	Signature string `json:"signature"`
}

// MemberInfo is one admitted member in a swarm-state broadcast.
type MemberInfo struct {
	NodeID        string    `json:"node_id"`
	WalletAddress string    `json:"wallet_address"`
	ComputeUnits  float64   `json:"compute_units"`
	Tier          string    `json:"tier"`
	JoinedAt      time.Time `json:"joined_at"`
	LastSeen      time.Time `json:"last_seen"`
}

// SwarmState is the full membership view broadcast after every change.
type SwarmState struct {
	SwarmID           string       `json:"swarm_id"`
	LeaderID          string       `json:"leader_id,omitempty"`
	Term              uint64       `json:"term"`
	Members           []MemberInfo `json:"members"`
	TotalComputeUnits float64      `json:"total_compute_units"`
}

// HeartbeatBody refreshes a member's liveness and advertised capacity.
type HeartbeatBody struct {
	ComputeUnits float64 `json:"compute_units"`
	CurrentTask  string  `json:"current_task,omitempty"`
}

// LeaderElection announces an election outcome.
type LeaderElection struct {
	LeaderID string `json:"leader_id"`
	Term     uint64 `json:"term"`
	Reason   string `json:"reason,omitempty"`
}

// ElectionVote is one member's vote for a candidate in the given term.
type ElectionVote struct {
	CandidateID string `json:"candidate_id"`
	Term        uint64 `json:"term"`
}

// TaskAssignedBody notifies the swarm that a task was claimed.
type TaskAssignedBody struct {
	TaskID string  `json:"task_id"`
	NodeID string  `json:"node_id"`
	Type   string  `json:"type"`
	Reward float64 `json:"reward"`
}

// TaskCompletedBody notifies the swarm that a task settled.
type TaskCompletedBody struct {
	TaskID        string  `json:"task_id"`
	NodeID        string  `json:"node_id"`
	WalletAddress string  `json:"wallet_address"`
	Reward        float64 `json:"reward"`
}

// TaskFailedBody notifies the swarm that a submission was rejected.
type TaskFailedBody struct {
	TaskID   string `json:"task_id"`
	NodeID   string `json:"node_id"`
	Reason   string `json:"reason,omitempty"`
	Requeued bool   `json:"requeued"`
}

// LeaderHeartbeatBody is the leader's periodic proof of duty, with the
// aggregate view it is responsible for maintaining.
type LeaderHeartbeatBody struct {
	Term              uint64  `json:"term"`
	MemberCount       int     `json:"member_count"`
	TotalComputeUnits float64 `json:"total_compute_units"`
}

// ErrorBody reports a protocol-level failure back to a peer.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ErrorBody.
const (
	ErrCodeIncompatible = "INCOMPATIBLE_VERSION"
	ErrCodeBadChallenge = "CHALLENGE_FAILED"
	ErrCodeBadSignature = "SIGNATURE_INVALID"
	ErrCodeBadMessage   = "MALFORMED_MESSAGE"
	ErrCodeNotAdmitted  = "NOT_ADMITTED"
)
