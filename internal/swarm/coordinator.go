// Package swarm coordinates an ephemeral peer group over the websocket
// channel: admission, membership, heartbeats, leader election, and state
// broadcast.
package swarm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"neuroswarm/internal/crypto"
	"neuroswarm/internal/protocol"
	"neuroswarm/internal/registry"
	"neuroswarm/internal/task"
)

// Status is the swarm lifecycle state.
type Status string

const (
	StatusForming   Status = "FORMING"
	StatusActive    Status = "ACTIVE"
	StatusDissolved Status = "DISSOLVED"
)

// Timing defaults, applied when the config leaves them zero.
const (
	DefaultEvictionAge       = 90 * time.Second
	DefaultLeaderDutyTimeout = 15 * time.Second
)

// Events receives membership lifecycle notifications. Implementations must
// not block; a nil Events is valid.
type Events interface {
	MemberJoined(info protocol.MemberInfo)
	MemberLeft(nodeID string)
	LeaderElected(nodeID string, term uint64)
}

// Config carries the coordinator's tunables.
type Config struct {
	SwarmID           string
	Difficulty        int
	ChallengeTTL      time.Duration
	EvictionAge       time.Duration
	LeaderDutyTimeout time.Duration
}

// Coordinator owns swarm membership. Nodes enter only through the admission
// handshake and leave by disconnect or eviction; the leader is re-elected on
// every departure of the incumbent.
type Coordinator struct {
	swarmID           string
	difficulty        int
	challengeTTL      time.Duration
	evictionAge       time.Duration
	leaderDutyTimeout time.Duration

	registry *registry.Registry
	events   Events
	log      *logrus.Entry
	now      func() time.Time

	mu             sync.RWMutex
	status         Status
	members        map[string]*Member
	pending        map[string]*pendingJoin
	leaderID       string
	term           uint64
	lastLeaderDuty time.Time
}

// New creates a coordinator. reg tracks liveness alongside swarm membership
// and may be nil; events may be nil.
func New(cfg Config, reg *registry.Registry, events Events) *Coordinator {
	if cfg.SwarmID == "" {
		cfg.SwarmID = generateSwarmID()
	}
	if cfg.Difficulty <= 0 {
		cfg.Difficulty = crypto.DefaultDifficulty
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = crypto.DefaultChallengeTTL
	}
	if cfg.EvictionAge <= 0 {
		cfg.EvictionAge = DefaultEvictionAge
	}
	if cfg.LeaderDutyTimeout <= 0 {
		cfg.LeaderDutyTimeout = DefaultLeaderDutyTimeout
	}
	return &Coordinator{
		swarmID:           cfg.SwarmID,
		difficulty:        cfg.Difficulty,
		challengeTTL:      cfg.ChallengeTTL,
		evictionAge:       cfg.EvictionAge,
		leaderDutyTimeout: cfg.LeaderDutyTimeout,
		registry:          reg,
		events:            events,
		log:               logrus.WithField("component", "swarm"),
		now:               time.Now,
		status:            StatusForming,
		members:           make(map[string]*Member),
		pending:           make(map[string]*pendingJoin),
	}
}

func generateSwarmID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "swarm-" + hex.EncodeToString(b)
}

// ID returns the swarm id.
func (c *Coordinator) ID() string { return c.swarmID }

// Status returns the swarm lifecycle state.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LeaderID returns the current leader, empty until an election completes.
func (c *Coordinator) LeaderID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leaderID
}

// MemberCount returns the number of admitted members.
func (c *Coordinator) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// AddConnection wraps a new connection as an unadmitted member and starts
// its pumps. The member gains no standing until admission completes.
func (c *Coordinator) AddConnection(ctx context.Context, conn wire) *Member {
	m := newMember(conn, c)
	m.Handle(ctx)
	return m
}

func (c *Coordinator) handleMessage(m *Member, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeJoinRequest:
		c.handleJoinRequest(m, msg)
	case protocol.MessageTypeChallengeResponse:
		c.handleChallengeResponse(m, msg)
	case protocol.MessageTypeHeartbeat:
		c.handleHeartbeat(m, msg)
	case protocol.MessageTypeLeaderHeartbeat:
		c.handleLeaderHeartbeat(m, msg)
	case protocol.MessageTypeElectionVote:
		c.handleElectionVote(m, msg)
	default:
		c.log.WithField("type", msg.Type).Debug("unhandled message type")
	}
}

// admit installs a verified joiner into the membership table, elects a leader
// if none holds office, and broadcasts the new swarm state.
func (c *Coordinator) admit(m *Member, req protocol.JoinRequest) {
	now := c.now()
	m.mu.Lock()
	m.nodeID = req.NodeID
	m.walletAddress = req.WalletAddress
	m.computeUnits = req.ComputeUnits
	m.tier = req.Tier
	m.memory = req.Memory
	m.joinedAt = now
	m.lastSeen = now
	m.admitted = true
	m.mu.Unlock()

	c.mu.Lock()
	if prev, ok := c.members[req.NodeID]; ok && prev != m {
		// Reconnect under the same id supersedes the old connection.
		prev.close()
	}
	c.members[req.NodeID] = m
	c.status = StatusActive
	c.electLocked("member joined")
	c.broadcastStateLocked()
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"node":   req.NodeID,
		"wallet": req.WalletAddress,
		"tier":   req.Tier,
	}).Info("member admitted")
	if c.events != nil {
		c.events.MemberJoined(m.Info())
	}
}

// dropConnection removes a member whose connection ended. Invoked by the
// read pump on any exit path.
func (c *Coordinator) dropConnection(m *Member) {
	m.close()
	nodeID := m.NodeID()
	if nodeID == "" {
		return
	}

	c.mu.Lock()
	delete(c.pending, nodeID)
	current, ok := c.members[nodeID]
	if !ok || current != m {
		c.mu.Unlock()
		return
	}
	delete(c.members, nodeID)
	c.afterDepartureLocked(nodeID, "member left")
	c.mu.Unlock()

	c.log.WithField("node", nodeID).Info("member left")
	if c.events != nil {
		c.events.MemberLeft(nodeID)
	}
}

// afterDepartureLocked re-elects if the departed member held office and
// refreshes the broadcast state. The swarm dissolves when the last member
// leaves. Callers hold c.mu.
func (c *Coordinator) afterDepartureLocked(nodeID, reason string) {
	if len(c.members) == 0 {
		c.status = StatusDissolved
		c.leaderID = ""
		return
	}
	if c.leaderID == nodeID {
		c.electLocked(reason)
	}
	c.broadcastStateLocked()
}

func (c *Coordinator) handleHeartbeat(m *Member, msg *protocol.Message) {
	if !m.Admitted() {
		m.sendError(protocol.ErrCodeNotAdmitted, "heartbeat before admission")
		return
	}
	hb, err := protocol.DecodePayload[protocol.HeartbeatBody](msg)
	if err != nil {
		m.sendError(protocol.ErrCodeBadMessage, err.Error())
		return
	}

	m.mu.Lock()
	m.lastSeen = c.now()
	if hb.ComputeUnits > 0 {
		m.computeUnits = hb.ComputeUnits
	}
	m.currentTask = hb.CurrentTask
	m.mu.Unlock()

	if c.registry != nil {
		if _, err := c.registry.Heartbeat(context.Background(), m.NodeID()); err != nil {
			c.log.WithError(err).WithField("node", m.NodeID()).Debug("registry heartbeat failed")
		}
	}
}

// handleLeaderHeartbeat records the leader's duty broadcast and relays the
// aggregate view to every member.
func (c *Coordinator) handleLeaderHeartbeat(m *Member, msg *protocol.Message) {
	body, err := protocol.DecodePayload[protocol.LeaderHeartbeatBody](msg)
	if err != nil {
		m.sendError(protocol.ErrCodeBadMessage, err.Error())
		return
	}

	c.mu.Lock()
	if m.NodeID() != c.leaderID {
		c.mu.Unlock()
		return
	}
	c.lastLeaderDuty = c.now()
	c.broadcastLocked(protocol.MustMessage(protocol.MessageTypeLeaderHeartbeat, m.NodeID(), body))
	c.mu.Unlock()
}

// EvictStale removes members whose heartbeat age exceeds the eviction
// threshold. Eviction leaves the device registry untouched. Returns the
// evicted node ids.
func (c *Coordinator) EvictStale() []string {
	cutoff := c.now().Add(-c.evictionAge)

	c.mu.Lock()
	var evicted []string
	for id, m := range c.members {
		m.mu.Lock()
		stale := m.lastSeen.Before(cutoff)
		m.mu.Unlock()
		if !stale {
			continue
		}
		delete(c.members, id)
		m.close()
		evicted = append(evicted, id)
	}
	for _, id := range evicted {
		c.afterDepartureLocked(id, "leader evicted")
	}
	c.mu.Unlock()

	for _, id := range evicted {
		c.log.WithField("node", id).Info("member evicted for stale heartbeat")
		if c.events != nil {
			c.events.MemberLeft(id)
		}
	}
	return evicted
}

// CheckLeaderDuty treats a leader that has missed its duty cycle as failed:
// it is removed from the swarm and re-election fires over the remaining
// members. Returns true if the leadership changed.
func (c *Coordinator) CheckLeaderDuty() bool {
	c.mu.Lock()
	if c.leaderID == "" || c.now().Sub(c.lastLeaderDuty) <= c.leaderDutyTimeout {
		c.mu.Unlock()
		return false
	}

	failed := c.leaderID
	c.log.WithField("leader", failed).Warn("leader missed duty cycle, treating as failed")
	if m, ok := c.members[failed]; ok {
		delete(c.members, failed)
		m.close()
	}
	c.afterDepartureLocked(failed, "leader duty lapsed")
	c.mu.Unlock()

	if c.events != nil {
		c.events.MemberLeft(failed)
	}
	return true
}

// State snapshots the swarm for broadcast or inspection. Members are sorted
// by node id.
func (c *Coordinator) State() protocol.SwarmState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() protocol.SwarmState {
	state := protocol.SwarmState{
		SwarmID:  c.swarmID,
		LeaderID: c.leaderID,
		Term:     c.term,
		Members:  make([]protocol.MemberInfo, 0, len(c.members)),
	}
	for _, m := range c.members {
		info := m.Info()
		state.Members = append(state.Members, info)
		state.TotalComputeUnits += info.ComputeUnits
	}
	sort.Slice(state.Members, func(i, j int) bool {
		return state.Members[i].NodeID < state.Members[j].NodeID
	})
	return state
}

func (c *Coordinator) broadcastStateLocked() {
	c.broadcastLocked(protocol.MustMessage(protocol.MessageTypeSwarmState, c.swarmID, c.stateLocked()))
}

func (c *Coordinator) broadcastLocked(msg *protocol.Message) {
	for id, m := range c.members {
		if !m.enqueue(msg) {
			c.log.WithField("node", id).Debug("member send buffer full, frame dropped")
		}
	}
}

// TaskAssigned broadcasts a claimed task to the swarm.
func (c *Coordinator) TaskAssigned(t *task.Task) {
	c.broadcast(protocol.MustMessage(protocol.MessageTypeTaskAssigned, c.swarmID, protocol.TaskAssignedBody{
		TaskID: t.ID,
		NodeID: t.AssignedTo,
		Type:   string(t.Type),
		Reward: t.Reward,
	}))
}

// TaskCompleted broadcasts a settled task to the swarm.
func (c *Coordinator) TaskCompleted(t *task.Task, wallet string) {
	c.broadcast(protocol.MustMessage(protocol.MessageTypeTaskCompleted, c.swarmID, protocol.TaskCompletedBody{
		TaskID:        t.ID,
		NodeID:        t.AssignedTo,
		WalletAddress: wallet,
		Reward:        t.Reward,
	}))
}

// TaskRequeued broadcasts a task returned to the pool.
func (c *Coordinator) TaskRequeued(t *task.Task) {
	c.broadcast(protocol.MustMessage(protocol.MessageTypeTaskFailed, c.swarmID, protocol.TaskFailedBody{
		TaskID:   t.ID,
		Requeued: true,
	}))
}

func (c *Coordinator) broadcast(msg *protocol.Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.broadcastLocked(msg)
}
