package swarm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroswarm/internal/protocol"
)

// fakeConn is an in-memory wire so coordinator logic runs without sockets.
type fakeConn struct {
	recv    chan []byte
	send    chan []byte
	done    chan struct{}
	closeFn func()
}

// newWirePair returns the two ends of a connection. Closing either end
// unblocks both.
func newWirePair() (*fakeConn, *fakeConn) {
	a := make(chan []byte, 64)
	b := make(chan []byte, 64)
	done := make(chan struct{})
	var once sync.Once
	closeFn := func() { once.Do(func() { close(done) }) }
	return &fakeConn{recv: a, send: b, done: done, closeFn: closeFn},
		&fakeConn{recv: b, send: a, done: done, closeFn: closeFn}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	// Frames written before close stay readable.
	select {
	case data := <-f.recv:
		return websocket.TextMessage, data, nil
	default:
	}
	select {
	case data := <-f.recv:
		return websocket.TextMessage, data, nil
	case <-f.done:
		return 0, nil, errors.New("connection closed")
	case <-time.After(5 * time.Second):
		return 0, nil, errors.New("read timed out")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case f.send <- data:
		return nil
	case <-f.done:
		return errors.New("connection closed")
	}
}

func (f *fakeConn) Close() error {
	f.closeFn()
	return nil
}

func (f *fakeConn) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type testEvents struct {
	mu      sync.Mutex
	joined  []string
	left    []string
	leaders []string
}

func (e *testEvents) MemberJoined(info protocol.MemberInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joined = append(e.joined, info.NodeID)
}

func (e *testEvents) MemberLeft(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.left = append(e.left, nodeID)
}

func (e *testEvents) LeaderElected(nodeID string, term uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaders = append(e.leaders, nodeID)
}

func (e *testEvents) joinedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.joined)
}

func (e *testEvents) leftIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.left...)
}

// admitTestMember installs an admitted member directly, bypassing the
// handshake. The member's pumps are not running; broadcasts queue in its
// send buffer.
func admitTestMember(c *Coordinator, nodeID string, units float64) (*Member, *fakeConn) {
	server, _ := newWirePair()
	m := newMember(server, c)
	c.admit(m, protocol.JoinRequest{
		NodeID:        nodeID,
		WalletAddress: "wallet-" + nodeID,
		ComputeUnits:  units,
		Tier:          "STANDARD",
		Memory:        4,
	})
	return m, server
}

// drainMessages decodes everything queued in a member's send buffer.
func drainMessages(t *testing.T, m *Member) []*protocol.Message {
	t.Helper()
	var msgs []*protocol.Message
	for {
		select {
		case data := <-m.send:
			msg, err := protocol.DecodeMessage(data)
			require.NoError(t, err)
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func messageTypes(msgs []*protocol.Message) []string {
	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, msg.Type)
	}
	return types
}

func TestElectionHighestComputeWins(t *testing.T) {
	ev := &testEvents{}
	c := New(Config{SwarmID: "swarm-test"}, nil, ev)

	admitTestMember(c, "node-a", 2)
	assert.Equal(t, "node-a", c.LeaderID())

	admitTestMember(c, "node-b", 9)
	assert.Equal(t, "node-b", c.LeaderID())

	// A weaker joiner does not unseat the incumbent.
	admitTestMember(c, "node-c", 5)
	assert.Equal(t, "node-b", c.LeaderID())
	assert.Equal(t, uint64(2), c.State().Term)
	assert.Equal(t, []string{"node-a", "node-b"}, ev.leaders)
}

func TestElectionTieBreaksOnNodeID(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)

	admitTestMember(c, "node-b", 4)
	admitTestMember(c, "node-a", 4)
	assert.Equal(t, "node-a", c.LeaderID())
}

func TestLeaderDepartureReelects(t *testing.T) {
	ev := &testEvents{}
	c := New(Config{SwarmID: "swarm-test"}, nil, ev)

	admitTestMember(c, "node-a", 2)
	leader, _ := admitTestMember(c, "node-b", 9)
	admitTestMember(c, "node-c", 5)
	require.Equal(t, "node-b", c.LeaderID())

	c.dropConnection(leader)
	assert.Equal(t, "node-c", c.LeaderID())
	assert.Equal(t, 2, c.MemberCount())
	assert.Contains(t, ev.leftIDs(), "node-b")
}

func TestLastDepartureDissolvesSwarm(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)

	only, _ := admitTestMember(c, "node-a", 2)
	require.Equal(t, StatusActive, c.Status())

	c.dropConnection(only)
	assert.Equal(t, StatusDissolved, c.Status())
	assert.Empty(t, c.LeaderID())
	assert.Zero(t, c.MemberCount())
}

func TestStateSnapshot(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)

	admitTestMember(c, "node-b", 9)
	admitTestMember(c, "node-a", 2)

	state := c.State()
	assert.Equal(t, "swarm-test", state.SwarmID)
	require.Len(t, state.Members, 2)
	assert.Equal(t, "node-a", state.Members[0].NodeID)
	assert.Equal(t, "node-b", state.Members[1].NodeID)
	assert.Equal(t, 11.0, state.TotalComputeUnits)
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)

	_, firstConn := admitTestMember(c, "node-a", 2)
	admitTestMember(c, "node-a", 2)

	assert.True(t, firstConn.closed(), "superseded connection should be closed")
	assert.Equal(t, 1, c.MemberCount())
}

func TestEvictStale(t *testing.T) {
	ev := &testEvents{}
	c := New(Config{SwarmID: "swarm-test"}, nil, ev)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	stale, _ := admitTestMember(c, "node-a", 9)
	fresh, _ := admitTestMember(c, "node-b", 2)
	require.Equal(t, "node-a", c.LeaderID())
	_ = stale

	clock = clock.Add(2 * time.Minute)
	fresh.mu.Lock()
	fresh.lastSeen = clock
	fresh.mu.Unlock()

	evicted := c.EvictStale()
	assert.Equal(t, []string{"node-a"}, evicted)
	assert.Equal(t, 1, c.MemberCount())
	// The evicted node held office; the survivor takes over.
	assert.Equal(t, "node-b", c.LeaderID())
	assert.Contains(t, ev.leftIDs(), "node-a")
}

func TestCheckLeaderDutyRemovesFailedLeader(t *testing.T) {
	ev := &testEvents{}
	c := New(Config{SwarmID: "swarm-test"}, nil, ev)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	admitTestMember(c, "node-a", 9)
	admitTestMember(c, "node-b", 2)
	require.Equal(t, "node-a", c.LeaderID())

	assert.False(t, c.CheckLeaderDuty())

	clock = clock.Add(20 * time.Second)
	assert.True(t, c.CheckLeaderDuty())
	assert.Equal(t, "node-b", c.LeaderID())
	assert.Equal(t, 1, c.MemberCount())
	assert.Contains(t, ev.leftIDs(), "node-a")

	// The fresh election resets the duty clock.
	assert.False(t, c.CheckLeaderDuty())
}

func TestLeaderHeartbeatRecordsDuty(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	leader, _ := admitTestMember(c, "node-a", 9)
	follower, _ := admitTestMember(c, "node-b", 2)
	drainMessages(t, follower)

	clock = clock.Add(20 * time.Second)
	c.handleLeaderHeartbeat(leader, protocol.MustMessage(protocol.MessageTypeLeaderHeartbeat, "node-a", protocol.LeaderHeartbeatBody{
		Term:              1,
		MemberCount:       2,
		TotalComputeUnits: 11,
	}))

	assert.False(t, c.CheckLeaderDuty())
	assert.Contains(t, messageTypes(drainMessages(t, follower)), protocol.MessageTypeLeaderHeartbeat)
}

func TestLeaderHeartbeatIgnoresNonLeader(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	admitTestMember(c, "node-a", 9)
	follower, _ := admitTestMember(c, "node-b", 2)

	clock = clock.Add(20 * time.Second)
	c.handleLeaderHeartbeat(follower, protocol.MustMessage(protocol.MessageTypeLeaderHeartbeat, "node-b", protocol.LeaderHeartbeatBody{Term: 1}))

	assert.True(t, c.CheckLeaderDuty(), "a non-leader duty message must not keep the leader alive")
}

func TestHeartbeatMergesMemberView(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	m, _ := admitTestMember(c, "node-a", 2)

	clock = clock.Add(10 * time.Second)
	c.handleHeartbeat(m, protocol.MustMessage(protocol.MessageTypeHeartbeat, "node-a", protocol.HeartbeatBody{
		ComputeUnits: 7,
		CurrentTask:  "task-1",
	}))

	info := m.Info()
	assert.Equal(t, 7.0, info.ComputeUnits)
	assert.Equal(t, clock, info.LastSeen)
	m.mu.Lock()
	assert.Equal(t, "task-1", m.currentTask)
	m.mu.Unlock()
}

func TestHeartbeatBeforeAdmissionRejected(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)
	server, _ := newWirePair()
	m := newMember(server, c)

	c.handleHeartbeat(m, protocol.MustMessage(protocol.MessageTypeHeartbeat, "node-a", protocol.HeartbeatBody{}))

	msgs := drainMessages(t, m)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.MessageTypeError, msgs[0].Type)
	body, err := protocol.DecodePayload[protocol.ErrorBody](msgs[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrCodeNotAdmitted, body.Code)
}

func TestElectionVoteReconciliation(t *testing.T) {
	c := New(Config{SwarmID: "swarm-test"}, nil, nil)

	admitTestMember(c, "node-a", 9)
	voter, _ := admitTestMember(c, "node-b", 2)
	drainMessages(t, voter)

	// A vote matching the authoritative result is absorbed silently.
	c.handleElectionVote(voter, protocol.MustMessage(protocol.MessageTypeElectionVote, "node-b", protocol.ElectionVote{
		CandidateID: c.LeaderID(),
		Term:        c.State().Term,
	}))
	assert.Empty(t, drainMessages(t, voter))

	// A stale vote earns the voter a corrective rebroadcast.
	c.handleElectionVote(voter, protocol.MustMessage(protocol.MessageTypeElectionVote, "node-b", protocol.ElectionVote{
		CandidateID: "node-b",
		Term:        0,
	}))
	msgs := drainMessages(t, voter)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.MessageTypeLeaderElection, msgs[0].Type)
	body, err := protocol.DecodePayload[protocol.LeaderElection](msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "node-a", body.LeaderID)
}
