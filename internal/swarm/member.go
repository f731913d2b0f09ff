package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"neuroswarm/internal/protocol"
)

// wire is the subset of *websocket.Conn the member pumps need. Logic tests
// substitute an in-memory implementation.
type wire interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Member is one connection to the swarm channel. A member starts unadmitted;
// it carries no identity until the admission handshake completes.
type Member struct {
	conn        wire
	send        chan []byte
	coordinator *Coordinator

	mu            sync.Mutex
	nodeID        string
	walletAddress string
	computeUnits  float64
	tier          string
	memory        float64
	currentTask   string
	joinedAt      time.Time
	lastSeen      time.Time
	admitted      bool

	closeOnce sync.Once
}

func newMember(conn wire, c *Coordinator) *Member {
	return &Member{
		conn:        conn,
		send:        make(chan []byte, 256),
		coordinator: c,
	}
}

// NodeID returns the member's node id, empty until admitted.
func (m *Member) NodeID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodeID
}

// Admitted reports whether the member passed the admission handshake.
func (m *Member) Admitted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitted
}

// Info snapshots the member for a swarm-state broadcast.
func (m *Member) Info() protocol.MemberInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return protocol.MemberInfo{
		NodeID:        m.nodeID,
		WalletAddress: m.walletAddress,
		ComputeUnits:  m.computeUnits,
		Tier:          m.tier,
		JoinedAt:      m.joinedAt,
		LastSeen:      m.lastSeen,
	}
}

// Handle starts the read and write pumps for the connection.
func (m *Member) Handle(ctx context.Context) {
	go m.readPump(ctx)
	go m.writePump(ctx)
}

func (m *Member) readPump(ctx context.Context) {
	defer m.coordinator.dropConnection(m)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := m.conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.DecodeMessage(data)
			if err != nil {
				m.sendError(protocol.ErrCodeBadMessage, err.Error())
				continue
			}
			m.coordinator.handleMessage(m, msg)
		}
	}
}

func (m *Member) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-m.send:
			if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// enqueue queues a message without blocking. A member that cannot drain its
// buffer loses frames rather than stalling the coordinator.
func (m *Member) enqueue(msg *protocol.Message) bool {
	data, err := msg.Encode()
	if err != nil {
		return false
	}
	select {
	case m.send <- data:
		return true
	default:
		return false
	}
}

func (m *Member) sendError(code, message string) {
	m.enqueue(protocol.MustMessage(protocol.MessageTypeError, m.coordinator.swarmID, protocol.ErrorBody{
		Code:    code,
		Message: message,
	}))
}

// closeWithError reports a terminal failure and closes the connection. The
// frame is written directly so it cannot be lost in the send buffer when the
// connection tears down.
func (m *Member) closeWithError(code, message string) {
	msg := protocol.MustMessage(protocol.MessageTypeError, m.coordinator.swarmID, protocol.ErrorBody{
		Code:    code,
		Message: message,
	})
	if data, err := msg.Encode(); err == nil {
		_ = m.conn.WriteMessage(websocket.TextMessage, data)
	}
	m.close()
}

func (m *Member) close() {
	m.closeOnce.Do(func() {
		m.conn.Close()
	})
}
