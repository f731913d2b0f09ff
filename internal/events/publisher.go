// Package events publishes task and swarm lifecycle events to NATS
// JetStream for downstream consumers. The publisher is optional: a nil
// *Publisher satisfies every method as a no-op, so the core runs without a
// broker configured.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"neuroswarm/internal/protocol"
	"neuroswarm/internal/task"
)

// Stream layout.
const (
	streamName = "NEUROSWARM"

	SubjectTaskAssigned  = "swarm.tasks.assigned"
	SubjectTaskCompleted = "swarm.tasks.completed"
	SubjectTaskRequeued  = "swarm.tasks.requeued"
	SubjectMemberJoined  = "swarm.members.joined"
	SubjectMemberLeft    = "swarm.members.left"
	SubjectLeaderElected = "swarm.members.leader"
)

// Config holds the publisher configuration.
type Config struct {
	// Maximum age of messages retained in the stream.
	MaxAge time.Duration
	// Storage type (file or memory).
	StorageType nats.StorageType
}

// Publisher emits lifecycle events onto a JetStream stream.
type Publisher struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *logrus.Entry
}

// New connects to NATS and ensures the event stream exists.
func New(url string, config Config) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"swarm.>"},
		MaxAge:   config.MaxAge,
		Storage:  config.StorageType,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Publisher{
		nc:  nc,
		js:  js,
		log: logrus.WithField("component", "events"),
	}, nil
}

// publish encodes the body and publishes asynchronously. Event delivery is
// best-effort; a broker outage never fails the operation that emitted the
// event.
func (p *Publisher) publish(subject string, body any) {
	if p == nil {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		p.log.WithError(err).WithField("subject", subject).Error("failed to encode event")
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.WithError(err).WithField("subject", subject).Warn("failed to publish event")
	}
}

// TaskEvent is the payload published for task lifecycle subjects.
type TaskEvent struct {
	TaskID        string    `json:"task_id"`
	Type          string    `json:"type"`
	NodeID        string    `json:"node_id,omitempty"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Reward        float64   `json:"reward,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// MemberEvent is the payload published for membership subjects.
type MemberEvent struct {
	NodeID        string    `json:"node_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	ComputeUnits  float64   `json:"compute_units,omitempty"`
	Term          uint64    `json:"term,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// TaskAssigned publishes a task claim.
func (p *Publisher) TaskAssigned(t *task.Task) {
	p.publish(SubjectTaskAssigned, TaskEvent{
		TaskID:    t.ID,
		Type:      string(t.Type),
		NodeID:    t.AssignedTo,
		Reward:    t.Reward,
		Timestamp: time.Now(),
	})
}

// TaskCompleted publishes a task settlement.
func (p *Publisher) TaskCompleted(t *task.Task, wallet string) {
	p.publish(SubjectTaskCompleted, TaskEvent{
		TaskID:        t.ID,
		Type:          string(t.Type),
		NodeID:        t.AssignedTo,
		WalletAddress: wallet,
		Reward:        t.Reward,
		Timestamp:     time.Now(),
	})
}

// TaskRequeued publishes a task returned to the pool.
func (p *Publisher) TaskRequeued(t *task.Task) {
	p.publish(SubjectTaskRequeued, TaskEvent{
		TaskID:    t.ID,
		Type:      string(t.Type),
		Timestamp: time.Now(),
	})
}

// MemberJoined publishes a swarm admission.
func (p *Publisher) MemberJoined(info protocol.MemberInfo) {
	p.publish(SubjectMemberJoined, MemberEvent{
		NodeID:        info.NodeID,
		WalletAddress: info.WalletAddress,
		ComputeUnits:  info.ComputeUnits,
		Timestamp:     time.Now(),
	})
}

// MemberLeft publishes a swarm departure or eviction.
func (p *Publisher) MemberLeft(nodeID string) {
	p.publish(SubjectMemberLeft, MemberEvent{
		NodeID:    nodeID,
		Timestamp: time.Now(),
	})
}

// LeaderElected publishes an election outcome.
func (p *Publisher) LeaderElected(nodeID string, term uint64) {
	p.publish(SubjectLeaderElected, MemberEvent{
		NodeID:    nodeID,
		Term:      term,
		Timestamp: time.Now(),
	})
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.nc.Close()
	return nil
}
