package node

import (
	"neuroswarm/internal/events"
	"neuroswarm/internal/protocol"
	"neuroswarm/internal/swarm"
	"neuroswarm/internal/task"
)

// taskFanout relays task lifecycle events to the broker, the swarm channel,
// and the process metrics.
type taskFanout struct {
	publisher *events.Publisher
	swarm     *swarm.Coordinator
	metrics   *Metrics
}

func (f *taskFanout) TaskAssigned(t *task.Task) {
	f.publisher.TaskAssigned(t)
	f.swarm.TaskAssigned(t)
	if !t.AssignedAt.IsZero() {
		f.metrics.AssignmentLatency.Observe(t.AssignedAt.Sub(t.CreatedAt).Seconds())
	}
}

func (f *taskFanout) TaskCompleted(t *task.Task, wallet string) {
	f.publisher.TaskCompleted(t, wallet)
	f.swarm.TaskCompleted(t, wallet)
	f.metrics.TasksCompleted.Inc()
	f.metrics.RewardsPaid.Add(t.Reward)
}

func (f *taskFanout) TaskRequeued(t *task.Task) {
	f.publisher.TaskRequeued(t)
	f.swarm.TaskRequeued(t)
	f.metrics.TasksRequeued.Inc()
}

// swarmFanout relays membership events to the broker.
type swarmFanout struct {
	publisher *events.Publisher
}

func (f *swarmFanout) MemberJoined(info protocol.MemberInfo) {
	f.publisher.MemberJoined(info)
}

func (f *swarmFanout) MemberLeft(nodeID string) {
	f.publisher.MemberLeft(nodeID)
}

func (f *swarmFanout) LeaderElected(nodeID string, term uint64) {
	f.publisher.LeaderElected(nodeID, term)
}
