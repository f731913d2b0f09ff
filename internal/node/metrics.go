package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the coordination core
type Metrics struct {
	OnlineNodes       prometheus.Gauge
	AvailableTasks    prometheus.Gauge
	AssignedTasks     prometheus.Gauge
	TasksCompleted    prometheus.Counter
	TasksRequeued     prometheus.Counter
	RewardsPaid       prometheus.Counter
	SwarmMembers      prometheus.Gauge
	AssignmentLatency prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		OnlineNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuroswarm_online_nodes",
			Help: "Number of nodes currently ONLINE",
		}),
		AvailableTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuroswarm_available_tasks",
			Help: "Number of tasks in the available pool",
		}),
		AssignedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuroswarm_assigned_tasks",
			Help: "Number of tasks currently assigned",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neuroswarm_tasks_completed_total",
			Help: "Total tasks completed successfully",
		}),
		TasksRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neuroswarm_tasks_requeued_total",
			Help: "Total tasks returned to the pool after failures",
		}),
		RewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neuroswarm_rewards_paid_total",
			Help: "Total reward amount paid out",
		}),
		SwarmMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuroswarm_swarm_members",
			Help: "Number of admitted swarm members",
		}),
		AssignmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "neuroswarm_assignment_latency_seconds",
			Help:    "Seconds between task creation and assignment",
			Buckets: prometheus.DefBuckets,
		}),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.OnlineNodes,
		m.AvailableTasks,
		m.AssignedTasks,
		m.TasksCompleted,
		m.TasksRequeued,
		m.RewardsPaid,
		m.SwarmMembers,
		m.AssignmentLatency,
	)

	return m
}

// Close unregisters all metrics
func (m *Metrics) Close() {
	prometheus.Unregister(m.OnlineNodes)
	prometheus.Unregister(m.AvailableTasks)
	prometheus.Unregister(m.AssignedTasks)
	prometheus.Unregister(m.TasksCompleted)
	prometheus.Unregister(m.TasksRequeued)
	prometheus.Unregister(m.RewardsPaid)
	prometheus.Unregister(m.SwarmMembers)
	prometheus.Unregister(m.AssignmentLatency)
}
