// Package registry owns node identity, liveness, and assignment state.
package registry

import (
	"time"

	"neuroswarm/internal/capability"
)

// Status is a node's liveness state.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Node is a registered compute participant. Nodes are soft-lifecycle: they
// are marked OFFLINE when stale, never deleted.
type Node struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`

	ComputeUnits float64                  `json:"compute_units"`
	Tier         capability.Tier          `json:"tier"`
	Memory       float64                  `json:"memory"`
	Hardware     *capability.HardwareSpec `json:"hardware,omitempty"`

	Status      Status `json:"status"`
	CurrentTask string `json:"current_task,omitempty"`

	RegisteredAt  time.Time `json:"registered_at"`
	LastSeen      time.Time `json:"last_seen"`
	UptimeSeconds int64     `json:"uptime_seconds"`

	TasksAttempted int64   `json:"tasks_attempted"`
	TasksCompleted int64   `json:"tasks_completed"`
	SuccessRate    float64 `json:"success_rate"`
	Earnings       float64 `json:"earnings"`

	LastTaskAssigned  time.Time `json:"last_task_assigned,omitempty"`
	LastTaskCompleted time.Time `json:"last_task_completed,omitempty"`
}

// successRate recomputes the completion percentage, defined as 100 when no
// task has been attempted yet.
func (n *Node) successRate() float64 {
	if n.TasksAttempted == 0 {
		return 100
	}
	return float64(n.TasksCompleted) / float64(n.TasksAttempted) * 100
}

// NodeStats is the per-node view returned by Stats.
type NodeStats struct {
	ID             string                   `json:"id"`
	Tier           capability.Tier          `json:"tier"`
	Status         Status                   `json:"status"`
	ComputeUnits   float64                  `json:"compute_units"`
	UptimeSeconds  int64                    `json:"uptime_seconds"`
	TasksAttempted int64                    `json:"tasks_attempted"`
	TasksCompleted int64                    `json:"tasks_completed"`
	SuccessRate    float64                  `json:"success_rate"`
	Earnings       float64                  `json:"earnings"`
	Hardware       *capability.HardwareSpec `json:"hardware,omitempty"`
}

// NetworkStats aggregates over every registered node.
type NetworkStats struct {
	TotalNodes  int                     `json:"total_nodes"`
	ActiveNodes int                     `json:"active_nodes"`
	ByTier      map[capability.Tier]int `json:"by_tier"`

	TotalComputeUnits   float64 `json:"total_compute_units"`
	AverageComputeUnits float64 `json:"average_compute_units"`
	// NetworkLoad is active tasks per active node, as a percentage.
	NetworkLoad float64 `json:"network_load"`

	ActiveTasks    int64   `json:"active_tasks"`
	TasksCompleted int64   `json:"tasks_completed"`
	SuccessRate    float64 `json:"success_rate"`
}

// WalletStats aggregates over the nodes owned by one wallet.
type WalletStats struct {
	TotalNodes  int                     `json:"total_nodes"`
	ActiveNodes int                     `json:"active_nodes"`
	ByTier      map[capability.Tier]int `json:"by_tier"`

	TotalComputeUnits float64 `json:"total_compute_units"`
	// PowerShare is this wallet's fraction of network compute, as a
	// percentage.
	PowerShare float64 `json:"power_share"`

	ActiveTasks    int64   `json:"active_tasks"`
	TasksCompleted int64   `json:"tasks_completed"`
	SuccessRate    float64 `json:"success_rate"`
	TotalEarnings  float64 `json:"total_earnings"`
}
