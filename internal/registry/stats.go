package registry

import (
	"context"

	"neuroswarm/internal/capability"
)

// Stats returns the per-node statistics view.
func (r *Registry) Stats(ctx context.Context, id string) (*NodeStats, error) {
	node, _, err := r.readNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return &NodeStats{
		ID:             node.ID,
		Tier:           node.Tier,
		Status:         node.Status,
		ComputeUnits:   node.ComputeUnits,
		UptimeSeconds:  node.UptimeSeconds,
		TasksAttempted: node.TasksAttempted,
		TasksCompleted: node.TasksCompleted,
		SuccessRate:    node.SuccessRate,
		Earnings:       node.Earnings,
		Hardware:       node.Hardware,
	}, nil
}

// NetworkStats aggregates over all nodes.
func (r *Registry) NetworkStats(ctx context.Context) (*NetworkStats, error) {
	nodes, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &NetworkStats{
		ByTier: map[capability.Tier]int{
			capability.TierSuperNode:       0,
			capability.TierHighPerformance: 0,
			capability.TierStandard:        0,
			capability.TierLight:           0,
		},
	}

	var attempted, completed int64
	for _, node := range nodes {
		stats.TotalNodes++
		stats.ByTier[node.Tier]++
		stats.TotalComputeUnits += node.ComputeUnits
		if node.Status == StatusOnline {
			stats.ActiveNodes++
		}
		if node.CurrentTask != "" {
			stats.ActiveTasks++
		}
		attempted += node.TasksAttempted
		completed += node.TasksCompleted
	}

	stats.TasksCompleted = completed
	if stats.TotalNodes > 0 {
		stats.AverageComputeUnits = stats.TotalComputeUnits / float64(stats.TotalNodes)
	}
	if stats.ActiveNodes > 0 {
		stats.NetworkLoad = float64(stats.ActiveTasks) / float64(stats.ActiveNodes) * 100
	}
	stats.SuccessRate = overallSuccessRate(attempted, completed)

	return stats, nil
}

// WalletStats aggregates over one wallet's nodes, including its share of
// network compute.
func (r *Registry) WalletStats(ctx context.Context, wallet string) (*WalletStats, error) {
	nodes, err := r.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	network, err := r.NetworkStats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &WalletStats{
		ByTier: map[capability.Tier]int{
			capability.TierSuperNode:       0,
			capability.TierHighPerformance: 0,
			capability.TierStandard:        0,
			capability.TierLight:           0,
		},
	}

	var attempted, completed int64
	for _, node := range nodes {
		stats.TotalNodes++
		stats.ByTier[node.Tier]++
		stats.TotalComputeUnits += node.ComputeUnits
		stats.TotalEarnings += node.Earnings
		if node.Status == StatusOnline {
			stats.ActiveNodes++
		}
		if node.CurrentTask != "" {
			stats.ActiveTasks++
		}
		attempted += node.TasksAttempted
		completed += node.TasksCompleted
	}

	stats.TasksCompleted = completed
	if network.TotalComputeUnits > 0 {
		stats.PowerShare = stats.TotalComputeUnits / network.TotalComputeUnits * 100
	}
	stats.SuccessRate = overallSuccessRate(attempted, completed)

	return stats, nil
}

func overallSuccessRate(attempted, completed int64) float64 {
	if attempted == 0 {
		return 100
	}
	return float64(completed) / float64(attempted) * 100
}
