// Package matcher pairs available tasks with eligible idle nodes and settles
// completed work.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"neuroswarm/internal/errs"
	"neuroswarm/internal/ledger"
	"neuroswarm/internal/registry"
	"neuroswarm/internal/store"
	"neuroswarm/internal/task"
)

// DefaultRetryBudget is how many rejected submissions a task absorbs before
// it returns to the pool.
const DefaultRetryBudget = 3

const historyListPrefix = "history:"

// Events receives task lifecycle notifications. Implementations must not
// block; a nil Events is valid.
type Events interface {
	TaskAssigned(t *task.Task)
	TaskCompleted(t *task.Task, wallet string)
	TaskRequeued(t *task.Task)
}

// Matcher coordinates the registry, catalog, and ledger. It holds no state
// of its own; every transition is applied through the owning component.
type Matcher struct {
	registry *registry.Registry
	catalog  *task.Catalog
	ledger   *ledger.Ledger
	store    store.Store
	events   Events
	budget   int
	log      *logrus.Entry
}

// New creates a matcher. events may be nil.
func New(reg *registry.Registry, cat *task.Catalog, led *ledger.Ledger, st store.Store, events Events, retryBudget int) *Matcher {
	if retryBudget <= 0 {
		retryBudget = DefaultRetryBudget
	}
	return &Matcher{
		registry: reg,
		catalog:  cat,
		ledger:   led,
		store:    st,
		events:   events,
		budget:   retryBudget,
		log:      logrus.WithField("component", "matcher"),
	}
}

// AssignNext scans AVAILABLE tasks in creation order and claims the first
// whose requirements the node satisfies. First-fit, not best-fit: latency
// over optimal packing. Returns (nil, nil) with no side effect when the node
// is ineligible or nothing qualifies.
func (m *Matcher) AssignNext(ctx context.Context, nodeID string) (*task.Task, error) {
	node, err := m.registry.Get(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Status != registry.StatusOnline || node.CurrentTask != "" {
		return nil, nil
	}

	candidates, err := m.catalog.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range candidates {
		if node.ComputeUnits < t.Requirements.MinCompute || node.Memory < t.Requirements.MinMemory {
			continue
		}

		claimed, err := m.catalog.TryAssign(ctx, t.ID, nodeID)
		if err != nil {
			if errs.Is(err, errs.KindConflict) || errs.Is(err, errs.KindNotFound) {
				// Another caller got there first; keep scanning.
				continue
			}
			return nil, err
		}

		if _, err := m.registry.AssignTask(ctx, nodeID, claimed.ID); err != nil {
			// The node raced into a task or went offline between the
			// eligibility check and the claim. Undo the claim.
			if _, rqErr := m.catalog.Requeue(ctx, claimed.ID); rqErr != nil {
				m.log.WithError(rqErr).WithField("task", claimed.ID).Error("failed to undo claim")
			}
			if errs.Is(err, errs.KindConflict) {
				return nil, nil
			}
			return nil, err
		}

		m.log.WithFields(logrus.Fields{
			"task": claimed.ID,
			"node": nodeID,
			"type": claimed.Type,
		}).Info("task assigned")
		if m.events != nil {
			m.events.TaskAssigned(claimed)
		}
		return claimed, nil
	}

	return nil, nil
}

// SubmitResult settles a completed task: it authorizes the submitting
// wallet, validates the result shape, appends the reward, and updates the
// node's counters. Rejected results count against the task's retry budget;
// past the budget the task returns to the pool and the attempt is recorded
// as a failure.
func (m *Matcher) SubmitResult(ctx context.Context, taskID string, result json.RawMessage, wallet string) (*ledger.Entry, error) {
	t, err := m.catalog.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.State != task.StateAssigned {
		return nil, errs.State("task %s is %s, not ASSIGNED", taskID, t.State)
	}

	node, err := m.registry.Get(ctx, t.AssignedTo)
	if err != nil {
		return nil, err
	}
	if node.WalletAddress != wallet {
		return nil, errs.Authorization("wallet %s does not own the assignment for task %s", wallet, taskID)
	}

	if err := task.ValidateResult(t.Type, result); err != nil {
		if failErr := m.recordRejected(ctx, t, node.ID); failErr != nil {
			m.log.WithError(failErr).WithField("task", taskID).Error("failed to record rejected submission")
		}
		return nil, err
	}

	completed, err := m.catalog.Complete(ctx, taskID, result)
	if err != nil {
		return nil, err
	}

	entry, err := m.ledger.Append(ctx, wallet, taskID, completed.Reward)
	if err != nil {
		return nil, fmt.Errorf("recording reward for task %s: %w", taskID, err)
	}
	if _, err := m.registry.CompleteTask(ctx, node.ID, taskID, true); err != nil {
		return nil, fmt.Errorf("completing task %s on node %s: %w", taskID, node.ID, err)
	}
	if _, err := m.registry.AddEarnings(ctx, node.ID, completed.Reward); err != nil {
		return nil, fmt.Errorf("crediting node %s: %w", node.ID, err)
	}
	if err := m.appendHistory(ctx, node.ID, completed); err != nil {
		m.log.WithError(err).WithField("node", node.ID).Warn("failed to append task history")
	}

	if m.events != nil {
		m.events.TaskCompleted(completed, wallet)
	}
	return entry, nil
}

// recordRejected counts a failed submission and, once the budget is spent,
// requeues the task and releases the node with success=false.
func (m *Matcher) recordRejected(ctx context.Context, t *task.Task, nodeID string) error {
	updated, requeued, err := m.catalog.RecordFailure(ctx, t.ID, m.budget)
	if err != nil {
		return err
	}
	if !requeued {
		return nil
	}
	if _, err := m.registry.CompleteTask(ctx, nodeID, t.ID, false); err != nil {
		return err
	}
	if m.events != nil {
		m.events.TaskRequeued(updated)
	}
	return nil
}

// Reclaim reverts every ASSIGNED task held by the given nodes, typically the
// output of a liveness sweep. A task is never left pinned to a dead node.
func (m *Matcher) Reclaim(ctx context.Context, nodeIDs []string) (int, error) {
	reclaimed := 0
	for _, nodeID := range nodeIDs {
		held, err := m.catalog.ListAssignedTo(ctx, nodeID)
		if err != nil {
			return reclaimed, err
		}
		for _, t := range held {
			requeued, err := m.catalog.Requeue(ctx, t.ID)
			if err != nil {
				if errs.Is(err, errs.KindState) {
					continue
				}
				return reclaimed, err
			}
			if err := m.registry.ReleaseTask(ctx, nodeID, t.ID); err != nil {
				m.log.WithError(err).WithField("node", nodeID).Warn("failed to release reclaimed task")
			}
			reclaimed++
			m.log.WithFields(logrus.Fields{"task": t.ID, "node": nodeID}).Info("task reclaimed from stale node")
			if m.events != nil {
				m.events.TaskRequeued(requeued)
			}
		}
	}
	return reclaimed, nil
}

// TaskHistoryFor returns the completed-task history recorded for a node.
func (m *Matcher) TaskHistoryFor(ctx context.Context, nodeID string) ([]HistoryEntry, error) {
	raws, err := m.store.ListRange(ctx, historyListPrefix+nodeID)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(raws))
	for _, raw := range raws {
		var entry HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// HistoryEntry is one completed task in a node's history list.
type HistoryEntry struct {
	TaskID      string    `json:"task_id"`
	Type        task.Type `json:"type"`
	Reward      float64   `json:"reward"`
	CompletedAt string    `json:"completed_at"`
}

func (m *Matcher) appendHistory(ctx context.Context, nodeID string, t *task.Task) error {
	entry := HistoryEntry{
		TaskID:      t.ID,
		Type:        t.Type,
		Reward:      t.Reward,
		CompletedAt: t.CompletedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return m.store.ListAppend(ctx, historyListPrefix+nodeID, data)
}
