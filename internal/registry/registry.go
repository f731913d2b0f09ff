package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"neuroswarm/internal/capability"
	"neuroswarm/internal/errs"
	"neuroswarm/internal/store"
)

const (
	nodeKeyPrefix   = "node:"
	walletSetPrefix = "wallet:"
	nodeIndexSet    = "nodes:all"

	// casAttempts bounds the optimistic-concurrency retry loop for
	// single-record mutations.
	casAttempts = 5
)

// DefaultLivenessThreshold is how stale a node's last-seen may be before the
// sweep marks it OFFLINE.
const DefaultLivenessThreshold = 5 * time.Minute

// generateNodeID creates a random 16-byte node identifier.
func generateNodeID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Registry is the exclusive owner of node records. All mutation goes through
// its API; the only time-driven mutation is the liveness sweep.
type Registry struct {
	store    store.Store
	liveness time.Duration
	log      *logrus.Entry

	now func() time.Time
}

// New creates a registry over the given store.
func New(st store.Store, liveness time.Duration) *Registry {
	if liveness <= 0 {
		liveness = DefaultLivenessThreshold
	}
	return &Registry{
		store:    st,
		liveness: liveness,
		log:      logrus.WithField("component", "registry"),
		now:      time.Now,
	}
}

func nodeKey(id string) string       { return nodeKeyPrefix + id }
func walletSet(wallet string) string { return walletSetPrefix + wallet }

// Register creates a node for the wallet, scoring the reported hardware.
func (r *Registry) Register(ctx context.Context, wallet string, spec *capability.HardwareSpec) (*Node, error) {
	if wallet == "" {
		return nil, errs.Validation("wallet address is required")
	}

	units, tier := capability.Score(spec)
	now := r.now()

	node := &Node{
		ID:            generateNodeID(),
		WalletAddress: wallet,
		ComputeUnits:  units,
		Tier:          tier,
		Memory:        capability.MemoryOf(spec),
		Hardware:      spec,
		Status:        StatusOnline,
		RegisteredAt:  now,
		LastSeen:      now,
		SuccessRate:   100,
	}

	if err := r.writeNode(ctx, node); err != nil {
		return nil, err
	}
	if err := r.store.SetAdd(ctx, walletSet(wallet), node.ID); err != nil {
		return nil, fmt.Errorf("indexing node by wallet: %w", err)
	}
	if err := r.store.SetAdd(ctx, nodeIndexSet, node.ID); err != nil {
		return nil, fmt.Errorf("indexing node: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"node":   node.ID,
		"wallet": wallet,
		"tier":   tier,
		"units":  units,
	}).Info("node registered")

	return node, nil
}

// Get returns the node with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*Node, error) {
	node, _, err := r.readNode(ctx, id)
	return node, err
}

// Heartbeat refreshes liveness, accumulating uptime since the previous
// last-seen. Repeated heartbeats only move last-seen; counters are untouched.
func (r *Registry) Heartbeat(ctx context.Context, id string) (*Node, error) {
	return r.mutate(ctx, id, func(node *Node) error {
		now := r.now()
		if elapsed := now.Sub(node.LastSeen); elapsed > 0 {
			node.UptimeSeconds += int64(elapsed.Seconds())
		}
		node.LastSeen = now
		node.Status = StatusOnline
		return nil
	})
}

// MarkOffline sets a node OFFLINE. Idempotent; counters survive.
func (r *Registry) MarkOffline(ctx context.Context, id string) error {
	_, err := r.mutate(ctx, id, func(node *Node) error {
		node.Status = StatusOffline
		return nil
	})
	return err
}

// AssignTask records that a node picked up a task. Fails with a Conflict
// error if the node is not ONLINE or is already busy, so two concurrent
// assignments can never both land.
func (r *Registry) AssignTask(ctx context.Context, id, taskID string) (*Node, error) {
	return r.mutate(ctx, id, func(node *Node) error {
		if node.Status != StatusOnline {
			return errs.Conflict("node %s is not online", id)
		}
		if node.CurrentTask != "" {
			return errs.Conflict("node %s already holds task %s", id, node.CurrentTask)
		}
		node.CurrentTask = taskID
		node.TasksAttempted++
		node.SuccessRate = node.successRate()
		node.LastTaskAssigned = r.now()
		return nil
	})
}

// CompleteTask clears the node's current assignment and updates counters.
func (r *Registry) CompleteTask(ctx context.Context, id, taskID string, success bool) (*Node, error) {
	return r.mutate(ctx, id, func(node *Node) error {
		if node.CurrentTask != taskID {
			return errs.State("node %s does not hold task %s", id, taskID)
		}
		node.CurrentTask = ""
		if success {
			node.TasksCompleted++
		}
		node.SuccessRate = node.successRate()
		node.LastTaskCompleted = r.now()
		return nil
	})
}

// AddEarnings credits a completed-task reward to the node. The ledger is the
// system of record for payouts; the node field is a running total.
func (r *Registry) AddEarnings(ctx context.Context, id string, amount float64) (*Node, error) {
	if amount < 0 {
		return nil, errs.Validation("earnings amount must be non-negative")
	}
	return r.mutate(ctx, id, func(node *Node) error {
		node.Earnings += amount
		return nil
	})
}

// ReleaseTask clears a node's current assignment without touching the
// completion counters. Used when a task is reclaimed from a dead node.
func (r *Registry) ReleaseTask(ctx context.Context, id, taskID string) error {
	_, err := r.mutate(ctx, id, func(node *Node) error {
		if node.CurrentTask == taskID {
			node.CurrentTask = ""
		}
		return nil
	})
	return err
}

// ListByWallet returns every node owned by the wallet.
func (r *Registry) ListByWallet(ctx context.Context, wallet string) ([]*Node, error) {
	ids, err := r.store.SetMembers(ctx, walletSet(wallet))
	if err != nil {
		return nil, err
	}
	return r.readNodes(ctx, ids)
}

// ListAll returns every registered node.
func (r *Registry) ListAll(ctx context.Context) ([]*Node, error) {
	ids, err := r.store.SetMembers(ctx, nodeIndexSet)
	if err != nil {
		return nil, err
	}
	return r.readNodes(ctx, ids)
}

// SweepOffline marks every node whose last-seen exceeds the liveness
// threshold OFFLINE and returns their ids so held tasks can be reclaimed.
func (r *Registry) SweepOffline(ctx context.Context) ([]string, error) {
	nodes, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-r.liveness)
	var swept []string
	for _, node := range nodes {
		if node.Status != StatusOnline || !node.LastSeen.Before(cutoff) {
			continue
		}
		if err := r.MarkOffline(ctx, node.ID); err != nil {
			r.log.WithError(err).WithField("node", node.ID).Warn("liveness sweep failed for node")
			continue
		}
		swept = append(swept, node.ID)
	}
	if len(swept) > 0 {
		r.log.WithField("count", len(swept)).Info("swept stale nodes offline")
	}
	return swept, nil
}

// readNode fetches and decodes a node record along with its store version.
func (r *Registry) readNode(ctx context.Context, id string) (*Node, int64, error) {
	rec, err := r.store.Get(ctx, nodeKey(id))
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, 0, errs.NotFound("node %s", id)
		}
		return nil, 0, err
	}
	var node Node
	if err := json.Unmarshal(rec.Value, &node); err != nil {
		return nil, 0, fmt.Errorf("decoding node %s: %w", id, err)
	}
	return &node, rec.Version, nil
}

func (r *Registry) readNodes(ctx context.Context, ids []string) ([]*Node, error) {
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		node, _, err := r.readNode(ctx, id)
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				continue
			}
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (r *Registry) writeNode(ctx context.Context, node *Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encoding node %s: %w", node.ID, err)
	}
	if _, err := r.store.Put(ctx, nodeKey(node.ID), data); err != nil {
		return fmt.Errorf("storing node %s: %w", node.ID, err)
	}
	return nil
}

// mutate applies fn to a node under optimistic concurrency. Version
// conflicts retry with a fresh read; domain errors from fn surface as-is.
func (r *Registry) mutate(ctx context.Context, id string, fn func(*Node) error) (*Node, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		node, version, err := r.readNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(node); err != nil {
			return nil, err
		}

		data, err := json.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("encoding node %s: %w", id, err)
		}
		_, err = r.store.CompareAndSwap(ctx, nodeKey(id), data, version)
		if err == nil {
			return node, nil
		}
		if !errs.Is(err, errs.KindConflict) {
			return nil, err
		}
	}
	return nil, errs.Conflict("node %s contended beyond retry budget", id)
}
