package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"neuroswarm/internal/errs"
	"neuroswarm/internal/store"
)

const (
	taskKeyPrefix = "task:"
	availableSet  = "tasks:available"
)

// Replenishment policy defaults, applied when the catalog is constructed
// with zero values.
const (
	DefaultPoolFloor      = 5
	DefaultColdStartBatch = 10
)

const casAttempts = 5

// Catalog is the exclusive owner of task records. State transitions are
// applied with compare-and-swap on the record version so a task can never be
// observably ASSIGNED to two nodes.
type Catalog struct {
	store          store.Store
	poolFloor      int
	coldStartBatch int
	log            *logrus.Entry

	now func() time.Time
}

// NewCatalog creates a catalog over the given store.
func NewCatalog(st store.Store, poolFloor, coldStartBatch int) *Catalog {
	if poolFloor <= 0 {
		poolFloor = DefaultPoolFloor
	}
	if coldStartBatch <= 0 {
		coldStartBatch = DefaultColdStartBatch
	}
	return &Catalog{
		store:          st,
		poolFloor:      poolFloor,
		coldStartBatch: coldStartBatch,
		log:            logrus.WithField("component", "catalog"),
		now:            time.Now,
	}
}

func taskKey(id string) string { return taskKeyPrefix + id }

// Create generates a task and adds it to the available pool.
func (c *Catalog) Create(ctx context.Context) (*Task, error) {
	t, err := Generate(c.now())
	if err != nil {
		return nil, err
	}
	if err := c.writeNew(ctx, t); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"task": t.ID, "type": t.Type}).Debug("task generated")
	return t, nil
}

// CreateOfType generates a task of a specific type and adds it to the pool.
func (c *Catalog) CreateOfType(ctx context.Context, taskType Type) (*Task, error) {
	t, err := GenerateOfType(taskType, c.now())
	if err != nil {
		return nil, err
	}
	if err := c.writeNew(ctx, t); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"task": t.ID, "type": t.Type}).Debug("task generated")
	return t, nil
}

// ColdStart pre-populates the pool with the configured initial batch.
func (c *Catalog) ColdStart(ctx context.Context) error {
	for i := 0; i < c.coldStartBatch; i++ {
		if _, err := c.Create(ctx); err != nil {
			return fmt.Errorf("cold-start generation: %w", err)
		}
	}
	return nil
}

// Replenish generates one task if the available pool has fallen below the
// floor. Called on the replenishment tick.
func (c *Catalog) Replenish(ctx context.Context) error {
	ids, err := c.store.SetMembers(ctx, availableSet)
	if err != nil {
		return err
	}
	if len(ids) >= c.poolFloor {
		return nil
	}
	_, err = c.Create(ctx)
	return err
}

// Get returns the task with the given id.
func (c *Catalog) Get(ctx context.Context, id string) (*Task, error) {
	t, _, err := c.read(ctx, id)
	return t, err
}

// ListAvailable returns AVAILABLE tasks ordered by creation time, oldest
// first. This ordering is the matcher's first-fit scan order.
func (c *Catalog) ListAvailable(ctx context.Context) ([]*Task, error) {
	ids, err := c.store.SetMembers(ctx, availableSet)
	if err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, _, err := c.read(ctx, id)
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				continue
			}
			return nil, err
		}
		// The set can lag the record; only the record's state is
		// authoritative.
		if t.State != StateAvailable {
			continue
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// TryAssign transitions a task AVAILABLE→ASSIGNED for the node. A Conflict
// error means another caller claimed it first; callers move on to the next
// candidate.
func (c *Catalog) TryAssign(ctx context.Context, id, nodeID string) (*Task, error) {
	t, err := c.transition(ctx, id, func(t *Task) error {
		if t.State != StateAvailable {
			return errs.Conflict("task %s is %s", id, t.State)
		}
		t.State = StateAssigned
		t.AssignedTo = nodeID
		t.AssignedAt = c.now()
		t.Failures = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.store.SetRemove(ctx, availableSet, id); err != nil {
		return nil, fmt.Errorf("removing task %s from pool: %w", id, err)
	}
	return t, nil
}

// Complete transitions a task ASSIGNED→COMPLETED and records the result.
func (c *Catalog) Complete(ctx context.Context, id string, result json.RawMessage) (*Task, error) {
	return c.transition(ctx, id, func(t *Task) error {
		if t.State != StateAssigned {
			return errs.State("task %s is %s, not ASSIGNED", id, t.State)
		}
		t.State = StateCompleted
		t.Result = result
		t.CompletedAt = c.now()
		return nil
	})
}

// RecordFailure counts a rejected submission against the task. Once the
// budget is exhausted the task returns to the pool with assignee cleared and
// the second return value is true.
func (c *Catalog) RecordFailure(ctx context.Context, id string, budget int) (*Task, bool, error) {
	requeued := false
	t, err := c.transition(ctx, id, func(t *Task) error {
		if t.State != StateAssigned {
			return errs.State("task %s is %s, not ASSIGNED", id, t.State)
		}
		t.Failures++
		if t.Failures >= budget {
			t.State = StateAvailable
			t.AssignedTo = ""
			t.AssignedAt = time.Time{}
			t.Failures = 0
			requeued = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if requeued {
		if err := c.store.SetAdd(ctx, availableSet, id); err != nil {
			return nil, false, fmt.Errorf("requeueing task %s: %w", id, err)
		}
		c.log.WithField("task", id).Info("task requeued after exhausting retries")
	}
	return t, requeued, nil
}

// Requeue reverts an ASSIGNED task to AVAILABLE with assignee cleared. Used
// when the assignee goes dark so no task stays pinned to a dead node.
func (c *Catalog) Requeue(ctx context.Context, id string) (*Task, error) {
	t, err := c.transition(ctx, id, func(t *Task) error {
		if t.State != StateAssigned {
			return errs.State("task %s is %s, not ASSIGNED", id, t.State)
		}
		t.State = StateAvailable
		t.AssignedTo = ""
		t.AssignedAt = time.Time{}
		t.Failures = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.store.SetAdd(ctx, availableSet, id); err != nil {
		return nil, fmt.Errorf("requeueing task %s: %w", id, err)
	}
	return t, nil
}

// ListAssignedTo returns the ASSIGNED tasks held by a node.
func (c *Catalog) ListAssignedTo(ctx context.Context, nodeID string) ([]*Task, error) {
	keys, err := c.store.Keys(ctx, taskKeyPrefix)
	if err != nil {
		return nil, err
	}

	var tasks []*Task
	for _, key := range keys {
		t, _, err := c.read(ctx, key[len(taskKeyPrefix):])
		if err != nil {
			continue
		}
		if t.State == StateAssigned && t.AssignedTo == nodeID {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (c *Catalog) read(ctx context.Context, id string) (*Task, int64, error) {
	rec, err := c.store.Get(ctx, taskKey(id))
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, 0, errs.NotFound("task %s", id)
		}
		return nil, 0, err
	}
	var t Task
	if err := json.Unmarshal(rec.Value, &t); err != nil {
		return nil, 0, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &t, rec.Version, nil
}

func (c *Catalog) writeNew(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", t.ID, err)
	}
	if _, err := c.store.Put(ctx, taskKey(t.ID), data); err != nil {
		return fmt.Errorf("storing task %s: %w", t.ID, err)
	}
	if err := c.store.SetAdd(ctx, availableSet, t.ID); err != nil {
		return fmt.Errorf("pooling task %s: %w", t.ID, err)
	}
	return nil
}

// transition applies fn under compare-and-swap. Version conflicts re-read
// and re-apply; domain errors from fn surface unchanged, so an already-taken
// task fails fast rather than spinning.
func (c *Catalog) transition(ctx context.Context, id string, fn func(*Task) error) (*Task, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		t, version, err := c.read(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}

		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encoding task %s: %w", id, err)
		}
		_, err = c.store.CompareAndSwap(ctx, taskKey(id), data, version)
		if err == nil {
			return t, nil
		}
		if !errs.Is(err, errs.KindConflict) {
			return nil, err
		}
	}
	return nil, errs.Conflict("task %s contended beyond retry budget", id)
}
