package task

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroswarm/internal/errs"
	"neuroswarm/internal/store"
)

func newTestCatalog(t *testing.T) (*Catalog, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewCatalog(st, 5, 10), st
}

func TestCatalogColdStart(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	require.NoError(t, cat.ColdStart(ctx))
	tasks, err := cat.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 10)
}

func TestCatalogReplenishOnlyBelowFloor(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	// Below the floor of 5, each tick adds one task.
	for i := 0; i < 3; i++ {
		require.NoError(t, cat.Replenish(ctx))
	}
	tasks, err := cat.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	require.NoError(t, cat.Replenish(ctx))
	require.NoError(t, cat.Replenish(ctx))
	tasks, err = cat.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 5)

	// At the floor the pool stops growing.
	require.NoError(t, cat.Replenish(ctx))
	tasks, err = cat.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
}

func TestCatalogAssignLifecycle(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	created, err := cat.Create(ctx)
	require.NoError(t, err)

	assigned, err := cat.TryAssign(ctx, created.ID, "node-1")
	require.NoError(t, err)
	assert.Equal(t, StateAssigned, assigned.State)
	assert.Equal(t, "node-1", assigned.AssignedTo)

	// The pool no longer offers it.
	available, err := cat.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, available)

	result := json.RawMessage(`[[1,2],[3,4]]`)
	completed, err := cat.Complete(ctx, created.ID, result)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, completed.State)
	assert.Equal(t, result, completed.Result)
	assert.False(t, completed.CompletedAt.IsZero())
}

func TestCatalogTryAssignTakenTask(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	created, err := cat.Create(ctx)
	require.NoError(t, err)
	_, err = cat.TryAssign(ctx, created.ID, "node-1")
	require.NoError(t, err)

	_, err = cat.TryAssign(ctx, created.ID, "node-2")
	assert.True(t, errs.Is(err, errs.KindConflict))
}

func TestCatalogTryAssignConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	created, err := cat.Create(ctx)
	require.NoError(t, err)

	const callers = 50
	var wg sync.WaitGroup
	winners := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			if _, err := cat.TryAssign(ctx, created.ID, node); err == nil {
				winners <- node
			}
		}(generateTaskID())
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	assert.Equal(t, 1, count, "a task is never observably assigned twice")
}

func TestCatalogCompleteRequiresAssigned(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	created, err := cat.Create(ctx)
	require.NoError(t, err)

	_, err = cat.Complete(ctx, created.ID, json.RawMessage(`[[1]]`))
	assert.True(t, errs.Is(err, errs.KindState))
}

func TestCatalogCompletedIsTerminal(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	created, err := cat.Create(ctx)
	require.NoError(t, err)
	_, err = cat.TryAssign(ctx, created.ID, "node-1")
	require.NoError(t, err)
	_, err = cat.Complete(ctx, created.ID, json.RawMessage(`[[1]]`))
	require.NoError(t, err)

	// No transition leaves COMPLETED.
	_, err = cat.TryAssign(ctx, created.ID, "node-2")
	assert.Error(t, err)
	_, err = cat.Requeue(ctx, created.ID)
	assert.Error(t, err)
	_, err = cat.Complete(ctx, created.ID, json.RawMessage(`[[2]]`))
	assert.Error(t, err)
}

func TestCatalogRecordFailureRequeuesPastBudget(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	created, err := cat.Create(ctx)
	require.NoError(t, err)
	_, err = cat.TryAssign(ctx, created.ID, "node-1")
	require.NoError(t, err)

	const budget = 3
	for i := 0; i < budget-1; i++ {
		updated, requeued, err := cat.RecordFailure(ctx, created.ID, budget)
		require.NoError(t, err)
		assert.False(t, requeued)
		assert.Equal(t, StateAssigned, updated.State)
		assert.Equal(t, i+1, updated.Failures)
	}

	updated, requeued, err := cat.RecordFailure(ctx, created.ID, budget)
	require.NoError(t, err)
	assert.True(t, requeued)
	assert.Equal(t, StateAvailable, updated.State)
	assert.Empty(t, updated.AssignedTo)
	assert.Zero(t, updated.Failures)

	available, err := cat.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
}

func TestCatalogRequeue(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	created, err := cat.Create(ctx)
	require.NoError(t, err)
	_, err = cat.TryAssign(ctx, created.ID, "node-1")
	require.NoError(t, err)

	requeued, err := cat.Requeue(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAvailable, requeued.State)
	assert.Empty(t, requeued.AssignedTo)

	available, err := cat.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
}

func TestCatalogListAssignedTo(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)

	first, err := cat.Create(ctx)
	require.NoError(t, err)
	second, err := cat.Create(ctx)
	require.NoError(t, err)
	_, err = cat.TryAssign(ctx, first.ID, "node-1")
	require.NoError(t, err)
	_, err = cat.TryAssign(ctx, second.ID, "node-2")
	require.NoError(t, err)

	held, err := cat.ListAssignedTo(ctx, "node-1")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, first.ID, held[0].ID)
}

func TestCatalogGetMissing(t *testing.T) {
	cat, _ := newTestCatalog(t)
	_, err := cat.Get(context.Background(), "nope")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}
