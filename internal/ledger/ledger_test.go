package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroswarm/internal/store"
)

func TestLedgerAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := l.Append(ctx, "wallet-1", "task-a", 0.25)
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", first.WalletAddress)
	assert.Equal(t, 0.25, first.Amount)

	_, err = l.Append(ctx, "wallet-1", "task-b", 0.4)
	require.NoError(t, err)

	history, err := l.HistoryFor(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "task-a", history[0].TaskID)
	assert.Equal(t, "task-b", history[1].TaskID)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))
}

func TestLedgerTotalMatchesHistory(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	amounts := []float64{0.1, 0.35, 0.6, 0.1234}
	var want float64
	for i, amount := range amounts {
		_, err := l.Append(ctx, "wallet-1", "task-"+string(rune('a'+i)), amount)
		require.NoError(t, err)
		want += amount
	}

	total, err := l.TotalFor(ctx, "wallet-1")
	require.NoError(t, err)
	assert.InDelta(t, want, total, 1e-9)
}

func TestLedgerWalletsAreIsolated(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	_, err := l.Append(ctx, "wallet-1", "task-a", 0.5)
	require.NoError(t, err)

	history, err := l.HistoryFor(ctx, "wallet-2")
	require.NoError(t, err)
	assert.Empty(t, history)

	total, err := l.TotalFor(ctx, "wallet-2")
	require.NoError(t, err)
	assert.Zero(t, total)
}
