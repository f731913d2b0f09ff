// Package ledger records completed-task payouts per wallet. The ledger is
// append-only: no update or delete path exists.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"neuroswarm/internal/store"
)

const rewardListPrefix = "rewards:"

// Entry is one payout record. Exactly one entry exists per completed task.
type Entry struct {
	WalletAddress string    `json:"wallet_address"`
	TaskID        string    `json:"task_id"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// Ledger owns reward entries.
type Ledger struct {
	store store.Store
	log   *logrus.Entry

	now func() time.Time
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{
		store: st,
		log:   logrus.WithField("component", "ledger"),
		now:   time.Now,
	}
}

func rewardList(wallet string) string { return rewardListPrefix + wallet }

// Append records a payout.
func (l *Ledger) Append(ctx context.Context, wallet, taskID string, amount float64) (*Entry, error) {
	entry := &Entry{
		WalletAddress: wallet,
		TaskID:        taskID,
		Amount:        amount,
		Timestamp:     l.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding reward entry: %w", err)
	}
	if err := l.store.ListAppend(ctx, rewardList(wallet), data); err != nil {
		return nil, fmt.Errorf("appending reward entry: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"wallet": wallet,
		"task":   taskID,
		"amount": amount,
	}).Info("reward recorded")

	return entry, nil
}

// HistoryFor returns every payout for a wallet in append order.
func (l *Ledger) HistoryFor(ctx context.Context, wallet string) ([]Entry, error) {
	raws, err := l.store.ListRange(ctx, rewardList(wallet))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decoding reward entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// TotalFor sums all payouts for a wallet.
func (l *Ledger) TotalFor(ctx context.Context, wallet string) (float64, error) {
	entries, err := l.HistoryFor(ctx, wallet)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, entry := range entries {
		total += entry.Amount
	}
	return total, nil
}
