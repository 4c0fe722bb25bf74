package store

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/logging"
)

// BreakerStore wraps a Store with a circuit breaker on the write path. When
// Supabase is struggling, snapshot writes fail fast instead of piling up
// behind timeouts; reads pass through untouched so joins keep working as
// long as the database answers.
type BreakerStore struct {
	Store
	cb *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps the inner store. The breaker opens after five
// consecutive write failures and probes again after 30 seconds.
func NewBreakerStore(inner Store) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "supabase-writes",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn(context.Background(), "circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerStore{Store: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// InsertSnapshot persists a snapshot through the breaker.
func (b *BreakerStore) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.Store.InsertSnapshot(ctx, snap)
	})
	return err
}

// UpdateBoardSnapshotSeq updates the board row through the breaker.
func (b *BreakerStore) UpdateBoardSnapshotSeq(ctx context.Context, boardID string, seq int64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.Store.UpdateBoardSnapshotSeq(ctx, boardID, seq)
	})
	return err
}
