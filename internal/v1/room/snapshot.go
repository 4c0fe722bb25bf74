package room

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/metrics"
	"github.com/lumaboard/whiteboard/internal/v1/store"
)

// Snapshot cadence. A snapshot is taken after SnapshotOpInterval persisted
// ops or SnapshotTimeInterval of wall time since the last one, whichever
// comes first, never more often than SnapshotMinRetry and never with one
// already in flight.
const (
	SnapshotOpInterval   = 50
	SnapshotTimeInterval = 10 * time.Second
	SnapshotMinRetry     = 5 * time.Second
)

// maybeSnapshotLocked starts a snapshot if the cadence says so. Caller holds
// r.mu. The write itself runs off the lock; ops keep flowing while it does.
func (r *Room) maybeSnapshotLocked(ctx context.Context) {
	if !r.shouldSnapshotLocked(r.now()) {
		return
	}
	r.startSnapshotLocked(context.WithoutCancel(ctx))
}

func (r *Room) shouldSnapshotLocked(now time.Time) bool {
	if r.snapshotInFlight || !r.loaded {
		return false
	}
	if r.seq <= r.lastSnapshotSeq {
		return false
	}
	if !r.lastSnapshotTry.IsZero() && now.Sub(r.lastSnapshotTry) < SnapshotMinRetry {
		return false
	}
	opsSince := r.seq - r.lastSnapshotSeq
	return opsSince >= SnapshotOpInterval || now.Sub(r.lastSnapshotAt) >= SnapshotTimeInterval
}

// startSnapshotLocked captures the sanitized state and seq under the lock,
// then persists in a goroutine. Failures are logged and counted but never
// surface to clients; the next cadence tick retries.
func (r *Room) startSnapshotLocked(ctx context.Context) {
	seq := r.seq
	state := r.state.Sanitized()
	r.snapshotInFlight = true
	r.lastSnapshotTry = r.now()

	go func() {
		data, err := json.Marshal(state)
		if err == nil {
			err = r.store.InsertSnapshot(ctx, &store.Snapshot{
				BoardID: r.BoardID,
				Seq:     seq,
				State:   data,
			})
		}
		if err == nil {
			if upErr := r.store.UpdateBoardSnapshotSeq(ctx, r.BoardID, seq); upErr != nil {
				logging.Warn(ctx, "failed to update board snapshot seq",
					zap.String("board_id", r.BoardID),
					zap.Int64("seq", seq),
					zap.Error(upErr))
			}
		}

		r.mu.Lock()
		r.snapshotInFlight = false
		if err == nil {
			r.lastSnapshotSeq = seq
			r.lastSnapshotAt = r.now()
			metrics.SnapshotPersists.WithLabelValues("ok").Inc()
		} else {
			metrics.SnapshotPersists.WithLabelValues("error").Inc()
		}
		r.mu.Unlock()

		if err != nil {
			logging.Error(ctx, "snapshot persist failed",
				zap.String("board_id", r.BoardID),
				zap.Int64("seq", seq),
				zap.Error(err))
		}
	}()
}
