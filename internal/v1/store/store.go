package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lumaboard/whiteboard/internal/v1/types"
)

// BoardInfo is the boards-table row the room needs to open a board.
// SnapshotSeq is the highest seq ever persisted for the board; the room must
// never issue seqs at or below it, even when the snapshot row itself is gone.
type BoardInfo struct {
	ID          string
	OwnerID     string
	Name        string
	BoardType   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SnapshotSeq int64
}

// Snapshot is one persisted board snapshot. State is the sanitized board
// state as JSON.
type Snapshot struct {
	BoardID   string
	Seq       int64
	State     json.RawMessage
	CreatedAt time.Time
}

// Store is the persistence surface of the service. Implementations must be
// safe for concurrent use.
type Store interface {
	// LoadBoardInfo returns the board row, or auth.ErrBoardNotFound.
	LoadBoardInfo(ctx context.Context, boardID string) (*BoardInfo, error)

	// LoadBoardOwner returns just the owner id, or auth.ErrBoardNotFound.
	LoadBoardOwner(ctx context.Context, boardID string) (string, error)

	// LoadInviteByHash returns the role and optional expiry of an active
	// invite matching the token hash, or auth.ErrInviteInvalid.
	LoadInviteByHash(ctx context.Context, boardID, tokenHash string) (types.RoleType, *time.Time, error)

	// LoadLatestSnapshot returns the highest-seq snapshot for the board, or
	// nil when the board has never been snapshotted.
	LoadLatestSnapshot(ctx context.Context, boardID string) (*Snapshot, error)

	// InsertSnapshot persists a new snapshot row.
	InsertSnapshot(ctx context.Context, snap *Snapshot) error

	// UpdateBoardSnapshotSeq records the latest persisted seq on the board
	// row so cold reads can skip older snapshots.
	UpdateBoardSnapshotSeq(ctx context.Context, boardID string, seq int64) error

	// Ping verifies connectivity for readiness checks.
	Ping(ctx context.Context) error
}
