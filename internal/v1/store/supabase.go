package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/auth"
	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/types"
)

// SupabaseStore implements Store over the Supabase PostgREST API using the
// service-role key. Row-level security is bypassed; all authorization happens
// in the auth resolver.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore creates a store backed by the given Supabase project.
func NewSupabaseStore(url, serviceRoleKey string) (*SupabaseStore, error) {
	if url == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("supabase url and service role key must be set")
	}

	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	return &SupabaseStore{client: client}, nil
}

type boardRow struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Title       string    `json:"title"`
	BoardType   string    `json:"board_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	SnapshotSeq int64     `json:"snapshot_seq"`
}

type inviteRow struct {
	BoardID   string     `json:"board_id"`
	TokenHash string     `json:"token_hash"`
	Role      string     `json:"role"`
	RevokedAt *time.Time `json:"revoked_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type snapshotRow struct {
	BoardID      string          `json:"board_id"`
	Seq          int64           `json:"seq"`
	SnapshotJSON json.RawMessage `json:"snapshot_json"`
	CreatedAt    time.Time       `json:"created_at,omitempty"`
}

// LoadBoardInfo returns the board row, or auth.ErrBoardNotFound.
func (s *SupabaseStore) LoadBoardInfo(ctx context.Context, boardID string) (*BoardInfo, error) {
	var rows []boardRow
	_, err := s.client.From("boards").
		Select("*", "", false).
		Eq("id", boardID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	if len(rows) == 0 {
		return nil, auth.ErrBoardNotFound
	}

	r := rows[0]
	return &BoardInfo{
		ID:          r.ID,
		OwnerID:     r.OwnerUserID,
		Name:        r.Title,
		BoardType:   r.BoardType,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		SnapshotSeq: r.SnapshotSeq,
	}, nil
}

// LoadBoardOwner returns just the owner id for auth checks.
func (s *SupabaseStore) LoadBoardOwner(ctx context.Context, boardID string) (string, error) {
	var rows []boardRow
	_, err := s.client.From("boards").
		Select("id,owner_user_id", "", false).
		Eq("id", boardID).
		ExecuteTo(&rows)
	if err != nil {
		return "", fmt.Errorf("failed to query boards: %w", err)
	}
	if len(rows) == 0 {
		return "", auth.ErrBoardNotFound
	}
	return rows[0].OwnerUserID, nil
}

// LoadInviteByHash looks up a non-revoked invite by its token hash. An
// unknown or revoked invite returns auth.ErrInviteInvalid; expiry is left to
// the resolver so it can use an injected clock.
func (s *SupabaseStore) LoadInviteByHash(ctx context.Context, boardID, tokenHash string) (types.RoleType, *time.Time, error) {
	var rows []inviteRow
	_, err := s.client.From("board_invites").
		Select("*", "", false).
		Eq("board_id", boardID).
		Eq("token_hash", tokenHash).
		Is("revoked_at", "null").
		ExecuteTo(&rows)
	if err != nil {
		return types.RoleTypeUnknown, nil, fmt.Errorf("failed to query board_invites: %w", err)
	}
	if len(rows) == 0 {
		return types.RoleTypeUnknown, nil, auth.ErrInviteInvalid
	}

	r := rows[0]
	return types.RoleType(r.Role), r.ExpiresAt, nil
}

// LoadLatestSnapshot returns the highest-seq snapshot, or nil when none
// exists yet.
func (s *SupabaseStore) LoadLatestSnapshot(ctx context.Context, boardID string) (*Snapshot, error) {
	var rows []snapshotRow
	_, err := s.client.From("board_snapshots").
		Select("*", "", false).
		Eq("board_id", boardID).
		Order("seq", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query board_snapshots: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	r := rows[0]
	return &Snapshot{
		BoardID:   r.BoardID,
		Seq:       r.Seq,
		State:     r.SnapshotJSON,
		CreatedAt: r.CreatedAt,
	}, nil
}

// InsertSnapshot persists a new snapshot row.
func (s *SupabaseStore) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	row := snapshotRow{
		BoardID:      snap.BoardID,
		Seq:          snap.Seq,
		SnapshotJSON: snap.State,
	}
	_, _, err := s.client.From("board_snapshots").
		Insert(row, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	logging.Info(ctx, "snapshot persisted",
		zap.String("board_id", snap.BoardID),
		zap.Int64("seq", snap.Seq))
	return nil
}

// UpdateBoardSnapshotSeq records the latest persisted seq on the board row.
func (s *SupabaseStore) UpdateBoardSnapshotSeq(ctx context.Context, boardID string, seq int64) error {
	update := map[string]interface{}{
		"snapshot_seq": seq,
		"updated_at":   time.Now().UTC(),
	}
	_, _, err := s.client.From("boards").
		Update(update, "", "").
		Eq("id", boardID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update board snapshot seq: %w", err)
	}
	return nil
}

// Ping issues a minimal query to verify connectivity.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	var rows []boardRow
	_, err := s.client.From("boards").
		Select("id", "", false).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("supabase ping failed: %w", err)
	}
	return nil
}
