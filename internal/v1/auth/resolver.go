package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/types"
)

// Resolution failures. The room maps these onto wire error codes: bad or
// unverifiable credentials become "unauthorized", a valid identity without
// access becomes "forbidden", and a missing board becomes "not_found".
var (
	ErrBoardNotFound = errors.New("board not found")
	ErrBadToken      = errors.New("token could not be verified")
	ErrNotOwner      = errors.New("authenticated user does not own this board")
	ErrInviteInvalid = errors.New("invite token is unknown, revoked, or expired")
)

// BoardDirectory is the slice of the persistence layer the resolver needs.
type BoardDirectory interface {
	// LoadBoardOwner returns the owner user id for the board, or
	// ErrBoardNotFound.
	LoadBoardOwner(ctx context.Context, boardID string) (string, error)
	// LoadInviteByHash returns the role and optional expiry for an active
	// invite, or ErrInviteInvalid when no usable invite matches.
	LoadInviteByHash(ctx context.Context, boardID, tokenHash string) (types.RoleType, *time.Time, error)
}

// Identity is the authenticated result of a join attempt.
type Identity struct {
	UserID string
	Role   types.RoleType
	// Guest is true for invite sessions; UserID is then the client-supplied
	// or generated guest id rather than a Supabase user id.
	Guest bool
}

// Resolver turns join credentials into a board role.
type Resolver struct {
	verifier TokenVerifier
	boards   BoardDirectory
	now      func() time.Time
}

// NewResolver builds a Resolver over the given verifier and board directory.
func NewResolver(verifier TokenVerifier, boards BoardDirectory) *Resolver {
	return &Resolver{verifier: verifier, boards: boards, now: time.Now}
}

// ResolveOwner verifies a Supabase JWT and checks that its subject owns the
// board. The only role this path can grant is owner.
func (r *Resolver) ResolveOwner(ctx context.Context, boardID, tokenString string) (*Identity, error) {
	claims, err := r.verifier.VerifyToken(tokenString)
	if err != nil {
		logging.Warn(ctx, "owner token rejected",
			zap.String("board_id", boardID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}

	ownerID, err := r.boards.LoadBoardOwner(ctx, boardID)
	if err != nil {
		return nil, err
	}

	if ownerID != claims.Subject {
		logging.Warn(ctx, "owner join refused for non-owner",
			zap.String("board_id", boardID),
			zap.String("user_id", claims.Subject))
		return nil, ErrNotOwner
	}

	return &Identity{UserID: claims.Subject, Role: types.RoleTypeOwner}, nil
}

// ResolveInvite normalizes and hashes the presented token and looks up an
// active invite for the board. Revoked and expired invites resolve to
// ErrInviteInvalid, indistinguishable from an unknown token.
func (r *Resolver) ResolveInvite(ctx context.Context, boardID, rawToken, guestID string) (*Identity, error) {
	token := NormalizeInviteToken(rawToken)
	if token == "" {
		return nil, ErrInviteInvalid
	}

	role, expiresAt, err := r.boards.LoadInviteByHash(ctx, boardID, HashInviteToken(token))
	if err != nil {
		return nil, err
	}

	if expiresAt != nil && !expiresAt.After(r.now()) {
		logging.Info(ctx, "expired invite presented",
			zap.String("board_id", boardID))
		return nil, ErrInviteInvalid
	}

	if role != types.RoleTypeEditor && role != types.RoleTypeViewer {
		return nil, ErrInviteInvalid
	}

	return &Identity{UserID: guestID, Role: role, Guest: true}, nil
}
