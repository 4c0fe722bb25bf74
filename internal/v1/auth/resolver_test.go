package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaboard/whiteboard/internal/v1/types"
)

type fakeVerifier struct {
	subject string
	err     error
}

func (f *fakeVerifier) VerifyToken(string) (*SupabaseClaims, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &SupabaseClaims{}
	c.Subject = f.subject
	return c, nil
}

type fakeDirectory struct {
	owner     string
	ownerErr  error
	inviteRole types.RoleType
	inviteExp  *time.Time
	inviteErr  error
	// captures
	gotHash string
}

func (f *fakeDirectory) LoadBoardOwner(_ context.Context, _ string) (string, error) {
	return f.owner, f.ownerErr
}

func (f *fakeDirectory) LoadInviteByHash(_ context.Context, _ string, hash string) (types.RoleType, *time.Time, error) {
	f.gotHash = hash
	if f.inviteErr != nil {
		return types.RoleTypeUnknown, nil, f.inviteErr
	}
	return f.inviteRole, f.inviteExp, nil
}

func TestResolveOwner_Success(t *testing.T) {
	r := NewResolver(&fakeVerifier{subject: "user-1"}, &fakeDirectory{owner: "user-1"})

	ident, err := r.ResolveOwner(context.Background(), "board-1", "jwt")
	require.NoError(t, err)
	assert.Equal(t, "user-1", ident.UserID)
	assert.Equal(t, types.RoleTypeOwner, ident.Role)
	assert.False(t, ident.Guest)
}

func TestResolveOwner_BadToken(t *testing.T) {
	r := NewResolver(&fakeVerifier{err: errors.New("expired")}, &fakeDirectory{owner: "user-1"})

	_, err := r.ResolveOwner(context.Background(), "board-1", "jwt")
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestResolveOwner_NotOwner(t *testing.T) {
	r := NewResolver(&fakeVerifier{subject: "intruder"}, &fakeDirectory{owner: "user-1"})

	_, err := r.ResolveOwner(context.Background(), "board-1", "jwt")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestResolveOwner_BoardNotFound(t *testing.T) {
	r := NewResolver(&fakeVerifier{subject: "user-1"}, &fakeDirectory{ownerErr: ErrBoardNotFound})

	_, err := r.ResolveOwner(context.Background(), "board-1", "jwt")
	assert.ErrorIs(t, err, ErrBoardNotFound)
}

func TestResolveInvite_Success(t *testing.T) {
	dir := &fakeDirectory{inviteRole: types.RoleTypeEditor}
	r := NewResolver(&fakeVerifier{}, dir)

	ident, err := r.ResolveInvite(context.Background(), "board-1", "  tok-1 ", "guest-abc")
	require.NoError(t, err)
	assert.Equal(t, "guest-abc", ident.UserID)
	assert.Equal(t, types.RoleTypeEditor, ident.Role)
	assert.True(t, ident.Guest)

	// The directory only ever sees the hash of the normalized token.
	assert.Equal(t, HashInviteToken("tok-1"), dir.gotHash)
}

func TestResolveInvite_FromShareURL(t *testing.T) {
	dir := &fakeDirectory{inviteRole: types.RoleTypeViewer}
	r := NewResolver(&fakeVerifier{}, dir)

	ident, err := r.ResolveInvite(context.Background(), "board-1", "https://app.example.com/b/board-1?invite=tok-1", "g")
	require.NoError(t, err)
	assert.Equal(t, types.RoleTypeViewer, ident.Role)
	assert.Equal(t, HashInviteToken("tok-1"), dir.gotHash)
}

func TestResolveInvite_Unknown(t *testing.T) {
	r := NewResolver(&fakeVerifier{}, &fakeDirectory{inviteErr: ErrInviteInvalid})

	_, err := r.ResolveInvite(context.Background(), "board-1", "tok", "g")
	assert.ErrorIs(t, err, ErrInviteInvalid)
}

func TestResolveInvite_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	r := NewResolver(&fakeVerifier{}, &fakeDirectory{inviteRole: types.RoleTypeEditor, inviteExp: &past})

	_, err := r.ResolveInvite(context.Background(), "board-1", "tok", "g")
	assert.ErrorIs(t, err, ErrInviteInvalid)
}

func TestResolveInvite_FutureExpiryAllowed(t *testing.T) {
	future := time.Now().Add(time.Hour)
	r := NewResolver(&fakeVerifier{}, &fakeDirectory{inviteRole: types.RoleTypeEditor, inviteExp: &future})

	_, err := r.ResolveInvite(context.Background(), "board-1", "tok", "g")
	assert.NoError(t, err)
}

func TestResolveInvite_EmptyToken(t *testing.T) {
	r := NewResolver(&fakeVerifier{}, &fakeDirectory{inviteRole: types.RoleTypeEditor})

	_, err := r.ResolveInvite(context.Background(), "board-1", "   ", "g")
	assert.ErrorIs(t, err, ErrInviteInvalid)
}

func TestResolveInvite_OwnerRoleInInviteRowRejected(t *testing.T) {
	// An invite row must never grant owner; treat it as invalid data.
	r := NewResolver(&fakeVerifier{}, &fakeDirectory{inviteRole: types.RoleTypeOwner})

	_, err := r.ResolveInvite(context.Background(), "board-1", "tok", "g")
	assert.ErrorIs(t, err, ErrInviteInvalid)
}
