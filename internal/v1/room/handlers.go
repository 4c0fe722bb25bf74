package room

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/auth"
	"github.com/lumaboard/whiteboard/internal/v1/board"
	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/metrics"
	"github.com/lumaboard/whiteboard/internal/v1/types"
	"github.com/lumaboard/whiteboard/internal/v1/wire"
)

// WebSocket close codes used by the protocol.
const (
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Route dispatches one validated client message for the session.
func (r *Room) Route(ctx context.Context, s *Session, msg *wire.ClientMessage) {
	timer := prometheus.NewTimer(metrics.MessageProcessingDuration.WithLabelValues(msg.Type))
	defer timer.ObserveDuration()

	switch msg.Type {
	case wire.TypeJoin:
		r.handleJoin(ctx, s, msg.Join)
	case wire.TypeOp:
		r.handleOp(ctx, s, msg.Op)
	case wire.TypePresence:
		r.handlePresence(ctx, s, msg.Presence)
	case wire.TypePing:
		r.handlePing(s, msg.Ping)
	}
}

// handleJoin authenticates the session and replies with the board snapshot.
// Every attempt counts against the per-IP join bucket, including ones that
// fail auth; the bucket is reset after a success.
func (r *Room) handleJoin(ctx context.Context, s *Session, m *wire.JoinMessage) {
	if !r.gate.AllowJoin(ctx, r.BoardID, s.ip) {
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeRateLimited, "Too many join attempts; try again later"))
		s.conn.Close(ClosePolicyViolation, "rate limited")
		return
	}

	if m.BoardID != r.BoardID {
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeBadRequest, "Join boardId does not match the channel"))
		s.conn.Close(ClosePolicyViolation, "board mismatch")
		return
	}

	if s.Joined() {
		s.sendJSON(wire.NewError(r.BoardID, wire.CodeBadRequest, "Already joined"))
		return
	}

	ident, displayName, color, err := r.resolveJoin(ctx, m)
	if err != nil {
		r.rejectJoin(ctx, s, err)
		return
	}

	if err := r.ensureLoaded(ctx); err != nil {
		logging.Error(ctx, "failed to load board",
			zap.String("board_id", r.BoardID),
			zap.Error(err))
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeServerError, "Failed to load board"))
		s.conn.Close(CloseInternalError, "load failed")
		return
	}

	r.mu.Lock()
	s.joined = true
	s.role = ident.Role
	s.userID = ident.UserID
	s.guest = ident.Guest
	s.displayName = displayName
	s.color = color

	joined := wire.JoinedMessage{
		Type:    wire.TypeJoined,
		BoardID: r.BoardID,
		Role:    s.role,
		Seq:     r.seq,
		Users:   r.rosterLocked(),
	}
	// A client already caught up to the current seq does not need the
	// snapshot body again.
	if m.ClientKnownSeq == nil || *m.ClientKnownSeq != r.seq {
		snap := r.state.Clone()
		seq := r.seq
		joined.Snapshot = &snap
		joined.SnapshotSeq = &seq
	}
	if data, err := json.Marshal(joined); err == nil {
		s.conn.Send(data)
	}
	s.conn.MarkJoined()

	metrics.RoomSessions.WithLabelValues(r.BoardID).Set(float64(r.joinedCountLocked()))
	r.broadcastPresenceLocked()
	r.mu.Unlock()

	r.gate.ResetJoin(ctx, r.BoardID, s.ip)

	logging.Info(ctx, "session joined",
		zap.String("board_id", r.BoardID),
		zap.String("user_id", s.userID),
		zap.String("role", string(ident.Role)))
}

func (r *Room) resolveJoin(ctx context.Context, m *wire.JoinMessage) (*auth.Identity, string, string, error) {
	var displayName, color, guestID string
	if m.Client != nil {
		displayName = m.Client.DisplayName
		color = m.Client.Color
		guestID = m.Client.GuestID
	}

	switch m.Auth.Kind {
	case wire.AuthKindOwner:
		ident, err := r.resolver.ResolveOwner(ctx, r.BoardID, m.Auth.SupabaseJWT)
		if err != nil {
			return nil, "", "", err
		}
		if displayName == "" {
			displayName = "Owner"
		}
		return ident, displayName, color, nil

	case wire.AuthKindInvite:
		if guestID == "" {
			guestID = "guest-" + uuid.NewString()
		}
		ident, err := r.resolver.ResolveInvite(ctx, r.BoardID, m.Auth.InviteToken, guestID)
		if err != nil {
			return nil, "", "", err
		}
		if displayName == "" {
			displayName = "Guest"
		}
		return ident, displayName, color, nil

	default:
		return nil, "", "", auth.ErrBadToken
	}
}

// rejectJoin maps a resolution failure onto a fatal wire error and closes
// the connection.
func (r *Room) rejectJoin(ctx context.Context, s *Session, err error) {
	switch {
	case errors.Is(err, auth.ErrBoardNotFound):
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeNotFound, "Board not found"))
		s.conn.Close(ClosePolicyViolation, "board not found")
	case errors.Is(err, auth.ErrBadToken):
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeUnauthorized, "Authentication failed"))
		s.conn.Close(ClosePolicyViolation, "unauthorized")
	case errors.Is(err, auth.ErrNotOwner):
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeForbidden, "Not board owner"))
		s.conn.Close(ClosePolicyViolation, "forbidden")
	case errors.Is(err, auth.ErrInviteInvalid):
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeForbidden, "Invalid invite token"))
		s.conn.Close(ClosePolicyViolation, "forbidden")
	default:
		logging.Error(ctx, "join resolution failed",
			zap.String("board_id", r.BoardID),
			zap.Error(err))
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeServerError, "Join failed"))
		s.conn.Close(CloseInternalError, "join failed")
	}
}

// handleOp orders, applies, and broadcasts one board op. The room mutex is
// what serializes concurrent submitters: whoever wins the lock gets the next
// seq.
func (r *Room) handleOp(ctx context.Context, s *Session, m *wire.OpMessage) {
	if !s.Joined() {
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeUnauthorized, "Must join first"))
		s.conn.Close(ClosePolicyViolation, "not joined")
		return
	}

	if m.BoardID != r.BoardID {
		metrics.BoardOps.WithLabelValues("rejected").Inc()
		s.sendJSON(wire.NewError(r.BoardID, wire.CodeBadRequest, "Op boardId does not match the channel"))
		return
	}

	if !s.Role().CanEdit() {
		metrics.BoardOps.WithLabelValues("forbidden").Inc()
		s.sendJSON(wire.NewError(r.BoardID, wire.CodeForbidden, "Viewer cannot send ops"))
		return
	}

	if !r.gate.AllowOp(ctx, s.key()) {
		metrics.BoardOps.WithLabelValues("rate_limited").Inc()
		s.sendJSON(wire.NewError(r.BoardID, wire.CodeRateLimited, "Op rate limit exceeded"))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepProcessedLocked(now)

	opKey := s.userID + ":" + m.ClientOpID
	if rec, ok := r.processed[opKey]; ok {
		if now.Sub(rec.at) <= ProcessedOpTTL {
			// Retry of an already-accepted op: re-echo the original broadcast
			// to the submitter only. Nobody else sees it twice.
			metrics.BoardOps.WithLabelValues("duplicate").Inc()
			s.conn.Send(rec.echo)
			return
		}
		// Past the TTL the id is no longer a retry; the record may simply not
		// have been swept yet.
		delete(r.processed, opKey)
	}

	next, err := board.Apply(r.state, m.Op)
	if err != nil {
		metrics.BoardOps.WithLabelValues("rejected").Inc()
		s.sendJSON(wire.NewError(r.BoardID, wire.CodeForbidden, opRejectionMessage(err)))
		return
	}

	r.state = next
	r.seq++

	echo := wire.OpBroadcast{
		Type:       wire.TypeOpEcho,
		BoardID:    r.BoardID,
		Seq:        r.seq,
		Op:         m.Op,
		AuthorID:   s.userID,
		ClientOpID: m.ClientOpID,
	}
	data, err := json.Marshal(echo)
	if err != nil {
		logging.Error(ctx, "failed to marshal op broadcast", zap.Error(err))
		return
	}

	r.processed[opKey] = processedOp{echo: data, at: now}
	metrics.BoardOps.WithLabelValues("applied").Inc()
	r.broadcastLocked(data)

	if !m.Op.Type.IsEphemeral() {
		r.maybeSnapshotLocked(ctx)
	}
}

// opRejectionMessage maps reducer errors onto their wire-visible texts.
func opRejectionMessage(err error) string {
	switch {
	case errors.Is(err, board.ErrBoardFull):
		return "Board is too large"
	case errors.Is(err, board.ErrDuplicateObjectID):
		return "Duplicate object id"
	default:
		return "Op rejected"
	}
}

// handlePresence replaces the sender's presence entry and fans it out.
func (r *Room) handlePresence(ctx context.Context, s *Session, m *wire.PresenceMessage) {
	if !s.Joined() {
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeUnauthorized, "Must join first"))
		s.conn.Close(ClosePolicyViolation, "not joined")
		return
	}

	if m.BoardID != r.BoardID {
		s.sendJSON(wire.NewError(r.BoardID, wire.CodeBadRequest, "Presence boardId does not match the channel"))
		return
	}

	if !r.gate.AllowPresence(ctx, s.key()) {
		s.sendJSON(wire.NewError(r.BoardID, wire.CodeRateLimited, "Presence rate limit exceeded"))
		return
	}

	r.mu.Lock()
	r.presence[s.userID] = m.Presence
	r.broadcastPresenceLocked()
	r.mu.Unlock()
}

// handlePing echoes t to the submitter. Like every other non-join message, a
// ping from a session that has not joined closes the connection.
func (r *Room) handlePing(s *Session, m *wire.PingMessage) {
	if !s.Joined() {
		s.sendJSON(wire.NewFatalError(r.BoardID, wire.CodeUnauthorized, "Must join first"))
		s.conn.Close(ClosePolicyViolation, "not joined")
		return
	}
	s.sendJSON(wire.PongMessage{Type: wire.TypePong, T: m.T})
}

// RoleOf returns the role bound to a joined user id, or unknown.
func (r *Room) RoleOf(userID string) types.RoleType {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.sessions {
		if s.joined && s.userID == userID {
			return s.role
		}
	}
	return types.RoleTypeUnknown
}
