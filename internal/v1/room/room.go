package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/auth"
	"github.com/lumaboard/whiteboard/internal/v1/board"
	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/metrics"
	"github.com/lumaboard/whiteboard/internal/v1/store"
	"github.com/lumaboard/whiteboard/internal/v1/types"
	"github.com/lumaboard/whiteboard/internal/v1/wire"
)

const (
	// ProcessedOpTTL bounds how long an accepted clientOpId is remembered
	// for idempotent replay.
	ProcessedOpTTL = 5 * time.Minute
)

// AuthResolver turns join credentials into a board identity.
type AuthResolver interface {
	ResolveOwner(ctx context.Context, boardID, tokenString string) (*auth.Identity, error)
	ResolveInvite(ctx context.Context, boardID, rawToken, guestID string) (*auth.Identity, error)
}

// RateGate is the slice of the rate limiter the room uses.
type RateGate interface {
	AllowJoin(ctx context.Context, boardID, ip string) bool
	ResetJoin(ctx context.Context, boardID, ip string)
	AllowOp(ctx context.Context, sessionKey string) bool
	AllowPresence(ctx context.Context, sessionKey string) bool
}

// processedOp remembers the canonical broadcast of an accepted op so a
// retried clientOpId can be re-echoed byte-for-byte.
type processedOp struct {
	echo []byte
	at   time.Time
}

// Room is the single authority for one board. All state transitions happen
// under r.mu, which is what gives ops their total order.
type Room struct {
	BoardID string

	mu       sync.Mutex
	loading  chan struct{}
	loaded   bool
	seq      int64
	state    board.State
	sessions map[*Session]struct{}
	presence map[string]wire.PresencePayload

	processed map[string]processedOp
	lastSweep time.Time

	snapshotInFlight bool
	lastSnapshotSeq  int64
	lastSnapshotAt   time.Time
	lastSnapshotTry  time.Time

	store    store.Store
	resolver AuthResolver
	gate     RateGate

	onEmpty func(string)
	now     func() time.Time
}

// NewRoom creates a room for the given board. onEmpty is invoked (outside
// the room lock) when the last session detaches.
func NewRoom(boardID string, st store.Store, resolver AuthResolver, gate RateGate, onEmpty func(string)) *Room {
	return &Room{
		BoardID:   boardID,
		sessions:  make(map[*Session]struct{}),
		presence:  make(map[string]wire.PresencePayload),
		processed: make(map[string]processedOp),
		store:     st,
		resolver:  resolver,
		gate:      gate,
		onEmpty:   onEmpty,
		now:       time.Now,
	}
}

// Attach registers a not-yet-joined session for the connection. The session
// does not appear in the roster until its join succeeds.
func (r *Room) Attach(conn types.SessionConn, ip string) *Session {
	s := &Session{conn: conn, ip: ip, room: r, role: types.RoleTypeUnknown}
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
	return s
}

// Detach removes the session. If it was joined, the remaining sessions get a
// presence update; if the room is now empty, a final snapshot is attempted
// and onEmpty fires.
func (r *Room) Detach(ctx context.Context, s *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[s]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s)

	wasJoined := s.joined
	if wasJoined {
		if !r.hasUserLocked(s.userID) {
			delete(r.presence, s.userID)
		}
		metrics.RoomSessions.WithLabelValues(r.BoardID).Set(float64(r.joinedCountLocked()))
	}

	empty := len(r.sessions) == 0
	if wasJoined && !empty {
		r.broadcastPresenceLocked()
	}
	if empty && r.loaded && !r.snapshotInFlight && r.seq > r.lastSnapshotSeq {
		r.startSnapshotLocked(context.WithoutCancel(ctx))
	}
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty(r.BoardID)
	}
}

// CloseAll closes every attached session's connection with the given code.
func (r *Room) CloseAll(code int, reason string) {
	r.mu.Lock()
	conns := make([]types.SessionConn, 0, len(r.sessions))
	for s := range r.sessions {
		conns = append(conns, s.conn)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(code, reason)
	}
}

// IsEmpty reports whether the room has no attached sessions.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions) == 0
}

// Seq returns the current op sequence number.
func (r *Room) Seq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// State returns a deep copy of the current board state.
func (r *Room) State() board.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// ensureLoaded loads the board row and the latest snapshot exactly once.
// Concurrent joins wait on the in-flight load; a failed load leaves the room
// unloaded so the next join retries.
func (r *Room) ensureLoaded(ctx context.Context) error {
	r.mu.Lock()
	for {
		if r.loaded {
			r.mu.Unlock()
			return nil
		}
		if r.loading == nil {
			break
		}
		ch := r.loading
		r.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.mu.Lock()
	}
	ch := make(chan struct{})
	r.loading = ch
	r.mu.Unlock()

	info, snap, loadErr := r.loadBoard(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = nil
	close(ch)
	if loadErr != nil {
		return loadErr
	}

	now := r.now()
	if snap == nil {
		r.state = board.NewState(info.ID, info.Name, board.BoardType(info.BoardType), info.CreatedAt, info.UpdatedAt)
		// The board row remembers the highest persisted seq even when the
		// snapshot row is gone; restarting below it would re-issue seqs.
		r.seq = info.SnapshotSeq
	} else {
		var st board.State
		if err := json.Unmarshal(snap.State, &st); err != nil {
			return fmt.Errorf("failed to decode snapshot for board %s: %w", r.BoardID, err)
		}
		// Normalize the adopted snapshot: ephemeral fields cleared, identity
		// pinned to this board, placeholder name replaced from the board row.
		st.SelectedObjectIDs = []string{}
		st.CurrentViewport = nil
		st.Meta.ID = r.BoardID
		if st.Meta.Name == board.DefaultBoardName && info.Name != "" {
			st.Meta.Name = info.Name
		}
		r.state = st
		r.seq = snap.Seq
	}
	r.lastSnapshotSeq = r.seq
	r.lastSnapshotAt = now
	r.lastSnapshotTry = time.Time{}
	r.lastSweep = now
	r.loaded = true

	logging.Info(ctx, "board loaded",
		zap.String("board_id", r.BoardID),
		zap.Int64("seq", r.seq),
		zap.Int("objects", len(r.state.Objects)))
	return nil
}

func (r *Room) loadBoard(ctx context.Context) (*store.BoardInfo, *store.Snapshot, error) {
	info, err := r.store.LoadBoardInfo(ctx, r.BoardID)
	if errors.Is(err, auth.ErrBoardNotFound) {
		// A board without a row yet starts from defaults.
		now := r.now()
		info = &store.BoardInfo{ID: r.BoardID, BoardType: string(board.BoardTypeAdvanced), CreatedAt: now, UpdatedAt: now}
	} else if err != nil {
		return nil, nil, err
	}
	snap, err := r.store.LoadLatestSnapshot(ctx, r.BoardID)
	if err != nil {
		return nil, nil, err
	}
	return info, snap, nil
}

// hasUserLocked reports whether any other joined session shares the user id.
func (r *Room) hasUserLocked(userID string) bool {
	for s := range r.sessions {
		if s.joined && s.userID == userID {
			return true
		}
	}
	return false
}

func (r *Room) joinedCountLocked() int {
	n := 0
	for s := range r.sessions {
		if s.joined {
			n++
		}
	}
	return n
}

// rosterLocked builds the joined-user roster, one entry per user id, sorted
// for stable output.
func (r *Room) rosterLocked() []types.RosterEntry {
	seen := make(map[string]bool)
	entries := make([]types.RosterEntry, 0, len(r.sessions))
	for s := range r.sessions {
		if !s.joined || seen[s.userID] {
			continue
		}
		seen[s.userID] = true
		entries = append(entries, types.RosterEntry{
			UserID:      s.userID,
			DisplayName: s.displayName,
			Role:        s.role,
			Color:       s.color,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// broadcastLocked sends data to every joined session.
func (r *Room) broadcastLocked(data []byte) {
	for s := range r.sessions {
		if s.joined {
			s.conn.Send(data)
		}
	}
}

func (r *Room) broadcastPresenceLocked() {
	msg := wire.PresenceBroadcast{
		Type:             wire.TypePresenceUpdate,
		BoardID:          r.BoardID,
		Users:            r.rosterLocked(),
		PresenceByUserID: r.presenceCopyLocked(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal presence broadcast", zap.Error(err))
		return
	}
	r.broadcastLocked(data)
}

func (r *Room) presenceCopyLocked() map[string]wire.PresencePayload {
	out := make(map[string]wire.PresencePayload, len(r.presence))
	for k, v := range r.presence {
		out[k] = v
	}
	return out
}

// sweepProcessedLocked drops idempotency records older than ProcessedOpTTL.
// Called opportunistically from the op path.
func (r *Room) sweepProcessedLocked(now time.Time) {
	if now.Sub(r.lastSweep) < ProcessedOpTTL {
		return
	}
	for key, rec := range r.processed {
		if now.Sub(rec.at) > ProcessedOpTTL {
			delete(r.processed, key)
		}
	}
	r.lastSweep = now
}
