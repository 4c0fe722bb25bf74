package room

import (
	"encoding/json"

	"github.com/lumaboard/whiteboard/internal/v1/types"
)

// Session is one WebSocket connection's view of a room. It starts unjoined;
// a successful join binds an identity and role to it. Fields are written
// only under the room mutex.
type Session struct {
	conn types.SessionConn
	ip   string
	room *Room

	joined      bool
	role        types.RoleType
	userID      string
	displayName string
	color       string
	guest       bool
}

// Joined reports whether the session completed a join.
func (s *Session) Joined() bool {
	s.room.mu.Lock()
	defer s.room.mu.Unlock()
	return s.joined
}

// Role returns the session's board role.
func (s *Session) Role() types.RoleType {
	s.room.mu.Lock()
	defer s.room.mu.Unlock()
	return s.role
}

// UserID returns the session's user or guest id.
func (s *Session) UserID() string {
	s.room.mu.Lock()
	defer s.room.mu.Unlock()
	return s.userID
}

// sendJSON marshals and enqueues a server message on this session only.
func (s *Session) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.conn.Send(data)
}

// key identifies the session for per-client rate limit buckets.
func (s *Session) key() string {
	return s.room.BoardID + ":" + s.userID
}
