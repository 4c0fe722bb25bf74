package wire

import (
	"github.com/lumaboard/whiteboard/internal/v1/board"
	"github.com/lumaboard/whiteboard/internal/v1/types"
)

// Client → server message types.
const (
	TypeJoin     = "join"
	TypeOp       = "op"
	TypePresence = "presence"
	TypePing     = "ping"
)

// Server → client message types.
const (
	TypeHello          = "hello"
	TypeJoined         = "joined"
	TypeOpEcho         = "op"
	TypePresenceUpdate = "presence"
	TypeError          = "error"
	TypePong           = "pong"
)

// Error codes carried in server error messages.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeRateLimited     = "rate_limited"
	CodePayloadTooLarge = "payload_too_large"
	CodeServerError     = "server_error"
)

// Auth kinds accepted in join messages.
const (
	AuthKindOwner  = "owner"
	AuthKindInvite = "invite"
)

// AuthPayload selects and carries one authentication path.
type AuthPayload struct {
	Kind        string `json:"kind"`
	SupabaseJWT string `json:"supabaseJwt,omitempty"`
	InviteToken string `json:"inviteToken,omitempty"`
}

// ClientHello carries optional client-chosen identity for invite sessions.
type ClientHello struct {
	GuestID     string `json:"guestId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Color       string `json:"color,omitempty"`
}

// JoinMessage authenticates a session and binds it to a board.
type JoinMessage struct {
	Type           string       `json:"type"`
	BoardID        string       `json:"boardId"`
	Auth           AuthPayload  `json:"auth"`
	ClientKnownSeq *int64       `json:"clientKnownSeq,omitempty"`
	Client         *ClientHello `json:"client,omitempty"`
}

// OpMessage submits one board event for ordering. BaseSeq is validated but
// used as a hint only; the server does not reject on it.
type OpMessage struct {
	Type       string      `json:"type"`
	BoardID    string      `json:"boardId"`
	ClientOpID string      `json:"clientOpId"`
	BaseSeq    int64       `json:"baseSeq"`
	Op         board.Event `json:"op"`
}

// PresencePayload is the ephemeral per-user presence data.
type PresencePayload struct {
	Cursor       *board.Point    `json:"cursor,omitempty"`
	SelectionIDs []string        `json:"selectionIds,omitempty"`
	Viewport     *board.Viewport `json:"viewport,omitempty"`
	IsTyping     *bool           `json:"isTyping,omitempty"`
}

// PresenceMessage replaces the sender's presence entry.
type PresenceMessage struct {
	Type     string          `json:"type"`
	BoardID  string          `json:"boardId"`
	Presence PresencePayload `json:"presence"`
}

// PingMessage requests a pong echo of T.
type PingMessage struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

// ClientMessage is a validated inbound frame; exactly one of the typed
// fields matching Type is populated.
type ClientMessage struct {
	Type     string
	Join     *JoinMessage
	Op       *OpMessage
	Presence *PresenceMessage
	Ping     *PingMessage
}

// --- Server messages ---

// HelloMessage is sent once immediately after the channel is accepted.
type HelloMessage struct {
	Type            string `json:"type"`
	MaxMessageBytes int    `json:"maxMessageBytes"`
}

// JoinedMessage acknowledges a successful join with the full board snapshot.
type JoinedMessage struct {
	Type        string              `json:"type"`
	BoardID     string              `json:"boardId"`
	Role        types.RoleType      `json:"role"`
	Seq         int64               `json:"seq"`
	Snapshot    *board.State        `json:"snapshot,omitempty"`
	SnapshotSeq *int64              `json:"snapshotSeq,omitempty"`
	Users       []types.RosterEntry `json:"users,omitempty"`
}

// OpBroadcast is the ordered, canonical form of an accepted op.
type OpBroadcast struct {
	Type       string      `json:"type"`
	BoardID    string      `json:"boardId"`
	Seq        int64       `json:"seq"`
	Op         board.Event `json:"op"`
	AuthorID   string      `json:"authorId"`
	ClientOpID string      `json:"clientOpId,omitempty"`
}

// PresenceBroadcast carries the joined roster and the per-user presence map.
type PresenceBroadcast struct {
	Type             string                     `json:"type"`
	BoardID          string                     `json:"boardId"`
	Users            []types.RosterEntry        `json:"users"`
	PresenceByUserID map[string]PresencePayload `json:"presenceByUserId,omitempty"`
}

// ErrorMessage reports a protocol, auth, authorization, or rate error.
// Fatal errors are followed by a close frame.
type ErrorMessage struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// PongMessage echoes the t of the triggering ping.
type PongMessage struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

// NewHello builds the post-accept greeting.
func NewHello() HelloMessage {
	return HelloMessage{Type: TypeHello, MaxMessageBytes: MaxMessageBytes}
}

// NewError builds a non-fatal error message.
func NewError(boardID, code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, BoardID: boardID, Code: code, Message: message}
}

// NewFatalError builds an error message that precedes a close frame.
func NewFatalError(boardID, code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, BoardID: boardID, Code: code, Message: message, Fatal: true}
}
