package types

// --- Core Domain Types ---

// RoleType defines the permission level a session holds on a board.
type RoleType string

// BoardIdType represents a unique identifier for a whiteboard.
type BoardIdType string

// UserIdType represents a unique identifier for an authenticated user.
type UserIdType string

// GuestIdType represents a client-supplied identifier for invite sessions.
type GuestIdType string

// DisplayNameType represents the human-readable name for a session.
type DisplayNameType string

// Role constants define the hierarchy and permissions.
const (
	RoleTypeOwner   RoleType = "owner"   // Board owner, full control
	RoleTypeEditor  RoleType = "editor"  // May submit ops
	RoleTypeViewer  RoleType = "viewer"  // Read-only; ops are refused
	RoleTypeUnknown RoleType = "unknown" // Default/unjoined state
)

// CanEdit reports whether the role may mutate board state.
func (r RoleType) CanEdit() bool {
	return r == RoleTypeOwner || r == RoleTypeEditor
}

// RosterEntry describes one joined session in presence broadcasts.
type RosterEntry struct {
	UserID      string   `json:"userId"`
	DisplayName string   `json:"displayName"`
	Role        RoleType `json:"role"`
	Color       string   `json:"color,omitempty"`
}

// --- Shared Interfaces ---

// SessionConn defines the behavior the room requires from a transport
// connection. This allows the room package to drive sessions without
// depending on the transport package.
type SessionConn interface {
	// Send enqueues a pre-serialized server message. Sends that cannot be
	// enqueued are dropped; the failing session is cleaned up by its own
	// close event.
	Send(data []byte)
	// Close writes a close frame with the given code and reason, then tears
	// the connection down. Idempotent.
	Close(code int, reason string)
	// MarkJoined cancels the pending join timeout.
	MarkJoined()
}
