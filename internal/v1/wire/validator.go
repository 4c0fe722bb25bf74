package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/lumaboard/whiteboard/internal/v1/board"
)

// Validation errors with protocol-level meaning. ErrTooLarge maps to close
// code 1009; everything else maps to 1008.
var (
	ErrTooLarge    = errors.New("message exceeds size limit")
	ErrNotUTF8     = errors.New("message is not valid UTF-8")
	ErrBadJSON     = errors.New("message is not valid JSON")
	ErrUnknownType = errors.New("unknown message type")
)

// Parse validates a text frame and returns the typed client message.
// Every frame passes through here before the room sees it.
func Parse(data []byte) (*ClientMessage, error) {
	if len(data) > MaxMessageBytes {
		return nil, ErrTooLarge
	}
	if !utf8.Valid(data) {
		return nil, ErrNotUTF8
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, ErrBadJSON
	}

	switch probe.Type {
	case TypeJoin:
		var m JoinMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, ErrBadJSON
		}
		if err := validateJoin(&m); err != nil {
			return nil, err
		}
		return &ClientMessage{Type: TypeJoin, Join: &m}, nil

	case TypeOp:
		var m OpMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid op: %w", err)
		}
		if err := validateOp(&m); err != nil {
			return nil, err
		}
		return &ClientMessage{Type: TypeOp, Op: &m}, nil

	case TypePresence:
		var m PresenceMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, ErrBadJSON
		}
		if err := validatePresence(&m); err != nil {
			return nil, err
		}
		return &ClientMessage{Type: TypePresence, Presence: &m}, nil

	case TypePing:
		var m PingMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, ErrBadJSON
		}
		return &ClientMessage{Type: TypePing, Ping: &m}, nil

	default:
		return nil, ErrUnknownType
	}
}

func validateJoin(m *JoinMessage) error {
	if err := validateBoardID(m.BoardID); err != nil {
		return err
	}
	switch m.Auth.Kind {
	case AuthKindOwner:
		if m.Auth.SupabaseJWT == "" {
			return errors.New("owner auth requires supabaseJwt")
		}
		if len(m.Auth.SupabaseJWT) > MaxTokenChars {
			return errors.New("token too long")
		}
	case AuthKindInvite:
		if m.Auth.InviteToken == "" {
			return errors.New("invite auth requires inviteToken")
		}
		if len(m.Auth.InviteToken) > MaxTokenChars {
			return errors.New("token too long")
		}
	default:
		return fmt.Errorf("unknown auth kind %q", m.Auth.Kind)
	}
	if m.ClientKnownSeq != nil && *m.ClientKnownSeq < 0 {
		return errors.New("clientKnownSeq must be non-negative")
	}
	if c := m.Client; c != nil {
		if len(c.GuestID) > MaxUserIDChars {
			return errors.New("guestId too long")
		}
		if utf8.RuneCountInString(c.DisplayName) > MaxDisplayNameChars {
			return errors.New("displayName too long")
		}
		if len(c.Color) > MaxColorChars {
			return errors.New("color too long")
		}
	}
	return nil
}

func validateOp(m *OpMessage) error {
	if err := validateBoardID(m.BoardID); err != nil {
		return err
	}
	if m.ClientOpID == "" || len(m.ClientOpID) > MaxClientOpIDChars {
		return errors.New("clientOpId must be 1..128 characters")
	}
	if m.BaseSeq < 0 {
		return errors.New("baseSeq must be non-negative")
	}
	return validateEvent(&m.Op, m.BoardID)
}

// validateEvent enforces per-field caps on the embedded board event. The
// event boardId must equal the message-level boardId.
func validateEvent(ev *board.Event, boardID string) error {
	if !board.KnownEventTypes[ev.Type] {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.BoardID != boardID {
		return errors.New("event boardId does not match message boardId")
	}
	if ev.Timestamp < 0 {
		return errors.New("event timestamp must be non-negative")
	}

	switch p := ev.Payload.(type) {
	case board.ObjectCreatedPayload:
		return validateObject(&p.Object)
	case board.ObjectUpdatedPayload:
		if p.ObjectID == "" {
			return errors.New("objectUpdated requires objectId")
		}
		return validatePatch(&p.Patch)
	case board.ObjectDeletedPayload:
		if p.ObjectID == "" {
			return errors.New("objectDeleted requires objectId")
		}
	case board.SelectionChangedPayload:
		if len(p.SelectedIDs) > MaxSelectionIDs {
			return errors.New("too many selected ids")
		}
	case board.ViewportChangedPayload:
		return validateViewport(&p.Viewport)
	default:
		return errors.New("event payload missing")
	}
	return nil
}

func validateObject(o *board.Object) error {
	if o.ID == "" || len(o.ID) > MaxClientOpIDChars {
		return errors.New("object id must be 1..128 characters")
	}
	if !board.KnownObjectKinds[o.Kind] {
		return fmt.Errorf("unknown object type %q", o.Kind)
	}
	if o.StrokeWidth < MinStrokeWidth || o.StrokeWidth > MaxStrokeWidth {
		return errors.New("strokeWidth out of range")
	}
	if o.FontSize != 0 && (o.FontSize < MinFontSize || o.FontSize > MaxFontSize) {
		return errors.New("fontSize out of range")
	}
	if len(o.Stroke) > MaxColorChars || len(o.Fill) > MaxColorChars || len(o.TextColor) > MaxColorChars {
		return errors.New("color too long")
	}
	if utf8.RuneCountInString(o.Text) > MaxTextChars {
		return errors.New("text too long")
	}
	if len(o.Points) > MaxStrokePoints {
		return errors.New("too many stroke points")
	}
	if len(o.Waypoints) > MaxStrokePoints {
		return errors.New("too many waypoints")
	}
	if err := validateEndpoint(o.From); err != nil {
		return err
	}
	return validateEndpoint(o.To)
}

func validateEndpoint(ep *board.ConnectorEndpoint) error {
	if ep == nil {
		return nil
	}
	if len(ep.ObjectID) > MaxClientOpIDChars {
		return errors.New("endpoint objectId too long")
	}
	if ep.Attachment != nil {
		return ep.Attachment.Validate()
	}
	return nil
}

func validatePatch(p *board.ObjectPatch) error {
	if p.StrokeWidth != nil && (*p.StrokeWidth < MinStrokeWidth || *p.StrokeWidth > MaxStrokeWidth) {
		return errors.New("strokeWidth out of range")
	}
	if p.FontSize != nil && (*p.FontSize < MinFontSize || *p.FontSize > MaxFontSize) {
		return errors.New("fontSize out of range")
	}
	if p.Stroke != nil && len(*p.Stroke) > MaxColorChars {
		return errors.New("color too long")
	}
	if p.Fill != nil && len(*p.Fill) > MaxColorChars {
		return errors.New("color too long")
	}
	if p.TextColor != nil && len(*p.TextColor) > MaxColorChars {
		return errors.New("color too long")
	}
	if p.Text != nil && utf8.RuneCountInString(*p.Text) > MaxTextChars {
		return errors.New("text too long")
	}
	if len(p.Points) > MaxStrokePoints {
		return errors.New("too many stroke points")
	}
	if len(p.Waypoints) > MaxStrokePoints {
		return errors.New("too many waypoints")
	}
	if err := validateEndpoint(p.From); err != nil {
		return err
	}
	return validateEndpoint(p.To)
}

func validatePresence(m *PresenceMessage) error {
	if err := validateBoardID(m.BoardID); err != nil {
		return err
	}
	if len(m.Presence.SelectionIDs) > MaxSelectionIDs {
		return errors.New("too many selected ids")
	}
	if m.Presence.Viewport != nil {
		return validateViewport(m.Presence.Viewport)
	}
	return nil
}

func validateViewport(v *board.Viewport) error {
	if v.Zoom < MinZoom || v.Zoom > MaxZoom {
		return errors.New("zoom out of range")
	}
	return nil
}

func validateBoardID(id string) error {
	if id == "" || len(id) > MaxBoardIDChars {
		return errors.New("boardId must be 1..128 characters")
	}
	return nil
}
