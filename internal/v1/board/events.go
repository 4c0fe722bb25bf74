package board

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType tags the BoardEvent variant.
type EventType string

const (
	EventObjectCreated    EventType = "objectCreated"
	EventObjectUpdated    EventType = "objectUpdated"
	EventObjectDeleted    EventType = "objectDeleted"
	EventSelectionChanged EventType = "selectionChanged"
	EventViewportChanged  EventType = "viewportChanged"
)

// KnownEventTypes is the set of accepted event types. Unknown tags are
// rejected by the validator before they reach the reducer.
var KnownEventTypes = map[EventType]bool{
	EventObjectCreated:    true,
	EventObjectUpdated:    true,
	EventObjectDeleted:    true,
	EventSelectionChanged: true,
	EventViewportChanged:  true,
}

// IsEphemeral reports whether the event touches only non-persisted state.
func (t EventType) IsEphemeral() bool {
	return t == EventSelectionChanged || t == EventViewportChanged
}

// EventPayload is the tag-dependent payload of a BoardEvent.
type EventPayload interface {
	isEventPayload()
}

type ObjectCreatedPayload struct {
	Object Object `json:"object"`
}

type ObjectUpdatedPayload struct {
	ObjectID string      `json:"objectId"`
	Patch    ObjectPatch `json:"patch"`
}

type ObjectDeletedPayload struct {
	ObjectID string `json:"objectId"`
}

type SelectionChangedPayload struct {
	SelectedIDs []string `json:"selectedIds"`
}

type ViewportChangedPayload struct {
	Viewport Viewport `json:"viewport"`
}

func (ObjectCreatedPayload) isEventPayload()    {}
func (ObjectUpdatedPayload) isEventPayload()    {}
func (ObjectDeletedPayload) isEventPayload()    {}
func (SelectionChangedPayload) isEventPayload() {}
func (ViewportChangedPayload) isEventPayload()  {}

// Event is one board edit. The payload type is determined by Type.
type Event struct {
	ID        string       `json:"id"`
	BoardID   string       `json:"boardId"`
	Type      EventType    `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Payload   EventPayload `json:"payload"`
}

// eventEnvelope defers payload decoding until the tag is known.
type eventEnvelope struct {
	ID        string          `json:"id"`
	BoardID   string          `json:"boardId"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes the envelope, then the payload variant selected by
// the type tag. Unknown payload fields are rejected.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	e.ID = env.ID
	e.BoardID = env.BoardID
	e.Type = env.Type
	e.Timestamp = env.Timestamp

	if len(env.Payload) == 0 {
		return fmt.Errorf("event %q has no payload", env.Type)
	}

	switch env.Type {
	case EventObjectCreated:
		var p ObjectCreatedPayload
		if err := strictUnmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("objectCreated payload: %w", err)
		}
		e.Payload = p
	case EventObjectUpdated:
		var p ObjectUpdatedPayload
		if err := strictUnmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("objectUpdated payload: %w", err)
		}
		e.Payload = p
	case EventObjectDeleted:
		var p ObjectDeletedPayload
		if err := strictUnmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("objectDeleted payload: %w", err)
		}
		e.Payload = p
	case EventSelectionChanged:
		var p SelectionChangedPayload
		if err := strictUnmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("selectionChanged payload: %w", err)
		}
		e.Payload = p
	case EventViewportChanged:
		var p ViewportChangedPayload
		if err := strictUnmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("viewportChanged payload: %w", err)
		}
		e.Payload = p
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}

	return nil
}

// MarshalJSON emits the envelope with the typed payload inline.
func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{
		ID:        e.ID,
		BoardID:   e.BoardID,
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Payload:   payload,
	})
}

// strictUnmarshal decodes JSON rejecting unknown fields.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
