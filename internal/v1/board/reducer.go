package board

import (
	"errors"
	"fmt"
)

// MaxObjectsPerBoard bounds the object count of a single board.
const MaxObjectsPerBoard = 10000

// Reducer rejection errors. The room maps these to non-fatal forbidden
// replies without advancing seq or state.
var (
	ErrDuplicateObjectID = errors.New("object id already exists")
	ErrBoardFull         = errors.New("board is too large")
	ErrBadPayload        = errors.New("event payload does not match event type")
)

// Apply is the pure state reducer: it returns the state after the event
// without mutating the input. An error means the op is rejected and the
// caller must not advance seq.
//
// Contracts:
//   - objectCreated appends; a duplicate id is an error.
//   - objectUpdated patches field-by-field; an unknown id is a no-op.
//   - objectDeleted removes by id; an unknown id is a no-op.
//   - selectionChanged / viewportChanged update ephemeral fields only.
//   - Meta.UpdatedAt advances to the event's timestamp.
func Apply(s State, ev Event) (State, error) {
	next := s.Clone()

	switch p := ev.Payload.(type) {
	case ObjectCreatedPayload:
		if next.HasObject(p.Object.ID) {
			return s, fmt.Errorf("%w: %s", ErrDuplicateObjectID, p.Object.ID)
		}
		if len(next.Objects) >= MaxObjectsPerBoard {
			return s, ErrBoardFull
		}
		next.Objects = append(next.Objects, p.Object.Clone())

	case ObjectUpdatedPayload:
		if i := next.indexOf(p.ObjectID); i >= 0 {
			p.Patch.ApplyTo(&next.Objects[i])
		}

	case ObjectDeletedPayload:
		if i := next.indexOf(p.ObjectID); i >= 0 {
			next.Objects = append(next.Objects[:i], next.Objects[i+1:]...)
		}

	case SelectionChangedPayload:
		next.SelectedObjectIDs = append([]string{}, p.SelectedIDs...)

	case ViewportChangedPayload:
		vp := p.Viewport
		next.CurrentViewport = &vp

	default:
		return s, ErrBadPayload
	}

	next.Meta.UpdatedAt = ev.Timestamp
	return next, nil
}
