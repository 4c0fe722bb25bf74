package board

import "time"

// BoardType enumerates the supported board flavors.
type BoardType string

const (
	BoardTypeAdvanced BoardType = "advanced"
	BoardTypeFreehand BoardType = "freehand"
	BoardTypeMindmap  BoardType = "mindmap"
)

// DefaultBoardName is the placeholder title for boards created without one.
const DefaultBoardName = "Untitled"

// KnownBoardTypes is the set of accepted board types.
var KnownBoardTypes = map[BoardType]bool{
	BoardTypeAdvanced: true,
	BoardTypeFreehand: true,
	BoardTypeMindmap:  true,
}

// Meta holds board identity and bookkeeping timestamps (epoch milliseconds).
type Meta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BoardType BoardType `json:"boardType"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// State is the authoritative board state. A single room owns and mutates it;
// everyone else sees it through snapshots and the ordered op stream.
// SelectedObjectIDs and CurrentViewport are ephemeral and never persisted.
type State struct {
	Meta              Meta      `json:"meta"`
	Objects           []Object  `json:"objects"`
	SelectedObjectIDs []string  `json:"selectedObjectIds"`
	CurrentViewport   *Viewport `json:"viewport,omitempty"`
}

// NewState builds an empty board state with the given metadata.
func NewState(id, name string, boardType BoardType, createdAt, updatedAt time.Time) State {
	if name == "" {
		name = DefaultBoardName
	}
	if !KnownBoardTypes[boardType] {
		boardType = BoardTypeAdvanced
	}
	return State{
		Meta: Meta{
			ID:        id,
			Name:      name,
			BoardType: boardType,
			CreatedAt: createdAt.UnixMilli(),
			UpdatedAt: updatedAt.UnixMilli(),
		},
		Objects:           []Object{},
		SelectedObjectIDs: []string{},
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	c := s
	c.Objects = make([]Object, len(s.Objects))
	for i, o := range s.Objects {
		c.Objects[i] = o.Clone()
	}
	c.SelectedObjectIDs = append([]string{}, s.SelectedObjectIDs...)
	if s.CurrentViewport != nil {
		vp := *s.CurrentViewport
		c.CurrentViewport = &vp
	}
	return c
}

// Sanitized returns a copy with every ephemeral field cleared. This is the
// form that snapshots persist.
func (s State) Sanitized() State {
	c := s.Clone()
	c.SelectedObjectIDs = []string{}
	c.CurrentViewport = nil
	return c
}

// HasObject reports whether an object with the given id exists.
func (s *State) HasObject(id string) bool {
	return s.indexOf(id) >= 0
}

func (s *State) indexOf(id string) int {
	for i := range s.Objects {
		if s.Objects[i].ID == id {
			return i
		}
	}
	return -1
}
