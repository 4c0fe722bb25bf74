package board

import (
	"errors"
	"fmt"
)

// ObjectKind enumerates the drawable object variants.
type ObjectKind string

const (
	KindFreehand    ObjectKind = "freehand"
	KindLine        ObjectKind = "line"
	KindRectangle   ObjectKind = "rectangle"
	KindEllipse     ObjectKind = "ellipse"
	KindDiamond     ObjectKind = "diamond"
	KindRoundedRect ObjectKind = "roundedRect"
	KindText        ObjectKind = "text"
	KindStickyNote  ObjectKind = "stickyNote"
	KindConnector   ObjectKind = "connector"
)

// KnownObjectKinds is the set of accepted object kinds.
var KnownObjectKinds = map[ObjectKind]bool{
	KindFreehand:    true,
	KindLine:        true,
	KindRectangle:   true,
	KindEllipse:     true,
	KindDiamond:     true,
	KindRoundedRect: true,
	KindText:        true,
	KindStickyNote:  true,
	KindConnector:   true,
}

// Point is a 2D coordinate on the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport describes a client's visible canvas region.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Attachment kinds for connector endpoints.
const (
	AttachmentPort           = "port"
	AttachmentEdgeT          = "edgeT"
	AttachmentPerimeterAngle = "perimeterAngle"
	AttachmentFallback       = "fallback"
)

// Attachment describes how a connector endpoint sticks to its target object.
// The populated fields depend on Kind.
type Attachment struct {
	Kind     string   `json:"kind"`
	PortID   string   `json:"portId,omitempty"`
	Edge     string   `json:"edge,omitempty"`
	T        *float64 `json:"t,omitempty"`
	AngleRad *float64 `json:"angleRad,omitempty"`
	Anchor   string   `json:"anchor,omitempty"`
}

// Validate checks the attachment variant and its parameters.
func (a *Attachment) Validate() error {
	switch a.Kind {
	case AttachmentPort:
		if a.PortID == "" {
			return errors.New("port attachment requires portId")
		}
	case AttachmentEdgeT:
		if a.Edge == "" {
			return errors.New("edgeT attachment requires edge")
		}
		if a.T == nil || *a.T < 0 || *a.T > 1 {
			return errors.New("edgeT attachment requires t in [0,1]")
		}
	case AttachmentPerimeterAngle:
		if a.AngleRad == nil {
			return errors.New("perimeterAngle attachment requires angleRad")
		}
	case AttachmentFallback:
		if a.Anchor == "" {
			return errors.New("fallback attachment requires anchor")
		}
	default:
		return fmt.Errorf("unknown attachment kind %q", a.Kind)
	}
	return nil
}

// ConnectorEndpoint is one end of a connector. It references another object
// by id; the reference is not ownership, and dangling references are allowed
// (they are patched by subsequent edits, never healed by the room).
type ConnectorEndpoint struct {
	ObjectID   string      `json:"objectId,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Point      *Point      `json:"point,omitempty"`
}

// Object is one drawable element. Insertion order in BoardState.Objects is
// z-order; ids are unique per board.
type Object struct {
	ID          string     `json:"id"`
	Kind        ObjectKind `json:"type"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Width       float64    `json:"width,omitempty"`
	Height      float64    `json:"height,omitempty"`
	Stroke      string     `json:"stroke,omitempty"`
	Fill        string     `json:"fill,omitempty"`
	TextColor   string     `json:"textColor,omitempty"`
	StrokeWidth float64    `json:"strokeWidth,omitempty"`
	FontSize    float64    `json:"fontSize,omitempty"`
	Text        string     `json:"text,omitempty"`
	Points      []Point    `json:"points,omitempty"`
	Waypoints   []Point    `json:"waypoints,omitempty"`

	// Connector endpoints; nil for non-connector kinds.
	From *ConnectorEndpoint `json:"from,omitempty"`
	To   *ConnectorEndpoint `json:"to,omitempty"`
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	c := o
	if o.Points != nil {
		c.Points = append([]Point(nil), o.Points...)
	}
	if o.Waypoints != nil {
		c.Waypoints = append([]Point(nil), o.Waypoints...)
	}
	if o.From != nil {
		ep := *o.From
		if o.From.Attachment != nil {
			at := *o.From.Attachment
			ep.Attachment = &at
		}
		if o.From.Point != nil {
			pt := *o.From.Point
			ep.Point = &pt
		}
		c.From = &ep
	}
	if o.To != nil {
		ep := *o.To
		if o.To.Attachment != nil {
			at := *o.To.Attachment
			ep.Attachment = &at
		}
		if o.To.Point != nil {
			pt := *o.To.Point
			ep.Point = &pt
		}
		c.To = &ep
	}
	return c
}

// ObjectPatch carries a partial object update. Nil fields are untouched;
// present fields win field-by-field (last writer wins on a shared field).
type ObjectPatch struct {
	X           *float64           `json:"x,omitempty"`
	Y           *float64           `json:"y,omitempty"`
	Width       *float64           `json:"width,omitempty"`
	Height      *float64           `json:"height,omitempty"`
	Stroke      *string            `json:"stroke,omitempty"`
	Fill        *string            `json:"fill,omitempty"`
	TextColor   *string            `json:"textColor,omitempty"`
	StrokeWidth *float64           `json:"strokeWidth,omitempty"`
	FontSize    *float64           `json:"fontSize,omitempty"`
	Text        *string            `json:"text,omitempty"`
	Points      []Point            `json:"points,omitempty"`
	Waypoints   []Point            `json:"waypoints,omitempty"`
	From        *ConnectorEndpoint `json:"from,omitempty"`
	To          *ConnectorEndpoint `json:"to,omitempty"`
}

// ApplyTo copies every present patch field onto the object.
func (p *ObjectPatch) ApplyTo(o *Object) {
	if p.X != nil {
		o.X = *p.X
	}
	if p.Y != nil {
		o.Y = *p.Y
	}
	if p.Width != nil {
		o.Width = *p.Width
	}
	if p.Height != nil {
		o.Height = *p.Height
	}
	if p.Stroke != nil {
		o.Stroke = *p.Stroke
	}
	if p.Fill != nil {
		o.Fill = *p.Fill
	}
	if p.TextColor != nil {
		o.TextColor = *p.TextColor
	}
	if p.StrokeWidth != nil {
		o.StrokeWidth = *p.StrokeWidth
	}
	if p.FontSize != nil {
		o.FontSize = *p.FontSize
	}
	if p.Text != nil {
		o.Text = *p.Text
	}
	if p.Points != nil {
		o.Points = append([]Point(nil), p.Points...)
	}
	if p.Waypoints != nil {
		o.Waypoints = append([]Point(nil), p.Waypoints...)
	}
	if p.From != nil {
		ep := *p.From
		o.From = &ep
	}
	if p.To != nil {
		ep := *p.To
		o.To = &ep
	}
}
