package document

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

var ErrDuplicateShape = errors.New("duplicate shape id")

// Document is the ordered list of shapes making up a whiteboard at one instant.
// Operations never mutate the receiver; they return a new document.
type Document []Shape

func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for i, s := range d {
		out[i] = s.Clone()
	}
	return out
}

// Validate checks every shape and that ids are unique within the document.
func (d Document) Validate() error {
	seen := make(map[string]struct{}, len(d))
	for _, s := range d {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateShape, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func (d Document) Index(id string) int {
	for i, s := range d {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (d Document) Get(id string) (Shape, bool) {
	if i := d.Index(id); i >= 0 {
		return d[i], true
	}
	return Shape{}, false
}

// Append adds a shape at the top of the z-order.
func (d Document) Append(s Shape) (Document, error) {
	if err := s.Validate(); err != nil {
		return d, err
	}
	if d.Index(s.ID) >= 0 {
		return d, fmt.Errorf("%w: %q", ErrDuplicateShape, s.ID)
	}
	out := append(d.Clone(), s.Clone())
	return out, nil
}

// Reshape replaces the geometry, tool and colors of the shape with the same id,
// keeping everything else. Only the box, points, tool and colors travel with a
// transform or drag; rotation, scale, radii and stroke width are left as they
// were, so this is not a full keyed replace. Unknown ids leave the document
// unchanged.
func (d Document) Reshape(update Shape) (Document, bool) {
	i := d.Index(update.ID)
	if i < 0 {
		return d, false
	}
	out := d.Clone()
	s := &out[i]
	s.X, s.Y = update.X, update.Y
	s.Width, s.Height = update.Width, update.Height
	s.Points = update.Clone().Points
	s.FillColor = update.FillColor
	s.StrokeColor = update.StrokeColor
	if update.Tool != "" {
		s.Tool = update.Tool
	}
	return out, true
}

// SetText replaces the text of one shape.
func (d Document) SetText(id, text string) (Document, bool) {
	i := d.Index(id)
	if i < 0 {
		return d, false
	}
	out := d.Clone()
	out[i].Text = text
	return out, true
}

func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if !shapeEqual(d[i], other[i]) {
			return false
		}
	}
	return true
}

func shapeEqual(a, b Shape) bool {
	if !slices.Equal(a.Points, b.Points) {
		return false
	}
	a.Points, b.Points = nil, nil
	return reflect.DeepEqual(a, b)
}
