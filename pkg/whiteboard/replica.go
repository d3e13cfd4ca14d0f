// Package whiteboard keeps a local copy of a room's shared document. The relay
// stores nothing, so every participant holds one of these and converges only
// as far as the frames it receives allow.
package whiteboard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/a-essam23/go-classroom/pkg/document"
	"github.com/a-essam23/go-classroom/pkg/protocol"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrNoChange      = errors.New("document unchanged since last commit")
	ErrUnknownShape  = errors.New("unknown shape")
)

type Viewport struct {
	Scale    float64
	Position protocol.Position
}

// Replica is one participant's view of the whiteboard. Local edits return the
// frame to send; frames from the relay are fed to Apply.
type Replica struct {
	mu       sync.Mutex
	roomID   string
	shapes   document.Document
	history  document.History
	viewport Viewport
	// last selection box a peer reported, nil when none is active
	selection *protocol.SelectionBox
}

func New(roomID string) *Replica {
	return &Replica{
		roomID:   roomID,
		shapes:   document.Document{},
		history:  document.NewHistory(),
		viewport: Viewport{Scale: 1},
	}
}

func (r *Replica) RoomID() string { return r.roomID }

func (r *Replica) Shapes() document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shapes.Clone()
}

func (r *Replica) History() document.History {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Clone()
}

func (r *Replica) Viewport() Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewport
}

func (r *Replica) Selection() *protocol.SelectionBox {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selection == nil {
		return nil
	}
	box := *r.selection
	return &box
}

// ApplyRaw parses a frame as received from the relay and applies it.
func (r *Replica) ApplyRaw(data []byte) error {
	f, err := protocol.Parse(data)
	if err != nil {
		return err
	}
	return r.Apply(f)
}

// Apply folds a relayed frame into the replica. Frames that do not concern the
// document are ignored. Edits naming a shape this replica never saw are
// dropped, the same as a browser client would.
func (r *Replica) Apply(f *protocol.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := f.Message.(type) {
	case *protocol.ShapeCreated:
		out, err := r.shapes.Append(m.Shape)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Event, err)
		}
		r.shapes = out
	case *protocol.ShapeUpdated:
		r.shapes = m.Shapes.Clone()
	case *protocol.TextUpdated:
		r.shapes, _ = r.shapes.SetText(m.ShapeID, m.Text)
	case *protocol.ShapeMoved:
		r.shapes, _ = r.shapes.Reshape(m.UpdatedShape)
	case *protocol.HistoryChange:
		r.history = document.History{
			UndoStack: cloneStack(m.UndoStack),
			RedoStack: cloneStack(m.RedoStack),
		}
		r.shapes = m.Shapes.Clone()
	case *protocol.ShapesChange:
		r.history = r.history.Commit(m.Shapes)
		r.shapes = m.Shapes.Clone()
	case *protocol.SelectionBoxUpdate:
		r.selection = m.SelectionBox
	case *protocol.SelectionComplete:
		r.selection = nil
	case *protocol.CanvasZoom:
		r.viewport = Viewport{Scale: m.Scale, Position: m.Position}
	case *protocol.CanvasDrag:
		r.viewport.Position = m.Position
	case *protocol.Empty:
		if f.Event == protocol.EventClearShapes {
			r.shapes = document.Document{}
		}
	}
	return nil
}

// CreateShape draws a new shape. It is not undoable until Commit.
func (r *Replica) CreateShape(s document.Shape) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == "" {
		s.ID = document.NewShapeID(s.Tool)
	}
	out, err := r.shapes.Append(s)
	if err != nil {
		return nil, err
	}
	r.shapes = out
	return protocol.EncodeTo(protocol.EventShapeCreated, r.roomID, &protocol.ShapeCreated{Shape: s})
}

// ReplaceShapes sends the whole document, as a client does on every pointer
// move while drawing.
func (r *Replica) ReplaceShapes(shapes document.Document) ([]byte, error) {
	if err := shapes.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapes = shapes.Clone()
	return protocol.EncodeTo(protocol.EventShapeUpdated, r.roomID, &protocol.ShapeUpdated{Shapes: r.shapes})
}

func (r *Replica) SetText(shapeID, text string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.shapes.SetText(shapeID, text)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, shapeID)
	}
	r.shapes = out
	return protocol.EncodeTo(protocol.EventTextUpdated, r.roomID, &protocol.TextUpdated{ShapeID: shapeID, Text: text})
}

func (r *Replica) Transform(update document.Shape) ([]byte, error) {
	return r.move(protocol.EventShapeTransformed, update)
}

func (r *Replica) Drag(update document.Shape) ([]byte, error) {
	return r.move(protocol.EventShapeDragged, update)
}

func (r *Replica) move(event string, update document.Shape) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.shapes.Reshape(update)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, update.ID)
	}
	r.shapes = out
	moved, _ := out.Get(update.ID)
	return protocol.EncodeTo(event, r.roomID, &protocol.ShapeMoved{UpdatedShape: moved})
}

func (r *Replica) Clear() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapes = document.Document{}
	return protocol.EncodeTo(protocol.EventClearShapes, r.roomID, nil)
}

// Commit records the current document on the undo stack and broadcasts it
// as the new shared state. It fails with ErrNoChange when the document equals
// the last committed one.
func (r *Replica) Commit() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.history.UndoStack); n > 0 && r.history.UndoStack[n-1].Equal(r.shapes) {
		return nil, ErrNoChange
	}
	r.history = r.history.Commit(r.shapes)
	return protocol.EncodeTo(protocol.EventShapesChange, r.roomID, &protocol.ShapesChange{Shapes: r.shapes})
}

func (r *Replica) Undo() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, doc, ok := r.history.Undo()
	if !ok {
		return nil, ErrNothingToUndo
	}
	return r.setHistoryLocked(protocol.EventUndo, h, doc)
}

func (r *Replica) Redo() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, doc, ok := r.history.Redo()
	if !ok {
		return nil, ErrNothingToRedo
	}
	return r.setHistoryLocked(protocol.EventRedo, h, doc)
}

func (r *Replica) setHistoryLocked(event string, h document.History, doc document.Document) ([]byte, error) {
	r.history = h
	r.shapes = doc
	return protocol.EncodeTo(event, r.roomID, &protocol.HistoryChange{
		UndoStack: h.UndoStack,
		RedoStack: h.RedoStack,
		Shapes:    doc,
	})
}

func (r *Replica) Zoom(scale float64, pos protocol.Position) ([]byte, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %v", scale)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = Viewport{Scale: scale, Position: pos}
	return protocol.EncodeTo(protocol.EventCanvasZoomed, r.roomID, &protocol.CanvasZoom{Scale: scale, Position: pos})
}

func (r *Replica) Pan(pos protocol.Position) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport.Position = pos
	return protocol.EncodeTo(protocol.EventCanvasDragged, r.roomID, &protocol.CanvasDrag{Position: pos})
}

func cloneStack(stack []document.Document) []document.Document {
	out := make([]document.Document, len(stack))
	for i, d := range stack {
		out[i] = d.Clone()
	}
	return out
}
