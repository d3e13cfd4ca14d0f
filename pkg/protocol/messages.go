package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/a-essam23/go-classroom/pkg/document"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

// Message is the closed set of payload types that can travel in a frame.
type Message interface {
	Validate() error
	isMessage()
}

// --- admission ---

type JoinRoom struct {
	RoomID      string         `json:"roomId"`
	Participant state.Identity `json:"participant"`
}

type JoinRequest struct {
	RoomID       string         `json:"roomId"`
	ConnectionID uuid.UUID      `json:"connectionId"`
	Participant  state.Identity `json:"participant"`
}

type HandleJoinRequest struct {
	RoomID       string         `json:"roomId"`
	ConnectionID uuid.UUID      `json:"connectionId"`
	Accept       bool           `json:"accept"`
	Participant  state.Identity `json:"participant"`
}

// Membership is the payload of host and joinAccepted.
type Membership []state.Participant

type NewUser struct {
	Membership     []state.Participant `json:"membership"`
	NewParticipant state.Participant   `json:"newParticipant"`
}

type JoinDenied struct {
	RoomID string `json:"roomId"`
}

// --- calls ---

type CallUser struct {
	RoomID string    `json:"roomId"`
	Target uuid.UUID `json:"targetConnectionId"`
}

type IncomingCall struct {
	From uuid.UUID `json:"from"`
}

type CallFailed struct {
	Reason string `json:"reason"`
}

type AnswerCall struct {
	RoomID string    `json:"roomId"`
	From   uuid.UUID `json:"fromConnectionId"`
	Accept bool      `json:"accept"`
}

type CallAccepted struct {
	To uuid.UUID `json:"to"`
}

type QuitCall struct {
	RoomID string `json:"roomId"`
}

// --- admin ---

type PermissionChange struct {
	RoomID       string    `json:"roomId,omitempty"`
	ConnectionID uuid.UUID `json:"connectionId"`
}

type DisconnectUser struct {
	RoomID       string    `json:"roomId"`
	ConnectionID uuid.UUID `json:"connectionId"`
}

// --- document ---

type ShapeCreated struct {
	Shape document.Shape `json:"shape"`
}

// ShapeUpdated carries the whole document while a drag or resize is in progress.
type ShapeUpdated struct {
	Shapes document.Document `json:"shapes"`
}

type TextUpdated struct {
	ShapeID string `json:"shapeId"`
	Text    string `json:"text"`
}

// ShapeMoved is the payload of shapeTransformed and shapeDragged.
type ShapeMoved struct {
	UpdatedShape document.Shape `json:"updatedShape"`
}

type SelectionBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type SelectionBoxUpdate struct {
	SelectionBox *SelectionBox `json:"selectionBox"`
}

type SelectionComplete struct {
	SelectedShapes document.Document `json:"selectedShapes"`
}

// HistoryChange is the payload of undo and redo.
type HistoryChange struct {
	UndoStack []document.Document `json:"undoStack"`
	RedoStack []document.Document `json:"redoStack"`
	Shapes    document.Document   `json:"shapes"`
}

type ShapesChange struct {
	Shapes document.Document `json:"shapes"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CanvasZoom struct {
	Scale    float64  `json:"scale"`
	Position Position `json:"position"`
}

type CanvasDrag struct {
	Position Position `json:"position"`
}

// Empty is the payload of events that carry nothing.
type Empty struct{}

// Opaque is relayed verbatim. Used for in-call signaling and pointer/chat events.
type Opaque json.RawMessage

func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o) == 0 {
		return []byte("null"), nil
	}
	return o, nil
}

func (o *Opaque) UnmarshalJSON(b []byte) error {
	*o = append((*o)[:0], b...)
	return nil
}

var (
	errMissingRoom       = errors.New("missing roomId")
	errMissingConnection = errors.New("missing connection id")
	errMissingIdentity   = errors.New("missing participant")
)

func requireRoom(roomID string) error {
	if roomID == "" {
		return errMissingRoom
	}
	return nil
}

func requireConn(id uuid.UUID) error {
	if id == uuid.Nil {
		return errMissingConnection
	}
	return nil
}

func requireIdentity(i state.Identity) error {
	if len(i) == 0 || string(i) == "null" {
		return errMissingIdentity
	}
	return nil
}

func (m *JoinRoom) Validate() error {
	return errors.Join(requireRoom(m.RoomID), requireIdentity(m.Participant))
}

func (m *JoinRequest) Validate() error {
	return errors.Join(requireRoom(m.RoomID), requireConn(m.ConnectionID))
}

func (m *HandleJoinRequest) Validate() error {
	err := errors.Join(requireRoom(m.RoomID), requireConn(m.ConnectionID))
	if m.Accept {
		err = errors.Join(err, requireIdentity(m.Participant))
	}
	return err
}

func (m Membership) Validate() error  { return nil }
func (m *NewUser) Validate() error    { return nil }
func (m *JoinDenied) Validate() error { return requireRoom(m.RoomID) }

func (m *CallUser) Validate() error {
	return errors.Join(requireRoom(m.RoomID), requireConn(m.Target))
}

func (m *IncomingCall) Validate() error { return requireConn(m.From) }
func (m *CallFailed) Validate() error   { return nil }

func (m *AnswerCall) Validate() error {
	return errors.Join(requireRoom(m.RoomID), requireConn(m.From))
}

func (m *CallAccepted) Validate() error     { return nil }
func (m *QuitCall) Validate() error         { return requireRoom(m.RoomID) }
func (m *PermissionChange) Validate() error { return requireConn(m.ConnectionID) }

func (m *DisconnectUser) Validate() error {
	return errors.Join(requireRoom(m.RoomID), requireConn(m.ConnectionID))
}

func (m *ShapeCreated) Validate() error { return m.Shape.Validate() }
func (m *ShapeUpdated) Validate() error { return m.Shapes.Validate() }

func (m *TextUpdated) Validate() error {
	if m.ShapeID == "" {
		return fmt.Errorf("missing shapeId")
	}
	return nil
}

func (m *ShapeMoved) Validate() error {
	if m.UpdatedShape.ID == "" {
		return fmt.Errorf("missing updatedShape.id")
	}
	return nil
}

func (m *SelectionBoxUpdate) Validate() error { return nil }

// selected shapes are checked one by one, id uniqueness is the document's concern.
func (m *SelectionComplete) Validate() error {
	for _, s := range m.SelectedShapes {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *HistoryChange) Validate() error {
	if err := m.Shapes.Validate(); err != nil {
		return fmt.Errorf("shapes: %w", err)
	}
	for i, d := range m.UndoStack {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("undoStack[%d]: %w", i, err)
		}
	}
	for i, d := range m.RedoStack {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("redoStack[%d]: %w", i, err)
		}
	}
	return nil
}

func (m *ShapesChange) Validate() error { return m.Shapes.Validate() }
func (m *CanvasZoom) Validate() error {
	if m.Scale <= 0 {
		return fmt.Errorf("scale must be positive")
	}
	return nil
}
func (m *CanvasDrag) Validate() error { return nil }
func (m *Empty) Validate() error      { return nil }
func (m Opaque) Validate() error      { return nil }

func (*JoinRoom) isMessage()           {}
func (*JoinRequest) isMessage()        {}
func (*HandleJoinRequest) isMessage()  {}
func (Membership) isMessage()          {}
func (*NewUser) isMessage()            {}
func (*JoinDenied) isMessage()         {}
func (*CallUser) isMessage()           {}
func (*IncomingCall) isMessage()       {}
func (*CallFailed) isMessage()         {}
func (*AnswerCall) isMessage()         {}
func (*CallAccepted) isMessage()       {}
func (*QuitCall) isMessage()           {}
func (*PermissionChange) isMessage()   {}
func (*DisconnectUser) isMessage()     {}
func (*ShapeCreated) isMessage()       {}
func (*ShapeUpdated) isMessage()       {}
func (*TextUpdated) isMessage()        {}
func (*ShapeMoved) isMessage()         {}
func (*SelectionBoxUpdate) isMessage() {}
func (*SelectionComplete) isMessage()  {}
func (*HistoryChange) isMessage()      {}
func (*ShapesChange) isMessage()       {}
func (*CanvasZoom) isMessage()         {}
func (*CanvasDrag) isMessage()         {}
func (*Empty) isMessage()              {}
func (Opaque) isMessage()              {}

// RoomScoped is implemented by control messages that name their room in the payload.
type RoomScoped interface {
	Room() string
}

func (m *JoinRoom) Room() string          { return m.RoomID }
func (m *HandleJoinRequest) Room() string { return m.RoomID }
func (m *CallUser) Room() string          { return m.RoomID }
func (m *AnswerCall) Room() string        { return m.RoomID }
func (m *QuitCall) Room() string          { return m.RoomID }
func (m *PermissionChange) Room() string  { return m.RoomID }
func (m *DisconnectUser) Room() string    { return m.RoomID }
