package state

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionExists   = errors.New("connection is already registered")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomExists         = errors.New("room already exists")
	ErrCallNotFound       = errors.New("call not found")
	ErrCallActive         = errors.New("call already active")
)

// Transport is the relay's handle on a live client connection.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// representation of a single transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	// Subject of the bearer token, empty when auth is disabled.
	UserID    string
	Transport Transport

	// Room named by the connection's last joinRoom, accepted or not.
	RoomID      string
	Permissions Permission
	CreatedAt   time.Time
}

// Identity is the externally supplied participant profile. The relay keeps it
// verbatim and only ever reads the display name out of it.
type Identity json.RawMessage

func (i Identity) Name() string {
	return gjson.GetBytes(i, "name").String()
}

func (i Identity) MarshalJSON() ([]byte, error) {
	if len(i) == 0 {
		return []byte("null"), nil
	}
	return i, nil
}

func (i *Identity) UnmarshalJSON(b []byte) error {
	*i = append((*i)[:0], b...)
	return nil
}

// Participant is one entry of a room's membership list.
type Participant struct {
	Identity     Identity  `json:"identity"`
	ConnectionID uuid.UUID `json:"connectionId"`
	Permission   bool      `json:"permission"`
}

// canonical representation of a room.
type Room struct {
	ID string
	// Host is fixed when the room is created.
	Host      uuid.UUID
	Members   []Participant
	CreatedAt time.Time

	// connections receiving room broadcasts
	subscribers map[uuid.UUID]struct{}
}

func NewRoom(id string, host uuid.UUID, identity Identity) *Room {
	return &Room{
		ID:          id,
		Host:        host,
		Members:     []Participant{{Identity: identity, ConnectionID: host, Permission: true}},
		CreatedAt:   time.Now(),
		subscribers: map[uuid.UUID]struct{}{host: {}},
	}
}

func (r *Room) IsSubscribed(connID uuid.UUID) bool {
	_, ok := r.subscribers[connID]
	return ok
}

func (r *Room) AddSubscriber(connID uuid.UUID) {
	if r.subscribers == nil {
		r.subscribers = make(map[uuid.UUID]struct{})
	}
	r.subscribers[connID] = struct{}{}
}

func (r *Room) RemoveSubscriber(connID uuid.UUID) {
	delete(r.subscribers, connID)
}

func (r *Room) ClearSubscribers() {
	clear(r.subscribers)
}

func (r *Room) SubscriberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.subscribers))
	for id := range r.subscribers {
		ids = append(ids, id)
	}
	return ids
}

type CallState int

const (
	CallRinging CallState = iota + 1
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	default:
		return "idle"
	}
}

// Call is the single two-party call of a room. No entry means the room is idle.
type Call struct {
	RoomID    string
	Caller    uuid.UUID
	Receiver  uuid.UUID
	State     CallState
	StartedAt time.Time
}

func (c *Call) Involves(connID uuid.UUID) bool {
	return c.Caller == connID || c.Receiver == connID
}

// Peer returns the other endpoint of the call.
func (c *Call) Peer(connID uuid.UUID) (uuid.UUID, bool) {
	switch connID {
	case c.Caller:
		return c.Receiver, true
	case c.Receiver:
		return c.Caller, true
	}
	return uuid.Nil, false
}

// ModifierState is per-connection bookkeeping owned by an event modifier.
type ModifierState struct {
	Value any
	// fires once the state expires; stopped when the state is replaced or deleted
	Timer *time.Timer
}
