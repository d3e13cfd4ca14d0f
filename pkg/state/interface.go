package state

import (
	"github.com/google/uuid"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn Transport, ipAddr, userID string) (*Connection, error)
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	// records the room a connection last asked to join.
	BindRoom(connID uuid.UUID, roomID string) error
	GetAllConnections() []*Connection
	ConnectionCount() int
	GetIPConnectionCount(ip string) (int, error)
	FindOldestIPConnection(ip string) (*Connection, bool)

	// --- Room Registry ---
	// creates a room hosted by host with membership [identity]. Fails with
	// ErrRoomExists when the id is taken; the host of a room is never replaced.
	CreateRoom(roomID string, host uuid.UUID, identity Identity) (*Room, error)
	FindRoom(roomID string) (*Room, bool)
	FindRoomHostedBy(connID uuid.UUID) (*Room, bool)
	// appends to membership without deduplication and returns the new list.
	AddMember(roomID string, p Participant) ([]Participant, error)
	GetRoomMembers(roomID string) ([]Participant, error)
	Subscribe(roomID string, connID uuid.UUID) error
	Unsubscribe(roomID string, connID uuid.UUID) error
	// live transports subscribed to the room's broadcast channel.
	GetSubscribers(roomID string) ([]Transport, error)
	// removes the room together with its call and returns the transports that
	// were still subscribed.
	DeleteRoom(roomID string) ([]Transport, error)
	RoomCount() int

	// --- Call Signaling ---
	GetCall(roomID string) (*Call, bool)
	// records a Ringing call. Fails with ErrCallActive if the room already has one.
	StartCall(roomID string, caller, receiver uuid.UUID) (*Call, error)
	SetCallState(roomID string, s CallState) error
	EndCall(roomID string) (*Call, bool)
	FindCallsInvolving(connID uuid.UUID) []*Call

	// --- Permission Management ---
	GetPermissions(connID uuid.UUID) (Permission, bool)
	SetPermissions(connID uuid.UUID, perms Permission) error
	UpdatePermissions(connID uuid.UUID, add, remove Permission) error

	// --- Modifier store Management ---
	GetModifierState(modifierName, connKey, eventName string) (state *ModifierState, found bool)

	// SetModifierState sets or updates the state data, stopping the timer of
	// any state it replaces.
	SetModifierState(modifierName, connKey, eventName string, state *ModifierState)

	// DeleteModifierState removes a state entry. This is typically called by
	// the state's own expiry timer.
	DeleteModifierState(modifierName, connKey, eventName string)
}
