package statemanager

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	rooms map[string]*state.Room
	calls map[string]*state.Call
	// modifier -> connection -> event
	modifiers map[string]map[string]map[string]*state.ModifierState

	// lock order: roomMu before connMu
	connMu sync.RWMutex
	roomMu sync.RWMutex
	modMu  sync.Mutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:     make(map[uuid.UUID]*state.Connection),
		rooms:     make(map[string]*state.Room),
		calls:     make(map[string]*state.Call),
		modifiers: make(map[string]map[string]map[string]*state.ModifierState),
		logger:    logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

// --- Connection Lifecycle ---

func (m *InMemoryManager) RegisterConnection(conn state.Transport, ipAddr, userID string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, fmt.Errorf("register %s: %w", connID, state.ErrConnectionExists)
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		UserID:    userID,
		Transport: conn,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()), slog.String("ip", ipAddr))
	return newConn, nil
}

// DeregisterConnection drops the connection and its permission flag. Room
// membership and subscriptions are left for the lifecycle handler to decide on.
func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.connMu.Lock()
	_, ok := m.conns[connID]
	if ok {
		delete(m.conns, connID)
	}
	m.connMu.Unlock()

	if !ok {
		// already deregistered
		return nil
	}

	m.modMu.Lock()
	key := connID.String()
	for _, byConn := range m.modifiers {
		for _, st := range byConn[key] {
			if st.Timer != nil {
				st.Timer.Stop()
			}
		}
		delete(byConn, key)
	}
	m.modMu.Unlock()

	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) BindRoom(connID uuid.UUID, roomID string) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return fmt.Errorf("bind room %q: %w", roomID, state.ErrConnectionNotFound)
	}
	conn.RoomID = roomID
	return nil
}

func (m *InMemoryManager) GetAllConnections() []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

func (m *InMemoryManager) ConnectionCount() int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return len(m.conns)
}

func (m *InMemoryManager) GetIPConnectionCount(ip string) (int, error) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	count := 0
	for _, c := range m.conns {
		if c.IPAddress == ip {
			count++
		}
	}
	return count, nil
}

func (m *InMemoryManager) FindOldestIPConnection(ip string) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	var oldest *state.Connection
	for _, c := range m.conns {
		if c.IPAddress != ip {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	return oldest, oldest != nil
}

// --- Room Registry ---

func (m *InMemoryManager) CreateRoom(roomID string, host uuid.UUID, identity state.Identity) (*state.Room, error) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	if _, exists := m.rooms[roomID]; exists {
		return nil, fmt.Errorf("create room %q: %w", roomID, state.ErrRoomExists)
	}

	room := state.NewRoom(roomID, host, identity)
	m.rooms[roomID] = room

	m.logger.Debug("Room created", slog.String("roomID", roomID), slog.String("host", host.String()))
	return room, nil
}

func (m *InMemoryManager) FindRoom(roomID string) (*state.Room, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

func (m *InMemoryManager) FindRoomHostedBy(connID uuid.UUID) (*state.Room, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	for _, room := range m.rooms {
		if room.Host == connID {
			return room, true
		}
	}
	return nil, false
}

func (m *InMemoryManager) AddMember(roomID string, p state.Participant) ([]state.Participant, error) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("add member: %w", state.ErrRoomNotFound)
	}
	room.Members = append(room.Members, p)
	m.logger.Debug("Member added",
		slog.String("roomID", roomID),
		slog.String("connID", p.ConnectionID.String()),
		slog.Int("members", len(room.Members)),
	)
	return m.membersLocked(room), nil
}

func (m *InMemoryManager) GetRoomMembers(roomID string) ([]state.Participant, error) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("get members: %w", state.ErrRoomNotFound)
	}
	return m.membersLocked(room), nil
}

// membersLocked copies the membership list, filling in each entry's current
// permission flag. Callers hold roomMu.
func (m *InMemoryManager) membersLocked(room *state.Room) []state.Participant {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	members := make([]state.Participant, len(room.Members))
	for i, p := range room.Members {
		p.Permission = p.ConnectionID == room.Host
		if conn, ok := m.conns[p.ConnectionID]; ok && conn.Permissions.Has(state.PermDraw) {
			p.Permission = true
		}
		members[i] = p
	}
	return members
}

func (m *InMemoryManager) Subscribe(roomID string, connID uuid.UUID) error {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return fmt.Errorf("subscribe: %w", state.ErrRoomNotFound)
	}
	room.AddSubscriber(connID)
	return nil
}

func (m *InMemoryManager) Unsubscribe(roomID string, connID uuid.UUID) error {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return fmt.Errorf("unsubscribe: %w", state.ErrRoomNotFound)
	}
	room.RemoveSubscriber(connID)
	return nil
}

func (m *InMemoryManager) GetSubscribers(roomID string) ([]state.Transport, error) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("get subscribers: %w", state.ErrRoomNotFound)
	}
	return m.transportsLocked(room.SubscriberIDs()), nil
}

// transportsLocked resolves ids to live transports, skipping connections that are gone.
func (m *InMemoryManager) transportsLocked(ids []uuid.UUID) []state.Transport {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	out := make([]state.Transport, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.conns[id]; ok && conn.Transport != nil {
			out = append(out, conn.Transport)
		}
	}
	return out
}

func (m *InMemoryManager) DeleteRoom(roomID string) ([]state.Transport, error) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("delete room: %w", state.ErrRoomNotFound)
	}
	subscribers := m.transportsLocked(room.SubscriberIDs())
	room.ClearSubscribers()
	delete(m.rooms, roomID)
	delete(m.calls, roomID)

	m.logger.Debug("Room deleted", slog.String("roomID", roomID), slog.Int("subscribers", len(subscribers)))
	return subscribers, nil
}

func (m *InMemoryManager) RoomCount() int {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	return len(m.rooms)
}

// --- Call Signaling ---
// calls share roomMu with rooms so a room and its call disappear together.

func (m *InMemoryManager) GetCall(roomID string) (*state.Call, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	call, ok := m.calls[roomID]
	return call, ok
}

func (m *InMemoryManager) StartCall(roomID string, caller, receiver uuid.UUID) (*state.Call, error) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	if _, ok := m.rooms[roomID]; !ok {
		return nil, fmt.Errorf("start call: %w", state.ErrRoomNotFound)
	}
	if _, busy := m.calls[roomID]; busy {
		return nil, fmt.Errorf("start call in %q: %w", roomID, state.ErrCallActive)
	}
	call := &state.Call{
		RoomID:    roomID,
		Caller:    caller,
		Receiver:  receiver,
		State:     state.CallRinging,
		StartedAt: time.Now(),
	}
	m.calls[roomID] = call
	m.logger.Debug("Call ringing",
		slog.String("roomID", roomID),
		slog.String("caller", caller.String()),
		slog.String("receiver", receiver.String()),
	)
	return call, nil
}

func (m *InMemoryManager) SetCallState(roomID string, s state.CallState) error {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	call, ok := m.calls[roomID]
	if !ok {
		return fmt.Errorf("set call state: %w", state.ErrCallNotFound)
	}
	call.State = s
	m.logger.Debug("Call state changed", slog.String("roomID", roomID), slog.String("state", s.String()))
	return nil
}

func (m *InMemoryManager) EndCall(roomID string) (*state.Call, bool) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	call, ok := m.calls[roomID]
	if ok {
		delete(m.calls, roomID)
		m.logger.Debug("Call ended", slog.String("roomID", roomID))
	}
	return call, ok
}

func (m *InMemoryManager) FindCallsInvolving(connID uuid.UUID) []*state.Call {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	var calls []*state.Call
	for _, call := range m.calls {
		if call.Involves(connID) {
			calls = append(calls, call)
		}
	}
	return calls
}

// --- Permission Management ---

func (m *InMemoryManager) GetPermissions(connID uuid.UUID) (state.Permission, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conn, ok := m.conns[connID]
	if !ok {
		return 0, false
	}
	return conn.Permissions, true
}

func (m *InMemoryManager) SetPermissions(connID uuid.UUID, perms state.Permission) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return fmt.Errorf("set permissions: %w", state.ErrConnectionNotFound)
	}
	conn.Permissions = perms
	return nil
}

func (m *InMemoryManager) UpdatePermissions(connID uuid.UUID, add, remove state.Permission) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return fmt.Errorf("update permissions: %w", state.ErrConnectionNotFound)
	}

	conn.Permissions |= add
	// bit clear
	conn.Permissions &^= remove
	return nil
}

// --- Modifier store Management ---

func (m *InMemoryManager) GetModifierState(modifierName, connKey, eventName string) (*state.ModifierState, bool) {
	m.modMu.Lock()
	defer m.modMu.Unlock()

	st, ok := m.modifiers[modifierName][connKey][eventName]
	return st, ok
}

func (m *InMemoryManager) SetModifierState(modifierName, connKey, eventName string, st *state.ModifierState) {
	m.modMu.Lock()
	defer m.modMu.Unlock()

	byConn, ok := m.modifiers[modifierName]
	if !ok {
		byConn = make(map[string]map[string]*state.ModifierState)
		m.modifiers[modifierName] = byConn
	}
	byEvent, ok := byConn[connKey]
	if !ok {
		byEvent = make(map[string]*state.ModifierState)
		byConn[connKey] = byEvent
	}
	if prev, ok := byEvent[eventName]; ok && prev != st && prev.Timer != nil {
		prev.Timer.Stop()
	}
	byEvent[eventName] = st
}

func (m *InMemoryManager) DeleteModifierState(modifierName, connKey, eventName string) {
	m.modMu.Lock()
	defer m.modMu.Unlock()

	byEvent, ok := m.modifiers[modifierName][connKey]
	if !ok {
		return
	}
	if st, ok := byEvent[eventName]; ok {
		if st.Timer != nil {
			st.Timer.Stop()
		}
		delete(byEvent, eventName)
	}
	if len(byEvent) == 0 {
		delete(m.modifiers[modifierName], connKey)
	}
}
