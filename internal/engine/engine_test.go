package engine_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/a-essam23/go-classroom/internal/engine"
	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/document"
	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/a-essam23/go-classroom/pkg/state/statemanager"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeConn struct {
	id     uuid.UUID
	mu     sync.Mutex
	in     [][]byte
	closed bool
}

func (f *fakeConn) ID() uuid.UUID { return f.id }

func (f *fakeConn) Send(message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, message)
}

func (f *fakeConn) Close(error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// take returns and clears everything received so far.
func (f *fakeConn) take(t *testing.T) []*protocol.Frame {
	t.Helper()
	f.mu.Lock()
	raw := f.in
	f.in = nil
	f.mu.Unlock()

	out := make([]*protocol.Frame, 0, len(raw))
	for _, b := range raw {
		frame, err := protocol.Parse(b)
		require.NoError(t, err, string(b))
		out = append(out, frame)
	}
	return out
}

func events(frames []*protocol.Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

// only asserts exactly one frame was received and returns it.
func only(t *testing.T, c *fakeConn, event string) *protocol.Frame {
	t.Helper()
	frames := c.take(t)
	require.Len(t, frames, 1, "got %v", events(frames))
	require.Equal(t, event, frames[0].Event)
	return frames[0]
}

type harness struct {
	t   *testing.T
	sm  *statemanager.InMemoryManager
	reg *engine.Registry
}

func newHarness(t *testing.T, opts engine.RegisterCoreOptions) *harness {
	logger := newTestLogger()
	reg := engine.New(logger)
	reg.RegisterCore(&opts)
	return &harness{t: t, sm: statemanager.NewInMemoryManager(logger), reg: reg}
}

func defaultHarness(t *testing.T) *harness {
	return newHarness(t, engine.RegisterCoreOptions{Rooms: config.RoomsConfig{EnforceHost: true}})
}

func (h *harness) connect() *fakeConn {
	c := &fakeConn{id: uuid.New()}
	_, err := h.sm.RegisterConnection(c, "127.0.0.1", "")
	require.NoError(h.t, err)
	return c
}

// send runs a client frame through its pipeline the way the router does.
func (h *harness) send(from *fakeConn, event, target string, payload any) error {
	h.t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "target": target, "payload": payload})
	require.NoError(h.t, err)
	frame, err := protocol.Decode(raw)
	require.NoError(h.t, err)

	p, ok := h.reg.Pipeline(frame.Event)
	require.True(h.t, ok, frame.Event)
	conn, found := h.sm.GetConnection(from.id)
	require.True(h.t, found)

	return p.Run(&pipeline.Cargo{
		Logger:       newTestLogger(),
		Connection:   conn,
		StateManager: h.sm,
		Event:        frame.Event,
		Target:       frame.Target,
		Message:      frame.Message,
	})
}

func (h *harness) mustSend(from *fakeConn, event, target string, payload any) {
	h.t.Helper()
	require.NoError(h.t, h.send(from, event, target, payload))
}

func (h *harness) disconnect(c *fakeConn) {
	h.t.Helper()
	p, ok := h.reg.Pipeline(engine.EventDisconnect)
	require.True(h.t, ok)
	conn, found := h.sm.GetConnection(c.id)
	if !found {
		conn = &state.Connection{ID: c.id}
	}
	require.NoError(h.t, p.Run(&pipeline.Cargo{
		Logger:       newTestLogger(),
		Connection:   conn,
		StateManager: h.sm,
		Event:        engine.EventDisconnect,
	}))
}

func person(name string) map[string]string { return map[string]string{"name": name} }

func (h *harness) join(c *fakeConn, roomID, name string) {
	h.t.Helper()
	h.mustSend(c, protocol.EventJoinRoom, "", map[string]any{"roomId": roomID, "participant": person(name)})
}

func (h *harness) decide(host, requester *fakeConn, roomID, name string, accept bool) {
	h.t.Helper()
	h.mustSend(host, protocol.EventHandleJoinRequest, "", map[string]any{
		"roomId":       roomID,
		"connectionId": requester.id,
		"accept":       accept,
		"participant":  person(name),
	})
}

// room builds r1 with a host and admitted guests, with all inboxes drained.
func (h *harness) room(guests ...string) (*fakeConn, []*fakeConn) {
	h.t.Helper()
	host := h.connect()
	h.join(host, "r1", "Host")
	out := make([]*fakeConn, len(guests))
	for i, name := range guests {
		out[i] = h.connect()
		h.join(out[i], "r1", name)
		h.decide(host, out[i], "r1", name, true)
	}
	host.take(h.t)
	for _, g := range out {
		g.take(h.t)
	}
	return host, out
}

func (h *harness) call(from, to *fakeConn) {
	h.t.Helper()
	h.mustSend(from, protocol.EventCallUser, "", map[string]any{"roomId": "r1", "targetConnectionId": to.id})
}

func (h *harness) answer(receiver, caller *fakeConn, accept bool) {
	h.t.Helper()
	h.mustSend(receiver, protocol.EventAnswerCall, "", map[string]any{"roomId": "r1", "fromConnectionId": caller.id, "accept": accept})
}

// --- Admission ---

func TestFirstJoinCreatesRoomAndHost(t *testing.T) {
	h := defaultHarness(t)
	a := h.connect()

	h.join(a, "r1", "Alice")

	frame := only(t, a, protocol.EventHost)
	members := frame.Message.(*protocol.Membership)
	require.Len(t, *members, 1)
	assert.Equal(t, a.id, (*members)[0].ConnectionID)
	assert.Equal(t, "Alice", (*members)[0].Identity.Name())
	assert.True(t, (*members)[0].Permission)

	room, found := h.sm.FindRoom("r1")
	require.True(t, found)
	assert.Equal(t, a.id, room.Host)
}

func TestJoinRequestAcceptedBroadcastsNewUser(t *testing.T) {
	h := defaultHarness(t)
	a, b := h.connect(), h.connect()
	h.join(a, "r1", "Alice")
	a.take(t)

	h.join(b, "r1", "Bob")
	assert.Empty(t, b.take(t), "requester hears nothing until the host decides")
	req := only(t, a, protocol.EventJoinRequest).Message.(*protocol.JoinRequest)
	assert.Equal(t, b.id, req.ConnectionID)
	assert.Equal(t, "Bob", req.Participant.Name())

	h.decide(a, b, "r1", "Bob", true)

	bFrames := b.take(t)
	require.Equal(t, []string{protocol.EventJoinAccepted, protocol.EventNewUser}, events(bFrames))
	accepted := bFrames[0].Message.(*protocol.Membership)
	assert.Len(t, *accepted, 2)

	newUser := only(t, a, protocol.EventNewUser).Message.(*protocol.NewUser)
	assert.Len(t, newUser.Membership, 2)
	assert.Equal(t, b.id, newUser.NewParticipant.ConnectionID)
	assert.False(t, newUser.NewParticipant.Permission)

	room, _ := h.sm.FindRoom("r1")
	assert.Equal(t, a.id, room.Host, "host is never reassigned")
}

func TestJoinRequestDenied(t *testing.T) {
	h := defaultHarness(t)
	a, b := h.connect(), h.connect()
	h.join(a, "r1", "Alice")
	h.join(b, "r1", "Bob")
	a.take(t)

	h.decide(a, b, "r1", "Bob", false)

	denied := only(t, b, protocol.EventJoinDenied).Message.(*protocol.JoinDenied)
	assert.Equal(t, "r1", denied.RoomID)
	assert.Empty(t, a.take(t))
	members, err := h.sm.GetRoomMembers("r1")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	// the denied requester stays bound to the room it asked for
	conn, _ := h.sm.GetConnection(b.id)
	assert.Equal(t, "r1", conn.RoomID)
	room, _ := h.sm.FindRoom("r1")
	assert.False(t, room.IsSubscribed(b.id))
}

func TestJoinDecisionFromNonHostIsDropped(t *testing.T) {
	h := defaultHarness(t)
	a, b, c := h.connect(), h.connect(), h.connect()
	h.join(a, "r1", "Alice")
	h.join(b, "r1", "Bob")

	err := h.send(c, protocol.EventHandleJoinRequest, "", map[string]any{
		"roomId": "r1", "connectionId": b.id, "accept": true, "participant": person("Bob"),
	})
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	members, _ := h.sm.GetRoomMembers("r1")
	assert.Len(t, members, 1)
}

func TestJoinDecisionTrustsCallerWhenHostNotEnforced(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{})
	a, b, c := h.connect(), h.connect(), h.connect()
	h.join(a, "r1", "Alice")
	h.join(b, "r1", "Bob")

	h.decide(c, b, "r1", "Bob", true)

	members, _ := h.sm.GetRoomMembers("r1")
	assert.Len(t, members, 2)
}

func TestJoinDecisionForUnknownRoomIsNoop(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{})
	a, b := h.connect(), h.connect()

	h.decide(a, b, "nowhere", "Bob", true)

	assert.Empty(t, a.take(t))
	assert.Empty(t, b.take(t))
}

// --- Calls ---

func TestCallAcceptedAndMessagesBridged(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]

	h.call(b, a)
	incoming := only(t, a, protocol.EventIncomingCall).Message.(*protocol.IncomingCall)
	assert.Equal(t, b.id, incoming.From)
	call, ok := h.sm.GetCall("r1")
	require.True(t, ok)
	assert.Equal(t, state.CallRinging, call.State)

	// nothing is bridged while ringing
	h.mustSend(b, protocol.EventMessage, "", map[string]any{"sdp": "offer"})
	assert.Empty(t, a.take(t))

	h.answer(a, b, true)
	accepted := only(t, b, protocol.EventCallAccepted).Message.(*protocol.CallAccepted)
	assert.Equal(t, a.id, accepted.To)
	call, _ = h.sm.GetCall("r1")
	assert.Equal(t, state.CallActive, call.State)

	h.mustSend(b, protocol.EventMessage, "", map[string]any{"sdp": "offer"})
	msg := only(t, a, protocol.EventMessage).Message.(*protocol.Opaque)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(*msg))
	assert.Empty(t, b.take(t))
}

func TestCallMessageNotLeakedToOthers(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]
	h.call(a, b)
	h.answer(b, a, true)
	a.take(t)
	b.take(t)

	h.mustSend(a, protocol.EventMessage, "", map[string]any{"candidate": 1})
	only(t, b, protocol.EventMessage)
	assert.Empty(t, c.take(t))

	h.mustSend(c, protocol.EventMessage, "", map[string]any{"candidate": 2})
	assert.Empty(t, a.take(t))
	assert.Empty(t, b.take(t))
}

func TestCallRejected(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]

	h.call(a, b)
	b.take(t)
	h.answer(b, a, false)

	only(t, a, protocol.EventCallRejected)
	_, ok := h.sm.GetCall("r1")
	assert.False(t, ok, "Idle after rejection")
}

func TestQuitCallNotifiesBothEndpoints(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]
	h.call(b, a)
	h.answer(a, b, true)
	a.take(t)
	b.take(t)

	h.mustSend(b, protocol.EventQuitCall, "", map[string]any{"roomId": "r1"})

	only(t, a, protocol.EventCallEnded)
	only(t, b, protocol.EventCallEnded)
	_, ok := h.sm.GetCall("r1")
	assert.False(t, ok)
}

func TestQuitFromRingingReturnsToIdle(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]
	h.call(a, b)

	h.mustSend(a, protocol.EventQuitCall, "", map[string]any{"roomId": "r1"})

	_, ok := h.sm.GetCall("r1")
	assert.False(t, ok)
}

func TestSecondCallFailsWhileRingingOrActive(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]

	h.call(b, a)
	h.call(c, a)
	failed := only(t, c, protocol.EventCallFailed).Message.(*protocol.CallFailed)
	assert.Equal(t, protocol.ReasonCallActive, failed.Reason)

	h.answer(a, b, true)
	a.take(t)
	h.call(a, c)
	failed = only(t, a, protocol.EventCallFailed).Message.(*protocol.CallFailed)
	assert.Equal(t, protocol.ReasonCallActive, failed.Reason)

	call, _ := h.sm.GetCall("r1")
	assert.Equal(t, b.id, call.Caller, "the first call is untouched")
	assert.Len(t, h.sm.FindCallsInvolving(a.id), 1)
}

func TestCallBetweenNonHostsNotPermitted(t *testing.T) {
	h := defaultHarness(t)
	_, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]

	h.call(b, c)

	failed := only(t, b, protocol.EventCallFailed).Message.(*protocol.CallFailed)
	assert.Equal(t, protocol.ReasonNotPermitted, failed.Reason)
	assert.Empty(t, c.take(t))
	_, ok := h.sm.GetCall("r1")
	assert.False(t, ok)
}

func TestAnswerFromWrongConnectionIsNoop(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]
	h.call(b, a)
	a.take(t)

	h.answer(c, b, true)
	h.answer(a, c, true)

	assert.Empty(t, b.take(t))
	call, _ := h.sm.GetCall("r1")
	assert.Equal(t, state.CallRinging, call.State)
}

func TestQuitFromNonEndpointIsNoop(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]
	h.call(b, a)
	h.answer(a, b, true)
	a.take(t)
	b.take(t)

	h.mustSend(c, protocol.EventQuitCall, "", map[string]any{"roomId": "r1"})

	assert.Empty(t, a.take(t))
	assert.Empty(t, b.take(t))
	assert.Empty(t, c.take(t))
	call, ok := h.sm.GetCall("r1")
	require.True(t, ok)
	assert.Equal(t, state.CallActive, call.State)
}

func TestAnswerAndQuitWithoutCallAreNoops(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]

	h.answer(a, b, true)
	h.mustSend(a, protocol.EventQuitCall, "", map[string]any{"roomId": "r1"})

	assert.Empty(t, a.take(t))
	assert.Empty(t, b.take(t))
}

// --- Host disconnect and lifecycle ---

func TestHostDisconnectDestroysRoomAndCall(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]
	h.call(b, a)
	h.answer(a, b, true)
	a.take(t)
	b.take(t)

	h.disconnect(a)

	assert.Equal(t, []string{protocol.EventCallEnded, protocol.EventRoomDestroyed}, events(b.take(t)))
	assert.Equal(t, []string{protocol.EventRoomDestroyed}, events(c.take(t)))
	_, found := h.sm.FindRoom("r1")
	assert.False(t, found)
	_, ok := h.sm.GetCall("r1")
	assert.False(t, ok)

	// the room id is free again
	h.join(b, "r1", "Bob")
	only(t, b, protocol.EventHost)
	room, _ := h.sm.FindRoom("r1")
	assert.Equal(t, b.id, room.Host)
}

func TestGuestDisconnectEndsCallKeepsMembership(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]
	h.call(a, b)
	h.answer(b, a, true)
	a.take(t)
	b.take(t)

	h.disconnect(b)

	only(t, a, protocol.EventCallEnded)
	_, ok := h.sm.GetCall("r1")
	assert.False(t, ok)
	members, err := h.sm.GetRoomMembers("r1")
	require.NoError(t, err)
	assert.Len(t, members, 2, "stale membership is kept")
	_, found := h.sm.GetConnection(b.id)
	assert.False(t, found)

	// broadcasts skip the departed connection
	h.mustSend(a, protocol.EventClearShapes, "r1", nil)
	assert.Empty(t, b.take(t))
}

func TestDisconnectOfUnknownConnection(t *testing.T) {
	h := defaultHarness(t)
	h.disconnect(&fakeConn{id: uuid.New()})
}

// --- Admin ---

func TestDisconnectUser(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]

	h.mustSend(a, protocol.EventDisconnectUser, "", map[string]any{"roomId": "r1", "connectionId": b.id})

	only(t, b, protocol.EventDisconnectedByHost)
	members, _ := h.sm.GetRoomMembers("r1")
	assert.Len(t, members, 3, "membership is not pruned")

	h.mustSend(a, protocol.EventShapeCreated, "r1", map[string]any{"shape": map[string]any{"id": "r-1", "tool": "rectangle"}})
	assert.Empty(t, b.take(t))
	only(t, c, protocol.EventShapeCreated)
}

func TestDisconnectUserFromNonHostDenied(t *testing.T) {
	h := defaultHarness(t)
	_, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]

	err := h.send(b, protocol.EventDisconnectUser, "", map[string]any{"roomId": "r1", "connectionId": c.id})

	assert.ErrorIs(t, err, pipeline.ErrDenied)
	assert.Empty(t, c.take(t))
}

func TestPermissionGatesDocumentEvents(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{Rooms: config.RoomsConfig{EnforceHost: true, EnforcePermission: true}})
	a, guests := h.room("Bob")
	b := guests[0]
	shape := map[string]any{"shape": map[string]any{"id": "e-1", "tool": "ellipse"}}

	err := h.send(b, protocol.EventShapeCreated, "r1", shape)
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	assert.Empty(t, a.take(t))

	// viewport and pointer traffic is never gated
	h.mustSend(b, protocol.EventCanvasDragged, "r1", map[string]any{"position": map[string]float64{"x": 1, "y": 2}})
	only(t, a, protocol.EventUpdateCanvasDrag)

	h.mustSend(a, protocol.EventGrantPermission, "", map[string]any{"roomId": "r1", "connectionId": b.id})
	assert.Empty(t, b.take(t), "permission changes are silent")
	h.mustSend(b, protocol.EventShapeCreated, "r1", shape)
	only(t, a, protocol.EventShapeCreated)

	h.mustSend(a, protocol.EventRevokePermission, "", map[string]any{"connectionId": b.id})
	err = h.send(b, protocol.EventShapeCreated, "r1", shape)
	assert.ErrorIs(t, err, pipeline.ErrDenied)

	// host always draws
	h.mustSend(a, protocol.EventClearShapes, "r1", nil)
	only(t, b, protocol.EventClearShapes)
}

func TestGrantPermissionFlag(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]

	h.mustSend(a, protocol.EventGrantPermission, "", map[string]any{"roomId": "r1", "connectionId": b.id})
	perms, _ := h.sm.GetPermissions(b.id)
	assert.True(t, perms.Has(state.PermDraw))
	members, _ := h.sm.GetRoomMembers("r1")
	assert.True(t, members[1].Permission)

	h.mustSend(a, protocol.EventRevokePermission, "", map[string]any{"roomId": "r1", "connectionId": b.id})
	perms, _ = h.sm.GetPermissions(b.id)
	assert.False(t, perms.Has(state.PermDraw))

	// only admitted guests can be granted
	err := h.send(a, protocol.EventGrantPermission, "", map[string]any{"roomId": "r1", "connectionId": uuid.New()})
	assert.ErrorIs(t, err, pipeline.ErrDenied)
}

func TestGrantPermissionUnknownTargetIsNoopWhenHostNotEnforced(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{})
	a, _ := h.room()

	h.mustSend(a, protocol.EventGrantPermission, "", map[string]any{"roomId": "r1", "connectionId": uuid.New()})
	assert.Empty(t, a.take(t))
}

func TestHostCheckUsesPayloadRoom(t *testing.T) {
	h := defaultHarness(t)
	_, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]
	eve := h.connect()
	h.join(eve, "r1", "Eve")

	// Bob hosts a room of his own and names it as the frame target
	h.join(b, "mine", "Bob")
	b.take(t)

	err := h.send(b, protocol.EventDisconnectUser, "mine", map[string]any{"roomId": "r1", "connectionId": c.id})
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	assert.Empty(t, c.take(t))

	err = h.send(b, protocol.EventHandleJoinRequest, "mine", map[string]any{
		"roomId": "r1", "connectionId": eve.id, "accept": true, "participant": person("Eve"),
	})
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	assert.Empty(t, eve.take(t))
	members, _ := h.sm.GetRoomMembers("r1")
	assert.Len(t, members, 3)

	err = h.send(b, protocol.EventGrantPermission, "mine", map[string]any{"roomId": "r1", "connectionId": c.id})
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	perms, _ := h.sm.GetPermissions(c.id)
	assert.False(t, perms.Has(state.PermDraw))
}

func TestHostingAnotherRoomGrantsNoDrawing(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{Rooms: config.RoomsConfig{EnforceHost: true, EnforcePermission: true}})
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]
	shape := map[string]any{"shape": map[string]any{"id": "s-1", "tool": "star"}}

	h.join(b, "mine", "Bob")
	b.take(t)
	err := h.send(b, protocol.EventShapeCreated, "r1", shape)
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	assert.Empty(t, a.take(t))

	// a host cannot grant itself the flag
	err = h.send(b, protocol.EventGrantPermission, "", map[string]any{"roomId": "mine", "connectionId": b.id})
	assert.ErrorIs(t, err, pipeline.ErrDenied)

	// nor hand it to someone outside its room
	err = h.send(b, protocol.EventGrantPermission, "", map[string]any{"roomId": "mine", "connectionId": c.id})
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	perms, _ := h.sm.GetPermissions(c.id)
	assert.False(t, perms.Has(state.PermDraw))

	// Bob still draws freely in the room he hosts
	h.mustSend(b, protocol.EventShapeCreated, "mine", shape)
}

func TestDrawFlagOnlyCountsInJoinedRooms(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{Rooms: config.RoomsConfig{EnforceHost: true, EnforcePermission: true}})
	a, guests := h.room("Bob")
	b := guests[0]
	outsider := h.connect()
	h.join(outsider, "other", "Olga")
	outsider.take(t)

	h.mustSend(a, protocol.EventGrantPermission, "", map[string]any{"roomId": "r1", "connectionId": b.id})
	h.mustSend(b, protocol.EventShapeCreated, "r1", map[string]any{"shape": map[string]any{"id": "r-1", "tool": "rectangle"}})
	only(t, a, protocol.EventShapeCreated)

	err := h.send(b, protocol.EventClearShapes, "other", nil)
	assert.ErrorIs(t, err, pipeline.ErrDenied)
	assert.Empty(t, outsider.take(t))
}

// --- Document relay ---

func TestDocumentEventsRelayedExceptSender(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob", "Carol")
	b, c := guests[0], guests[1]

	h.mustSend(b, protocol.EventShapesChange, "r1", map[string]any{
		"shapes": []map[string]any{{"id": "l-1", "tool": "LINE", "points": []float64{0, 0, 5, 5}}},
	})

	assert.Empty(t, b.take(t))
	for _, peer := range []*fakeConn{a, c} {
		msg := only(t, peer, protocol.EventShapesChange).Message.(*protocol.ShapesChange)
		require.Len(t, msg.Shapes, 1)
		assert.Equal(t, document.ToolLine, msg.Shapes[0].Tool)
	}
}

func TestViewportEventsRenamed(t *testing.T) {
	h := defaultHarness(t)
	a, guests := h.room("Bob")
	b := guests[0]

	h.mustSend(a, protocol.EventCanvasZoomed, "r1", map[string]any{"scale": 2, "position": map[string]float64{"x": 3, "y": 4}})

	zoom := only(t, b, protocol.EventUpdateCanvasZoom).Message.(*protocol.CanvasZoom)
	assert.Equal(t, 2.0, zoom.Scale)
	assert.Equal(t, protocol.Position{X: 3, Y: 4}, zoom.Position)
}

func TestRoomEventForUnknownRoomDropped(t *testing.T) {
	h := defaultHarness(t)
	a := h.connect()
	h.mustSend(a, protocol.EventSendMessage, "ghost", map[string]any{"text": "hi"})
	assert.Empty(t, a.take(t))
}

// --- Modifiers ---

func TestRateLimit(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{Limits: config.LimitsConfig{
		Events:    2,
		Window:    time.Hour,
		Overrides: map[string]int{"onpointermove": 3},
	}})
	a, _ := h.room()

	for i := 0; i < 2; i++ {
		h.mustSend(a, protocol.EventClearShapes, "r1", nil)
	}
	err := h.send(a, protocol.EventClearShapes, "r1", nil)
	assert.ErrorIs(t, err, pipeline.ErrDenied)

	for i := 0; i < 3; i++ {
		h.mustSend(a, protocol.EventPointerMove, "r1", map[string]int{"x": i})
	}
	err = h.send(a, protocol.EventPointerMove, "r1", nil)
	assert.ErrorIs(t, err, pipeline.ErrDenied)
}

func TestRateLimitWindowExpires(t *testing.T) {
	h := newHarness(t, engine.RegisterCoreOptions{Limits: config.LimitsConfig{Events: 1, Window: 20 * time.Millisecond}})
	a, _ := h.room()

	h.mustSend(a, protocol.EventClearShapes, "r1", nil)
	assert.ErrorIs(t, h.send(a, protocol.EventClearShapes, "r1", nil), pipeline.ErrDenied)

	assert.Eventually(t, func() bool {
		_, found := h.sm.GetModifierState("rate_limit", a.id.String(), protocol.EventClearShapes)
		return !found
	}, time.Second, 5*time.Millisecond)
	h.mustSend(a, protocol.EventClearShapes, "r1", nil)
}

// --- Registry ---

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := engine.New(newTestLogger())
	reg.RegisterCore(&engine.RegisterCoreOptions{})

	assert.Panics(t, func() { reg.RegisterAction(protocol.EventJoinRoom, func(*pipeline.Cargo) error { return nil }) })
	assert.Panics(t, func() { reg.RegisterModifier("require_host", func(*pipeline.Cargo) error { return nil }) })
	assert.Panics(t, func() { reg.Bind(protocol.EventJoinRoom, "no_such_modifier") })
}

func TestEveryInboundEventHasAPipeline(t *testing.T) {
	reg := engine.New(newTestLogger())
	reg.RegisterCore(&engine.RegisterCoreOptions{})

	for _, event := range protocol.RoomEvents() {
		_, ok := reg.Pipeline(event)
		assert.True(t, ok, event)
	}
	for _, event := range []string{
		protocol.EventJoinRoom, protocol.EventHandleJoinRequest, protocol.EventCallUser,
		protocol.EventAnswerCall, protocol.EventQuitCall, protocol.EventMessage,
		protocol.EventGrantPermission, protocol.EventRevokePermission, protocol.EventDisconnectUser,
	} {
		_, ok := reg.Pipeline(event)
		assert.True(t, ok, event)
	}
	_, ok := reg.Pipeline(protocol.EventRoomDestroyed)
	assert.False(t, ok)
}
