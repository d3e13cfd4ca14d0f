package protocol

const (
	// admission
	EventJoinRoom          = "joinRoom"
	EventJoinRequest       = "joinRequest"
	EventHandleJoinRequest = "handleJoinRequest"
	EventHost              = "host"
	EventJoinAccepted      = "joinAccepted"
	EventJoinDenied        = "joinDenied"
	EventNewUser           = "newUser"

	// calls
	EventCallUser     = "callUser"
	EventIncomingCall = "incomingCall"
	EventCallFailed   = "callFailed"
	EventAnswerCall   = "answerCall"
	EventCallAccepted = "callAccepted"
	EventCallRejected = "callRejected"
	EventQuitCall     = "quitCall"
	EventCallEnded    = "callEnded"
	EventMessage      = "message"

	// admin
	EventGrantPermission    = "grantPermission"
	EventRevokePermission   = "revokePermission"
	EventDisconnectUser     = "disconnectUser"
	EventDisconnectedByHost = "disconnectedByHost"
	EventRoomDestroyed      = "roomDestroyed"

	// document
	EventShapeCreated       = "shapeCreated"
	EventShapeUpdated       = "shapeUpdated"
	EventTextUpdated        = "textUpdated"
	EventShapeTransformed   = "shapeTransformed"
	EventShapeDragged       = "shapeDragged"
	EventClearShapes        = "clearShapes"
	EventSelectionBoxUpdate = "selectionBoxUpdate"
	EventSelectionComplete  = "selectionComplete"
	EventUndo               = "undo"
	EventRedo               = "redo"
	EventShapesChange       = "shapesChange"

	// viewport
	EventCanvasZoomed     = "canvasZoomed"
	EventCanvasDragged    = "canvasDragged"
	EventUpdateCanvasZoom = "updateCanvasZoom"
	EventUpdateCanvasDrag = "updateCanvasDrag"

	// pointer and chat
	EventPointerDown = "onPointerDown"
	EventPointerMove = "onPointerMove"
	EventPointerUp   = "onPointerUp"
	EventClick       = "onClick"
	EventDoubleClick = "handleDoubleClick"
	EventTextChange  = "handleTextChange"
	EventTextBlur    = "handleTextBlur"
	EventSendMessage = "handleSendMessage"
)

const (
	ReasonCallActive   = "call already active"
	ReasonNotPermitted = "target not permitted"
)

// Scope says who may send an event and how the relay routes it.
type Scope int

const (
	// relay to client only
	ScopeClient Scope = iota
	// client to relay, handled by a control action
	ScopeControl
	// client to relay, rebroadcast to the target room except the sender
	ScopeRoom
)

type kind struct {
	scope Scope
	new   func() Message
	// name used when a room event is rebroadcast
	relayAs string
	// room events that change the shared document
	mutates bool
}

var kinds = map[string]kind{
	EventJoinRoom:          {scope: ScopeControl, new: func() Message { return &JoinRoom{} }},
	EventHandleJoinRequest: {scope: ScopeControl, new: func() Message { return &HandleJoinRequest{} }},
	EventCallUser:          {scope: ScopeControl, new: func() Message { return &CallUser{} }},
	EventAnswerCall:        {scope: ScopeControl, new: func() Message { return &AnswerCall{} }},
	EventQuitCall:          {scope: ScopeControl, new: func() Message { return &QuitCall{} }},
	EventMessage:           {scope: ScopeControl, new: func() Message { return &Opaque{} }},
	EventGrantPermission:   {scope: ScopeControl, new: func() Message { return &PermissionChange{} }},
	EventRevokePermission:  {scope: ScopeControl, new: func() Message { return &PermissionChange{} }},
	EventDisconnectUser:    {scope: ScopeControl, new: func() Message { return &DisconnectUser{} }},

	EventShapeCreated:       {scope: ScopeRoom, mutates: true, new: func() Message { return &ShapeCreated{} }},
	EventShapeUpdated:       {scope: ScopeRoom, mutates: true, new: func() Message { return &ShapeUpdated{} }},
	EventTextUpdated:        {scope: ScopeRoom, mutates: true, new: func() Message { return &TextUpdated{} }},
	EventShapeTransformed:   {scope: ScopeRoom, mutates: true, new: func() Message { return &ShapeMoved{} }},
	EventShapeDragged:       {scope: ScopeRoom, mutates: true, new: func() Message { return &ShapeMoved{} }},
	EventClearShapes:        {scope: ScopeRoom, mutates: true, new: func() Message { return &Empty{} }},
	EventSelectionBoxUpdate: {scope: ScopeRoom, new: func() Message { return &SelectionBoxUpdate{} }},
	EventSelectionComplete:  {scope: ScopeRoom, new: func() Message { return &SelectionComplete{} }},
	EventUndo:               {scope: ScopeRoom, mutates: true, new: func() Message { return &HistoryChange{} }},
	EventRedo:               {scope: ScopeRoom, mutates: true, new: func() Message { return &HistoryChange{} }},
	EventShapesChange:       {scope: ScopeRoom, mutates: true, new: func() Message { return &ShapesChange{} }},
	EventCanvasZoomed:       {scope: ScopeRoom, relayAs: EventUpdateCanvasZoom, new: func() Message { return &CanvasZoom{} }},
	EventCanvasDragged:      {scope: ScopeRoom, relayAs: EventUpdateCanvasDrag, new: func() Message { return &CanvasDrag{} }},

	EventPointerDown: {scope: ScopeRoom, new: func() Message { return &Opaque{} }},
	EventPointerMove: {scope: ScopeRoom, new: func() Message { return &Opaque{} }},
	EventPointerUp:   {scope: ScopeRoom, new: func() Message { return &Opaque{} }},
	EventClick:       {scope: ScopeRoom, new: func() Message { return &Opaque{} }},
	EventDoubleClick: {scope: ScopeRoom, new: func() Message { return &Opaque{} }},
	EventTextChange:  {scope: ScopeRoom, new: func() Message { return &Opaque{} }},
	EventTextBlur:    {scope: ScopeRoom, new: func() Message { return &Opaque{} }},
	EventSendMessage: {scope: ScopeRoom, new: func() Message { return &Opaque{} }},

	EventJoinRequest:        {new: func() Message { return &JoinRequest{} }},
	EventHost:               {new: func() Message { return &Membership{} }},
	EventJoinAccepted:       {new: func() Message { return &Membership{} }},
	EventJoinDenied:         {new: func() Message { return &JoinDenied{} }},
	EventNewUser:            {new: func() Message { return &NewUser{} }},
	EventIncomingCall:       {new: func() Message { return &IncomingCall{} }},
	EventCallFailed:         {new: func() Message { return &CallFailed{} }},
	EventCallAccepted:       {new: func() Message { return &CallAccepted{} }},
	EventCallRejected:       {new: func() Message { return &Empty{} }},
	EventCallEnded:          {new: func() Message { return &Empty{} }},
	EventDisconnectedByHost: {new: func() Message { return &Empty{} }},
	EventRoomDestroyed:      {new: func() Message { return &Empty{} }},
	EventUpdateCanvasZoom:   {new: func() Message { return &CanvasZoom{} }},
	EventUpdateCanvasDrag:   {new: func() Message { return &CanvasDrag{} }},
}

func ScopeOf(event string) (Scope, bool) {
	k, ok := kinds[event]
	return k.scope, ok
}

// RelayName is the event name peers receive when a room event is rebroadcast.
func RelayName(event string) string {
	if k, ok := kinds[event]; ok && k.relayAs != "" {
		return k.relayAs
	}
	return event
}

// Mutates reports whether a room event changes the shared document.
func Mutates(event string) bool {
	return kinds[event].mutates
}

// RoomEvents lists every event rebroadcast to a room.
func RoomEvents() []string {
	var out []string
	for name, k := range kinds {
		if k.scope == ScopeRoom {
			out = append(out, name)
		}
	}
	return out
}
