package engine

import (
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

// sendTo delivers one frame to a single connection. A connection that is gone
// is a silent drop.
func sendTo(pctx *pipeline.Cargo, connID uuid.UUID, event string, payload protocol.Message) error {
	msgBytes, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	conn, ok := pctx.StateManager.GetConnection(connID)
	if !ok || conn.Transport == nil {
		pctx.Logger.Debug("Dropping message for unknown connection", slog.String("event", event), slog.String("target", connID.String()))
		return nil
	}
	conn.Transport.Send(msgBytes)
	return nil
}

// sendToOrigin answers the connection that sent the current frame.
func sendToOrigin(pctx *pipeline.Cargo, event string, payload protocol.Message) error {
	return sendTo(pctx, pctx.Connection.ID, event, payload)
}

// broadcast fans a frame out to every subscriber of a room except `except`,
// which may be uuid.Nil.
func broadcast(pctx *pipeline.Cargo, roomID string, except uuid.UUID, event string, payload protocol.Message) error {
	msgBytes, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	subscribers, err := pctx.StateManager.GetSubscribers(roomID)
	if err != nil {
		// usually the room is gone, which is a normal case
		pctx.Logger.Debug("Could not resolve room subscribers", slog.String("roomID", roomID), slog.Any("error", err))
		return nil
	}
	fanOut(subscribers, except, msgBytes)
	pctx.Logger.Debug("Notified room", slog.String("roomID", roomID), slog.String("event", event), slog.Int("connection_count", len(subscribers)))
	return nil
}

func fanOut(conns []state.Transport, except uuid.UUID, msg []byte) {
	for _, conn := range conns {
		if conn.ID() == except {
			continue
		}
		conn.Send(msg)
	}
}

// roomOf resolves which room a control frame acts on. It reads the payload,
// the same field the actions use, and never the frame target.
func roomOf(pctx *pipeline.Cargo) (string, error) {
	scoped, ok := pctx.Message.(protocol.RoomScoped)
	if ok && scoped.Room() != "" {
		return scoped.Room(), nil
	}
	// permission changes may omit the room; use the room the target joined
	if pc, ok := pctx.Message.(*protocol.PermissionChange); ok {
		if target, found := pctx.StateManager.GetConnection(pc.ConnectionID); found && target.RoomID != "" {
			return target.RoomID, nil
		}
	}
	return "", fmt.Errorf("%s: cannot resolve room", pctx.Event)
}

func isMember(members []state.Participant, connID uuid.UUID) bool {
	for _, p := range members {
		if p.ConnectionID == connID {
			return true
		}
	}
	return false
}

func message[T protocol.Message](pctx *pipeline.Cargo) (T, error) {
	msg, ok := pctx.Message.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected payload type %T", pctx.Event, pctx.Message)
	}
	return msg, nil
}
