package engine

import (
	"errors"
	"log/slog"

	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

// actionDisconnect cleans up after a dropped transport. Rooms the connection
// hosted are destroyed together with their calls, and calls it took part in
// elsewhere are ended. Membership entries in other rooms are left as they are.
func actionDisconnect(pctx *pipeline.Cargo) error {
	self := pctx.Connection.ID
	var errs []error

	for {
		room, found := pctx.StateManager.FindRoomHostedBy(self)
		if !found {
			break
		}
		if call, ok := pctx.StateManager.GetCall(room.ID); ok {
			errs = append(errs, notifyCallEndedExcept(pctx, call, self))
		}
		subscribers, err := pctx.StateManager.DeleteRoom(room.ID)
		if err != nil {
			errs = append(errs, err)
			break
		}
		msgBytes, err := protocol.Encode(protocol.EventRoomDestroyed, nil)
		if err != nil {
			return err
		}
		fanOut(subscribers, self, msgBytes)
		pctx.Logger.Info("Room destroyed, host left",
			slog.String("roomID", room.ID),
			slog.Int("notified", len(subscribers)),
		)
	}

	for _, call := range pctx.StateManager.FindCallsInvolving(self) {
		pctx.StateManager.EndCall(call.RoomID)
		errs = append(errs, notifyCallEndedExcept(pctx, call, self))
		pctx.Logger.Info("Call ended, endpoint left", slog.String("roomID", call.RoomID))
	}

	if err := pctx.StateManager.DeregisterConnection(self); err != nil && !errors.Is(err, state.ErrConnectionNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func notifyCallEndedExcept(pctx *pipeline.Cargo, call *state.Call, except uuid.UUID) error {
	peer, ok := call.Peer(except)
	if !ok {
		return nil
	}
	return sendTo(pctx, peer, protocol.EventCallEnded, nil)
}
