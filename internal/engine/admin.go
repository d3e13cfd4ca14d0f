package engine

import (
	"log/slog"

	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
)

// Permission changes are silent: the flag is only consulted by the
// require_permission modifier, nobody is told.

func actionGrantPermission(pctx *pipeline.Cargo) error {
	return changePermission(pctx, state.PermDraw, 0)
}

func actionRevokePermission(pctx *pipeline.Cargo) error {
	return changePermission(pctx, 0, state.PermDraw)
}

func changePermission(pctx *pipeline.Cargo, add, remove state.Permission) error {
	m, err := message[*protocol.PermissionChange](pctx)
	if err != nil {
		return err
	}
	if _, found := pctx.StateManager.GetConnection(m.ConnectionID); !found {
		pctx.Logger.Debug("Permission change for unknown connection ignored", slog.String("target", m.ConnectionID.String()))
		return nil
	}
	if err := pctx.StateManager.UpdatePermissions(m.ConnectionID, add, remove); err != nil {
		return err
	}
	pctx.Logger.Info("Permission changed", slog.String("event", pctx.Event), slog.String("target", m.ConnectionID.String()))
	return nil
}

// actionDisconnectUser tells the target it was removed and stops its room
// broadcasts. Its membership entry stays.
func actionDisconnectUser(pctx *pipeline.Cargo) error {
	m, err := message[*protocol.DisconnectUser](pctx)
	if err != nil {
		return err
	}
	if _, found := pctx.StateManager.FindRoom(m.RoomID); !found {
		pctx.Logger.Debug("Disconnect for unknown room ignored", slog.String("roomID", m.RoomID))
		return nil
	}
	if err := sendTo(pctx, m.ConnectionID, protocol.EventDisconnectedByHost, nil); err != nil {
		return err
	}
	if err := pctx.StateManager.Unsubscribe(m.RoomID, m.ConnectionID); err != nil {
		pctx.Logger.Debug("Target was not subscribed", slog.String("roomID", m.RoomID), slog.Any("error", err))
	}
	pctx.Logger.Info("User disconnected by host", slog.String("roomID", m.RoomID), slog.String("target", m.ConnectionID.String()))
	return nil
}
