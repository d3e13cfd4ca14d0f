package engine

import (
	"log/slog"

	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
)

// actionRelayToRoom rebroadcasts a room event to every other subscriber of its
// target room. The relay keeps no copy of the document; each peer applies the
// frame to its own replica.
func actionRelayToRoom(pctx *pipeline.Cargo) error {
	if _, found := pctx.StateManager.FindRoom(pctx.Target); !found {
		pctx.Logger.Debug("Room event for unknown room dropped", slog.String("roomID", pctx.Target))
		return nil
	}
	return broadcast(pctx, pctx.Target, pctx.Connection.ID, protocol.RelayName(pctx.Event), pctx.Message)
}
