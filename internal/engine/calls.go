package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
)

// actionCallUser rings the target. Every call must have the host as one of
// its two endpoints and a room holds at most one call.
func actionCallUser(pctx *pipeline.Cargo) error {
	m, err := message[*protocol.CallUser](pctx)
	if err != nil {
		return err
	}
	self := pctx.Connection.ID

	room, found := pctx.StateManager.FindRoom(m.RoomID)
	if !found {
		pctx.Logger.Debug("Call request for unknown room ignored", slog.String("roomID", m.RoomID))
		return nil
	}
	if _, busy := pctx.StateManager.GetCall(m.RoomID); busy {
		return sendToOrigin(pctx, protocol.EventCallFailed, &protocol.CallFailed{Reason: protocol.ReasonCallActive})
	}
	if m.Target == self || (self != room.Host && m.Target != room.Host) {
		return sendToOrigin(pctx, protocol.EventCallFailed, &protocol.CallFailed{Reason: protocol.ReasonNotPermitted})
	}

	if _, err := pctx.StateManager.StartCall(m.RoomID, self, m.Target); err != nil {
		if errors.Is(err, state.ErrCallActive) {
			return sendToOrigin(pctx, protocol.EventCallFailed, &protocol.CallFailed{Reason: protocol.ReasonCallActive})
		}
		return fmt.Errorf("failed to start call in room '%s': %w", m.RoomID, err)
	}
	pctx.Logger.Info("Call ringing",
		slog.String("roomID", m.RoomID),
		slog.String("caller", self.String()),
		slog.String("receiver", m.Target.String()),
	)
	return sendTo(pctx, m.Target, protocol.EventIncomingCall, &protocol.IncomingCall{From: self})
}

// actionAnswerCall resolves a ringing call. Only the recorded receiver may
// answer, naming the recorded caller; anything else is a no-op.
func actionAnswerCall(pctx *pipeline.Cargo) error {
	m, err := message[*protocol.AnswerCall](pctx)
	if err != nil {
		return err
	}
	self := pctx.Connection.ID

	call, ok := pctx.StateManager.GetCall(m.RoomID)
	if !ok || call.State != state.CallRinging || call.Receiver != self || call.Caller != m.From {
		pctx.Logger.Debug("Answer without a matching ringing call ignored", slog.String("roomID", m.RoomID))
		return nil
	}

	if m.Accept {
		if err := pctx.StateManager.SetCallState(m.RoomID, state.CallActive); err != nil {
			return err
		}
		pctx.Logger.Info("Call accepted", slog.String("roomID", m.RoomID))
		return sendTo(pctx, call.Caller, protocol.EventCallAccepted, &protocol.CallAccepted{To: self})
	}

	pctx.StateManager.EndCall(m.RoomID)
	pctx.Logger.Info("Call rejected", slog.String("roomID", m.RoomID))
	return sendTo(pctx, call.Caller, protocol.EventCallRejected, nil)
}

// actionQuitCall tears down a ringing or active call from either endpoint.
func actionQuitCall(pctx *pipeline.Cargo) error {
	m, err := message[*protocol.QuitCall](pctx)
	if err != nil {
		return err
	}

	call, ok := pctx.StateManager.GetCall(m.RoomID)
	if !ok || !call.Involves(pctx.Connection.ID) {
		pctx.Logger.Debug("Quit without a matching call ignored", slog.String("roomID", m.RoomID))
		return nil
	}
	pctx.StateManager.EndCall(m.RoomID)
	pctx.Logger.Info("Call ended", slog.String("roomID", m.RoomID))
	return notifyCallEnded(pctx, call)
}

func notifyCallEnded(pctx *pipeline.Cargo, call *state.Call) error {
	return errors.Join(
		sendTo(pctx, call.Caller, protocol.EventCallEnded, nil),
		sendTo(pctx, call.Receiver, protocol.EventCallEnded, nil),
	)
}

// actionCallMessage bridges an opaque signaling payload to the other endpoint
// of the sender's active call.
func actionCallMessage(pctx *pipeline.Cargo) error {
	payload, err := message[*protocol.Opaque](pctx)
	if err != nil {
		return err
	}

	call := activeCallOf(pctx)
	if call == nil {
		pctx.Logger.Debug("Call message outside an active call dropped")
		return nil
	}
	peer, _ := call.Peer(pctx.Connection.ID)
	return sendTo(pctx, peer, protocol.EventMessage, payload)
}

// activeCallOf finds the active call the sender is an endpoint of, looking in
// the room it joined first.
func activeCallOf(pctx *pipeline.Cargo) *state.Call {
	self := pctx.Connection.ID
	if call, ok := pctx.StateManager.GetCall(pctx.Connection.RoomID); ok && call.State == state.CallActive && call.Involves(self) {
		return call
	}
	for _, call := range pctx.StateManager.FindCallsInvolving(self) {
		if call.State == state.CallActive {
			return call
		}
	}
	return nil
}
