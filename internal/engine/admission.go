package engine

import (
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

// actionJoinRoom makes the sender host of an unseen room, or forwards its
// request to the existing host.
func actionJoinRoom(pctx *pipeline.Cargo) error {
	m, err := message[*protocol.JoinRoom](pctx)
	if err != nil {
		return err
	}
	self := pctx.Connection.ID

	// bound before admission, so a pending or denied requester still points here
	if err := pctx.StateManager.BindRoom(self, m.RoomID); err != nil {
		return fmt.Errorf("failed to bind connection to room '%s': %w", m.RoomID, err)
	}

	room, found := pctx.StateManager.FindRoom(m.RoomID)
	if !found {
		if _, err := pctx.StateManager.CreateRoom(m.RoomID, self, m.Participant); err != nil {
			return fmt.Errorf("failed to create room '%s': %w", m.RoomID, err)
		}
		members, err := pctx.StateManager.GetRoomMembers(m.RoomID)
		if err != nil {
			return err
		}
		pctx.Logger.Info("Room created", slog.String("roomID", m.RoomID), slog.String("participant", m.Participant.Name()))
		return sendToOrigin(pctx, protocol.EventHost, protocol.Membership(members))
	}

	pctx.Logger.Debug("Forwarding join request to host", slog.String("roomID", m.RoomID), slog.String("host", room.Host.String()))
	return sendTo(pctx, room.Host, protocol.EventJoinRequest, &protocol.JoinRequest{
		RoomID:       m.RoomID,
		ConnectionID: self,
		Participant:  m.Participant,
	})
}

// actionHandleJoinRequest applies the host's admission decision.
func actionHandleJoinRequest(pctx *pipeline.Cargo) error {
	m, err := message[*protocol.HandleJoinRequest](pctx)
	if err != nil {
		return err
	}
	if _, found := pctx.StateManager.FindRoom(m.RoomID); !found {
		pctx.Logger.Debug("Join decision for unknown room ignored", slog.String("roomID", m.RoomID))
		return nil
	}

	if !m.Accept {
		pctx.Logger.Info("Join denied", slog.String("roomID", m.RoomID), slog.String("requester", m.ConnectionID.String()))
		return sendTo(pctx, m.ConnectionID, protocol.EventJoinDenied, &protocol.JoinDenied{RoomID: m.RoomID})
	}

	// replaying an accept appends a second entry; there is no idempotency key
	members, err := pctx.StateManager.AddMember(m.RoomID, state.Participant{
		Identity:     m.Participant,
		ConnectionID: m.ConnectionID,
	})
	if err != nil {
		return fmt.Errorf("failed to admit '%s' to room '%s': %w", m.ConnectionID, m.RoomID, err)
	}
	if err := pctx.StateManager.Subscribe(m.RoomID, m.ConnectionID); err != nil {
		return err
	}
	pctx.Logger.Info("Join accepted",
		slog.String("roomID", m.RoomID),
		slog.String("requester", m.ConnectionID.String()),
		slog.Int("members", len(members)),
	)

	if err := sendTo(pctx, m.ConnectionID, protocol.EventJoinAccepted, protocol.Membership(members)); err != nil {
		return err
	}
	return broadcast(pctx, m.RoomID, uuid.Nil, protocol.EventNewUser, &protocol.NewUser{
		Membership:     members,
		NewParticipant: members[len(members)-1],
	})
}
