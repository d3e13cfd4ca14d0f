package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

type rateLimitState struct {
	Requests int
}

// newRateLimitModifier caps how many frames of one event a connection may
// send per window. Per-event overrides take precedence over the default.
func newRateLimitModifier(logger *slog.Logger, limits config.LimitsConfig) pipeline.ModifierFunc {
	const modifierName = "rate_limit"
	window := limits.Window
	if window <= 0 {
		window = time.Second
	}

	return func(pctx *pipeline.Cargo) error {
		limit := limits.Events
		if override, ok := limits.Overrides[strings.ToLower(pctx.Event)]; ok {
			limit = override
		}
		if limit <= 0 {
			return nil
		}

		connKey := pctx.Connection.ID.String()
		eventName := pctx.Event

		existingState, found := pctx.StateManager.GetModifierState(modifierName, connKey, eventName)
		if !found {
			newState := &state.ModifierState{Value: &rateLimitState{Requests: 1}}
			sm := pctx.StateManager
			newState.Timer = time.AfterFunc(window, func() {
				logger.Debug("Auto-cleaning expired rate_limit state", slog.String("connection", connKey), slog.String("event", eventName))
				sm.DeleteModifierState(modifierName, connKey, eventName)
			})
			sm.SetModifierState(modifierName, connKey, eventName, newState)
			return nil
		}

		current, ok := existingState.Value.(*rateLimitState)
		if !ok {
			return fmt.Errorf("unexpected rate_limit state %T", existingState.Value)
		}
		if current.Requests < limit {
			current.Requests++
			return nil
		}
		return fmt.Errorf("%w: rate limit for event '%s' exceeded", pipeline.ErrDenied, eventName)
	}
}

// requireHost lets a frame through only when its sender hosts the room it
// acts on.
func requireHost(pctx *pipeline.Cargo) error {
	roomID, err := roomOf(pctx)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDenied, err)
	}
	room, found := pctx.StateManager.FindRoom(roomID)
	if !found {
		return fmt.Errorf("%w: room '%s' does not exist", pipeline.ErrDenied, roomID)
	}
	if room.Host != pctx.Connection.ID {
		return fmt.Errorf("%w: '%s' is not the host of room '%s'", pipeline.ErrDenied, pctx.Connection.ID, roomID)
	}
	if pc, ok := pctx.Message.(*protocol.PermissionChange); ok {
		return requireGuestOf(pctx, roomID, pc.ConnectionID)
	}
	return nil
}

// requireGuestOf limits permission changes to admitted guests of the host's
// room. The flag is per connection, so granting it to anyone else would
// carry into rooms this host does not own.
func requireGuestOf(pctx *pipeline.Cargo, roomID string, target uuid.UUID) error {
	if target == pctx.Connection.ID {
		return fmt.Errorf("%w: host of room '%s' cannot change its own permission", pipeline.ErrDenied, roomID)
	}
	members, err := pctx.StateManager.GetRoomMembers(roomID)
	if err != nil || !isMember(members, target) {
		return fmt.Errorf("%w: '%s' is not a member of room '%s'", pipeline.ErrDenied, target, roomID)
	}
	return nil
}

// requirePermission gates document mutations on the draw flag. The host of
// the target room always passes; anyone else needs the flag and a membership
// entry in that room.
func requirePermission(pctx *pipeline.Cargo) error {
	self := pctx.Connection.ID
	if room, found := pctx.StateManager.FindRoom(pctx.Target); found && room.Host == self {
		return nil
	}
	perms, _ := pctx.StateManager.GetPermissions(self)
	if !perms.Has(state.PermDraw) {
		return fmt.Errorf("%w: '%s' may not draw", pipeline.ErrDenied, self)
	}
	members, err := pctx.StateManager.GetRoomMembers(pctx.Target)
	if err != nil || !isMember(members, self) {
		return fmt.Errorf("%w: '%s' is not a member of room '%s'", pipeline.ErrDenied, self, pctx.Target)
	}
	return nil
}
