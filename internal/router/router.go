package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-classroom/internal/engine"
	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/google/uuid"
)

const defaultInboxSize = 1024

// EventRouter serialises every inbound frame and disconnect through one
// goroutine, so each event is handled to completion before the next starts.
type EventRouter struct {
	logger       *slog.Logger
	stateManager state.Manager
	registry     *engine.Registry
	inbox        chan envelope
	done         chan struct{}
}

func NewEventRouter(logger *slog.Logger, stateManager state.Manager, registry *engine.Registry) *EventRouter {
	return &EventRouter{
		logger:       logger.With(slog.String("component", "event_router")),
		stateManager: stateManager,
		registry:     registry,
		inbox:        make(chan envelope, defaultInboxSize),
		done:         make(chan struct{}),
	}
}

// Run processes queued work until ctx is cancelled.
func (r *EventRouter) Run(ctx context.Context) {
	defer close(r.done)
	r.logger.Info("Event router started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Event router stopped")
			return
		case env := <-r.inbox:
			r.dispatch(env)
		}
	}
}

// Done is closed once Run has returned.
func (r *EventRouter) Done() <-chan struct{} {
	return r.done
}

// HandleMessage queues a raw frame. It matches transport.MessageHandler and
// blocks only while the inbox is full.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	r.enqueue(ctx, envelope{kind: envelopeMessage, ctx: ctx, connID: connID, data: msg})
}

// HandleDisconnect queues the cleanup of a closed connection.
func (r *EventRouter) HandleDisconnect(connID uuid.UUID, err error) {
	r.enqueue(context.Background(), envelope{kind: envelopeDisconnect, ctx: context.Background(), connID: connID, err: err})
}

func (r *EventRouter) enqueue(ctx context.Context, env envelope) {
	select {
	case r.inbox <- env:
	case <-ctx.Done():
		r.logger.Debug("Dropping frame, connection context ended", slog.String("connID", env.connID.String()))
	case <-r.done:
		r.logger.Debug("Dropping frame, router stopped", slog.String("connID", env.connID.String()))
	}
}

func (r *EventRouter) dispatch(env envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered from panic while routing event",
				slog.String("connID", env.connID.String()),
				slog.Any("panic", rec),
			)
		}
	}()

	switch env.kind {
	case envelopeDisconnect:
		r.handleDisconnect(env)
	default:
		r.handleFrame(env)
	}
}

func (r *EventRouter) handleFrame(env envelope) {
	frame, err := protocol.Decode(env.data)
	if err != nil {
		r.logger.Warn("Dropping invalid frame", slog.String("connID", env.connID.String()), slog.Any("error", err))
		return
	}

	p, ok := r.registry.Pipeline(frame.Event)
	if !ok {
		r.logger.Warn("Received event without a handler", slog.String("event", frame.Event), slog.String("connID", env.connID.String()))
		return
	}

	connProfile, found := r.stateManager.GetConnection(env.connID)
	if !found {
		r.logger.Warn("Dropping frame from unregistered connection", slog.String("connID", env.connID.String()))
		return
	}

	r.logger.Debug("Executing event pipeline", slog.String("event", frame.Event), slog.String("connID", env.connID.String()))
	r.run(p, &pipeline.Cargo{
		Ctx:          env.ctx,
		Connection:   connProfile,
		StateManager: r.stateManager,
		Event:        frame.Event,
		Target:       frame.Target,
		Message:      frame.Message,
	})
}

func (r *EventRouter) handleDisconnect(env envelope) {
	p, ok := r.registry.Pipeline(engine.EventDisconnect)
	if !ok {
		r.logger.Error("No disconnect handler registered")
		return
	}
	connProfile, found := r.stateManager.GetConnection(env.connID)
	if !found {
		connProfile = &state.Connection{ID: env.connID}
	}
	r.logger.Debug("Handling disconnect", slog.String("connID", env.connID.String()), slog.Any("reason", env.err))
	r.run(p, &pipeline.Cargo{
		Ctx:          env.ctx,
		Connection:   connProfile,
		StateManager: r.stateManager,
		Event:        engine.EventDisconnect,
	})
}

func (r *EventRouter) run(p pipeline.Pipeline, cargo *pipeline.Cargo) {
	cargo.Logger = r.logger.With(
		slog.String("event", cargo.Event),
		slog.String("connID", cargo.Connection.ID.String()),
	)
	if err := p.Run(cargo); err != nil {
		if errors.Is(err, pipeline.ErrDenied) {
			cargo.Logger.Warn("Event denied", slog.Any("reason", err))
			return
		}
		cargo.Logger.Error("Action failed, halting pipeline", slog.Any("error", fmt.Errorf("%s: %w", cargo.Event, err)))
	}
}
