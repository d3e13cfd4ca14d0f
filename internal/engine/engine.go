package engine

import (
	"log/slog"
	"sync"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/pipeline"
	"github.com/a-essam23/go-classroom/pkg/protocol"
)

// EventDisconnect is the internal event run when a transport connection drops.
const EventDisconnect = "_disconnect"

/*
* The central registry for all executable and context-aware components.
* It holds the action of every event and the modifiers guarding it.
 */
type Registry struct {
	logger   *slog.Logger
	actions  map[string]pipeline.ActionFunc
	actionMu sync.RWMutex

	modifiers  map[string]pipeline.ModifierFunc
	modifierMu sync.RWMutex

	// event -> modifier names, in execution order
	bindings  map[string][]string
	bindingMu sync.RWMutex
}

type RegisterCoreOptions struct {
	Rooms  config.RoomsConfig
	Limits config.LimitsConfig
}

// New creates and initializes a new Engine instance.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		actions:   make(map[string]pipeline.ActionFunc),
		modifiers: make(map[string]pipeline.ModifierFunc),
		bindings:  make(map[string][]string),
		logger:    logger.With(slog.String("component", "engine")),
	}
}

func (e *Registry) RegisterCore(opts *RegisterCoreOptions) {
	e.registerCoreActions()
	e.registerCoreModifiers(opts.Limits)
	e.bindCoreModifiers(opts)
}

func (e *Registry) registerCoreActions() {
	e.RegisterAction(protocol.EventJoinRoom, actionJoinRoom)
	e.RegisterAction(protocol.EventHandleJoinRequest, actionHandleJoinRequest)

	e.RegisterAction(protocol.EventCallUser, actionCallUser)
	e.RegisterAction(protocol.EventAnswerCall, actionAnswerCall)
	e.RegisterAction(protocol.EventQuitCall, actionQuitCall)
	e.RegisterAction(protocol.EventMessage, actionCallMessage)

	e.RegisterAction(protocol.EventGrantPermission, actionGrantPermission)
	e.RegisterAction(protocol.EventRevokePermission, actionRevokePermission)
	e.RegisterAction(protocol.EventDisconnectUser, actionDisconnectUser)

	for _, event := range protocol.RoomEvents() {
		e.RegisterAction(event, actionRelayToRoom)
	}

	e.RegisterAction(EventDisconnect, actionDisconnect)
	e.logger.Info("Registered core actions", slog.Int("count", len(e.actions)))
}

func (e *Registry) registerCoreModifiers(limits config.LimitsConfig) {
	e.RegisterModifier("rate_limit", newRateLimitModifier(e.logger, limits))
	e.RegisterModifier("require_host", requireHost)
	e.RegisterModifier("require_permission", requirePermission)
	e.logger.Info("Registered core modifiers", slog.Int("count", len(e.modifiers)))
}

func (e *Registry) bindCoreModifiers(opts *RegisterCoreOptions) {
	e.actionMu.RLock()
	events := make([]string, 0, len(e.actions))
	for event := range e.actions {
		if event != EventDisconnect {
			events = append(events, event)
		}
	}
	e.actionMu.RUnlock()

	for _, event := range events {
		if opts.Limits.Events > 0 {
			e.Bind(event, "rate_limit")
		}
		if opts.Rooms.EnforcePermission && protocol.Mutates(event) {
			e.Bind(event, "require_permission")
		}
	}

	if opts.Rooms.EnforceHost {
		for _, event := range []string{
			protocol.EventHandleJoinRequest,
			protocol.EventDisconnectUser,
			protocol.EventGrantPermission,
			protocol.EventRevokePermission,
		} {
			e.Bind(event, "require_host")
		}
	}
}

// --- Action Methods ---

func (e *Registry) RegisterAction(event string, fn pipeline.ActionFunc) {
	e.actionMu.Lock()
	defer e.actionMu.Unlock()
	if _, exists := e.actions[event]; exists {
		panic("action function already registered: " + event)
	}
	e.actions[event] = fn
}

func (e *Registry) GetActionFunc(event string) (pipeline.ActionFunc, bool) {
	e.actionMu.RLock()
	defer e.actionMu.RUnlock()
	fn, ok := e.actions[event]
	return fn, ok
}

// --- Modifier Methods ---

func (e *Registry) RegisterModifier(name string, fn pipeline.ModifierFunc) {
	e.modifierMu.Lock()
	defer e.modifierMu.Unlock()
	if _, exists := e.modifiers[name]; exists {
		panic("modifier function already registered: " + name)
	}
	e.modifiers[name] = fn
}

func (e *Registry) GetModifierFunc(name string) (pipeline.ModifierFunc, bool) {
	e.modifierMu.RLock()
	defer e.modifierMu.RUnlock()
	fn, ok := e.modifiers[name]
	return fn, ok
}

// Bind appends modifiers to the guard chain of an event.
func (e *Registry) Bind(event string, modifiers ...string) {
	for _, name := range modifiers {
		if _, ok := e.GetModifierFunc(name); !ok {
			panic("cannot bind unknown modifier: " + name)
		}
	}
	e.bindingMu.Lock()
	defer e.bindingMu.Unlock()
	e.bindings[event] = append(e.bindings[event], modifiers...)
}

// Pipeline assembles the modifiers and action registered for an event.
func (e *Registry) Pipeline(event string) (pipeline.Pipeline, bool) {
	action, ok := e.GetActionFunc(event)
	if !ok {
		return pipeline.Pipeline{}, false
	}

	e.bindingMu.RLock()
	names := e.bindings[event]
	e.bindingMu.RUnlock()

	steps := make([]pipeline.Step, 0, len(names))
	for _, name := range names {
		fn, _ := e.GetModifierFunc(name)
		steps = append(steps, pipeline.Step{Name: name, Function: fn})
	}
	return pipeline.Pipeline{Event: event, Modifiers: steps, Action: action}, true
}
