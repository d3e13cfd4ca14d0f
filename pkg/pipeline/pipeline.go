package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-classroom/pkg/protocol"
	"github.com/a-essam23/go-classroom/pkg/state"
)

/*
 * The purpose of this is to detach the implementation of actions and modifiers
 * from the actual router
 */

// ErrDenied marks a frame a modifier refused to let through. The router drops
// such frames with a warning rather than treating them as faults.
var ErrDenied = errors.New("denied")

type Cargo struct {
	Logger       *slog.Logger
	Ctx          context.Context
	Connection   *state.Connection
	StateManager state.Manager
	Event        string
	// room id carried by room events
	Target  string
	Message protocol.Message
}

// executes the event itself. Runs after every modifier passed.
type ActionFunc func(pctx *Cargo) error

// guards an action. Returning an error halts the pipeline.
type ModifierFunc func(pctx *Cargo) error

// represents one guard in an execution pipeline
type Step struct {
	Name     string
	Function ModifierFunc
}

type Pipeline struct {
	Event     string
	Modifiers []Step
	Action    ActionFunc
}

func (p Pipeline) Run(pctx *Cargo) error {
	for _, step := range p.Modifiers {
		if err := step.Function(pctx); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	}
	if p.Action == nil {
		return nil
	}
	return p.Action(pctx)
}
