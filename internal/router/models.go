package router

import (
	"context"

	"github.com/google/uuid"
)

type envelopeKind int

const (
	envelopeMessage envelopeKind = iota
	envelopeDisconnect
)

// envelope is one unit of work queued for the routing loop.
type envelope struct {
	kind   envelopeKind
	ctx    context.Context
	connID uuid.UUID
	data   []byte
	// transport error that ended the connection, if any
	err error
}
