// Package httpapi is the HTTP read API (C10): a chi-routed JSON+WebSocket
// surface over the persistence gateway's read operations (C9) and the event
// bus (C8).
package httpapi

import (
	"github.com/mailfang/mailfang/internal/eventbus"
	"github.com/mailfang/mailfang/internal/store"
)

// Handlers aggregates all HTTP handlers.
type Handlers struct {
	Email      *EmailHandler
	Attachment *AttachmentHandler
	Health     *HealthHandler
	WS         *WSHandler
}

// NewHandlers wires every handler to the store and event bus.
func NewHandlers(st *store.Store, bus *eventbus.Bus) *Handlers {
	return &Handlers{
		Email:      NewEmailHandler(st, bus),
		Attachment: NewAttachmentHandler(st),
		Health:     NewHealthHandler(st),
		WS:         NewWSHandler(bus),
	}
}
