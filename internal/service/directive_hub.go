package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DirectiveHub routes remediation directives from a running session to
// whichever WebSocket connection is currently attached to the attempt.
// Directives sent while no connection is attached are dropped — remediation
// is best-effort by contract.
type DirectiveHub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]func(directive string)
	log  zerolog.Logger
}

// NewDirectiveHub creates an empty hub.
func NewDirectiveHub(log zerolog.Logger) *DirectiveHub {
	return &DirectiveHub{
		subs: make(map[uuid.UUID]func(string)),
		log:  log.With().Str("component", "directive_hub").Logger(),
	}
}

// Attach registers the delivery function for an attempt, replacing any
// previous connection (a reconnect wins).
func (h *DirectiveHub) Attach(attemptID uuid.UUID, deliver func(directive string)) {
	h.mu.Lock()
	h.subs[attemptID] = deliver
	h.mu.Unlock()
}

// Detach removes the attempt's delivery function.
func (h *DirectiveHub) Detach(attemptID uuid.UUID) {
	h.mu.Lock()
	delete(h.subs, attemptID)
	h.mu.Unlock()
}

// Send delivers one directive to the attempt's connection, if any. Delivery
// must not block; the WebSocket layer handles its own write deadlines.
func (h *DirectiveHub) Send(attemptID uuid.UUID, directive string) {
	h.mu.RLock()
	deliver := h.subs[attemptID]
	h.mu.RUnlock()

	if deliver == nil {
		h.log.Debug().
			Str("attempt_id", attemptID.String()).
			Str("directive", directive).
			Msg("No connection attached, directive dropped")
		return
	}
	deliver(directive)
}
