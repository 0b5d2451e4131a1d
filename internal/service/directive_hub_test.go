package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDirectiveHubRoutesToAttachedConnection(t *testing.T) {
	hub := NewDirectiveHub(zerolog.Nop())
	attemptID := uuid.New()

	var got []string
	hub.Attach(attemptID, func(d string) { got = append(got, d) })

	hub.Send(attemptID, "request_refocus")
	hub.Send(attemptID, "enter_fullscreen")

	assert.Equal(t, []string{"request_refocus", "enter_fullscreen"}, got)
}

func TestDirectiveHubDropsWhenUnattached(t *testing.T) {
	hub := NewDirectiveHub(zerolog.Nop())

	// No connection attached: must not panic.
	hub.Send(uuid.New(), "request_refocus")
}

func TestDirectiveHubDetach(t *testing.T) {
	hub := NewDirectiveHub(zerolog.Nop())
	attemptID := uuid.New()

	calls := 0
	hub.Attach(attemptID, func(string) { calls++ })
	hub.Send(attemptID, "block_unload")
	hub.Detach(attemptID)
	hub.Send(attemptID, "block_unload")

	assert.Equal(t, 1, calls)
}

func TestDirectiveHubReconnectReplaces(t *testing.T) {
	hub := NewDirectiveHub(zerolog.Nop())
	attemptID := uuid.New()

	first, second := 0, 0
	hub.Attach(attemptID, func(string) { first++ })
	hub.Attach(attemptID, func(string) { second++ })
	hub.Send(attemptID, "request_refocus")

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}
