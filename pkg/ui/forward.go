package ui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/chatterbox/pkg/events"
	"github.com/rs/zerolog/log"
)

// SessionEventMsg wraps a controller event delivered through the event router.
type SessionEventMsg struct {
	Event events.Event
}

// ForwardEventsFunc returns a router handler that hands every session event
// to the running program, which then redraws from the controller state.
func ForwardEventsFunc(p *tea.Program) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := events.NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Could not decode session event")
			return err
		}

		p.Send(SessionEventMsg{Event: e})
		return nil
	}
}
