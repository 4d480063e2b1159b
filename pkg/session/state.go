package session

import (
	"github.com/go-go-golems/chatterbox/pkg/conversation"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
)

// State is a snapshot of everything the presentation layer renders besides the
// conversation list.
type State struct {
	// ActiveID is empty when no conversation is active.
	ActiveID string
	// Messages is the working copy of the active conversation.
	Messages []*conversation.Message
	// Status is StatusPending while the active conversation waits for a reply.
	Status Status
	// StagedDeletion is the id awaiting confirmation, empty if none.
	StagedDeletion string
	// FocusRequests increases every time the input field should take focus.
	FocusRequests int
}

func (s State) HasActive() bool {
	return s.ActiveID != ""
}

func (s State) IsPending() bool {
	return s.Status == StatusPending
}

// PendingSend is a submitted user message whose reply has not been folded back
// yet. It carries the conversation id captured when the message was submitted.
type PendingSend struct {
	ConversationID string
	Text           string
	UserMessageID  string
}
