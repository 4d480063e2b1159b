package conversation

import (
	"time"
)

const DefaultTitle = "New Chat"

// Conversation is a titled, append-only sequence of messages with a stable identity.
type Conversation struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Messages  []*Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time  `json:"createdAt" yaml:"createdAt"`
}

func newConversation(now time.Time) *Conversation {
	return &Conversation{
		ID:        NewID(),
		Title:     DefaultTitle,
		Messages:  []*Message{},
		CreatedAt: now,
	}
}

// LastMessage returns the most recent message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == DefaultTitle
}

// TranscriptEntry is the role/content view of a message, without ids or timestamps.
type TranscriptEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func (c *Conversation) Transcript() []TranscriptEntry {
	ret := make([]TranscriptEntry, 0, len(c.Messages))
	for _, m := range c.Messages {
		ret = append(ret, TranscriptEntry{Role: m.Role, Content: m.Content})
	}
	return ret
}
