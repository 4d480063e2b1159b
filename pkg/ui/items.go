package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/go-go-golems/chatterbox/pkg/conversation"
)

const previewLength = 50

type conversationItem struct {
	id      string
	title   string
	preview string
	active  bool
}

var _ list.DefaultItem = conversationItem{}

func newConversationItem(c *conversation.Conversation, activeID string) conversationItem {
	preview := "No messages yet"
	if last := c.LastMessage(); last != nil {
		preview = truncate(strings.Join(strings.Fields(last.Content), " "), previewLength)
	}
	return conversationItem{
		id:      c.ID,
		title:   c.Title,
		preview: preview,
		active:  c.ID == activeID,
	}
}

func (i conversationItem) FilterValue() string {
	return i.title
}

func (i conversationItem) Title() string {
	if i.active {
		return "● " + i.title
	}
	return i.title
}

func (i conversationItem) Description() string {
	return i.preview
}

// truncate shortens s to at most n characters, ending in "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
