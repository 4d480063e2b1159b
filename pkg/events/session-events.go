package events

import (
	"encoding/json"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Topic is the watermill topic session events are published on.
const Topic = "chatterbox"

type EventType string

const (
	EventTypeConversationCreated EventType = "conversation-created"
	EventTypeActiveChanged       EventType = "active-changed"
	EventTypeMessageAppended     EventType = "message-appended"
	EventTypeSendStarted         EventType = "send-started"
	EventTypeSendFinished        EventType = "send-finished"
	EventTypeTitleUpdated        EventType = "title-updated"
	EventTypeDeletionStaged      EventType = "deletion-staged"
	EventTypeDeletionCancelled   EventType = "deletion-cancelled"
	EventTypeConversationDeleted EventType = "conversation-deleted"
	// EventTypeFocusInput asks the presentation layer to move focus to the input field.
	EventTypeFocusInput EventType = "focus-input"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventMetadata struct {
	ID             uuid.UUID `json:"event_id" yaml:"event_id"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Time           time.Time `json:"time" yaml:"time"`
}

func NewEventMetadata(conversationID string) EventMetadata {
	return EventMetadata{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Time:           time.Now(),
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// set when the event was decoded by NewEventFromJSON
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) ConversationID() string {
	return e.Metadata_.ConversationID
}

var _ Event = &EventImpl{}

func newImpl(t EventType, conversationID string) EventImpl {
	return EventImpl{
		Type_:     t,
		Metadata_: NewEventMetadata(conversationID),
	}
}

type EventConversationCreated struct {
	EventImpl
	Title string `json:"title"`
}

func NewConversationCreatedEvent(c *conversation.Conversation) *EventConversationCreated {
	return &EventConversationCreated{
		EventImpl: newImpl(EventTypeConversationCreated, c.ID),
		Title:     c.Title,
	}
}

// EventActiveChanged is published when the active session moves. ConversationID is
// the new active id, empty when there is none.
type EventActiveChanged struct {
	EventImpl
	PreviousID string `json:"previous_id,omitempty"`
}

func NewActiveChangedEvent(previousID string, activeID string) *EventActiveChanged {
	return &EventActiveChanged{
		EventImpl:  newImpl(EventTypeActiveChanged, activeID),
		PreviousID: previousID,
	}
}

type EventMessageAppended struct {
	EventImpl
	Message *conversation.Message `json:"message"`
}

func NewMessageAppendedEvent(conversationID string, msg *conversation.Message) *EventMessageAppended {
	return &EventMessageAppended{
		EventImpl: newImpl(EventTypeMessageAppended, conversationID),
		Message:   msg,
	}
}

type EventSendStarted struct {
	EventImpl
	Text string `json:"text"`
}

func NewSendStartedEvent(conversationID string, text string) *EventSendStarted {
	return &EventSendStarted{
		EventImpl: newImpl(EventTypeSendStarted, conversationID),
		Text:      text,
	}
}

type EventSendFinished struct {
	EventImpl
	Failed      bool   `json:"failed,omitempty"`
	ErrorString string `json:"error_string,omitempty"`
}

func NewSendFinishedEvent(conversationID string, err error) *EventSendFinished {
	ret := &EventSendFinished{
		EventImpl: newImpl(EventTypeSendFinished, conversationID),
	}
	if err != nil {
		ret.Failed = true
		ret.ErrorString = err.Error()
	}
	return ret
}

type EventTitleUpdated struct {
	EventImpl
	Title string `json:"title"`
}

func NewTitleUpdatedEvent(conversationID string, title string) *EventTitleUpdated {
	return &EventTitleUpdated{
		EventImpl: newImpl(EventTypeTitleUpdated, conversationID),
		Title:     title,
	}
}

type EventDeletionStaged struct {
	EventImpl
}

func NewDeletionStagedEvent(conversationID string) *EventDeletionStaged {
	return &EventDeletionStaged{EventImpl: newImpl(EventTypeDeletionStaged, conversationID)}
}

type EventDeletionCancelled struct {
	EventImpl
}

func NewDeletionCancelledEvent(conversationID string) *EventDeletionCancelled {
	return &EventDeletionCancelled{EventImpl: newImpl(EventTypeDeletionCancelled, conversationID)}
}

type EventConversationDeleted struct {
	EventImpl
	WasActive bool `json:"was_active,omitempty"`
}

func NewConversationDeletedEvent(conversationID string, wasActive bool) *EventConversationDeleted {
	return &EventConversationDeleted{
		EventImpl: newImpl(EventTypeConversationDeleted, conversationID),
		WasActive: wasActive,
	}
}

type EventFocusInput struct {
	EventImpl
	Request int `json:"request"`
}

func NewFocusInputEvent(conversationID string, request int) *EventFocusInput {
	return &EventFocusInput{
		EventImpl: newImpl(EventTypeFocusInput, conversationID),
		Request:   request,
	}
}

var (
	_ Event = &EventConversationCreated{}
	_ Event = &EventActiveChanged{}
	_ Event = &EventMessageAppended{}
	_ Event = &EventSendStarted{}
	_ Event = &EventSendFinished{}
	_ Event = &EventTitleUpdated{}
	_ Event = &EventDeletionStaged{}
	_ Event = &EventDeletionCancelled{}
	_ Event = &EventConversationDeleted{}
	_ Event = &EventFocusInput{}
)

func NewEventFromJSON(b []byte) (Event, error) {
	var e *EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "could not decode event")
	}
	if e == nil {
		return nil, errors.New("empty event")
	}
	e.payload = b

	switch e.Type_ {
	case EventTypeConversationCreated:
		return toTypedEvent[EventConversationCreated](b)
	case EventTypeActiveChanged:
		return toTypedEvent[EventActiveChanged](b)
	case EventTypeMessageAppended:
		return toTypedEvent[EventMessageAppended](b)
	case EventTypeSendStarted:
		return toTypedEvent[EventSendStarted](b)
	case EventTypeSendFinished:
		return toTypedEvent[EventSendFinished](b)
	case EventTypeTitleUpdated:
		return toTypedEvent[EventTitleUpdated](b)
	case EventTypeDeletionStaged:
		return toTypedEvent[EventDeletionStaged](b)
	case EventTypeDeletionCancelled:
		return toTypedEvent[EventDeletionCancelled](b)
	case EventTypeConversationDeleted:
		return toTypedEvent[EventConversationDeleted](b)
	case EventTypeFocusInput:
		return toTypedEvent[EventFocusInput](b)
	}

	return nil, errors.Errorf("unknown event type %q", e.Type_)
}

type payloadSetter interface {
	Event
	setPayload([]byte)
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}

func toTypedEvent[T any, PT interface {
	*T
	payloadSetter
}](b []byte) (Event, error) {
	var ret T
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, errors.Wrapf(err, "could not decode %T", ret)
	}
	p := PT(&ret)
	p.setPayload(b)
	return p, nil
}
