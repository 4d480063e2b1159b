// Package session keeps the active conversation, the stored collection and the
// remote chat services in step while replies arrive asynchronously.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/client"
	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/go-go-golems/chatterbox/pkg/events"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrSendInFlight = errors.New("a message is already being sent in this conversation")
	ErrClosed       = errors.New("session controller is closed")
)

// EventPublisher receives a JSON-serializable event after every state transition.
type EventPublisher interface {
	PublishBlind(payload interface{})
}

type nopPublisher struct{}

func (nopPublisher) PublishBlind(interface{}) {}

// Controller owns the active session. All state transitions happen under one
// lock; remote calls run outside of it and fold their result back into the
// conversation whose id was captured when the message was submitted.
type Controller struct {
	mu sync.Mutex

	store     *conversation.Store
	chat      client.ChatService
	titles    client.TitleService
	publisher EventPublisher
	now       func() time.Time
	// parent context for background work started by SendMessage
	ctx context.Context

	activeID      string
	working       []*conversation.Message
	staged        string
	focusRequests int
	inFlight      map[string]bool
	titling       map[string]bool
	closed        bool

	wg sync.WaitGroup
}

type Option func(*Controller)

func WithPublisher(publisher EventPublisher) Option {
	return func(c *Controller) {
		c.publisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithContext sets the context background sends and title generation run under.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) {
		c.ctx = ctx
	}
}

// NewController activates the conversation the store suggests, if any. An empty
// store leaves the controller without an active conversation.
func NewController(
	store *conversation.Store,
	chat client.ChatService,
	titles client.TitleService,
	options ...Option,
) *Controller {
	ret := &Controller{
		store:     store,
		chat:      chat,
		titles:    titles,
		publisher: nopPublisher{},
		now:       time.Now,
		ctx:       context.Background(),
		working:   []*conversation.Message{},
		inFlight:  map[string]bool{},
		titling:   map[string]bool{},
	}
	for _, option := range options {
		option(ret)
	}
	if ret.publisher == nil {
		ret.publisher = nopPublisher{}
	}

	if id, ok := store.SuggestedActive(); ok {
		ret.activeID = id
		ret.refreshLocked()
		log.Debug().Str("conversation_id", id).Msg("Resuming conversation")
	}

	return ret
}

func (c *Controller) publish(evs []interface{}) {
	for _, e := range evs {
		c.publisher.PublishBlind(e)
	}
}

// refreshLocked recomputes the working copy from the store.
func (c *Controller) refreshLocked() {
	if c.activeID == "" {
		c.working = []*conversation.Message{}
		return
	}
	conv, ok := c.store.Get(c.activeID)
	if !ok {
		c.working = []*conversation.Message{}
		return
	}
	c.working = conv.Messages
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := StatusIdle
	if c.activeID != "" && c.inFlight[c.activeID] {
		status = StatusPending
	}

	return State{
		ActiveID:       c.activeID,
		Messages:       clone.Clone(c.working).([]*conversation.Message),
		Status:         status,
		StagedDeletion: c.staged,
		FocusRequests:  c.focusRequests,
	}
}

// List returns the conversations in display order.
func (c *Controller) List() []*conversation.Conversation {
	return c.store.List()
}

func (c *Controller) Active() (*conversation.Conversation, bool) {
	c.mu.Lock()
	id := c.activeID
	c.mu.Unlock()

	if id == "" {
		return nil, false
	}
	return c.store.Get(id)
}

// StartNewSession creates an empty conversation, makes it active and asks the
// presentation layer to focus the input.
func (c *Controller) StartNewSession(ctx context.Context) (*conversation.Conversation, error) {
	c.mu.Lock()
	conv, evs, err := c.startNewSessionLocked(ctx)
	c.mu.Unlock()

	c.publish(evs)
	return conv, err
}

func (c *Controller) startNewSessionLocked(ctx context.Context) (*conversation.Conversation, []interface{}, error) {
	conv, err := c.store.Create(ctx)
	if conv == nil {
		return nil, nil, err
	}
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("Could not persist new conversation")
		err = errors.Wrap(err, "could not persist new conversation")
	}

	previous := c.activeID
	c.activeID = conv.ID
	c.working = []*conversation.Message{}
	c.focusRequests++

	log.Debug().
		Str("conversation_id", conv.ID).
		Str("previous_id", previous).
		Msg("Started new session")

	return conv, []interface{}{
		events.NewConversationCreatedEvent(conv),
		events.NewActiveChangedEvent(previous, conv.ID),
		events.NewFocusInputEvent(conv.ID, c.focusRequests),
	}, err
}

// SwitchTo activates id. Unknown ids are ignored and reported as false.
func (c *Controller) SwitchTo(id string) bool {
	c.mu.Lock()
	if !c.store.Has(id) {
		c.mu.Unlock()
		log.Debug().Str("conversation_id", id).Msg("Ignoring switch to unknown conversation")
		return false
	}
	previous := c.activeID
	c.activeID = id
	c.refreshLocked()
	c.mu.Unlock()

	log.Debug().Str("conversation_id", id).Str("previous_id", previous).Msg("Switched conversation")
	c.publish([]interface{}{events.NewActiveChangedEvent(previous, id)})
	return true
}

// Rename sets the title of id. Blank titles and unknown ids are ignored.
func (c *Controller) Rename(ctx context.Context, id string, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	c.mu.Lock()
	if !c.store.Has(id) {
		c.mu.Unlock()
		return nil
	}
	err := c.store.Rename(ctx, id, title)
	c.mu.Unlock()

	c.publish([]interface{}{events.NewTitleUpdatedEvent(id, title)})
	if err != nil {
		return errors.Wrap(err, "could not persist rename")
	}
	return nil
}

// RequestDeletion stages id for deletion. Nothing is removed until
// ConfirmDeletion. Requesting an unknown id drops any earlier candidate.
func (c *Controller) RequestDeletion(id string) bool {
	c.mu.Lock()
	if !c.store.Has(id) {
		previous := c.staged
		c.staged = ""
		c.mu.Unlock()

		if previous != "" {
			c.publish([]interface{}{events.NewDeletionCancelledEvent(previous)})
		}
		return false
	}
	c.staged = id
	c.mu.Unlock()

	c.publish([]interface{}{events.NewDeletionStagedEvent(id)})
	return true
}

func (c *Controller) CancelDeletion() {
	c.mu.Lock()
	id := c.staged
	c.staged = ""
	c.mu.Unlock()

	if id != "" {
		c.publish([]interface{}{events.NewDeletionCancelledEvent(id)})
	}
}

// ConfirmDeletion removes the staged conversation. If it was the active one, a
// new empty conversation becomes active in the same step.
func (c *Controller) ConfirmDeletion(ctx context.Context) error {
	c.mu.Lock()
	id := c.staged
	if id == "" {
		c.mu.Unlock()
		return nil
	}
	c.staged = ""

	wasActive := id == c.activeID
	var errs []error
	if err := c.store.Remove(ctx, id); err != nil {
		errs = append(errs, errors.Wrap(err, "could not persist deletion"))
	}
	delete(c.titling, id)

	evs := []interface{}{events.NewConversationDeletedEvent(id, wasActive)}
	if wasActive {
		_, startEvs, err := c.startNewSessionLocked(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		evs = append(evs, startEvs...)
	}
	c.mu.Unlock()

	log.Debug().Str("conversation_id", id).Bool("was_active", wasActive).Msg("Deleted conversation")
	c.publish(evs)

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// SendMessage appends text as a user message to the active conversation and
// fetches the reply in the background. Blank text is ignored. Use Wait to block
// until the reply has been folded back.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	pending, err := c.Submit(ctx, text)
	if err != nil || pending == nil {
		return err
	}

	go c.Complete(c.ctx, pending)
	return nil
}

// Submit performs the synchronous half of a send: it appends the user message
// under the current active id and enters Pending. It returns nil for blank text.
// Every returned PendingSend must be passed to Complete exactly once.
func (c *Controller) Submit(ctx context.Context, text string) (*PendingSend, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	var evs []interface{}
	if c.activeID == "" {
		_, startEvs, err := c.startNewSessionLocked(ctx)
		evs = append(evs, startEvs...)
		if c.activeID == "" {
			c.mu.Unlock()
			c.publish(evs)
			return nil, err
		}
	}

	id := c.activeID
	if c.inFlight[id] {
		c.mu.Unlock()
		c.publish(evs)
		return nil, ErrSendInFlight
	}

	msg := conversation.NewUserMessage(trimmed, conversation.WithTime(c.now()))
	if err := c.store.AppendMessage(ctx, id, msg); err != nil {
		// the collection is written as a whole, the next successful write catches up
		log.Error().Err(err).Str("conversation_id", id).Msg("Could not persist user message")
	}
	c.inFlight[id] = true
	c.refreshLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	log.Debug().
		Str("conversation_id", id).
		Str("message_id", msg.ID).
		Str("status", string(StatusPending)).
		Msg("Submitted message")

	evs = append(evs,
		events.NewMessageAppendedEvent(id, msg),
		events.NewSendStartedEvent(id, trimmed),
	)
	c.publish(evs)

	return &PendingSend{
		ConversationID: id,
		Text:           trimmed,
		UserMessageID:  msg.ID,
	}, nil
}

// Complete asks the chat service for a reply to p and appends it, or an error
// message, to the conversation p was submitted to. That conversation may no
// longer be active, and may be gone entirely, in which case the reply is dropped.
func (c *Controller) Complete(ctx context.Context, p *PendingSend) {
	defer c.wg.Done()

	reply, sendErr := c.chat.Send(ctx, p.Text)

	// persist even if ctx was cancelled during the call
	persistCtx := context.WithoutCancel(ctx)

	c.mu.Lock()
	delete(c.inFlight, p.ConversationID)

	if sendErr != nil && ctx.Err() != nil && errors.Is(sendErr, context.Canceled) {
		c.mu.Unlock()
		log.Debug().Str("conversation_id", p.ConversationID).Msg("Send cancelled")
		c.publish([]interface{}{events.NewSendFinishedEvent(p.ConversationID, sendErr)})
		return
	}

	var msg *conversation.Message
	if sendErr != nil {
		log.Warn().Err(sendErr).Str("conversation_id", p.ConversationID).Msg("Chat service call failed")
		msg = conversation.NewAssistantMessage(client.Diagnostic(sendErr),
			conversation.WithTime(c.now()), conversation.AsError())
	} else {
		msg = conversation.NewAssistantMessage(reply, conversation.WithTime(c.now()))
	}

	known := c.store.Has(p.ConversationID)
	if err := c.store.AppendMessage(persistCtx, p.ConversationID, msg); err != nil {
		log.Error().Err(err).Str("conversation_id", p.ConversationID).Msg("Could not persist reply")
	}
	if p.ConversationID == c.activeID {
		c.refreshLocked()
	}

	needsTitle := false
	if sendErr == nil && known && !c.titling[p.ConversationID] {
		if conv, ok := c.store.Get(p.ConversationID); ok && conv.HasDefaultTitle() && len(conv.Messages) >= 2 {
			needsTitle = true
			c.titling[p.ConversationID] = true
			// added before our own Done so Wait also covers title generation
			c.wg.Add(1)
		}
	}
	c.mu.Unlock()

	log.Debug().
		Str("conversation_id", p.ConversationID).
		Str("message_id", msg.ID).
		Bool("is_error", msg.IsError).
		Bool("conversation_exists", known).
		Str("status", string(StatusIdle)).
		Msg("Send finished")

	evs := []interface{}{}
	if known {
		evs = append(evs, events.NewMessageAppendedEvent(p.ConversationID, msg))
	}
	evs = append(evs, events.NewSendFinishedEvent(p.ConversationID, sendErr))
	c.publish(evs)

	if needsTitle {
		go func() {
			defer c.wg.Done()
			defer func() {
				c.mu.Lock()
				delete(c.titling, p.ConversationID)
				c.mu.Unlock()
			}()
			c.GenerateTitle(persistCtx, p.ConversationID)
		}()
	}
}

// GenerateTitle asks the title service for a label for id and applies it if the
// conversation still carries the default title. Failures are logged and
// swallowed. It reports whether the title changed.
func (c *Controller) GenerateTitle(ctx context.Context, id string) bool {
	if c.titles == nil {
		return false
	}
	conv, ok := c.store.Get(id)
	if !ok || len(conv.Messages) == 0 {
		return false
	}

	title, err := c.titles.GenerateTitle(ctx, conv.Transcript())
	if err != nil {
		log.Debug().Err(err).Str("conversation_id", id).Msg("Title generation failed")
		return false
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}

	c.mu.Lock()
	current, ok := c.store.Get(id)
	if !ok || !current.HasDefaultTitle() {
		c.mu.Unlock()
		return false
	}
	if err := c.store.Rename(ctx, id, title); err != nil {
		log.Warn().Err(err).Str("conversation_id", id).Msg("Could not persist generated title")
	}
	c.mu.Unlock()

	log.Debug().Str("conversation_id", id).Str("title", title).Msg("Generated title")
	c.publish([]interface{}{events.NewTitleUpdatedEvent(id, title)})
	return true
}

// Wait blocks until every background send and title generation has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close stops accepting new sends and waits for outstanding work.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}
