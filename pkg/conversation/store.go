package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/kv"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultKey is the key under which the whole collection is persisted.
const DefaultKey = "chatConversations"

// Store owns the collection of conversations and persists a full snapshot of it
// after every mutation. Conversations handed out by Get and List are copies.
//
// The collection keeps insertion order internally. That order is what gets
// written to disk and is used for SuggestedActive; it is never shown to users,
// List derives the display order instead.
type Store struct {
	mu sync.RWMutex

	kv  kv.Store
	key string
	now func() time.Time

	order         []string
	conversations map[string]*Conversation

	suggestedActive string
}

type StoreOption func(*Store)

func WithKey(key string) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore loads the collection from kv. A missing blob yields an empty store, a
// malformed one an error wrapping ErrCorrupt.
func NewStore(ctx context.Context, kvStore kv.Store, options ...StoreOption) (*Store, error) {
	ret := &Store{
		kv:            kvStore,
		key:           DefaultKey,
		now:           time.Now,
		conversations: make(map[string]*Conversation),
	}
	for _, option := range options {
		option(ret)
	}

	if err := ret.load(ctx); err != nil {
		return nil, err
	}

	return ret, nil
}

func (s *Store) load(ctx context.Context) error {
	b, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		log.Debug().Str("key", s.key).Msg("No persisted conversations, starting empty")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "could not load conversations from %s", s.key)
	}

	conversations, err := DecodeCollection(b)
	if err != nil {
		return err
	}

	for _, c := range conversations {
		s.order = append(s.order, c.ID)
		s.conversations[c.ID] = c
	}
	if len(s.order) > 0 {
		s.suggestedActive = s.order[len(s.order)-1]
	}

	log.Debug().
		Str("key", s.key).
		Int("conversations", len(s.order)).
		Str("suggested_active", s.suggestedActive).
		Msg("Loaded conversations")

	return nil
}

// SuggestedActive returns the conversation to open at startup: the last element
// of the collection as it was loaded, regardless of message recency.
func (s *Store) SuggestedActive() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.suggestedActive == "" {
		return "", false
	}
	if _, ok := s.conversations[s.suggestedActive]; !ok {
		return "", false
	}
	return s.suggestedActive, true
}

func (s *Store) Create(ctx context.Context) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := newConversation(s.now())
	s.order = append(s.order, c.ID)
	s.conversations[c.ID] = c

	log.Debug().Str("conversation_id", c.ID).Msg("Created conversation")

	return clone.Clone(c).(*Conversation), s.saveLocked(ctx)
}

func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return clone.Clone(c).(*Conversation), true
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.conversations[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// AppendMessage is a no-op for unknown ids.
func (s *Store) AppendMessage(ctx context.Context, id string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		log.Debug().Str("conversation_id", id).Msg("Dropping message for unknown conversation")
		return nil
	}

	m := *msg
	c.Messages = append(c.Messages, &m)

	log.Trace().
		Str("conversation_id", id).
		Str("message_id", m.ID).
		Str("role", string(m.Role)).
		Bool("is_error", m.IsError).
		Int("message_count", len(c.Messages)).
		Msg("Appended message")

	return s.saveLocked(ctx)
}

// Rename is a no-op for unknown ids.
func (s *Store) Rename(ctx context.Context, id string, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil
	}
	c.Title = title

	log.Debug().Str("conversation_id", id).Str("title", title).Msg("Renamed conversation")

	return s.saveLocked(ctx)
}

// Remove is idempotent.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return nil
	}
	delete(s.conversations, id)
	for i, id_ := range s.order {
		if id_ == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	log.Debug().Str("conversation_id", id).Msg("Removed conversation")

	return s.saveLocked(ctx)
}

// Import appends every conversation whose id is not stored yet, keeping their
// order, and persists once. It returns how many were added.
func (s *Store) Import(ctx context.Context, conversations []*Conversation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, c := range conversations {
		if _, ok := s.conversations[c.ID]; ok {
			log.Debug().Str("conversation_id", c.ID).Msg("Skipping already stored conversation")
			continue
		}
		s.order = append(s.order, c.ID)
		s.conversations[c.ID] = clone.Clone(c).(*Conversation)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	log.Debug().Int("added", added).Msg("Imported conversations")
	return added, s.saveLocked(ctx)
}

// List returns the conversations in display order: most recent last message
// first, conversations without messages at the bottom.
func (s *Store) List() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := s.snapshotLocked()
	SortForDisplay(ret)
	return ret
}

// Snapshot returns the conversations in collection (insertion) order.
func (s *Store) Snapshot() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []*Conversation {
	ret := make([]*Conversation, 0, len(s.order))
	for _, id := range s.order {
		ret = append(ret, clone.Clone(s.conversations[id]).(*Conversation))
	}
	return ret
}

func (s *Store) saveLocked(ctx context.Context) error {
	conversations := make([]*Conversation, 0, len(s.order))
	for _, id := range s.order {
		conversations = append(conversations, s.conversations[id])
	}

	b, err := EncodeCollection(conversations)
	if err != nil {
		return errors.Wrap(err, "could not encode conversations")
	}
	if err := s.kv.Set(ctx, s.key, b); err != nil {
		return errors.Wrapf(err, "could not persist conversations to %s", s.key)
	}
	return nil
}

// SortForDisplay orders conversations by the timestamp of their last message,
// newest first. Conversations without messages sink to the bottom. The sort is
// stable, so ties keep their incoming order.
func SortForDisplay(conversations []*Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[i].LastMessage(), conversations[j].LastMessage()
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Timestamp.After(b.Timestamp)
	})
}
