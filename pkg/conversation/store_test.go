package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/kv"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time {
	f.t = f.t.Add(time.Second)
	return f.t
}

func newTestStore(t *testing.T, kvStore kv.Store) *Store {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	s, err := NewStore(context.Background(), kvStore, WithClock(clock.Now))
	require.NoError(t, err)
	return s
}

// failingStore refuses writes while fail is set.
type failingStore struct {
	*kv.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func msgAt(role Role, content string, ts time.Time) *Message {
	return NewMessage(role, content, WithTime(ts))
}

func TestNewStoreEmptyWhenBlobMissing(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryStore())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.List())

	_, ok := s.SuggestedActive()
	assert.False(t, ok)
}

func TestNewStoreFailsOnMalformedBlob(t *testing.T) {
	ctx := context.Background()
	for name, blob := range map[string]string{
		"not json":      `{{{`,
		"not an array":  `{"id":"a"}`,
		"missing title": `[{"id":"a","messages":[]}]`,
		"bad role":      `[{"id":"a","title":"t","messages":[{"id":"m","role":"system","content":"x","timestamp":"2024-01-01T00:00:00Z"}]}]`,
		"duplicate ids": `[{"id":"a","title":"t","messages":[]},{"id":"a","title":"u","messages":[]}]`,
		"bad timestamp": `[{"id":"a","title":"t","messages":[{"id":"m","role":"user","content":"x","timestamp":"yesterday"}]}]`,
		"boolean id":    `[{"id":true,"title":"t","messages":[]}]`,
		"fractional id": `[{"id":1.5,"title":"t","messages":[]}]`,
		"same id twice": `[{"id":1,"title":"t","messages":[]},{"id":"1","title":"u","messages":[]}]`,
	} {
		t.Run(name, func(t *testing.T) {
			store := kv.NewMemoryStore()
			require.NoError(t, store.Set(ctx, DefaultKey, []byte(blob)))

			_, err := NewStore(ctx, store)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestCreateDefaults(t *testing.T) {
	store := kv.NewMemoryStore()
	s := newTestStore(t, store)

	c, err := s.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, DefaultTitle, c.Title)
	assert.Empty(t, c.Messages)
	assert.False(t, c.CreatedAt.IsZero())
	assert.Equal(t, 1, store.Writes())

	got, ok := s.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
}

func TestCreateGivesUniqueIDs(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryStore())
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := s.Create(context.Background())
		require.NoError(t, err)
		require.False(t, seen[c.ID])
		seen[c.ID] = true
	}
}

func TestAppendMessageKeepsCallOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemoryStore())
	c, err := s.Create(ctx)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// timestamps deliberately out of order: append order wins
	contents := []string{"one", "two", "three", "four"}
	offsets := []time.Duration{3, 1, 4, 2}
	for i, content := range contents {
		require.NoError(t, s.AppendMessage(ctx, c.ID, msgAt(RoleUser, content, base.Add(offsets[i]*time.Minute))))
	}

	got, ok := s.Get(c.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, len(contents))
	for i, content := range contents {
		assert.Equal(t, content, got.Messages[i].Content)
	}
}

func TestAppendMessageUnknownIDIsNoop(t *testing.T) {
	store := kv.NewMemoryStore()
	s := newTestStore(t, store)

	require.NoError(t, s.AppendMessage(context.Background(), "nope", NewUserMessage("hi")))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, store.Writes())
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemoryStore())
	c, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, c.ID, NewUserMessage("hi")))

	got, _ := s.Get(c.ID)
	got.Title = "changed"
	got.Messages[0].Content = "changed"
	got.Messages = append(got.Messages, NewUserMessage("extra"))

	again, _ := s.Get(c.ID)
	assert.Equal(t, DefaultTitle, again.Title)
	require.Len(t, again.Messages, 1)
	assert.Equal(t, "hi", again.Messages[0].Content)
}

func TestRenameAndRemove(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := newTestStore(t, store)
	c, err := s.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Rename(ctx, c.ID, "Trip planning"))
	got, _ := s.Get(c.ID)
	assert.Equal(t, "Trip planning", got.Title)

	require.NoError(t, s.Rename(ctx, "unknown", "x"))

	writes := store.Writes()
	require.NoError(t, s.Remove(ctx, c.ID))
	assert.False(t, s.Has(c.ID))
	assert.Equal(t, writes+1, store.Writes())

	require.NoError(t, s.Remove(ctx, c.ID))
	assert.Equal(t, writes+1, store.Writes())
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemoryStore())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	empty1, _ := s.Create(ctx)
	old, _ := s.Create(ctx)
	empty2, _ := s.Create(ctx)
	recent, _ := s.Create(ctx)

	require.NoError(t, s.AppendMessage(ctx, old.ID, msgAt(RoleUser, "a", base)))
	require.NoError(t, s.AppendMessage(ctx, recent.ID, msgAt(RoleUser, "b", base.Add(time.Hour))))

	ids := func(cs []*Conversation) []string {
		ret := []string{}
		for _, c := range cs {
			ret = append(ret, c.ID)
		}
		return ret
	}

	list := s.List()
	assert.Equal(t, []string{recent.ID, old.ID, empty1.ID, empty2.ID}, ids(list))

	// re-sorting an already sorted list changes nothing
	SortForDisplay(list)
	assert.Equal(t, []string{recent.ID, old.ID, empty1.ID, empty2.ID}, ids(list))
	assert.Equal(t, ids(list), ids(s.List()))

	// the newest message decides, not creation order
	require.NoError(t, s.AppendMessage(ctx, old.ID, msgAt(RoleAssistant, "c", base.Add(2*time.Hour))))
	assert.Equal(t, []string{old.ID, recent.ID, empty1.ID, empty2.ID}, ids(s.List()))
}

func TestListNeverPlacesNonEmptyBelowEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemoryStore())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		c, err := s.Create(ctx)
		require.NoError(t, err)
		if i%3 == 0 {
			require.NoError(t, s.AppendMessage(ctx, c.ID, msgAt(RoleUser, "x", base.Add(time.Duration(i)*time.Minute))))
		}
	}

	seenEmpty := false
	for _, c := range s.List() {
		if len(c.Messages) == 0 {
			seenEmpty = true
			continue
		}
		assert.False(t, seenEmpty, "conversation with messages listed after an empty one")
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := newTestStore(t, store)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a, _ := s.Create(ctx)
	b, _ := s.Create(ctx)
	_, _ = s.Create(ctx)
	require.NoError(t, s.AppendMessage(ctx, a.ID, msgAt(RoleUser, "hi", base)))
	require.NoError(t, s.AppendMessage(ctx, a.ID, NewAssistantMessage("boom", WithTime(base.Add(time.Second)), AsError())))
	require.NoError(t, s.AppendMessage(ctx, b.ID, msgAt(RoleUser, "later", base.Add(time.Hour))))
	require.NoError(t, s.Rename(ctx, b.ID, "Later"))

	reloaded, err := NewStore(ctx, store)
	require.NoError(t, err)

	before, after := s.List(), reloaded.List()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Title, after[i].Title)
		assert.True(t, before[i].CreatedAt.Equal(after[i].CreatedAt))
		require.Len(t, after[i].Messages, len(before[i].Messages))
		for j := range before[i].Messages {
			bm, am := before[i].Messages[j], after[i].Messages[j]
			assert.Equal(t, bm.ID, am.ID)
			assert.Equal(t, bm.Role, am.Role)
			assert.Equal(t, bm.Content, am.Content)
			assert.Equal(t, bm.IsError, am.IsError)
			assert.True(t, bm.Timestamp.Equal(am.Timestamp))
		}
	}
}

func TestSuggestedActiveIsLastLoadedElement(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := newTestStore(t, store)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	recent, _ := s.Create(ctx)
	last, _ := s.Create(ctx)
	require.NoError(t, s.AppendMessage(ctx, recent.ID, msgAt(RoleUser, "newest", base.Add(time.Hour))))

	reloaded, err := NewStore(ctx, store)
	require.NoError(t, err)

	id, ok := reloaded.SuggestedActive()
	require.True(t, ok)
	// insertion order decides, even though "recent" has the newest message
	assert.Equal(t, last.ID, id)

	require.NoError(t, reloaded.Remove(ctx, last.ID))
	_, ok = reloaded.SuggestedActive()
	assert.False(t, ok)
}

func TestDecodeAcceptsBlobsWithoutOptionalFields(t *testing.T) {
	blob := `[{"id":"1700000000000","title":"Old","messages":[{"id":"1700000000001","role":"user","content":"hi","timestamp":"2023-11-14T22:13:20.001Z"}]}]`
	cs, err := DecodeCollection([]byte(blob))
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "Old", cs[0].Title)
	assert.False(t, cs[0].Messages[0].IsError)
}

func TestFailedWriteIsCaughtUpByNextWrite(t *testing.T) {
	ctx := context.Background()
	backing := &failingStore{MemoryStore: kv.NewMemoryStore()}
	s := newTestStore(t, backing)

	c, err := s.Create(ctx)
	require.NoError(t, err)

	backing.setFail(true)
	err = s.AppendMessage(ctx, c.ID, NewUserMessage("lost on disk"))
	require.Error(t, err)

	// memory moved ahead of the persisted collection
	got, _ := s.Get(c.ID)
	require.Len(t, got.Messages, 1)
	stale := newTestStore(t, backing.MemoryStore)
	staleConv, ok := stale.Get(c.ID)
	require.True(t, ok)
	assert.Empty(t, staleConv.Messages)

	backing.setFail(false)
	require.NoError(t, s.AppendMessage(ctx, c.ID, NewAssistantMessage("reply")))

	reloaded := newTestStore(t, backing.MemoryStore)
	want, err := EncodeCollection(s.Snapshot())
	require.NoError(t, err)
	have, err := EncodeCollection(reloaded.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))

	conv, _ := reloaded.Get(c.ID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "lost on disk", conv.Messages[0].Content)
}

func TestLoadsCollectionWithNumericIDs(t *testing.T) {
	ctx := context.Background()
	blob := `[{"id":1700000000000,"title":"New Chat","messages":[` +
		`{"id":1700000000001,"role":"user","content":"hello","timestamp":"2023-11-14T22:13:20.001Z"},` +
		`{"id":1700000000002,"role":"assistant","content":"Error: Failed to connect to backend","timestamp":"2023-11-14T22:13:21.000Z","isError":true}],` +
		`"createdAt":"2023-11-14T22:13:20.000Z"},` +
		`{"id":1700000100000,"title":"Greeting","messages":[],"createdAt":"2023-11-14T22:15:00.000Z"}]`

	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, DefaultKey, []byte(blob)))

	s, err := NewStore(ctx, store)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	c, ok := s.Get("1700000000000")
	require.True(t, ok)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "1700000000001", c.Messages[0].ID)
	assert.Equal(t, "1700000000002", c.Messages[1].ID)
	assert.True(t, c.Messages[1].IsError)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), c.CreatedAt.UTC())

	id, ok := s.SuggestedActive()
	require.True(t, ok)
	assert.Equal(t, "1700000100000", id)

	// the next write stores the ids as strings, which load just as well
	require.NoError(t, s.AppendMessage(ctx, id, NewUserMessage("hi")))
	reloaded, err := NewStore(ctx, store)
	require.NoError(t, err)
	assert.True(t, reloaded.Has("1700000000000"))
	got, _ := reloaded.Get("1700000100000")
	require.Len(t, got.Messages, 1)
}
