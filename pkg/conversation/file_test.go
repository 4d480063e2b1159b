package conversation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "conversations.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte(`
- id: a
  title: Greeting
  createdAt: 2024-01-01T00:00:00Z
  messages:
    - id: m1
      role: user
      content: hi
      timestamp: 2024-01-01T00:00:01Z
    - id: m2
      role: assistant
      content: hello
      timestamp: 2024-01-01T00:00:02Z
`), 0o600))

	cs, err := LoadFromFile(yamlFile)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "Greeting", cs[0].Title)
	require.Len(t, cs[0].Messages, 2)
	assert.Equal(t, RoleAssistant, cs[0].Messages[1].Role)
	assert.True(t, cs[0].Messages[1].Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 2, 0, time.UTC)))

	jsonFile := filepath.Join(dir, "conversations.json")
	b, err := EncodeCollection(cs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonFile, b, 0o600))
	fromJSON, err := LoadFromFile(jsonFile)
	require.NoError(t, err)
	assert.Equal(t, cs[0].ID, fromJSON[0].ID)
}

func TestLoadFromFileRejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()

	badRole := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(badRole, []byte(`
- id: a
  title: x
  messages:
    - id: m1
      role: system
      content: hi
      timestamp: 2024-01-01T00:00:01Z
`), 0o600))
	_, err := LoadFromFile(badRole)
	assert.ErrorIs(t, err, ErrCorrupt)

	other := filepath.Join(dir, "conversations.txt")
	require.NoError(t, os.WriteFile(other, []byte("[]"), 0o600))
	_, err = LoadFromFile(other)
	assert.Error(t, err)

	_, err = LoadFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestImportSkipsKnownIDs(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := newTestStore(t, store)

	existing, err := s.Create(ctx)
	require.NoError(t, err)
	writes := store.Writes()

	incoming := []*Conversation{
		{ID: existing.ID, Title: "Clobbered", Messages: []*Message{}},
		{ID: "imported", Title: "Imported", Messages: []*Message{msgAt(RoleUser, "hi", time.Now())}},
	}
	added, err := s.Import(ctx, incoming)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, writes+1, store.Writes())

	got, ok := s.Get(existing.ID)
	require.True(t, ok)
	assert.Equal(t, DefaultTitle, got.Title)

	// imported conversations go to the end of the collection
	snapshot := s.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "imported", snapshot[1].ID)

	added, err = s.Import(ctx, incoming)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, writes+1, store.Writes())
}
