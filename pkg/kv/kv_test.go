package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "chatConversations", []byte(`[1]`)))
	v, err := s.Get(ctx, "chatConversations")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(v))

	require.NoError(t, s.Set(ctx, "chatConversations", []byte(`[1,2]`)))
	v, err = s.Get(ctx, "chatConversations")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(v))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 2, s.Writes())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", b))
	b[0] = 'x'

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	_, err = os.Stat(filepath.Join(dir, "chatConversations.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "chatConversations.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = s.Set(context.Background(), "../escape", []byte("x"))
	require.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Settings{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Settings{Backend: "FILE", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(ctx, Settings{Backend: "etcd"})
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CHATTERBOX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATTERBOX_TEST_REDIS_ADDR not set")
	}
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, Prefix: "chatterbox-test:"})
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHATTERBOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATTERBOX_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	exerciseStore(t, s)
}
