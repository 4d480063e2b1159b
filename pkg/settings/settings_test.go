package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/kv"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps config files of the machine running the tests out of the way.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
}

func TestDefaults(t *testing.T) {
	v, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	// an explicit config file that does not exist is an error
	require.Error(t, err)
	assert.Nil(t, v)

	isolate(t)
	v, err = NewViper("")
	require.NoError(t, err)

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5001", s.Client.BaseURL)
	assert.Equal(t, 60*time.Second, s.Client.Timeout)
	assert.Equal(t, kv.BackendFile, s.Store.Backend)
	assert.Equal(t, "chatConversations", s.Store.Key)
	assert.Equal(t, "gpt-3.5-turbo", s.Server.Model)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, s.Server.AllowedOrigins)
	assert.Equal(t, "info", s.Log.Level)
}

func TestConfigFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
client:
  base-url: http://chat.internal:8080
  timeout: 5s
store:
  backend: sqlite
  sqlite-path: /tmp/chatterbox.db
log:
  level: debug
`), 0o600))

	t.Setenv("CHATTERBOX_STORE_KEY", "fromEnv")
	t.Setenv("CHATTERBOX_SERVER_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	v, err := NewViper(configFile)
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddPersistentFlags(fs)
	AddServerFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-format", "json", "--model", "gpt-4o-mini"}))
	require.NoError(t, BindFlags(v, fs))

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://chat.internal:8080", s.Client.BaseURL)
	assert.Equal(t, 5*time.Second, s.Client.Timeout)
	assert.Equal(t, kv.BackendSQLite, s.Store.Backend)
	assert.Equal(t, "/tmp/chatterbox.db", s.Store.SQLitePath)
	assert.Equal(t, "fromEnv", s.Store.Key)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, s.Server.AllowedOrigins)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, "gpt-4o-mini", s.Server.Model)
}

func TestOpenAIKeyFallsBackToEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	v, err := NewViper("")
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", s.Server.OpenAIAPIKey)
}

func TestClone(t *testing.T) {
	s := Defaults()
	c := s.Clone()
	c.Server.AllowedOrigins[0] = "changed"
	c.Client.BaseURL = "changed"

	assert.Equal(t, "http://localhost:3000", s.Server.AllowedOrigins[0])
	assert.Equal(t, "http://localhost:5001", s.Client.BaseURL)
}
