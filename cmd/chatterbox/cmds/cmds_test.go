package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/go-go-golems/chatterbox/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, req server.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if req.MaxTokens > 0 {
		return "\"Weather Talk\"", nil
	}
	return "It is sunny.", nil
}

type harness struct {
	dataDir string
	baseURL string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(home))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})

	srv := httptest.NewServer(server.NewServer(&fakeCompleter{}).Handler())
	t.Cleanup(srv.Close)

	return &harness{
		dataDir: t.TempDir(),
		baseURL: srv.URL,
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{
		"--store", "file",
		"--data-dir", h.dataDir,
		"--base-url", h.baseURL,
		"--log-level", "error",
	}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, "chatterbox %s", strings.Join(args, " "))
	return out
}

// runGlazed runs a command that writes its rows to os.Stdout.
func (h *harness) runGlazed(t *testing.T, args ...string) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	stdout := os.Stdout
	os.Stdout = w
	done := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		done <- string(b)
	}()

	_, err = h.run(t, args...)
	os.Stdout = stdout
	_ = w.Close()
	out := <-done
	_ = r.Close()

	require.NoError(t, err, "chatterbox %s", strings.Join(args, " "))
	return out
}

func (h *harness) rows(t *testing.T, args ...string) []map[string]interface{} {
	t.Helper()
	out := h.runGlazed(t, append(args, "--output", "json")...)
	var ret []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &ret), out)
	return ret
}

func (h *harness) export(t *testing.T) []*conversation.Conversation {
	t.Helper()
	out := h.mustRun(t, "export", "--format", "json")
	var ret []*conversation.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &ret))
	return ret
}

func TestSendListShowRenameDelete(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "send", "How", "is", "the", "weather?")
	assert.Contains(t, out, "It is sunny.")
	assert.Contains(t, out, "Weather Talk")

	conversations := h.export(t)
	require.Len(t, conversations, 1)
	conv := conversations[0]
	assert.Equal(t, "Weather Talk", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "How is the weather?", conv.Messages[0].Content)
	assert.Equal(t, "It is sunny.", conv.Messages[1].Content)

	// continuing keeps the title, it is no longer the default
	h.mustRun(t, "send", "--conversation", conv.ID, "And tomorrow?")
	conversations = h.export(t)
	require.Len(t, conversations, 1)
	assert.Len(t, conversations[0].Messages, 4)

	rows := h.rows(t, "list", "--tokens")
	require.Len(t, rows, 1)
	assert.Equal(t, conv.ID, rows[0]["id"])
	assert.Equal(t, "Weather Talk", rows[0]["title"])
	assert.EqualValues(t, 4, rows[0]["messages"])
	assert.Greater(t, rows[0]["tokens"], float64(0))

	out = h.runGlazed(t, "list")
	assert.Contains(t, out, conv.ID)
	assert.NotContains(t, out, "tokens")

	rows = h.rows(t, "messages", conv.ID)
	require.Len(t, rows, 4)
	assert.Equal(t, "user", rows[0]["role"])
	assert.Equal(t, "How is the weather?", rows[0]["content"])
	assert.Equal(t, "assistant", rows[1]["role"])
	assert.Equal(t, false, rows[1]["is_error"])

	out = h.mustRun(t, "show", conv.ID)
	assert.Contains(t, out, "# Weather Talk")
	assert.Contains(t, out, "You: How is the weather?")
	assert.Contains(t, out, "Assistant: It is sunny.")

	h.mustRun(t, "rename", conv.ID, "Forecast")
	out = h.mustRun(t, "export")
	assert.Contains(t, out, "title: Forecast")

	h.mustRun(t, "delete", conv.ID)
	conversations = h.export(t)
	for _, c := range conversations {
		assert.NotEqual(t, conv.ID, c.ID)
	}
}

func TestDeleteKeepsOtherConversations(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "send", "first")
	h.mustRun(t, "send", "second")

	conversations := h.export(t)
	require.Len(t, conversations, 2)

	// the last stored conversation is the one that would be resumed
	h.mustRun(t, "delete", conversations[1].ID)
	remaining := h.export(t)
	require.Len(t, remaining, 1)
	assert.Equal(t, conversations[0].ID, remaining[0].ID)
}

func TestUnknownConversation(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "show", "nope")
	assert.ErrorContains(t, err, "unknown conversation nope")
	_, err = h.run(t, "rename", "nope", "title")
	assert.Error(t, err)
	_, err = h.run(t, "delete", "nope")
	assert.Error(t, err)
	_, err = h.run(t, "send", "--conversation", "nope", "hi")
	assert.Error(t, err)
	assert.Empty(t, h.export(t))
}

func TestSendWithoutBackend(t *testing.T) {
	h := newHarness(t)
	h.baseURL = "http://127.0.0.1:1"

	out, err := h.run(t, "send", "hi")
	assert.Error(t, err)
	assert.Contains(t, out, "Failed to connect to backend")

	conversations := h.export(t)
	require.Len(t, conversations, 1)
	require.Len(t, conversations[0].Messages, 2)
	assert.True(t, conversations[0].Messages[1].IsError)
	assert.Equal(t, conversation.DefaultTitle, conversations[0].Title)

	rows := h.rows(t, "messages", conversations[0].ID)
	require.Len(t, rows, 2)
	assert.Equal(t, true, rows[1]["is_error"])
	rows = h.rows(t, "messages", "--skip-errors", conversations[0].ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0]["content"])
}

func TestExportFormats(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "send", "hi")

	out := h.mustRun(t, "export", "--format", "yaml")
	assert.Contains(t, out, "messages:")
	assert.Contains(t, out, "role: user")

	_, err := h.run(t, "export", "--format", "xml")
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "send", "hi")

	file := filepath.Join(t.TempDir(), "conversations.yaml")
	out := h.mustRun(t, "export", "--format", "yaml")
	require.NoError(t, os.WriteFile(file, []byte(out), 0o600))

	other := newHarness(t)
	out = other.mustRun(t, "import", file)
	assert.Contains(t, out, "Imported 1 of 1")
	assert.Equal(t, h.export(t)[0].ID, other.export(t)[0].ID)

	out = other.mustRun(t, "import", file)
	assert.Contains(t, out, "Imported 0 of 1")
}

func TestSchema(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "schema")

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "array", schema["type"])
	assert.Contains(t, out, `"messages"`)
	assert.Contains(t, out, `"timestamp"`)
}
