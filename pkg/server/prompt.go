package server

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

const (
	chatSystemPrompt  = "You are a helpful assistant."
	titleSystemPrompt = "You are a helpful assistant that generates concise, descriptive titles for conversations. Return only the title, nothing else."

	titleContentLimit = 200
	titleMaxTokens    = 20
	titleTemperature  = 0.7
)

const titlePromptTemplate = `Based on this conversation, generate a concise, descriptive title (3-6 words) that captures the main topic or theme. The title should be professional and clear.

Conversation:
{{ range .Conversation -}}
{{ ternary "User" "Assistant" (eq .Role "user") }}: {{ .Content | truncRunes $.Limit }}
{{ end }}
Title:`

var titlePrompt = template.Must(
	template.New("title").
		Funcs(sprig.TxtFuncMap()).
		Funcs(template.FuncMap{"truncRunes": truncRunes}).
		Parse(titlePromptTemplate),
)

// truncRunes keeps the first n characters of s.
func truncRunes(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func renderTitlePrompt(conversation []TranscriptEntry) (string, error) {
	var sb strings.Builder
	err := titlePrompt.Execute(&sb, map[string]interface{}{
		"Conversation": conversation,
		"Limit":        titleContentLimit,
	})
	if err != nil {
		return "", errors.Wrap(err, "could not render title prompt")
	}
	return sb.String(), nil
}

// cleanTitle strips quotes and surrounding whitespace from a generated title.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.NewReplacer(`"`, "", "'", "").Replace(title)
	return strings.TrimSpace(title)
}
