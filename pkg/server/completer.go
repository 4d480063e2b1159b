package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

var (
	ErrAuthentication = errors.New("authentication with the completion provider failed")
	ErrRateLimit      = errors.New("completion provider rate limit exceeded")
	ErrProvider       = errors.New("completion provider error")
)

type ChatMessage struct {
	Role    string
	Content string
}

type CompletionRequest struct {
	Messages []ChatMessage
	// MaxTokens and Temperature are left to the provider when zero
	MaxTokens   int
	Temperature float32
}

// Completer produces a single assistant reply. Errors should wrap
// ErrAuthentication, ErrRateLimit or ErrProvider where they apply.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type OpenAICompleter struct {
	client *go_openai.Client
	model  string
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter returns a completer for the OpenAI chat completions API.
// baseURL is optional.
func NewOpenAICompleter(apiKey string, baseURL string, model string) *OpenAICompleter {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAICompleter{
		client: go_openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (o *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Wrap(ErrProvider, "no choices in completion response")
	}

	log.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Completion done")

	return resp.Choices[0].Message.Content, nil
}

type providerError struct {
	kind error
	msg  string
}

func (e *providerError) Error() string {
	return e.msg
}

func (e *providerError) Is(target error) bool {
	return target == e.kind
}

func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *go_openai.APIError
	var reqErr *go_openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}

	switch status {
	case http.StatusUnauthorized:
		return &providerError{kind: ErrAuthentication, msg: err.Error()}
	case http.StatusTooManyRequests:
		return &providerError{kind: ErrRateLimit, msg: err.Error()}
	}
	return &providerError{kind: ErrProvider, msg: fmt.Sprintf("%s (status %d)", err.Error(), status)}
}
