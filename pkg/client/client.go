// Package client talks to the remote chat and title services over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://localhost:5001"
	DefaultTimeout = 60 * time.Second

	defaultServiceMessage = "Something went wrong"
)

type ChatService interface {
	// Send returns the assistant reply to message.
	Send(ctx context.Context, message string) (string, error)
}

type TitleService interface {
	// GenerateTitle returns a short label for the transcript, or "" when the
	// service had nothing to offer.
	GenerateTitle(ctx context.Context, transcript []conversation.TranscriptEntry) (string, error)
}

var (
	ErrService   = errors.New("chat service returned an error")
	ErrTransport = errors.New("chat service unreachable")
)

// ServiceError is a non-2xx answer from the service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error (%d): %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}

// TransportError covers everything that kept a usable answer from arriving:
// connection failures, timeouts, undecodable bodies.
type TransportError struct {
	BaseURL string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("could not reach %s: %v", e.BaseURL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Diagnostic renders err as the text shown to the user in place of a reply.
func Diagnostic(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return "Error: " + serviceErr.Message
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return fmt.Sprintf(
			"Error: Failed to connect to backend. Make sure the chat service is running at %s.",
			transportErr.BaseURL)
	}
	return "Error: " + err.Error()
}

type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

var (
	_ ChatService  = (*HTTPClient)(nil)
	_ TitleService = (*HTTPClient)(nil)
)

type Option func(*HTTPClient)

// WithTimeout bounds each call. Zero disables the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

func NewHTTPClient(baseURL string, options ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ret := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		client:  http.DefaultClient,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (c *HTTPClient) Send(ctx context.Context, message string) (string, error) {
	var resp chatResponse
	if err := c.post(ctx, "/chat", chatRequest{Message: message}, &resp, func() string { return resp.Error }); err != nil {
		return "", err
	}
	return resp.Response, nil
}

type titleRequest struct {
	Conversation []conversation.TranscriptEntry `json:"conversation"`
}

type titleResponse struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

func (c *HTTPClient) GenerateTitle(ctx context.Context, transcript []conversation.TranscriptEntry) (string, error) {
	var resp titleResponse
	if err := c.post(ctx, "/generate-title", titleRequest{Conversation: transcript}, &resp, func() string { return resp.Error }); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Title), nil
}

// post sends body as JSON and decodes the answer into out. errorText reads the
// service's error field from out after decoding.
func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}, errorText func() string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "could not encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		return &TransportError{BaseURL: c.baseURL, Err: err}
	}
	defer func() {
		_ = res.Body.Close()
	}()

	log.Debug().
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Chat service answered")

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &TransportError{BaseURL: c.baseURL, Err: errors.Wrap(err, "could not read response")}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{BaseURL: c.baseURL, Err: errors.Wrapf(err, "could not decode response (status %d)", res.StatusCode)}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := errorText()
		if msg == "" {
			msg = defaultServiceMessage
		}
		return &ServiceError{StatusCode: res.StatusCode, Message: msg}
	}

	return nil
}
