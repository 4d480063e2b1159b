// Package server is the HTTP backend the chat client talks to. It relays single
// messages to a completion provider and derives short conversation titles.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	completer      Completer
	allowedOrigins map[string]bool
	engine         *gin.Engine
}

type Option func(*Server)

func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.allowedOrigins[strings.TrimRight(o, "/")] = true
		}
	}
}

// NewServer builds the HTTP handlers. A nil completer means no API key was
// configured; every completion endpoint then answers with 500.
func NewServer(completer Completer, options ...Option) *Server {
	ret := &Server{
		completer:      completer,
		allowedOrigins: map[string]bool{},
	}
	for _, option := range options {
		option(ret)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), ret.cors())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "chatterbox backend is running")
	})
	r.POST("/chat", ret.handleChat)
	r.POST("/generate-title", ret.handleGenerateTitle)

	ret.engine = r
	return ret
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", addr).Msg("Starting backend")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "backend stopped")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down backend")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.allowedOrigins[origin] {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// bindJSON reports false, after answering 400, if the body is not a JSON object.
func bindJSON(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		abortWithError(c, http.StatusBadRequest, "No JSON data provided")
		return false
	}
	return true
}

func (s *Server) completionError(c *gin.Context, err error) {
	log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Completion failed")
	switch {
	case errors.Is(err, ErrAuthentication):
		abortWithError(c, http.StatusUnauthorized, "Invalid OpenAI API key")
	case errors.Is(err, ErrRateLimit):
		abortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded")
	case errors.Is(err, ErrProvider):
		abortWithError(c, http.StatusInternalServerError, "OpenAI API error: "+err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "Server error: "+err.Error())
	}
}

type chatRequest struct {
	Message *string `json:"message"`
}

func (s *Server) handleChat(c *gin.Context) {
	if s.completer == nil {
		abortWithError(c, http.StatusInternalServerError, "OpenAI API key not configured")
		return
	}

	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Message == nil || *req.Message == "" {
		abortWithError(c, http.StatusBadRequest, "No message provided")
		return
	}

	reply, err := s.completer.Complete(c.Request.Context(), CompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: chatSystemPrompt},
			{Role: string(conversation.RoleUser), Content: *req.Message},
		},
	})
	if err != nil {
		s.completionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

type titleRequest struct {
	Conversation []TranscriptEntry `json:"conversation"`
}

func (s *Server) handleGenerateTitle(c *gin.Context) {
	if s.completer == nil {
		abortWithError(c, http.StatusInternalServerError, "OpenAI API key not configured")
		return
	}

	var req titleRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Conversation) == 0 {
		abortWithError(c, http.StatusBadRequest, "No conversation provided")
		return
	}

	prompt, err := renderTitlePrompt(req.Conversation)
	if err != nil {
		s.completionError(c, err)
		return
	}

	title, err := s.completer.Complete(c.Request.Context(), CompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: titleSystemPrompt},
			{Role: string(conversation.RoleUser), Content: prompt},
		},
		MaxTokens:   titleMaxTokens,
		Temperature: titleTemperature,
	})
	if err != nil {
		s.completionError(c, err)
		return
	}

	title = cleanTitle(title)
	if title == "" {
		title = conversation.DefaultTitle
	}
	c.JSON(http.StatusOK, gin.H{"title": title})
}
