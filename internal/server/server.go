// Package server exposes the Huayu HTTP API: conversation lifecycle and
// turns (batch and streaming), pinyin practice endpoints, and the flashcard
// deck. Handlers are thin; domain behaviour lives in the conversation, deck,
// and pinyin packages.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kaiwenlu/huayu/internal/conversation"
	"github.com/kaiwenlu/huayu/internal/convstore"
	"github.com/kaiwenlu/huayu/internal/deck"
	"github.com/kaiwenlu/huayu/internal/observe"
	"github.com/kaiwenlu/huayu/internal/scenario"
	"github.com/kaiwenlu/huayu/pkg/pinyin"
)

// Server wires the HTTP routes to the domain services.
type Server struct {
	orchestrator *conversation.Orchestrator
	store        convstore.Store
	scenarios    *scenario.Registry
	deck         *deck.Deck
	annotator    pinyin.Annotator
	metrics      *observe.Metrics
}

// Config holds the dependencies for [New]. Orchestrator, Store, and
// Scenarios are required; Deck, Annotator, and Metrics have fallbacks.
type Config struct {
	Orchestrator *conversation.Orchestrator
	Store        convstore.Store
	Scenarios    *scenario.Registry
	Deck         *deck.Deck
	Annotator    pinyin.Annotator
	Metrics      *observe.Metrics
}

// New creates a [Server] from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("server: orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if cfg.Scenarios == nil {
		return nil, fmt.Errorf("server: scenario registry is required")
	}

	s := &Server{
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		scenarios:    cfg.Scenarios,
		deck:         cfg.Deck,
		annotator:    cfg.Annotator,
		metrics:      cfg.Metrics,
	}
	if s.annotator == nil {
		s.annotator = pinyin.NewHanziAnnotator()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), observe.Middleware(s.metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/scenarios", s.listScenarios)

		api.POST("/conversations", s.createConversation)
		api.GET("/conversations/:id", s.getConversation)
		api.POST("/conversations/:id/messages", s.postMessage)
		api.POST("/conversations/:id/stream", s.streamMessage)

		api.POST("/pinyin/convert", s.convertPinyin)
		api.POST("/pinyin/check", s.checkPinyin)

		users := api.Group("/users/:id")
		{
			users.GET("/progress", s.userProgress)
			users.GET("/deck", s.listDeck)
			users.POST("/deck", s.addToDeck)
			users.DELETE("/deck/:cardID", s.deleteFromDeck)
			users.GET("/deck/similar", s.similarCards)
		}
	}

	return r
}

// Run starts the API listener and shuts it down gracefully when ctx is
// cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	}
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, convstore.ErrNotFound),
		errors.Is(err, scenario.ErrNotFound),
		errors.Is(err, deck.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, convstore.ErrConversationClosed):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, conversation.ErrEmptyUtterance):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, deck.ErrNoEmbedder):
		c.JSON(http.StatusNotImplemented, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
