package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kaiwenlu/huayu/internal/conversation"
	"github.com/kaiwenlu/huayu/internal/convstore"
)

// listScenarios returns all registered practice scenarios.
func (s *Server) listScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scenarios": s.scenarios.List()})
}

type createConversationRequest struct {
	// UserID links the conversation to a learner's progress and deck.
	// Empty starts an anonymous session.
	UserID string `json:"userId"`

	// ScenarioID selects the practice scenario to play.
	ScenarioID string `json:"scenarioId" binding:"required"`
}

type createConversationResponse struct {
	Conversation *convstore.Conversation `json:"conversation"`

	// OpeningTurn is the scenario's seeded first line, when it has one.
	OpeningTurn *convstore.Turn `json:"openingTurn,omitempty"`
}

// createConversation starts a new scenario playthrough.
func (s *Server) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	sc, err := s.scenarios.Get(req.ScenarioID)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	conv := &convstore.Conversation{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		ScenarioID: sc.ID,
		Title:      sc.Title,
		Objective:  sc.Objective,
		Persona:    sc.Persona,
		Status:     convstore.StatusActive,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		writeError(c, err)
		return
	}

	resp := createConversationResponse{Conversation: conv}
	if sc.OpeningLine != "" {
		opening := &convstore.Turn{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           convstore.RoleAssistant,
			Text:           sc.OpeningLine,
			Pinyin:         s.annotator.Annotate(sc.OpeningLine),
		}
		if err := s.store.AppendTurn(ctx, opening); err != nil {
			writeError(c, err)
			return
		}
		resp.OpeningTurn = opening
	}

	s.metrics.ActiveConversations.Add(ctx, 1)
	c.JSON(http.StatusCreated, resp)
}

type conversationStateResponse struct {
	Conversation *convstore.Conversation `json:"conversation"`
	Turns        []convstore.Turn        `json:"turns"`
}

// getConversation returns the conversation and its turn log.
func (s *Server) getConversation(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	turns, err := s.store.ListTurns(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationStateResponse{Conversation: conv, Turns: turns})
}

type messageRequest struct {
	Text string `json:"text" binding:"required"`
}

type messageResponse struct {
	AssistantTurn convstore.Turn         `json:"assistantTurn"`
	Status        convstore.Status       `json:"status"`
	CoachReport   *convstore.CoachReport `json:"coachReport,omitempty"`
}

// postMessage runs one batch turn.
func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	result, err := s.orchestrator.SubmitUtterance(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{
		AssistantTurn: result.AssistantTurn,
		Status:        result.Status,
		CoachReport:   result.Report,
	})
}

// streamMessage runs one streaming turn. Raw model chunks are flushed to
// the client as they arrive, metadata block included. When the turn resolves
// terminally the report delimiter and the JSON-encoded coach report are
// appended to the stream.
func (s *Server) streamMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	started := false
	sink := func(chunk string) error {
		if !started {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	result, err := s.orchestrator.StreamUtterance(c.Request.Context(), c.Param("id"), req.Text, sink)
	if err != nil {
		if !started {
			writeError(c, err)
			return
		}
		// Headers are gone; all we can do is drop the connection.
		slog.Warn("stream aborted", "conversation_id", c.Param("id"), "err", err)
		c.Abort()
		return
	}

	if result.Status.Terminal() && result.Report != nil {
		payload, err := json.Marshal(result.Report)
		if err != nil {
			slog.Error("failed to encode coach report", "err", err)
			return
		}
		_, _ = c.Writer.WriteString(conversation.ReportDelimiter)
		_, _ = c.Writer.Write(payload)
		c.Writer.Flush()
	}
}

// userProgress returns the scenario ids the user has completed.
func (s *Server) userProgress(c *gin.Context) {
	done, err := s.store.CompletedScenarios(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completedScenarios": done})
}
