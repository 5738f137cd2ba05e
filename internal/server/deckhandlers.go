package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kaiwenlu/huayu/internal/deck"
)

// listDeck returns all of a user's flashcards, newest first.
func (s *Server) listDeck(c *gin.Context) {
	if s.deck == nil {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "deck is not configured"})
		return
	}
	cards, err := s.deck.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}

type addCardRequest struct {
	Hanzi   string `json:"hanzi" binding:"required"`
	Pinyin  string `json:"pinyin"`
	English string `json:"english"`
}

// addToDeck inserts a flashcard into the user's deck.
func (s *Server) addToDeck(c *gin.Context) {
	if s.deck == nil {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "deck is not configured"})
		return
	}
	var req addCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	card := &deck.Card{
		UserID:  c.Param("id"),
		Hanzi:   req.Hanzi,
		Pinyin:  req.Pinyin,
		English: req.English,
	}
	if err := s.deck.Add(c.Request.Context(), card); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

// deleteFromDeck removes a flashcard from the user's deck.
func (s *Server) deleteFromDeck(c *gin.Context) {
	if s.deck == nil {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "deck is not configured"})
		return
	}
	if err := s.deck.Delete(c.Request.Context(), c.Param("id"), c.Param("cardID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// similarCards returns the user's cards nearest to the query text, so the
// client can surface near-duplicates before an add.
func (s *Server) similarCards(c *gin.Context) {
	if s.deck == nil {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "deck is not configured"})
		return
	}
	text := c.Query("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query parameter \"text\" is required"})
		return
	}
	k := 5
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "query parameter \"k\" must be a positive integer"})
			return
		}
		k = parsed
	}

	results, err := s.deck.Similar(c.Request.Context(), c.Param("id"), text, k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": results})
}
