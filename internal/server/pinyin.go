package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaiwenlu/huayu/pkg/pinyin"
)

type convertRequest struct {
	Text string `json:"text" binding:"required"`
}

type convertResponse struct {
	Result string `json:"result"`
}

// convertPinyin transliterates numeric-tone pinyin into diacritic form.
func (s *Server) convertPinyin(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, convertResponse{Result: pinyin.Convert(req.Text)})
}

type checkRequest struct {
	// Input is the learner's typed pinyin answer.
	Input string `json:"input" binding:"required"`

	// Reference is the expected pinyin.
	Reference string `json:"reference" binding:"required"`
}

// checkPinyin grades a learner's pinyin answer against the reference.
func (s *Server) checkPinyin(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, pinyin.Compare(req.Input, req.Reference))
}
