package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/finoramarket/ai-gateway/internal/gateway"
	"github.com/gin-gonic/gin"
)

// AIHandler exposes the gateway operations over HTTP.
type AIHandler struct {
	gw *gateway.Gateway
}

// NewAIHandler creates the AI endpoint handler.
func NewAIHandler(gw *gateway.Gateway) *AIHandler {
	return &AIHandler{gw: gw}
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type analyzeRequest struct {
	UserID  string          `json:"userId"`
	Listing gateway.Listing `json:"listing"`
}

type batchRequest struct {
	UserID   string                 `json:"userId"`
	Listings []gateway.BatchListing `json:"listings"`
}

// Chat handles one user question.
// POST /v1/ai/chat
func (h *AIHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "Noto'g'ri so'rov formati"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "userId va message to'ldirilishi shart"})
		return
	}

	reply, err := h.gw.Chat(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		writeGatewayError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// Analyze scores one listing.
// POST /v1/ai/analyze
func (h *AIHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "Noto'g'ri so'rov formati"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "userId to'ldirilishi shart"})
		return
	}

	result, err := h.gw.Analyze(c.Request.Context(), req.UserID, req.Listing)
	if err != nil {
		writeGatewayError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AnalyzeBatch scores a list of listings in rate-limited groups.
// POST /v1/ai/analyze/batch
func (h *AIHandler) AnalyzeBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "Noto'g'ri so'rov formati"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" || len(req.Listings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "userId va listings to'ldirilishi shart"})
		return
	}

	results := h.gw.AnalyzeBatch(c.Request.Context(), req.UserID, req.Listings)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Status returns the credential pool projection.
// GET /v1/ai/status
func (h *AIHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.gw.Status())
}

// GetQuota returns a user's daily quota usage.
// GET /v1/ai/quota/:userId
func (h *AIHandler) GetQuota(c *gin.Context) {
	userID := c.Param("userId")
	if strings.TrimSpace(userID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "userId to'ldirilishi shart"})
		return
	}
	c.JSON(http.StatusOK, h.gw.QuotaStatus(userID))
}

// writeGatewayError maps the gateway error taxonomy onto HTTP statuses.
func writeGatewayError(c *gin.Context, err error) {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		c.JSON(gerr.HTTPStatus(), gin.H{
			"error":   string(gerr.Code),
			"message": gerr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Ichki xatolik yuz berdi",
	})
}
