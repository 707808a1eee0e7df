package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/compliance"
	"github.com/lalith-99/brokerguard/internal/middleware"
	"github.com/lalith-99/brokerguard/internal/models"
	"go.uber.org/zap"
)

type MessageHandler struct {
	engine *compliance.Engine
	logger *zap.Logger
}

func NewMessageHandler(engine *compliance.Engine, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{engine: engine, logger: logger}
}

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Body       string `json:"body" binding:"required"`
	ListingID  *int64 `json:"listing_id"`
}

// Send handles POST /v1/messages. The response never says whether the
// message was copied for review.
func (h *MessageHandler) Send(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.engine.Send(c.Request.Context(), middleware.GetTenantID(c), compliance.SendInput{
		SenderID:   middleware.GetUserID(c),
		ReceiverID: req.ReceiverID,
		Body:       req.Body,
		ListingID:  req.ListingID,
	})
	if err != nil {
		respondError(c, h.logger, "failed to send message", err)
		return
	}
	c.JSON(http.StatusCreated, res.Message)
}

type evaluateRequest struct {
	MessageID  int64      `json:"message_id"`
	SenderID   int64      `json:"sender_id" binding:"required"`
	ReceiverID int64      `json:"receiver_id" binding:"required"`
	Body       string     `json:"body" binding:"required"`
	ListingID  *int64     `json:"listing_id"`
	SentAt     *time.Time `json:"sent_at"`
}

// Evaluate handles POST /admin/broker/evaluate: a dry run of the copy rules
// for a hypothetical message. Nothing is stored.
func (h *MessageHandler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tenantID := middleware.GetTenantID(c)
	msg := &models.DirectMessage{
		ID:         req.MessageID,
		TenantID:   tenantID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Body:       req.Body,
		ListingID:  req.ListingID,
	}
	if req.SentAt != nil {
		msg.CreatedAt = req.SentAt.UTC()
	}
	dec, err := h.engine.Evaluate(c.Request.Context(), tenantID, msg)
	if err != nil {
		respondError(c, h.logger, "failed to evaluate message", err)
		return
	}
	c.JSON(http.StatusOK, dec)
}
