package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/exchange"
	"github.com/lalith-99/brokerguard/internal/middleware"
	"github.com/lalith-99/brokerguard/internal/models"
	"go.uber.org/zap"
)

// ExchangeHandler serves both sides of the exchange workflow: members on
// /v1/exchanges and brokers on /admin/broker/exchanges.
type ExchangeHandler struct {
	workflow *exchange.Workflow
	logger   *zap.Logger
}

func NewExchangeHandler(workflow *exchange.Workflow, logger *zap.Logger) *ExchangeHandler {
	return &ExchangeHandler{workflow: workflow, logger: logger}
}

type createExchangeRequest struct {
	ListingID int64   `json:"listing_id" binding:"required"`
	Hours     float64 `json:"hours" binding:"required"`
	Notes     string  `json:"notes"`
}

// Create handles POST /v1/exchanges
func (h *ExchangeHandler) Create(c *gin.Context) {
	var req createExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ex, err := h.workflow.Create(c.Request.Context(), middleware.GetTenantID(c), exchange.CreateInput{
		RequesterID: middleware.GetUserID(c),
		ListingID:   req.ListingID,
		Hours:       req.Hours,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, "failed to create exchange", err)
		return
	}
	c.JSON(http.StatusCreated, ex)
}

// Get handles GET /v1/exchanges/:id. Only the two parties may read it.
func (h *ExchangeHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	viewer := middleware.GetUserID(c)
	detail, err := h.workflow.Get(c.Request.Context(), middleware.GetTenantID(c), id, &viewer)
	if err != nil {
		respondError(c, h.logger, "failed to get exchange", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Ready handles POST /v1/exchanges/:id/ready
func (h *ExchangeHandler) Ready(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ex, err := h.workflow.MarkReady(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c))
	h.respond(c, "failed to mark exchange ready", ex, err)
}

type confirmRequest struct {
	Hours *float64 `json:"hours"`
}

// Confirm handles POST /v1/exchanges/:id/confirm
func (h *ExchangeHandler) Confirm(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	ex, err := h.workflow.Confirm(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), req.Hours)
	h.respond(c, "failed to confirm exchange", ex, err)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Dispute handles POST /v1/exchanges/:id/dispute
func (h *ExchangeHandler) Dispute(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ex, err := h.workflow.Dispute(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), req.Reason)
	h.respond(c, "failed to dispute exchange", ex, err)
}

// Cancel handles POST /v1/exchanges/:id/cancel
func (h *ExchangeHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	ex, err := h.workflow.Cancel(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), req.Reason)
	h.respond(c, "failed to cancel exchange", ex, err)
}

// List handles GET /admin/broker/exchanges?status=pending_broker,disputed
func (h *ExchangeHandler) List(c *gin.Context) {
	p, ok := pagination(c)
	if !ok {
		return
	}
	statuses, err := exchange.ParseStatuses(c.Query("status"))
	if err != nil {
		respondError(c, h.logger, "invalid status filter", err)
		return
	}
	page, err := h.workflow.List(c.Request.Context(), middleware.GetTenantID(c), statuses, p)
	if err != nil {
		respondError(c, h.logger, "failed to list exchanges", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// AdminGet handles GET /admin/broker/exchanges/:id
func (h *ExchangeHandler) AdminGet(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, err := h.workflow.Get(c.Request.Context(), middleware.GetTenantID(c), id, nil)
	if err != nil {
		respondError(c, h.logger, "failed to get exchange", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type approveRequest struct {
	Notes string `json:"notes"`
}

// Approve handles POST /admin/broker/exchanges/:id/approve
func (h *ExchangeHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req approveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	ex, err := h.workflow.Approve(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), req.Notes)
	h.respond(c, "failed to approve exchange", ex, err)
}

// Reject handles POST /admin/broker/exchanges/:id/reject. A missing reason
// is a 400 even when the exchange does not exist.
func (h *ExchangeHandler) Reject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	ex, err := h.workflow.Reject(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), req.Reason)
	h.respond(c, "failed to reject exchange", ex, err)
}

type resolveRequest struct {
	Outcome models.ExchangeStatus `json:"outcome" binding:"required"`
	Hours   *float64              `json:"hours"`
	Notes   string                `json:"notes"`
}

// Resolve handles POST /admin/broker/exchanges/:id/resolve
func (h *ExchangeHandler) Resolve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ex, err := h.workflow.Resolve(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), exchange.Resolution{
		Outcome: req.Outcome,
		Hours:   req.Hours,
		Notes:   req.Notes,
	})
	h.respond(c, "failed to resolve exchange", ex, err)
}

func (h *ExchangeHandler) respond(c *gin.Context, op string, ex *models.ExchangeRequest, err error) {
	if err != nil {
		respondError(c, h.logger, op, err)
		return
	}
	c.JSON(http.StatusOK, ex)
}
