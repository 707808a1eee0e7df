package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/compliance"
	"github.com/lalith-99/brokerguard/internal/middleware"
	"github.com/lalith-99/brokerguard/internal/models"
	"go.uber.org/zap"
)

// BrokerHandler serves the /admin/broker surface used by the broker
// dashboard: review queue, risk tags, member monitoring and configuration.
type BrokerHandler struct {
	dashboard *compliance.Dashboard
	moderator *compliance.Moderator
	registry  *compliance.Registry
	monitor   *compliance.Monitor
	settings  *compliance.Settings
	logger    *zap.Logger
}

func NewBrokerHandler(
	dashboard *compliance.Dashboard,
	moderator *compliance.Moderator,
	registry *compliance.Registry,
	monitor *compliance.Monitor,
	settings *compliance.Settings,
	logger *zap.Logger,
) *BrokerHandler {
	return &BrokerHandler{
		dashboard: dashboard,
		moderator: moderator,
		registry:  registry,
		monitor:   monitor,
		settings:  settings,
		logger:    logger,
	}
}

// Dashboard handles GET /admin/broker/dashboard
func (h *BrokerHandler) Dashboard(c *gin.Context) {
	counts, err := h.dashboard.Counts(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, h.logger, "failed to load dashboard", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// ListMessages handles GET /admin/broker/messages?filter=unreviewed&page=1&per_page=50
func (h *BrokerHandler) ListMessages(c *gin.Context) {
	p, ok := pagination(c)
	if !ok {
		return
	}
	filter := models.CopyFilter(c.DefaultQuery("filter", string(models.CopyFilterUnreviewed)))
	page, err := h.moderator.List(c.Request.Context(), middleware.GetTenantID(c), filter, p)
	if err != nil {
		respondError(c, h.logger, "failed to list message copies", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetMessage handles GET /admin/broker/messages/:id
func (h *BrokerHandler) GetMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.moderator.Get(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, h.logger, "failed to get message copy", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ReviewMessage handles POST /admin/broker/messages/:id/review
func (h *BrokerHandler) ReviewMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.moderator.Review(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "failed to review message copy", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type flagRequest struct {
	Reason string `json:"reason"`
}

// FlagMessage handles POST /admin/broker/messages/:id/flag
func (h *BrokerHandler) FlagMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req flagRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	v, err := h.moderator.Flag(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), req.Reason)
	if err != nil {
		respondError(c, h.logger, "failed to flag message copy", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ListRiskTags handles GET /admin/broker/risk-tags?risk_level=high
func (h *BrokerHandler) ListRiskTags(c *gin.Context) {
	var level *models.RiskLevel
	if raw := c.Query("risk_level"); raw != "" {
		l := models.RiskLevel(raw)
		level = &l
	}
	tags, err := h.registry.List(c.Request.Context(), middleware.GetTenantID(c), level)
	if err != nil {
		respondError(c, h.logger, "failed to list risk tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tags, "total": len(tags)})
}

type riskTagRequest struct {
	RiskLevel         models.RiskLevel `json:"risk_level" binding:"required"`
	RiskCategory      *string          `json:"risk_category"`
	RiskNotes         *string          `json:"risk_notes"`
	DBSRequired       bool             `json:"dbs_required"`
	InsuranceRequired bool             `json:"insurance_required"`
}

// PutRiskTag handles PUT /admin/broker/risk-tags/:listing_id
func (h *BrokerHandler) PutRiskTag(c *gin.Context) {
	listingID, ok := parseID(c, "listing_id")
	if !ok {
		return
	}
	var req riskTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tag, err := h.registry.Tag(c.Request.Context(), middleware.GetTenantID(c), listingID, middleware.GetUserID(c), compliance.TagInput{
		RiskLevel:         req.RiskLevel,
		RiskCategory:      req.RiskCategory,
		RiskNotes:         req.RiskNotes,
		DBSRequired:       req.DBSRequired,
		InsuranceRequired: req.InsuranceRequired,
	})
	if err != nil {
		respondError(c, h.logger, "failed to tag listing", err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

// DeleteRiskTag handles DELETE /admin/broker/risk-tags/:listing_id
func (h *BrokerHandler) DeleteRiskTag(c *gin.Context) {
	listingID, ok := parseID(c, "listing_id")
	if !ok {
		return
	}
	if err := h.registry.Untag(c.Request.Context(), middleware.GetTenantID(c), listingID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "failed to remove risk tag", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMonitoring handles GET /admin/broker/monitoring?filter=all
func (h *BrokerHandler) ListMonitoring(c *gin.Context) {
	p, ok := pagination(c)
	if !ok {
		return
	}
	filter := models.MonitoringFilter(c.DefaultQuery("filter", string(models.MonitoringFilterAll)))
	page, err := h.monitor.List(c.Request.Context(), middleware.GetTenantID(c), filter, p)
	if err != nil {
		respondError(c, h.logger, "failed to list monitoring", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Pointers tell "false" apart from "not sent"; both flags are required.
type monitoringRequest struct {
	UnderMonitoring   *bool  `json:"under_monitoring" binding:"required"`
	MessagingDisabled *bool  `json:"messaging_disabled" binding:"required"`
	Reason            string `json:"reason"`
}

// PutMonitoring handles PUT /admin/broker/monitoring/:user_id
func (h *BrokerHandler) PutMonitoring(c *gin.Context) {
	userID, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	var req monitoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.monitor.Set(c.Request.Context(), middleware.GetTenantID(c), userID, middleware.GetUserID(c), compliance.MonitoringUpdate{
		UnderMonitoring:   *req.UnderMonitoring,
		MessagingDisabled: *req.MessagingDisabled,
		Reason:            req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, "failed to update monitoring", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetConfig handles GET /admin/broker/config
func (h *BrokerHandler) GetConfig(c *gin.Context) {
	cfg, err := h.settings.Get(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, h.logger, "failed to load broker config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PutConfig handles PUT /admin/broker/config. The body is decoded over the
// current configuration, so omitted fields keep their values.
func (h *BrokerHandler) PutConfig(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := middleware.GetTenantID(c)

	cfg, err := h.settings.Get(ctx, tenantID)
	if err != nil {
		respondError(c, h.logger, "failed to load broker config", err)
		return
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	saved, err := h.settings.Update(ctx, tenantID, middleware.GetUserID(c), cfg)
	if err != nil {
		respondError(c, h.logger, "failed to update broker config", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GetMonitoring handles GET /admin/broker/monitoring/:user_id
func (h *BrokerHandler) GetMonitoring(c *gin.Context) {
	userID, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	rec, err := h.monitor.Get(c.Request.Context(), middleware.GetTenantID(c), userID)
	if err != nil {
		respondError(c, h.logger, "failed to get monitoring", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
